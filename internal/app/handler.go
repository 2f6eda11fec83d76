package app

import (
	"context"
	"errors"
	"net"
	"runtime"
	"time"

	"github.com/bft-labs/cosched/internal/artifact"
	"github.com/bft-labs/cosched/internal/diag"
	"github.com/bft-labs/cosched/internal/frame"
	"github.com/bft-labs/cosched/pkg/log"
)

// handler serves exactly one connection, then idles for the cooldown.
type handler struct {
	id     uint64
	srv    *Server
	logger log.Logger
}

func (h *handler) enter(state HandlerState) {
	h.logger.Debug("handler state", log.String("state", state.String()))
	h.srv.events.OnHandlerState(h.id, state)
}

func (h *handler) run(ctx context.Context) {
	h.enter(HandlerSpawned)
	defer h.enter(HandlerDone)

	runtime.Gosched()
	h.enter(HandlerYielded)

	h.enter(HandlerAcceptPending)
	conn, err := h.srv.ln.Accept()
	if err != nil {
		if h.srv.stopping.Load() {
			return
		}
		_ = h.srv.sink.Report(diag.SeverityError, "accept failed", err, log.Uint64("handler", h.id))
		return
	}

	var fatal error
	_ = h.srv.gate.ReleaseDuring(func() error {
		fatal = h.serve(ctx, conn)
		return fatal
	})
	if fatal != nil {
		return
	}

	h.enter(HandlerIdling)
	h.cooldown(ctx)
}

// serve runs with the admission lock held and the token already returned.
// It returns a non-nil error only for fatal failures.
func (h *handler) serve(ctx context.Context, conn net.Conn) error {
	h.enter(HandlerAdmitted)

	ev := ConnectionEvent{
		HandlerID: h.id,
		ConnID:    h.srv.connSeq.Add(1),
		Remote:    conn.RemoteAddr().String(),
	}
	logger := log.With(h.logger, log.Uint64("conn", ev.ConnID), log.String("remote", ev.Remote))
	logger.Info("connection accepted")

	path, err := h.srv.producer.Produce(ctx, ev.ConnID)
	if err != nil {
		// the transfer below reports a missing artifact on its own
		_ = h.srv.sink.Report(diag.SeverityWarning, "artifact build failed", err,
			log.Uint64("conn", ev.ConnID), log.String("artifact", path))
	}

	h.enter(HandlerTransferring)
	fatal := h.transfer(conn, []string{path, h.srv.cfg.CompanionPath}, logger, &ev)

	h.enter(HandlerCleanup)
	if err := conn.Close(); err != nil {
		logger.Debug("close connection", log.Err(err))
	}
	if err := artifact.Remove(path); err != nil {
		_ = h.srv.sink.Report(diag.SeverityWarning, "remove artifact failed", err,
			log.Uint64("conn", ev.ConnID), log.String("artifact", path))
	}

	if fatal == nil {
		h.srv.events.OnConnection(ev)
		logger.Info("connection closed", log.Int("frames", ev.Frames), log.Int64("bytes", ev.Bytes))
	}
	return fatal
}

// transfer sends every path as one frame, in order. Local file failures
// abort the connection only; write failures are fatal.
func (h *handler) transfer(conn net.Conn, paths []string, logger log.Logger, ev *ConnectionEvent) error {
	for _, p := range paths {
		st, err := h.srv.sender.SendFile(conn, p)
		if err != nil {
			var we *frame.WriteError
			if errors.As(err, &we) {
				return h.srv.sink.Report(diag.SeverityError, "send frame failed", err,
					log.Uint64("conn", ev.ConnID), log.String("remote", ev.Remote))
			}
			ev.Err = err
			_ = h.srv.sink.Report(diag.SeverityWarning, "connection aborted", err,
				log.Uint64("conn", ev.ConnID), log.Int("frames", ev.Frames))
			return nil
		}

		ev.Frames++
		ev.Bytes += st.Size
		fields := []log.Field{
			log.String("path", p),
			log.Int64("size", st.Size),
			log.Int("chunks", st.Chunks),
		}
		if st.Digest != "" {
			fields = append(fields, log.String("blake3", st.Digest))
		}
		logger.Debug("frame sent", fields...)
	}
	return nil
}

// cooldown holds the goroutine for the configured period. Only shutdown cuts it short.
func (h *handler) cooldown(ctx context.Context) {
	if h.srv.cfg.Cooldown <= 0 {
		return
	}
	t := time.NewTimer(h.srv.cfg.Cooldown)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
