package app

import (
	"context"
	"errors"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bft-labs/cosched/internal/admission"
	"github.com/bft-labs/cosched/internal/artifact"
	"github.com/bft-labs/cosched/internal/diag"
	"github.com/bft-labs/cosched/internal/domain"
	"github.com/bft-labs/cosched/internal/frame"
	"github.com/bft-labs/cosched/pkg/log"
)

// DefaultCooldown is how long a handler lingers after serving its connection.
const DefaultCooldown = 250 * time.Second

// Config contains the server parameters.
type Config struct {
	// Capacity is the number of admission tokens.
	Capacity int
	// Cooldown is the idle period at the end of every handler.
	Cooldown time.Duration
	// CompanionPath is the file sent as the second frame of every connection.
	CompanionPath string
	// ChunkSize bounds each payload write.
	ChunkSize int
	// Digest enables BLAKE3 digests of every frame in the logs.
	Digest bool
	// ShutdownTimeout bounds how long Stop waits for handlers.
	ShutdownTimeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithEventHandler registers an EventHandler.
func WithEventHandler(h EventHandler) Option {
	return func(s *Server) { s.events = h }
}

// Server runs the spawn loop and its connection handlers over a shared listener.
type Server struct {
	cfg       Config
	ln        net.Listener
	gate      *admission.Gate
	producer  artifact.Producer
	sender    *frame.Sender
	sink      *diag.Sink
	logger    log.Logger
	events    EventHandler
	lifecycle *Lifecycle

	handlerSeq atomic.Uint64
	connSeq    atomic.Uint64

	started  atomic.Bool
	stopping atomic.Bool
	stopReq  chan struct{}
	stopOnce sync.Once
}

// NewServer creates a server that will accept on ln and build artifacts with producer.
func NewServer(cfg Config, ln net.Listener, producer artifact.Producer, opts ...Option) *Server {
	if cfg.Capacity <= 0 {
		cfg.Capacity = admission.DefaultCapacity
	}
	if cfg.Cooldown < 0 {
		cfg.Cooldown = 0
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = ShutdownTimeout
	}

	s := &Server{
		cfg:      cfg,
		ln:       ln,
		gate:     admission.New(cfg.Capacity),
		producer: producer,
		logger:   log.NewNoopLogger(),
		events:   NopEvents{},
		stopReq:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.NewNoopLogger()
	}
	if s.events == nil {
		s.events = NopEvents{}
	}

	senderOpts := []frame.SenderOption{frame.WithLogger(s.logger)}
	if cfg.Digest {
		senderOpts = append(senderOpts, frame.WithDigest())
	}
	s.sender = frame.NewSender(cfg.ChunkSize, senderOpts...)
	s.sink = diag.NewSink(s.logger)
	s.lifecycle = NewLifecycle(s.logger, s.events)
	return s
}

// Addr returns the listener address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Status returns the current lifecycle state.
func (s *Server) Status() State {
	return s.lifecycle.State()
}

// Available returns the current admission counter.
func (s *Server) Available() int {
	return s.gate.Available()
}

// Run serves until ctx is canceled, Stop is called or a fatal error occurs.
// It returns nil after a graceful stop and the fatal error otherwise. After a
// fatal error nothing is waited for: in-flight peers are abandoned and the
// caller is expected to exit.
func (s *Server) Run(ctx context.Context) error {
	// the listener is closed on the way out, so a server runs once
	if !s.started.CompareAndSwap(false, true) {
		return domain.ErrAlreadyRunning
	}
	if err := s.lifecycle.TransitionTo(StateStarting, "Run() called"); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.logger.Info("server listening",
		log.String("addr", s.ln.Addr().String()),
		log.Int("capacity", s.cfg.Capacity),
		log.Duration("cooldown", s.cfg.Cooldown),
	)

	s.lifecycle.AddWorker()
	go s.spawnLoop(runCtx)

	if err := s.lifecycle.TransitionTo(StateRunning, "spawn loop started"); err != nil {
		return err
	}

	select {
	case fatal := <-s.sink.Fatal():
		s.stopping.Store(true)
		cancel()
		s.ln.Close()
		go s.gate.Close()
		_ = s.lifecycle.TransitionTo(StateCrashed, fatal.Error())
		return fatal
	case <-ctx.Done():
		return s.shutdown(cancel, "context canceled")
	case <-s.stopReq:
		return s.shutdown(cancel, "Stop() called")
	}
}

// Stop requests a graceful stop of a running server. Run returns once the
// handlers have finished or the shutdown timeout expired.
func (s *Server) Stop() error {
	if !s.lifecycle.CanStop() {
		return domain.ErrNotRunning
	}
	s.stopOnce.Do(func() { close(s.stopReq) })
	return nil
}

func (s *Server) shutdown(cancel context.CancelFunc, reason string) error {
	if err := s.lifecycle.TransitionTo(StateStopping, reason); err != nil {
		return err
	}
	s.stopping.Store(true)
	cancel()
	s.ln.Close()
	// Close takes the pool lock, which a transfer in progress holds.
	go s.gate.Close()

	err := s.lifecycle.WaitWithTimeout(s.cfg.ShutdownTimeout)
	// a handler may have failed fatally while the stop was in progress
	select {
	case fatal := <-s.sink.Fatal():
		_ = s.lifecycle.TransitionTo(StateCrashed, fatal.Error())
		return fatal
	default:
	}
	if err != nil {
		_ = s.lifecycle.TransitionTo(StateCrashed, "shutdown timeout")
		return err
	}
	_ = s.lifecycle.TransitionTo(StateStopped, "graceful shutdown")
	return nil
}

// spawnLoop starts a handler, yields, and only then takes an admission
// token, so up to Capacity handlers may be waiting in Accept at once.
func (s *Server) spawnLoop(ctx context.Context) {
	defer s.lifecycle.WorkerDone()

	for ctx.Err() == nil {
		s.spawn(ctx)
		runtime.Gosched()
		if err := s.gate.Acquire(); err != nil {
			if !errors.Is(err, admission.ErrClosed) {
				s.logger.Error("admission failed", log.Err(err))
			}
			return
		}
	}
}

func (s *Server) spawn(ctx context.Context) {
	id := s.handlerSeq.Add(1)
	s.lifecycle.AddWorker()
	go func() {
		defer s.lifecycle.WorkerDone()
		h := &handler{id: id, srv: s, logger: log.With(s.logger, log.Uint64("handler", id))}
		h.run(ctx)
	}()
}
