package app

// HandlerState is the state of one connection handler.
type HandlerState int

const (
	HandlerSpawned HandlerState = iota
	HandlerYielded
	HandlerAcceptPending
	HandlerAdmitted
	HandlerTransferring
	HandlerCleanup
	HandlerIdling
	HandlerDone
)

// String returns a human-readable representation of the handler state.
func (s HandlerState) String() string {
	switch s {
	case HandlerSpawned:
		return "Spawned"
	case HandlerYielded:
		return "Yielded"
	case HandlerAcceptPending:
		return "AcceptPending"
	case HandlerAdmitted:
		return "Admitted"
	case HandlerTransferring:
		return "Transferring"
	case HandlerCleanup:
		return "Cleanup"
	case HandlerIdling:
		return "Idling"
	case HandlerDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// ConnectionEvent summarizes one served connection.
type ConnectionEvent struct {
	HandlerID uint64
	ConnID    uint64
	Remote    string
	// Frames is the number of frames fully written (0, 1 or 2).
	Frames int
	Bytes  int64
	// Err is the per-connection failure, if any. Fatal failures are not
	// reported here; they end the server.
	Err error
}

// EventHandler receives server and handler notifications. Calls are made
// from handler goroutines and must not block; they may run while the
// admission lock is held, so they must not call back into the server.
type EventHandler interface {
	OnStateChange(previous, current State, reason string)
	OnHandlerState(handlerID uint64, state HandlerState)
	OnConnection(ev ConnectionEvent)
}

// NopEvents implements EventHandler with no-ops; embed it to override a subset.
type NopEvents struct{}

func (NopEvents) OnStateChange(previous, current State, reason string) {}
func (NopEvents) OnHandlerState(handlerID uint64, state HandlerState)  {}
func (NopEvents) OnConnection(ev ConnectionEvent)                      {}
