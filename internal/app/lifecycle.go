package app

import (
	"sync"
	"time"

	"github.com/bft-labs/cosched/internal/domain"
	"github.com/bft-labs/cosched/pkg/log"
)

// ShutdownTimeout is the maximum time a graceful stop waits for handlers.
const ShutdownTimeout = 30 * time.Second

// State is the lifecycle state of the server.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateCrashed:
		return "Crashed"
	default:
		return "Unknown"
	}
}

// transitions lists the states reachable from each state. Crashed is
// terminal: a fatal error ends the process.
var transitions = map[State][]State{
	StateStopped:  {StateStarting},
	StateStarting: {StateRunning, StateStopping, StateCrashed},
	StateRunning:  {StateStopping, StateCrashed},
	StateStopping: {StateStopped, StateCrashed},
}

// Lifecycle tracks the server state machine and the goroutines that must
// finish before a graceful stop completes.
type Lifecycle struct {
	mu     sync.RWMutex
	state  State
	wg     sync.WaitGroup
	logger log.Logger
	events EventHandler
}

// NewLifecycle creates a lifecycle in StateStopped.
func NewLifecycle(logger log.Logger, events EventHandler) *Lifecycle {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Lifecycle{
		state:  StateStopped,
		logger: logger,
		events: events,
	}
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// TransitionTo moves to newState if the transition table allows it.
func (l *Lifecycle) TransitionTo(newState State, reason string) error {
	l.mu.Lock()
	oldState := l.state
	if !allowed(oldState, newState) {
		l.mu.Unlock()
		if oldState == StateStopped || oldState == StateCrashed {
			return domain.ErrNotRunning
		}
		return domain.ErrAlreadyRunning
	}
	l.state = newState
	l.mu.Unlock()

	// emitted outside the lock
	if l.events != nil {
		l.events.OnStateChange(oldState, newState, reason)
	}

	l.logger.Info("state transition",
		log.String("from", oldState.String()),
		log.String("to", newState.String()),
		log.String("reason", reason),
	)
	return nil
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanStart returns true if the server has never been started.
func (l *Lifecycle) CanStart() bool {
	return l.State() == StateStopped
}

// CanStop returns true if a stop may be requested.
func (l *Lifecycle) CanStop() bool {
	s := l.State()
	return s == StateRunning || s == StateStarting
}

// AddWorker registers a goroutine that a graceful stop waits for.
func (l *Lifecycle) AddWorker() {
	l.wg.Add(1)
}

// WorkerDone marks a registered goroutine as finished.
func (l *Lifecycle) WorkerDone() {
	l.wg.Done()
}

// WaitWithTimeout waits for all workers. It returns
// domain.ErrShutdownTimeout if they are still running after timeout.
func (l *Lifecycle) WaitWithTimeout(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		l.logger.Warn("shutdown timeout, handlers still running",
			log.Duration("timeout", timeout),
		)
		return domain.ErrShutdownTimeout
	}
}
