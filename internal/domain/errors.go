package domain

import "errors"

// Domain errors returned by the server and its components.
// Check them with errors.Is; most are wrapped with call-site context.
var (
	// ErrFatal marks an error that must stop the whole server. Accept,
	// listener setup and connection write failures carry it.
	ErrFatal = errors.New("cosched: fatal")

	// ErrAlreadyRunning is returned when Run() is called on a server that already ran.
	ErrAlreadyRunning = errors.New("cosched: already running")

	// ErrNotRunning is returned when Stop() is called on a stopped server.
	ErrNotRunning = errors.New("cosched: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("cosched: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("cosched: invalid configuration")
)

// IsFatal reports whether err must terminate the server.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}
