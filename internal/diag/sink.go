// Package diag is the process-wide diagnostics sink.
//
// Every component reports through a Sink. Advisory severities are only
// logged; Error and Critical reports are logged and then delivered, once,
// on the sink's fatal channel, which the server treats as the single
// unrecoverable-error path.
package diag

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bft-labs/cosched/internal/domain"
	"github.com/bft-labs/cosched/pkg/log"
)

// Severity orders diagnostic reports. Values at or above SeverityError are fatal.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityCritical
)

// String returns a human-readable representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Fatal reports whether the severity terminates the server.
func (s Severity) Fatal() bool {
	return s >= SeverityError
}

// Sink logs reports and collects the first fatal one.
type Sink struct {
	logger log.Logger

	once  sync.Once
	fatal chan error
}

// NewSink creates a sink logging through logger.
func NewSink(logger log.Logger) *Sink {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Sink{
		logger: logger,
		fatal:  make(chan error, 1),
	}
}

// Report logs msg at the given severity. For fatal severities it returns an
// error wrapping domain.ErrFatal (and err, when non-nil) and publishes it on
// Fatal(); otherwise it returns nil.
func (s *Sink) Report(sev Severity, msg string, err error, fields ...log.Field) error {
	if err != nil {
		fields = append(fields, log.Err(err))
	}

	switch sev {
	case SeverityDebug:
		s.logger.Debug(msg, fields...)
	case SeverityInfo:
		s.logger.Info(msg, fields...)
	case SeverityWarning:
		s.logger.Warn(msg, fields...)
	default:
		s.logger.Error(msg, append(fields, log.String("severity", sev.String()))...)
	}

	if !sev.Fatal() {
		return nil
	}

	var fatalErr error
	if err != nil {
		fatalErr = fmt.Errorf("%s: %w", msg, errors.Join(domain.ErrFatal, err))
	} else {
		fatalErr = fmt.Errorf("%s: %w", msg, domain.ErrFatal)
	}

	s.once.Do(func() {
		s.fatal <- fatalErr
	})
	return fatalErr
}

// Fatal delivers the first fatal report. Later fatal reports are logged but
// not delivered.
func (s *Sink) Fatal() <-chan error {
	return s.fatal
}
