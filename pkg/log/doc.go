// Package log provides the logging abstraction used by cosched components.
//
// Components accept a Logger and never talk to a logging library directly.
// A zerolog adapter is provided for the command-line server, and a no-op
// logger for tests and embedding:
//
//	logger := log.NewZerologAdapterWithLogger(zerolog.New(os.Stderr))
//	logger.Info("listening", log.Int("port", 1024))
//
// Implement Logger to route the messages elsewhere.
package log
