package log

import "time"

// Logger provides structured logging capabilities.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value interface{}
}

// String creates a string field.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an int field.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates an int64 field.
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Uint64 creates a uint64 field.
func Uint64(key string, value uint64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a bool field.
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a duration field.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Err creates an error field with key "error".
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

// Any creates a field with any value.
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// With returns a Logger that appends fields to every message.
func With(l Logger, fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	return &boundLogger{next: l, fields: fields}
}

type boundLogger struct {
	next   Logger
	fields []Field
}

func (b *boundLogger) merge(fields []Field) []Field {
	out := make([]Field, 0, len(b.fields)+len(fields))
	out = append(out, b.fields...)
	return append(out, fields...)
}

func (b *boundLogger) Debug(msg string, fields ...Field) { b.next.Debug(msg, b.merge(fields)...) }
func (b *boundLogger) Info(msg string, fields ...Field)  { b.next.Info(msg, b.merge(fields)...) }
func (b *boundLogger) Warn(msg string, fields ...Field)  { b.next.Warn(msg, b.merge(fields)...) }
func (b *boundLogger) Error(msg string, fields ...Field) { b.next.Error(msg, b.merge(fields)...) }
