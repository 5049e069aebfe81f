package hashstate

import (
	"errors"
	"fmt"
	"log/slog"
)

// Sentinel kinds for errors.Is.
var (
	ErrDecode = errors.New("hashstate: decode failed")
	ErrRead   = errors.New("hashstate: read failed")
	ErrWrite  = errors.New("hashstate: write failed")
)

// Source names the store a value was read from or written to.
type Source string

const (
	SourceMirror   Source = "mirror"
	SourceFragment Source = "fragment"
)

// Op names the step of a write that failed.
type Op string

const (
	OpEncode Op = "encode"
	OpWrite  Op = "write"
	OpRemove Op = "remove"
)

// DecodeError reports that stored content could not be decoded.
type DecodeError struct {
	Key     string
	Source  Source
	Encoded string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("hashstate: decode %q from %s: %v", e.Key, e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// ReadError reports that a store could not be read.
type ReadError struct {
	Key    string
	Source Source
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("hashstate: read %q from %s: %v", e.Key, e.Source, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

func (e *ReadError) Is(target error) bool { return target == ErrRead }

// WriteError reports a failed encode, write or remove. Target is empty for
// OpEncode.
type WriteError struct {
	Key    string
	Op     Op
	Target Source
	Err    error
}

func (e *WriteError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("hashstate: %s %q: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("hashstate: %s %q to %s: %v", e.Op, e.Key, e.Target, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func (e *WriteError) Is(target error) bool { return target == ErrWrite }

// ErrorSink receives every error a binding swallows.
// Record must not panic.
type ErrorSink interface {
	Record(err error)
}

// SinkFunc adapts a function to ErrorSink.
type SinkFunc func(err error)

// Record calls f(err).
func (f SinkFunc) Record(err error) { f(err) }

// LogSink logs errors at error level. A nil Logger means slog.Default().
type LogSink struct {
	Logger *slog.Logger
}

// Record logs err.
func (s LogSink) Record(err error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("hashstate error", "error", err)
}

// panicError converts a recovered codec panic into an error.
func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("codec panic: %w", err)
	}
	return fmt.Errorf("codec panic: %v", r)
}
