package docmodel

import (
	"fmt"
	"runtime"
)

// ErrorKind buckets processing failures by cause.
type ErrorKind string

const (
	ErrInput        ErrorKind = "input"
	ErrTypeMismatch ErrorKind = "type_mismatch"
	ErrExternal     ErrorKind = "external"
	ErrTimeout      ErrorKind = "timeout"
	ErrParse        ErrorKind = "parse_error"
	ErrCancelled    ErrorKind = "cancelled"
	ErrNoPipeline   ErrorKind = "no_pipeline"
)

// ProcessingError is the per-input failure record. Exactly one is produced
// for a failed input, by the stage where it first failed.
type ProcessingError struct {
	Exc       string    `json:"exc"`
	Traceback []string  `json:"traceback"`
	File      string    `json:"file"`
	Kind      ErrorKind `json:"kind"`
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.File, e.Exc, e.Kind)
}

// NewProcessingError builds a failure record for a file, capturing the
// current call stack as formatted frames.
func NewProcessingError(kind ErrorKind, file string, err error) *ProcessingError {
	return &ProcessingError{
		Exc:       err.Error(),
		Traceback: captureFrames(3),
		File:      file,
		Kind:      kind,
	}
}

// KindedError carries an explicit ErrorKind through a stage's error return,
// so the executor can classify the failure it materializes.
type KindedError struct {
	Kind ErrorKind
	Err  error
}

func (e *KindedError) Error() string { return e.Err.Error() }
func (e *KindedError) Unwrap() error { return e.Err }

// WithKind wraps err so the executor records it under the given kind.
func WithKind(kind ErrorKind, err error) error {
	return &KindedError{Kind: kind, Err: err}
}

// Externalf is shorthand for a formatted external-service error.
func Externalf(format string, args ...any) error {
	return WithKind(ErrExternal, fmt.Errorf(format, args...))
}

// Parsef is shorthand for a formatted schema-mismatch error.
func Parsef(format string, args ...any) error {
	return WithKind(ErrParse, fmt.Errorf(format, args...))
}

func captureFrames(skip int) []string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	var out []string
	for {
		frame, more := frames.Next()
		out = append(out, fmt.Sprintf("%s\n\t%s:%d", frame.Function, frame.File, frame.Line))
		if !more {
			break
		}
	}
	return out
}
