// Package beanerr defines the error kinds surfaced by the mapping engine.
//
// Compile-time problems are ConfigError and abort stream creation. Runtime
// problems during reading are reported per record through the reader's error
// handler: a TypeConversionError for a single field that failed to parse, an
// UnidentifiedRecordError when no record definition matched, and an
// OccurrenceError when a group's min/max occurrences were violated. Writers
// raise WriterError. All kinds wrap their cause and work with errors.As.
package beanerr

import (
	"errors"
	"fmt"
)

// ErrNotSupported is returned by operations a component intentionally does
// not implement, such as formatting on one-way escape handlers.
var ErrNotSupported = errors.New("operation not supported")

// ConfigError reports an invalid stream configuration. It is fatal and never
// retried.
type ConfigError struct {
	Stream string
	Node   string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("invalid configuration for stream %q at %q: %v", e.Stream, e.Node, e.Err)
	}
	return fmt.Sprintf("invalid configuration for stream %q: %v", e.Stream, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError wraps err with stream and node context.
func NewConfigError(stream, node string, err error) *ConfigError {
	return &ConfigError{Stream: stream, Node: node, Err: err}
}

// Configf creates a ConfigError from a format string.
func Configf(stream, node, format string, args ...any) *ConfigError {
	return &ConfigError{Stream: stream, Node: node, Err: fmt.Errorf(format, args...)}
}

// TypeConversionError reports a single field whose text failed to parse.
// The reader may continue with the next record after reporting it.
type TypeConversionError struct {
	RecordName string
	FieldName  string
	LineNumber int
	Text       string
	Err        error
}

func (e *TypeConversionError) Error() string {
	return fmt.Sprintf("record %q, field %q, line %d: cannot convert %q: %v",
		e.RecordName, e.FieldName, e.LineNumber, e.Text, e.Err)
}

func (e *TypeConversionError) Unwrap() error { return e.Err }

// UnidentifiedRecordError reports input that matched no record definition in
// the expected set.
type UnidentifiedRecordError struct {
	StreamName string
	LineNumber int
	Text       string
}

func (e *UnidentifiedRecordError) Error() string {
	return fmt.Sprintf("stream %q, line %d: unidentifiable record %q", e.StreamName, e.LineNumber, e.Text)
}

// OccurrenceError reports a record appearing out of order or outside its
// declared min/max occurrences.
type OccurrenceError struct {
	RecordName string
	LineNumber int
	Reason     string
}

func (e *OccurrenceError) Error() string {
	return fmt.Sprintf("record %q, line %d: %s", e.RecordName, e.LineNumber, e.Reason)
}

// WriterError reports an aggregate that cannot be marshalled in the current
// writer state, such as a missing identifier value.
type WriterError struct {
	RecordName string
	Err        error
}

func (e *WriterError) Error() string {
	return fmt.Sprintf("cannot marshal record %q: %v", e.RecordName, e.Err)
}

func (e *WriterError) Unwrap() error { return e.Err }
