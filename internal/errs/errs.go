// Package errs classifies pipeline failures into the three categories the
// components act on: data errors are skipped, transient errors are retried,
// system errors are retried a small number of times and then surfaced.
package errs

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// KindUnknown is reported for errors produced outside this package.
	KindUnknown Kind = iota
	// KindData marks malformed or incomplete input. Never retried.
	KindData
	// KindTransient marks timeouts, rate limits and other short-lived
	// downstream conditions.
	KindTransient
	// KindSystem marks unexpected downstream failures.
	KindSystem
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindTransient:
		return "transient"
	case KindSystem:
		return "system"
	default:
		return "unknown"
	}
}

// Error carries a failure kind alongside the wrapped cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Data wraps err as a non-retryable data error.
func Data(op string, err error) error {
	return &Error{Kind: KindData, Op: op, Err: err}
}

// Dataf builds a data error from a format string.
func Dataf(op, format string, args ...any) error {
	return &Error{Kind: KindData, Op: op, Err: fmt.Errorf(format, args...)}
}

// Transient wraps err as a retryable transient error.
func Transient(op string, err error) error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

// System wraps err as a system error.
func System(op string, err error) error {
	return &Error{Kind: KindSystem, Op: op, Err: err}
}

// KindOf reports the classification of err, walking the wrap chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Retryable reports whether err is worth another attempt. Unclassified
// errors are treated as retryable system failures rather than silently
// dropped data.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindData:
		return false
	default:
		return true
	}
}
