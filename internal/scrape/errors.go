package scrape

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a job id does not exist.
	ErrJobNotFound = errors.New("scrape job not found")
	// ErrInvalidTransition is returned when a status change would move a job backwards.
	ErrInvalidTransition = errors.New("invalid job status transition")
	// ErrJobFinished is returned when a redelivered work item names a job that already finished.
	ErrJobFinished = errors.New("scrape job already finished")
	// ErrQueueClosed is returned by Dequeue after the queue shuts down.
	ErrQueueClosed = errors.New("queue closed")
	// ErrNotFound is returned by catalog lookups that match nothing.
	ErrNotFound = errors.New("record not found")
)

// ErrorKind classifies pipeline failures.
type ErrorKind string

const (
	// KindUnsupportedTarget means the URL matches no page handler.
	KindUnsupportedTarget ErrorKind = "unsupported_target"
	// KindExtractionTimeout means an expected element never appeared.
	KindExtractionTimeout ErrorKind = "extraction_timeout"
	// KindPersistence means a store write or read failed.
	KindPersistence ErrorKind = "persistence"
	// KindInfrastructure means the cache, queue or browser failed.
	KindInfrastructure ErrorKind = "infrastructure"
	// KindUnresolvedParent means a category or product had no resolvable parent row.
	KindUnresolvedParent ErrorKind = "unresolved_parent"
	// KindUnknown is reported for errors that carry no classification.
	KindUnknown ErrorKind = "unknown"
)

// Error is a classified pipeline error.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Unsupported reports a URL that no handler recognises.
func Unsupported(url string) error {
	return &Error{Kind: KindUnsupportedTarget, Op: "classify", Err: fmt.Errorf("no handler for %q", url)}
}

// ExtractionTimeout wraps a wait that exceeded its deadline.
func ExtractionTimeout(op string, err error) error {
	return newError(KindExtractionTimeout, op, err)
}

// Persistence wraps a store failure.
func Persistence(op string, err error) error {
	return newError(KindPersistence, op, err)
}

// Infrastructure wraps a cache, queue or browser failure.
func Infrastructure(op string, err error) error {
	return newError(KindInfrastructure, op, err)
}

// UnresolvedParent wraps a missing parent lookup.
func UnresolvedParent(op string, err error) error {
	return newError(KindUnresolvedParent, op, err)
}

// KindOf returns the classification of err, or KindUnknown.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether another attempt could succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch KindOf(err) {
	case KindUnsupportedTarget, KindUnresolvedParent:
		return false
	default:
		return true
	}
}
