package docker

import (
	"context"
	"errors"

	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
)

// The adapter classifies every error it returns into one of three
// kinds so callers (the reconciliation loops) can decide whether an
// observation is an absence, a retryable hiccup, or a real failure,
// without needing to know anything about HTTP or the engine API.
type kind int

const (
	kindNotFound kind = iota
	kindTransient
	kindPermanent
)

type classifiedError struct {
	kind kind
	err  error
}

func (e *classifiedError) Error() string { return e.err.Error() }
func (e *classifiedError) Unwrap() error { return e.err }

func wrapNotFound(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{kind: kindNotFound, err: err}
}

func wrapTransient(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{kind: kindTransient, err: err}
}

func wrapPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{kind: kindPermanent, err: err}
}

// IsNotFound reports whether err represents an observed absence — a
// node, service, or task that no longer exists. Loops treat this as
// "skip", never as a failure.
func IsNotFound(err error) bool {
	var ce *classifiedError
	return errors.As(err, &ce) && ce.kind == kindNotFound
}

// IsTransient reports whether err is a timeout, 5xx, or version
// conflict worth retrying.
func IsTransient(err error) bool {
	var ce *classifiedError
	return errors.As(err, &ce) && ce.kind == kindTransient
}

// IsPermanent reports whether err should be logged and otherwise
// ignored by the current pass.
func IsPermanent(err error) bool {
	var ce *classifiedError
	return errors.As(err, &ce) && ce.kind == kindPermanent
}

// classify turns a raw error from the Docker Engine API client into
// one of NotFound/Transient/Permanent. The engine client wraps HTTP
// responses into errdefs-compatible errors (NotFound/Conflict/
// Unavailable/... marker interfaces) rather than exposing a status
// code directly, so classification goes through client.IsErrNotFound
// and the errdefs predicates instead of inspecting a status.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return wrapTransient(err)
	}

	switch {
	case client.IsErrNotFound(err):
		return wrapNotFound(err)
	case errdefs.IsConflict(err), errdefs.IsUnavailable(err), errdefs.IsSystem(err), errdefs.IsDeadline(err), errdefs.IsCancelled(err):
		return wrapTransient(err)
	default:
		return wrapPermanent(err)
	}
}
