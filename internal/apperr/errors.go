// Package apperr defines the failure kinds surfaced by the ragd pipeline.
//
// Every error that crosses a package boundary is either a plain wrapped
// error (fmt.Errorf with %w) or an *Error carrying a Kind. Callers branch on
// KindOf instead of matching strings, and errors.Is still reaches the
// package-level sentinels through Unwrap.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers at the request boundary.
type Kind string

const (
	// KindInternal is the default for errors that carry no kind.
	KindInternal Kind = "internal"
	// KindConfiguration covers missing credentials and invalid settings.
	// Fatal at startup.
	KindConfiguration Kind = "configuration"
	// KindUpstream covers embedding and generative provider failures.
	KindUpstream Kind = "upstream"
	// KindValidation covers caller input that cannot be processed.
	KindValidation Kind = "validation"
	// KindUnauthorized covers unknown or missing API keys.
	KindUnauthorized Kind = "unauthorized"
)

// Error is a failure tagged with its Kind and the operation that failed.
type Error struct {
	Kind Kind   // Failure classification
	Op   string // Operation that failed (e.g. "embeddings.embed", "synthesis.generate")
	Err  error  // Underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

// Unwrap allows errors.Is and errors.As to reach the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind. A nil err yields nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Configuration tags err as a configuration failure.
func Configuration(op string, err error) error {
	return New(KindConfiguration, op, err)
}

// Upstream tags err as a provider failure.
func Upstream(op string, err error) error {
	return New(KindUpstream, op, err)
}

// Validation tags err as an input validation failure.
func Validation(op string, err error) error {
	return New(KindValidation, op, err)
}

// Unauthorized tags err as an authentication failure.
func Unauthorized(op string, err error) error {
	return New(KindUnauthorized, op, err)
}

// KindOf returns the kind of the outermost *Error in err's chain, or
// KindInternal when none is present. A nil err has no kind and returns "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
