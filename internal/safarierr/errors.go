// Package safarierr defines the closed set of error kinds the crawler
// components signal, each wrapping the underlying cause with %w so callers
// can both pattern-match with errors.Is and recover the original error.
package safarierr

import "fmt"

// Kind distinguishes the handling a caller must apply to an error: abort
// the job, record and continue, or skip a single non-fatal asset.
type Kind string

const (
	// AuthFailed means the session is no longer authenticated; the job
	// controller must abort rather than continue processing topics.
	AuthFailed Kind = "auth_failed"

	// TransportError means a request failed at the network layer
	// (timeout, connection reset). Subject to retry.
	TransportError Kind = "transport_error"

	// ParseError means a response could not be parsed into the expected
	// shape (malformed JSON, unexpected HTML in place of a manifest).
	ParseError Kind = "parse_error"

	// ValidationRejected means a discovered candidate failed the
	// relevance filter. Not fatal; the candidate is simply dropped.
	ValidationRejected Kind = "validation_rejected"

	// AssetMissing means an image or stylesheet could not be fetched
	// after retries. Not fatal to the enclosing book.
	AssetMissing Kind = "asset_missing"

	// ResumeConflict means the progress file and on-disk state disagree
	// in a way that requires operator attention.
	ResumeConflict Kind = "resume_conflict"
)

// Error is the concrete error type carried for every Kind above.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so callers
// can write errors.Is(err, safarierr.ErrAuthFailed) against the sentinel
// values below rather than comparing Kind fields by hand.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// sentinel constructs a zero-value *Error of a given kind, suitable as the
// target of an errors.Is comparison.
func sentinel(kind Kind) *Error { return &Error{Kind: kind} }

var (
	// ErrAuthFailed is the errors.Is target for an AuthFailed error.
	ErrAuthFailed = sentinel(AuthFailed)
	// ErrTransport is the errors.Is target for a TransportError.
	ErrTransport = sentinel(TransportError)
	// ErrParse is the errors.Is target for a ParseError.
	ErrParse = sentinel(ParseError)
	// ErrValidationRejected is the errors.Is target for a ValidationRejected error.
	ErrValidationRejected = sentinel(ValidationRejected)
	// ErrAssetMissing is the errors.Is target for an AssetMissing error.
	ErrAssetMissing = sentinel(AssetMissing)
	// ErrResumeConflict is the errors.Is target for a ResumeConflict error.
	ErrResumeConflict = sentinel(ResumeConflict)
)
