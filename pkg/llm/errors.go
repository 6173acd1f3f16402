package llm

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindTransient Kind = "UPSTREAM_TRANSIENT"
	KindRejected  Kind = "UPSTREAM_REJECTED"
	KindExhausted Kind = "UPSTREAM_EXHAUSTED"
)

// ErrStreamInterrupted marks a failure after at least one fragment was delivered.
var ErrStreamInterrupted = errors.New("upstream stream interrupted after first fragment")

// StatusError is returned by providers when the upstream answered with a
// non-success HTTP status.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Message)
}

// Error is what the Invoker returns for every upstream failure.
type Error struct {
	Kind     Kind
	Status   int
	Message  string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s after %d attempt(s): status %d: %s", e.Kind, e.Attempts, e.Status, e.Message)
	}
	return fmt.Sprintf("%s after %d attempt(s): %s", e.Kind, e.Attempts, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// classify decides whether a provider error may be retried.
func classify(err error) (kind Kind, status int) {
	var se *StatusError
	if errors.As(err, &se) {
		if se.Status >= http.StatusInternalServerError {
			return KindTransient, se.Status
		}
		return KindRejected, se.Status
	}
	// Anything without a status is a transport failure: timeout, reset, EOF
	return KindTransient, 0
}
