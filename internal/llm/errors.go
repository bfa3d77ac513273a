package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind classifies collaborator failures by how the pipeline reacts.
type Kind int

const (
	// KindTransient failures (timeouts, rate limits, 5xx) are retried.
	KindTransient Kind = iota
	// KindMalformed responses could not be interpreted; retried.
	KindMalformed
	// KindAuth covers bad credentials and exhausted quota; aborts the run.
	KindAuth
	// KindRejected requests will not succeed on retry; the group fails.
	KindRejected
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindMalformed:
		return "malformed"
	case KindAuth:
		return "auth"
	case KindRejected:
		return "rejected"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels matched by errors.Is against *Error.
var (
	ErrTransient = errors.New("transient collaborator failure")
	ErrMalformed = errors.New("malformed collaborator response")
	ErrAuth      = errors.New("collaborator authentication or quota failure")
	ErrRejected  = errors.New("collaborator rejected request")
)

// Error is a classified collaborator failure.
type Error struct {
	Kind     Kind
	Provider string
	Status   int
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Kind == KindTransient
	case ErrMalformed:
		return e.Kind == KindMalformed
	case ErrAuth:
		return e.Kind == KindAuth
	case ErrRejected:
		return e.Kind == KindRejected
	}
	return false
}

// Malformed wraps a response interpretation failure.
func Malformed(provider string, err error) *Error {
	return &Error{Kind: KindMalformed, Provider: provider, Err: err}
}

// Retryable reports whether err should be retried.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrMalformed)
}

// KindOf returns the kind of a classified error and false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// classify wraps a raw provider error. status is the HTTP status when the
// SDK exposed one, 0 otherwise.
func classify(provider string, status int, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Kind: kindFor(status, err), Provider: provider, Status: status, Err: err}
}

func kindFor(status int, err error) Kind {
	msg := strings.ToLower(err.Error())
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 402:
		return KindAuth
	case status == 429:
		if strings.Contains(msg, "quota") || strings.Contains(msg, "billing") || strings.Contains(msg, "credit") {
			return KindAuth
		}
		return KindTransient
	case status == 408 || status == 409 || status >= 500:
		return KindTransient
	case status >= 400:
		return KindRejected
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	if strings.Contains(msg, "api key") || strings.Contains(msg, "unauthorized") || strings.Contains(msg, "permission denied") {
		return KindAuth
	}
	return KindTransient
}
