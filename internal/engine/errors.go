package engine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure recorded in a Report.
type ErrorKind string

const (
	KindInvalidTarget      ErrorKind = "invalid_target"
	KindDNSFailure         ErrorKind = "dns_failure"
	KindProbeError         ErrorKind = "probe_error"
	KindFingerprintFailure ErrorKind = "fingerprint_failure"
	KindTLSFailure         ErrorKind = "tls_failure"
	KindTimeout            ErrorKind = "timeout"
	KindEnrichmentFailure  ErrorKind = "enrichment_failure"
)

// Sentinels for errors.Is matching by kind.
var (
	ErrInvalidTarget      = &Error{Kind: KindInvalidTarget}
	ErrDNSFailure         = &Error{Kind: KindDNSFailure}
	ErrProbe              = &Error{Kind: KindProbeError}
	ErrFingerprintFailure = &Error{Kind: KindFingerprintFailure}
	ErrTLSFailure         = &Error{Kind: KindTLSFailure}
	ErrTimeout            = &Error{Kind: KindTimeout}
	ErrEnrichmentFailure  = &Error{Kind: KindEnrichmentFailure}
)

// Error is a typed failure attached to a report section, a DNS record type
// or a single probe outcome.
type Error struct {
	Kind ErrorKind
	Op   string // what was being attempted, e.g. "MX lookup"
	Err  error
}

// NewError wraps err with a kind and operation.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports kind equality so errors.Is(err, ErrTimeout) works on any
// wrapped *Error of that kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return t.Kind == e.Kind
}

// MarshalText renders the error for JSON exporters.
func (e *Error) MarshalText() ([]byte, error) {
	return []byte(e.Error()), nil
}

// KindOf returns the kind of the first *Error found in err's tree, or ""
// when err carries none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// FindKind walks err's tree, including errors.Join branches, and returns
// the first *Error of the requested kind.
func FindKind(err error, kind ErrorKind) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok && e != nil && e.Kind == kind {
		return e
	}
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, child := range u.Unwrap() {
			if found := FindKind(child, kind); found != nil {
				return found
			}
		}
	case interface{ Unwrap() error }:
		return FindKind(u.Unwrap(), kind)
	}
	return nil
}
