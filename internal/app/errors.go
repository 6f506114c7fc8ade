package app

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a relay rejection so the transport layer can pick a status code.
type ErrorKind string

const (
	KindMalformed   ErrorKind = "malformed"
	KindPolicy      ErrorKind = "policy"
	KindUnavailable ErrorKind = "unavailable"
	KindLedger      ErrorKind = "ledger"
	KindRateLimited ErrorKind = "rate_limited"
)

// ErrReleaseNotConfigured is returned by ReleaseDue before any call when escrow
// release credentials are missing.
var ErrReleaseNotConfigured = errors.New("escrow release is not configured")

// RelayError is a structured relay rejection. Reason is safe to show to callers.
type RelayError struct {
	Kind    ErrorKind
	Reason  string
	Details string
	Err     error

	// RetryAfter is set in seconds for KindRateLimited.
	RetryAfter int
}

func (e *RelayError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Reason, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *RelayError) Unwrap() error {
	return e.Err
}

func malformed(reason string, err error) *RelayError {
	re := &RelayError{Kind: KindMalformed, Reason: reason, Err: err}
	if err != nil {
		re.Details = err.Error()
	}
	return re
}

func policy(reason, details string) *RelayError {
	return &RelayError{Kind: KindPolicy, Reason: reason, Details: details}
}

func ledgerFailure(reason string, err error) *RelayError {
	return &RelayError{Kind: KindLedger, Reason: reason, Details: err.Error(), Err: err}
}
