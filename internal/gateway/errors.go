// Package gateway abstracts heterogeneous LLM providers behind a single
// text-generation capability and repairs their loosely structured output.
package gateway

import (
	"errors"
	"fmt"
	"time"
)

// ProviderError reports a transport, auth, or API failure from a provider.
type ProviderError struct {
	Provider string
	Model    string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: provider call failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ProviderTimeoutError reports a provider call that produced no response
// within its deadline.
type ProviderTimeoutError struct {
	Provider string
	Model    string
	Timeout  time.Duration
}

func (e *ProviderTimeoutError) Error() string {
	return fmt.Sprintf("%s: no response within %s", e.Provider, e.Timeout)
}

// IsTimeout reports whether err has a ProviderTimeoutError in its chain.
func IsTimeout(err error) bool {
	var t *ProviderTimeoutError
	return errors.As(err, &t)
}

// malformedOriginalLimit bounds how much raw response text is kept for
// diagnostics.
const malformedOriginalLimit = 500

// MalformedResponseError reports model output that could not be parsed as a
// JSON object even after repair.
type MalformedResponseError struct {
	Original string
	Err      error
}

// NewMalformedResponseError builds a MalformedResponseError, truncating the
// raw response text.
func NewMalformedResponseError(raw string, err error) *MalformedResponseError {
	if len(raw) > malformedOriginalLimit {
		raw = raw[:malformedOriginalLimit]
	}
	return &MalformedResponseError{Original: raw, Err: err}
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed model response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// IsMalformedResponse reports whether err has a MalformedResponseError in
// its chain.
func IsMalformedResponse(err error) bool {
	var m *MalformedResponseError
	return errors.As(err, &m)
}

// MissingDependencyError reports a provider gateway that is required but
// has no credentials configured. Callers with a fallback (the
// dual-perspective east gateway) branch on this to degrade instead of fail.
type MissingDependencyError struct {
	Provider string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("%s gateway not configured (missing api key)", e.Provider)
}

// IsMissingDependency reports whether err has a MissingDependencyError in
// its chain.
func IsMissingDependency(err error) bool {
	var m *MissingDependencyError
	return errors.As(err, &m)
}

// UnknownStageError reports a stage identifier with no routing entry.
type UnknownStageError struct {
	Stage string
}

func (e *UnknownStageError) Error() string {
	return fmt.Sprintf("unknown stage %q", e.Stage)
}

// UnknownProviderError reports a provider identifier the factory cannot
// resolve.
type UnknownProviderError struct {
	Provider string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown provider %q (use gemini, claude, or deepseek)", e.Provider)
}
