package resilience

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsTransient_TransientError(t *testing.T) {
	base := errors.New("status 503")
	te := NewTransientError(base, 503)
	if !IsTransient(te) {
		t.Error("TransientError should be transient")
	}
	wrapped := fmt.Errorf("gemini: generate content: %w", te)
	if !IsTransient(wrapped) {
		t.Error("wrapped TransientError should be transient")
	}
	if !errors.Is(wrapped, base) {
		t.Error("TransientError should unwrap to base error")
	}
}

func TestIsTransient_Patterns(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"read tcp 10.0.0.1:443: connection reset by peer", true},
		{"write: broken pipe", true},
		{"dial tcp: i/o timeout", true},
		{"429 rate limit exceeded, retry after 20s", true},
		{"Too Many Requests", true},
		{"RESOURCE_EXHAUSTED: quota exceeded", true},
		{"model is overloaded, please try again", true},
		{"503 service unavailable", true},
		{"unexpected EOF", true},
		{"invalid api key", false},
		{"400 bad request: unknown model", false},
		{"parse response: unexpected end of JSON input", false},
	}
	for _, tt := range tests {
		if got := IsTransient(errors.New(tt.msg)); got != tt.want {
			t.Errorf("IsTransient(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}

func TestIsTransient_Nil(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil error should not be transient")
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("status %d should be transient", code)
		}
	}
	for _, code := range []int{200, 201, 301, 400, 401, 403, 404, 422} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("status %d should not be transient", code)
		}
	}
}
