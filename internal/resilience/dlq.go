package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Error classifications for DLQ entries.
const (
	ErrorTypeTransient = "transient"
	ErrorTypeTimeout   = "timeout"
	ErrorTypePermanent = "permanent"
)

// DefaultMaxRetries is the number of re-runs a failed case gets before it
// is parked for good.
const DefaultMaxRetries = 3

// DLQEntry records a batch case whose pipeline run failed. Entries are
// appended to a .failed.jsonl file next to the batch output so failed
// cases can be re-run later.
type DLQEntry struct {
	ID           string    `json:"id"`
	CaseName     string    `json:"case_name"`
	Scenario     string    `json:"scenario"`
	FailedStage  string    `json:"failed_stage,omitempty"`
	Error        string    `json:"error"`
	ErrorType    string    `json:"error_type"`
	RetryCount   int       `json:"retry_count"`
	MaxRetries   int       `json:"max_retries"`
	NextRetryAt  time.Time `json:"next_retry_at"`
	CreatedAt    time.Time `json:"created_at"`
	LastFailedAt time.Time `json:"last_failed_at"`
}

// NewDLQEntry creates an entry for a failed case.
func NewDLQEntry(caseName, scenario, failedStage string, err error) *DLQEntry {
	now := time.Now().UTC()
	return &DLQEntry{
		ID:           uuid.NewString(),
		CaseName:     caseName,
		Scenario:     scenario,
		FailedStage:  failedStage,
		Error:        err.Error(),
		ErrorType:    ClassifyError(err),
		RetryCount:   0,
		MaxRetries:   DefaultMaxRetries,
		NextRetryAt:  now.Add(nextRetryDelay(0)),
		CreatedAt:    now,
		LastFailedAt: now,
	}
}

// RecordFailure bumps the retry count after another failed attempt and
// schedules the next retry window.
func (e *DLQEntry) RecordFailure(err error) {
	now := time.Now().UTC()
	e.RetryCount++
	e.Error = err.Error()
	e.ErrorType = ClassifyError(err)
	e.LastFailedAt = now
	e.NextRetryAt = now.Add(nextRetryDelay(e.RetryCount))
}

// CanRetry reports whether the entry is eligible for another run: retries
// remain, the error is not permanent, and the retry window has opened.
func (e *DLQEntry) CanRetry() bool {
	if e.RetryCount >= e.MaxRetries {
		return false
	}
	if e.ErrorType == ErrorTypePermanent {
		return false
	}
	return !time.Now().UTC().Before(e.NextRetryAt)
}

// nextRetryDelay doubles per retry: 1m, 2m, 4m... capped at 30m.
func nextRetryDelay(retryCount int) time.Duration {
	d := time.Minute << uint(retryCount)
	if d > 30*time.Minute {
		d = 30 * time.Minute
	}
	return d
}

// ClassifyError buckets an error for retry eligibility.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}
	if IsTransient(err) {
		return ErrorTypeTransient
	}
	return ErrorTypePermanent
}

// DLQFilter selects entries when re-running failed cases.
type DLQFilter struct {
	// ErrorType limits to a single classification when set.
	ErrorType string
	// FailedStage limits to cases that failed at a given stage when set.
	FailedStage string
	// RetryableOnly keeps only entries whose CanRetry is true.
	RetryableOnly bool
}

// Matches reports whether the entry passes the filter.
func (f DLQFilter) Matches(e *DLQEntry) bool {
	if f.ErrorType != "" && e.ErrorType != f.ErrorType {
		return false
	}
	if f.FailedStage != "" && e.FailedStage != f.FailedStage {
		return false
	}
	if f.RetryableOnly && !e.CanRetry() {
		return false
	}
	return true
}
