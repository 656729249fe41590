package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tikun-labs/sefirot-cli/internal/config"
	"github.com/tikun-labs/sefirot-cli/internal/model"
)

func TestNewChecker_IntervalDefaultsWhenUnset(t *testing.T) {
	c := NewChecker(NewCollector(&mockStore{}), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})
	assert.Equal(t, 5*time.Minute, c.interval)

	c = NewChecker(NewCollector(&mockStore{}), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{
		CheckIntervalSecs: 90,
	})
	assert.Equal(t, 90*time.Second, c.interval)
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	checker := NewChecker(NewCollector(&mockStore{}), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{
		CheckIntervalSecs: 1,
		LookbackHours:     24,
	})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_RunReturnsImmediatelyWhenCancelled(t *testing.T) {
	checker := NewChecker(NewCollector(&mockStore{}), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}

func TestChecker_SweepSendsTriggeredAlerts(t *testing.T) {
	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		posts.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	now := time.Now().UTC()
	st := &mockStore{}
	for i := 0; i < 6; i++ {
		st.runs = append(st.runs, model.Run{
			ID:        string(rune('a' + i)),
			Status:    model.RunStatusFailed,
			CreatedAt: now.Add(-time.Hour),
		})
	}

	cfg := config.MonitoringConfig{
		LookbackHours:        24,
		FailureRateThreshold: 0.10,
		WebhookURL:           srv.URL,
	}
	checker := NewChecker(NewCollector(st), NewAlerter(cfg), cfg)

	checker.sweep(context.Background())
	assert.Equal(t, int32(1), posts.Load())
}

func TestChecker_SweepSkipsEmptyWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("webhook should not be called for an empty window")
	}))
	defer srv.Close()

	cfg := config.MonitoringConfig{
		LookbackHours:        24,
		FailureRateThreshold: 0.10,
		WebhookURL:           srv.URL,
	}
	checker := NewChecker(NewCollector(&mockStore{}), NewAlerter(cfg), cfg)

	checker.sweep(context.Background())
}
