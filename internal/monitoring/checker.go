package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tikun-labs/sefirot-cli/internal/config"
)

// defaultCheckInterval applies when check_interval_secs is unset.
const defaultCheckInterval = 5 * time.Minute

// Checker drives the alert loop: collect a snapshot, evaluate thresholds,
// send whatever triggered. One sweep runs immediately at startup so an
// already-degraded pipeline is reported without waiting out the first
// interval.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	lookback  int
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  interval,
		lookback:  cfg.LookbackHours,
	}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (c *Checker) Run(ctx context.Context) {
	zap.L().Info("monitoring: alert checker started",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			zap.L().Info("monitoring: alert checker stopped")
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

// sweep runs one collect-evaluate-send cycle.
func (c *Checker) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		zap.L().Error("monitoring: collect failed", zap.Error(err))
		return
	}
	if snap.RunsTotal == 0 {
		// Thresholds over an empty window only produce noise.
		zap.L().Debug("monitoring: no runs in window, skipping evaluation")
		return
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		return
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	zap.L().Warn("monitoring: alerts triggered",
		zap.Int("triggered", len(alerts)),
		zap.Int("sent", sent),
	)
}
