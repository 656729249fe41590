package resilience

import (
	"github.com/tikun-labs/sefirot-cli/internal/config"
)

// FromRetryConfig builds a RetryConfig from application configuration,
// falling back to defaults for unset fields.
func FromRetryConfig(c config.RetryConfig) RetryConfig {
	cfg := DefaultRetryConfig()
	if c.MaxAttempts > 0 {
		cfg.MaxAttempts = c.MaxAttempts
	}
	if c.InitialBackoff > 0 {
		cfg.InitialBackoff = c.InitialBackoff
	}
	if c.MaxBackoff > 0 {
		cfg.MaxBackoff = c.MaxBackoff
	}
	if c.Multiplier > 1 {
		cfg.Multiplier = c.Multiplier
	}
	return cfg
}
