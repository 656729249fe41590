package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Claude     ClaudeConfig     `yaml:"claude" mapstructure:"claude"`
	DeepSeek   DeepSeekConfig   `yaml:"deepseek" mapstructure:"deepseek"`
	Gateway    GatewayConfig    `yaml:"gateway" mapstructure:"gateway"`
	Routing    RoutingConfig    `yaml:"routing" mapstructure:"routing"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Export     ExportConfig     `yaml:"export" mapstructure:"export"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// GeminiConfig holds the Google Gemini API key.
type GeminiConfig struct {
	Key string `yaml:"key" mapstructure:"key"`
}

// ClaudeConfig holds the Anthropic API key.
type ClaudeConfig struct {
	Key string `yaml:"key" mapstructure:"key"`
}

// DeepSeekConfig holds the DeepSeek API key.
type DeepSeekConfig struct {
	Key string `yaml:"key" mapstructure:"key"`
}

// GatewayConfig configures provider call behavior shared by all gateways.
type GatewayConfig struct {
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// RoutingConfig points at an optional stage routing override file.
type RoutingConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// PipelineConfig configures pipeline execution behavior.
type PipelineConfig struct {
	DualMode string `yaml:"dual_mode" mapstructure:"dual_mode"`
}

// RetryConfig configures the retry policy for provider and publish calls.
// Zero fields fall back to the resilience package defaults.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff" mapstructure:"max_backoff"`
	Multiplier     float64       `yaml:"multiplier" mapstructure:"multiplier"`
}

// StoreConfig configures the run persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int    `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int    `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the job API server.
type ServerConfig struct {
	Port              int `yaml:"port" mapstructure:"port"`
	MinScenarioLength int `yaml:"min_scenario_length" mapstructure:"min_scenario_length"`
	ShutdownGraceSecs int `yaml:"shutdown_grace_secs" mapstructure:"shutdown_grace_secs"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// ExportConfig configures analysis file export.
type ExportConfig struct {
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
}

// NotionConfig holds the Notion integration token and the target database
// for published run summaries. Publishing is enabled only when both are set.
type NotionConfig struct {
	Token  string `yaml:"token" mapstructure:"token"`
	RunsDB string `yaml:"runs_db" mapstructure:"runs_db"`
}

// MonitoringConfig configures run metrics collection and alerting.
// Alerts are sent only when webhook_url is set.
type MonitoringConfig struct {
	LookbackHours         int     `yaml:"lookback_hours" mapstructure:"lookback_hours"`
	WebhookURL            string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold  float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	MinAverageScore       float64 `yaml:"min_average_score" mapstructure:"min_average_score"`
	StageFailureThreshold int     `yaml:"stage_failure_threshold" mapstructure:"stage_failure_threshold"`
	CheckIntervalSecs     int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SEFIROT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "sefirot.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.min_scenario_length", 50)
	v.SetDefault("server.shutdown_grace_secs", 30)
	v.SetDefault("batch.concurrency", 5)
	v.SetDefault("gateway.timeout_secs", 30)
	v.SetDefault("gateway.requests_per_second", 2)
	v.SetDefault("pipeline.dual_mode", "auto")
	v.SetDefault("export.output_dir", ".")
	v.SetDefault("monitoring.lookback_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.min_average_score", 55)
	v.SetDefault("monitoring.stage_failure_threshold", 3)
	v.SetDefault("monitoring.check_interval_secs", 300)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the configuration can support the given mode.
// Mode is the command family being run: analyze, batch, serve, runs, or
// metrics. All problems are reported in one error.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}

	if c.Gateway.TimeoutSecs <= 0 {
		problems = append(problems, "gateway.timeout_secs must be > 0")
	}
	if c.Gateway.RequestsPerSecond <= 0 {
		problems = append(problems, "gateway.requests_per_second must be > 0")
	}

	switch c.Pipeline.DualMode {
	case "auto", "always", "never":
	default:
		problems = append(problems, "pipeline.dual_mode must be auto, always, or never")
	}

	if (c.Notion.Token == "") != (c.Notion.RunsDB == "") {
		problems = append(problems, "notion.token and notion.runs_db must be set together")
	}

	if c.Monitoring.FailureRateThreshold < 0 || c.Monitoring.FailureRateThreshold > 1 {
		problems = append(problems, "monitoring.failure_rate_threshold must be between 0 and 1")
	}

	switch mode {
	case "analyze", "batch", "serve":
		if c.Gemini.Key == "" && c.Claude.Key == "" && c.DeepSeek.Key == "" {
			problems = append(problems, "at least one provider key is required (gemini.key, claude.key, or deepseek.key)")
		}
		if c.Export.OutputDir == "" {
			problems = append(problems, "export.output_dir is required")
		}
		if mode == "batch" && (c.Batch.Concurrency < 1 || c.Batch.Concurrency > 50) {
			problems = append(problems, "batch.concurrency must be between 1 and 50")
		}
		if mode == "serve" {
			if c.Server.Port <= 0 {
				problems = append(problems, "server.port must be > 0")
			}
			if c.Server.MinScenarioLength < 1 {
				problems = append(problems, "server.min_scenario_length must be >= 1")
			}
			if c.Server.ShutdownGraceSecs < 0 {
				problems = append(problems, "server.shutdown_grace_secs must be >= 0")
			}
		}
	case "runs":
		// Store checks above are sufficient.
	case "metrics":
		if c.Monitoring.LookbackHours <= 0 {
			problems = append(problems, "monitoring.lookback_hours must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
