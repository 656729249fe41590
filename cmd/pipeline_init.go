package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tikun-labs/sefirot-cli/internal/gateway"
	"github.com/tikun-labs/sefirot-cli/internal/pipeline"
	"github.com/tikun-labs/sefirot-cli/internal/report"
	"github.com/tikun-labs/sefirot-cli/internal/resilience"
	"github.com/tikun-labs/sefirot-cli/internal/routing"
	"github.com/tikun-labs/sefirot-cli/internal/sefirot"
	"github.com/tikun-labs/sefirot-cli/internal/store"
	"github.com/tikun-labs/sefirot-cli/pkg/notion"
)

// analysisEnv holds the initialized store, routing table, gateway factory,
// and optional publisher needed by the analyze/batch/serve commands.
type analysisEnv struct {
	Store     store.Store
	Table     *routing.Table
	Factory   *gateway.Factory
	DualMode  sefirot.DualMode
	Publisher *report.Publisher // nil unless Notion publishing is configured
}

// Close releases resources held by the environment.
func (ae *analysisEnv) Close() {
	if ae.Store != nil {
		_ = ae.Store.Close()
	}
}

// orchestrator builds a pipeline orchestrator wired to the environment's
// store and dual mode, plus any extra options.
func (ae *analysisEnv) orchestrator(opts ...pipeline.Option) (*pipeline.Orchestrator, error) {
	base := []pipeline.Option{
		pipeline.WithStore(ae.Store),
		pipeline.WithDualMode(ae.DualMode),
	}
	return pipeline.New(ae.Table, ae.Factory, append(base, opts...)...)
}

// initAnalysis validates the config for the given command mode, then sets
// up the store, routing table, and gateway factory. Callers should defer
// env.Close().
func initAnalysis(ctx context.Context, mode string) (*analysisEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	table := routing.Defaults()
	if cfg.Routing.File != "" {
		table, err = routing.Load(cfg.Routing.File)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		zap.L().Info("routing table loaded", zap.String("file", cfg.Routing.File))
	}

	dual, err := sefirot.ParseDualMode(cfg.Pipeline.DualMode)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	factory := gateway.NewFactory(
		gateway.Credentials{
			Gemini:   cfg.Gemini.Key,
			Claude:   cfg.Claude.Key,
			DeepSeek: cfg.DeepSeek.Key,
		},
		gateway.WithCallTimeout(time.Duration(cfg.Gateway.TimeoutSecs)*time.Second),
		gateway.WithRateLimit(cfg.Gateway.RequestsPerSecond),
	)

	var publisher *report.Publisher
	if cfg.Notion.Token != "" && cfg.Notion.RunsDB != "" {
		notionClient := notion.NewClient(cfg.Notion.Token)
		publisher = report.NewPublisher(notionClient, cfg.Notion.RunsDB,
			report.WithRetry(resilience.FromRetryConfig(cfg.Retry)))
		zap.L().Info("notion publishing enabled")
	}

	return &analysisEnv{
		Store:     st,
		Table:     table,
		Factory:   factory,
		DualMode:  dual,
		Publisher: publisher,
	}, nil
}

// initStore opens the configured run store.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.Path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: int32(cfg.Store.MaxConns),
			MinConns: int32(cfg.Store.MinConns),
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
