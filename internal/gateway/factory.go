package gateway

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/tikun-labs/sefirot-cli/pkg/anthropic"
	"github.com/tikun-labs/sefirot-cli/pkg/deepseek"
	"github.com/tikun-labs/sefirot-cli/pkg/gemini"
)

// defaultRequestsPerSecond is the shared per-provider request rate.
const defaultRequestsPerSecond = 2

// defaultModels maps each provider to the model used when a route leaves the
// model blank.
var defaultModels = map[string]string{
	"gemini":   "gemini-2.0-flash-exp",
	"claude":   "claude-sonnet-4-20250514",
	"deepseek": "deepseek-chat",
}

// Credentials carries per-provider API keys.
type Credentials struct {
	Gemini   string
	Claude   string
	DeepSeek string
}

// Factory resolves (provider, model) pairs to gateways. Underlying clients
// are built lazily, once per provider, and all gateways of one provider
// share a rate limiter.
type Factory struct {
	creds   Credentials
	timeout time.Duration
	limit   rate.Limit

	mu       sync.Mutex
	gateways map[string]Gateway
	limiters map[string]*rate.Limiter
	gemini   gemini.Client
	claude   anthropic.Client
	deepseek deepseek.Client
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithCallTimeout sets the per-call deadline applied to every gateway.
func WithCallTimeout(d time.Duration) FactoryOption {
	return func(f *Factory) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithRateLimit sets the shared per-provider request rate.
func WithRateLimit(rps float64) FactoryOption {
	return func(f *Factory) {
		if rps > 0 {
			f.limit = rate.Limit(rps)
		}
	}
}

// WithGeminiClient presets the Gemini client, bypassing lazy construction.
func WithGeminiClient(c gemini.Client) FactoryOption {
	return func(f *Factory) { f.gemini = c }
}

// WithClaudeClient presets the Anthropic client, bypassing lazy construction.
func WithClaudeClient(c anthropic.Client) FactoryOption {
	return func(f *Factory) { f.claude = c }
}

// WithDeepSeekClient presets the DeepSeek client, bypassing lazy construction.
func WithDeepSeekClient(c deepseek.Client) FactoryOption {
	return func(f *Factory) { f.deepseek = c }
}

// NewFactory creates a Factory over the given provider credentials.
func NewFactory(creds Credentials, opts ...FactoryOption) *Factory {
	f := &Factory{
		creds:    creds,
		timeout:  DefaultTimeout,
		limit:    rate.Limit(defaultRequestsPerSecond),
		gateways: make(map[string]Gateway),
		limiters: make(map[string]*rate.Limiter),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Gateway returns the gateway for a provider/model pair, building it on
// first use. An empty model selects the provider default.
func (f *Factory) Gateway(provider, model string) (Gateway, error) {
	name := strings.ToLower(provider)
	if name == "anthropic" {
		name = "claude"
	}
	if model == "" {
		model = defaultModels[name]
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	key := name + "/" + model
	if gw, ok := f.gateways[key]; ok {
		return gw, nil
	}

	gw, err := f.build(name, model)
	if err != nil {
		return nil, err
	}
	f.gateways[key] = gw
	return gw, nil
}

func (f *Factory) build(name, model string) (Gateway, error) {
	opts := []Option{WithTimeout(f.timeout), WithLimiter(f.limiter(name))}

	switch name {
	case "gemini":
		if f.gemini == nil {
			if f.creds.Gemini == "" {
				return nil, &MissingDependencyError{Provider: "gemini"}
			}
			client, err := gemini.NewClient(context.Background(), f.creds.Gemini)
			if err != nil {
				return nil, eris.Wrap(err, "gateway: init gemini client")
			}
			f.gemini = client
		}
		return NewGemini(f.gemini, model, opts...), nil

	case "claude":
		if f.claude == nil {
			if f.creds.Claude == "" {
				return nil, &MissingDependencyError{Provider: "claude"}
			}
			f.claude = anthropic.NewClient(f.creds.Claude)
		}
		return NewClaude(f.claude, model, opts...), nil

	case "deepseek":
		if f.deepseek == nil {
			if f.creds.DeepSeek == "" {
				return nil, &MissingDependencyError{Provider: "deepseek"}
			}
			f.deepseek = deepseek.NewClient(f.creds.DeepSeek)
		}
		return NewDeepSeek(f.deepseek, model, opts...), nil

	default:
		return nil, &UnknownProviderError{Provider: name}
	}
}

// limiter returns the shared limiter for a provider, creating it on first use.
func (f *Factory) limiter(name string) *rate.Limiter {
	if l, ok := f.limiters[name]; ok {
		return l
	}
	l := rate.NewLimiter(f.limit, 1)
	f.limiters[name] = l
	return l
}
