package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tikun-labs/sefirot-cli/pkg/anthropic"
	"github.com/tikun-labs/sefirot-cli/pkg/deepseek"
	"github.com/tikun-labs/sefirot-cli/pkg/gemini"
)

// DefaultTimeout bounds a single provider call. The bound is per call, not
// per run, so one slow call cannot stall longer than this.
const DefaultTimeout = 30 * time.Second

// maxOutputTokens caps response length for every provider.
const maxOutputTokens = 4096

// Gateway sends one prompt to one provider/model pair and returns the raw
// response text. Gateways never retry; retry is stage-level policy.
type Gateway interface {
	Generate(ctx context.Context, prompt string, temperature float64) (string, error)
	Model() string
}

// Option configures a gateway wrapper.
type Option func(*settings)

type settings struct {
	timeout time.Duration
	limiter *rate.Limiter
}

func newSettings(opts ...Option) settings {
	s := settings{
		timeout: DefaultTimeout,
		limiter: rate.NewLimiter(rate.Inf, 0),
	}
	for _, o := range opts {
		o(&s)
	}
	return s
}

// WithTimeout overrides the per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLimiter installs a request rate limiter, shared across all gateways of
// one provider.
func WithLimiter(l *rate.Limiter) Option {
	return func(s *settings) {
		if l != nil {
			s.limiter = l
		}
	}
}

// classify converts a raw client failure into the gateway error taxonomy.
func classify(ctx context.Context, provider, model string, timeout time.Duration, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ProviderTimeoutError{Provider: provider, Model: model, Timeout: timeout}
	}
	return &ProviderError{Provider: provider, Model: model, Err: err}
}

// --- Gemini ---

type geminiGateway struct {
	client gemini.Client
	model  string
	settings
}

// NewGemini wraps a Gemini client as a Gateway for the given model.
func NewGemini(client gemini.Client, model string, opts ...Option) Gateway {
	return &geminiGateway{
		client:   client,
		model:    model,
		settings: newSettings(opts...),
	}
}

func (g *geminiGateway) Model() string { return g.model }

func (g *geminiGateway) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", &ProviderError{Provider: "gemini", Model: g.model, Err: err}
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.GenerateText(callCtx, gemini.GenerateRequest{
		Model:       g.model,
		Prompt:      prompt,
		Temperature: &temperature,
		MaxTokens:   maxOutputTokens,
	})
	if err != nil {
		return "", classify(callCtx, "gemini", g.model, g.timeout, err)
	}
	if resp.Text == "" {
		return "", &ProviderError{Provider: "gemini", Model: g.model, Err: eris.New("empty response")}
	}

	zap.L().Debug("gemini generate",
		zap.String("model", g.model),
		zap.Int32("input_tokens", resp.Usage.InputTokens),
		zap.Int32("output_tokens", resp.Usage.OutputTokens),
	)
	return resp.Text, nil
}

// --- Claude ---

type claudeGateway struct {
	client anthropic.Client
	model  string
	settings
}

// NewClaude wraps an Anthropic client as a Gateway for the given model.
func NewClaude(client anthropic.Client, model string, opts ...Option) Gateway {
	return &claudeGateway{
		client:   client,
		model:    model,
		settings: newSettings(opts...),
	}
}

func (g *claudeGateway) Model() string { return g.model }

func (g *claudeGateway) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", &ProviderError{Provider: "claude", Model: g.model, Err: err}
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.CreateMessage(callCtx, anthropic.MessageRequest{
		Model:       g.model,
		MaxTokens:   maxOutputTokens,
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temperature,
	})
	if err != nil {
		return "", classify(callCtx, "claude", g.model, g.timeout, err)
	}

	text := resp.Text()
	if text == "" {
		return "", &ProviderError{Provider: "claude", Model: g.model, Err: eris.New("empty response")}
	}

	zap.L().Debug("claude generate",
		zap.String("model", g.model),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
		zap.Float64("estimated_cost_usd", resp.Usage.EstimateCost(g.model)),
	)
	return text, nil
}

// --- DeepSeek ---

type deepseekGateway struct {
	client deepseek.Client
	model  string
	settings
}

// NewDeepSeek wraps a DeepSeek client as a Gateway for the given model.
func NewDeepSeek(client deepseek.Client, model string, opts ...Option) Gateway {
	return &deepseekGateway{
		client:   client,
		model:    model,
		settings: newSettings(opts...),
	}
}

func (g *deepseekGateway) Model() string { return g.model }

func (g *deepseekGateway) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", &ProviderError{Provider: "deepseek", Model: g.model, Err: err}
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	maxTokens := maxOutputTokens
	resp, err := g.client.ChatCompletion(callCtx, deepseek.ChatCompletionRequest{
		Model:       g.model,
		Messages:    []deepseek.Message{{Role: "user", Content: prompt}},
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return "", classify(callCtx, "deepseek", g.model, g.timeout, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", &ProviderError{Provider: "deepseek", Model: g.model, Err: eris.New("empty response")}
	}

	zap.L().Debug("deepseek generate",
		zap.String("model", g.model),
		zap.Int("input_tokens", resp.Usage.PromptTokens),
		zap.Int("output_tokens", resp.Usage.CompletionTokens),
	)
	return resp.Choices[0].Message.Content, nil
}
