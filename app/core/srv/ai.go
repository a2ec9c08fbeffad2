package srv

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/quka-ai/supportchat/pkg/ai"
	"github.com/quka-ai/supportchat/pkg/ai/gemini"
	"github.com/quka-ai/supportchat/pkg/ai/openai"
	"github.com/quka-ai/supportchat/pkg/errors"
	"github.com/quka-ai/supportchat/pkg/i18n"
)

const (
	DEFAULT_MAX_TOKENS  = 500
	DEFAULT_TEMPERATURE = 0.7
	DEFAULT_TIMEOUT     = 30 * time.Second

	DEFAULT_ANTHROPIC_MODEL = "claude-3-sonnet-20240229"
)

type AIConfig struct {
	Provider    string        `toml:"provider"`
	Token       string        `toml:"token"`
	Model       string        `toml:"model"`
	BaseURL     string        `toml:"base_url"`
	MaxTokens   int           `toml:"max_tokens"`
	Temperature float32       `toml:"temperature"`
	Timeout     time.Duration `toml:"timeout"`
	// RPS throttles outbound calls, 0 means unlimited.
	RPS float64 `toml:"rps"`

	OpenRouter OpenRouterConfig `toml:"openrouter"`
}

type OpenRouterConfig struct {
	Referer string `toml:"referer"`
	Title   string `toml:"title"`
}

// LLMRecorder receives llm call observations.
type LLMRecorder interface {
	ObserveLLMRequest(provider string, d time.Duration)
	LLMErrorInc(provider, reason string)
}

// NewDriver builds the backend selected by cfg.Provider.
func NewDriver(ctx context.Context, cfg AIConfig) (ai.Driver, error) {
	provider, err := ai.ParseProvider(cfg.Provider)
	if err != nil {
		return nil, errors.Configuration("srv.NewDriver.ParseProvider", i18n.ERROR_LLM_UNKNOWN_PROVIDER, err)
	}
	if cfg.Token == "" {
		return nil, errors.Configuration("srv.NewDriver", i18n.ERROR_LLM_MISSING_API_KEY,
			fmt.Errorf("api key for %s is empty", provider))
	}

	switch provider {
	case ai.PROVIDER_OPENAI:
		return openai.New(openai.Config{
			Provider: provider,
			Token:    cfg.Token,
			BaseURL:  cfg.BaseURL,
			Model:    cfg.Model,
			Probe:    true,
		}), nil
	case ai.PROVIDER_OPENROUTER:
		referer := cfg.OpenRouter.Referer
		if referer == "" {
			referer = ai.DEFAULT_OPENROUTER_REFERER
		}
		title := cfg.OpenRouter.Title
		if title == "" {
			title = ai.DEFAULT_OPENROUTER_TITLE
		}
		return openai.New(openai.Config{
			Provider: provider,
			Token:    cfg.Token,
			BaseURL:  orDefault(cfg.BaseURL, ai.OPENROUTER_BASE_URL),
			Model:    cfg.Model,
			Headers: map[string]string{
				"HTTP-Referer": referer,
				"X-Title":      title,
			},
		}), nil
	case ai.PROVIDER_ANTHROPIC:
		return openai.New(openai.Config{
			Provider: provider,
			Token:    cfg.Token,
			BaseURL:  orDefault(cfg.BaseURL, ai.ANTHROPIC_BASE_URL),
			Model:    orDefault(cfg.Model, DEFAULT_ANTHROPIC_MODEL),
			Probe:    true,
		}), nil
	case ai.PROVIDER_GEMINI:
		driver, err := gemini.New(ctx, cfg.Token, cfg.Model)
		if err != nil {
			return nil, errors.Configuration("srv.NewDriver.gemini", i18n.ERROR_CONFIGURATION, err)
		}
		return driver, nil
	}
	return nil, errors.Configuration("srv.NewDriver", i18n.ERROR_LLM_UNKNOWN_PROVIDER, fmt.Errorf("unsupported provider %s", provider))
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Gateway is the single entry point for reply generation. It owns the
// prompt assembly, the outbound throttle and error mapping; tool calls are
// returned to the caller untouched.
type Gateway struct {
	driver      ai.Driver
	maxTokens   int
	temperature float32
	timeout     time.Duration
	throttle    *rate.Limiter
	recorder    LLMRecorder
}

type GatewayOption func(*Gateway)

func WithRecorder(r LLMRecorder) GatewayOption {
	return func(g *Gateway) {
		g.recorder = r
	}
}

func NewGateway(ctx context.Context, cfg AIConfig, opts ...GatewayOption) (*Gateway, error) {
	driver, err := NewDriver(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewGatewayWithDriver(driver, cfg, opts...), nil
}

// NewGatewayWithDriver wraps an already built driver; cfg supplies the
// generation defaults only.
func NewGatewayWithDriver(driver ai.Driver, cfg AIConfig, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		driver:      driver,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
	}
	if g.maxTokens <= 0 {
		g.maxTokens = DEFAULT_MAX_TOKENS
	}
	if g.temperature <= 0 {
		g.temperature = DEFAULT_TEMPERATURE
	}
	if g.timeout <= 0 {
		g.timeout = DEFAULT_TIMEOUT
	}
	if cfg.RPS > 0 {
		g.throttle = rate.NewLimiter(rate.Limit(cfg.RPS), max(1, int(cfg.RPS)))
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) Provider() ai.Provider {
	return g.driver.Provider()
}

func (g *Gateway) Model() string {
	return g.driver.Model()
}

func (g *Gateway) GenerateReply(ctx context.Context, in ai.Context) (*ai.Reply, error) {
	provider := g.driver.Provider().String()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if g.throttle != nil {
		if err := g.throttle.Wait(ctx); err != nil {
			return nil, g.fail(in.ConversationID, ai.NewProviderError(g.driver.Provider(), ai.REASON_TIMEOUT, err))
		}
	}

	req := &ai.Request{
		System:      ai.BuildSystemPrompt(in.Knowledge),
		Messages:    in.Messages,
		Tools:       in.Tools,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	}

	start := time.Now()
	reply, err := g.driver.GenerateReply(ctx, req)
	elapsed := time.Since(start)
	if g.recorder != nil {
		g.recorder.ObserveLLMRequest(provider, elapsed)
	}
	if err != nil {
		return nil, g.fail(in.ConversationID, err)
	}

	if reply.Metadata.Model == "" {
		reply.Metadata.Model = g.driver.Model()
	}
	reply.Metadata.ProcessingTime = elapsed.Milliseconds()

	slog.Debug("llm reply generated",
		slog.String("component", "gateway"),
		slog.String("provider", provider),
		slog.String("conversation_id", in.ConversationID),
		slog.Int("tokens", reply.Metadata.Tokens),
		slog.Int("tool_calls", len(reply.ToolCalls)),
		slog.Int64("duration_ms", elapsed.Milliseconds()))
	return reply, nil
}

func (g *Gateway) fail(conversationID string, err error) error {
	reason := ai.ReasonOf(err)
	if g.recorder != nil {
		g.recorder.LLMErrorInc(g.driver.Provider().String(), string(reason))
	}
	slog.Error("llm request failed",
		slog.String("component", "gateway"),
		slog.String("provider", g.driver.Provider().String()),
		slog.String("conversation_id", conversationID),
		slog.String("reason", string(reason)),
		slog.String("error", err.Error()))
	return ai.MapError("Gateway.GenerateReply", err)
}

// HealthCheck reports whether the provider looks usable. It never returns
// an error; any failure counts as unhealthy.
func (g *Gateway) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.driver.HealthCheck(ctx); err != nil {
		slog.Warn("llm health check failed",
			slog.String("component", "gateway"),
			slog.String("provider", g.driver.Provider().String()),
			slog.String("error", err.Error()))
		return false
	}
	return true
}

// Close releases the driver's client when it holds one.
func (g *Gateway) Close() error {
	if closer, ok := g.driver.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
