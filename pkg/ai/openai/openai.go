package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/samber/lo"
	openai "github.com/sashabaranov/go-openai"

	"github.com/quka-ai/supportchat/pkg/ai"
)

const (
	NAME = "openai"

	DEFAULT_MODEL = openai.GPT4

	healthCheckMaxTokens = 5
)

// Config covers every backend that speaks the chat completions wire format.
type Config struct {
	Provider ai.Provider
	Token    string
	BaseURL  string
	Model    string
	// Headers are attached to every outgoing request.
	Headers map[string]string
	// Probe makes HealthCheck send a tiny completion instead of only
	// checking the configuration.
	Probe      bool
	HTTPClient *http.Client
}

type Driver struct {
	client   *openai.Client
	provider ai.Provider
	model    string
	probe    bool
}

func New(cfg Config) *Driver {
	clientCfg := openai.DefaultConfig(cfg.Token)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if len(cfg.Headers) > 0 {
		base := httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		wrapped := *httpClient
		wrapped.Transport = &headerTransport{base: base, headers: cfg.Headers}
		httpClient = &wrapped
	}
	clientCfg.HTTPClient = httpClient

	if cfg.Model == "" {
		cfg.Model = DEFAULT_MODEL
	}
	if cfg.Provider == "" {
		cfg.Provider = ai.PROVIDER_OPENAI
	}

	return &Driver{
		client:   openai.NewClientWithConfig(clientCfg),
		provider: cfg.Provider,
		model:    cfg.Model,
		probe:    cfg.Probe,
	}
}

type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

func (s *Driver) Provider() ai.Provider {
	return s.provider
}

func (s *Driver) Model() string {
	return s.model
}

func (s *Driver) GenerateReply(ctx context.Context, req *ai.Request) (*ai.Reply, error) {
	creq := openai.ChatCompletionRequest{
		Model:       s.model,
		Messages:    buildMessages(req),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if len(req.Tools) > 0 {
		creq.Tools = buildTools(req.Tools)
		creq.ToolChoice = "auto"
	}

	slog.Debug("GenerateReply", slog.String("driver", NAME), slog.String("provider", s.provider.String()),
		slog.String("model", s.model), slog.Int("messages", len(creq.Messages)))

	resp, err := s.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, ai.NewProviderError(s.provider, classify(err), err)
	}
	if len(resp.Choices) == 0 {
		return nil, ai.NewProviderError(s.provider, ai.REASON_UNKNOWN, errors.New("completion returned no choices"))
	}

	msg := resp.Choices[0].Message
	reply := &ai.Reply{
		Text: msg.Content,
		ToolCalls: lo.Map(msg.ToolCalls, func(item openai.ToolCall, _ int) ai.ToolCall {
			return ai.ToolCall{
				ID:        item.ID,
				Name:      item.Function.Name,
				Arguments: item.Function.Arguments,
			}
		}),
		Metadata: ai.ReplyMetadata{
			Model:  lo.If(resp.Model != "", resp.Model).Else(s.model),
			Tokens: resp.Usage.TotalTokens,
		},
	}
	return reply, nil
}

// HealthCheck verifies the backend is usable. Without probing it only
// confirms a client was configured.
func (s *Driver) HealthCheck(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("%s client is not configured", s.provider)
	}
	if !s.probe {
		return nil
	}

	_, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     s.model,
		MaxTokens: healthCheckMaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "Hi"},
		},
	})
	if err != nil {
		return ai.NewProviderError(s.provider, classify(err), err)
	}
	return nil
}

func buildMessages(req *ai.Request) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: req.System,
	})
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    lo.If(ai.IsUserRole(m.Sender), openai.ChatMessageRoleUser).Else(openai.ChatMessageRoleAssistant),
			Content: m.Text,
		})
	}
	return msgs
}

func buildTools(defs []ai.ToolDefinition) []openai.Tool {
	return lo.Map(defs, func(item ai.ToolDefinition, _ int) openai.Tool {
		return openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        item.Name,
				Description: item.Description,
				Parameters:  item.JSONSchema(),
			},
		}
	})
}

func classify(err error) ai.Reason {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := ""
		if apiErr.Code != nil {
			code = fmt.Sprint(apiErr.Code)
		}
		switch {
		case code == "insufficient_quota" || apiErr.Type == "insufficient_quota":
			return ai.REASON_QUOTA
		case code == "invalid_api_key":
			return ai.REASON_AUTH
		case code == "context_length_exceeded":
			return ai.REASON_CONTEXT_LENGTH
		case code == "model_not_found":
			return ai.REASON_MODEL_NOT_FOUND
		case code == "rate_limit_exceeded":
			return ai.REASON_RATE_LIMIT
		}
		if r, ok := ai.ReasonForStatus(apiErr.HTTPStatusCode); ok {
			return r
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if r, ok := ai.ReasonForStatus(reqErr.HTTPStatusCode); ok {
			return r
		}
	}
	return ai.ClassifyError(err)
}
