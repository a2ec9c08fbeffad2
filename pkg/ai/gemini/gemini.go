package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/google/generative-ai-go/genai"
	"github.com/samber/lo"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/quka-ai/supportchat/pkg/ai"
	"github.com/quka-ai/supportchat/pkg/types"
)

const (
	NAME = "gemini"

	DEFAULT_MODEL = "gemini-1.5-pro-latest"

	roleUser  = "user"
	roleModel = "model"
)

type Driver struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, token, model string) (*Driver, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(token))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client, %w", err)
	}
	if model == "" {
		model = DEFAULT_MODEL
	}

	return &Driver{
		client: client,
		model:  model,
	}, nil
}

func (s *Driver) Provider() ai.Provider {
	return ai.PROVIDER_GEMINI
}

func (s *Driver) Model() string {
	return s.model
}

func (s *Driver) Close() error {
	return s.client.Close()
}

func (s *Driver) GenerateReply(ctx context.Context, req *ai.Request) (*ai.Reply, error) {
	if len(req.Messages) == 0 {
		return nil, ai.NewProviderError(ai.PROVIDER_GEMINI, ai.REASON_UNKNOWN, errors.New("no messages to send"))
	}

	model := s.client.GenerativeModel(s.model)
	model.SystemInstruction = genai.NewUserContent(genai.Text(req.System))
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	model.SetTemperature(req.Temperature)
	if len(req.Tools) > 0 {
		model.Tools = []*genai.Tool{{FunctionDeclarations: buildFunctions(req.Tools)}}
	}

	history, last := splitHistory(req)
	cs := model.StartChat()
	cs.History = history

	slog.Debug("GenerateReply", slog.String("driver", NAME), slog.String("model", s.model), slog.Int("history", len(history)))

	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, ai.NewProviderError(ai.PROVIDER_GEMINI, classify(err), err)
	}

	reply, err := parseResponse(resp)
	if err != nil {
		return nil, ai.NewProviderError(ai.PROVIDER_GEMINI, ai.REASON_UNKNOWN, err)
	}
	reply.Metadata.Model = s.model
	return reply, nil
}

// HealthCheck only confirms the client was configured.
func (s *Driver) HealthCheck(ctx context.Context) error {
	if s.client == nil {
		return errors.New("gemini client is not configured")
	}
	return nil
}

// splitHistory turns the request messages into chat history plus the
// content of the final turn that gets sent.
func splitHistory(req *ai.Request) ([]*genai.Content, *genai.Content) {
	contents := lo.Map(req.Messages, func(item types.ContextMessage, _ int) *genai.Content {
		return &genai.Content{
			Role:  lo.If(ai.IsUserRole(item.Sender), roleUser).Else(roleModel),
			Parts: []genai.Part{genai.Text(item.Text)},
		}
	})
	return contents[:len(contents)-1], contents[len(contents)-1]
}

func parseResponse(resp *genai.GenerateContentResponse) (*ai.Reply, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("empty response content")
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason != genai.FinishReasonStop && candidate.FinishReason != genai.FinishReasonUnspecified {
		slog.Warn("GenerateReply, ai finished without stop", slog.String("reason", candidate.FinishReason.String()), slog.String("driver", NAME))
	}

	reply := &ai.Reply{}
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			text.WriteString(string(p))
		case genai.FunctionCall:
			args, err := json.Marshal(p.Args)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal function call args, %w", err)
			}
			reply.ToolCalls = append(reply.ToolCalls, ai.ToolCall{
				ID:        fmt.Sprintf("call_%d", len(reply.ToolCalls)+1),
				Name:      p.Name,
				Arguments: string(args),
			})
		}
	}
	reply.Text = text.String()

	if resp.UsageMetadata != nil {
		reply.Metadata.Tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return reply, nil
}

func buildFunctions(defs []ai.ToolDefinition) []*genai.FunctionDeclaration {
	return lo.Map(defs, func(item ai.ToolDefinition, _ int) *genai.FunctionDeclaration {
		return &genai.FunctionDeclaration{
			Name:        item.Name,
			Description: item.Description,
			Parameters:  objectSchema(item.Parameters),
		}
	})
}

func objectSchema(params map[string]*schema.ParameterInfo) *genai.Schema {
	s := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(params)),
	}
	for name, p := range params {
		if p == nil {
			continue
		}
		s.Properties[name] = paramSchema(p)
		if p.Required {
			s.Required = append(s.Required, name)
		}
	}
	return s
}

func paramSchema(p *schema.ParameterInfo) *genai.Schema {
	s := &genai.Schema{
		Description: p.Desc,
		Enum:        p.Enum,
	}
	switch p.Type {
	case schema.Number:
		s.Type = genai.TypeNumber
	case schema.Integer:
		s.Type = genai.TypeInteger
	case schema.Boolean:
		s.Type = genai.TypeBoolean
	case schema.Array:
		s.Type = genai.TypeArray
		if p.ElemInfo != nil {
			s.Items = paramSchema(p.ElemInfo)
		}
	case schema.Object:
		sub := objectSchema(p.SubParams)
		sub.Description = p.Desc
		return sub
	default:
		s.Type = genai.TypeString
	}
	return s
}

func classify(err error) ai.Reason {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		if gErr.Code == 429 && strings.Contains(strings.ToLower(gErr.Message), "quota") {
			return ai.REASON_QUOTA
		}
		if r, ok := ai.ReasonForStatus(gErr.Code); ok {
			return r
		}
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown && st.Code() != codes.OK {
		msg := strings.ToLower(st.Message())
		switch st.Code() {
		case codes.ResourceExhausted:
			if strings.Contains(msg, "quota") {
				return ai.REASON_QUOTA
			}
			return ai.REASON_RATE_LIMIT
		case codes.Unauthenticated, codes.PermissionDenied:
			return ai.REASON_AUTH
		case codes.NotFound:
			return ai.REASON_MODEL_NOT_FOUND
		case codes.Unavailable:
			return ai.REASON_UNAVAILABLE
		case codes.DeadlineExceeded:
			return ai.REASON_TIMEOUT
		case codes.InvalidArgument:
			if strings.Contains(msg, "api key") {
				return ai.REASON_AUTH
			}
			if strings.Contains(msg, "token") {
				return ai.REASON_CONTEXT_LENGTH
			}
		}
	}
	return ai.ClassifyError(err)
}
