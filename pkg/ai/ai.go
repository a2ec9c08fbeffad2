package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/quka-ai/supportchat/pkg/types"
)

type Provider string

const (
	PROVIDER_OPENAI     Provider = "openai"
	PROVIDER_OPENROUTER Provider = "openrouter"
	PROVIDER_ANTHROPIC  Provider = "anthropic"
	PROVIDER_GEMINI     Provider = "gemini"
)

const (
	OPENROUTER_BASE_URL = "https://openrouter.ai/api/v1"
	ANTHROPIC_BASE_URL  = "https://api.anthropic.com/v1/"

	DEFAULT_OPENROUTER_REFERER = "https://localhost"
	DEFAULT_OPENROUTER_TITLE   = "Customer Support Agent"
)

func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case PROVIDER_OPENAI, PROVIDER_OPENROUTER, PROVIDER_ANTHROPIC, PROVIDER_GEMINI:
		return p, nil
	}
	return "", fmt.Errorf("unknown llm provider %q", s)
}

func (p Provider) String() string {
	return string(p)
}

// Driver is one llm backend. Implementations translate Request into the
// provider's wire format and return errors as *ProviderError.
type Driver interface {
	Provider() Provider
	Model() string
	GenerateReply(ctx context.Context, req *Request) (*Reply, error)
	HealthCheck(ctx context.Context) error
}

// Request is a fully built completion call.
type Request struct {
	System      string
	Messages    []types.ContextMessage
	Tools       []ToolDefinition
	MaxTokens   int
	Temperature float32
}

// Context is what the orchestrator hands to the gateway for one turn.
type Context struct {
	ConversationID string
	Messages       []types.ContextMessage
	Knowledge      string
	Tools          []ToolDefinition
}

type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type ReplyMetadata struct {
	Model          string `json:"model"`
	Tokens         int    `json:"tokens"`
	ProcessingTime int64  `json:"processingTime"`
}

type Reply struct {
	Text      string        `json:"text"`
	ToolCalls []ToolCall    `json:"toolCalls,omitempty"`
	Metadata  ReplyMetadata `json:"metadata"`
}

// ToolDefinition describes a callable tool in provider neutral terms.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]*schema.ParameterInfo
}

// JSONSchema renders the tool parameters as an object schema.
func (d ToolDefinition) JSONSchema() jsonschema.Definition {
	return paramsToDefinition(d.Parameters)
}

func paramsToDefinition(params map[string]*schema.ParameterInfo) jsonschema.Definition {
	def := jsonschema.Definition{
		Type:       jsonschema.Object,
		Properties: make(map[string]jsonschema.Definition, len(params)),
	}
	for name, p := range params {
		if p == nil {
			continue
		}
		def.Properties[name] = paramToDefinition(p)
		if p.Required {
			def.Required = append(def.Required, name)
		}
	}
	sort.Strings(def.Required)
	return def
}

func paramToDefinition(p *schema.ParameterInfo) jsonschema.Definition {
	d := jsonschema.Definition{
		Type:        jsonschema.DataType(p.Type),
		Description: p.Desc,
		Enum:        p.Enum,
	}
	switch p.Type {
	case schema.Array:
		if p.ElemInfo != nil {
			item := paramToDefinition(p.ElemInfo)
			d.Items = &item
		}
	case schema.Object:
		sub := paramsToDefinition(p.SubParams)
		d.Properties = sub.Properties
		d.Required = sub.Required
	}
	return d
}

// IsUserRole reports whether a history entry is sent with the user role.
// Everything that is not from the customer is replayed as assistant.
func IsUserRole(sender types.MessageSender) bool {
	return sender == types.MESSAGE_SENDER_USER
}
