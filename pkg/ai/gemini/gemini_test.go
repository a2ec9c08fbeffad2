package gemini

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/quka-ai/supportchat/pkg/ai"
	"github.com/quka-ai/supportchat/pkg/testutils"
	"github.com/quka-ai/supportchat/pkg/types"
)

func TestSplitHistory(t *testing.T) {
	history, last := splitHistory(&ai.Request{Messages: []types.ContextMessage{
		{Sender: types.MESSAGE_SENDER_USER, Text: "hi"},
		{Sender: types.MESSAGE_SENDER_AI, Text: "hello"},
		{Sender: types.MESSAGE_SENDER_USER, Text: "returns?"},
	}})

	require.Len(t, history, 2)
	assert.Equal(t, roleUser, history[0].Role)
	assert.Equal(t, roleModel, history[1].Role)
	assert.Equal(t, []genai.Part{genai.Text("returns?")}, last.Parts)
}

func TestParseResponse(t *testing.T) {
	reply, err := parseResponse(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			FinishReason: genai.FinishReasonStop,
			Content: &genai.Content{Parts: []genai.Part{
				genai.Text("Let me check "),
				genai.Text("that."),
				genai.FunctionCall{Name: "track_order", Args: map[string]any{"orderId": "A1"}},
			}},
		}},
		UsageMetadata: &genai.UsageMetadata{TotalTokenCount: 33},
	})
	require.NoError(t, err)
	assert.Equal(t, "Let me check that.", reply.Text)
	assert.Equal(t, 33, reply.Metadata.Tokens)
	require.Len(t, reply.ToolCalls, 1)
	assert.Equal(t, ai.ToolCall{ID: "call_1", Name: "track_order", Arguments: `{"orderId":"A1"}`}, reply.ToolCalls[0])

	_, err = parseResponse(&genai.GenerateContentResponse{})
	assert.Error(t, err)
}

func TestObjectSchema(t *testing.T) {
	s := objectSchema(map[string]*schema.ParameterInfo{
		"cartTotal": {Type: schema.Number, Required: true},
		"state":     {Type: schema.String, Desc: "state or province"},
	})
	assert.Equal(t, genai.TypeObject, s.Type)
	assert.Equal(t, []string{"cartTotal"}, s.Required)
	assert.Equal(t, genai.TypeNumber, s.Properties["cartTotal"].Type)
	assert.Equal(t, "state or province", s.Properties["state"].Description)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ai.REASON_QUOTA, classify(status.Error(codes.ResourceExhausted, "Quota exceeded for model")))
	assert.Equal(t, ai.REASON_RATE_LIMIT, classify(status.Error(codes.ResourceExhausted, "slow down")))
	assert.Equal(t, ai.REASON_AUTH, classify(status.Error(codes.InvalidArgument, "API key not valid")))
	assert.Equal(t, ai.REASON_MODEL_NOT_FOUND, classify(status.Error(codes.NotFound, "models/x is not found")))
	assert.Equal(t, ai.REASON_UNAVAILABLE, classify(status.Error(codes.Unavailable, "try later")))
	assert.Equal(t, ai.REASON_AUTH, classify(&googleapi.Error{Code: 403, Message: "denied"}))
	assert.Equal(t, ai.REASON_QUOTA, classify(&googleapi.Error{Code: 429, Message: "Quota exhausted"}))
	assert.Equal(t, ai.REASON_UNKNOWN, classify(errors.New("odd")))
}

func TestGenerateReplyLive(t *testing.T) {
	token := testutils.RequireEnv(t, "GEMINI_API_KEY")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	d, err := New(ctx, token, "")
	require.NoError(t, err)
	defer d.Close()

	reply, err := d.GenerateReply(ctx, &ai.Request{
		System:    ai.BuildSystemPrompt("No specific knowledge base available."),
		Messages:  []types.ContextMessage{{Sender: types.MESSAGE_SENDER_USER, Text: "Say hello in one word."}},
		MaxTokens: 20,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, reply.Text)
}
