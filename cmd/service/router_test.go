package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quka-ai/supportchat/app/core"
	v1 "github.com/quka-ai/supportchat/app/logic/v1"
	"github.com/quka-ai/supportchat/app/response"
	"github.com/quka-ai/supportchat/app/store/memstore"
	"github.com/quka-ai/supportchat/cmd/service/middleware"
	"github.com/quka-ai/supportchat/pkg/ai"
	"github.com/quka-ai/supportchat/pkg/errors"
	"github.com/quka-ai/supportchat/pkg/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubLLM struct {
	mu      sync.Mutex
	calls   int
	healthy bool
}

func (s *stubLLM) Provider() ai.Provider { return ai.PROVIDER_OPENAI }
func (s *stubLLM) Model() string         { return "stub-model" }

func (s *stubLLM) GenerateReply(context.Context, ai.Context) (*ai.Reply, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return &ai.Reply{Text: "hi there", Metadata: ai.ReplyMetadata{Model: "stub-model", Tokens: 5}}, nil
}

func (s *stubLLM) HealthCheck(context.Context) bool { return s.healthy }

func (s *stubLLM) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type testServer struct {
	engine *gin.Engine
	llm    *stubLLM
	stores *memstore.Provider
}

func newTestServer(t *testing.T, mutate ...func(*core.CoreConfig)) *testServer {
	t.Helper()
	cfg := core.DefaultConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}
	llm := &stubLLM{healthy: true}
	stores := memstore.New()
	appCore, err := core.New(cfg, core.Components{Stores: stores, LLM: llm})
	require.NoError(t, err)
	return &testServer{engine: NewRouter(appCore), llm: llm, stores: stores}
}

func (s *testServer) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestSendMessageStartsConversation(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/chat/message", gin.H{"message": "hello"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(middleware.REQUEST_ID_HEADER))
	assert.Equal(t, "20", w.Header().Get(middleware.RATELIMIT_LIMIT_HEADER))

	res := decode[v1.SendMessageResponse](t, w)
	assert.Equal(t, "hi there", res.Reply)
	assert.NoError(t, uuid.Validate(res.SessionID))

	w = s.do(http.MethodPost, "/chat/message", gin.H{"message": "again", "sessionId": res.SessionID}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, res.SessionID, decode[v1.SendMessageResponse](t, w).SessionID)

	w = s.do(http.MethodGet, "/chat/conversation/"+res.SessionID, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[v1.ConversationHistory](t, w)
	require.Len(t, history.Messages, 4)
	assert.Equal(t, types.MESSAGE_SENDER_USER, history.Messages[0].Sender)
	assert.Equal(t, "hello", history.Messages[0].Text)
	assert.Equal(t, types.MESSAGE_SENDER_AI, history.Messages[3].Sender)
}

func TestSendMessageValidation(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/chat/message", gin.H{"message": "hi", "sessionId": "not-a-uuid"}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[response.ErrorBody](t, w)
	assert.Equal(t, string(errors.KindValidation), body.Error)
	assert.NotNil(t, body.Details)

	w = s.do(http.MethodPost, "/chat/message", gin.H{"message": "   "}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(errors.KindValidation), decode[response.ErrorBody](t, w).Error)

	w = s.do(http.MethodPost, "/chat/message", "{broken", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	assert.Zero(t, s.llm.Calls())
}

func TestGetConversationErrors(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/chat/conversation/abc", nil, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(errors.KindValidation), decode[response.ErrorBody](t, w).Error)

	w = s.do(http.MethodGet, "/chat/conversation/"+uuid.NewString(), nil, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(errors.KindNotFound), decode[response.ErrorBody](t, w).Error)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, v1.HEALTH_STATUS_HEALTHY, decode[v1.HealthReport](t, w).Status)

	s.llm.mu.Lock()
	s.llm.healthy = false
	s.llm.mu.Unlock()

	w = s.do(http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	report := decode[v1.HealthReport](t, w)
	assert.Equal(t, v1.HEALTH_STATUS_UNHEALTHY, report.Status)
	assert.Equal(t, v1.SERVICE_DOWN, report.Services.LLM)
}

func TestChatRateLimit(t *testing.T) {
	s := newTestServer(t, func(cfg *core.CoreConfig) {
		cfg.RateLimit.Chat = core.Limit{Max: 2, Window: time.Hour}
	})

	first := decode[v1.SendMessageResponse](t, s.do(http.MethodPost, "/chat/message", gin.H{"message": "one"}, nil))
	w := s.do(http.MethodPost, "/chat/message", gin.H{"message": "two", "sessionId": first.SessionID}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get(middleware.RATELIMIT_REMAINING_HEADER))

	w = s.do(http.MethodPost, "/chat/message", gin.H{"message": "three", "sessionId": first.SessionID}, nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RETRY_AFTER_HEADER))
	assert.NotEmpty(t, w.Header().Get(middleware.RATELIMIT_RESET_HEADER))
	assert.Equal(t, string(errors.KindRateLimit), decode[response.ErrorBody](t, w).Error)
	assert.Equal(t, 2, s.llm.Calls())
}

func TestConversationRateLimitOnlyCountsNewConversations(t *testing.T) {
	s := newTestServer(t, func(cfg *core.CoreConfig) {
		cfg.RateLimit.Conversation = core.Limit{Max: 1, Window: time.Hour}
	})

	w := s.do(http.MethodPost, "/chat/message", gin.H{"message": "one"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	sessionID := decode[v1.SendMessageResponse](t, w).SessionID

	w = s.do(http.MethodPost, "/chat/message", gin.H{"message": "two"}, nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	w = s.do(http.MethodPost, "/chat/message", gin.H{"message": "three", "sessionId": sessionID}, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestConversationRateLimitChargesUnknownSessionIDs(t *testing.T) {
	s := newTestServer(t, func(cfg *core.CoreConfig) {
		cfg.RateLimit.Conversation = core.Limit{Max: 1, Window: time.Hour}
	})

	w := s.do(http.MethodPost, "/chat/message", gin.H{"message": "one", "sessionId": uuid.NewString()}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sessionID := decode[v1.SendMessageResponse](t, w).SessionID

	// a fresh id per request must not dodge the limit
	w = s.do(http.MethodPost, "/chat/message", gin.H{"message": "two", "sessionId": uuid.NewString()}, nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	w = s.do(http.MethodPost, "/chat/message", gin.H{"message": "three", "sessionId": "not-a-uuid"}, nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	w = s.do(http.MethodPost, "/chat/message", gin.H{"message": "four", "sessionId": sessionID}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, sessionID, decode[v1.SendMessageResponse](t, w).SessionID)
}

func TestRequestBodyLimit(t *testing.T) {
	s := newTestServer(t)
	big := gin.H{"message": strings.Repeat("a", int(middleware.MAX_BODY_BYTES))}

	w := s.do(http.MethodPost, "/chat/message", big, nil)
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	body := decode[response.ErrorBody](t, w)
	assert.Equal(t, string(errors.KindValidation), body.Error)
	assert.Equal(t, "Request body too large", body.Message)

	// without a declared length the cap trips while reading
	raw, _ := json.Marshal(big)
	req := httptest.NewRequest(http.MethodPost, "/chat/message", io.MultiReader(bytes.NewReader(raw)))
	req.Header.Set("Content-Type", "application/json")
	require.EqualValues(t, -1, req.ContentLength)
	w = httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code, w.Body.String())
	assert.Zero(t, s.llm.Calls())

	w = s.do(http.MethodPost, "/chat/message", gin.H{"message": "small enough"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestTelegramWebhook(t *testing.T) {
	s := newTestServer(t, func(cfg *core.CoreConfig) {
		cfg.Channels.Telegram.WebhookSecret = "s3cret"
	})
	secret := map[string]string{"X-Telegram-Bot-Api-Secret-Token": "s3cret"}

	w := s.do(http.MethodPost, "/webhooks/telegram", gin.H{"update_id": 1}, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Unauthorized"}`, w.Body.String())

	w = s.do(http.MethodPost, "/webhooks/telegram", gin.H{"update_id": 1}, secret)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
	assert.Zero(t, s.llm.Calls())

	update := gin.H{
		"update_id": 2,
		"message": gin.H{
			"message_id": 7,
			"chat":       gin.H{"id": 42},
			"text":       "where is my order?",
		},
	}
	w = s.do(http.MethodPost, "/webhooks/telegram", update, secret)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
	assert.Equal(t, 1, s.llm.Calls())

	w = s.do(http.MethodPost, "/webhooks/telegram", "not json", secret)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWhatsAppVerify(t *testing.T) {
	s := newTestServer(t, func(cfg *core.CoreConfig) {
		cfg.Channels.WhatsApp.WebhookSecret = "verify-me"
	})

	w := s.do(http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=1158201444", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1158201444", w.Body.String())

	w = s.do(http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=1", nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/webhooks/whatsapp", gin.H{"object": "whatsapp_business_account", "entry": []any{}}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestAdminDisabledWithoutToken(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/admin/knowledge", nil, map[string]string{middleware.ADMIN_TOKEN_HEADER: "anything"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminKnowledgeCRUD(t *testing.T) {
	s := newTestServer(t, func(cfg *core.CoreConfig) {
		cfg.Security.AdminToken = "admin-token"
	})
	auth := map[string]string{middleware.ADMIN_TOKEN_HEADER: "admin-token"}

	w := s.do(http.MethodGet, "/admin/knowledge", nil, map[string]string{middleware.ADMIN_TOKEN_HEADER: "nope"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", decode[response.ErrorBody](t, w).Error)

	w = s.do(http.MethodPost, "/admin/knowledge", gin.H{"category": "shipping"}, auth)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/admin/knowledge", gin.H{"category": "shipping", "title": "Rates", "content": "Free above $50", "priority": 3}, auth)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	entry := decode[types.KnowledgeEntry](t, w)
	assert.True(t, entry.IsActive)

	w = s.do(http.MethodGet, "/admin/knowledge", nil, auth)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		List  []types.KnowledgeEntry `json:"list"`
		Total uint64                 `json:"total"`
	}](t, w)
	assert.Equal(t, uint64(1), list.Total)
	require.Len(t, list.List, 1)

	w = s.do(http.MethodPut, "/admin/knowledge/"+entry.ID, gin.H{"content": "Free above $75"}, auth)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Free above $75", decode[types.KnowledgeEntry](t, w).Content)

	w = s.do(http.MethodGet, "/admin/knowledge/preview", nil, auth)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Free above $75")

	w = s.do(http.MethodDelete, "/admin/knowledge/"+entry.ID, nil, auth)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(http.MethodGet, "/admin/knowledge/"+entry.ID, nil, auth)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCorsPreflight(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodOptions, "/chat/message", nil, map[string]string{"Origin": "https://shop.example.com"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/health", nil, map[string]string{middleware.REQUEST_ID_HEADER: "req-123"})
	assert.Equal(t, "req-123", w.Header().Get(middleware.REQUEST_ID_HEADER))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(http.MethodGet, "/health", nil, nil)

	w := s.do(http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "# TYPE"), fmt.Sprintf("unexpected body: %.200s", w.Body.String()))
}
