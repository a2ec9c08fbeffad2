package service

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/quka-ai/supportchat/app/core"
	v1 "github.com/quka-ai/supportchat/app/logic/v1"
	"github.com/quka-ai/supportchat/cmd/service/handler"
	"github.com/quka-ai/supportchat/cmd/service/middleware"
	"github.com/quka-ai/supportchat/pkg/metrics"
	"github.com/quka-ai/supportchat/pkg/ratelimit"
)

func policy(scope string, l core.Limit) ratelimit.Policy {
	return ratelimit.Policy{Scope: scope, Max: l.Max, Window: l.Window}
}

// continuesConversation peeks at the json body without consuming it. Only
// requests naming a stored conversation skip the new conversation limit;
// unknown session ids start a new one and are charged.
func continuesConversation(appCore *core.Core) func(c *gin.Context) bool {
	return func(c *gin.Context) bool {
		if c.Request.Body == nil {
			return false
		}
		raw, err := io.ReadAll(c.Request.Body)
		c.Request.Body = io.NopCloser(io.MultiReader(bytes.NewReader(raw), c.Request.Body))
		if err != nil {
			return false
		}
		var body struct {
			SessionID string `json:"sessionId"`
		}
		if json.Unmarshal(raw, &body) != nil || body.SessionID == "" {
			return false
		}
		exists, err := v1.NewConversationLogic(c, appCore).ConversationExists(body.SessionID)
		if err != nil {
			slog.Warn("failed to look up session for rate limiting", slog.String("session_id", body.SessionID), slog.Any("error", err))
			return false
		}
		return exists
	}
}

func setupHttpRouter(s *handler.HttpSrv) {
	cfg := s.Core.Cfg().RateLimit

	s.Engine.Use(middleware.Recovery(), middleware.RequestID(), middleware.I18n(), middleware.Metrics(s.Core))
	s.Engine.Use(middleware.Cors, middleware.BodyLimit(middleware.MAX_BODY_BYTES))

	s.Engine.GET("/metrics", metrics.DefaultExportHandler())

	s.Engine.Use(middleware.UseLimit(s.Core, policy(ratelimit.SCOPE_GLOBAL, cfg.Global), nil))

	s.Engine.GET("/health", s.Health)

	chat := s.Engine.Group("/chat")
	{
		chat.POST("/message",
			middleware.UseLimit(s.Core, policy(ratelimit.SCOPE_CHAT, cfg.Chat), nil),
			middleware.UseLimit(s.Core, policy(ratelimit.SCOPE_CONVERSATION, cfg.Conversation), continuesConversation(s.Core)),
			s.SendMessage)
		chat.GET("/conversation/:id", s.GetConversation)
	}

	webhooks := s.Engine.Group("/webhooks")
	{
		webhooks.POST("/telegram", s.TelegramWebhook)
		webhooks.POST("/whatsapp", s.WhatsAppWebhook)
		webhooks.GET("/whatsapp", s.WhatsAppVerify)
	}

	admin := s.Engine.Group("/admin")
	admin.Use(middleware.AdminToken(s.Core))
	{
		knowledge := admin.Group("/knowledge")
		knowledge.GET("", s.ListKnowledge)
		knowledge.POST("", s.CreateKnowledge)
		knowledge.GET("/preview", s.PreviewKnowledge)
		knowledge.GET("/:id", s.GetKnowledge)
		knowledge.PUT("/:id", s.UpdateKnowledge)
		knowledge.DELETE("/:id", s.DeleteKnowledge)
	}
}

func NewRouter(appCore *core.Core) *gin.Engine {
	httpSrv := &handler.HttpSrv{
		Core:   appCore,
		Engine: appCore.HttpEngine(),
	}
	setupHttpRouter(httpSrv)
	return httpSrv.Engine
}
