package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	v1 "github.com/quka-ai/supportchat/app/logic/v1"
	"github.com/quka-ai/supportchat/app/response"
	"github.com/quka-ai/supportchat/pkg/channels"
	"github.com/quka-ai/supportchat/pkg/errors"
	"github.com/quka-ai/supportchat/pkg/i18n"
	"github.com/quka-ai/supportchat/pkg/types"
	"github.com/quka-ai/supportchat/pkg/utils"
)

func (s *HttpSrv) TelegramWebhook(c *gin.Context) {
	s.handleWebhook(c, types.CHANNEL_TELEGRAM, gin.H{"ok": true})
}

func (s *HttpSrv) WhatsAppWebhook(c *gin.Context) {
	s.handleWebhook(c, types.CHANNEL_WHATSAPP, gin.H{"status": "ok"})
}

// handleWebhook verifies and parses a platform callback, runs the message
// through the chat pipeline and pushes the reply back on the same channel.
func (s *HttpSrv) handleWebhook(c *gin.Context, channelType types.ChannelType, ack gin.H) {
	trace := "api.Webhook." + string(channelType)
	ch, ok := s.Core.Channels().Get(channelType)
	if !ok {
		response.APIError(c, errors.New(trace, i18n.ERROR_UNSUPPORTED_CHANNEL, nil).Code(http.StatusNotFound))
		return
	}

	body, err := c.GetRawData()
	if utils.IsBodyTooLarge(err) {
		response.APIError(c, utils.BodyTooLargeError(trace+".GetRawData"))
		return
	}
	if err != nil {
		response.APIError(c, errors.Validation(trace+".GetRawData", i18n.ERROR_INVALIDARGUMENT))
		return
	}

	if !ch.VerifyAuthenticity(c.Request, body) {
		slog.Warn("webhook verification failed", slog.String("channel", ch.Name()), slog.String("ip", c.ClientIP()))
		response.APIErrorWithStatus(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	incoming, err := ch.ParseIncoming(body)
	if err != nil {
		response.APIError(c, errors.Validation(trace+".ParseIncoming", i18n.ERROR_INVALIDARGUMENT).
			WithDetails([]utils.FieldError{{Field: "body", Message: err.Error()}}))
		return
	}
	if incoming == nil {
		slog.Debug("no message to process from webhook", slog.String("channel", ch.Name()))
		response.APISuccess(c, ack)
		return
	}

	slog.Info("received channel message",
		slog.String("channel", ch.Name()),
		slog.String("channel_user_id", utils.MaskString(incoming.ChannelUserID, 2, 2)))

	res, err := v1.NewChatLogic(c, s.Core).SendMessage(v1.SendMessageRequest{
		Message:       incoming.Text,
		Channel:       channelType,
		ChannelUserID: incoming.ChannelUserID,
	})
	if err != nil {
		response.APIError(c, err)
		return
	}

	if err = ch.Send(c, channels.Outgoing{Text: res.Reply, ChannelUserID: incoming.ChannelUserID}); err != nil {
		response.APIError(c, errors.New(trace+".Send", i18n.ERROR_INTERNAL, err))
		return
	}

	response.APISuccess(c, ack)
}

// WhatsAppVerify answers the Graph API subscription handshake with the
// challenge as plain text.
func (s *HttpSrv) WhatsAppVerify(c *gin.Context) {
	ch, ok := s.Core.Channels().Get(types.CHANNEL_WHATSAPP)
	wa, isWhatsApp := ch.(*channels.WhatsApp)
	if !ok || !isWhatsApp {
		c.String(http.StatusForbidden, "Forbidden")
		return
	}

	challenge, verified := wa.VerifySubscription(c.Query("hub.mode"), c.Query("hub.verify_token"), c.Query("hub.challenge"))
	if !verified {
		slog.Warn("whatsapp webhook verification failed", slog.String("ip", c.ClientIP()))
		c.String(http.StatusForbidden, "Forbidden")
		return
	}

	slog.Info("whatsapp webhook verified")
	c.String(http.StatusOK, challenge)
}
