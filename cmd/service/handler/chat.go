package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	v1 "github.com/quka-ai/supportchat/app/logic/v1"
	"github.com/quka-ai/supportchat/app/response"
	"github.com/quka-ai/supportchat/pkg/errors"
	"github.com/quka-ai/supportchat/pkg/i18n"
	"github.com/quka-ai/supportchat/pkg/types"
	"github.com/quka-ai/supportchat/pkg/utils"
)

type SendMessageRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId" binding:"omitempty,uuid"`
}

func (s *HttpSrv) SendMessage(c *gin.Context) {
	var (
		err error
		req SendMessageRequest
	)
	if err = utils.BindArgsWithGin(c, &req); err != nil {
		response.APIError(c, err)
		return
	}

	res, err := v1.NewChatLogic(c, s.Core).SendMessage(v1.SendMessageRequest{
		Message:   req.Message,
		SessionID: req.SessionID,
		Channel:   types.CHANNEL_WEB,
	})
	if err != nil {
		response.APIError(c, err)
		return
	}

	response.APISuccess(c, res)
}

func (s *HttpSrv) GetConversation(c *gin.Context) {
	id := c.Param("id")
	if uuid.Validate(id) != nil {
		response.APIError(c, errors.Validation("api.GetConversation", i18n.ERROR_INVALID_SESSION_ID).
			WithDetails([]utils.FieldError{{Field: "id", Message: "id must be a valid UUID"}}))
		return
	}

	history, err := v1.NewChatLogic(c, s.Core).GetConversationHistory(id)
	if err != nil {
		response.APIError(c, err)
		return
	}

	response.APISuccess(c, history)
}
