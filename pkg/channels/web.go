package channels

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/quka-ai/supportchat/pkg/types"
)

// Web is the browser chat. Replies travel back in the http response.
type Web struct{}

func NewWeb() *Web {
	return &Web{}
}

func (c *Web) Type() types.ChannelType {
	return types.CHANNEL_WEB
}

func (c *Web) Name() string {
	return "Web Chat"
}

func (c *Web) Send(ctx context.Context, msg Outgoing) error {
	slog.Debug("web channel message prepared for response", slog.String("channel_user_id", msg.ChannelUserID), slog.String("component", "channels"))
	return nil
}

func (c *Web) VerifyAuthenticity(r *http.Request, body []byte) bool {
	return true
}

type webPayload struct {
	Message   string         `json:"message"`
	SessionID string         `json:"sessionId"`
	Metadata  map[string]any `json:"metadata"`
}

func (c *Web) ParseIncoming(body []byte) (*Incoming, error) {
	var p webPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Message) == "" || p.SessionID == "" {
		return nil, nil
	}
	return &Incoming{
		Text:          p.Message,
		ChannelUserID: p.SessionID,
		ChannelType:   types.CHANNEL_WEB,
		Metadata:      p.Metadata,
	}, nil
}
