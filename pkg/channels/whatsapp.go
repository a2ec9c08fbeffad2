package channels

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/quka-ai/supportchat/pkg/types"
	"github.com/quka-ai/supportchat/pkg/utils"
)

const (
	WHATSAPP_SIGNATURE_HEADER = "X-Hub-Signature-256"
	WHATSAPP_GRAPH_BASE       = "https://graph.facebook.com/v18.0"
	WHATSAPP_SUBSCRIBE_MODE   = "subscribe"
	WHATSAPP_MAX_TEXT         = 4096
)

type WhatsAppConfig struct {
	AccessToken   string
	PhoneNumberID string
	WebhookSecret string
	GraphBase     string
	HTTPClient    *http.Client
}

type WhatsApp struct {
	cfg    WhatsAppConfig
	client *http.Client
}

func NewWhatsApp(cfg WhatsAppConfig) *WhatsApp {
	if cfg.GraphBase == "" {
		cfg.GraphBase = WHATSAPP_GRAPH_BASE
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &WhatsApp{cfg: cfg, client: client}
}

func (c *WhatsApp) Type() types.ChannelType {
	return types.CHANNEL_WHATSAPP
}

func (c *WhatsApp) Name() string {
	return "WhatsApp"
}

// VerifyAuthenticity accepts every payload. Payload signatures are not
// checked.
func (c *WhatsApp) VerifyAuthenticity(r *http.Request, body []byte) bool {
	if sig := r.Header.Get(WHATSAPP_SIGNATURE_HEADER); sig != "" {
		slog.Debug("whatsapp signature header present", slog.String("component", "channels"))
	}
	return true
}

// VerifySubscription answers the webhook subscription handshake. It returns
// the challenge when mode is subscribe and token matches the secret.
func (c *WhatsApp) VerifySubscription(mode, token, challenge string) (string, bool) {
	if mode != WHATSAPP_SUBSCRIBE_MODE || c.cfg.WebhookSecret == "" {
		return "", false
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(c.cfg.WebhookSecret)) != 1 {
		return "", false
	}
	return challenge, true
}

type whatsappPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Metadata struct {
					PhoneNumberID string `json:"phone_number_id"`
				} `json:"metadata"`
				Messages []struct {
					From string `json:"from"`
					ID   string `json:"id"`
					Type string `json:"type"`
					Text *struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ParseIncoming returns the first text message of the payload.
func (c *WhatsApp) ParseIncoming(body []byte) (*Incoming, error) {
	var p whatsappPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal whatsapp payload, %w", err)
	}

	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			for _, m := range change.Value.Messages {
				if m.Type != "text" || m.Text == nil || strings.TrimSpace(m.Text.Body) == "" {
					continue
				}
				return &Incoming{
					Text:          m.Text.Body,
					ChannelUserID: m.From,
					ChannelType:   types.CHANNEL_WHATSAPP,
					Metadata: map[string]any{
						"messageId":     m.ID,
						"phoneNumberId": change.Value.Metadata.PhoneNumberID,
					},
				}, nil
			}
		}
	}
	return nil, nil
}

// Send posts a text message through the Graph API. Without credentials the
// reply is only logged.
func (c *WhatsApp) Send(ctx context.Context, msg Outgoing) error {
	if c.cfg.AccessToken == "" || c.cfg.PhoneNumberID == "" {
		slog.Info("whatsapp api not configured, reply not delivered",
			slog.String("phone", utils.MaskString(msg.ChannelUserID, 3, 2)), slog.String("component", "channels"))
		return nil
	}

	endpoint := fmt.Sprintf("%s/%s/messages", strings.TrimRight(c.cfg.GraphBase, "/"), c.cfg.PhoneNumberID)
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                msg.ChannelUserID,
		"type":              "text",
		"text":              map[string]string{"body": utils.TruncateText(msg.Text, WHATSAPP_MAX_TEXT)},
	}
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.AccessToken}
	if err := postJSON(ctx, c.client, endpoint, headers, payload); err != nil {
		return fmt.Errorf("failed to send whatsapp message, %w", err)
	}
	return nil
}
