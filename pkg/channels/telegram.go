package channels

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/quka-ai/supportchat/pkg/types"
	"github.com/quka-ai/supportchat/pkg/utils"
)

const (
	TELEGRAM_SECRET_HEADER = "X-Telegram-Bot-Api-Secret-Token"
	TELEGRAM_API_BASE      = "https://api.telegram.org"
	// TELEGRAM_MAX_TEXT is the Bot API limit for one message.
	TELEGRAM_MAX_TEXT = 4096
)

type TelegramConfig struct {
	BotToken      string
	WebhookSecret string
	APIBase       string
	HTTPClient    *http.Client
}

type Telegram struct {
	cfg    TelegramConfig
	client *http.Client
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	if cfg.APIBase == "" {
		cfg.APIBase = TELEGRAM_API_BASE
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Telegram{cfg: cfg, client: client}
}

func (c *Telegram) Type() types.ChannelType {
	return types.CHANNEL_TELEGRAM
}

func (c *Telegram) Name() string {
	return "Telegram"
}

// VerifyAuthenticity compares the secret token header with the configured
// webhook secret. Without a configured secret every request is accepted.
func (c *Telegram) VerifyAuthenticity(r *http.Request, body []byte) bool {
	if c.cfg.WebhookSecret == "" {
		return true
	}
	got := r.Header.Get(TELEGRAM_SECRET_HEADER)
	return subtle.ConstantTimeCompare([]byte(got), []byte(c.cfg.WebhookSecret)) == 1
}

type telegramUpdate struct {
	UpdateID int64            `json:"update_id"`
	Message  *telegramMessage `json:"message"`
}

type telegramMessage struct {
	MessageID int64 `json:"message_id"`
	From      *struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	} `json:"from"`
	Chat struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	Text string `json:"text"`
}

func (c *Telegram) ParseIncoming(body []byte) (*Incoming, error) {
	var update telegramUpdate
	if err := json.Unmarshal(body, &update); err != nil {
		return nil, fmt.Errorf("failed to unmarshal telegram update, %w", err)
	}
	if update.Message == nil || strings.TrimSpace(update.Message.Text) == "" {
		return nil, nil
	}

	metadata := map[string]any{
		"updateId":  update.UpdateID,
		"messageId": update.Message.MessageID,
	}
	if update.Message.From != nil && update.Message.From.Username != "" {
		metadata["username"] = update.Message.From.Username
	}

	return &Incoming{
		Text:          update.Message.Text,
		ChannelUserID: strconv.FormatInt(update.Message.Chat.ID, 10),
		ChannelType:   types.CHANNEL_TELEGRAM,
		Metadata:      metadata,
	}, nil
}

// Send posts to the Bot API sendMessage method. Without a bot token the
// reply is only logged.
func (c *Telegram) Send(ctx context.Context, msg Outgoing) error {
	if c.cfg.BotToken == "" {
		slog.Info("telegram bot token not configured, reply not delivered",
			slog.String("channel_user_id", msg.ChannelUserID), slog.String("component", "channels"))
		return nil
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(c.cfg.APIBase, "/"), c.cfg.BotToken)
	payload := map[string]any{
		"chat_id": msg.ChannelUserID,
		"text":    utils.TruncateText(msg.Text, TELEGRAM_MAX_TEXT),
	}
	if err := postJSON(ctx, c.client, endpoint, nil, payload); err != nil {
		// the endpoint embeds the bot token
		return fmt.Errorf("failed to send telegram message, %s", strings.ReplaceAll(err.Error(), c.cfg.BotToken, "***"))
	}
	return nil
}
