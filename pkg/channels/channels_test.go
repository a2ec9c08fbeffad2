package channels

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quka-ai/supportchat/pkg/types"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry(NewWeb(), NewTelegram(TelegramConfig{}))

	c, ok := r.Get(types.CHANNEL_TELEGRAM)
	require.True(t, ok)
	assert.Equal(t, "Telegram", c.Name())

	_, ok = r.Get(types.CHANNEL_WHATSAPP)
	assert.False(t, ok)

	r.Register(NewWhatsApp(WhatsAppConfig{}))
	_, ok = r.Get(types.CHANNEL_WHATSAPP)
	assert.True(t, ok)
}

func TestWebParseIncoming(t *testing.T) {
	in, err := NewWeb().ParseIncoming([]byte(`{"message":"hi","sessionId":"s-1"}`))
	require.NoError(t, err)
	assert.Equal(t, &Incoming{Text: "hi", ChannelUserID: "s-1", ChannelType: types.CHANNEL_WEB}, in)

	in, err = NewWeb().ParseIncoming([]byte(`{"message":"hi"}`))
	require.NoError(t, err)
	assert.Nil(t, in)

	assert.NoError(t, NewWeb().Send(context.Background(), Outgoing{Text: "x"}))
}

func TestTelegramVerifyAuthenticity(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/telegram", nil)

	open := NewTelegram(TelegramConfig{})
	assert.True(t, open.VerifyAuthenticity(req, nil))

	locked := NewTelegram(TelegramConfig{WebhookSecret: "s3cret"})
	assert.False(t, locked.VerifyAuthenticity(req, nil))

	req.Header.Set("x-telegram-bot-api-secret-token", "wrong")
	assert.False(t, locked.VerifyAuthenticity(req, nil))

	req.Header.Set("x-telegram-bot-api-secret-token", "s3cret")
	assert.True(t, locked.VerifyAuthenticity(req, nil))
}

func TestTelegramParseIncoming(t *testing.T) {
	c := NewTelegram(TelegramConfig{})

	in, err := c.ParseIncoming([]byte(`{"update_id":7,"message":{"message_id":3,"from":{"id":9,"username":"ann"},"chat":{"id":12345},"text":"where is my order"}}`))
	require.NoError(t, err)
	require.NotNil(t, in)
	assert.Equal(t, "where is my order", in.Text)
	assert.Equal(t, "12345", in.ChannelUserID)
	assert.Equal(t, types.CHANNEL_TELEGRAM, in.ChannelType)
	assert.Equal(t, "ann", in.Metadata["username"])

	in, err = c.ParseIncoming([]byte(`{"update_id":8,"edited_message":{}}`))
	require.NoError(t, err)
	assert.Nil(t, in)

	_, err = c.ParseIncoming([]byte(`{`))
	assert.Error(t, err)
}

func TestTelegramSend(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewTelegram(TelegramConfig{BotToken: "TOKEN", APIBase: srv.URL})
	require.NoError(t, c.Send(context.Background(), Outgoing{Text: "On its way", ChannelUserID: "12345"}))
	assert.Equal(t, "12345", got["chat_id"])
	assert.Equal(t, "On its way", got["text"])

	// no token means log only
	assert.NoError(t, NewTelegram(TelegramConfig{APIBase: "http://127.0.0.1:1"}).Send(context.Background(), Outgoing{Text: "x"}))
}

func TestTelegramSendHidesToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false}`))
	}))
	defer srv.Close()

	err := NewTelegram(TelegramConfig{BotToken: "TOKEN", APIBase: srv.URL}).Send(context.Background(), Outgoing{Text: "x", ChannelUserID: "1"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "TOKEN")
}

func TestWhatsAppVerifySubscription(t *testing.T) {
	c := NewWhatsApp(WhatsAppConfig{WebhookSecret: "verify-me"})

	challenge, ok := c.VerifySubscription("subscribe", "verify-me", "12345")
	assert.True(t, ok)
	assert.Equal(t, "12345", challenge)

	_, ok = c.VerifySubscription("subscribe", "nope", "12345")
	assert.False(t, ok)
	_, ok = c.VerifySubscription("unsubscribe", "verify-me", "12345")
	assert.False(t, ok)

	_, ok = NewWhatsApp(WhatsAppConfig{}).VerifySubscription("subscribe", "", "1")
	assert.False(t, ok)
}

const whatsappBody = `{
	"object": "whatsapp_business_account",
	"entry": [{"id": "1", "changes": [{"field": "messages", "value": {
		"metadata": {"phone_number_id": "555"},
		"messages": [
			{"from": "15550001", "id": "wamid.1", "type": "image"},
			{"from": "15550002", "id": "wamid.2", "type": "text", "text": {"body": "Do you ship to Canada?"}}
		]
	}}]}]
}`

func TestWhatsAppParseIncoming(t *testing.T) {
	c := NewWhatsApp(WhatsAppConfig{})

	in, err := c.ParseIncoming([]byte(whatsappBody))
	require.NoError(t, err)
	require.NotNil(t, in)
	assert.Equal(t, "Do you ship to Canada?", in.Text)
	assert.Equal(t, "15550002", in.ChannelUserID)
	assert.Equal(t, types.CHANNEL_WHATSAPP, in.ChannelType)
	assert.Equal(t, "555", in.Metadata["phoneNumberId"])

	in, err = c.ParseIncoming([]byte(`{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{"statuses":[{}]}}]}]}`))
	require.NoError(t, err)
	assert.Nil(t, in)

	assert.True(t, c.VerifyAuthenticity(httptest.NewRequest(http.MethodPost, "/", nil), nil))
}

func TestWhatsAppSendRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/555/messages", r.URL.Path)
		auth = r.Header.Get("Authorization")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"messages":[{"id":"wamid.x"}]}`))
	}))
	defer srv.Close()

	c := NewWhatsApp(WhatsAppConfig{AccessToken: "tok", PhoneNumberID: "555", GraphBase: srv.URL})
	require.NoError(t, c.Send(context.Background(), Outgoing{Text: "Yes", ChannelUserID: "15550002"}))
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "Bearer tok", auth)
}

func TestWhatsAppSendDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewWhatsApp(WhatsAppConfig{AccessToken: "tok", PhoneNumberID: "555", GraphBase: srv.URL})
	assert.Error(t, c.Send(context.Background(), Outgoing{Text: "Yes", ChannelUserID: "1"}))
	assert.Equal(t, int32(1), calls.Load())
}
