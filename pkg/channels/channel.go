package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/quka-ai/supportchat/pkg/types"
)

// Incoming is a customer message normalised from any messaging platform.
type Incoming struct {
	Text          string            `json:"text"`
	ChannelUserID string            `json:"channelUserId"`
	ChannelType   types.ChannelType `json:"channelType"`
	Metadata      map[string]any    `json:"metadata,omitempty"`
}

// Outgoing is a reply addressed to a platform user.
type Outgoing struct {
	Text          string         `json:"text"`
	ChannelUserID string         `json:"channelUserId"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

type Channel interface {
	Type() types.ChannelType
	Name() string
	// Send delivers a reply. Channels that answer in the http response treat
	// it as a no-op.
	Send(ctx context.Context, msg Outgoing) error
	// VerifyAuthenticity reports whether a webhook request really comes from
	// the platform.
	VerifyAuthenticity(r *http.Request, body []byte) bool
	// ParseIncoming returns nil without error when the payload carries no
	// customer text, e.g. delivery receipts.
	ParseIncoming(body []byte) (*Incoming, error)
}

type Registry struct {
	mu       sync.RWMutex
	channels map[types.ChannelType]Channel
}

func NewRegistry(channels ...Channel) *Registry {
	r := &Registry{channels: make(map[types.ChannelType]Channel)}
	for _, c := range channels {
		r.Register(c)
	}
	return r
}

func (r *Registry) Register(c Channel) {
	r.mu.Lock()
	r.channels[c.Type()] = c
	r.mu.Unlock()
}

func (r *Registry) Get(t types.ChannelType) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.channels[t]
	return c, ok
}

const (
	sendAttempts = 3
	sendDelay    = 200 * time.Millisecond
)

// postJSON sends payload and retries transport failures and 5xx answers.
// Any other non 2xx status fails immediately.
func postJSON(ctx context.Context, client *http.Client, endpoint string, headers map[string]string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload, %w", err)
	}

	return retry.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
		if err != nil {
			return retry.Unrecoverable(err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to request %s: %w", endpoint, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err = fmt.Errorf("request %s failed, %s: %s", endpoint, resp.Status, string(body))
		if resp.StatusCode >= 500 {
			return err
		}
		return retry.Unrecoverable(err)
	},
		retry.Context(ctx),
		retry.Attempts(sendAttempts),
		retry.Delay(sendDelay),
		retry.LastErrorOnly(true),
	)
}
