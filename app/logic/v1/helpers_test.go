package v1_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quka-ai/supportchat/app/core"
	"github.com/quka-ai/supportchat/app/store/memstore"
	"github.com/quka-ai/supportchat/pkg/ai"
	"github.com/quka-ai/supportchat/pkg/eventbus"
)

type fakeLLM struct {
	mu      sync.Mutex
	calls   []ai.Context
	reply   func(in ai.Context) (*ai.Reply, error)
	healthy bool
}

func newFakeLLM(text string) *fakeLLM {
	return &fakeLLM{
		healthy: true,
		reply: func(ai.Context) (*ai.Reply, error) {
			return &ai.Reply{Text: text, Metadata: ai.ReplyMetadata{Model: "fake-model", Tokens: 12, ProcessingTime: 3}}, nil
		},
	}
}

func (f *fakeLLM) Provider() ai.Provider { return ai.PROVIDER_OPENAI }
func (f *fakeLLM) Model() string         { return "fake-model" }

func (f *fakeLLM) GenerateReply(_ context.Context, in ai.Context) (*ai.Reply, error) {
	f.mu.Lock()
	f.calls = append(f.calls, in)
	f.mu.Unlock()
	return f.reply(in)
}

func (f *fakeLLM) HealthCheck(context.Context) bool { return f.healthy }

func (f *fakeLLM) Calls() []ai.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ai.Context(nil), f.calls...)
}

func newTestCore(t *testing.T, llm *fakeLLM, mutate ...func(*core.CoreConfig)) (*core.Core, *memstore.Provider) {
	t.Helper()
	cfg := core.DefaultConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}
	stores := memstore.New()
	c, err := core.New(cfg, core.Components{Stores: stores, LLM: llm})
	require.NoError(t, err)
	return c, stores
}

// eventRecorder collects published events by type.
type eventRecorder struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func recordEvents(bus *eventbus.Bus) *eventRecorder {
	r := &eventRecorder{}
	for _, et := range []eventbus.EventType{
		eventbus.MESSAGE_RECEIVED,
		eventbus.MESSAGE_SENT,
		eventbus.CONVERSATION_STARTED,
		eventbus.LLM_REQUEST_FAILED,
	} {
		bus.Subscribe(et, func(_ context.Context, e eventbus.Event) error {
			r.mu.Lock()
			r.events = append(r.events, e)
			r.mu.Unlock()
			return nil
		})
	}
	return r
}

func (r *eventRecorder) Of(t eventbus.EventType) []eventbus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []eventbus.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
