package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/quka-ai/supportchat/pkg/safe"
)

type EventType string

const (
	MESSAGE_RECEIVED     EventType = "MESSAGE_RECEIVED"
	MESSAGE_SENT         EventType = "MESSAGE_SENT"
	CONVERSATION_STARTED EventType = "CONVERSATION_STARTED"
	LLM_REQUEST_FAILED   EventType = "LLM_REQUEST_FAILED"
)

type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

type MessageReceivedPayload struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	Text           string `json:"text"`
	Sender         string `json:"sender"`
}

type MessageSentPayload struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	Text           string `json:"text"`
	ProcessingTime int64  `json:"processingTime"`
}

type ConversationStartedPayload struct {
	ConversationID string `json:"conversationId"`
}

type RequestFailedPayload struct {
	ConversationID string `json:"conversationId"`
	Error          string `json:"error"`
}

func NewEvent(t EventType, payload any) Event {
	return Event{Type: t, Timestamp: time.Now(), Payload: payload}
}

type Handler func(ctx context.Context, event Event) error

// FailureRecorder is told about every handler that errored or panicked.
type FailureRecorder interface {
	EventHandlerErrorInc(event string)
}

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is an in-process publish/subscribe hub. Publish fans out to every
// subscriber concurrently and returns once all of them finished.
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[EventType][]subscription
	recorder FailureRecorder
}

func New() *Bus {
	return &Bus{
		handlers: make(map[EventType][]subscription),
	}
}

func (b *Bus) SetFailureRecorder(r FailureRecorder) {
	b.recorder = r
}

// Subscribe registers handler for t. The returned func removes it again
// and is safe to call more than once.
func (b *Bus) Subscribe(t EventType, handler Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[t] = append(b.handlers[t], subscription{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.handlers[t]
			for i, s := range subs {
				if s.id == id {
					b.handlers[t] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
			if len(b.handlers[t]) == 0 {
				delete(b.handlers, t)
			}
		})
	}
}

// Publish delivers event to a snapshot of the current subscribers. Handler
// errors and panics are logged and never reach the publisher.
func (b *Bus) Publish(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	subs := append([]subscription(nil), b.handlers[event.Type]...)
	b.mu.RUnlock()

	if len(subs) == 0 {
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(subs))
	for _, s := range subs {
		go func(h Handler) {
			defer wg.Done()
			err := safe.Call("eventbus."+string(event.Type), func() error {
				return h(ctx, event)
			})
			if err != nil {
				slog.Error("event handler failed",
					slog.String("event", string(event.Type)),
					slog.String("error", err.Error()),
					slog.String("component", "eventbus"))
				if b.recorder != nil {
					b.recorder.EventHandlerErrorInc(string(event.Type))
				}
			}
		}(s.handler)
	}
	wg.Wait()
}

// HandlerCount reports how many handlers listen on t.
func (b *Bus) HandlerCount(t EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[t])
}

// Clear drops every subscription.
func (b *Bus) Clear() {
	b.mu.Lock()
	b.handlers = make(map[EventType][]subscription)
	b.mu.Unlock()
}

// RegisterLogging subscribes a structured log line for every event type.
func RegisterLogging(b *Bus) {
	for _, t := range []EventType{MESSAGE_RECEIVED, MESSAGE_SENT, CONVERSATION_STARTED, LLM_REQUEST_FAILED} {
		b.Subscribe(t, func(ctx context.Context, event Event) error {
			level := slog.LevelInfo
			if event.Type == LLM_REQUEST_FAILED {
				level = slog.LevelWarn
			}
			slog.Log(ctx, level, "event published",
				slog.String("event", string(event.Type)),
				slog.Time("timestamp", event.Timestamp),
				slog.Any("payload", event.Payload))
			return nil
		})
	}
}
