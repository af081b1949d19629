// ABOUTME: Synchronous in-process event hub. Subscription lists are keyed by
// ABOUTME: event name and iterated in subscription order on publish.

// Package events carries engine notifications between components without
// hidden dispatch: handlers run synchronously on the publishing goroutine.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bthornemail/automata-converse/internal/conversation"
)

// Event names published by the engine.
const (
	ConversationCreated = "conversation.created"
	ConversationCleared = "conversation.cleared"
	TurnAnswered        = "turn.answered"
	TurnClarification   = "turn.clarification"
	TopicSwitched       = "topic.switched"
	ContextImported     = "context.imported"
)

// Event is one engine notification. Turn is set for turn.* events, Topic for
// topic.switched.
type Event struct {
	Name           string             `json:"name"`
	ConversationID string             `json:"conversation_id"`
	Turn           *conversation.Turn `json:"turn,omitempty"`
	Topic          string             `json:"topic,omitempty"`
	Timestamp      time.Time          `json:"timestamp"`
}

// Handler receives published events. Handlers run synchronously; a slow
// handler delays the publisher, not other conversations.
type Handler func(Event)

type subscription struct {
	id      string
	handler Handler
}

// Hub holds the subscription lists. Safe for concurrent use.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string][]subscription
	logger *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[string][]subscription),
		logger: logger.With("component", "events"),
	}
}

// Subscribe registers a handler for one event name and returns an
// unsubscribe function. Unsubscribing twice is a no-op.
func (h *Hub) Subscribe(name string, handler Handler) func() {
	sub := subscription{id: uuid.New().String(), handler: handler}

	h.mu.Lock()
	h.subs[name] = append(h.subs[name], sub)
	h.mu.Unlock()

	h.logger.Debug("subscriber added", "event", name, "sub_id", sub.id)

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		list := h.subs[name]
		for i, s := range list {
			if s.id == sub.id {
				h.subs[name] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(h.subs[name]) == 0 {
			delete(h.subs, name)
		}
	}
}

// Publish invokes every handler subscribed to the event's name, in
// subscription order. The list is copied before dispatch so handlers may
// subscribe or unsubscribe without deadlocking.
func (h *Hub) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	h.mu.RLock()
	list := h.subs[evt.Name]
	targets := make([]Handler, len(list))
	for i, s := range list {
		targets[i] = s.handler
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}
	h.logger.Debug("publishing event", "event", evt.Name, "conversation_id", evt.ConversationID, "subscribers", len(targets))
	for _, handler := range targets {
		handler(evt)
	}
}
