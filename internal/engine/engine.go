// ABOUTME: Conversation engine facade: the single entry point composing the
// ABOUTME: store, parser, dialogue manager, and router for callers.

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bthornemail/automata-converse/internal/conversation"
	"github.com/bthornemail/automata-converse/internal/dialogue"
	"github.com/bthornemail/automata-converse/internal/events"
	"github.com/bthornemail/automata-converse/internal/knowledge"
)

// Reply is the answer object returned by Ask. It is always well-formed:
// intra-turn problems surface as low confidence and clarification-style
// suggestions, never as errors.
type Reply struct {
	Answer              string               `json:"answer"`
	Citations           []knowledge.Citation `json:"citations"`
	FollowUpSuggestions []string             `json:"follow_up_suggestions"`
	RelatedEntities     []string             `json:"related_entities"`
	Confidence          float64              `json:"confidence"`
	ConversationID      string               `json:"conversation_id"`
	Clarification       bool                 `json:"clarification"`
}

// Engine composes the conversation store and dialogue manager behind the
// facade operations callers use. It also tracks the active conversation for
// session-style clients and publishes engine events on the hub.
type Engine struct {
	conversations *conversation.Store
	manager       *dialogue.Manager
	hub           *events.Hub
	logger        *slog.Logger

	mu       sync.Mutex
	activeID string
}

// New creates an engine over an already-wired store and manager. The hub may
// be nil when no one subscribes.
func New(conversations *conversation.Store, manager *dialogue.Manager, hub *events.Hub, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		conversations: conversations,
		manager:       manager,
		hub:           hub,
		logger:        logger.With("component", "engine"),
	}
}

// Ask processes one question. An empty conversationID uses the active
// conversation, creating one when none exists; a non-empty unknown id fails
// with conversation.ErrNotFound rather than being silently created.
//
// Calls for the same conversation must be serialized by the caller; distinct
// conversations may ask in parallel.
func (e *Engine) Ask(ctx context.Context, question, conversationID string) (*Reply, error) {
	if conversationID == "" {
		conversationID = e.ensureActive()
	} else if !e.conversations.Exists(conversationID) {
		return nil, fmt.Errorf("asking %q: %w", conversationID, conversation.ErrNotFound)
	}

	result, err := e.manager.ProcessTurn(ctx, conversationID, question)
	if err != nil {
		return nil, err
	}

	e.publishTurn(conversationID, result)

	reply := &Reply{
		Answer:              result.Answer,
		Citations:           result.Citations,
		FollowUpSuggestions: result.Suggestions,
		RelatedEntities:     entityNames(result.Parsed.Entities),
		Confidence:          result.Confidence,
		ConversationID:      conversationID,
		Clarification:       result.State == dialogue.StateAskedClarification,
	}
	if reply.Citations == nil {
		reply.Citations = []knowledge.Citation{}
	}
	if reply.FollowUpSuggestions == nil {
		reply.FollowUpSuggestions = []string{}
	}
	return reply, nil
}

// GetHistory returns the most recent limit turns, or all for limit <= 0.
func (e *Engine) GetHistory(conversationID string, limit int) ([]conversation.Turn, error) {
	return e.conversations.GetHistory(conversationID, limit)
}

// CreateConversation starts a conversation for the user and makes it active.
func (e *Engine) CreateConversation(userID string) string {
	conv := e.conversations.Create(userID)

	e.mu.Lock()
	e.activeID = conv.ID
	e.mu.Unlock()

	e.publish(events.Event{Name: events.ConversationCreated, ConversationID: conv.ID})
	return conv.ID
}

// SwitchConversation makes an existing conversation active. Returns false
// for an unknown id, leaving the active conversation unchanged.
func (e *Engine) SwitchConversation(conversationID string) bool {
	if !e.conversations.Exists(conversationID) {
		return false
	}

	e.mu.Lock()
	e.activeID = conversationID
	e.mu.Unlock()

	e.logger.Info("switched conversation", "conversation_id", conversationID)
	return true
}

// ActiveConversation returns the current active conversation id, or "".
func (e *Engine) ActiveConversation() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeID
}

// ClearHistory empties a conversation without deleting it.
func (e *Engine) ClearHistory(conversationID string) error {
	if err := e.conversations.Clear(conversationID); err != nil {
		return err
	}
	e.publish(events.Event{Name: events.ConversationCleared, ConversationID: conversationID})
	return nil
}

// ExportContext captures the conversation's full state for external
// persistence.
func (e *Engine) ExportContext(conversationID string) (*conversation.Snapshot, error) {
	return e.conversations.Export(conversationID)
}

// ImportContext restores a conversation from a snapshot, replacing any live
// conversation with the same id. A malformed snapshot fails with
// conversation.ErrMalformedSnapshot.
func (e *Engine) ImportContext(snap *conversation.Snapshot) (*conversation.Conversation, error) {
	conv, err := e.conversations.Import(snap)
	if err != nil {
		return nil, err
	}
	e.publish(events.Event{Name: events.ContextImported, ConversationID: conv.ID})
	return conv, nil
}

// ListConversations returns summaries of every conversation.
func (e *Engine) ListConversations() []conversation.Summary {
	return e.conversations.List()
}

// ensureActive returns the active conversation id, creating a conversation
// for the default user when none is active yet.
func (e *Engine) ensureActive() string {
	e.mu.Lock()
	if e.activeID != "" && e.conversations.Exists(e.activeID) {
		id := e.activeID
		e.mu.Unlock()
		return id
	}
	e.mu.Unlock()
	return e.CreateConversation("")
}

// publishTurn emits the terminal-state event for one processed turn.
func (e *Engine) publishTurn(conversationID string, result *dialogue.Result) {
	name := events.TurnAnswered
	if result.State == dialogue.StateAskedClarification {
		name = events.TurnClarification
	}
	e.publish(events.Event{Name: name, ConversationID: conversationID, Turn: result.Turn})

	if result.TopicSwitched {
		topic := result.Parsed.Entity
		if topic == "" {
			topic = result.Parsed.Filter(conversation.FilterTopic)
		}
		e.publish(events.Event{Name: events.TopicSwitched, ConversationID: conversationID, Topic: topic})
	}
}

func (e *Engine) publish(evt events.Event) {
	if e.hub != nil {
		e.hub.Publish(evt)
	}
}

// entityNames lists the display names of a turn's entities.
func entityNames(entities []*conversation.Entity) []string {
	out := make([]string, 0, len(entities))
	for _, ent := range entities {
		out = append(out, ent.Name)
	}
	return out
}
