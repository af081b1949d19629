// ABOUTME: Tests for the engine facade: ask lifecycle, active-conversation
// ABOUTME: switching, export/import round trips, and event publication.

package engine

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bthornemail/automata-converse/internal/conversation"
	"github.com/bthornemail/automata-converse/internal/dialogue"
	"github.com/bthornemail/automata-converse/internal/events"
	"github.com/bthornemail/automata-converse/internal/intent"
	"github.com/bthornemail/automata-converse/internal/knowledge"
	"github.com/bthornemail/automata-converse/internal/router"
)

func newTestEngine(t *testing.T) (*Engine, *events.Hub) {
	t.Helper()
	logger := slog.Default()

	ks := knowledge.NewMemoryStore(logger)
	require.NoError(t, ks.AddAll([]*knowledge.Record{
		{
			Kind:         knowledge.KindAgent,
			ID:           knowledge.GeneralAgentID,
			Name:         "General-Query-Agent",
			Description:  "Catch-all responder.",
			Capabilities: []string{knowledge.CapabilityGeneralEval},
			Source:       "seed:general",
		},
		{
			Kind:         knowledge.KindAgent,
			Name:         "4D-Network-Agent",
			Description:  "Routes entity state across the 4D overlay.",
			Dimension:    "4D",
			Capabilities: []string{knowledge.CapabilityGeneralEval},
			Dependencies: []string{"Signal-Relay-Agent"},
			Source:       "seed:network",
		},
	}))

	conversations := conversation.NewStore(logger)
	parser := intent.NewParser(conversations, knowledge.NewClassifier(ks, logger), logger)
	rt := router.NewRouter(conversations, ks, logger)
	coordinator := router.NewCoordinator(knowledge.NewResponder(ks, logger), time.Second, router.DefaultAggregationPenalty, logger)
	manager := dialogue.NewManager(conversations, parser, rt, coordinator, logger)

	hub := events.NewHub(logger)
	return New(conversations, manager, hub, logger), hub
}

func TestEngine_Ask_CreatesConversationOnFirstAsk(t *testing.T) {
	eng, _ := newTestEngine(t)

	reply, err := eng.Ask(context.Background(), "What is 4D-Network-Agent?", "")

	require.NoError(t, err)
	assert.NotEmpty(t, reply.ConversationID)
	assert.Equal(t, reply.ConversationID, eng.ActiveConversation())
	assert.Greater(t, reply.Confidence, 0.5)
	assert.NotEmpty(t, reply.Answer)
	assert.NotEmpty(t, reply.Citations)
	assert.Contains(t, reply.RelatedEntities, "4D-Network-Agent")
}

func TestEngine_Ask_ReusesActiveConversation(t *testing.T) {
	eng, _ := newTestEngine(t)

	first, err := eng.Ask(context.Background(), "What is 4D-Network-Agent?", "")
	require.NoError(t, err)
	second, err := eng.Ask(context.Background(), "What are its dependencies?", "")
	require.NoError(t, err)

	assert.Equal(t, first.ConversationID, second.ConversationID)

	history, err := eng.GetHistory(first.ConversationID, 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestEngine_Ask_UnknownConversationFails(t *testing.T) {
	eng, _ := newTestEngine(t)

	_, err := eng.Ask(context.Background(), "What is 4D-Network-Agent?", "no-such-id")

	require.Error(t, err)
	assert.ErrorIs(t, err, conversation.ErrNotFound)
}

func TestEngine_Ask_ClarificationReplyIsWellFormed(t *testing.T) {
	eng, _ := newTestEngine(t)

	reply, err := eng.Ask(context.Background(), "asdf qwerty", "")

	require.NoError(t, err)
	assert.True(t, reply.Clarification)
	assert.NotEmpty(t, reply.Answer)
	assert.NotEmpty(t, reply.FollowUpSuggestions)
	assert.Less(t, reply.Confidence, 0.5)
	assert.NotNil(t, reply.Citations)
}

func TestEngine_SwitchConversation_UnknownLeavesActiveUnchanged(t *testing.T) {
	eng, _ := newTestEngine(t)
	id := eng.CreateConversation("alice")

	ok := eng.SwitchConversation("no-such-id")

	assert.False(t, ok)
	assert.Equal(t, id, eng.ActiveConversation())
}

func TestEngine_SwitchConversation_Known(t *testing.T) {
	eng, _ := newTestEngine(t)
	first := eng.CreateConversation("alice")
	second := eng.CreateConversation("bob")
	require.Equal(t, second, eng.ActiveConversation())

	ok := eng.SwitchConversation(first)

	assert.True(t, ok)
	assert.Equal(t, first, eng.ActiveConversation())
}

func TestEngine_ExportImport_RoundTrip(t *testing.T) {
	eng, _ := newTestEngine(t)

	reply, err := eng.Ask(context.Background(), "What is 4D-Network-Agent?", "")
	require.NoError(t, err)

	snap, err := eng.ExportContext(reply.ConversationID)
	require.NoError(t, err)

	require.NoError(t, eng.ClearHistory(reply.ConversationID))
	history, err := eng.GetHistory(reply.ConversationID, 0)
	require.NoError(t, err)
	require.Empty(t, history)

	conv, err := eng.ImportContext(snap)
	require.NoError(t, err)
	assert.Equal(t, reply.ConversationID, conv.ID)

	history, err = eng.GetHistory(reply.ConversationID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, conv.CurrentIntent)
	assert.Equal(t, conversation.IntentAgent, conv.CurrentIntent.Type)
}

func TestEngine_ImportContext_MalformedSnapshot(t *testing.T) {
	eng, _ := newTestEngine(t)

	_, err := eng.ImportContext(&conversation.Snapshot{Version: conversation.SnapshotVersion})

	require.Error(t, err)
	assert.ErrorIs(t, err, conversation.ErrMalformedSnapshot)
}

func TestEngine_PublishesTurnEvents(t *testing.T) {
	eng, hub := newTestEngine(t)

	var seen []string
	hub.Subscribe(events.TurnAnswered, func(evt events.Event) { seen = append(seen, evt.Name) })
	hub.Subscribe(events.TurnClarification, func(evt events.Event) { seen = append(seen, evt.Name) })
	hub.Subscribe(events.ConversationCreated, func(evt events.Event) { seen = append(seen, evt.Name) })

	_, err := eng.Ask(context.Background(), "What is 4D-Network-Agent?", "")
	require.NoError(t, err)
	_, err = eng.Ask(context.Background(), "asdf qwerty", "")
	require.NoError(t, err)

	assert.Equal(t, []string{events.ConversationCreated, events.TurnAnswered, events.TurnClarification}, seen)
}
