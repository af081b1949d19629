// ABOUTME: Tests for the dialogue manager: answered turns, clarification
// ABOUTME: short-circuits, follow-up inheritance, and topic switching.

package dialogue

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bthornemail/automata-converse/internal/conversation"
	"github.com/bthornemail/automata-converse/internal/intent"
	"github.com/bthornemail/automata-converse/internal/knowledge"
	"github.com/bthornemail/automata-converse/internal/router"
)

// newTestStack wires the full turn pipeline over a small in-memory knowledge
// base and returns the conversation store alongside the manager.
func newTestStack(t *testing.T) (*conversation.Store, *Manager) {
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
			Capabilities: []string{knowledge.CapabilityGeneralEval, "network"},
			Dependencies: []string{"Signal-Relay-Agent"},
			Source:       "seed:network",
		},
		{
			Kind:         knowledge.KindAgent,
			Name:         "Physics-Agent",
			Description:  "Steps motion and collision once per world tick.",
			Dimension:    "3D",
			Capabilities: []string{knowledge.CapabilityGeneralEval},
			Source:       "seed:physics",
		},
		{
			Kind:        knowledge.KindFunction,
			Name:        "teleport",
			Description: "Moves an entity to the given coordinates.",
			Signature:   "teleport(entity, coordinates) -> bool",
			Dimension:   "4D",
			Examples:    []string{"teleport(avatar, (0, 0, 0, 1))"},
			Source:      "seed:teleport",
		},
		{
			Kind:        knowledge.KindFact,
			Name:        "world-tick",
			Description: "The world advances in discrete ticks of 50ms.",
			Source:      "seed:facts",
		},
	}))

	conversations := conversation.NewStore(logger)
	parser := intent.NewParser(conversations, knowledge.NewClassifier(ks, logger), logger)
	rt := router.NewRouter(conversations, ks, logger)
	coordinator := router.NewCoordinator(knowledge.NewResponder(ks, logger), time.Second, router.DefaultAggregationPenalty, logger)
	return conversations, NewManager(conversations, parser, rt, coordinator, logger)
}

func TestManager_ProcessTurn_AnswersAgentQuestion(t *testing.T) {
	conversations, mgr := newTestStack(t)
	conv := conversations.Create("")

	result, err := mgr.ProcessTurn(context.Background(), conv.ID, "What is 4D-Network-Agent?")

	require.NoError(t, err)
	assert.Equal(t, StateAnswered, result.State)
	assert.Contains(t, result.Answer, "4D overlay")
	assert.Contains(t, result.AgentsUsed, "4d-network-agent")
	assert.Greater(t, result.Confidence, 0.5)
	assert.NotEmpty(t, result.Citations)

	history, err := conversations.GetHistory(conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "What is 4D-Network-Agent?", history[0].UserInput)
	assert.Equal(t, result.Answer, history[0].Response)
}

func TestManager_ProcessTurn_GibberishAsksClarification(t *testing.T) {
	conversations, mgr := newTestStack(t)
	conv := conversations.Create("")

	result, err := mgr.ProcessTurn(context.Background(), conv.ID, "asdf qwerty")

	require.NoError(t, err)
	assert.Equal(t, StateAskedClarification, result.State)
	assert.True(t, result.Parsed.RequiresClarification)
	assert.NotEmpty(t, result.Parsed.ClarificationPrompts)
	assert.Empty(t, result.AgentsUsed)
	assert.Less(t, result.Confidence, 0.5)

	// The clarification exchange is still committed, so history stays complete.
	history, err := conversations.GetHistory(conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, result.Answer, history[0].Response)
}

func TestManager_ProcessTurn_FollowUpInheritsEntity(t *testing.T) {
	conversations, mgr := newTestStack(t)
	conv := conversations.Create("")

	_, err := mgr.ProcessTurn(context.Background(), conv.ID, "What is 4D-Network-Agent?")
	require.NoError(t, err)

	result, err := mgr.ProcessTurn(context.Background(), conv.ID, "What are its dependencies?")

	require.NoError(t, err)
	assert.True(t, result.FollowUp)
	assert.Equal(t, StateAnswered, result.State)
	assert.Equal(t, "4D-Network-Agent", result.Parsed.Entity)
	assert.Greater(t, result.Confidence, 0.5)
	assert.Contains(t, result.Answer, "Signal-Relay-Agent")
}

func TestManager_ProcessTurn_TopicSwitchReplacesTopic(t *testing.T) {
	conversations, mgr := newTestStack(t)
	conv := conversations.Create("")

	_, err := mgr.ProcessTurn(context.Background(), conv.ID, "What is 4D-Network-Agent?")
	require.NoError(t, err)
	current, err := conversations.Get(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "4D-Network-Agent", current.CurrentTopic)

	result, err := mgr.ProcessTurn(context.Background(), conv.ID, "How do I call teleport()?")

	require.NoError(t, err)
	assert.True(t, result.TopicSwitched)
	assert.False(t, result.FollowUp)
	current, err = conversations.Get(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "teleport", current.CurrentTopic)
}

func TestManager_ProcessTurn_FollowUpKeepsTopic(t *testing.T) {
	conversations, mgr := newTestStack(t)
	conv := conversations.Create("")

	_, err := mgr.ProcessTurn(context.Background(), conv.ID, "What is 4D-Network-Agent?")
	require.NoError(t, err)

	result, err := mgr.ProcessTurn(context.Background(), conv.ID, "Tell me more about it")

	require.NoError(t, err)
	assert.True(t, result.FollowUp)
	assert.False(t, result.TopicSwitched)
	current, err := conversations.Get(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "4D-Network-Agent", current.CurrentTopic)
}

func TestManager_ProcessTurn_UnknownConversation(t *testing.T) {
	_, mgr := newTestStack(t)

	_, err := mgr.ProcessTurn(context.Background(), "no-such-id", "What is teleport?")

	require.Error(t, err)
	assert.ErrorIs(t, err, conversation.ErrNotFound)
}

func TestManager_ProcessTurn_SuggestionsFromExpansion(t *testing.T) {
	conversations, mgr := newTestStack(t)
	conv := conversations.Create("")

	result, err := mgr.ProcessTurn(context.Background(), conv.ID, "What is 4D-Network-Agent?")

	require.NoError(t, err)
	require.NotEmpty(t, result.Suggestions)
	assert.Contains(t, result.Suggestions[0], "dependencies of 4D-Network-Agent")
}

func TestManager_ProcessTurn_SuggestsSiblingEntities(t *testing.T) {
	conversations, mgr := newTestStack(t)
	conv := conversations.Create("")

	_, err := mgr.ProcessTurn(context.Background(), conv.ID, "What is Physics-Agent?")
	require.NoError(t, err)

	result, err := mgr.ProcessTurn(context.Background(), conv.ID, "What is 4D-Network-Agent?")

	require.NoError(t, err)
	found := false
	for _, s := range result.Suggestions {
		if strings.Contains(s, "Physics-Agent") {
			found = true
		}
	}
	assert.True(t, found, "expected a sibling-entity suggestion, got %v", result.Suggestions)
}

func TestManager_ProcessTurn_RecordsAgentAffinity(t *testing.T) {
	conversations, mgr := newTestStack(t)
	conv := conversations.Create("")

	result, err := mgr.ProcessTurn(context.Background(), conv.ID, "What is 4D-Network-Agent?")
	require.NoError(t, err)
	require.NotEmpty(t, result.AgentsUsed)

	agentID, ok := conversations.AssignedAgent(conv.ID, "4d-network-agent")
	require.True(t, ok)
	assert.Equal(t, "4d-network-agent", agentID)
}

func TestManager_ProcessTurn_DimensionListing(t *testing.T) {
	conversations, mgr := newTestStack(t)
	conv := conversations.Create("")

	result, err := mgr.ProcessTurn(context.Background(), conv.ID, "What agents are in 4D?")

	require.NoError(t, err)
	assert.Equal(t, StateAnswered, result.State)
	assert.Contains(t, result.AgentsUsed, "4d-network-agent")
	assert.NotContains(t, result.AgentsUsed, "physics-agent")
}

func TestIsFollowUpText(t *testing.T) {
	assert.True(t, isFollowUpText("What are its dependencies?"))
	assert.True(t, isFollowUpText("tell me more about the physics"))
	assert.True(t, isFollowUpText("ok, and the related rules?"))
	assert.False(t, isFollowUpText("What is teleport?"))
	assert.False(t, isFollowUpText("Do gravity and the collision rule interact?"))
}
