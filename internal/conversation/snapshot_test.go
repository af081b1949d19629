// ABOUTME: Tests for snapshot export/import: round-trip equivalence,
// ABOUTME: validation failures, and detachment from live state.

package conversation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_ExportImport_RoundTrip(t *testing.T) {
	store := newTestStore()
	conv := store.Create("alice")

	require.NoError(t, store.AppendTurn(conv.ID, &Turn{
		UserInput: "What is 4D-Network-Agent?",
		Intent:    &Intent{Type: IntentAgent, Entity: "4D-Network-Agent", Question: "What is 4D-Network-Agent?"},
		Entities:  []*Entity{{Type: EntityAgent, Name: "4D-Network-Agent"}},
		Response:  "4D-Network-Agent handles routing in 4D.",
	}))
	require.NoError(t, store.AppendTurn(conv.ID, &Turn{
		UserInput: "What rules apply?",
		Intent:    &Intent{Type: IntentRule, Question: "What rules apply?"},
		Response:  "Gravity-Rule applies.",
	}))

	snap, err := store.Export(conv.ID)
	require.NoError(t, err)

	// Restore into a fresh store, as an external persistence layer would.
	restoreStore := newTestStore()
	restored, err := restoreStore.Import(snap)
	require.NoError(t, err)

	original, err := store.Get(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, original.ID, restored.ID)
	assert.Equal(t, original.UserID, restored.UserID)
	assert.Len(t, restored.Turns, len(original.Turns))
	require.NotNil(t, restored.CurrentIntent)
	assert.Equal(t, original.CurrentIntent.Type, restored.CurrentIntent.Type)
	require.NotNil(t, restored.Entity("4D-Network-Agent"))
	assert.Equal(t, "4D-Network-Agent", restored.Entity("4d-network-agent").Name)
}

func TestStore_Export_UnknownID(t *testing.T) {
	store := newTestStore()

	_, err := store.Export("missing")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Export_DetachedFromLiveState(t *testing.T) {
	store := newTestStore()
	conv := store.Create("")
	require.NoError(t, store.AppendTurn(conv.ID, &Turn{UserInput: "first"}))

	snap, err := store.Export(conv.ID)
	require.NoError(t, err)

	require.NoError(t, store.AppendTurn(conv.ID, &Turn{UserInput: "second"}))

	assert.Len(t, snap.Conversation.Turns, 1)
}

func TestStore_Import_RejectsMalformed(t *testing.T) {
	store := newTestStore()

	cases := []struct {
		name string
		snap *Snapshot
	}{
		{"nil snapshot", nil},
		{"bad version", &Snapshot{Version: 99, Conversation: &Conversation{ID: "c1"}}},
		{"missing conversation", &Snapshot{Version: SnapshotVersion}},
		{"missing id", &Snapshot{Version: SnapshotVersion, Conversation: &Conversation{}}},
		{"nameless entity", &Snapshot{Version: SnapshotVersion, Conversation: &Conversation{
			ID:       "c1",
			Entities: map[string]*Entity{"x": {Type: EntityAgent}},
		}}},
		{"empty turn", &Snapshot{Version: SnapshotVersion, Conversation: &Conversation{
			ID:    "c1",
			Turns: []Turn{{}},
		}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := store.Import(tc.snap)
			assert.ErrorIs(t, err, ErrMalformedSnapshot)
		})
	}
}

func TestStore_Import_RebuildsEntityKeys(t *testing.T) {
	store := newTestStore()

	snap := &Snapshot{
		Version: SnapshotVersion,
		Conversation: &Conversation{
			ID: "c1",
			Entities: map[string]*Entity{
				"WRONG-KEY": {Type: EntityAgent, Name: "4D-Network-Agent"},
			},
		},
	}

	restored, err := store.Import(snap)
	require.NoError(t, err)

	assert.Nil(t, restored.Entities["WRONG-KEY"])
	assert.NotNil(t, restored.Entity("4D-Network-Agent"))
}

func TestStore_Import_TrimsOversizedHistory(t *testing.T) {
	store := newTestStore()

	turns := make([]Turn, maxTurns+10)
	for i := range turns {
		turns[i] = Turn{UserInput: "q"}
	}
	snap := &Snapshot{
		Version:      SnapshotVersion,
		Conversation: &Conversation{ID: "c1", Turns: turns},
	}

	restored, err := store.Import(snap)
	require.NoError(t, err)

	assert.Len(t, restored.Turns, maxTurns)
}

func TestSnapshot_JSONRoundTrip(t *testing.T) {
	store := newTestStore()
	conv := store.Create("alice")
	require.NoError(t, store.AppendTurn(conv.ID, &Turn{
		UserInput: "What is teleport?",
		Intent:    &Intent{Type: IntentFunction, Entity: "teleport", Filters: map[string]string{FilterDimension: "4D"}},
		Entities:  []*Entity{{Type: EntityFunction, Name: "teleport"}},
	}))

	snap, err := store.Export(conv.ID)
	require.NoError(t, err)

	raw, err := json.Marshal(snap)
	require.NoError(t, err)

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(raw, &decoded))

	restored, err := newTestStore().Import(&decoded)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, restored.ID)
	require.NotNil(t, restored.CurrentIntent)
	assert.Equal(t, "4D", restored.CurrentIntent.Filter(FilterDimension))
}
