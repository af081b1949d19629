// ABOUTME: Snapshot export/import: full conversation state serialization for
// ABOUTME: external persistence. The Store itself holds no durable storage.

package conversation

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SnapshotVersion is the current snapshot format version.
const SnapshotVersion = 1

// ErrMalformedSnapshot is returned by Import when a snapshot fails
// validation. Callers must surface this; a bad snapshot never silently
// becomes an empty conversation.
var ErrMalformedSnapshot = errors.New("malformed snapshot")

// Snapshot is a self-contained, serializable copy of one conversation.
type Snapshot struct {
	Version      int           `json:"version"`
	CapturedAt   time.Time     `json:"captured_at"`
	Conversation *Conversation `json:"conversation"`
}

// Export captures the full state of a conversation as a deep copy, detached
// from live state.
func (s *Store) Export(id string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}

	return &Snapshot{
		Version:      SnapshotVersion,
		CapturedAt:   time.Now(),
		Conversation: conv.clone(),
	}, nil
}

// Import validates a snapshot and installs its conversation under the
// snapshot's original id, replacing any live conversation with that id.
// Entity last-seen timestamps are preserved, so entities that aged out while
// the snapshot sat in storage stay expired after restore.
func (s *Store) Import(snap *Snapshot) (*Conversation, error) {
	if err := validateSnapshot(snap); err != nil {
		return nil, err
	}

	conv := snap.Conversation.clone()
	if conv.UserID == "" {
		conv.UserID = DefaultUserID
	}
	if conv.Turns == nil {
		conv.Turns = []Turn{}
	}
	if len(conv.Turns) > maxTurns {
		conv.Turns = conv.Turns[len(conv.Turns)-maxTurns:]
	}
	if conv.Assignments == nil {
		conv.Assignments = make(map[string]string)
	}

	// Entity keys are rebuilt rather than trusted, so a hand-edited snapshot
	// cannot desync the name index.
	entities := make(map[string]*Entity, len(conv.Entities))
	for _, ent := range conv.Entities {
		entities[strings.ToLower(ent.Name)] = ent
	}
	conv.Entities = entities
	conv.UpdatedAt = time.Now()

	s.mu.Lock()
	s.conversations[conv.ID] = conv
	s.mu.Unlock()

	s.logger.Info("conversation imported",
		"conversation_id", conv.ID,
		"turns", len(conv.Turns),
		"entities", len(conv.Entities))
	return conv, nil
}

// validateSnapshot rejects snapshots that cannot represent a conversation.
func validateSnapshot(snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: nil snapshot", ErrMalformedSnapshot)
	}
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrMalformedSnapshot, snap.Version)
	}
	if snap.Conversation == nil {
		return fmt.Errorf("%w: missing conversation", ErrMalformedSnapshot)
	}
	if snap.Conversation.ID == "" {
		return fmt.Errorf("%w: missing conversation id", ErrMalformedSnapshot)
	}
	for i, ent := range snap.Conversation.Entities {
		if ent == nil || ent.Name == "" {
			return fmt.Errorf("%w: entity %q has no name", ErrMalformedSnapshot, i)
		}
	}
	for i, turn := range snap.Conversation.Turns {
		if turn.UserInput == "" && turn.Response == "" {
			return fmt.Errorf("%w: turn %d is empty", ErrMalformedSnapshot, i)
		}
	}
	return nil
}
