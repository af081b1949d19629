// ABOUTME: In-memory Store owning all Conversation/Turn/Entity lifecycle.
// ABOUTME: Every mutation goes through Store operations; no direct state edits.

package conversation

import (
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for operations on an unknown conversation id.
// Unknown ids are never silently created.
var ErrNotFound = errors.New("conversation not found")

// Store holds every active conversation, keyed by id. The map is guarded for
// cross-conversation safety; turn processing within a single conversation is
// expected to be serialized by the caller.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	logger        *slog.Logger
}

// NewStore creates an empty conversation store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		conversations: make(map[string]*Conversation),
		logger:        logger.With("component", "conversation"),
	}
}

// Create starts a new conversation for the given user. An empty userID falls
// back to DefaultUserID.
func (s *Store) Create(userID string) *Conversation {
	if userID == "" {
		userID = DefaultUserID
	}
	now := time.Now()
	conv := &Conversation{
		ID:          uuid.New().String(),
		UserID:      userID,
		Turns:       []Turn{},
		Entities:    make(map[string]*Entity),
		Assignments: make(map[string]string),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.mu.Lock()
	s.conversations[conv.ID] = conv
	s.mu.Unlock()

	s.logger.Info("conversation created", "conversation_id", conv.ID, "user_id", userID)
	return conv
}

// Get returns the conversation for id, or ErrNotFound.
func (s *Store) Get(id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return conv, nil
}

// Exists reports whether a conversation id is known.
func (s *Store) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.conversations[id]
	return ok
}

// AppendTurn commits one completed turn: appends it, promotes its intent to
// the conversation's current intent (pushing the old one onto the previous
// list), merges the turn's entities with a last-seen refresh, and trims the
// turn sequence to the cap from the front.
func (s *Store) AppendTurn(id string, turn *Turn) error {
	if turn == nil {
		return errors.New("nil turn")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return ErrNotFound
	}

	now := time.Now()
	if turn.ID == "" {
		turn.ID = uuid.New().String()
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = now
	}

	conv.Turns = append(conv.Turns, *turn)
	if len(conv.Turns) > maxTurns {
		conv.Turns = conv.Turns[len(conv.Turns)-maxTurns:]
	}

	if turn.Intent != nil {
		if conv.CurrentIntent != nil {
			conv.PreviousIntents = append(conv.PreviousIntents, *conv.CurrentIntent.Clone())
			if len(conv.PreviousIntents) > maxTurns {
				conv.PreviousIntents = conv.PreviousIntents[len(conv.PreviousIntents)-maxTurns:]
			}
		}
		conv.CurrentIntent = turn.Intent.Clone()
	}

	for _, ent := range turn.Entities {
		s.mergeEntity(conv, ent, now)
	}

	conv.UpdatedAt = now
	return nil
}

// mergeEntity inserts a new entity or refreshes the last-seen timestamp of an
// existing one, keyed by lowercase name. Caller holds the write lock.
func (s *Store) mergeEntity(conv *Conversation, ent *Entity, now time.Time) {
	if ent == nil || ent.Name == "" {
		return
	}
	key := strings.ToLower(ent.Name)
	if existing, ok := conv.Entities[key]; ok {
		existing.LastSeen = now
		return
	}
	stored := *ent
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	stored.LastSeen = now
	conv.Entities[key] = &stored
}

// GetHistory returns the most recent limit turns in original order. A limit
// of zero or less returns all retained turns. The returned slice is a copy.
func (s *Store) GetHistory(id string, limit int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}

	turns := conv.Turns
	if limit > 0 && limit < len(turns) {
		turns = turns[len(turns)-limit:]
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}

// Clear empties the conversation's turns, entities, intents, topic, and agent
// assignments without deleting the conversation itself.
func (s *Store) Clear(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return ErrNotFound
	}

	conv.Turns = []Turn{}
	conv.Entities = make(map[string]*Entity)
	conv.CurrentIntent = nil
	conv.PreviousIntents = nil
	conv.Assignments = make(map[string]string)
	conv.CurrentTopic = ""
	conv.UpdatedAt = time.Now()

	s.logger.Info("conversation cleared", "conversation_id", id)
	return nil
}

// Delete removes a conversation entirely.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return ErrNotFound
	}
	delete(s.conversations, id)

	s.logger.Info("conversation deleted", "conversation_id", id)
	return nil
}

// SetTopic replaces the conversation's current topic.
func (s *Store) SetTopic(id, topic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return ErrNotFound
	}
	conv.CurrentTopic = topic
	conv.UpdatedAt = time.Now()
	return nil
}

// AssignAgent records which agent last answered for an entity or topic key,
// so later routing can prefer the same agent.
func (s *Store) AssignAgent(id, key, agentID string) error {
	if key == "" || agentID == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return ErrNotFound
	}
	if conv.Assignments == nil {
		conv.Assignments = make(map[string]string)
	}
	conv.Assignments[strings.ToLower(key)] = agentID
	return nil
}

// AssignedAgent returns the agent last recorded for an entity or topic key.
func (s *Store) AssignedAgent(id, key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return "", false
	}
	agentID, ok := conv.Assignments[strings.ToLower(key)]
	return agentID, ok
}

// RecentEntities returns non-expired entities ordered most recent first,
// optionally filtered to one type. A limit of zero or less returns all.
func (s *Store) RecentEntities(id string, entityType EntityType, limit int) ([]*Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}

	now := time.Now()
	var out []*Entity
	for _, ent := range conv.Entities {
		if ent.expiredAt(now) {
			continue
		}
		if entityType != "" && ent.Type != entityType {
			continue
		}
		out = append(out, ent)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Summary is a lightweight listing view of one conversation.
type Summary struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	TurnCount    int       `json:"turn_count"`
	CurrentTopic string    `json:"current_topic,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// List returns summaries of every conversation, most recently updated first.
func (s *Store) List() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Summary, 0, len(s.conversations))
	for _, conv := range s.conversations {
		out = append(out, Summary{
			ID:           conv.ID,
			UserID:       conv.UserID,
			TurnCount:    len(conv.Turns),
			CurrentTopic: conv.CurrentTopic,
			UpdatedAt:    conv.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Count returns the number of active conversations.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}
