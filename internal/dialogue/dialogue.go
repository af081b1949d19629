// ABOUTME: Per-turn dialogue orchestration: follow-ups, topic switches,
// ABOUTME: clarification short-circuits, routing, and follow-up suggestions

package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bthornemail/automata-converse/internal/conversation"
	"github.com/bthornemail/automata-converse/internal/intent"
	"github.com/bthornemail/automata-converse/internal/knowledge"
	"github.com/bthornemail/automata-converse/internal/router"
)

// TurnState names one stage of the per-turn state machine. A turn moves
// forward only; it never revisits an earlier state.
type TurnState string

const (
	StateReceived            TurnState = "received"
	StateReferenceResolved   TurnState = "reference_resolved"
	StateIntentParsed        TurnState = "intent_parsed"
	StateClarificationNeeded TurnState = "clarification_needed"
	StateAskedClarification  TurnState = "asked_clarification"
	StateRouted              TurnState = "routed"
	StateResponsesMerged     TurnState = "responses_merged"
	StateAnswered            TurnState = "answered"
)

// maxSuggestions caps follow-up suggestions per answered turn.
const maxSuggestions = 3

// followUpPatterns mark a question as depending on the previous turn.
// Conservative list; extend only with tests.
var followUpPatterns = []string{"its ", "their ", "what about", "tell me more", "how about"}

// clauseStartPatterns only count at the start of a clause, so ordinary
// mid-sentence conjunctions don't trip the detector.
var clauseStartPatterns = []string{"and the", "also"}

// Result is the outcome of one processed turn. State is one of the two
// terminal states: AskedClarification or Answered.
type Result struct {
	State         TurnState
	Turn          *conversation.Turn
	Parsed        *intent.ParsedIntent
	Answer        string
	Citations     []knowledge.Citation
	Suggestions   []string
	AgentsUsed    []string
	Confidence    float64
	FollowUp      bool
	TopicSwitched bool
}

// Manager walks one turn through the state machine: parse, follow-up merge or
// topic switch, clarification short-circuit or route fan-out, then commit.
type Manager struct {
	conversations *conversation.Store
	parser        *intent.Parser
	router        *router.Router
	coordinator   *router.Coordinator
	logger        *slog.Logger
}

// NewManager creates a dialogue manager over the given components.
func NewManager(conversations *conversation.Store, parser *intent.Parser, rt *router.Router, coordinator *router.Coordinator, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		conversations: conversations,
		parser:        parser,
		router:        rt,
		coordinator:   coordinator,
		logger:        logger.With("component", "dialogue"),
	}
}

// ProcessTurn runs one question through the full state machine and commits
// the resulting turn. The turn is appended on both terminal paths, so history
// records clarification exchanges too. Returns conversation.ErrNotFound
// (wrapped) for an unknown conversation id; everything else is absorbed into
// the result's confidence and prompts.
//
// Callers serialize ProcessTurn per conversation id. Two concurrent turns for
// the same conversation race on its entity and turn state; distinct
// conversations are safe in parallel.
func (m *Manager) ProcessTurn(ctx context.Context, conversationID, question string) (*Result, error) {
	conv, err := m.conversations.Get(conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	state := StateReceived

	// Parse covers resolution through scoring; the previous intent and topic
	// are captured first because committing the turn below replaces them.
	prevIntent := conv.CurrentIntent.Clone()
	_ = conv.CurrentTopic
	parsed, err := m.parser.Parse(ctx, conversationID, question)
	if err != nil {
		return nil, fmt.Errorf("parsing turn: %w", err)
	}
	state = m.advance(conversationID, state, StateReferenceResolved)
	state = m.advance(conversationID, state, StateIntentParsed)

	followUp := prevIntent != nil && isFollowUpText(parsed.ResolvedQuestion)
	if followUp {
		if err := m.parser.MergeFollowUp(conversationID, parsed, prevIntent); err != nil {
			return nil, fmt.Errorf("merging follow-up: %w", err)
		}
	}

	topicSwitched := false
	switch {
	case followUp:
		// Follow-ups stay on the previous topic.
	case prevIntent == nil:
		// The first typed turn establishes the topic without counting as
		// a switch.
		if topic := switchTopic(parsed); topic != "" {
			if err := m.conversations.SetTopic(conversationID, topic); err != nil {
				return nil, fmt.Errorf("setting topic: %w", err)
			}
		}
	case isTopicSwitch(parsed, prevIntent):
		topicSwitched = true
		topic := switchTopic(parsed)
		if err := m.conversations.SetTopic(conversationID, topic); err != nil {
			return nil, fmt.Errorf("switching topic: %w", err)
		}
		// The refine step may have inherited the outgoing topic; the turn
		// continues under the new one.
		parsed.SetFilter(conversation.FilterTopic, topic)
		m.logger.Info("topic switched",
			"conversation_id", conversationID,
			"topic", topic,
			"intent_type", parsed.Type)
	}

	if parsed.RequiresClarification {
		state = m.advance(conversationID, state, StateClarificationNeeded)
		return m.askClarification(conversationID, state, question, parsed, followUp, topicSwitched)
	}

	routes := m.router.Routes(ctx, conversationID, parsed)
	state = m.advance(conversationID, state, StateRouted)

	coordinated := m.coordinator.Coordinate(ctx, conversationID, routes, parsed)
	state = m.advance(conversationID, state, StateResponsesMerged)

	turn := &conversation.Turn{
		UserInput: question,
		Intent:    parsed.Primary().Clone(),
		Entities:  parsed.Entities,
		Response:  coordinated.MergedAnswer,
	}
	if err := m.conversations.AppendTurn(conversationID, turn); err != nil {
		return nil, fmt.Errorf("committing turn: %w", err)
	}
	m.recordAffinity(conversationID, parsed, coordinated)
	state = m.advance(conversationID, state, StateAnswered)

	return &Result{
		State:         state,
		Turn:          turn,
		Parsed:        parsed,
		Answer:        coordinated.MergedAnswer,
		Citations:     coordinated.Citations,
		Suggestions:   m.suggestions(conversationID, parsed),
		AgentsUsed:    coordinated.AgentsUsed,
		Confidence:    coordinated.Confidence,
		FollowUp:      followUp,
		TopicSwitched: topicSwitched,
	}, nil
}

// askClarification commits the clarification exchange as a turn and returns
// the terminal AskedClarification result. The answer carries the prompts;
// confidence is the parse's own low score.
func (m *Manager) askClarification(conversationID string, state TurnState, question string, parsed *intent.ParsedIntent, followUp, topicSwitched bool) (*Result, error) {
	answer := strings.Join(parsed.ClarificationPrompts, "\n")
	turn := &conversation.Turn{
		UserInput: question,
		Intent:    parsed.Primary().Clone(),
		Entities:  parsed.Entities,
		Response:  answer,
	}
	if err := m.conversations.AppendTurn(conversationID, turn); err != nil {
		return nil, fmt.Errorf("committing clarification turn: %w", err)
	}
	state = m.advance(conversationID, state, StateAskedClarification)

	return &Result{
		State:         state,
		Turn:          turn,
		Parsed:        parsed,
		Answer:        answer,
		Suggestions:   parsed.ClarificationPrompts,
		AgentsUsed:    []string{},
		Confidence:    parsed.Confidence,
		FollowUp:      followUp,
		TopicSwitched: topicSwitched,
	}, nil
}

// recordAffinity remembers which agent answered for the intent's entity or
// topic, so later routing prefers it. The apology fallback records nothing.
func (m *Manager) recordAffinity(conversationID string, parsed *intent.ParsedIntent, coordinated *router.CoordinatedResponse) {
	if len(coordinated.AgentsUsed) == 0 || coordinated.Primary == nil {
		return
	}
	key := router.AffinityKey(parsed.Primary())
	if key == "" {
		return
	}
	if err := m.conversations.AssignAgent(conversationID, key, coordinated.Primary.Route.AgentID); err != nil {
		m.logger.Warn("recording agent assignment failed",
			"conversation_id", conversationID,
			"key", key,
			"error", err)
	}
}

// suggestions turns the expansion list into natural-language prompts and adds
// sibling entities of the same type recently seen in conversation.
func (m *Manager) suggestions(conversationID string, parsed *intent.ParsedIntent) []string {
	var out []string
	if len(parsed.Expanded) > 1 {
		for _, sub := range parsed.Expanded[1:] {
			out = append(out, sub.Question)
		}
	}

	recent, err := m.conversations.RecentEntities(conversationID, parsed.Type.EntityType(), maxSuggestions+1)
	if err != nil {
		return out
	}
	for _, ent := range recent {
		if len(out) >= maxSuggestions {
			break
		}
		if strings.EqualFold(ent.Name, parsed.Entity) {
			continue
		}
		out = append(out, fmt.Sprintf("What about %s?", ent.Name))
	}
	return out
}

// advance logs one state transition and returns the new state.
func (m *Manager) advance(conversationID string, from, to TurnState) TurnState {
	m.logger.Debug("turn state", "conversation_id", conversationID, "from", from, "to", to)
	return to
}

// isFollowUpText reports whether the resolved question leans on the previous
// turn: a possessive or continuation pattern anywhere, or a conjunction
// pattern opening a clause.
func isFollowUpText(text string) bool {
	lower := strings.ToLower(text)
	for _, pattern := range followUpPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	for _, clause := range splitClauses(lower) {
		for _, pattern := range clauseStartPatterns {
			if strings.HasPrefix(clause, pattern) {
				return true
			}
		}
	}
	return false
}

// splitClauses breaks a question at clause punctuation and trims the pieces.
func splitClauses(lower string) []string {
	clauses := strings.FieldsFunc(lower, func(r rune) bool {
		switch r {
		case ',', ';', '.', '?', '!':
			return true
		}
		return false
	})
	for i := range clauses {
		clauses[i] = strings.TrimSpace(clauses[i])
	}
	return clauses
}

// isTopicSwitch reports whether the new intent moves off the previous one:
// a known type or target that differs, outside a follow-up. A still-unknown
// parse never switches topic.
func isTopicSwitch(parsed *intent.ParsedIntent, prev *conversation.Intent) bool {
	if prev == nil || !parsed.Type.Known() {
		return false
	}
	return parsed.Type != prev.Type || !strings.EqualFold(parsed.Entity, prev.Entity)
}

// switchTopic picks the incoming topic for a switch: the new target entity,
// otherwise the dimension tag. The topic filter is no use here; by this
// point it can only hold the outgoing topic the refine step inherited.
// Empty clears the topic rather than carrying the stale one forward.
func switchTopic(parsed *intent.ParsedIntent) string {
	if parsed.Entity != "" {
		return parsed.Entity
	}
	return parsed.Filter(conversation.FilterDimension)
}
