// ABOUTME: Intent parser: resolves references, runs the base classifier, then
// ABOUTME: refines, extracts, clarifies, expands, and scores confidence.

package intent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bthornemail/automata-converse/internal/conversation"
)

// Confidence scoring weights. The base applies to every parse; bonuses and
// the clarification penalty are added on top and the result is clamped to
// [0,1].
const (
	BaseConfidence       = 0.5
	KnownTypeBonus       = 0.2
	EntityFoundBonus     = 0.2
	TopicMatchBonus      = 0.1
	ClarificationPenalty = 0.3
)

// Parser turns a raw question plus conversation state into a ParsedIntent.
type Parser struct {
	store      *conversation.Store
	classifier Classifier
	logger     *slog.Logger
}

// NewParser creates a parser over the conversation store and base classifier.
func NewParser(store *conversation.Store, classifier Classifier, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		store:      store,
		classifier: classifier,
		logger:     logger.With("component", "intent-parser"),
	}
}

// Parse resolves references in the question, obtains a base intent from the
// classifier, refines it with conversation context, extracts entities, runs
// the clarification check, expands sub-intents, and scores confidence.
// Returns conversation.ErrNotFound (wrapped) for an unknown conversation id.
func (p *Parser) Parse(ctx context.Context, conversationID, question string) (*ParsedIntent, error) {
	conv, err := p.store.Get(conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}

	res := p.store.ResolveText(conv, question)

	base, err := p.classifier.Classify(ctx, res.Resolved)
	if err != nil {
		return nil, fmt.Errorf("classifying question: %w", err)
	}

	parsed := &ParsedIntent{
		Intent:           *base.Clone(),
		OriginalQuestion: question,
		ResolvedQuestion: res.Resolved,
		unresolvedRefs:   res.Unresolved,
	}
	parsed.Intent.Question = res.Resolved
	parsed.explicit = parsed.Entity != ""

	p.refine(conversationID, conv, parsed)
	p.extract(conv, res.Referenced, parsed)
	p.finalize(conversationID, conv, parsed)

	p.logger.Debug("parsed intent",
		"conversation_id", conversationID,
		"type", parsed.Type,
		"entity", parsed.Entity,
		"confidence", parsed.Confidence,
		"requires_clarification", parsed.RequiresClarification)
	return parsed, nil
}

// MergeFollowUp folds the previous turn's intent into a follow-up parse:
// unknown types inherit, a missing target entity is carried over unless the
// question named its own, and the topic filter is preserved. Clarification,
// expansion, and confidence are re-evaluated after the merge.
func (p *Parser) MergeFollowUp(conversationID string, parsed *ParsedIntent, prev *conversation.Intent) error {
	if parsed == nil || prev == nil {
		return nil
	}
	conv, err := p.store.Get(conversationID)
	if err != nil {
		return fmt.Errorf("loading conversation: %w", err)
	}

	if !parsed.Type.Known() && prev.Type.Known() {
		parsed.Type = prev.Type
	}
	if !parsed.explicit && parsed.Entity == "" && len(parsed.unmatched) == 0 && prev.Entity != "" {
		parsed.Entity = prev.Entity
		key := strings.ToLower(prev.Entity)
		if ent := conv.Entity(prev.Entity); ent != nil && !containsEntity(parsed.Entities, key) {
			ec := *ent
			parsed.Entities = append(parsed.Entities, &ec)
		}
	}
	if topic := prev.Filter(conversation.FilterTopic); topic != "" && parsed.Filter(conversation.FilterTopic) == "" {
		parsed.SetFilter(conversation.FilterTopic, topic)
	}

	p.finalize(conversationID, conv, parsed)
	return nil
}

// refine folds conversation context into the base intent: an unknown type
// inherits from the previous intent when the question ties back to it, the
// current topic fills the topic filter, and a recent entity of matching type
// is adopted when the question names nothing itself.
func (p *Parser) refine(conversationID string, conv *conversation.Conversation, parsed *ParsedIntent) {
	if !parsed.Type.Known() && tiesBack(parsed) {
		if last := lastIntent(conv); last != nil && last.Type.Known() {
			parsed.Type = last.Type
		}
	}

	if conv.CurrentTopic != "" && parsed.Filter(conversation.FilterTopic) == "" {
		parsed.SetFilter(conversation.FilterTopic, conv.CurrentTopic)
	}

	// Soft inheritance. Never overrides an explicit match, never fires for
	// dimension-scoped listings or questions that name their own target.
	if parsed.explicit || parsed.Entity != "" || !parsed.Type.Known() {
		return
	}
	if parsed.Filter(conversation.FilterDimension) != "" || hasNameMention(parsed.ResolvedQuestion) {
		return
	}
	recent, err := p.store.RecentEntities(conversationID, parsed.Type.EntityType(), 1)
	if err != nil || len(recent) == 0 {
		return
	}
	parsed.Entity = recent[0].Name
}

// finalize runs the clarification check, expansion, and confidence scoring.
// Re-runnable after a follow-up merge adjusts the intent.
func (p *Parser) finalize(conversationID string, conv *conversation.Conversation, parsed *ParsedIntent) {
	parsed.RequiresClarification = false
	parsed.ClarificationPrompts = nil
	parsed.Expanded = nil

	p.clarify(conversationID, parsed)
	p.expand(parsed)
	parsed.Confidence = p.score(conv, parsed)
}

// clarify decides whether the turn needs a clarification exchange: the type
// is still unknown, an explicitly named target matched nothing, or several
// extracted entities could satisfy the intent. Candidates are listed as
// numbered options.
func (p *Parser) clarify(conversationID string, parsed *ParsedIntent) {
	var prompts []string

	if !parsed.Type.Known() {
		if len(parsed.unresolvedRefs) > 0 {
			prompts = append(prompts, fmt.Sprintf("I'm not sure what %q refers to here. Could you name it directly?", parsed.unresolvedRefs[0]))
		} else {
			prompts = append(prompts, "I'm not sure what you're asking about. Could you rephrase, or name an agent, function, or rule?")
		}
	}

	if !parsed.explicit && len(parsed.unmatched) > 0 {
		prompts = append(prompts, fmt.Sprintf("I couldn't find anything called %q.", parsed.unmatched[0]))
		prompts = append(prompts, p.entityOptions(conversationID, parsed.Type.EntityType())...)
	}

	if !parsed.explicit && parsed.Entity == "" && parsed.Type.Known() {
		if compatible := entitiesOfType(parsed.Entities, parsed.Type.EntityType()); len(compatible) > 1 {
			prompts = append(prompts, "Which one do you mean?")
			for i, ent := range compatible {
				prompts = append(prompts, fmt.Sprintf("%d. %s", i+1, ent.Name))
			}
		}
	}

	if len(prompts) > 0 {
		parsed.RequiresClarification = true
		parsed.ClarificationPrompts = prompts
	}
}

// entityOptions lists recent same-type entities as numbered choices.
func (p *Parser) entityOptions(conversationID string, etype conversation.EntityType) []string {
	recent, err := p.store.RecentEntities(conversationID, etype, 3)
	if err != nil || len(recent) == 0 {
		return nil
	}
	out := []string{"Did you mean one of these?"}
	for i, ent := range recent {
		out = append(out, fmt.Sprintf("%d. %s", i+1, ent.Name))
	}
	return out
}

// expand adds the canonical secondary sub-intent for the primary's type:
// dependencies for agents, examples for functions, related rules for rules.
// The primary is always first. A question already scoped to a query type is
// not expanded further.
func (p *Parser) expand(parsed *ParsedIntent) {
	if parsed.Entity == "" || parsed.Filter(conversation.FilterQueryType) != "" {
		return
	}

	var secondary *conversation.Intent
	switch parsed.Type {
	case conversation.IntentAgent:
		secondary = subIntent(parsed, conversation.QueryDependencies, "What are the dependencies of %s?")
	case conversation.IntentFunction:
		secondary = subIntent(parsed, conversation.QueryExamples, "What are examples of using %s?")
	case conversation.IntentRule:
		secondary = subIntent(parsed, conversation.QueryRelatedRules, "What rules are related to %s?")
	default:
		return
	}
	parsed.Expanded = []conversation.Intent{*parsed.Intent.Clone(), *secondary}
}

func subIntent(parsed *ParsedIntent, queryType, format string) *conversation.Intent {
	sub := &conversation.Intent{
		Type:     parsed.Type,
		Entity:   parsed.Entity,
		Question: fmt.Sprintf(format, parsed.Entity),
	}
	sub.SetFilter(conversation.FilterQueryType, queryType)
	return sub
}

// score applies the confidence heuristic and clamps to [0,1].
func (p *Parser) score(conv *conversation.Conversation, parsed *ParsedIntent) float64 {
	confidence := BaseConfidence
	if parsed.Type.Known() {
		confidence += KnownTypeBonus
	}
	if parsed.found {
		confidence += EntityFoundBonus
	}
	if parsed.Entity != "" && strings.EqualFold(parsed.Entity, conv.CurrentTopic) {
		confidence += TopicMatchBonus
	}
	if parsed.RequiresClarification {
		confidence -= ClarificationPenalty
	}
	return clamp(confidence)
}

// tiesBack reports whether an untyped question still connects to the prior
// exchange: a reference was substituted, a query-type cue is present, the
// text names something concrete, or a reference was at least attempted.
// Pure gibberish has none of these and stays unknown.
func tiesBack(parsed *ParsedIntent) bool {
	return parsed.OriginalQuestion != parsed.ResolvedQuestion ||
		parsed.Filter(conversation.FilterQueryType) != "" ||
		hasNameMention(parsed.ResolvedQuestion) ||
		len(parsed.unresolvedRefs) > 0
}

// lastIntent returns the most recent prior intent, if any.
func lastIntent(conv *conversation.Conversation) *conversation.Intent {
	if conv.CurrentIntent != nil {
		return conv.CurrentIntent
	}
	if n := len(conv.PreviousIntents); n > 0 {
		return &conv.PreviousIntents[n-1]
	}
	return nil
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
