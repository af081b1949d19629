// ABOUTME: ParsedIntent model plus the pluggable base-classifier contract
// ABOUTME: the parser consumes.

package intent

import (
	"context"

	"github.com/bthornemail/automata-converse/internal/conversation"
)

// Classifier is the pluggable first-pass classifier. It operates on an
// already-dereferenced question and assigns the initial type, target entity,
// and filters; the parser refines that output with conversation context.
type Classifier interface {
	Classify(ctx context.Context, question string) (*conversation.Intent, error)
}

// ParsedIntent is the complete parse of one question: the refined intent plus
// the resolution trace, the entities extracted this turn, a confidence score,
// clarification state, and the expansion list downstream stages consume.
type ParsedIntent struct {
	conversation.Intent

	OriginalQuestion      string                 `json:"original_question"`
	ResolvedQuestion      string                 `json:"resolved_question"`
	Entities              []*conversation.Entity `json:"entities,omitempty"`
	Confidence            float64                `json:"confidence"`
	RequiresClarification bool                   `json:"requires_clarification"`
	ClarificationPrompts  []string               `json:"clarification_prompts,omitempty"`
	Expanded              []conversation.Intent  `json:"expanded,omitempty"`

	// explicit records that the classifier bound the target entity from the
	// question text; an explicit target is never overridden by inheritance.
	explicit bool
	// found records that the target entity was both named in the question
	// and backed by conversation state or the classifier's store.
	found bool
	// unmatched lists strong name mentions that matched nothing.
	unmatched []string
	// unresolvedRefs lists reference spans the resolver left untouched.
	unresolvedRefs []string
}

// Primary returns the refined primary intent.
func (p *ParsedIntent) Primary() *conversation.Intent {
	return &p.Intent
}

// Intents returns the expansion list, or just the primary intent when no
// expansion was produced. The primary is always first.
func (p *ParsedIntent) Intents() []conversation.Intent {
	if len(p.Expanded) > 0 {
		return p.Expanded
	}
	return []conversation.Intent{*p.Intent.Clone()}
}
