// ABOUTME: Keyword base classifier: deterministic first-pass intent typing
// ABOUTME: from dimension tags, known names in the store, and keyword cues.

package knowledge

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"github.com/bthornemail/automata-converse/internal/conversation"
)

var (
	dimensionPattern = regexp.MustCompile(`\b\d+[dD]\b`)
	tokenPattern     = regexp.MustCompile(`[A-Za-z0-9_][A-Za-z0-9_-]*`)
)

// lookupKinds is the order tokens are checked against the store. Agents win
// over functions so "Does 4D-Network-Agent call teleport?" types as an agent
// question about the leftmost named thing.
var lookupKinds = []Kind{KindAgent, KindFunction, KindRule, KindFact, KindExample}

// Classifier is the knowledge-store-aware keyword classifier: the pluggable
// first pass that assigns an initial type before conversation-context
// refinement. It is deterministic; the same question always classifies the
// same way against the same store.
type Classifier struct {
	store  Store
	logger *slog.Logger
}

// NewClassifier creates a classifier over the given store.
func NewClassifier(store Store, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		store:  store,
		logger: logger.With("component", "classifier"),
	}
}

// Classify produces a base intent for an already-dereferenced question:
// dimension filter from NdD tags, entity and type from the first known name
// in the store, keyword cues for type when no name matched, and query-type
// cues ("dependencies", "examples", "related").
func (c *Classifier) Classify(ctx context.Context, question string) (*conversation.Intent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	intent := &conversation.Intent{
		Type:     conversation.IntentUnknown,
		Question: question,
	}
	lower := strings.ToLower(question)

	if tag := dimensionPattern.FindString(question); tag != "" {
		intent.SetFilter(conversation.FilterDimension, strings.ToUpper(tag))
	}

	if rec := c.findNamedRecord(ctx, question); rec != nil {
		intent.Entity = rec.Name
		intent.Type = kindIntentType(rec.Kind)
		if rec.Topic != "" {
			intent.SetFilter(conversation.FilterTopic, rec.Topic)
		}
	}

	if !intent.Type.Known() {
		intent.Type = keywordIntentType(lower)
	}

	switch {
	case strings.Contains(lower, "depend"):
		intent.SetFilter(conversation.FilterQueryType, conversation.QueryDependencies)
	case strings.Contains(lower, "example") || strings.Contains(lower, "sample"):
		if intent.Type != conversation.IntentExample {
			intent.SetFilter(conversation.FilterQueryType, conversation.QueryExamples)
		}
	case strings.Contains(lower, "related"):
		intent.SetFilter(conversation.FilterQueryType, conversation.QueryRelatedRules)
	}

	c.logger.Debug("classified question",
		"type", intent.Type,
		"entity", intent.Entity,
		"filters", intent.Filters)
	return intent, nil
}

// findNamedRecord scans question tokens left to right for the first name the
// store knows, preferring hyphenated and call-form tokens over plain words.
func (c *Classifier) findNamedRecord(ctx context.Context, question string) *Record {
	tokens := tokenPattern.FindAllString(question, -1)

	// Hyphenated names and function-call forms are stronger signals; check
	// them before bare words.
	var strong, plain []string
	for _, tok := range tokens {
		if strings.Contains(tok, "-") || strings.Contains(question, tok+"(") {
			strong = append(strong, tok)
		} else {
			plain = append(plain, tok)
		}
	}

	for _, group := range [][]string{strong, plain} {
		for _, tok := range group {
			if len(tok) < 3 {
				continue
			}
			for _, kind := range lookupKinds {
				rec, err := c.store.Lookup(ctx, kind, tok)
				if err == nil {
					return rec
				}
				if !errors.Is(err, ErrRecordNotFound) {
					c.logger.Debug("name lookup failed", "token", tok, "error", err)
				}
			}
		}
	}
	return nil
}

// kindIntentType maps a record kind to the intent type it implies.
func kindIntentType(kind Kind) conversation.IntentType {
	switch kind {
	case KindAgent:
		return conversation.IntentAgent
	case KindFunction:
		return conversation.IntentFunction
	case KindRule:
		return conversation.IntentRule
	case KindFact:
		return conversation.IntentFact
	case KindExample:
		return conversation.IntentExample
	default:
		return conversation.IntentUnknown
	}
}

// keywordIntentType maps keyword cues to a type. Checks run in specificity
// order; the question-word fallbacks come last so "what agents run in 4D"
// types as an agent question, not a fact.
func keywordIntentType(lower string) conversation.IntentType {
	switch {
	case containsAny(lower, "example", "sample", "show me how", "walkthrough", "demo"):
		return conversation.IntentExample
	case containsAny(lower, "function", "signature", "invoke", "how do i call", "parameters"):
		return conversation.IntentFunction
	case containsAny(lower, "rule", "allowed", "constraint", "policy", "restriction"):
		return conversation.IntentRule
	case containsAny(lower, "agent", "who handles", "who runs", "who manages", "depend"):
		return conversation.IntentAgent
	case containsAny(lower, "what is", "what are", "tell me about", "when ", "where ", "why ", "how many"):
		return conversation.IntentFact
	default:
		return conversation.IntentUnknown
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
