// ABOUTME: Reference responder: answers one route's Ask from store records,
// ABOUTME: composing a Markdown answer with citations and a match confidence.

package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bthornemail/automata-converse/internal/conversation"
)

// Responder answers route queries from the knowledge store. It is the
// in-process stand-in for querying a live agent.
type Responder struct {
	store  Store
	logger *slog.Logger
}

// NewResponder creates a responder over the given store.
func NewResponder(store Store, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{
		store:  store,
		logger: logger.With("component", "responder"),
	}
}

// IntentKind maps an intent type to the record kind it queries.
func IntentKind(t conversation.IntentType) Kind {
	switch t {
	case conversation.IntentAgent:
		return KindAgent
	case conversation.IntentFunction:
		return KindFunction
	case conversation.IntentRule:
		return KindRule
	case conversation.IntentFact:
		return KindFact
	case conversation.IntentExample:
		return KindExample
	default:
		return ""
	}
}

// Answer resolves one route query. Specialist agents with no relevant
// knowledge fail the route with ErrRecordNotFound; the general agent always
// answers, at low confidence when it has nothing specific.
func (r *Responder) Answer(ctx context.Context, agentID string, ask Ask) (*Answer, error) {
	agent, err := r.agentRecord(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("looking up agent %q: %w", agentID, err)
	}

	var sections []string
	var citations []Citation
	confidence := 0.0

	if ask.Entity != "" {
		if rec := r.entityRecord(ctx, ask); rec != nil {
			sections = append(sections, describeRecord(rec))
			citations = append(citations, rec.Citation())
			confidence = 0.9
			for _, queryType := range ask.QueryTypes {
				text, cits := r.expandSection(ctx, rec, queryType)
				if text != "" {
					sections = append(sections, text)
					citations = append(citations, cits...)
				}
			}
		}
	}

	if len(sections) == 0 && ask.Dimension != "" {
		recs, err := r.store.Find(ctx, Query{Kinds: kindsFor(ask.Kind), Dimension: ask.Dimension})
		if err != nil {
			return nil, fmt.Errorf("dimension query: %w", err)
		}
		if len(recs) > 0 {
			sections = append(sections, describeGroup(ask.Dimension, recs))
			for _, rec := range recs {
				citations = append(citations, rec.Citation())
			}
			confidence = 0.75
		}
	}

	if len(sections) == 0 {
		keyword := ask.Topic
		if keyword == "" {
			keyword = ask.Entity
		}
		if keyword == "" {
			keyword = contentKeyword(ask.Question)
		}
		if keyword != "" {
			recs, err := r.store.Find(ctx, Query{Kinds: kindsFor(ask.Kind), Keyword: keyword})
			if err != nil {
				return nil, fmt.Errorf("keyword query: %w", err)
			}
			if len(recs) > 3 {
				recs = recs[:3]
			}
			for _, rec := range recs {
				sections = append(sections, describeRecord(rec))
				citations = append(citations, rec.Citation())
			}
			if len(sections) > 0 {
				confidence = 0.6
			}
		}
	}

	if len(sections) == 0 {
		if agent.ID != GeneralAgentID {
			return nil, fmt.Errorf("agent %q has nothing on %q: %w", agent.Name, ask.Question, ErrRecordNotFound)
		}
		facts, err := r.store.Find(ctx, Query{Kinds: []Kind{KindFact}})
		if err != nil {
			return nil, fmt.Errorf("orientation query: %w", err)
		}
		if len(facts) > 2 {
			facts = facts[:2]
		}
		var b strings.Builder
		b.WriteString("I don't have specifics on that yet.")
		for _, fact := range facts {
			b.WriteString(" ")
			b.WriteString(fact.Description)
			citations = append(citations, fact.Citation())
		}
		sections = append(sections, b.String())
		confidence = 0.3
	}

	return &Answer{
		Text:       strings.Join(sections, "\n\n"),
		Citations:  dedupeCitations(citations),
		Confidence: confidence,
	}, nil
}

// agentRecord finds the responding agent by name or id.
func (r *Responder) agentRecord(ctx context.Context, agentID string) (*Record, error) {
	if rec, err := r.store.Lookup(ctx, KindAgent, agentID); err == nil {
		return rec, nil
	}
	recs, err := r.store.Find(ctx, Query{Kinds: []Kind{KindAgent}})
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if strings.EqualFold(rec.ID, agentID) {
			return rec, nil
		}
	}
	return nil, ErrRecordNotFound
}

// entityRecord finds the asked-about entity, trying the intent's kind first
// and then the rest.
func (r *Responder) entityRecord(ctx context.Context, ask Ask) *Record {
	kinds := kindsFor(ask.Kind)
	seen := map[Kind]bool{}
	for _, kind := range kinds {
		seen[kind] = true
		if rec, err := r.store.Lookup(ctx, kind, ask.Entity); err == nil {
			return rec
		}
	}
	for _, kind := range []Kind{KindAgent, KindFunction, KindRule, KindFact, KindExample} {
		if seen[kind] {
			continue
		}
		if rec, err := r.store.Lookup(ctx, kind, ask.Entity); err == nil {
			return rec
		}
	}
	return nil
}

// expandSection builds the extra section for one expansion query type.
func (r *Responder) expandSection(ctx context.Context, rec *Record, queryType string) (string, []Citation) {
	switch queryType {
	case conversation.QueryDependencies:
		if len(rec.Dependencies) == 0 {
			return fmt.Sprintf("**%s** has no declared dependencies.", rec.Name), nil
		}
		var cits []Citation
		for _, dep := range rec.Dependencies {
			if depRec := r.anyKind(ctx, dep); depRec != nil {
				cits = append(cits, depRec.Citation())
			}
		}
		return fmt.Sprintf("**%s** depends on: %s.", rec.Name, strings.Join(rec.Dependencies, ", ")), cits

	case conversation.QueryExamples:
		var lines []string
		var cits []Citation
		for _, ex := range rec.Examples {
			lines = append(lines, "- `"+ex+"`")
		}
		found, err := r.store.Find(ctx, Query{Kinds: []Kind{KindExample}, Keyword: rec.Name})
		if err == nil {
			for _, exRec := range found {
				lines = append(lines, "- "+exRec.Description)
				cits = append(cits, exRec.Citation())
			}
		}
		if len(lines) == 0 {
			return "", nil
		}
		return fmt.Sprintf("Examples for **%s**:\n%s", rec.Name, strings.Join(lines, "\n")), cits

	case conversation.QueryRelatedRules:
		if len(rec.Related) == 0 {
			return "", nil
		}
		var lines []string
		var cits []Citation
		for _, rel := range rec.Related {
			line := "- " + rel
			if relRec, err := r.store.Lookup(ctx, KindRule, rel); err == nil {
				line = fmt.Sprintf("- **%s**: %s", relRec.Name, relRec.Description)
				cits = append(cits, relRec.Citation())
			}
			lines = append(lines, line)
		}
		return fmt.Sprintf("Rules related to **%s**:\n%s", rec.Name, strings.Join(lines, "\n")), cits
	}
	return "", nil
}

// anyKind looks a name up across every kind.
func (r *Responder) anyKind(ctx context.Context, name string) *Record {
	for _, kind := range []Kind{KindAgent, KindFunction, KindRule, KindFact, KindExample} {
		if rec, err := r.store.Lookup(ctx, kind, name); err == nil {
			return rec
		}
	}
	return nil
}

// kindsFor narrows a query to the asked kind, or all kinds when unset.
func kindsFor(kind Kind) []Kind {
	if kind == "" {
		return []Kind{KindAgent, KindFunction, KindRule, KindFact, KindExample}
	}
	return []Kind{kind}
}

// describeRecord renders one record as a Markdown paragraph.
func describeRecord(rec *Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** — %s", rec.Name, rec.Description)
	switch rec.Kind {
	case KindFunction:
		if rec.Signature != "" {
			fmt.Fprintf(&b, "\n\nSignature: `%s`", rec.Signature)
		}
	case KindAgent:
		if len(rec.Capabilities) > 0 {
			fmt.Fprintf(&b, "\n\nCapabilities: %s.", strings.Join(rec.Capabilities, ", "))
		}
	}
	return b.String()
}

// describeGroup renders a dimension listing.
func describeGroup(dimension string, recs []*Record) string {
	var lines []string
	for _, rec := range recs {
		lines = append(lines, fmt.Sprintf("- **%s**: %s", rec.Name, rec.Description))
	}
	return fmt.Sprintf("In %s:\n%s", dimension, strings.Join(lines, "\n"))
}

// contentKeyword picks the first substantive token of a question for the
// last-resort keyword search.
func contentKeyword(question string) string {
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(question), -1) {
		if len(tok) >= 4 && !stopwords[tok] {
			return tok
		}
	}
	return ""
}

var stopwords = map[string]bool{
	"what": true, "when": true, "where": true, "which": true, "whose": true,
	"this": true, "that": true, "those": true, "them": true, "there": true,
	"tell": true, "show": true, "does": true, "about": true, "with": true,
	"have": true, "will": true, "from": true, "into": true, "more": true,
}

func dedupeCitations(cits []Citation) []Citation {
	seen := make(map[string]bool, len(cits))
	var out []Citation
	for _, c := range cits {
		key := c.Source + "|" + c.Title
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}
