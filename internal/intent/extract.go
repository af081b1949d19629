// ABOUTME: Entity extraction from resolved question text: dimension tags,
// ABOUTME: agent-style names, and function mentions, reconciled with state.

package intent

import (
	"regexp"
	"strings"

	"github.com/bthornemail/automata-converse/internal/conversation"
)

var (
	dimensionPattern    = regexp.MustCompile(`\b\d+[dD]\b`)
	agentNamePattern    = regexp.MustCompile(`\b(?:[A-Za-z0-9]+-)+Agent\b`)
	functionCallPattern = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
	camelNamePattern    = regexp.MustCompile(`\b[a-z][a-z0-9]*(?:[A-Z][a-z0-9]+)+\b`)
)

// extract pulls entity mentions out of the resolved question, reconciles each
// against existing conversation entities by case-insensitive name, and settles
// the intent's target entity. Fresh records are created only for mentions with
// no existing match. Strong mentions (agent names, function calls) that match
// nothing are kept aside for the clarification check.
func (p *Parser) extract(conv *conversation.Conversation, referenced []*conversation.Entity, parsed *ParsedIntent) {
	text := parsed.ResolvedQuestion
	seen := make(map[string]bool)
	backed := make(map[string]bool)

	add := func(name string, etype conversation.EntityType, strong bool) {
		key := strings.ToLower(name)
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		if existing := conv.Entity(name); existing != nil {
			ec := *existing
			parsed.Entities = append(parsed.Entities, &ec)
			backed[key] = true
			return
		}
		parsed.Entities = append(parsed.Entities, &conversation.Entity{
			Type:       etype,
			Name:       name,
			Provenance: conversation.ProvenanceExtracted,
		})
		if strong && !strings.EqualFold(name, parsed.Entity) {
			parsed.unmatched = append(parsed.unmatched, name)
		}
	}

	for _, tag := range dimensionPattern.FindAllString(text, -1) {
		add(strings.ToUpper(tag), conversation.EntityConcept, false)
	}
	for _, name := range agentNamePattern.FindAllString(text, -1) {
		add(name, conversation.EntityAgent, true)
	}
	for _, m := range functionCallPattern.FindAllStringSubmatch(text, -1) {
		add(m[1], conversation.EntityFunction, true)
	}
	for _, name := range camelNamePattern.FindAllString(text, -1) {
		add(name, conversation.EntityFunction, false)
	}

	// Entities substituted in by the resolver count as mentions of this turn.
	for _, ent := range referenced {
		key := strings.ToLower(ent.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		backed[key] = true
		ec := *ent
		parsed.Entities = append(parsed.Entities, &ec)
	}

	// A single compatible mention becomes the target when the classifier
	// bound nothing. Two or more stay unsettled for the clarification check.
	if !parsed.explicit && parsed.Entity == "" && parsed.Type.Known() {
		if compatible := entitiesOfType(parsed.Entities, parsed.Type.EntityType()); len(compatible) == 1 {
			parsed.Entity = compatible[0].Name
		}
	}

	if parsed.Entity == "" {
		return
	}
	key := strings.ToLower(parsed.Entity)
	named := strings.Contains(strings.ToLower(text), key)
	switch {
	case seen[key]:
		parsed.found = named && (backed[key] || parsed.explicit)
	case conv.Entity(parsed.Entity) != nil:
		ec := *conv.Entity(parsed.Entity)
		parsed.Entities = append(parsed.Entities, &ec)
		parsed.found = named
	case parsed.explicit:
		parsed.Entities = append(parsed.Entities, &conversation.Entity{
			Type:       parsed.Type.EntityType(),
			Name:       parsed.Entity,
			Provenance: conversation.ProvenanceExtracted,
		})
		parsed.found = named
	}
}

// hasNameMention reports whether the text names something concrete that
// extraction would pick up.
func hasNameMention(text string) bool {
	return agentNamePattern.MatchString(text) ||
		functionCallPattern.MatchString(text) ||
		camelNamePattern.MatchString(text)
}

// entitiesOfType filters an entity list to one type.
func entitiesOfType(entities []*conversation.Entity, etype conversation.EntityType) []*conversation.Entity {
	var out []*conversation.Entity
	for _, ent := range entities {
		if ent.Type == etype {
			out = append(out, ent)
		}
	}
	return out
}

// containsEntity reports whether the list already holds the lowercase name.
func containsEntity(entities []*conversation.Entity, key string) bool {
	for _, ent := range entities {
		if strings.ToLower(ent.Name) == key {
			return true
		}
	}
	return false
}
