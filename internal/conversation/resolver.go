// ABOUTME: Reference resolver: rewrites anaphora ("it", "that agent") into
// ABOUTME: entity names using recency-ordered, TTL-filtered conversation state.

package conversation

import (
	"regexp"
	"strings"
	"time"
)

var (
	// Bare pronouns resolve against the most recently touched entity of any
	// type. Determiner references ("that agent", "the function") resolve
	// against the most recent entity of the named type.
	pronounPattern    = regexp.MustCompile(`(?i)\b(it|them)\b`)
	determinerPattern = regexp.MustCompile(`(?i)\b(?:that|this|those|the)\s+(agents?|functions?|concepts?|facts?|rules?)\b`)
)

// nounEntityType maps a reference noun to the entity type it selects.
func nounEntityType(noun string) EntityType {
	switch strings.TrimSuffix(strings.ToLower(noun), "s") {
	case "agent":
		return EntityAgent
	case "function":
		return EntityFunction
	case "concept":
		return EntityConcept
	case "fact":
		return EntityFact
	case "rule":
		return EntityRule
	default:
		return ""
	}
}

// Resolution is the outcome of rewriting one question. Referenced lists the
// entities substituted in; Unresolved lists reference spans that had no
// candidate entity and were left untouched.
type Resolution struct {
	Original   string
	Resolved   string
	Referenced []*Entity
	Unresolved []string
}

// Substituted reports whether any reference was rewritten.
func (r *Resolution) Substituted() bool {
	return r.Original != r.Resolved
}

// ResolveText rewrites every reference in text against the conversation's
// recent entities. Matched spans are replaced with entity display names so
// downstream parsing operates on a fully dereferenced question. Spans with no
// candidate entity are left as-is and reported in Unresolved.
func (s *Store) ResolveText(conv *Conversation, text string) Resolution {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := Resolution{Original: text, Resolved: text}
	if conv == nil {
		return res
	}
	now := time.Now()

	res.Resolved = determinerPattern.ReplaceAllStringFunc(res.Resolved, func(match string) string {
		fields := strings.Fields(match)
		noun := fields[len(fields)-1]
		ent := candidateEntity(conv, nounEntityType(noun), now)
		if ent == nil {
			res.Unresolved = append(res.Unresolved, match)
			return match
		}
		res.Referenced = append(res.Referenced, ent)
		return ent.Name
	})

	res.Resolved = pronounPattern.ReplaceAllStringFunc(res.Resolved, func(match string) string {
		ent := candidateEntity(conv, "", now)
		if ent == nil {
			res.Unresolved = append(res.Unresolved, match)
			return match
		}
		res.Referenced = append(res.Referenced, ent)
		return ent.Name
	})

	return res
}

// ResolveReference resolves a single reference phrase against the
// conversation, returning the selected entity or nil when no non-expired
// candidate exists.
func (s *Store) ResolveReference(referenceText string, conv *Conversation) *Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if conv == nil {
		return nil
	}

	wanted := EntityType("")
	if m := determinerPattern.FindString(referenceText); m != "" {
		fields := strings.Fields(m)
		wanted = nounEntityType(fields[len(fields)-1])
	}
	return candidateEntity(conv, wanted, time.Now())
}

// candidateEntity picks the most recently touched non-expired entity of the
// wanted type. Recency wins over type specificity only when no type-compatible
// entity exists: with no match for the wanted type, the most recent entity of
// any type is returned. Caller holds at least a read lock.
func candidateEntity(conv *Conversation, wanted EntityType, now time.Time) *Entity {
	var best, bestAny *Entity
	for _, ent := range conv.Entities {
		if ent.expiredAt(now) {
			continue
		}
		if bestAny == nil || ent.LastSeen.After(bestAny.LastSeen) {
			bestAny = ent
		}
		if wanted != "" && ent.Type == wanted {
			if best == nil || ent.LastSeen.After(best.LastSeen) {
				best = ent
			}
		}
	}
	if wanted == "" {
		return bestAny
	}
	if best != nil {
		return best
	}
	return bestAny
}
