// ABOUTME: Core conversation data model: Conversation, Turn, Entity, Intent.
// ABOUTME: Defines entity/intent type tags, filter keys, and lifecycle constants.

package conversation

import (
	"strings"
	"time"
)

// DefaultUserID is the sentinel owner for conversations created without an
// explicit user.
const DefaultUserID = "default"

// maxTurns caps the turn sequence per conversation. Oldest turns are trimmed
// from the front when the cap is exceeded.
const maxTurns = 100

// entityTTL is how long an entity stays eligible for reference resolution and
// recency queries after it was last touched. Expiry is checked lazily at read
// time; there is no background sweep.
const entityTTL = 30 * time.Minute

// EntityType tags a tracked entity.
type EntityType string

const (
	EntityAgent    EntityType = "agent"
	EntityFunction EntityType = "function"
	EntityConcept  EntityType = "concept"
	EntityFact     EntityType = "fact"
	EntityRule     EntityType = "rule"
)

// IntentType classifies the purpose of a question.
type IntentType string

const (
	IntentAgent    IntentType = "agent"
	IntentFunction IntentType = "function"
	IntentRule     IntentType = "rule"
	IntentFact     IntentType = "fact"
	IntentExample  IntentType = "example"
	IntentUnknown  IntentType = "unknown"
)

// Known returns true for every type except IntentUnknown.
func (t IntentType) Known() bool {
	return t != IntentUnknown && t != ""
}

// EntityType maps an intent type to the entity type it targets. Example
// intents target function entities; everything else maps one to one.
func (t IntentType) EntityType() EntityType {
	switch t {
	case IntentAgent:
		return EntityAgent
	case IntentFunction, IntentExample:
		return EntityFunction
	case IntentRule:
		return EntityRule
	case IntentFact:
		return EntityFact
	default:
		return EntityConcept
	}
}

// Recognized filter keys on Intent.Filters. The map is open for forward
// compatibility, but routing and refinement only consult these keys.
const (
	FilterDimension = "dimension"
	FilterTopic     = "topic"
	FilterQueryType = "queryType"
)

// Recognized FilterQueryType values. Expansion adds one sub-intent per
// matching value: agent intents gain dependencies, function intents gain
// examples, rule intents gain related rules.
const (
	QueryDependencies = "dependencies"
	QueryExamples     = "examples"
	QueryRelatedRules = "relatedRules"
)

// Entity provenance values.
const (
	ProvenanceExtracted = "extracted-from-question"
	ProvenanceResolved  = "resolved-from-question"
	ProvenanceImported  = "imported-snapshot"
)

// Entity is a named thing mentioned in conversation, tracked so later turns
// can refer back to it ("it", "that agent").
type Entity struct {
	ID         string     `json:"id"`
	Type       EntityType `json:"type"`
	Name       string     `json:"name"`
	LastSeen   time.Time  `json:"last_seen"`
	Provenance string     `json:"provenance,omitempty"`
}

// expiredAt reports whether the entity is past its TTL at the given instant.
func (e *Entity) expiredAt(now time.Time) bool {
	return now.Sub(e.LastSeen) > entityTTL
}

// Intent is the classified purpose of one question: its type, optional target
// entity name, the literal question, and recognized filters.
type Intent struct {
	Type     IntentType        `json:"type"`
	Entity   string            `json:"entity,omitempty"`
	Question string            `json:"question"`
	Filters  map[string]string `json:"filters,omitempty"`
}

// Filter returns the value for a filter key, or "" when unset.
func (i *Intent) Filter(key string) string {
	if i == nil || i.Filters == nil {
		return ""
	}
	return i.Filters[key]
}

// SetFilter sets a filter value, allocating the map on first use.
func (i *Intent) SetFilter(key, value string) {
	if i.Filters == nil {
		i.Filters = make(map[string]string)
	}
	i.Filters[key] = value
}

// Clone returns a deep copy of the intent.
func (i *Intent) Clone() *Intent {
	if i == nil {
		return nil
	}
	out := *i
	if i.Filters != nil {
		out.Filters = make(map[string]string, len(i.Filters))
		for k, v := range i.Filters {
			out.Filters[k] = v
		}
	}
	return &out
}

// Turn is one exchange: the user's input, the intent parsed for it, the
// entities it mentioned, and the final response text. Turns are immutable
// once appended.
type Turn struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	UserInput string    `json:"user_input"`
	Intent    *Intent   `json:"intent,omitempty"`
	Entities  []*Entity `json:"entities,omitempty"`
	Response  string    `json:"response,omitempty"`
}

// Conversation is the full dialogue state for one user session. The Store
// owns every Conversation; other components read it and mutate only through
// Store operations.
type Conversation struct {
	ID              string             `json:"id"`
	UserID          string             `json:"user_id"`
	Turns           []Turn             `json:"turns"`
	Entities        map[string]*Entity `json:"entities"`
	CurrentIntent   *Intent            `json:"current_intent,omitempty"`
	PreviousIntents []Intent           `json:"previous_intents,omitempty"`
	Assignments     map[string]string  `json:"assignments,omitempty"`
	CurrentTopic    string             `json:"current_topic,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// Entity looks up a tracked entity by case-insensitive name. Expired entities
// are still returned here: an explicit mention by name revives them, unlike
// reference resolution which filters by TTL.
func (c *Conversation) Entity(name string) *Entity {
	if c.Entities == nil {
		return nil
	}
	return c.Entities[strings.ToLower(name)]
}

// clone returns a deep copy of the conversation.
func (c *Conversation) clone() *Conversation {
	out := *c
	out.Turns = make([]Turn, len(c.Turns))
	for i, t := range c.Turns {
		out.Turns[i] = t
		out.Turns[i].Intent = t.Intent.Clone()
		if t.Entities != nil {
			ents := make([]*Entity, len(t.Entities))
			for j, e := range t.Entities {
				ec := *e
				ents[j] = &ec
			}
			out.Turns[i].Entities = ents
		}
	}
	out.Entities = make(map[string]*Entity, len(c.Entities))
	for k, e := range c.Entities {
		ec := *e
		out.Entities[k] = &ec
	}
	out.CurrentIntent = c.CurrentIntent.Clone()
	out.PreviousIntents = make([]Intent, len(c.PreviousIntents))
	for i, in := range c.PreviousIntents {
		out.PreviousIntents[i] = *in.Clone()
	}
	if c.Assignments != nil {
		out.Assignments = make(map[string]string, len(c.Assignments))
		for k, v := range c.Assignments {
			out.Assignments[k] = v
		}
	}
	return &out
}
