// ABOUTME: Knowledge store boundary: record model, read-only query interface,
// ABOUTME: citations, and the per-route Ask/Answer exchange types.

package knowledge

import (
	"context"
	"errors"
)

// Kind tags a knowledge record.
type Kind string

const (
	KindAgent    Kind = "agent"
	KindFunction Kind = "function"
	KindRule     Kind = "rule"
	KindFact     Kind = "fact"
	KindExample  Kind = "example"
)

// CapabilityGeneralEval marks agents that accept general-purpose evaluation
// queries. Function questions route to every agent advertising it.
const CapabilityGeneralEval = "general-eval"

// GeneralAgentID is the catch-all responder used when no routing rule
// matches. The default seed pack ships an agent under this id.
const GeneralAgentID = "general"

// ErrRecordNotFound is returned by lookups that match nothing.
var ErrRecordNotFound = errors.New("knowledge record not found")

// Record is one unit of world knowledge. Kind-specific fields are populated
// only for the matching kind: Capabilities/Dependencies for agents,
// Signature/Examples for functions, Related for rules.
type Record struct {
	ID           string   `json:"id" toml:"id"`
	Kind         Kind     `json:"kind" toml:"-"`
	Name         string   `json:"name" toml:"name"`
	Description  string   `json:"description" toml:"description"`
	Dimension    string   `json:"dimension,omitempty" toml:"dimension"`
	Topic        string   `json:"topic,omitempty" toml:"topic"`
	Source       string   `json:"source,omitempty" toml:"source"`
	Tags         []string `json:"tags,omitempty" toml:"tags"`
	Capabilities []string `json:"capabilities,omitempty" toml:"capabilities"`
	Dependencies []string `json:"dependencies,omitempty" toml:"dependencies"`
	Signature    string   `json:"signature,omitempty" toml:"signature"`
	Examples     []string `json:"examples,omitempty" toml:"examples"`
	Related      []string `json:"related,omitempty" toml:"related"`
}

// Citation identifies where an answer came from.
type Citation struct {
	Source string `json:"source"`
	Title  string `json:"title"`
	Type   string `json:"type"`
}

// Citation builds the citation for this record. The type tag follows the
// record kind, with agent and function records cited as definitions.
func (r *Record) Citation() Citation {
	citationType := string(r.Kind)
	if r.Kind == KindAgent || r.Kind == KindFunction {
		citationType = "definition"
	}
	return Citation{
		Source: r.Source,
		Title:  r.Name,
		Type:   citationType,
	}
}

// Query filters records. Zero-value fields are ignored; set fields are ANDed.
// Keyword matches name, description, topic, and tags case-insensitively.
type Query struct {
	Kinds      []Kind
	Dimension  string
	Keyword    string
	Capability string
}

// Store is the read-only query surface over world knowledge. The engine only
// reads; nothing here mutates.
type Store interface {
	// Lookup finds one record by kind and case-insensitive exact name.
	// Returns ErrRecordNotFound when nothing matches.
	Lookup(ctx context.Context, kind Kind, name string) (*Record, error)

	// Find returns every record matching the query, in stable name order.
	Find(ctx context.Context, q Query) ([]*Record, error)
}

// Ask is one route's query: the dereferenced question plus the structured
// hints routing derived from the intent.
type Ask struct {
	Question   string
	Kind       Kind
	Entity     string
	Dimension  string
	Topic      string
	QueryTypes []string
}

// Answer is one responder's reply for an Ask.
type Answer struct {
	Text       string
	Citations  []Citation
	Confidence float64
}
