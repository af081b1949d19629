// ABOUTME: In-memory knowledge store: RWMutex-guarded maps with lowercase
// ABOUTME: name indexes per kind, loaded once from seed packs at startup.

package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is the reference Store implementation. Records load at startup
// and are only read afterwards.
type MemoryStore struct {
	mu      sync.RWMutex
	byKind  map[Kind]map[string]*Record // kind -> lowercase name -> record
	records []*Record
	logger  *slog.Logger
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryStore{
		byKind: make(map[Kind]map[string]*Record),
		logger: logger.With("component", "knowledge"),
	}
}

// Add inserts one record, generating an id from the name when absent.
// A record with the same kind and name replaces the earlier one.
func (m *MemoryStore) Add(rec *Record) error {
	if rec == nil || rec.Name == "" {
		return fmt.Errorf("record needs a name")
	}
	if rec.Kind == "" {
		return fmt.Errorf("record %q needs a kind", rec.Name)
	}
	if rec.ID == "" {
		rec.ID = slugify(rec.Name)
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	kindIndex, ok := m.byKind[rec.Kind]
	if !ok {
		kindIndex = make(map[string]*Record)
		m.byKind[rec.Kind] = kindIndex
	}
	key := strings.ToLower(rec.Name)
	if prev, exists := kindIndex[key]; exists {
		for i, r := range m.records {
			if r == prev {
				m.records = append(m.records[:i], m.records[i+1:]...)
				break
			}
		}
	}
	kindIndex[key] = rec
	m.records = append(m.records, rec)
	return nil
}

// AddAll inserts records, stopping at the first failure.
func (m *MemoryStore) AddAll(recs []*Record) error {
	for _, rec := range recs {
		if err := m.Add(rec); err != nil {
			return err
		}
	}
	return nil
}

// Lookup finds one record by kind and case-insensitive exact name.
func (m *MemoryStore) Lookup(ctx context.Context, kind Kind, name string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	kindIndex, ok := m.byKind[kind]
	if !ok {
		return nil, ErrRecordNotFound
	}
	rec, ok := kindIndex[strings.ToLower(name)]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return rec, nil
}

// Find returns every record matching the query in name order.
func (m *MemoryStore) Find(ctx context.Context, q Query) ([]*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Record
	for _, rec := range m.records {
		if !matchesQuery(rec, q) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// Counts reports how many records each kind holds.
func (m *MemoryStore) Counts() map[Kind]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[Kind]int, len(m.byKind))
	for kind, index := range m.byKind {
		out[kind] = len(index)
	}
	return out
}

// Len returns the total record count.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func matchesQuery(rec *Record, q Query) bool {
	if len(q.Kinds) > 0 {
		found := false
		for _, k := range q.Kinds {
			if rec.Kind == k {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.Dimension != "" && !strings.EqualFold(rec.Dimension, q.Dimension) {
		return false
	}
	if q.Capability != "" {
		found := false
		for _, c := range rec.Capabilities {
			if strings.EqualFold(c, q.Capability) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.Keyword != "" {
		needle := strings.ToLower(q.Keyword)
		haystack := strings.ToLower(rec.Name + " " + rec.Description + " " + rec.Topic + " " + strings.Join(rec.Tags, " "))
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}

// slugify lowercases a name and squeezes non-alphanumerics into hyphens.
func slugify(name string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteRune('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
