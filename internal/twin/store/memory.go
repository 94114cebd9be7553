package store

import (
	"encoding/json"
	"fmt"
	"maps"

	"github.com/wondertwin-ai/apiai-git/internal/resource"
)

// Document is a stored intent or entity without its id.
type Document = map[string]any

// MemoryStore holds all twin state in memory.
type MemoryStore struct {
	Intents  *Store[Document]
	Entities *Store[Document]
}

// NewMemory creates a MemoryStore with empty state.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		Intents:  New[Document](),
		Entities: New[Document](),
	}
}

// Kind returns the collection for kind.
func (s *MemoryStore) Kind(kind resource.Kind) (*Store[Document], error) {
	switch kind {
	case resource.Intents:
		return s.Intents, nil
	case resource.Entities:
		return s.Entities, nil
	default:
		return nil, fmt.Errorf("unknown resource kind %q", kind)
	}
}

// stateSnapshot is the JSON-serializable state for admin endpoints.
type stateSnapshot struct {
	Intents  map[string]Document `json:"intents"`
	Entities map[string]Document `json:"entities"`
}

// Snapshot returns the full state as a JSON-serializable value.
func (s *MemoryStore) Snapshot() any {
	return stateSnapshot{
		Intents:  s.Intents.Snapshot(),
		Entities: s.Entities.Snapshot(),
	}
}

// LoadState replaces the full state from a JSON body. An id inside a
// document is dropped; the map key is the id.
func (s *MemoryStore) LoadState(data []byte) error {
	var snap stateSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	s.Intents.LoadSnapshot(stripIDs(snap.Intents))
	s.Entities.LoadSnapshot(stripIDs(snap.Entities))
	return nil
}

// Reset clears all state.
func (s *MemoryStore) Reset() {
	s.Intents.Reset()
	s.Entities.Reset()
}

func stripIDs(docs map[string]Document) map[string]Document {
	out := make(map[string]Document, len(docs))
	for id, doc := range docs {
		d := maps.Clone(doc)
		if d == nil {
			d = Document{}
		}
		delete(d, resource.IDField)
		out[id] = d
	}
	return out
}
