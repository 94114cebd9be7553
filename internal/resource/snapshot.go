package resource

import (
	"fmt"
	"sort"
)

// Snapshot is every resource of one kind captured at one point in time,
// keyed by identifier.
type Snapshot struct {
	Kind      Kind
	Resources map[string]Resource
}

// NewSnapshot builds a Snapshot from resources. Duplicate identifiers are an
// error.
func NewSnapshot(kind Kind, resources ...Resource) (Snapshot, error) {
	s := Snapshot{Kind: kind, Resources: make(map[string]Resource, len(resources))}
	for _, r := range resources {
		if r.ID == "" {
			return Snapshot{}, fmt.Errorf("%s: %w", kind.Singular(), ErrMissingID)
		}
		if _, dup := s.Resources[r.ID]; dup {
			return Snapshot{}, fmt.Errorf("duplicate %s id %q", kind.Singular(), r.ID)
		}
		s.Resources[r.ID] = r
	}
	return s, nil
}

// Len returns the number of resources.
func (s Snapshot) Len() int {
	return len(s.Resources)
}

// IDs returns the identifiers in sorted order.
func (s Snapshot) IDs() []string {
	ids := make([]string, 0, len(s.Resources))
	for id := range s.Resources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Equal reports whether both snapshots hold the same kind, the same
// identifiers, and equal fields per identifier.
func (s Snapshot) Equal(other Snapshot) bool {
	if s.Kind != other.Kind || len(s.Resources) != len(other.Resources) {
		return false
	}
	for id, r := range s.Resources {
		o, ok := other.Resources[id]
		if !ok || !r.Equal(o) {
			return false
		}
	}
	return true
}

// Documents returns the snapshot as id -> document, the shape the service and
// the show command use.
func (s Snapshot) Documents() map[string]map[string]any {
	out := make(map[string]map[string]any, len(s.Resources))
	for id, r := range s.Resources {
		out[id] = r.Document()
	}
	return out
}
