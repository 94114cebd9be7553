package resource

import (
	"errors"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// IDField is the document key the remote service stores identifiers under.
const IDField = "id"

// ErrMissingID is returned when a remote document has no string identifier.
var ErrMissingID = errors.New("document has no id")

// Resource is a single intent or entity: an identifier assigned by the remote
// service plus the platform-specific fields. Fields never holds the id key.
type Resource struct {
	ID     string
	Fields map[string]any
}

// New builds a Resource from an id and a field map. Any id key in fields is
// dropped; the fields are deep-copied.
func New(id string, fields map[string]any) Resource {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == IDField {
			continue
		}
		out[k] = deepCopy(v)
	}
	return Resource{ID: id, Fields: out}
}

// FromDocument lifts the id out of a raw JSON document.
func FromDocument(doc map[string]any) (Resource, error) {
	id, _ := doc[IDField].(string)
	if id == "" {
		return Resource{}, ErrMissingID
	}
	return New(id, doc), nil
}

// Payload returns the request body for a create or update call. It never
// contains the id field: the service assigns identifiers on create and takes
// them from the URL on update.
func (r Resource) Payload() map[string]any {
	out := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		out[k] = deepCopy(v)
	}
	return out
}

// Document returns the fields with the id folded back in.
func (r Resource) Document() map[string]any {
	doc := r.Payload()
	doc[IDField] = r.ID
	return doc
}

// Name returns the resource's display name, or its id if it has none.
func (r Resource) Name() string {
	if name, ok := r.Fields["name"].(string); ok && name != "" {
		return name
	}
	return r.ID
}

var fieldOpts = cmp.Options{cmpopts.EquateEmpty()}

// Equal reports whether both resources carry the same fields. Identifiers are
// ignored because the service reassigns them when a resource is recreated.
func (r Resource) Equal(other Resource) bool {
	return cmp.Equal(r.Fields, other.Fields, fieldOpts)
}

// Diff returns a human-readable diff from r to other, empty when Equal.
func (r Resource) Diff(other Resource) string {
	return cmp.Diff(r.Fields, other.Fields, fieldOpts)
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}
