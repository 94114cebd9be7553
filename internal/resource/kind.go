// Package resource models API.ai resources (intents and entities), snapshots
// of a whole resource collection, reconciliation plans, and the binary
// snapshot codec stored in the history repository.
package resource

import "fmt"

// Kind names a remote resource collection.
type Kind string

const (
	Intents  Kind = "intents"
	Entities Kind = "entities"
)

// Kinds returns every supported kind in the order they are saved and restored.
func Kinds() []Kind {
	return []Kind{Intents, Entities}
}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Intents, Entities:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown resource kind %q (expected intents or entities)", s)
	}
}

// Singular returns the kind name without the trailing "s", for log output.
func (k Kind) Singular() string {
	switch k {
	case Intents:
		return "intent"
	case Entities:
		return "entity"
	default:
		return string(k)
	}
}

// BlobName is the file name a snapshot of this kind is stored under.
func (k Kind) BlobName() string {
	return string(k) + ".msgpack"
}
