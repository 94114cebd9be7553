package resource

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// FormatVersion is written into every encoded snapshot.
const FormatVersion = 1

// ErrCorruptSnapshot wraps every decode failure.
var ErrCorruptSnapshot = errors.New("corrupt snapshot")

type envelope struct {
	FormatVersion int                       `msgpack:"format_version"`
	Kind          string                    `msgpack:"kind"`
	Resources     map[string]map[string]any `msgpack:"resources"`
}

// Encode serializes a snapshot to MessagePack. Map keys are sorted so that an
// unchanged snapshot encodes to identical bytes.
func Encode(s Snapshot) ([]byte, error) {
	env := envelope{
		FormatVersion: FormatVersion,
		Kind:          string(s.Kind),
		Resources:     s.Documents(),
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(env); err != nil {
		return nil, fmt.Errorf("encoding %s snapshot: %w", s.Kind, err)
	}
	return buf.Bytes(), nil
}

// Decode parses bytes produced by Encode. It never returns a partially
// populated snapshot.
func Decode(data []byte) (Snapshot, error) {
	if len(data) == 0 {
		return Snapshot{}, fmt.Errorf("%w: empty blob", ErrCorruptSnapshot)
	}

	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if env.FormatVersion != FormatVersion {
		return Snapshot{}, fmt.Errorf("%w: unsupported format version %d", ErrCorruptSnapshot, env.FormatVersion)
	}
	kind, err := ParseKind(env.Kind)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}

	s := Snapshot{Kind: kind, Resources: make(map[string]Resource, len(env.Resources))}
	for id, doc := range env.Resources {
		if docID, ok := doc[IDField].(string); ok && docID != id {
			return Snapshot{}, fmt.Errorf("%w: %s keyed %q carries id %q", ErrCorruptSnapshot, kind.Singular(), id, docID)
		}
		s.Resources[id] = New(id, doc)
	}
	return s, nil
}
