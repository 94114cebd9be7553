package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromDocumentLiftsID(t *testing.T) {
	r, err := FromDocument(map[string]any{"id": "abc", "name": "greeting"})
	require.NoError(t, err)

	assert.Equal(t, "abc", r.ID)
	assert.NotContains(t, r.Fields, IDField)
	assert.Equal(t, "greeting", r.Fields["name"])
}

func TestFromDocumentMissingID(t *testing.T) {
	_, err := FromDocument(map[string]any{"name": "greeting"})
	assert.ErrorIs(t, err, ErrMissingID)

	_, err = FromDocument(map[string]any{"id": 12.0})
	assert.ErrorIs(t, err, ErrMissingID)
}

func TestPayloadNeverCarriesID(t *testing.T) {
	r := New("abc", map[string]any{"id": "abc", "name": "greeting"})
	payload := r.Payload()

	assert.NotContains(t, payload, IDField)
	assert.Equal(t, map[string]any{"name": "greeting"}, payload)
}

func TestPayloadIsDeepCopy(t *testing.T) {
	r := New("abc", map[string]any{
		"userSays": []any{map[string]any{"text": "hi"}},
	})
	payload := r.Payload()
	payload["userSays"].([]any)[0].(map[string]any)["text"] = "changed"

	assert.Equal(t, "hi", r.Fields["userSays"].([]any)[0].(map[string]any)["text"])
}

func TestDocumentIncludesID(t *testing.T) {
	r := New("abc", map[string]any{"name": "greeting"})
	assert.Equal(t, map[string]any{"id": "abc", "name": "greeting"}, r.Document())
}

func TestEqualIgnoresID(t *testing.T) {
	a := New("a", map[string]any{"name": "foo", "priority": 500000.0})
	b := New("b", map[string]any{"name": "foo", "priority": 500000.0})
	c := New("a", map[string]any{"name": "bar", "priority": 500000.0})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.Empty(t, a.Diff(b))
	assert.NotEmpty(t, a.Diff(c))
}

func TestEqualTreatsNilAndEmptyAlike(t *testing.T) {
	a := New("a", map[string]any{"events": []any{}})
	b := New("a", map[string]any{"events": []any(nil)})
	assert.True(t, a.Equal(b))
}

func TestName(t *testing.T) {
	assert.Equal(t, "greeting", New("a", map[string]any{"name": "greeting"}).Name())
	assert.Equal(t, "a", New("a", nil).Name())
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("entities")
	require.NoError(t, err)
	assert.Equal(t, Entities, k)

	_, err = ParseKind("contexts")
	assert.Error(t, err)
}

func TestNewSnapshotRejectsDuplicates(t *testing.T) {
	_, err := NewSnapshot(Intents, New("a", nil), New("a", nil))
	assert.ErrorContains(t, err, "duplicate intent id")

	_, err = NewSnapshot(Intents, New("", nil))
	assert.ErrorIs(t, err, ErrMissingID)
}

func TestSnapshotIDsSorted(t *testing.T) {
	s, err := NewSnapshot(Entities, New("c", nil), New("a", nil), New("b", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, s.IDs())
}
