package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_InternDense(t *testing.T) {
	r := NewRegistry()

	id, fresh := r.Intern("Name")
	assert.Equal(t, PropID(0), id)
	assert.True(t, fresh)

	id, fresh = r.Intern("Age")
	assert.Equal(t, PropID(1), id)
	assert.True(t, fresh)

	// Re-interning returns the existing index.
	id, fresh = r.Intern("Name")
	assert.Equal(t, PropID(0), id)
	assert.False(t, fresh)

	assert.Equal(t, 2, r.Len())
}

func TestRegistry_NFCNormalization(t *testing.T) {
	r := NewRegistry()

	// "é" as a precomposed rune and as "e" + combining acute must intern
	// to the same index.
	a, _ := r.Intern("café")
	b, fresh := r.Intern("café")
	assert.Equal(t, a, b)
	assert.False(t, fresh)
}

func TestRegistry_Name(t *testing.T) {
	r := NewRegistry()
	r.Intern("Name")

	name, err := r.Name(0)
	require.NoError(t, err)
	assert.Equal(t, "Name", name)

	_, err = r.Name(1)
	assert.Error(t, err)
	_, err = r.Name(-1)
	assert.Error(t, err)
}

func TestRegistry_Restore(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Restore([]string{"Name", "Age", "Owner"}))

	id, fresh := r.Intern("Age")
	assert.Equal(t, PropID(1), id)
	assert.False(t, fresh)

	id, fresh = r.Intern("Color")
	assert.Equal(t, PropID(3), id)
	assert.True(t, fresh)
}

func TestRegistry_RestoreNeverRebinds(t *testing.T) {
	r := NewRegistry()
	r.Intern("Name")

	// An index is never reused for a different name.
	err := r.Restore([]string{"Other"})
	assert.Error(t, err)

	// Restoring a superset that preserves existing assignments is fine.
	require.NoError(t, r.Restore([]string{"Name", "Age"}))
	assert.Equal(t, []string{"Name", "Age"}, r.Names())
}
