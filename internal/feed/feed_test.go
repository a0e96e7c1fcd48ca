package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graveldb/gravel/internal/event"
)

func sampleEvents() []event.Event {
	return []event.Event{
		event.Created{ID: 0, Kind: event.KindPlain},
		event.PropertyDeclared{Prop: 0, Name: "Name"},
		event.PropertySet{ID: 0, Prop: 0, Value: event.String("Hello")},
		event.Created{ID: 1, Kind: event.KindArray},
		event.Insert{ID: 1, Index: 0, Value: event.Int(10)},
		event.Insert{ID: 1, Index: 1, Value: event.Ref(0)},
	}
}

func TestEncode_Opcodes(t *testing.T) {
	doc, err := Encode(1, sampleEvents())
	require.NoError(t, err)

	raw, err := doc.Marshal()
	require.NoError(t, err)

	want := `{"N":1,"E":[` +
		`{"O":"N","I":0,"K":"plain"},` +
		`{"O":"P","X":0,"N":"Name"},` +
		`{"O":"C","I":0,"X":0,"V":"Hello"},` +
		`{"O":"N","I":1,"K":"array"},` +
		`{"O":"I","I":1,"X":0,"V":10},` +
		`{"O":"I","I":1,"X":1,"V":{"r":0}}]}`
	assert.Equal(t, want, string(raw))
}

func TestDocument_MarshalRoundTrip(t *testing.T) {
	events := append(sampleEvents(),
		event.SetAt{ID: 1, Index: 0, Value: event.Float(1.5)},
		event.RemoveAt{ID: 1, Index: 1},
		event.Cleared{ID: 1},
		event.Destroyed{ID: 1},
	)
	doc, err := Encode(7, events)
	require.NoError(t, err)

	raw, err := doc.Marshal()
	require.NoError(t, err)

	back, err := Unmarshal(raw)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), back.N)

	got, err := back.Events()
	require.NoError(t, err)
	assert.Equal(t, events, got)
}

func TestDocument_MapOpcodes(t *testing.T) {
	events := []event.Event{
		event.Created{ID: 2, Kind: event.KindMap},
		event.PropertyDeclared{Prop: 0, Name: "color"},
		event.PropertySet{ID: 2, Prop: 0, Value: event.String("red")},
		event.KeyRemoved{ID: 2, Prop: 0},
	}
	doc, err := Encode(1, events)
	require.NoError(t, err)

	raw, err := doc.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `{"O":"K","I":2,"X":0}`)

	back, err := Unmarshal(raw)
	require.NoError(t, err)
	got, err := back.Events()
	require.NoError(t, err)
	assert.Equal(t, events, got)
}

func TestDecode_RejectsMalformedRecords(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"unknown opcode", `{"N":1,"E":[{"O":"Z"}]}`},
		{"create without id", `{"N":1,"E":[{"O":"N","K":"plain"}]}`},
		{"create with bad kind", `{"N":1,"E":[{"O":"N","I":0,"K":"blob"}]}`},
		{"declare without name", `{"N":1,"E":[{"O":"P","X":0}]}`},
		{"set without index", `{"N":1,"E":[{"O":"C","I":0,"V":1}]}`},
		{"set without value", `{"N":1,"E":[{"O":"C","I":0,"X":0}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Unmarshal([]byte(tt.raw))
			require.NoError(t, err)
			_, err = doc.Events()
			assert.Error(t, err)
		})
	}
}

func TestMirror_Reconstructs(t *testing.T) {
	m := NewMirror()

	doc, err := Encode(1, sampleEvents())
	require.NoError(t, err)
	require.NoError(t, m.Apply(doc))

	obj := m.Object(0)
	require.NotNil(t, obj)
	assert.Equal(t, event.KindPlain, obj.Kind)
	assert.True(t, event.Equal(event.String("Hello"), obj.Props[0]))

	arr := m.Object(1)
	require.NotNil(t, arr)
	require.Len(t, arr.Elems, 2)
	assert.True(t, event.Equal(event.Int(10), arr.Elems[0]))
	assert.True(t, event.Equal(event.Ref(0), arr.Elems[1]))
}

func TestMirror_StrictOrdering(t *testing.T) {
	m := NewMirror()

	doc1, err := Encode(1, []event.Event{event.Created{ID: 0, Kind: event.KindPlain}})
	require.NoError(t, err)
	doc3, err := Encode(3, []event.Event{event.Destroyed{ID: 0}})
	require.NoError(t, err)

	// Skipping a transaction number is rejected.
	err = m.Apply(doc3)
	assert.ErrorContains(t, err, "out of order")

	require.NoError(t, m.Apply(doc1))

	// Applying the same document twice is rejected.
	err = m.Apply(doc1)
	assert.ErrorContains(t, err, "out of order")
	assert.Equal(t, uint64(1), m.LastApplied())
}

func TestMirror_DestroyRemovesObject(t *testing.T) {
	m := NewMirror()

	doc1, err := Encode(1, []event.Event{event.Created{ID: 0, Kind: event.KindSet}})
	require.NoError(t, err)
	require.NoError(t, m.Apply(doc1))
	assert.Equal(t, 1, m.Len())

	doc2, err := Encode(2, []event.Event{event.Destroyed{ID: 0}})
	require.NoError(t, err)
	require.NoError(t, m.Apply(doc2))
	assert.Equal(t, 0, m.Len())
	assert.Nil(t, m.Object(0))
}

func TestMirror_Canonical_Deterministic(t *testing.T) {
	build := func() *Mirror {
		m := NewMirror()
		doc, err := Encode(1, sampleEvents())
		require.NoError(t, err)
		require.NoError(t, m.Apply(doc))
		return m
	}

	a, err := build().Canonical()
	require.NoError(t, err)
	b, err := build().Canonical()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Contains(t, string(a), `"lastApplied":1`)
}

func TestMirror_RejectsInconsistentDeclarations(t *testing.T) {
	m := NewMirror()

	// Declaring a property at the wrong index breaks the dense-id contract.
	doc, err := Encode(1, []event.Event{event.PropertyDeclared{Prop: 5, Name: "Name"}})
	require.NoError(t, err)
	assert.Error(t, m.Apply(doc))
}
