package domdef

import (
	"testing"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graveldb/gravel/internal/domain"
	"github.com/graveldb/gravel/internal/event"
	"github.com/graveldb/gravel/internal/wire"
)

func compileTestDefinition(t *testing.T, src string) (*Definition, error) {
	t.Helper()
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	require.NoError(t, v.Err())
	return CompileDefinition(v.LookupPath(cue.ParsePath("domain")))
}

func TestCompileDefinitionBasic(t *testing.T) {
	def, err := compileTestDefinition(t, `
		domain: {
			name:   "cars"
			secret: "67726176656c2d746573742d30303031"

			snapshot: {
				skip:        2
				compression: "none"
			}

			roots: {
				garage: "map"
				tags:   "set"
			}

			timers: {
				heartbeat: {
					anchor:   "2024-01-01T00:00:00Z"
					interval: "1m"
				}
			}
		}
	`)
	require.NoError(t, err)

	assert.Equal(t, "cars", def.Name)
	require.NotNil(t, def.Secret)
	assert.Equal(t, byte('g'), def.Secret[0])
	assert.True(t, def.TimeKeeping, "time keeping defaults on")
	assert.Equal(t, domain.LostNotify, def.LostEvents, "lost events default to notify")
	assert.Equal(t, 2, def.Snapshot.Skip)
	assert.Equal(t, wire.CompressionNone, def.Snapshot.Compression)

	require.Len(t, def.Roots, 2)
	assert.Equal(t, Root{Label: "garage", Kind: event.KindMap}, def.Roots[0])
	assert.Equal(t, Root{Label: "tags", Kind: event.KindSet}, def.Roots[1])

	require.Len(t, def.Timers, 1)
	assert.Equal(t, "heartbeat", def.Timers[0].Label)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), def.Timers[0].Anchor)
	assert.Equal(t, time.Minute, def.Timers[0].Interval)
}

func TestCompileDefinitionDefaults(t *testing.T) {
	def, err := compileTestDefinition(t, `domain: { name: "minimal" }`)
	require.NoError(t, err)

	assert.Nil(t, def.Secret)
	assert.True(t, def.TimeKeeping)
	assert.Equal(t, 0, def.Snapshot.Skip)
	assert.Equal(t, wire.CompressionZlib, def.Snapshot.Compression)
	assert.Empty(t, def.Roots)
	assert.Empty(t, def.Timers)
}

func TestCompileDefinitionMissingName(t *testing.T) {
	_, err := compileTestDefinition(t, `domain: { timeKeeping: false }`)
	require.Error(t, err)

	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "name", cerr.Field)
}

func TestCompileDefinitionRejectsBadValues(t *testing.T) {
	cases := []struct {
		name  string
		src   string
		field string
	}{
		{
			name:  "bad secret length",
			src:   `domain: { name: "d", secret: "abcd" }`,
			field: "secret",
		},
		{
			name:  "unknown root kind",
			src:   `domain: { name: "d", roots: { junk: "blob" } }`,
			field: "roots.junk",
		},
		{
			name:  "unknown lost policy",
			src:   `domain: { name: "d", lostEvents: "explode" }`,
			field: "lostEvents",
		},
		{
			name:  "unknown compression",
			src:   `domain: { name: "d", snapshot: { compression: "lz4" } }`,
			field: "snapshot.compression",
		},
		{
			name:  "skip below manual",
			src:   `domain: { name: "d", snapshot: { skip: -2 } }`,
			field: "snapshot.skip",
		},
		{
			name:  "timer missing interval",
			src:   `domain: { name: "d", timers: { t: { anchor: "2024-01-01T00:00:00Z" } } }`,
			field: "timers.t",
		},
		{
			name:  "timer zero interval",
			src:   `domain: { name: "d", timers: { t: { anchor: "2024-01-01T00:00:00Z", interval: "0s" } } }`,
			field: "timers.t.interval",
		},
		{
			name:  "timer bad anchor",
			src:   `domain: { name: "d", timers: { t: { anchor: "yesterday", interval: "1m" } } }`,
			field: "timers.t.anchor",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := compileTestDefinition(t, tc.src)
			require.Error(t, err)

			var cerr *CompileError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tc.field, cerr.Field)
		})
	}
}

func TestCompileDefinitionRootsAreSorted(t *testing.T) {
	def, err := compileTestDefinition(t, `
		domain: {
			name: "d"
			roots: {
				zulu:  "plain"
				alpha: "plain"
				mike:  "plain"
			}
		}
	`)
	require.NoError(t, err)

	require.Len(t, def.Roots, 3)
	assert.Equal(t, "alpha", def.Roots[0].Label)
	assert.Equal(t, "mike", def.Roots[1].Label)
	assert.Equal(t, "zulu", def.Roots[2].Label)
}
