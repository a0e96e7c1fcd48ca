package domain

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graveldb/gravel/internal/testutil"
	"github.com/graveldb/gravel/internal/wire"
)

func TestExternalRef_RoundTrip(t *testing.T) {
	d, _, _ := newTestDomain(t)

	var obj *Plain
	mustModify(t, d, func(tx *Transaction) error {
		var err error
		obj, err = d.CreatePlain(tx)
		return err
	})

	token, err := d.ExternalRef(obj)
	require.NoError(t, err)

	got, err := d.ResolveExternal(token, tick)
	require.NoError(t, err)
	assert.Same(t, Object(obj), got)
}

func TestExternalRef_ForgedDigestRejected(t *testing.T) {
	d, _, _ := newTestDomain(t)

	var obj *Plain
	mustModify(t, d, func(tx *Transaction) error {
		var err error
		obj, err = d.CreatePlain(tx)
		return err
	})

	token, err := d.ExternalRef(obj)
	require.NoError(t, err)
	forged := token[:len(token)-1] + "f"
	if forged == token {
		forged = token[:len(token)-1] + "0"
	}

	_, err = d.ResolveExternal(forged, tick)
	assert.ErrorContains(t, err, "does not belong to domain")
}

func TestExternalRef_MalformedTokenRejected(t *testing.T) {
	d, _, _ := newTestDomain(t)

	for _, token := range []string{"", "justaword", "abc-def", "-abcdef0123456789"} {
		_, err := d.ResolveExternal(token, tick)
		assert.ErrorContains(t, err, "malformed", "token %q", token)
	}
}

func TestExternalRef_ForeignDomainTokenRejected(t *testing.T) {
	d, _, _ := newTestDomain(t)
	other := New("other", WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(func() { other.Dispose(tick) })

	var obj *Plain
	mustModify(t, d, func(tx *Transaction) error {
		var err error
		obj, err = d.CreatePlain(tx)
		return err
	})

	token, err := d.ExternalRef(obj)
	require.NoError(t, err)
	_, err = other.ResolveExternal(token, tick)
	assert.ErrorContains(t, err, "does not belong to domain")
}

func TestExternalRef_DestroyedObjectFaultsOnMintResolvesNil(t *testing.T) {
	d, _, _ := newTestDomain(t)

	var keeper, victim *Plain
	mustModify(t, d, func(tx *Transaction) error {
		var err error
		keeper, err = d.CreatePlain(tx)
		require.NoError(t, err)
		victim, err = d.CreatePlain(tx)
		return err
	})
	_ = keeper

	token, err := d.ExternalRef(victim)
	require.NoError(t, err)

	mustModify(t, d, func(tx *Transaction) error {
		return victim.Destroy(tx)
	})

	_, err = d.ExternalRef(victim)
	assert.True(t, IsFault(err, FaultObjectDestroyed))

	got, err := d.ResolveExternal(token, tick)
	require.NoError(t, err)
	assert.Nil(t, got, "a stale token resolves to nil, not an error")
}

func TestExternalRef_SurvivesSaveAndLoad(t *testing.T) {
	d, _, _ := newTestDomain(t)

	var obj *Plain
	mustModify(t, d, func(tx *Transaction) error {
		var err error
		obj, err = d.CreatePlain(tx)
		return err
	})
	token, err := d.ExternalRef(obj)
	require.NoError(t, err)
	id := obj.ID()

	var buf bytes.Buffer
	require.NoError(t, d.Save(&buf, wire.CompressionZlib, tick))

	loaded, err := Load(bytes.NewReader(buf.Bytes()), d.Name(),
		WithClock(testutil.NewManualClock()),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	t.Cleanup(func() { loaded.Dispose(tick) })

	got, err := loaded.ResolveExternal(token, tick)
	require.NoError(t, err)
	require.NotNil(t, got, "the secret persists, so tokens outlive reloads")
	assert.Equal(t, id, got.ID())
}
