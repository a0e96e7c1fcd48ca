package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graveldb/gravel/internal/event"
	"github.com/graveldb/gravel/internal/testutil"
)

func TestGC_CollectsUnreachableKeepsRooted(t *testing.T) {
	d, _, _ := newTestDomain(t)

	var root, child, orphan *Plain
	mustModify(t, d, func(tx *Transaction) error {
		var err error
		root, err = d.CreatePlain(tx)
		require.NoError(t, err)
		require.NoError(t, d.DeclareRoot(tx, root))

		child, err = d.CreatePlain(tx)
		require.NoError(t, err)
		require.NoError(t, root.Set(tx, "child", event.Ref(child.ID())))

		orphan, err = d.CreatePlain(tx)
		require.NoError(t, err)
		return nil
	})

	res := d.CollectGarbage(tick)
	require.True(t, res.Success, "%v", res.Errors)

	assert.NotNil(t, d.Object(root.ID()), "roots survive")
	assert.NotNil(t, d.Object(child.ID()), "root-reachable objects survive")
	assert.Nil(t, d.Object(orphan.ID()), "unreachable objects are collected")
}

func TestGC_CollectsAfterLastReferenceSevered(t *testing.T) {
	d, _, _ := newTestDomain(t)

	var root, child *Plain
	mustModify(t, d, func(tx *Transaction) error {
		var err error
		root, err = d.CreatePlain(tx)
		require.NoError(t, err)
		require.NoError(t, d.DeclareRoot(tx, root))
		child, err = d.CreatePlain(tx)
		require.NoError(t, err)
		return root.Set(tx, "child", event.Ref(child.ID()))
	})

	require.True(t, d.CollectGarbage(tick).Success)
	require.NotNil(t, d.Object(child.ID()))

	mustModify(t, d, func(tx *Transaction) error {
		return root.Set(tx, "child", event.Null{})
	})
	require.True(t, d.CollectGarbage(tick).Success)
	assert.Nil(t, d.Object(child.ID()), "severed in a prior committed transaction, so collected")
}

func TestGC_CyclesAreCollectedTogether(t *testing.T) {
	d, _, _ := newTestDomain(t)

	// a <-> b cycle hanging off the root; ids are handles, so cycles
	// carry no ownership hazard.
	var root, a, b *Plain
	mustModify(t, d, func(tx *Transaction) error {
		var err error
		root, err = d.CreatePlain(tx)
		require.NoError(t, err)
		require.NoError(t, d.DeclareRoot(tx, root))
		a, err = d.CreatePlain(tx)
		require.NoError(t, err)
		b, err = d.CreatePlain(tx)
		require.NoError(t, err)
		require.NoError(t, a.Set(tx, "peer", event.Ref(b.ID())))
		require.NoError(t, b.Set(tx, "peer", event.Ref(a.ID())))
		return root.Set(tx, "pair", event.Ref(a.ID()))
	})

	require.True(t, d.CollectGarbage(tick).Success)
	require.NotNil(t, d.Object(a.ID()))
	require.NotNil(t, d.Object(b.ID()))

	mustModify(t, d, func(tx *Transaction) error {
		return root.Set(tx, "pair", event.Null{})
	})
	require.True(t, d.CollectGarbage(tick).Success)
	assert.Nil(t, d.Object(a.ID()), "cycle members keep each other alive but not reachable")
	assert.Nil(t, d.Object(b.ID()))
}

func TestGC_ReachabilityThroughCollections(t *testing.T) {
	d, _, _ := newTestDomain(t)

	var leaf *Plain
	mustModify(t, d, func(tx *Transaction) error {
		arr, err := d.CreateArray(tx)
		require.NoError(t, err)
		require.NoError(t, d.DeclareRoot(tx, arr))
		leaf, err = d.CreatePlain(tx)
		require.NoError(t, err)
		return arr.Append(tx, event.Ref(leaf.ID()))
	})

	require.True(t, d.CollectGarbage(tick).Success)
	assert.NotNil(t, d.Object(leaf.ID()), "references inside collections count")
}

func TestGC_InternalObjectsAndScheduledEntitiesArePinned(t *testing.T) {
	d, _, _ := newTestDomain(t)

	var internal *Internal
	var timer *Timer
	mustModify(t, d, func(tx *Transaction) error {
		var err error
		internal, err = d.CreateInternal(tx)
		require.NoError(t, err)
		timer, err = d.CreateTimer(tx, testutil.Epoch, time.Hour)
		require.NoError(t, err)
		return timer.Elapsed(tx, func(tx *Transaction, scheduled, now time.Time) error { return nil })
	})

	require.True(t, d.CollectGarbage(tick).Success)
	assert.NotNil(t, d.Object(internal.ID()))
	assert.NotNil(t, d.Object(timer.ID()))
}

func TestGC_StoppedUnreferencedTimerIsCollected(t *testing.T) {
	d, _, _ := newTestDomain(t)

	var timer *Timer
	mustModify(t, d, func(tx *Transaction) error {
		var err error
		timer, err = d.CreateTimer(tx, testutil.Epoch, time.Hour)
		require.NoError(t, err)
		require.NoError(t, timer.Elapsed(tx, func(tx *Transaction, scheduled, now time.Time) error { return nil }))
		return timer.Stop(tx)
	})

	require.True(t, d.CollectGarbage(tick).Success)
	assert.Nil(t, d.Object(timer.ID()), "an idle timer nothing references is garbage")
}

func TestGC_TrimsReminderPool(t *testing.T) {
	d, clk, _ := newTestDomain(t)

	// Schedule and fire 12 reminders so 12 pooled instances sit unused.
	mustModify(t, d, func(tx *Transaction) error {
		for i := 0; i < 12; i++ {
			_, err := d.RemindAt(tx, testutil.Epoch.Add(time.Minute), func(tx *Transaction, scheduled, now time.Time) error { return nil })
			require.NoError(t, err)
		}
		return nil
	})
	commitAt(t, d, clk, testutil.Epoch.Add(time.Minute))

	total, unused := d.tm.poolStats()
	require.Equal(t, 12, total)
	require.Equal(t, 12, unused)

	require.True(t, d.CollectGarbage(tick).Success, "gc must trim half the unused pool")
	total, unused = d.tm.poolStats()
	assert.Equal(t, 6, total)
	assert.Equal(t, 6, unused)
}

func TestGC_LostObjectsCacheReusedUntilNextCommit(t *testing.T) {
	d, _, _ := newTestDomain(t)
	buildSampleGraph(t, d)

	first, err := d.LostObjects(tick)
	require.NoError(t, err)
	second, err := d.LostObjects(tick)
	require.NoError(t, err)
	assert.Same(t, first, second, "no commit between calls, so the analysis is reused")

	mustModify(t, d, func(tx *Transaction) error {
		_, err := d.CreatePlain(tx)
		return err
	})
	third, err := d.LostObjects(tick)
	require.NoError(t, err)
	assert.NotSame(t, first, third, "a commit invalidates the cached analysis")
}

func TestGC_ReportsReferencedDestroyed(t *testing.T) {
	d, _, _ := newTestDomain(t)

	// Manufacture the lifecycle bug: a live object referencing a
	// destroyed id.
	var root, victim *Plain
	mustModify(t, d, func(tx *Transaction) error {
		var err error
		root, err = d.CreatePlain(tx)
		require.NoError(t, err)
		require.NoError(t, d.DeclareRoot(tx, root))
		victim, err = d.CreatePlain(tx)
		require.NoError(t, err)
		return root.Set(tx, "dangling", event.Ref(victim.ID()))
	})
	victimID := victim.ID()
	mustModify(t, d, func(tx *Transaction) error {
		return victim.Destroy(tx)
	})

	tracker, err := d.LostObjects(tick)
	require.NoError(t, err)
	assert.Contains(t, tracker.ReferencedDestroyed(), victimID)
}
