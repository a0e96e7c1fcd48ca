package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualClock_StartsAtEpoch(t *testing.T) {
	c := NewManualClock()
	assert.Equal(t, Epoch, c.Now())
}

func TestManualClock_Advance(t *testing.T) {
	c := NewManualClock()

	got := c.Advance(90 * time.Second)
	assert.Equal(t, Epoch.Add(90*time.Second), got)
	assert.Equal(t, got, c.Now(), "Now should reflect the advance")
}

func TestManualClock_Set(t *testing.T) {
	c := NewManualClock()
	target := time.Date(2030, time.June, 15, 12, 0, 0, 0, time.UTC)

	c.Set(target)
	assert.Equal(t, target, c.Now())
}

func TestManualClock_ThreadSafe(t *testing.T) {
	c := NewManualClock()
	const goroutines = 50

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Advance(time.Second)
		}()
	}
	wg.Wait()

	assert.Equal(t, Epoch.Add(goroutines*time.Second), c.Now())
}
