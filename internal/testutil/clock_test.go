package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClock_StartsAtEpoch(t *testing.T) {
	clock := NewClock()
	assert.Equal(t, Epoch, clock.Now())
	assert.Equal(t, Epoch, clock.Current())
}

func TestClock_NowAdvancesMonotonically(t *testing.T) {
	clock := NewClock()

	first := clock.Now()
	second := clock.Now()
	third := clock.Now()

	assert.Equal(t, time.Second, second.Sub(first))
	assert.Equal(t, time.Second, third.Sub(second))
	assert.Equal(t, third, clock.Current())
}

func TestClock_AdvanceAndReset(t *testing.T) {
	clock := NewClock()
	clock.Now()

	clock.Advance(72 * time.Hour)
	assert.Equal(t, Epoch.Add(72*time.Hour+time.Second), clock.Now())

	clock.Reset()
	assert.Equal(t, Epoch, clock.Now())
}

func TestClock_ThreadSafe(t *testing.T) {
	clock := NewClock()
	const numGoroutines = 50
	const callsPerGoroutine = 50

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make([][]time.Time, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		results[i] = make([]time.Time, callsPerGoroutine)
		go func(idx int) {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				results[idx][j] = clock.Now()
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[time.Time]bool)
	for i := range results {
		for _, ts := range results[i] {
			require.False(t, seen[ts], "duplicate instant %v", ts)
			seen[ts] = true
		}
	}
	assert.Len(t, seen, numGoroutines*callsPerGoroutine)
}

func TestClock_Deterministic(t *testing.T) {
	clock1 := NewClock()
	clock2 := NewClock()

	for i := 0; i < 100; i++ {
		assert.Equal(t, clock1.Now(), clock2.Now())
	}
}

func TestSessionIDs(t *testing.T) {
	ids := NewSessionIDs("")
	assert.Equal(t, "session-0001", ids.Next())
	assert.Equal(t, "session-0002", ids.Next())

	custom := NewSessionIDs("s")
	assert.Equal(t, "s-0001", custom.Next())
}
