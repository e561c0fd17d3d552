// ABOUTME: Tests for the swept TTL cache used to dedupe engine reply requests.
// ABOUTME: Validates check-and-mark atomicity, idempotent marking, and sweeping.

package dedupe

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_Check_NotSeen(t *testing.T) {
	cache := NewCache(5*time.Minute, time.Minute)
	defer cache.Close()

	assert.False(t, cache.Check("never-seen-key"))
}

func TestCache_Check_Seen(t *testing.T) {
	cache := NewCache(5*time.Minute, time.Minute)
	defer cache.Close()

	cache.Mark("my-key")

	assert.True(t, cache.Check("my-key"))
}

func TestCache_Check_Expired(t *testing.T) {
	cache := NewCache(10*time.Millisecond, time.Minute)
	defer cache.Close()

	cache.Mark("expiring-key")
	assert.True(t, cache.Check("expiring-key"))

	time.Sleep(20 * time.Millisecond)

	// Expired even though the sweeper has not run yet
	assert.False(t, cache.Check("expiring-key"))
}

func TestCache_Mark_Idempotent(t *testing.T) {
	cache := NewCache(5*time.Minute, time.Minute)
	defer cache.Close()

	cache.Mark("key")
	first := cache.Entries()["key"]

	time.Sleep(2 * time.Millisecond)
	cache.Mark("key")

	assert.Equal(t, first, cache.Entries()["key"],
		"re-marking a present key must not refresh its timestamp")
}

func TestCache_CheckAndMark_NewKey(t *testing.T) {
	cache := NewCache(5*time.Minute, time.Minute)
	defer cache.Close()

	assert.False(t, cache.CheckAndMark("new-key"), "first CheckAndMark should return false")
	assert.True(t, cache.Check("new-key"), "key should be marked after CheckAndMark")
}

func TestCache_CheckAndMark_SeenKey(t *testing.T) {
	cache := NewCache(5*time.Minute, time.Minute)
	defer cache.Close()

	cache.Mark("existing-key")

	assert.True(t, cache.CheckAndMark("existing-key"))
}

func TestCache_CheckAndMark_Expired(t *testing.T) {
	cache := NewCache(10*time.Millisecond, time.Minute)
	defer cache.Close()

	assert.False(t, cache.CheckAndMark("expiring-key"))
	assert.True(t, cache.CheckAndMark("expiring-key"), "should be seen before expiry")

	time.Sleep(20 * time.Millisecond)

	assert.False(t, cache.CheckAndMark("expiring-key"), "should not be seen after expiry")
}

func TestCache_CheckAndMark_Atomic(t *testing.T) {
	cache := NewCache(5*time.Minute, time.Minute)
	defer cache.Close()

	const numGoroutines = 100

	var successCount int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			if !cache.CheckAndMark("contested-key") {
				mu.Lock()
				successCount++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), successCount,
		"exactly one goroutine should win the race for CheckAndMark")
}

func TestCache_Sweep(t *testing.T) {
	cache := NewCache(5*time.Minute, time.Hour)
	defer cache.Close()

	cache.Mark("old-key")
	cache.Mark("fresh-key")

	// Drive the sweep with a future now so both entries are past the TTL
	cache.Sweep(time.Now().Add(6 * time.Minute))

	assert.Equal(t, 0, cache.Len(), "sweep should remove entries past the TTL")
}

func TestCache_Sweep_KeepsFreshEntries(t *testing.T) {
	cache := NewCache(5*time.Minute, time.Hour)
	defer cache.Close()

	cache.Mark("fresh-key")
	cache.Sweep(time.Now())

	assert.Equal(t, 1, cache.Len())
	assert.True(t, cache.Check("fresh-key"))
}

func TestCache_OldestAge(t *testing.T) {
	cache := NewCache(5*time.Minute, time.Minute)
	defer cache.Close()

	_, ok := cache.OldestAge()
	assert.False(t, ok, "empty cache has no oldest entry")

	cache.Mark("a")
	time.Sleep(5 * time.Millisecond)
	cache.Mark("b")

	age, ok := cache.OldestAge()
	assert.True(t, ok)
	assert.GreaterOrEqual(t, age, 5*time.Millisecond)
}

func TestCache_Concurrent(t *testing.T) {
	cache := NewCache(5*time.Minute, time.Minute)
	defer cache.Close()

	const numGoroutines = 50
	const opsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < opsPerGoroutine; j++ {
				key := "key-" + string(rune('A'+id%26)) + "-" + string(rune('0'+j%10))
				cache.Mark(key)
				cache.Check(key)
			}
		}(i)
	}

	wg.Wait()

	cache.Mark("final-key")
	assert.True(t, cache.Check("final-key"))
}

func TestCache_Close(t *testing.T) {
	cache := NewCache(5*time.Minute, time.Minute)

	cache.Mark("before-close")
	assert.True(t, cache.Check("before-close"))

	cache.Close()
	cache.Close() // multiple closes must not panic
}
