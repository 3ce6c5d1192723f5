package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(max int) (*Store, *fakeClock) {
	clock := newFakeClock()
	s := NewStore(max)
	s.SetClock(clock.Now)
	return s, clock
}

func TestStore_ValuesAreCopied(t *testing.T) {
	s, _ := newTestStore(0)

	in := []byte(`{"id":"r1"}`)
	s.Set("receipt:item:/r1", in, "receipt", time.Minute)
	in[2] = 'X'

	out, ok := s.Get("receipt:item:/r1")
	require.True(t, ok)
	out[2] = 'Y'

	again, ok := s.Get("receipt:item:/r1")
	require.True(t, ok)
	assert.Equal(t, `{"id":"r1"}`, string(again))
}

func TestStore_SetGetExpiry(t *testing.T) {
	s, clock := newTestStore(0)

	s.Set("receipt:list", []byte(`[1,2]`), "receipt", time.Second)

	v, ok := s.Get("receipt:list")
	require.True(t, ok)
	assert.Equal(t, []byte(`[1,2]`), v)

	clock.Advance(999 * time.Millisecond)
	_, ok = s.Get("receipt:list")
	assert.True(t, ok)

	clock.Advance(time.Millisecond)
	_, ok = s.Get("receipt:list")
	assert.False(t, ok, "entry must be unreadable once its ttl elapsed")

	stats := s.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Expired)
	assert.Equal(t, 0, stats.Entries)
}

func TestStore_SetNonPositiveTTL(t *testing.T) {
	s, _ := newTestStore(0)

	s.Set("telemetry:list", []byte("x"), "telemetry", 0)
	s.Set("telemetry:item:/1", []byte("x"), "telemetry", -time.Second)

	assert.Equal(t, 0, s.Len())
}

func TestStore_SetCopiesValue(t *testing.T) {
	s, _ := newTestStore(0)

	buf := []byte("abc")
	s.Set("k", buf, "receipt", time.Minute)
	buf[0] = 'z'

	v, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, "abc", string(v))
}

func TestStore_Evict(t *testing.T) {
	s, _ := newTestStore(0)

	for _, key := range []string{
		"receipt:list",
		"receipt:list?page=2",
		"receipt:item:/r1",
		"receipt:item:/r1/details",
		"receipt:item:/r10",
		"merchant:list",
	} {
		s.Set(key, []byte("v"), "x", time.Hour)
	}

	assert.Equal(t, 2, s.Evict("receipt:list"))
	assert.Equal(t, 2, s.Evict("receipt:item:/r1"))

	_, ok := s.Get("receipt:item:/r10")
	assert.True(t, ok, "r10 does not belong to r1")
	_, ok = s.Get("merchant:list")
	assert.True(t, ok, "unrelated keys survive")

	assert.Equal(t, 0, s.Evict("receipt:list"))
	assert.Equal(t, int64(4), s.Stats().Invalidations)
}

func TestMatches(t *testing.T) {
	assert.True(t, Matches("pem:list", "pem:list"))
	assert.True(t, Matches("pem:list?page=1", "pem:list"))
	assert.True(t, Matches("pem:item:/p1/x", "pem:item:/p1"))
	assert.False(t, Matches("pem:listing", "pem:list"))
	assert.True(t, Matches("pem:list@/mf2/merchant/m1", "pem:list"))
	assert.True(t, Matches("pem:list@/mf2/merchant/m1?page=2", "pem:list"))
	assert.True(t, Matches("pem:item:/p1@/mf2/merchant/m1", "pem:item:/p1"))
	assert.False(t, Matches("pem:item:/p10@/mf2", "pem:item:/p1"))
	assert.False(t, Matches("pem:list", ""))
	assert.True(t, Matches("pem:item:/p1", "pem:*"))
	assert.False(t, Matches("merchant:list", "pem:*"))
}

func TestStore_CapacityEvictsLeastRecentlyUsed(t *testing.T) {
	s, _ := newTestStore(2)

	s.Set("a", []byte("1"), "x", time.Hour)
	s.Set("b", []byte("2"), "x", time.Hour)
	_, _ = s.Get("a")
	s.Set("c", []byte("3"), "x", time.Hour)

	_, ok := s.Get("b")
	assert.False(t, ok)
	_, ok = s.Get("a")
	assert.True(t, ok)
	_, ok = s.Get("c")
	assert.True(t, ok)
	assert.Equal(t, int64(1), s.Stats().Evictions)

	// Überschreiben eines vorhandenen Schlüssels verdrängt nichts
	s.Set("c", []byte("4"), "x", time.Hour)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, int64(1), s.Stats().Evictions)
	assert.Equal(t, 0, s.Evict("b"), "evicted keys are gone from the index")
}

func TestStore_Sweep(t *testing.T) {
	s, clock := newTestStore(0)

	s.Set("short", []byte("1"), "x", time.Second)
	s.Set("long", []byte("2"), "x", time.Hour)

	clock.Advance(2 * time.Second)
	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 1, s.Len())

	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, s.Evict("long"))
}

func TestStore_SnapshotRoundTrip(t *testing.T) {
	url := "file://" + filepath.Join(t.TempDir(), "cache.json")
	ctx := context.Background()

	s, clock := newTestStore(0)
	s.SetPersister(NewAFSPersister(url))
	s.Set("receipt:item:/r1", []byte(`{"id":"r1"}`), "receipt", time.Minute)
	s.Set("merchant:list", []byte(`[]`), "merchant", time.Hour)
	require.NoError(t, s.Flush(ctx))

	restored, _ := newTestStore(0)
	restored.SetClock(func() time.Time { return clock.Now().Add(10 * time.Minute) })
	restored.SetPersister(NewAFSPersister(url))

	assert.Equal(t, 1, restored.Restore(ctx), "expired entries are dropped on restore")
	v, ok := restored.Get("merchant:list")
	require.True(t, ok)
	assert.Equal(t, "[]", string(v))
}

func TestStore_RestoreMissingOrCorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, _ := newTestStore(0)
	s.SetPersister(NewAFSPersister("file://" + filepath.Join(dir, "missing.json")))
	assert.Equal(t, 0, s.Restore(ctx))

	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{not json"), 0o644))
	s.SetPersister(NewAFSPersister("file://" + corrupt))
	assert.Equal(t, 0, s.Restore(ctx))
	assert.Equal(t, 0, s.Len())
}

type failingPersister struct{}

func (failingPersister) Load(context.Context) ([]Entry, error) { return nil, errors.New("boom") }
func (failingPersister) Save(context.Context, []Entry) error { return errors.New("boom") }

func TestStore_PersisterErrors(t *testing.T) {
	s, _ := newTestStore(0)
	assert.NoError(t, s.Flush(context.Background()), "no persister configured")

	s.SetPersister(failingPersister{})
	assert.Equal(t, 0, s.Restore(context.Background()))
	assert.Error(t, s.Flush(context.Background()))
}
