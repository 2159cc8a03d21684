package disktier

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestTier(t *testing.T, limit int64) *Tier {
	t.Helper()
	dir := t.TempDir()
	tier, err := New(Options{Dir: dir, Ext: "bin", Limit: limit, Namespace: "test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tier
}

func alwaysFresh(time.Time) bool { return true }

func TestPutGetRoundTrip(t *testing.T) {
	tier := newTestTier(t, 0)
	now := time.Now()

	if ok := tier.Put("hi", []byte("world"), now); !ok {
		t.Fatalf("Put failed")
	}

	data, _, ok := tier.Get("hi", alwaysFresh, now)
	if !ok {
		t.Fatalf("Get: expected hit")
	}
	if string(data) != "world" {
		t.Fatalf("Get: expected %q, got %q", "world", data)
	}

	if got := tier.TotalCost(); got != 5 {
		t.Fatalf("TotalCost: expected 5, got %d", got)
	}
}

func TestMissingKeyIsMiss(t *testing.T) {
	tier := newTestTier(t, 0)
	_, _, ok := tier.Get("nope", alwaysFresh, time.Now())
	if ok {
		t.Fatalf("expected miss for absent key")
	}
}

func TestRemoveDeletesFile(t *testing.T) {
	tier := newTestTier(t, 0)
	now := time.Now()
	tier.Put("k", []byte("v"), now)

	tier.Remove("k")

	if _, _, ok := tier.Get("k", alwaysFresh, now); ok {
		t.Fatalf("expected miss after Remove")
	}
	if got := tier.TotalCost(); got != 0 {
		t.Fatalf("TotalCost after Remove: expected 0, got %d", got)
	}
}

func TestPersistsAcrossInstances(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	now := time.Now()

	a, err := New(Options{Dir: dir, Ext: "bin", Namespace: "a"})
	if err != nil {
		t.Fatalf("New (a): %v", err)
	}
	a.Put("k", []byte("v"), now)

	b, err := New(Options{Dir: dir, Ext: "bin", Namespace: "b"})
	if err != nil {
		t.Fatalf("New (b): %v", err)
	}

	if got := b.TotalCost(); got == 0 {
		t.Fatalf("expected non-zero TotalCost for reloaded tier")
	}

	data, _, ok := b.Get("k", alwaysFresh, now)
	if !ok || string(data) != "v" {
		t.Fatalf("Get after reload: expected hit with %q, got %q (ok=%v)", "v", data, ok)
	}
}

func TestEvictionUnderLimit(t *testing.T) {
	// Limit 2300, 3 items of 800 bytes: eviction must drain to
	// 2300*3/4 = 1725, so the oldest item ("a") is evicted.
	tier := newTestTier(t, 2300)
	now := time.Now()

	tier.Put("a", make([]byte, 800), now)
	time.Sleep(2 * time.Millisecond)
	tier.Put("b", make([]byte, 800), now.Add(time.Millisecond))
	time.Sleep(2 * time.Millisecond)
	tier.Put("c", make([]byte, 800), now.Add(2*time.Millisecond))

	if _, _, ok := tier.Get("a", alwaysFresh, now); ok {
		t.Fatalf("expected %q to have been evicted", "a")
	}
	if _, _, ok := tier.Get("c", alwaysFresh, now); !ok {
		t.Fatalf("expected %q to still be present", "c")
	}
}

func TestClearRemovesDirectoryContents(t *testing.T) {
	tier := newTestTier(t, 0)
	now := time.Now()
	tier.Put("k", []byte("v"), now)

	if err := tier.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	if got := tier.TotalCost(); got != 0 {
		t.Fatalf("TotalCost after Clear: expected 0, got %d", got)
	}
	entries, err := os.ReadDir(tier.dir)
	if err != nil {
		t.Fatalf("ReadDir after Clear: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty cache dir after Clear, found %d entries", len(entries))
	}
}
