package remotetier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeStore struct {
	mu      sync.Mutex
	records map[string]Record
	putErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]Record)}
}

func (s *fakeStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrUnknownRecord
	}
	return &rec, nil
}

func (s *fakeStore) Put(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.records[rec.ID] = *rec
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ErrUnknownRecord
	}
	delete(s.records, id)
	return nil
}

func (s *fakeStore) ListIDs(ctx context.Context, recordType string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	prefix := recordType + ":"
	for id := range s.records {
		if len(id) >= len(prefix) && id[:len(prefix)] == prefix {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func waitForPut(t *testing.T, store *fakeStore, id string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		store.mu.Lock()
		_, ok := store.records[id]
		store.mu.Unlock()
		if ok {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for background put of %q", id)
}

func TestNilTierIsNoopMiss(t *testing.T) {
	var tier *Tier
	data, _, ok, err := tier.Get(context.Background(), "k", nil)
	if data != nil || ok || err != nil {
		t.Fatalf("expected nil-tier miss, got data=%v ok=%v err=%v", data, ok, err)
	}
	tier.Put(context.Background(), "k", []byte("v")) // must not panic
	if err := tier.Remove(context.Background(), "k"); err != nil {
		t.Fatalf("Remove on nil tier: %v", err)
	}
	if err := tier.Clear(context.Background()); err != nil {
		t.Fatalf("Clear on nil tier: %v", err)
	}
}

func TestPutThenGetRoundTrip(t *testing.T) {
	store := newFakeStore()
	tier := New(Config{Store: store, RecordType: "type"}, "test")

	tier.Put(context.Background(), "k", []byte("v"))
	waitForPut(t, store, "type:k")

	data, modTime, ok, err := tier.Get(context.Background(), "k", nil)
	if err != nil || !ok || string(data) != "v" {
		t.Fatalf("Get: expected (v, true, nil), got (%q, %v, %v)", data, ok, err)
	}
	if modTime.IsZero() {
		t.Fatalf("expected a non-zero ModTime")
	}
}

func TestGetUnknownRecordIsMiss(t *testing.T) {
	store := newFakeStore()
	tier := New(Config{Store: store, RecordType: "type"}, "test")

	_, _, ok, err := tier.Get(context.Background(), "missing", nil)
	if err != nil || ok {
		t.Fatalf("expected miss for unknown record, got ok=%v err=%v", ok, err)
	}
}

func TestGetAppliesFreshnessAgainstModTime(t *testing.T) {
	store := newFakeStore()
	store.records["type:k"] = Record{ID: "type:k", Inline: []byte("v"), ModTime: time.Now().Add(-time.Hour)}
	tier := New(Config{Store: store, RecordType: "type"}, "test")

	neverFresh := func(time.Time) bool { return false }
	_, _, ok, err := tier.Get(context.Background(), "k", neverFresh)
	if err != nil || ok {
		t.Fatalf("expected stale record to miss, got ok=%v err=%v", ok, err)
	}
}

func TestClearDeletesAllRecordsOfType(t *testing.T) {
	store := newFakeStore()
	store.records["type:a"] = Record{ID: "type:a", Inline: []byte("1")}
	store.records["type:b"] = Record{ID: "type:b", Inline: []byte("2")}
	store.records["other:c"] = Record{ID: "other:c", Inline: []byte("3")}
	tier := New(Config{Store: store, RecordType: "type"}, "test")

	if err := tier.Clear(context.Background()); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if _, ok := store.records["type:a"]; ok {
		t.Fatalf("expected type:a to be deleted")
	}
	if _, ok := store.records["type:b"]; ok {
		t.Fatalf("expected type:b to be deleted")
	}
	if _, ok := store.records["other:c"]; !ok {
		t.Fatalf("expected other:c to survive Clear of a different record type")
	}
}

func TestClearPropagatesListTransportError(t *testing.T) {
	store := &erroringListStore{err: errors.New("network down")}
	tier := New(Config{Store: store, RecordType: "type"}, "test")

	if err := tier.Clear(context.Background()); err == nil {
		t.Fatalf("expected Clear to propagate a ListIDs transport error")
	}
}

type erroringListStore struct{ err error }

func (s *erroringListStore) Get(ctx context.Context, id string) (*Record, error) { return nil, s.err }
func (s *erroringListStore) Put(ctx context.Context, rec *Record) error         { return s.err }
func (s *erroringListStore) Delete(ctx context.Context, id string) error        { return s.err }
func (s *erroringListStore) ListIDs(ctx context.Context, recordType string) ([]string, error) {
	return nil, s.err
}

func TestPermissionErrorIsSwallowedOnPut(t *testing.T) {
	store := newFakeStore()
	store.putErr = ErrPermissionDenied
	var reported []string
	tier := New(Config{
		Store:      store,
		RecordType: "type",
		Reporter:   func(err error, context string) { reported = append(reported, context) },
	}, "test")

	tier.Put(context.Background(), "k", []byte("v"))

	deadline := time.Now().Add(time.Second)
	for len(reported) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if len(reported) == 0 {
		t.Fatalf("expected permission error to be reported")
	}
}
