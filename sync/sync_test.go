package sync

import "testing"

type fakeStore struct {
	pending []Row
	synced  []uint
}

func (f *fakeStore) FetchPendingSync(limit int) ([]Row, error) {
	if limit < len(f.pending) {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeStore) MarkSynced(ids []uint) error {
	f.synced = append(f.synced, ids...)
	var remaining []Row
	for _, r := range f.pending {
		marked := false
		for _, id := range ids {
			if r.ID == id {
				marked = true
				break
			}
		}
		if !marked {
			remaining = append(remaining, r)
		}
	}
	f.pending = remaining
	return nil
}

type fakePublisher struct {
	failAfter int // publish calls at or beyond this index fail; -1 means never fail
	calls     int
}

func (f *fakePublisher) PublishRaw(topic string, payload []byte, qos byte) error {
	defer func() { f.calls++ }()
	if f.failAfter >= 0 && f.calls >= f.failAfter {
		return errTestPublishFailed
	}
	return nil
}

var errTestPublishFailed = &publishError{"publish failed"}

type publishError struct{ msg string }

func (e *publishError) Error() string { return e.msg }

func TestSyncDrainsAllPendingRows(t *testing.T) {
	store := &fakeStore{pending: []Row{{ID: 1, Topic: "bess/site1/alarms"}, {ID: 2, Topic: "bess/site1/decisions"}}}
	pub := &fakePublisher{failAfter: -1}
	m := New(store, pub)

	n, err := m.Sync()
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows synced, got %d", n)
	}
	if len(store.pending) != 0 {
		t.Fatalf("expected no pending rows remaining, got %d", len(store.pending))
	}
}

// TestSyncStopsBatchOnFirstFailure mirrors DataPlatform's stop-on-failure
// behavior: a down link should not cause later rows to be marked synced out
// of order, and the failed row (and beyond) stay queued for the next call.
func TestSyncStopsBatchOnFirstFailure(t *testing.T) {
	store := &fakeStore{pending: []Row{{ID: 1}, {ID: 2}, {ID: 3}}}
	pub := &fakePublisher{failAfter: 1}
	m := New(store, pub)

	n, err := m.Sync()
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row synced before failure, got %d", n)
	}
	if len(store.pending) != 2 {
		t.Fatalf("expected 2 rows still pending, got %d", len(store.pending))
	}
}

func TestSyncNoPendingRowsIsNoop(t *testing.T) {
	store := &fakeStore{}
	pub := &fakePublisher{failAfter: -1}
	m := New(store, pub)

	n, err := m.Sync()
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 rows synced, got %d", n)
	}
}
