package eventstore

import (
	"bytes"
	stderrors "errors"
	"path/filepath"
	"testing"
	"time"
)

const testRunID = "run-123"

func newMemoryStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(MemoryPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestEventStoreAppendAndRetrieve(t *testing.T) {
	store := newMemoryStore(t)
	ctx := t.Context()
	payload := []byte(`{"test": "data"}`)

	if err := store.Append(ctx, testRunID, "TestEvent", payload, map[string]string{"key": "value"}); err != nil {
		t.Fatalf("failed to append event: %v", err)
	}

	events, err := store.GetByRunID(ctx, testRunID)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	event := events[0]
	if event.RunID() != testRunID {
		t.Errorf("expected run_id %s, got %s", testRunID, event.RunID())
	}
	if event.Type() != "TestEvent" {
		t.Errorf("expected event_type TestEvent, got %s", event.Type())
	}
	if !bytes.Equal(event.Payload(), payload) {
		t.Errorf("expected payload %s, got %s", payload, event.Payload())
	}
	if event.Metadata()["key"] != "value" {
		t.Errorf("expected metadata key=value, got %v", event.Metadata())
	}
}

func TestEventStoreGetRange(t *testing.T) {
	store := newMemoryStore(t)
	ctx := t.Context()
	now := time.Now()

	for range 3 {
		if err := store.Append(ctx, "run-1", "Event", []byte("data"), nil); err != nil {
			t.Fatalf("failed to append event: %v", err)
		}
	}

	events, err := store.GetRange(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("failed to get range: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("expected 3 events, got %d", len(events))
	}

	events, err = store.GetRange(ctx, now.Add(time.Hour), now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("failed to get range: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events in a future window, got %d", len(events))
	}
}

func TestEventStoreRunIsolation(t *testing.T) {
	store := newMemoryStore(t)
	ctx := t.Context()

	for _, id := range []string{"run-1", "run-2", "run-1"} {
		if err := store.Append(ctx, id, "Event", []byte("{}"), nil); err != nil {
			t.Fatalf("failed to append event: %v", err)
		}
	}

	events, err := store.GetByRunID(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events for run-1, got %d", len(events))
	}
	if events[0].ID() >= events[1].ID() {
		t.Errorf("events not in append order: %d then %d", events[0].ID(), events[1].ID())
	}
}

func TestEventStorePersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "history.db")
	ctx := t.Context()

	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := store.Append(ctx, testRunID, "Event", []byte("{}"), nil); err != nil {
		t.Fatalf("failed to append event: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	events, err := reopened.GetByRunID(ctx, testRunID)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected 1 persisted event, got %d", len(events))
	}
}

func TestEventStoreAppendAfterCloseIsClassified(t *testing.T) {
	store, err := NewSQLiteStore(MemoryPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	_ = store.Close()

	err = store.Append(t.Context(), testRunID, "Event", []byte("{}"), nil)
	if err == nil {
		t.Fatal("expected append on a closed store to fail")
	}
	if !stderrors.Is(err, ErrEventAppendFailed) {
		t.Errorf("expected ErrEventAppendFailed, got %v", err)
	}
}
