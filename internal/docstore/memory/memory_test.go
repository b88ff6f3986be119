package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/julianstephens/daystreak/internal/docstore"
	apperrors "github.com/julianstephens/daystreak/internal/errors"
)

func next(t *testing.T, sub docstore.Subscription) docstore.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.Updates():
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return docstore.Snapshot{}
}

func TestGetMissing(t *testing.T) {
	s := New()
	_, err := s.Get(context.Background(), "habits/h1")
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetGetAndQuery(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.Set(ctx, "habits/h1", []byte(`{"ownerId":"u1","title":"Read"}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Set(ctx, "habits/h2", []byte(`{"ownerId":"u2","title":"Run"}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Set(ctx, "users/u1/daySchedules/2026-01-05", []byte(`{"ownerId":"u1"}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	doc, err := s.Get(ctx, "habits/h1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if doc.ID() != "h1" {
		t.Errorf("expected id h1, got %s", doc.ID())
	}

	docs, err := s.Query(ctx, docstore.Query{Collection: "habits", Field: "ownerId", Value: "u1"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(docs) != 1 || docs[0].Path != "habits/h1" {
		t.Errorf("expected only habits/h1, got %+v", docs)
	}
}

func TestSetRejectsCollectionPath(t *testing.T) {
	s := New()
	if err := s.Set(context.Background(), "habits", []byte(`{}`)); err == nil {
		t.Error("expected error for odd-segment path")
	}
}

func TestCreateIsConditional(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.Create(ctx, "users/u1/flags/defaultHabits", []byte(`{}`)); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	err := s.Create(ctx, "users/u1/flags/defaultHabits", []byte(`{}`))
	if !apperrors.Is(err, apperrors.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestMergeAndIncrement(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.Increment(ctx, "users/u1", "points", 5); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if err := s.Increment(ctx, "users/u1", "points", 13); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if err := s.Merge(ctx, "users/u1", map[string]interface{}{"defaultHabitsCreated": true}); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	doc, err := s.Get(ctx, "users/u1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	var rec struct {
		Points  int64 `json:"points"`
		Created bool  `json:"defaultHabitsCreated"`
	}
	if err := doc.Decode(&rec); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if rec.Points != 18 {
		t.Errorf("expected 18 points, got %d", rec.Points)
	}
	if !rec.Created {
		t.Error("expected merged flag to be set")
	}
}

func TestIncrementRejectsBadField(t *testing.T) {
	s := New()
	if err := s.Increment(context.Background(), "users/u1", "points'); --", 1); err == nil {
		t.Error("expected invalid field error")
	}
}

func TestFaultInjection(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")
	s.SetFault(func(op, path string) error {
		if op == "set" {
			return boom
		}
		return nil
	})
	if err := s.Set(ctx, "habits/h1", []byte(`{}`)); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if s.Len() != 0 {
		t.Error("failed write must not store anything")
	}
	s.SetFault(nil)
	if err := s.Set(ctx, "habits/h1", []byte(`{}`)); err != nil {
		t.Fatalf("Set after clearing fault failed: %v", err)
	}
}

func TestWatchDocument(t *testing.T) {
	ctx := context.Background()
	s := New()
	sub, err := s.Watch(ctx, "users/u1/daySchedules/2026-01-05")
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer sub.Close()

	if snap := next(t, sub); snap.Exists() {
		t.Error("initial snapshot should report a missing document")
	}
	if err := s.Set(ctx, "users/u1/daySchedules/2026-01-05", []byte(`{"id":"s1"}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	snap := next(t, sub)
	if !snap.Exists() || string(snap.Docs[0].Data) != `{"id":"s1"}` {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestWatchQuery(t *testing.T) {
	ctx := context.Background()
	s := New()
	sub, err := s.WatchQuery(ctx, docstore.Query{Collection: "habits", Field: "ownerId", Value: "u1"})
	if err != nil {
		t.Fatalf("WatchQuery failed: %v", err)
	}
	defer sub.Close()
	if snap := next(t, sub); len(snap.Docs) != 0 {
		t.Errorf("expected empty initial set, got %d", len(snap.Docs))
	}

	_ = s.Set(ctx, "habits/h1", []byte(`{"ownerId":"u1"}`))
	if snap := next(t, sub); len(snap.Docs) != 1 {
		t.Errorf("expected 1 doc, got %d", len(snap.Docs))
	}
	_ = s.Delete(ctx, "habits/h1")
	if snap := next(t, sub); len(snap.Docs) != 0 {
		t.Errorf("expected 0 docs after delete, got %d", len(snap.Docs))
	}
}

func TestSlowReaderSeesLatest(t *testing.T) {
	ctx := context.Background()
	s := New()
	sub, err := s.Watch(ctx, "users/u1")
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer sub.Close()
	for i := 0; i < 5; i++ {
		_ = s.Increment(ctx, "users/u1", "points", 1)
	}
	snap := next(t, sub)
	var rec struct {
		Points int `json:"points"`
	}
	if err := snap.Docs[0].Decode(&rec); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if rec.Points != 5 {
		t.Errorf("expected latest state with 5 points, got %d", rec.Points)
	}
}

func TestCloseEndsSubscription(t *testing.T) {
	s := New()
	sub, err := s.Watch(context.Background(), "users/u1")
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	<-sub.Updates()
	_ = sub.Close()
	if _, ok := <-sub.Updates(); ok {
		t.Error("expected closed channel")
	}
	_ = sub.Close()
}

func TestContextCancelClosesSubscription(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New()
	sub, err := s.Watch(ctx, "users/u1")
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	<-sub.Updates()
	cancel()
	select {
	case _, ok := <-sub.Updates():
		if ok {
			t.Error("expected channel to close after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed after cancel")
	}
}
