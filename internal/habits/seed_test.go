package habits

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/julianstephens/daystreak/internal/constants"
	"github.com/julianstephens/daystreak/internal/docstore"
	apperrors "github.com/julianstephens/daystreak/internal/errors"
	"github.com/julianstephens/daystreak/internal/models"
	"github.com/julianstephens/daystreak/internal/session"
)

func countHabits(t *testing.T, f *fixture) int {
	t.Helper()
	docs, err := f.docs.Query(context.Background(), docstore.Query{
		Collection: constants.CollectionHabits,
		Field:      constants.FieldOwnerID,
		Value:      "u1",
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	return len(docs)
}

func TestDefaultHabitsCoverEveryStarter(t *testing.T) {
	got := DefaultHabits("u1")
	if len(got) != 5 {
		t.Fatalf("expected 5 default habits, got %d", len(got))
	}
	names := map[string]bool{}
	for _, h := range got {
		names[h.MetricType.Name] = true
		if err := h.Validate(); err != nil {
			t.Errorf("default habit %q invalid: %v", h.Title, err)
		}
	}
	for _, want := range []string{"distance", "pages read", "entries written", "completion", "minutes"} {
		if !names[want] {
			t.Errorf("missing starter metric %q", want)
		}
	}
}

func TestSeedDefaultsOnce(t *testing.T) {
	ctx := context.Background()
	f := setupTestStore(t)

	seeded, err := f.store.SeedDefaultsIfNeeded(ctx, "u1")
	if err != nil {
		t.Fatalf("SeedDefaultsIfNeeded failed: %v", err)
	}
	if !seeded {
		t.Fatal("expected first call to seed")
	}
	if n := len(f.store.Habits()); n != 5 {
		t.Errorf("expected 5 habits in memory, got %d", n)
	}
	if got := f.store.Habits(); got[0].Title != "Go for a run" {
		t.Errorf("expected newest-first order to match the starter list, got %q first", got[0].Title)
	}

	seeded, err = f.store.SeedDefaultsIfNeeded(ctx, "u1")
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if seeded {
		t.Error("second call must not seed")
	}
	if n := countHabits(t, f); n != 5 {
		t.Errorf("expected 5 stored habits, got %d", n)
	}

	doc, _ := f.docs.Get(ctx, docstore.UserPath("u1"))
	var rec models.UserRecord
	_ = doc.Decode(&rec)
	if !rec.DefaultHabitsCreated {
		t.Error("user record flag not set")
	}
}

func TestSeedDefaultsConcurrentCallers(t *testing.T) {
	ctx := context.Background()
	f := setupTestStore(t)
	other := New(f.docs, session.Static{UserID: "u1"})
	defer other.Close()

	var wg sync.WaitGroup
	results := make([]bool, 2)
	for i, s := range []*Store{f.store, other} {
		wg.Add(1)
		go func(i int, s *Store) {
			defer wg.Done()
			seeded, err := s.SeedDefaultsIfNeeded(ctx, "u1")
			if err != nil {
				t.Errorf("SeedDefaultsIfNeeded failed: %v", err)
			}
			results[i] = seeded
		}(i, s)
	}
	wg.Wait()

	if results[0] == results[1] {
		t.Errorf("exactly one caller should seed, got %v", results)
	}
	if n := countHabits(t, f); n != 5 {
		t.Errorf("expected 5 stored habits, got %d", n)
	}
}

func TestSeedRepairsMissingUserFlag(t *testing.T) {
	ctx := context.Background()
	f := setupTestStore(t)
	_ = f.docs.Create(ctx, docstore.DefaultHabitsFlagPath("u1"), []byte(`{}`))

	seeded, err := f.store.SeedDefaultsIfNeeded(ctx, "u1")
	if err != nil {
		t.Fatalf("SeedDefaultsIfNeeded failed: %v", err)
	}
	if seeded {
		t.Error("an existing claim must not be reported as a new seed")
	}
	if n := countHabits(t, f); n != 5 {
		t.Errorf("expected missing starter habits to be filled in, got %d", n)
	}
	doc, err := f.docs.Get(ctx, docstore.UserPath("u1"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	var rec models.UserRecord
	_ = doc.Decode(&rec)
	if !rec.DefaultHabitsCreated {
		t.Error("user flag should be repaired from the claim")
	}
}

func TestSeedRetryCompletesPartialSet(t *testing.T) {
	ctx := context.Background()
	f := setupTestStore(t)

	boom := errors.New("network down")
	writes := 0
	f.docs.SetFault(func(op, path string) error {
		if op == "create" && strings.HasPrefix(path, constants.CollectionHabits+"/") {
			writes++
			if writes == 3 {
				return boom
			}
		}
		return nil
	})

	if _, err := f.store.SeedDefaultsIfNeeded(ctx, "u1"); !apperrors.Is(err, apperrors.ErrStoreWrite) {
		t.Fatalf("expected ErrStoreWrite, got %v", err)
	}
	if n := countHabits(t, f); n != 2 {
		t.Fatalf("expected 2 habits before the failure, got %d", n)
	}
	doc, err := f.docs.Get(ctx, docstore.UserPath("u1"))
	if err == nil {
		var rec models.UserRecord
		_ = doc.Decode(&rec)
		if rec.DefaultHabitsCreated {
			t.Fatal("user flag must stay unset after a partial seed")
		}
	}

	f.docs.SetFault(nil)
	if _, err := f.store.SeedDefaultsIfNeeded(ctx, "u1"); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if n := countHabits(t, f); n != 5 {
		t.Errorf("expected retry to complete the starter set, got %d", n)
	}
	for i := 1; i <= 5; i++ {
		if _, err := f.docs.Get(ctx, docstore.HabitPath(DefaultHabitID("u1", i))); err != nil {
			t.Errorf("starter habit %d missing: %v", i, err)
		}
	}
	doc, err = f.docs.Get(ctx, docstore.UserPath("u1"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	var rec models.UserRecord
	_ = doc.Decode(&rec)
	if !rec.DefaultHabitsCreated {
		t.Error("user flag not set after the retry")
	}
}

func TestSeedRequiresSessionUser(t *testing.T) {
	f := setupTestStore(t)
	if _, err := f.store.SeedDefaultsIfNeeded(context.Background(), "u2"); err == nil {
		t.Error("expected error seeding for another user")
	}
}
