package habits

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/julianstephens/daystreak/internal/constants"
	"github.com/julianstephens/daystreak/internal/docstore"
	"github.com/julianstephens/daystreak/internal/docstore/memory"
	apperrors "github.com/julianstephens/daystreak/internal/errors"
	"github.com/julianstephens/daystreak/internal/events"
	"github.com/julianstephens/daystreak/internal/models"
	"github.com/julianstephens/daystreak/internal/session"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingSink struct {
	mu  sync.Mutex
	got []events.Event
}

func (r *recordingSink) Publish(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	r.got = append(r.got, ev)
	r.mu.Unlock()
	return nil
}

func (r *recordingSink) types() []constants.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []constants.EventType
	for _, ev := range r.got {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	store *Store
	docs  *memory.Store
	clock *fakeClock
	sink  *recordingSink
}

func setupTestStore(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		docs:  memory.New(),
		clock: &fakeClock{t: time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)},
		sink:  &recordingSink{},
	}
	f.store = New(f.docs, session.Static{UserID: "u1"},
		WithClock(f.clock.Now),
		WithLocation(time.UTC),
		WithEvents(f.sink),
	)
	t.Cleanup(func() {
		f.store.Close()
		f.docs.Close()
	})
	if err := f.store.Subscribe(context.Background(), "u1"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	return f
}

// addHabit stores a habit marked yesterday with the given streaks
func (f *fixture) addHabit(t *testing.T, category constants.MetricCategory, current, longest int) models.Habit {
	t.Helper()
	yesterday := f.clock.Now().AddDate(0, 0, -1)
	h, err := f.store.Create(context.Background(), models.Habit{
		OwnerID:        "u1",
		Title:          "Read",
		StartDate:      f.clock.Now().AddDate(0, 0, -30),
		MetricCategory: category,
		DailyRecords:   []models.DailyRecord{{Date: yesterday, Value: 1}},
		CurrentStreak:  current,
		LongestStreak:  longest,
		LastReset:      &yesterday,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return h
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestMarkReachesWeeklyMilestone(t *testing.T) {
	ctx := context.Background()
	f := setupTestStore(t)
	h := f.addHabit(t, constants.MetricCompletion, 6, 6)

	got, err := f.store.Mark(ctx, h.ID, "u1", 1)
	if err != nil {
		t.Fatalf("Mark failed: %v", err)
	}
	if got.CurrentStreak != 7 || got.LongestStreak != 7 {
		t.Errorf("expected 7/7, got %d/%d", got.CurrentStreak, got.LongestStreak)
	}
	if !got.WeeklyStreakBadge() || got.MonthlyStreakBadge() {
		t.Error("expected only the weekly badge")
	}
	if len(got.DailyRecords) != 2 {
		t.Errorf("expected exactly one new record, got %d total", len(got.DailyRecords))
	}

	points, err := f.store.Points(ctx, "u1")
	if err != nil {
		t.Fatalf("Points failed: %v", err)
	}
	if points != 18 {
		t.Errorf("expected 18 points, got %d", points)
	}

	types := f.sink.types()
	if len(types) != 2 || types[0] != constants.EventHabitCompleted || types[1] != constants.EventStreakMilestone {
		t.Errorf("unexpected events %v", types)
	}

	if c, ok := f.store.StreakCache(h.ID); !ok || c != 7 {
		t.Errorf("expected cached streak 7, got %d", c)
	}
}

func TestMarkTwiceSameDay(t *testing.T) {
	ctx := context.Background()
	f := setupTestStore(t)
	h := f.addHabit(t, constants.MetricQuantity, 0, 0)

	if _, err := f.store.Mark(ctx, h.ID, "u1", 5); err != nil {
		t.Fatalf("first Mark failed: %v", err)
	}
	f.clock.Advance(2 * time.Hour)
	got, err := f.store.Mark(ctx, h.ID, "u1", 3)
	if err != nil {
		t.Fatalf("second Mark failed: %v", err)
	}
	if got.CurrentStreak != 1 {
		t.Errorf("streak must not double-increment, got %d", got.CurrentStreak)
	}
	if len(got.DailyRecords) != 3 {
		t.Errorf("expected both records kept, got %d", len(got.DailyRecords))
	}
	if points, _ := f.store.Points(ctx, "u1"); points != 2 {
		t.Errorf("expected points only for the first mark, got %d", points)
	}
}

func TestMarkUnmarkRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		current int
		longest int
	}{
		{"new longest", 6, 6},
		{"below longest", 3, 10},
		{"one below longest", 4, 5},
		{"from zero", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := setupTestStore(t)
			before := f.addHabit(t, constants.MetricCompletion, tt.current, tt.longest)

			if _, err := f.store.Mark(ctx, before.ID, "u1", 1); err != nil {
				t.Fatalf("Mark failed: %v", err)
			}
			after, err := f.store.Unmark(ctx, before.ID, "u1")
			if err != nil {
				t.Fatalf("Unmark failed: %v", err)
			}
			if after.CurrentStreak != before.CurrentStreak || after.LongestStreak != before.LongestStreak {
				t.Errorf("expected %d/%d, got %d/%d", before.CurrentStreak, before.LongestStreak,
					after.CurrentStreak, after.LongestStreak)
			}
			if len(after.DailyRecords) != len(before.DailyRecords) ||
				!after.DailyRecords[0].Date.Equal(before.DailyRecords[0].Date) {
				t.Errorf("records not restored: %+v", after.DailyRecords)
			}
			if after.LastReset != nil {
				t.Error("unmark must clear lastReset")
			}
		})
	}
}

func TestUnmarkWithoutRecordTodayIsRejected(t *testing.T) {
	ctx := context.Background()
	f := setupTestStore(t)
	h := f.addHabit(t, constants.MetricCompletion, 5, 5)

	_, err := f.store.Unmark(ctx, h.ID, "u1")
	if !apperrors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	got, _ := f.store.Habit(h.ID)
	if got.CurrentStreak != 5 || got.LongestStreak != 5 {
		t.Errorf("expected 5/5 untouched, got %d/%d", got.CurrentStreak, got.LongestStreak)
	}
	if got.LastReset == nil || len(got.DailyRecords) != 1 {
		t.Errorf("yesterday's mark must survive, lastReset %v, %d records", got.LastReset, len(got.DailyRecords))
	}
	for _, typ := range f.sink.types() {
		if typ == constants.EventHabitUncompleted {
			t.Error("no uncompleted event expected for a rejected unmark")
		}
	}
}

func TestMarkRejectsZero(t *testing.T) {
	categories := []constants.MetricCategory{
		constants.MetricCompletion,
		constants.MetricQuantity,
		constants.MetricTime,
	}
	for _, category := range categories {
		t.Run(string(category), func(t *testing.T) {
			ctx := context.Background()
			f := setupTestStore(t)
			h := f.addHabit(t, category, 6, 6)

			if _, err := f.store.Mark(ctx, h.ID, "u1", 0); !apperrors.Is(err, apperrors.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			got, _ := f.store.Habit(h.ID)
			if got.CurrentStreak != 6 || got.WeeklyStreakBadge() {
				t.Errorf("a zero mark must not extend the streak, got %d", got.CurrentStreak)
			}
			if len(f.store.TodayRecords(h.ID)) != 0 {
				t.Error("a zero mark must not add a record")
			}
			if points, _ := f.store.Points(ctx, "u1"); points != 0 {
				t.Errorf("expected no points, got %d", points)
			}
		})
	}
}

func TestToggleCompletion(t *testing.T) {
	ctx := context.Background()
	f := setupTestStore(t)
	h := f.addHabit(t, constants.MetricCompletion, 2, 2)

	got, err := f.store.ToggleCompletion(ctx, h.ID, "u1")
	if err != nil {
		t.Fatalf("toggle on failed: %v", err)
	}
	if got.CurrentStreak != 3 || len(f.store.TodayRecords(h.ID)) != 1 {
		t.Errorf("expected marked state, got streak %d", got.CurrentStreak)
	}

	got, err = f.store.ToggleCompletion(ctx, h.ID, "u1")
	if err != nil {
		t.Fatalf("toggle off failed: %v", err)
	}
	if got.CurrentStreak != 2 || len(f.store.TodayRecords(h.ID)) != 0 {
		t.Errorf("expected unmarked state, got streak %d", got.CurrentStreak)
	}
}

func TestConcurrentTogglesAlternate(t *testing.T) {
	ctx := context.Background()
	f := setupTestStore(t)
	h := f.addHabit(t, constants.MetricCompletion, 2, 2)

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.store.ToggleCompletion(ctx, h.ID, "u1"); err != nil {
				t.Errorf("ToggleCompletion failed: %v", err)
			}
		}()
	}
	wg.Wait()

	// an even number of serialized toggles ends where it started
	got, _ := f.store.Habit(h.ID)
	if got.CurrentStreak != 2 || len(f.store.TodayRecords(h.ID)) != 0 {
		t.Errorf("expected 2 with no record today, got %d with %d", got.CurrentStreak, len(f.store.TodayRecords(h.ID)))
	}
	completed, uncompleted := 0, 0
	for _, typ := range f.sink.types() {
		switch typ {
		case constants.EventHabitCompleted:
			completed++
		case constants.EventHabitUncompleted:
			uncompleted++
		}
	}
	if completed != n/2 || uncompleted != n/2 {
		t.Errorf("expected %d marks and %d unmarks, got %d and %d", n/2, n/2, completed, uncompleted)
	}
}

func TestMarkRollsBackOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	f := setupTestStore(t)
	h := f.addHabit(t, constants.MetricCompletion, 6, 6)

	boom := errors.New("offline")
	f.docs.SetFault(func(op, path string) error {
		if op == "set" && strings.HasPrefix(path, constants.CollectionHabits+"/") {
			return boom
		}
		return nil
	})

	_, err := f.store.Mark(ctx, h.ID, "u1", 1)
	if !apperrors.Is(err, apperrors.ErrStoreWrite) {
		t.Fatalf("expected ErrStoreWrite, got %v", err)
	}

	got, _ := f.store.Habit(h.ID)
	if got.CurrentStreak != 6 || len(got.DailyRecords) != 1 {
		t.Errorf("in-memory habit not rolled back: streak %d, %d records", got.CurrentStreak, len(got.DailyRecords))
	}
	if c, _ := f.store.StreakCache(h.ID); c != 6 {
		t.Errorf("streak cache not rolled back, got %d", c)
	}
	if points, _ := f.store.Points(ctx, "u1"); points != 0 {
		t.Errorf("no points may be awarded for a failed mark, got %d", points)
	}
	select {
	case err := <-f.store.Errors():
		if !errors.Is(err, boom) {
			t.Errorf("unexpected reported error %v", err)
		}
	default:
		t.Error("expected error on channel")
	}
}

func TestMarkValidation(t *testing.T) {
	ctx := context.Background()
	f := setupTestStore(t)
	h := f.addHabit(t, constants.MetricCompletion, 0, 0)

	if _, err := f.store.Mark(ctx, h.ID, "u2", 1); !apperrors.Is(err, apperrors.ErrValidation) {
		t.Errorf("expected validation error for another user, got %v", err)
	}
	if _, err := f.store.Mark(ctx, h.ID, "u1", 2); !apperrors.Is(err, apperrors.ErrValidation) {
		t.Errorf("expected validation error for non-binary completion, got %v", err)
	}
	if _, err := f.store.Mark(ctx, "missing", "u1", 1); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateRequiresSessionOwner(t *testing.T) {
	ctx := context.Background()
	f := setupTestStore(t)

	_, err := f.store.Create(ctx, models.Habit{OwnerID: "u2", Title: "x", MetricCategory: constants.MetricTime})
	if !apperrors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	h, err := f.store.Create(ctx, models.Habit{OwnerID: "u1", Title: " Stretch ", MetricCategory: constants.MetricTime})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if h.ID == "" || h.Title != "Stretch" || !h.StartDate.Equal(f.clock.Now()) {
		t.Errorf("defaults not filled: %+v", h)
	}
	if _, ok := f.store.Habit(h.ID); !ok {
		t.Error("created habit missing from in-memory set")
	}

	anon := New(f.docs, session.Anonymous)
	defer anon.Close()
	if _, err := anon.Create(ctx, models.Habit{OwnerID: "u1", Title: "x", MetricCategory: constants.MetricTime}); !apperrors.Is(err, apperrors.ErrValidation) {
		t.Errorf("expected validation error without a session, got %v", err)
	}
}

func TestHabitsOrderedByStartDateDesc(t *testing.T) {
	ctx := context.Background()
	f := setupTestStore(t)
	base := f.clock.Now()
	for i, title := range []string{"old", "new", "mid"} {
		offset := map[int]int{0: -10, 1: 0, 2: -5}[i]
		if _, err := f.store.Create(ctx, models.Habit{
			OwnerID:        "u1",
			Title:          title,
			StartDate:      base.AddDate(0, 0, offset),
			MetricCategory: constants.MetricCompletion,
		}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	got := f.store.Habits()
	if len(got) != 3 || got[0].Title != "new" || got[1].Title != "mid" || got[2].Title != "old" {
		t.Errorf("unexpected order: %v %v %v", got[0].Title, got[1].Title, got[2].Title)
	}
}

func TestRemoteEmissionNeverLowersStreak(t *testing.T) {
	ctx := context.Background()
	f := setupTestStore(t)
	h := f.addHabit(t, constants.MetricCompletion, 6, 6)
	if _, err := f.store.Mark(ctx, h.ID, "u1", 1); err != nil {
		t.Fatalf("Mark failed: %v", err)
	}

	stale := h.Clone()
	stale.Title = "stale write"
	stale.CurrentStreak = 3
	stale.Revision = 5
	data, _ := docstore.Encode(stale)
	_ = f.docs.Set(ctx, docstore.HabitPath(h.ID), data)

	waitFor(t, func() bool {
		got, _ := f.store.Habit(h.ID)
		return got.Title == "stale write"
	})
	if got, _ := f.store.Habit(h.ID); got.CurrentStreak != 7 {
		t.Errorf("stale emission lowered streak to %d", got.CurrentStreak)
	}

	fresher := stale.Clone()
	fresher.CurrentStreak = 10
	fresher.LongestStreak = 10
	fresher.Revision = 6
	data, _ = docstore.Encode(fresher)
	_ = f.docs.Set(ctx, docstore.HabitPath(h.ID), data)
	waitFor(t, func() bool {
		c, _ := f.store.StreakCache(h.ID)
		return c == 10
	})
}

func TestSubscribeSkipsUndecodableDocuments(t *testing.T) {
	ctx := context.Background()
	f := setupTestStore(t)
	f.addHabit(t, constants.MetricCompletion, 0, 0)
	_ = f.docs.Set(ctx, "habits/broken", []byte(`{"ownerId":"u1","startDate":"not a date"}`))

	waitFor(t, func() bool { return len(f.store.Habits()) == 1 })
	time.Sleep(20 * time.Millisecond)
	if n := len(f.store.Habits()); n != 1 {
		t.Errorf("expected the broken habit to be skipped, have %d", n)
	}
}

func TestDeleteFailureKeepsHabit(t *testing.T) {
	ctx := context.Background()
	f := setupTestStore(t)
	h := f.addHabit(t, constants.MetricCompletion, 2, 2)

	f.docs.SetFault(func(op, path string) error {
		if op == "delete" {
			return errors.New("denied")
		}
		return nil
	})
	if err := f.store.Delete(ctx, h); !apperrors.Is(err, apperrors.ErrStoreWrite) {
		t.Fatalf("expected ErrStoreWrite, got %v", err)
	}
	if _, ok := f.store.Habit(h.ID); !ok {
		t.Error("habit must stay in memory after a failed delete")
	}

	f.docs.SetFault(nil)
	if err := f.store.Delete(ctx, h); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := f.store.Habit(h.ID); ok {
		t.Error("habit still in memory after delete")
	}
	if _, ok := f.store.StreakCache(h.ID); ok {
		t.Error("streak cache not cleared after delete")
	}
}

func TestConcurrentMarksIncrementOnce(t *testing.T) {
	ctx := context.Background()
	f := setupTestStore(t)
	h := f.addHabit(t, constants.MetricQuantity, 0, 0)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.store.Mark(ctx, h.ID, "u1", 1); err != nil {
				t.Errorf("Mark failed: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := f.store.Habit(h.ID)
	if got.CurrentStreak != 1 {
		t.Errorf("expected streak 1, got %d", got.CurrentStreak)
	}
	if len(got.DailyRecords) != 11 {
		t.Errorf("expected 11 records, got %d", len(got.DailyRecords))
	}
}

func TestDailyResetIfNeeded(t *testing.T) {
	ctx := context.Background()
	f := setupTestStore(t)
	h := f.addHabit(t, constants.MetricCompletion, 0, 0)
	if _, err := f.store.Mark(ctx, h.ID, "u1", 1); err != nil {
		t.Fatalf("Mark failed: %v", err)
	}
	if f.store.DailyResetIfNeeded() {
		t.Error("no reset expected on the same day")
	}
	if n := len(f.store.TodayRecords(h.ID)); n != 1 {
		t.Fatalf("expected 1 record today, got %d", n)
	}

	f.clock.Advance(24 * time.Hour)
	if !f.store.DailyResetIfNeeded() {
		t.Fatal("expected reset on a new day")
	}
	if n := len(f.store.TodayRecords(h.ID)); n != 0 {
		t.Errorf("expected empty today cache, got %d", n)
	}

	doc, err := f.docs.Get(ctx, docstore.HabitPath(h.ID))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	var stored models.Habit
	if err := doc.Decode(&stored); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(stored.DailyRecords) != 2 {
		t.Errorf("persisted history must be untouched, got %d records", len(stored.DailyRecords))
	}
	if got, _ := f.store.Habit(h.ID); len(got.DailyRecords) != 2 {
		t.Errorf("in-memory history must be untouched, got %d records", len(got.DailyRecords))
	}
}

func TestSubscribeReplacesPreviousUser(t *testing.T) {
	ctx := context.Background()
	f := setupTestStore(t)
	f.addHabit(t, constants.MetricCompletion, 0, 0)
	_ = f.docs.Set(ctx, "habits/other", []byte(`{"id":"other","ownerId":"u2","title":"x","metricCategory":"time"}`))

	if err := f.store.Subscribe(ctx, "u2"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	got := f.store.Habits()
	if len(got) != 1 || got[0].ID != "other" {
		t.Errorf("expected only u2's habit, got %+v", got)
	}
}
