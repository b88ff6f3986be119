package habits

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/julianstephens/daystreak/internal/cli"
	"github.com/julianstephens/daystreak/internal/docstore/memory"
)

// newContext shares one memory store across commands, like successive runs
// against the same database
func newContext(t *testing.T, docs *memory.Store, now time.Time) (*cli.Context, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	c := &cli.Context{
		UserID:   "u1",
		Timezone: "UTC",
		Out:      &out,
		Clock:    func() time.Time { return now },
		Docs:     docs,
	}
	t.Cleanup(func() { c.Close() })
	return c, &out
}

func TestSeedListToggle(t *testing.T) {
	docs := memory.New()
	now := time.Date(2026, 1, 14, 12, 0, 0, 0, time.UTC)

	c, out := newContext(t, docs, now)
	if err := (&SeedCmd{}).Run(c); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if !strings.Contains(out.String(), "Created 5 starter habits") {
		t.Errorf("unexpected seed output: %s", out.String())
	}

	c, out = newContext(t, docs, now)
	if err := (&SeedCmd{}).Run(c); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "already created") {
		t.Errorf("second seed should be a no-op: %s", out.String())
	}

	c, out = newContext(t, docs, now)
	if err := (&ToggleCmd{Habit: "Make the bed"}).Run(c); err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	if !strings.Contains(out.String(), "streak 1") || !strings.Contains(out.String(), "+2 points") {
		t.Errorf("unexpected toggle output: %s", out.String())
	}

	c, out = newContext(t, docs, now)
	if err := (&ListCmd{}).Run(c); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "[x] Make the bed") || !strings.Contains(out.String(), "points: 2") {
		t.Errorf("unexpected list output: %s", out.String())
	}

	c, out = newContext(t, docs, now)
	if err := (&ToggleCmd{Habit: "make the bed"}).Run(c); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "unmarked, streak 0") {
		t.Errorf("second toggle should unmark: %s", out.String())
	}
}

func TestAddLogAndReports(t *testing.T) {
	docs := memory.New()
	now := time.Date(2026, 1, 14, 12, 0, 0, 0, time.UTC)

	c, _ := newContext(t, docs, now)
	if err := (&AddCmd{Title: "Swim", Category: "quantity", Metric: "laps"}).Run(c); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	c, _ = newContext(t, docs, now)
	if err := (&AddCmd{Title: "swim", Category: "quantity"}).Run(c); err == nil {
		t.Error("expected duplicate title to be rejected")
	}

	c, _ = newContext(t, docs, now)
	if err := (&LogCmd{Habit: "Swim", Value: 12}).Run(c); err != nil {
		t.Fatalf("log failed: %v", err)
	}

	c, out := newContext(t, docs, now)
	if err := (&WeekCmd{Habit: "Swim"}).Run(c); err != nil {
		t.Fatalf("week failed: %v", err)
	}
	if !strings.Contains(out.String(), "12") {
		t.Errorf("week strip should show today's value: %s", out.String())
	}

	c, _ = newContext(t, docs, now)
	if err := (&WeekCmd{Habit: "Swim", Offset: -1}).Run(c); err == nil {
		t.Error("expected offset before account creation to fail")
	}

	c, out = newContext(t, docs, now)
	if err := (&RangeCmd{Habit: "Swim", From: "2026-01-14", To: "today"}).Run(c); err != nil {
		t.Fatalf("range failed: %v", err)
	}
	if !strings.Contains(out.String(), "average: 12") {
		t.Errorf("unexpected range output: %s", out.String())
	}

	c, _ = newContext(t, docs, now)
	if err := (&RangeCmd{Habit: "Swim", From: "2026-01-10", To: "today"}).Run(c); err == nil {
		t.Error("expected range before the habit started to fail")
	}

	c, _ = newContext(t, docs, now)
	if err := (&MonthCmd{Habit: "Swim"}).Run(c); err != nil {
		t.Fatalf("month failed: %v", err)
	}
}

func TestNotes(t *testing.T) {
	docs := memory.New()
	now := time.Date(2026, 1, 14, 12, 0, 0, 0, time.UTC)

	c, _ := newContext(t, docs, now)
	if err := (&AddCmd{Title: "Read", Category: "quantity", Metric: "pages"}).Run(c); err != nil {
		t.Fatal(err)
	}
	c, out := newContext(t, docs, now)
	if err := (&NoteAddCmd{Habit: "Read", Text: []string{"finished", "chapter", "3"}}).Run(c); err != nil {
		t.Fatalf("note add failed: %v", err)
	}
	id := strings.Fields(out.String())[2]

	c, out = newContext(t, docs, now)
	if err := (&NoteListCmd{Habit: "Read"}).Run(c); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "finished chapter 3") {
		t.Errorf("unexpected note list: %s", out.String())
	}

	c, _ = newContext(t, docs, now)
	if err := (&NoteDeleteCmd{Habit: "Read", Note: id}).Run(c); err != nil {
		t.Fatalf("note delete failed: %v", err)
	}
	c, out = newContext(t, docs, now)
	_ = (&NoteListCmd{Habit: "Read"}).Run(c)
	if !strings.Contains(out.String(), "No notes") {
		t.Errorf("expected note to be gone: %s", out.String())
	}
}

func TestDelete(t *testing.T) {
	docs := memory.New()
	now := time.Date(2026, 1, 14, 12, 0, 0, 0, time.UTC)

	c, _ := newContext(t, docs, now)
	_ = (&AddCmd{Title: "Stretch", Category: "completion"}).Run(c)
	c, _ = newContext(t, docs, now)
	if err := (&DeleteCmd{Habit: "Stretch"}).Run(c); err != nil {
		t.Fatal(err)
	}
	c, _ = newContext(t, docs, now)
	if err := (&DeleteCmd{Habit: "Stretch"}).Run(c); err == nil {
		t.Error("expected deleting a missing habit to fail")
	}
}
