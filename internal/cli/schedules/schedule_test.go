package schedules

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/julianstephens/daystreak/internal/cli"
	"github.com/julianstephens/daystreak/internal/docstore/memory"
)

func newContext(t *testing.T, docs *memory.Store) (*cli.Context, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	now := time.Date(2026, 1, 14, 12, 0, 0, 0, time.UTC)
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

func TestShowCreatesDefault(t *testing.T) {
	docs := memory.New()
	c, out := newContext(t, docs)
	if err := (&ShowCmd{}).Run(c); err != nil {
		t.Fatalf("show failed: %v", err)
	}
	for _, want := range []string{"Wednesday, Jan 14 2026", "7:00 AM", "10:00 PM", "(untitled)"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("schedule output missing %q:\n%s", want, out.String())
		}
	}
}

func TestTimesAndTask(t *testing.T) {
	docs := memory.New()
	c, out := newContext(t, docs)
	if err := (&TimesCmd{Wake: "06:00", Sleep: "09:00"}).Run(c); err != nil {
		t.Fatalf("times failed: %v", err)
	}
	if !strings.Contains(out.String(), "4 blocks") {
		t.Errorf("unexpected times output: %s", out.String())
	}

	c, _ = newContext(t, docs)
	if err := (&TimesCmd{Wake: "09:00", Sleep: "06:00"}).Run(c); err == nil {
		t.Error("expected sleep before wake to be rejected")
	}

	c, _ = newContext(t, docs)
	if err := (&TaskCmd{Block: "8:00 am", Task: "Deep work"}).Run(c); err != nil {
		t.Fatalf("task failed: %v", err)
	}
	c, _ = newContext(t, docs)
	if err := (&TaskCmd{Block: "11:00 PM", Task: "x"}).Run(c); err == nil {
		t.Error("expected unknown block to fail")
	}

	c, out = newContext(t, docs)
	_ = (&ShowCmd{}).Run(c)
	if !strings.Contains(out.String(), "Deep work") {
		t.Errorf("task not persisted:\n%s", out.String())
	}
}

func TestPriorities(t *testing.T) {
	docs := memory.New()
	c, _ := newContext(t, docs)
	if err := (&PriorityAddCmd{Title: "Ship release"}).Run(c); err != nil {
		t.Fatal(err)
	}
	progress := 0.5
	c, _ = newContext(t, docs)
	if err := (&PrioritySetCmd{Priority: "2", Progress: &progress}).Run(c); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	bad := 1.5
	c, _ = newContext(t, docs)
	if err := (&PrioritySetCmd{Priority: "2", Progress: &bad}).Run(c); err == nil {
		t.Error("expected progress above 1 to fail")
	}

	c, _ = newContext(t, docs)
	if err := (&PriorityRemoveCmd{Priority: "1"}).Run(c); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	c, _ = newContext(t, docs)
	if err := (&PriorityRemoveCmd{Priority: "1"}).Run(c); err == nil {
		t.Error("expected removing the last priority to fail")
	}

	c, out := newContext(t, docs)
	_ = (&ShowCmd{}).Run(c)
	if !strings.Contains(out.String(), "Ship release") || !strings.Contains(out.String(), " 50%") {
		t.Errorf("unexpected priorities:\n%s", out.String())
	}
}

func TestCopy(t *testing.T) {
	docs := memory.New()
	c, _ := newContext(t, docs)
	if err := (&CopyCmd{}).Run(c); err == nil {
		t.Error("expected copy without a previous day to fail")
	}

	c, _ = newContext(t, docs)
	if err := (&PriorityAddCmd{Title: "Plan week", Date: "yesterday"}).Run(c); err != nil {
		t.Fatal(err)
	}
	c, out := newContext(t, docs)
	if err := (&CopyCmd{}).Run(c); err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	if !strings.Contains(out.String(), "Copied 2026-01-13 onto 2026-01-14") {
		t.Errorf("unexpected copy output: %s", out.String())
	}
	c, out = newContext(t, docs)
	_ = (&ShowCmd{}).Run(c)
	if !strings.Contains(out.String(), "Plan week") {
		t.Errorf("copied priorities missing:\n%s", out.String())
	}
}
