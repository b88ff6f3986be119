package habits

import (
	"context"
	"fmt"
	"strings"

	"github.com/julianstephens/daystreak/internal/cli"
	"github.com/julianstephens/daystreak/internal/constants"
	habitstore "github.com/julianstephens/daystreak/internal/habits"
	"github.com/julianstephens/daystreak/internal/models"
	"github.com/julianstephens/daystreak/internal/report"
)

type HabitCmd struct {
	List   ListCmd   `cmd:"" help:"List habits with streaks and today's status." default:"1"`
	Add    AddCmd    `cmd:"" help:"Add a new habit."`
	Delete DeleteCmd `cmd:"" help:"Delete a habit."`
	Toggle ToggleCmd `cmd:"" help:"Mark a habit done today, or undo today's mark."`
	Log    LogCmd    `cmd:"" help:"Record a value for today."`
	Seed   SeedCmd   `cmd:"" help:"Create the starter habits if they were never created."`
	Week   WeekCmd   `cmd:"" help:"Show a week of recorded values."`
	Month  MonthCmd  `cmd:"" help:"Show a month of recorded values."`
	Range  RangeCmd  `cmd:"" help:"Show recorded values for a custom date range."`
}

type ListCmd struct{}

func (c *ListCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	hs, err := ctx.HabitStore(bg)
	if err != nil {
		return err
	}
	all := hs.Habits()
	if len(all) == 0 {
		ctx.Printf("No habits found. Run 'daystreak habit seed' to add the starter set.\n")
		return nil
	}
	for _, h := range all {
		status := " "
		if len(hs.TodayRecords(h.ID)) > 0 {
			status = "x"
		}
		ctx.Printf("[%s] %-20s streak %3d  best %3d  %s %s\n",
			status, h.Title, h.CurrentStreak, h.LongestStreak, cli.Badges(h), cli.ShortID(h.ID))
	}
	sess, _ := ctx.Session(bg)
	points, err := hs.Points(bg, sess.UserID)
	if err != nil {
		return err
	}
	ctx.Printf("\npoints: %d\n", points)
	return nil
}

type AddCmd struct {
	Title       string `arg:"" help:"Habit title."`
	Category    string `help:"How the habit is measured." enum:"quantity,time,completion" default:"completion"`
	Metric      string `help:"Unit name, e.g. km or pages." default:""`
	Goal        string `help:"Free-text goal." default:""`
	Description string `help:"Free-text description." default:""`
}

func (c *AddCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	hs, err := ctx.HabitStore(bg)
	if err != nil {
		return err
	}
	for _, h := range hs.Habits() {
		if strings.EqualFold(h.Title, strings.TrimSpace(c.Title)) {
			return fmt.Errorf("habit with title %q already exists", c.Title)
		}
	}
	sess, _ := ctx.Session(bg)
	metric := models.MetricType{Kind: models.MetricPredefined, Name: c.Metric}
	if c.Metric == "" {
		metric.Name = c.Category
	} else if !predefinedMetric(c.Metric) {
		metric.Kind = models.MetricCustom
	}
	h, err := hs.Create(bg, models.Habit{
		OwnerID:        sess.UserID,
		Title:          c.Title,
		Description:    c.Description,
		Goal:           c.Goal,
		MetricCategory: constants.MetricCategory(c.Category),
		MetricType:     metric,
	})
	if err != nil {
		return err
	}
	ctx.Printf("Added habit: %s (%s)\n", h.Title, cli.ShortID(h.ID))
	return nil
}

func predefinedMetric(name string) bool {
	for _, h := range defaultMetrics() {
		if strings.EqualFold(h, name) {
			return true
		}
	}
	return false
}

// defaultMetrics lists the unit names the starter habits use
func defaultMetrics() []string {
	var names []string
	for _, h := range habitstore.DefaultHabits("") {
		if h.MetricCategory != constants.MetricCompletion {
			names = append(names, h.MetricType.Name)
		}
	}
	return names
}

type DeleteCmd struct {
	Habit string `arg:"" help:"Habit title or id."`
}

func (c *DeleteCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	hs, err := ctx.HabitStore(bg)
	if err != nil {
		return err
	}
	h, err := cli.FindHabit(hs, c.Habit)
	if err != nil {
		return err
	}
	if err := hs.Delete(bg, h); err != nil {
		return err
	}
	ctx.Printf("Deleted habit: %s\n", h.Title)
	return nil
}

type ToggleCmd struct {
	Habit string `arg:"" help:"Habit title or id."`
}

func (c *ToggleCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	hs, err := ctx.HabitStore(bg)
	if err != nil {
		return err
	}
	h, err := cli.FindHabit(hs, c.Habit)
	if err != nil {
		return err
	}
	before := h.Points
	h, err = hs.ToggleCompletion(bg, h.ID, h.OwnerID)
	if err != nil {
		return err
	}
	printStreak(ctx, h, h.Points-before)
	return nil
}

type LogCmd struct {
	Habit string  `arg:"" help:"Habit title or id."`
	Value float64 `arg:"" help:"Value to record (0 or 1 for completion habits)."`
}

func (c *LogCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	hs, err := ctx.HabitStore(bg)
	if err != nil {
		return err
	}
	h, err := cli.FindHabit(hs, c.Habit)
	if err != nil {
		return err
	}
	before := h.Points
	h, err = hs.Mark(bg, h.ID, h.OwnerID, c.Value)
	if err != nil {
		return err
	}
	printStreak(ctx, h, h.Points-before)
	return nil
}

func printStreak(ctx *cli.Context, h models.Habit, awarded int) {
	if h.LastReset == nil {
		ctx.Printf("%s: unmarked, streak %d\n", h.Title, h.CurrentStreak)
		return
	}
	ctx.Printf("%s: streak %d (best %d) %s\n", h.Title, h.CurrentStreak, h.LongestStreak, cli.Badges(h))
	if awarded > 0 {
		ctx.Printf("+%d points\n", awarded)
	}
}

type SeedCmd struct{}

func (c *SeedCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	hs, err := ctx.HabitStore(bg)
	if err != nil {
		return err
	}
	sess, _ := ctx.Session(bg)
	seeded, err := hs.SeedDefaultsIfNeeded(bg, sess.UserID)
	if err != nil {
		return err
	}
	if !seeded {
		ctx.Printf("Starter habits were already created.\n")
		return nil
	}
	ctx.Printf("Created %d starter habits.\n", len(hs.Habits()))
	return nil
}

type WeekCmd struct {
	Habit  string `arg:"" help:"Habit title or id."`
	Offset int    `help:"Weeks from the current one (0 or negative)." default:"0"`
}

func (c *WeekCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	hs, err := ctx.HabitStore(bg)
	if err != nil {
		return err
	}
	h, err := cli.FindHabit(hs, c.Habit)
	if err != nil {
		return err
	}
	sess, _ := ctx.Session(bg)
	days, err := report.WeekSeries(h, c.Offset, sess.AccountCreatedAt(), ctx.Now())
	if err != nil {
		return err
	}
	ctx.Printf("%s, week of %s\n%s\n%s\n", h.Title, days[0].Date.Format("Jan 2"), cli.RenderWeek(days), cli.RenderAverage(days))
	return nil
}

type MonthCmd struct {
	Habit  string `arg:"" help:"Habit title or id."`
	Offset int    `help:"Months from the current one (0 or negative)." default:"0"`
}

func (c *MonthCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	hs, err := ctx.HabitStore(bg)
	if err != nil {
		return err
	}
	h, err := cli.FindHabit(hs, c.Habit)
	if err != nil {
		return err
	}
	sess, _ := ctx.Session(bg)
	days, err := report.MonthGrid(h, c.Offset, sess.AccountCreatedAt(), ctx.Now())
	if err != nil {
		return err
	}
	ctx.Printf("%s\n%s\n%s\n", h.Title, cli.RenderMonth(days), cli.RenderAverage(days))
	return nil
}

type RangeCmd struct {
	Habit string `arg:"" help:"Habit title or id."`
	From  string `arg:"" help:"First day (YYYY-MM-DD)."`
	To    string `arg:"" optional:"" help:"Last day (YYYY-MM-DD), today when omitted." default:"today"`
}

func (c *RangeCmd) Run(ctx *cli.Context) error {
	from, err := ctx.ParseDay(c.From)
	if err != nil {
		return err
	}
	to, err := ctx.ParseDay(c.To)
	if err != nil {
		return err
	}
	bg := context.Background()
	hs, err := ctx.HabitStore(bg)
	if err != nil {
		return err
	}
	h, err := cli.FindHabit(hs, c.Habit)
	if err != nil {
		return err
	}
	days, err := report.CustomRangeSeries(h, from, to, ctx.Now())
	if err != nil {
		return err
	}
	for _, d := range days {
		v := "-"
		if d.Value != nil {
			v = cli.TrimFloat(*d.Value)
		}
		ctx.Printf("%-8s %s\n", d.Label, v)
	}
	ctx.Printf("%s\n", cli.RenderAverage(days))
	return nil
}
