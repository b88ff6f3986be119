package schedules

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/julianstephens/daystreak/internal/cli"
	"github.com/julianstephens/daystreak/internal/models"
	"github.com/julianstephens/daystreak/internal/schedule"
	"github.com/julianstephens/daystreak/internal/utils"
)

type ScheduleCmd struct {
	Show     ShowCmd     `cmd:"" help:"Show the schedule for a day." default:"1"`
	Times    TimesCmd    `cmd:"" help:"Set wake-up and sleep times and rebuild the hour blocks."`
	Task     TaskCmd     `cmd:"" help:"Set the task text of an hour block."`
	Priority PriorityCmd `cmd:"" help:"Manage the day's priorities."`
	Copy     CopyCmd     `cmd:"" help:"Copy the previous day's schedule onto a day."`
}

// load opens the schedule store and the day's schedule, creating the default
// schedule when the day has none
func load(ctx *cli.Context, date string) (*schedule.Store, models.DaySchedule, error) {
	bg := context.Background()
	day, err := ctx.ParseDay(date)
	if err != nil {
		return nil, models.DaySchedule{}, err
	}
	sess, err := ctx.Session(bg)
	if err != nil {
		return nil, models.DaySchedule{}, err
	}
	ss, err := ctx.ScheduleStore(bg)
	if err != nil {
		return nil, models.DaySchedule{}, err
	}
	sched, err := ss.LoadOrCreate(bg, day, sess.UserID)
	if err != nil {
		return nil, models.DaySchedule{}, err
	}
	return ss, sched, nil
}

type ShowCmd struct {
	Date string `help:"Day to show (YYYY-MM-DD, today, yesterday, tomorrow)." default:""`
}

func (c *ShowCmd) Run(ctx *cli.Context) error {
	_, sched, err := load(ctx, c.Date)
	if err != nil {
		return err
	}
	ctx.Printf("%s", cli.RenderSchedule(sched))
	return nil
}

type TimesCmd struct {
	Wake  string `arg:"" help:"Wake-up time (HH:MM)."`
	Sleep string `arg:"" help:"Sleep time (HH:MM)."`
	Date  string `help:"Day to edit." default:""`
}

func (c *TimesCmd) Run(ctx *cli.Context) error {
	ss, sched, err := load(ctx, c.Date)
	if err != nil {
		return err
	}
	wake, err := utils.AnchorClock(sched.Date, c.Wake)
	if err != nil {
		return err
	}
	sleep, err := utils.AnchorClock(sched.Date, c.Sleep)
	if err != nil {
		return err
	}
	if !sleep.After(wake) {
		return fmt.Errorf("sleep time %s must be after wake-up time %s", c.Sleep, c.Wake)
	}
	sched, err = ss.SetTimes(context.Background(), sched, wake, sleep)
	if err != nil {
		return err
	}
	ctx.Printf("Updated %s: %d blocks from %s to %s\n", sched.ID, len(sched.TimeBlocks), c.Wake, c.Sleep)
	return nil
}

type TaskCmd struct {
	Block string `arg:"" help:"Block label (\"9:00 AM\"), 1-based index or id."`
	Task  string `arg:"" help:"Task text; empty clears the block."`
	Date  string `help:"Day to edit." default:""`
}

func findBlock(sched models.DaySchedule, ref string) (models.TimeBlock, error) {
	ref = strings.TrimSpace(ref)
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(sched.TimeBlocks) {
		return sched.TimeBlocks[n-1], nil
	}
	for _, b := range sched.TimeBlocks {
		if strings.EqualFold(b.Time, ref) || b.ID == ref {
			return b, nil
		}
	}
	return models.TimeBlock{}, fmt.Errorf("no block %q on %s", ref, sched.ID)
}

func (c *TaskCmd) Run(ctx *cli.Context) error {
	ss, sched, err := load(ctx, c.Date)
	if err != nil {
		return err
	}
	block, err := findBlock(sched, c.Block)
	if err != nil {
		return err
	}
	if _, err := ss.SetBlockTask(context.Background(), sched, block.ID, c.Task); err != nil {
		return err
	}
	ctx.Printf("%s  %s\n", block.Time, c.Task)
	return nil
}

type PriorityCmd struct {
	Add    PriorityAddCmd    `cmd:"" help:"Add a priority."`
	Set    PrioritySetCmd    `cmd:"" help:"Rename a priority or set its progress."`
	Remove PriorityRemoveCmd `cmd:"" help:"Remove a priority."`
}

func findPriority(sched models.DaySchedule, ref string) (models.Priority, error) {
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(sched.Priorities) {
		return sched.Priorities[n-1], nil
	}
	for _, p := range sched.Priorities {
		if p.ID == ref || strings.HasPrefix(p.ID, ref) {
			return p, nil
		}
	}
	return models.Priority{}, fmt.Errorf("no priority %q on %s", ref, sched.ID)
}

type PriorityAddCmd struct {
	Title string `arg:"" help:"Priority title."`
	Date  string `help:"Day to edit." default:""`
}

func (c *PriorityAddCmd) Run(ctx *cli.Context) error {
	ss, sched, err := load(ctx, c.Date)
	if err != nil {
		return err
	}
	sched, err = ss.AddPriority(context.Background(), sched, c.Title)
	if err != nil {
		return err
	}
	ctx.Printf("Added priority %d: %s\n", len(sched.Priorities), c.Title)
	return nil
}

type PrioritySetCmd struct {
	Priority string   `arg:"" help:"1-based index or id."`
	Title    *string  `help:"New title."`
	Progress *float64 `help:"Progress between 0 and 1."`
	Date     string   `help:"Day to edit." default:""`
}

func (c *PrioritySetCmd) Run(ctx *cli.Context) error {
	ss, sched, err := load(ctx, c.Date)
	if err != nil {
		return err
	}
	p, err := findPriority(sched, c.Priority)
	if err != nil {
		return err
	}
	if c.Title != nil {
		p.Title = strings.TrimSpace(*c.Title)
	}
	if c.Progress != nil {
		p.Progress = *c.Progress
	}
	if _, err := ss.UpdatePriority(context.Background(), sched, p); err != nil {
		return err
	}
	ctx.Printf("Updated priority %s\n", cli.ShortID(p.ID))
	return nil
}

type PriorityRemoveCmd struct {
	Priority string `arg:"" help:"1-based index or id."`
	Date     string `help:"Day to edit." default:""`
}

func (c *PriorityRemoveCmd) Run(ctx *cli.Context) error {
	ss, sched, err := load(ctx, c.Date)
	if err != nil {
		return err
	}
	p, err := findPriority(sched, c.Priority)
	if err != nil {
		return err
	}
	if _, err := ss.RemovePriority(context.Background(), sched, p.ID); err != nil {
		return err
	}
	ctx.Printf("Removed priority %s\n", cli.ShortID(p.ID))
	return nil
}

type CopyCmd struct {
	Date string `help:"Day to copy onto; the day before is the source." default:""`
}

func (c *CopyCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	day, err := ctx.ParseDay(c.Date)
	if err != nil {
		return err
	}
	sess, err := ctx.Session(bg)
	if err != nil {
		return err
	}
	ss, err := ctx.ScheduleStore(bg)
	if err != nil {
		return err
	}
	sched, err := ss.CopyPrevious(bg, day, sess.UserID)
	if err != nil {
		return err
	}
	ctx.Printf("Copied %s onto %s\n", utils.DayKey(utils.AddDays(day, -1)), sched.ID)
	return nil
}
