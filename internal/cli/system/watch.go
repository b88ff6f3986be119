package system

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/julianstephens/daystreak/internal/backup"
	"github.com/julianstephens/daystreak/internal/cli"
	"github.com/julianstephens/daystreak/internal/docstore/sqlite"
	"github.com/julianstephens/daystreak/internal/jobs"
	"github.com/julianstephens/daystreak/internal/logger"
	"github.com/julianstephens/daystreak/internal/models"
)

// WatchCmd follows the user's habits and today's schedule, printing every
// change, until interrupted. A cron job rolls the day over at midnight.
type WatchCmd struct {
	BackupAt string `help:"Daily HH:MM backup of a SQLite store; empty disables." default:""`
}

func (c *WatchCmd) Run(ctx *cli.Context) error {
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return c.watch(sigCtx, ctx)
}

func (c *WatchCmd) watch(runCtx context.Context, ctx *cli.Context) error {
	hs, err := ctx.HabitStore(runCtx)
	if err != nil {
		return err
	}
	ss, err := ctx.ScheduleStore(runCtx)
	if err != nil {
		return err
	}
	sess, err := ctx.Session(runCtx)
	if err != nil {
		return err
	}
	if _, err := ss.LoadOrCreate(runCtx, ctx.Now(), sess.UserID); err != nil {
		return err
	}

	loc, err := ctx.Location()
	if err != nil {
		return err
	}
	cron := jobs.NewScheduler(loc)
	if err := cron.DailyReset(hs); err != nil {
		return err
	}
	dayChanged := make(chan struct{}, 1)
	if _, err := cron.Daily("00:00", func() {
		select {
		case dayChanged <- struct{}{}:
		default:
		}
	}); err != nil {
		return err
	}
	if c.BackupAt != "" {
		lite, ok := ctx.Docs.(*sqlite.Store)
		if !ok {
			logger.Warn("Scheduled backups need a SQLite store; skipping", "at", c.BackupAt)
		} else {
			mgr := backup.ForStore(lite)
			if _, err := cron.Daily(c.BackupAt, func() {
				if _, err := mgr.Create(runCtx); err != nil {
					logger.Error("Scheduled backup failed", "error", err)
				}
			}); err != nil {
				return err
			}
		}
	}
	cron.Start()
	defer cron.Stop()

	ctx.Printf("Watching habits and schedule for %s (Ctrl+C to stop)\n", sess.UserID)
	for {
		select {
		case <-runCtx.Done():
			return nil
		case list := <-hs.Updates():
			printHabits(ctx, list)
		case sched := <-ss.Updates():
			printSchedule(ctx, sched)
		case err := <-hs.Errors():
			logger.Error("Habit sync error", "error", err)
			ctx.Printf("habit error: %v\n", err)
		case err := <-ss.Errors():
			logger.Error("Schedule sync error", "error", err)
			ctx.Printf("schedule error: %v\n", err)
		case <-dayChanged:
			if _, err := ss.LoadOrCreate(runCtx, ctx.Now(), sess.UserID); err != nil {
				ctx.Printf("schedule error: %v\n", err)
			}
		}
	}
}

func printHabits(ctx *cli.Context, list []models.Habit) {
	ctx.Printf("habits (%d):\n", len(list))
	for _, h := range list {
		ctx.Printf("  %-20s streak %3d  best %3d %s\n", h.Title, h.CurrentStreak, h.LongestStreak, cli.Badges(h))
	}
}

func printSchedule(ctx *cli.Context, s models.DaySchedule) {
	ctx.Printf("schedule %s: %d priorities, %d blocks\n", s.ID, len(s.Priorities), len(s.TimeBlocks))
}
