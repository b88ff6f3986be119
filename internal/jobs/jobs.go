// Package jobs runs the periodic work of a long-lived daystreak process.
package jobs

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/julianstephens/daystreak/internal/logger"
)

// Resetter is satisfied by the habit store
type Resetter interface {
	DailyResetIfNeeded() bool
}

// Scheduler wraps a seconds-resolution cron in the user's timezone.
type Scheduler struct {
	cron *cron.Cron
}

func NewScheduler(loc *time.Location) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithLocation(loc), cron.WithSeconds()),
	}
}

// Daily registers job at the given HH:MM wall-clock time
func (s *Scheduler) Daily(clock string, job func()) (cron.EntryID, error) {
	spec, err := dailySpec(clock)
	if err != nil {
		return 0, err
	}
	return s.cron.AddFunc(spec, job)
}

// Every registers job at a fixed interval, rounded down to whole seconds
func (s *Scheduler) Every(interval time.Duration, job func()) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("interval must be positive")
	}
	seconds := int(interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return s.cron.AddFunc(fmt.Sprintf("@every %ds", seconds), job)
}

// DailyReset rebuilds the habit store's today cache right after midnight.
// A catch-up check runs every minute so a suspended machine still resets on
// wake; DailyResetIfNeeded is a no-op when the day has not changed.
func (s *Scheduler) DailyReset(r Resetter) error {
	run := func() {
		if r.DailyResetIfNeeded() {
			logger.Info("Daily reset ran")
		}
	}
	if _, err := s.Daily("00:00", run); err != nil {
		return err
	}
	_, err := s.Every(time.Minute, run)
	return err
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Entries is the number of registered jobs
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func dailySpec(clock string) (string, error) {
	parts := strings.Split(clock, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time %q, expected HH:MM", clock)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour in %q", clock)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute in %q", clock)
	}
	// second minute hour dom month dow
	return fmt.Sprintf("0 %d %d * * *", minute, hour), nil
}
