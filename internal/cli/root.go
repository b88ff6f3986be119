package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/julianstephens/daystreak/internal/config"
	"github.com/julianstephens/daystreak/internal/constants"
	"github.com/julianstephens/daystreak/internal/docstore"
	"github.com/julianstephens/daystreak/internal/events"
	"github.com/julianstephens/daystreak/internal/habits"
	"github.com/julianstephens/daystreak/internal/logger"
	"github.com/julianstephens/daystreak/internal/models"
	"github.com/julianstephens/daystreak/internal/notifier"
	"github.com/julianstephens/daystreak/internal/schedule"
	"github.com/julianstephens/daystreak/internal/session"
	"github.com/julianstephens/daystreak/internal/streakcache"
	"github.com/julianstephens/daystreak/internal/utils"
)

// Context is shared by every command. Connections are opened on first use
// and released by Close.
type Context struct {
	StoreDSN string
	UserID   string
	Timezone string
	AMQPURL  string
	RedisURL string
	Tray     bool
	Out      io.Writer

	// Clock overrides time.Now in tests
	Clock func() time.Time
	// Docs, when set, is used instead of opening StoreDSN
	Docs docstore.Store

	loc     *time.Location
	target  *config.Target
	sess    *session.Static
	closers []func() error
}

func (c *Context) out() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

// Printf writes command output
func (c *Context) Printf(format string, args ...interface{}) {
	fmt.Fprintf(c.out(), format, args...)
}

func (c *Context) Location() (*time.Location, error) {
	if c.loc != nil {
		return c.loc, nil
	}
	loc, err := utils.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	c.loc = loc
	return loc, nil
}

// Now is the current time in the configured timezone
func (c *Context) Now() time.Time {
	now := time.Now()
	if c.Clock != nil {
		now = c.Clock()
	}
	if loc, err := c.Location(); err == nil {
		now = now.In(loc)
	}
	return now
}

func (c *Context) Target() (config.Target, error) {
	if c.target != nil {
		return *c.target, nil
	}
	t, err := config.Resolve(c.StoreDSN, nil)
	if err != nil {
		return config.Target{}, err
	}
	c.target = &t
	return t, nil
}

// Store opens the configured document store
func (c *Context) Store(ctx context.Context) (docstore.Store, error) {
	if c.Docs != nil {
		return c.Docs, nil
	}
	t, err := c.Target()
	if err != nil {
		return nil, err
	}
	docs, err := config.Open(ctx, t)
	if err != nil {
		return nil, err
	}
	c.Docs = docs
	c.closers = append(c.closers, docs.Close)
	return docs, nil
}

// Session loads (or creates) the user record for UserID
func (c *Context) Session(ctx context.Context) (session.Static, error) {
	if c.sess != nil {
		return *c.sess, nil
	}
	docs, err := c.Store(ctx)
	if err != nil {
		return session.Static{}, err
	}
	s, err := session.Load(ctx, docs, c.UserID, c.Now())
	if err != nil {
		return session.Static{}, err
	}
	c.sess = &s
	return s, nil
}

// Sink assembles the event sinks enabled by flags
func (c *Context) Sink() events.Sink {
	sinks := events.Multi{events.LogSink{}}
	if c.AMQPURL != "" {
		p := events.NewPublisher(c.AMQPURL, events.DefaultQueue)
		c.closers = append(c.closers, p.Close)
		sinks = append(sinks, p)
	}
	if c.Tray {
		sinks = append(sinks, events.Filter(notifier.New(), constants.EventStreakMilestone))
	}
	return sinks
}

// HabitStore returns a habit store subscribed to the session user
func (c *Context) HabitStore(ctx context.Context) (*habits.Store, error) {
	sess, err := c.Session(ctx)
	if err != nil {
		return nil, err
	}
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	opts := []habits.Option{
		habits.WithLocation(loc),
		habits.WithEvents(c.Sink()),
	}
	if c.Clock != nil {
		opts = append(opts, habits.WithClock(c.Now))
	}
	if c.RedisURL != "" {
		cache, err := streakcache.Dial(ctx, c.RedisURL)
		if err != nil {
			logger.Warn("Streak cache unavailable, continuing without it", "error", err)
		} else {
			c.closers = append(c.closers, cache.Close)
			opts = append(opts, habits.WithStreakCache(cache))
		}
	}

	hs := habits.New(c.Docs, sess, opts...)
	c.closers = append(c.closers, hs.Close)
	if err := hs.Subscribe(ctx, sess.UserID); err != nil {
		return nil, err
	}
	hs.DailyResetIfNeeded()
	return hs, nil
}

func (c *Context) ScheduleStore(ctx context.Context) (*schedule.Store, error) {
	docs, err := c.Store(ctx)
	if err != nil {
		return nil, err
	}
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	ss := schedule.New(docs, schedule.WithLocation(loc))
	c.closers = append(c.closers, ss.Close)
	return ss, nil
}

// Close releases everything opened through the context, newest first
func (c *Context) Close() error {
	var first error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	c.closers = nil
	return first
}

// ParseDay accepts YYYY-MM-DD, "today", "yesterday", "tomorrow" or an empty
// string (today) and returns local midnight.
func (c *Context) ParseDay(s string) (time.Time, error) {
	today := utils.StartOfDay(c.Now())
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "today":
		return today, nil
	case "yesterday":
		return utils.AddDays(today, -1), nil
	case "tomorrow":
		return utils.AddDays(today, 1), nil
	}
	loc, err := c.Location()
	if err != nil {
		return time.Time{}, err
	}
	d, err := time.ParseInLocation(constants.DateFormat, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format: %s (expected YYYY-MM-DD)", s)
	}
	return d, nil
}

// FindHabit resolves ref as an id, a case-insensitive title or a unique id prefix
func FindHabit(hs *habits.Store, ref string) (models.Habit, error) {
	ref = strings.TrimSpace(ref)
	if h, ok := hs.Habit(ref); ok {
		return h, nil
	}
	var prefixed []models.Habit
	for _, h := range hs.Habits() {
		if strings.EqualFold(h.Title, ref) {
			return h, nil
		}
		if ref != "" && strings.HasPrefix(h.ID, ref) {
			prefixed = append(prefixed, h)
		}
	}
	switch len(prefixed) {
	case 1:
		return prefixed[0], nil
	case 0:
		return models.Habit{}, fmt.Errorf("habit %q not found", ref)
	default:
		return models.Habit{}, fmt.Errorf("habit %q is ambiguous (%d matches)", ref, len(prefixed))
	}
}
