// Package habits keeps a user's habits in sync with the document database and
// applies completion toggles with streak and points bookkeeping.
package habits

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/julianstephens/daystreak/internal/constants"
	"github.com/julianstephens/daystreak/internal/docstore"
	apperrors "github.com/julianstephens/daystreak/internal/errors"
	"github.com/julianstephens/daystreak/internal/events"
	"github.com/julianstephens/daystreak/internal/logger"
	"github.com/julianstephens/daystreak/internal/models"
	"github.com/julianstephens/daystreak/internal/session"
	"github.com/julianstephens/daystreak/internal/utils"
)

const errorBuffer = 16

// StreakCache mirrors the local streak high-water marks somewhere shared
// between processes. Raise stores the larger of the cached and given values
// and returns the result.
type StreakCache interface {
	Raise(ctx context.Context, habitID string, current, longest int) (int, int, error)
	Set(ctx context.Context, habitID string, current, longest int) error
	Delete(ctx context.Context, habitID string) error
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLocation sets the zone that defines "today" (default time.Local)
func WithLocation(loc *time.Location) Option {
	return func(s *Store) { s.loc = loc }
}

func WithEvents(sink events.Sink) Option {
	return func(s *Store) { s.sink = sink }
}

func WithStreakCache(c StreakCache) Option {
	return func(s *Store) { s.cache = c }
}

type streakMark struct {
	current int
	longest int
}

// Store owns the in-memory set of one user's habits
type Store struct {
	docs    docstore.Store
	session session.Provider
	now     func() time.Time
	loc     *time.Location
	sink    events.Sink
	cache   StreakCache

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	userID   string
	habits   map[string]models.Habit
	streaks  map[string]streakMark
	today    map[string][]models.DailyRecord
	resetDay string
	sub      docstore.Subscription
	gen      uint64

	locks keyedMutex

	updates chan []models.Habit
	errs    chan error
}

func New(docs docstore.Store, sess session.Provider, opts ...Option) *Store {
	s := &Store{
		docs:    docs,
		session: sess,
		now:     time.Now,
		loc:     time.Local,
		sink:    events.Nop{},
		habits:  make(map[string]models.Habit),
		streaks: make(map[string]streakMark),
		today:   make(map[string][]models.DailyRecord),
		updates: make(chan []models.Habit, 1),
		errs:    make(chan error, errorBuffer),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

func (s *Store) clock() time.Time {
	return s.now().In(s.loc)
}

// Habits returns the current set ordered by start date, newest first
func (s *Store) Habits() []models.Habit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

// Habit returns one habit by id
func (s *Store) Habit(id string) (models.Habit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.habits[id]
	if !ok {
		return models.Habit{}, false
	}
	return h.Clone(), true
}

// StreakCache returns the local high-water mark for a habit's current streak
func (s *Store) StreakCache(id string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.streaks[id]
	return m.current, ok
}

// TodayRecords returns the habit's records dated today, as of the last
// daily reset or mutation
func (s *Store) TodayRecords(id string) []models.DailyRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.DailyRecord(nil), s.today[id]...)
}

// Updates delivers the full habit set after every change. Only the latest
// unread set is kept.
func (s *Store) Updates() <-chan []models.Habit {
	return s.updates
}

// Errors delivers write and subscription failures without blocking
func (s *Store) Errors() <-chan error {
	return s.errs
}

func (s *Store) report(err error) {
	select {
	case s.errs <- err:
	default:
		logger.Warn("habit error channel full, dropping", "error", err)
	}
}

func (s *Store) sortedLocked() []models.Habit {
	out := make([]models.Habit, 0, len(s.habits))
	for _, h := range s.habits {
		out = append(out, h.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.After(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) publishLocked() {
	set := s.sortedLocked()
	for {
		select {
		case s.updates <- set:
			return
		default:
			select {
			case <-s.updates:
			default:
			}
		}
	}
}

func (s *Store) todayKeyLocked() string {
	if s.resetDay == "" {
		s.resetDay = utils.DayKey(s.clock())
	}
	return s.resetDay
}

func (s *Store) refreshTodayLocked(h models.Habit) {
	key := s.todayKeyLocked()
	var recs []models.DailyRecord
	for _, r := range h.DailyRecords {
		if utils.DayKey(r.Date.In(s.loc)) == key {
			recs = append(recs, r)
		}
	}
	if len(recs) == 0 {
		delete(s.today, h.ID)
		return
	}
	s.today[h.ID] = recs
}

// Subscribe tracks userID's habits, replacing any previous subscription. It
// returns once the first snapshot has been applied or ctx ends.
func (s *Store) Subscribe(ctx context.Context, userID string) error {
	if userID == "" {
		return apperrors.Validation("user id cannot be empty")
	}

	s.mu.Lock()
	if s.sub != nil {
		_ = s.sub.Close()
		s.sub = nil
	}
	s.gen++
	gen := s.gen
	if s.userID != userID {
		s.habits = make(map[string]models.Habit)
		s.streaks = make(map[string]streakMark)
		s.today = make(map[string][]models.DailyRecord)
	}
	s.userID = userID
	s.mu.Unlock()

	sub, err := s.docs.WatchQuery(s.ctx, docstore.Query{
		Collection: constants.CollectionHabits,
		Field:      constants.FieldOwnerID,
		Value:      userID,
	})
	if err != nil {
		s.report(err)
		return err
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		_ = sub.Close()
		return nil
	}
	s.sub = sub
	s.mu.Unlock()

	ready := make(chan struct{})
	go s.consume(gen, sub, ready)
	logger.Debug("subscribed to habits", "user", userID)

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) consume(gen uint64, sub docstore.Subscription, ready chan struct{}) {
	var once sync.Once
	for snap := range sub.Updates() {
		if snap.Err != nil {
			s.report(snap.Err)
			continue
		}
		s.apply(gen, snap.Docs)
		once.Do(func() { close(ready) })
	}
	once.Do(func() { close(ready) })
	logger.Debug("habit subscription closed")
}

// apply replaces the in-memory set from a snapshot. Streaks only move up:
// a lower persisted value than the local high-water mark is ignored, as is
// a habit revision older than the one in memory.
func (s *Store) apply(gen uint64, docs []docstore.Document) {
	incoming := make([]models.Habit, 0, len(docs))
	for _, d := range docs {
		var h models.Habit
		if err := d.Decode(&h); err != nil {
			logger.Warn("skipping undecodable habit", "path", d.Path, "error", err)
			continue
		}
		if h.ID == "" {
			h.ID = d.ID()
		}
		incoming = append(incoming, h)
	}

	shared := make(map[string]streakMark, len(incoming))
	if s.cache != nil {
		for _, h := range incoming {
			cur, longest, err := s.cache.Raise(s.ctx, h.ID, h.CurrentStreak, h.LongestStreak)
			if err != nil {
				logger.Warn("streak cache unavailable", "habit", h.ID, "error", err)
				continue
			}
			shared[h.ID] = streakMark{current: cur, longest: longest}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	next := make(map[string]models.Habit, len(incoming))
	for _, h := range incoming {
		if cur, ok := s.habits[h.ID]; ok && h.Revision < cur.Revision {
			// emitted before our latest local write landed
			next[h.ID] = cur
			continue
		}
		m := s.streaks[h.ID]
		if sh, ok := shared[h.ID]; ok {
			m.current = max(m.current, sh.current)
			m.longest = max(m.longest, sh.longest)
		}
		m.current = max(m.current, h.CurrentStreak)
		m.longest = max(m.longest, h.LongestStreak, m.current)
		s.streaks[h.ID] = m

		h.CurrentStreak = m.current
		h.LongestStreak = m.longest
		next[h.ID] = h
		s.refreshTodayLocked(h)
	}
	for id := range s.habits {
		if _, ok := next[id]; !ok {
			delete(s.today, id)
		}
	}
	s.habits = next
	s.publishLocked()
}

// DailyResetIfNeeded rebuilds the today-only record cache when the calendar
// day has changed since the last rebuild. Persisted records are untouched.
func (s *Store) DailyResetIfNeeded() bool {
	key := utils.DayKey(s.clock())
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == s.resetDay {
		return false
	}
	s.resetDay = key
	s.today = make(map[string][]models.DailyRecord)
	for _, h := range s.habits {
		s.refreshTodayLocked(h)
	}
	s.publishLocked()
	logger.Debug("daily reset", "day", key, "habits", len(s.habits))
	return true
}

// Points reads the user's authoritative points total
func (s *Store) Points(ctx context.Context, userID string) (int64, error) {
	doc, err := s.docs.Get(ctx, docstore.UserPath(userID))
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var rec models.UserRecord
	if err := doc.Decode(&rec); err != nil {
		return 0, err
	}
	return rec.Points, nil
}

// Close ends the subscription. The store must not be used afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	s.gen++
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()
	s.cancel()
	if sub != nil {
		return sub.Close()
	}
	return nil
}
