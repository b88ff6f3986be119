// Package schedule keeps one live DaySchedule per store in sync with the
// document database.
package schedule

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/daystreak/internal/constants"
	"github.com/julianstephens/daystreak/internal/docstore"
	apperrors "github.com/julianstephens/daystreak/internal/errors"
	"github.com/julianstephens/daystreak/internal/logger"
	"github.com/julianstephens/daystreak/internal/models"
	"github.com/julianstephens/daystreak/internal/utils"
)

const errorBuffer = 16

type Option func(*Store)

// WithLocation sets the zone that defines calendar days (default time.Local)
func WithLocation(loc *time.Location) Option {
	return func(s *Store) { s.loc = loc }
}

// Store loads, creates and edits day schedules. It holds at most one live
// subscription; loading another day replaces it.
type Store struct {
	docs docstore.Store
	loc  *time.Location

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	current *models.DaySchedule
	sub     docstore.Subscription
	gen     uint64

	updates chan models.DaySchedule
	errs    chan error
}

func New(docs docstore.Store, opts ...Option) *Store {
	s := &Store{
		docs:    docs,
		loc:     time.Local,
		updates: make(chan models.DaySchedule, 1),
		errs:    make(chan error, errorBuffer),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Current returns a copy of the most recently published schedule
func (s *Store) Current() (models.DaySchedule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return models.DaySchedule{}, false
	}
	return s.current.Clone(), true
}

// Updates delivers each newly published schedule. Only the latest unread
// value is kept.
func (s *Store) Updates() <-chan models.DaySchedule {
	return s.updates
}

// Errors delivers write and subscription failures. Sends never block; when
// the buffer is full the error is only logged.
func (s *Store) Errors() <-chan error {
	return s.errs
}

func (s *Store) report(err error) {
	select {
	case s.errs <- err:
	default:
		logger.Warn("schedule error channel full, dropping", "error", err)
	}
}

func (s *Store) publish(gen uint64, sched models.DaySchedule) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	c := sched.Clone()
	s.current = &c
	s.mu.Unlock()

	for {
		select {
		case s.updates <- sched.Clone():
			return
		default:
			select {
			case <-s.updates:
			default:
			}
		}
	}
}

// publishIfCurrent publishes a locally saved schedule when it is the one
// being tracked, giving read-your-writes before the subscription catches up.
func (s *Store) publishIfCurrent(sched models.DaySchedule) {
	s.mu.Lock()
	gen := s.gen
	tracked := s.current != nil && s.current.ID == sched.ID && s.current.UserID == sched.UserID
	s.mu.Unlock()
	if tracked {
		s.publish(gen, sched)
	}
}

// LoadOrCreate makes date's schedule the tracked one. A missing document is
// synthesized from the user's saved wake/sleep preference and persisted.
func (s *Store) LoadOrCreate(ctx context.Context, date time.Time, userID string) (models.DaySchedule, error) {
	if userID == "" {
		return models.DaySchedule{}, apperrors.Validation("user id cannot be empty")
	}
	day := utils.StartOfDay(date.In(s.loc))
	path := docstore.DaySchedulePath(userID, utils.DayKey(day))

	s.mu.Lock()
	if s.sub != nil {
		_ = s.sub.Close()
		s.sub = nil
	}
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	sched, err := s.read(ctx, path)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		sched, err = s.create(ctx, path, day, userID)
	}
	if err != nil {
		s.report(err)
		return models.DaySchedule{}, err
	}
	s.publish(gen, sched)

	sub, err := s.docs.Watch(s.ctx, path)
	if err != nil {
		logger.Warn("failed to subscribe to schedule", "path", path, "error", err)
		s.report(err)
		return sched, nil
	}
	s.mu.Lock()
	if gen != s.gen {
		// superseded while subscribing
		s.mu.Unlock()
		_ = sub.Close()
		return sched, nil
	}
	s.sub = sub
	s.mu.Unlock()

	logger.Debug("subscribed to schedule", "path", path)
	go s.consume(gen, path, sub)
	return sched, nil
}

func (s *Store) consume(gen uint64, path string, sub docstore.Subscription) {
	for snap := range sub.Updates() {
		if snap.Err != nil {
			s.report(snap.Err)
			continue
		}
		// schedules are never deleted; ignore a transient absence
		if !snap.Exists() {
			continue
		}
		var sched models.DaySchedule
		if err := snap.Docs[0].Decode(&sched); err != nil {
			logger.Warn("skipping undecodable schedule", "path", path, "error", err)
			s.report(err)
			continue
		}
		s.publish(gen, sched)
	}
	logger.Debug("schedule subscription closed", "path", path)
}

func (s *Store) read(ctx context.Context, path string) (models.DaySchedule, error) {
	var sched models.DaySchedule
	doc, err := s.docs.Get(ctx, path)
	if err != nil {
		return sched, err
	}
	err = doc.Decode(&sched)
	return sched, err
}

func (s *Store) preferences(ctx context.Context, userID string) models.SchedulePreferences {
	prefs := models.SchedulePreferences{
		WakeUpTime: constants.DefaultWakeUpTime,
		SleepTime:  constants.DefaultSleepTime,
	}
	doc, err := s.docs.Get(ctx, docstore.SchedulePreferencesPath(userID))
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrNotFound) {
			logger.Warn("failed to read schedule preferences", "user", userID, "error", err)
		}
		return prefs
	}
	var saved models.SchedulePreferences
	if err := doc.Decode(&saved); err != nil {
		logger.Warn("ignoring undecodable schedule preferences", "user", userID, "error", err)
		return prefs
	}
	if utils.ValidateTimeFormat(saved.WakeUpTime) && utils.ValidateTimeFormat(saved.SleepTime) {
		prefs = saved
	}
	return prefs
}

// NewDefault builds the schedule for a day nobody has touched yet
func NewDefault(day time.Time, userID string, prefs models.SchedulePreferences) (models.DaySchedule, error) {
	wake, err := utils.AnchorClock(day, prefs.WakeUpTime)
	if err != nil {
		return models.DaySchedule{}, apperrors.Validation("wake time: %v", err)
	}
	sleep, err := utils.AnchorClock(day, prefs.SleepTime)
	if err != nil {
		return models.DaySchedule{}, apperrors.Validation("sleep time: %v", err)
	}
	return models.DaySchedule{
		ID:         utils.DayKey(day),
		UserID:     userID,
		Date:       day,
		WakeUpTime: wake,
		SleepTime:  sleep,
		Priorities: []models.Priority{{ID: uuid.New().String()}},
		TimeBlocks: utils.GenerateTimeBlocks(wake, sleep),
	}, nil
}

func (s *Store) create(ctx context.Context, path string, day time.Time, userID string) (models.DaySchedule, error) {
	sched, err := NewDefault(day, userID, s.preferences(ctx, userID))
	if err != nil {
		return sched, err
	}
	data, err := docstore.Encode(sched)
	if err != nil {
		return sched, apperrors.StoreWrite("create", path, err)
	}
	err = s.docs.Create(ctx, path, data)
	if apperrors.Is(err, apperrors.ErrAlreadyExists) {
		// another client created it first
		return s.read(ctx, path)
	}
	if err != nil {
		return sched, apperrors.StoreWrite("create", path, err)
	}
	logger.Info("created default schedule", "user", userID, "day", sched.ID)
	return sched, nil
}

// Save overwrites the schedule document and records its wake/sleep times as
// the user's preference for new days.
func (s *Store) Save(ctx context.Context, sched models.DaySchedule) error {
	if err := sched.Validate(); err != nil {
		err = apperrors.Validation("%v", err)
		s.report(err)
		return err
	}
	path := docstore.DaySchedulePath(sched.UserID, sched.ID)
	data, err := docstore.Encode(sched)
	if err != nil {
		err = apperrors.StoreWrite("set", path, err)
		s.report(err)
		return err
	}
	if err := s.docs.Set(ctx, path, data); err != nil {
		err = apperrors.StoreWrite("set", path, err)
		s.report(err)
		return err
	}
	s.publishIfCurrent(sched)

	prefsPath := docstore.SchedulePreferencesPath(sched.UserID)
	prefs, err := docstore.Encode(models.SchedulePreferences{
		WakeUpTime: utils.ClockOf(sched.WakeUpTime),
		SleepTime:  utils.ClockOf(sched.SleepTime),
	})
	if err == nil {
		err = s.docs.Set(ctx, prefsPath, prefs)
	}
	if err != nil {
		err = apperrors.StoreWrite("set", prefsPath, err)
		s.report(err)
		return err
	}
	return nil
}

// RegenerateBlocks rebuilds the hourly blocks from wake/sleep, dropping any
// task text, and saves.
func (s *Store) RegenerateBlocks(ctx context.Context, sched models.DaySchedule) (models.DaySchedule, error) {
	sched = sched.Clone()
	sched.TimeBlocks = utils.GenerateTimeBlocks(sched.WakeUpTime, sched.SleepTime)
	return sched, s.Save(ctx, sched)
}

// SetTimes moves wake and sleep onto the schedule's day and regenerates blocks
func (s *Store) SetTimes(ctx context.Context, sched models.DaySchedule, wake, sleep time.Time) (models.DaySchedule, error) {
	sched = sched.Clone()
	day := sched.Date.In(s.loc)
	sched.WakeUpTime = utils.Reanchor(wake, day)
	sched.SleepTime = utils.Reanchor(sleep, day)
	return s.RegenerateBlocks(ctx, sched)
}

func (s *Store) AddPriority(ctx context.Context, sched models.DaySchedule, title string) (models.DaySchedule, error) {
	sched = sched.Clone()
	sched.Priorities = append(sched.Priorities, models.Priority{
		ID:    uuid.New().String(),
		Title: strings.TrimSpace(title),
	})
	return sched, s.Save(ctx, sched)
}

// UpdatePriority replaces the priority with p's id
func (s *Store) UpdatePriority(ctx context.Context, sched models.DaySchedule, p models.Priority) (models.DaySchedule, error) {
	if p.Progress < 0 || p.Progress > 1 {
		return sched, apperrors.Validation("progress %.2f outside [0,1]", p.Progress)
	}
	sched = sched.Clone()
	for i := range sched.Priorities {
		if sched.Priorities[i].ID == p.ID {
			sched.Priorities[i] = p
			return sched, s.Save(ctx, sched)
		}
	}
	return sched, apperrors.NotFound("priority " + p.ID)
}

// RemovePriority deletes a priority. The last remaining one cannot be removed.
func (s *Store) RemovePriority(ctx context.Context, sched models.DaySchedule, id string) (models.DaySchedule, error) {
	idx := -1
	for i, p := range sched.Priorities {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return sched, apperrors.NotFound("priority " + id)
	}
	if len(sched.Priorities) == 1 {
		return sched, apperrors.Validation("a schedule keeps at least one priority")
	}
	sched = sched.Clone()
	sched.Priorities = append(sched.Priorities[:idx], sched.Priorities[idx+1:]...)
	return sched, s.Save(ctx, sched)
}

func (s *Store) SetBlockTask(ctx context.Context, sched models.DaySchedule, blockID, task string) (models.DaySchedule, error) {
	sched = sched.Clone()
	for i := range sched.TimeBlocks {
		if sched.TimeBlocks[i].ID == blockID {
			sched.TimeBlocks[i].Task = task
			return sched, s.Save(ctx, sched)
		}
	}
	return sched, apperrors.NotFound("time block " + blockID)
}

// CopyPrevious overwrites target's schedule with the previous day's
// priorities, wake/sleep and blocks. The target keeps its own id and date.
// When the previous day has no schedule, nothing is written.
func (s *Store) CopyPrevious(ctx context.Context, target time.Time, userID string) (models.DaySchedule, error) {
	if userID == "" {
		return models.DaySchedule{}, apperrors.Validation("user id cannot be empty")
	}
	day := utils.StartOfDay(target.In(s.loc))
	prevDay := utils.AddDays(day, -1)
	prev, err := s.read(ctx, docstore.DaySchedulePath(userID, utils.DayKey(prevDay)))
	if err != nil {
		return models.DaySchedule{}, err
	}

	copied := prev.Clone()
	copied.ID = utils.DayKey(day)
	copied.UserID = userID
	copied.Date = day
	copied.WakeUpTime = utils.Reanchor(prev.WakeUpTime, day)
	copied.SleepTime = utils.Reanchor(prev.SleepTime, day)
	if len(copied.Priorities) == 0 {
		copied.Priorities = []models.Priority{{ID: uuid.New().String()}}
	}
	if err := s.Save(ctx, copied); err != nil {
		return models.DaySchedule{}, err
	}
	logger.Info("copied schedule", "user", userID, "from", prev.ID, "to", copied.ID)
	return copied, nil
}

// Close ends the live subscription. The store must not be used afterwards.
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
