package habits

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/daystreak/internal/constants"
	"github.com/julianstephens/daystreak/internal/docstore"
	apperrors "github.com/julianstephens/daystreak/internal/errors"
	"github.com/julianstephens/daystreak/internal/events"
	"github.com/julianstephens/daystreak/internal/logger"
	"github.com/julianstephens/daystreak/internal/models"
	"github.com/julianstephens/daystreak/internal/utils"
)

// requireUser checks that the session user is userID
func (s *Store) requireUser(userID string) error {
	uid, ok := s.session.CurrentUserID()
	if !ok {
		return apperrors.Validation("no signed-in user")
	}
	if uid != userID {
		return apperrors.Validation("user %s cannot modify habits of %s", uid, userID)
	}
	return nil
}

func (s *Store) write(ctx context.Context, h models.Habit) error {
	path := docstore.HabitPath(h.ID)
	data, err := docstore.Encode(h)
	if err != nil {
		return apperrors.StoreWrite("set", path, err)
	}
	if err := s.docs.Set(ctx, path, data); err != nil {
		return apperrors.StoreWrite("set", path, err)
	}
	return nil
}

// put stores h in memory and publishes, unless the subscription moved on to
// another user since gen was read
func (s *Store) put(gen uint64, h models.Habit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || h.OwnerID != s.userID {
		return
	}
	s.habits[h.ID] = h.Clone()
	m := s.streaks[h.ID]
	m.current = h.CurrentStreak
	m.longest = h.LongestStreak
	s.streaks[h.ID] = m
	s.refreshTodayLocked(h)
	s.publishLocked()
}

// Create persists a new habit owned by the session user. Missing id and
// start date are filled in.
func (s *Store) Create(ctx context.Context, h models.Habit) (models.Habit, error) {
	if err := s.requireUser(h.OwnerID); err != nil {
		return models.Habit{}, err
	}
	return s.create(ctx, h)
}

func (s *Store) create(ctx context.Context, h models.Habit) (models.Habit, error) {
	h = h.Clone()
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	if h.StartDate.IsZero() {
		h.StartDate = s.clock()
	}
	h.Title = strings.TrimSpace(h.Title)
	h.Revision = 1
	if err := h.Validate(); err != nil {
		return models.Habit{}, apperrors.Validation("%v", err)
	}

	unlock := s.locks.Lock(h.ID)
	defer unlock()

	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	if err := s.write(ctx, h); err != nil {
		s.report(err)
		return models.Habit{}, err
	}
	s.put(gen, h)
	logger.Info("created habit", "habit", h.ID, "title", h.Title)
	return h, nil
}

// Update overwrites a habit document with h
func (s *Store) Update(ctx context.Context, h models.Habit) (models.Habit, error) {
	if err := s.requireUser(h.OwnerID); err != nil {
		return models.Habit{}, err
	}
	if h.ID == "" {
		return models.Habit{}, apperrors.Validation("habit id cannot be empty")
	}
	if err := h.Validate(); err != nil {
		return models.Habit{}, apperrors.Validation("%v", err)
	}

	unlock := s.locks.Lock(h.ID)
	defer unlock()

	h = h.Clone()
	s.mu.Lock()
	gen := s.gen
	if cur, ok := s.habits[h.ID]; ok && cur.Revision >= h.Revision {
		h.Revision = cur.Revision
	}
	h.Revision++
	s.mu.Unlock()

	if err := s.write(ctx, h); err != nil {
		s.report(err)
		return models.Habit{}, err
	}
	s.put(gen, h)
	return h.Clone(), nil
}

// Delete removes the habit document. Only on success does the habit leave
// the in-memory set, along with its streak caches. Notes are kept.
func (s *Store) Delete(ctx context.Context, h models.Habit) error {
	if err := s.requireUser(h.OwnerID); err != nil {
		return err
	}
	unlock := s.locks.Lock(h.ID)
	defer unlock()

	path := docstore.HabitPath(h.ID)
	if err := s.docs.Delete(ctx, path); err != nil {
		err = apperrors.StoreWrite("delete", path, err)
		s.report(err)
		return err
	}

	s.mu.Lock()
	delete(s.habits, h.ID)
	delete(s.streaks, h.ID)
	delete(s.today, h.ID)
	s.publishLocked()
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.Delete(ctx, h.ID); err != nil {
			logger.Warn("failed to clear shared streak cache", "habit", h.ID, "error", err)
		}
	}
	logger.Info("deleted habit", "habit", h.ID)
	return nil
}

// loadForMutation returns the in-memory habit, its streak mark and the
// current generation. Callers hold the habit's lock.
func (s *Store) loadForMutation(habitID, userID string) (models.Habit, streakMark, uint64, error) {
	if err := s.requireUser(userID); err != nil {
		return models.Habit{}, streakMark{}, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.habits[habitID]
	if !ok {
		return models.Habit{}, streakMark{}, 0, apperrors.NotFound(docstore.HabitPath(habitID))
	}
	if h.OwnerID != userID {
		return models.Habit{}, streakMark{}, 0, apperrors.Validation("habit %s is not owned by %s", habitID, userID)
	}
	return h.Clone(), s.streaks[habitID], s.gen, nil
}

// commit publishes next optimistically, writes it, and restores prev and its
// streak mark if the write fails.
func (s *Store) commit(ctx context.Context, gen uint64, prev, next models.Habit, prevMark streakMark) error {
	s.put(gen, next)
	if err := s.write(ctx, next); err != nil {
		s.mu.Lock()
		if gen == s.gen {
			s.habits[prev.ID] = prev
			s.streaks[prev.ID] = prevMark
			s.refreshTodayLocked(prev)
			s.publishLocked()
		}
		s.mu.Unlock()
		logger.Warn("rolled back habit after failed write", "habit", prev.ID, "error", err)
		s.report(err)
		return err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, next.ID, next.CurrentStreak, next.LongestStreak); err != nil {
			logger.Warn("failed to update shared streak cache", "habit", next.ID, "error", err)
		}
	}
	return nil
}

func (s *Store) hasRecordOn(h models.Habit, day string) bool {
	for _, r := range h.DailyRecords {
		if utils.DayKey(r.Date.In(s.loc)) == day {
			return true
		}
	}
	return false
}

// ToggleCompletion unmarks the habit when it has a record today and marks
// it with a value of 1 otherwise. The decision and the write happen under
// the habit's lock.
func (s *Store) ToggleCompletion(ctx context.Context, habitID, userID string) (models.Habit, error) {
	unlock := s.locks.Lock(habitID)
	defer unlock()

	prev, _, _, err := s.loadForMutation(habitID, userID)
	if err != nil {
		return models.Habit{}, err
	}
	if s.hasRecordOn(prev, utils.DayKey(s.clock().In(s.loc))) {
		return s.unmark(ctx, habitID, userID)
	}
	return s.mark(ctx, habitID, userID, 1)
}

// Mark records value for today. The first mark of a day extends the streak
// and awards points to the user's ledger; later marks only add records.
// Zero is not a mark: clearing a day is Unmark.
func (s *Store) Mark(ctx context.Context, habitID, userID string, value float64) (models.Habit, error) {
	unlock := s.locks.Lock(habitID)
	defer unlock()
	return s.mark(ctx, habitID, userID, value)
}

// mark runs with the habit's lock held
func (s *Store) mark(ctx context.Context, habitID, userID string, value float64) (models.Habit, error) {
	prev, prevMark, gen, err := s.loadForMutation(habitID, userID)
	if err != nil {
		return models.Habit{}, err
	}
	if err := prev.ValidateValue(value); err != nil {
		return models.Habit{}, apperrors.Validation("%v", err)
	}
	if value == 0 {
		return models.Habit{}, apperrors.Validation("cannot mark habit %s with 0; unmark it instead", habitID)
	}

	now := s.clock()
	next := prev.Clone()
	next.Revision++
	next.DailyRecords = append(next.DailyRecords, models.DailyRecord{Date: now, Value: value})

	awarded := 0
	if next.LastReset == nil || !utils.SameDay(next.LastReset.In(s.loc), now) {
		previousLongest := next.LongestStreak
		next.PreviousLongestStreak = &previousLongest
		next.CurrentStreak++
		next.LongestStreak = max(next.LongestStreak, next.CurrentStreak)
		reset := now
		next.LastReset = &reset
		awarded = Award(next.CurrentStreak)
		next.Points += awarded
	}

	if err := s.commit(ctx, gen, prev, next, prevMark); err != nil {
		return models.Habit{}, err
	}

	if awarded > 0 {
		path := docstore.UserPath(userID)
		if err := s.docs.Increment(ctx, path, constants.FieldPoints, int64(awarded)); err != nil {
			err = apperrors.StoreWrite("increment", path, err)
			s.report(err)
			return next, err
		}
	}

	s.emit(ctx, constants.EventHabitCompleted, userID, next, awarded, value, now)
	if awarded > 0 && IsMilestone(next.CurrentStreak) {
		s.emit(ctx, constants.EventStreakMilestone, userID, next, awarded, value, now)
	}
	return next, nil
}

// Unmark removes today's records and retracts today's streak increment.
// A habit with no record today is rejected unchanged.
func (s *Store) Unmark(ctx context.Context, habitID, userID string) (models.Habit, error) {
	unlock := s.locks.Lock(habitID)
	defer unlock()
	return s.unmark(ctx, habitID, userID)
}

// unmark runs with the habit's lock held
func (s *Store) unmark(ctx context.Context, habitID, userID string) (models.Habit, error) {
	prev, prevMark, gen, err := s.loadForMutation(habitID, userID)
	if err != nil {
		return models.Habit{}, err
	}

	now := s.clock()
	today := utils.DayKey(now.In(s.loc))
	if !s.hasRecordOn(prev, today) {
		return models.Habit{}, apperrors.Validation("habit %s is not done today", habitID)
	}
	next := prev.Clone()
	next.Revision++
	kept := next.DailyRecords[:0]
	for _, r := range next.DailyRecords {
		if utils.DayKey(r.Date.In(s.loc)) != today {
			kept = append(kept, r)
		}
	}
	next.DailyRecords = kept

	markedToday := next.LastReset != nil && utils.SameDay(next.LastReset.In(s.loc), now)
	next.CurrentStreak = max(0, prev.CurrentStreak-1)
	switch {
	case markedToday && next.PreviousLongestStreak != nil:
		next.LongestStreak = *next.PreviousLongestStreak
	case prev.CurrentStreak == prev.LongestStreak:
		next.LongestStreak = next.CurrentStreak
	}
	next.LongestStreak = max(next.LongestStreak, next.CurrentStreak)
	next.LastReset = nil
	next.PreviousLongestStreak = nil

	if err := s.commit(ctx, gen, prev, next, prevMark); err != nil {
		return models.Habit{}, err
	}
	s.emit(ctx, constants.EventHabitUncompleted, userID, next, 0, 0, now)
	return next, nil
}

func (s *Store) emit(ctx context.Context, typ constants.EventType, userID string, h models.Habit, points int, value float64, at time.Time) {
	ev := events.Event{
		Type:       typ,
		UserID:     userID,
		HabitID:    h.ID,
		HabitTitle: h.Title,
		Streak:     h.CurrentStreak,
		Points:     points,
		Value:      value,
		At:         at,
	}
	if err := s.sink.Publish(ctx, ev); err != nil {
		logger.Warn("failed to publish habit event", "type", typ, "habit", h.ID, "error", err)
	}
}
