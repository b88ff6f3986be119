package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/julianstephens/daystreak/internal/constants"
)

// MetricKind distinguishes built-in metric names from user-defined ones
type MetricKind string

const (
	MetricPredefined MetricKind = "predefined"
	MetricCustom     MetricKind = "custom"
)

// MetricType names the unit a habit is measured in (e.g. "km", "pages")
type MetricType struct {
	Kind MetricKind `json:"kind"`
	Name string     `json:"name"`
}

// DailyRecord is a single day's recorded value. Records are sparse: a day
// with no record counts as not done.
type DailyRecord struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Habit represents a tracked practice and its streak bookkeeping
type Habit struct {
	ID             string                   `json:"id"`
	OwnerID        string                   `json:"ownerId"`
	Title          string                   `json:"title"`
	Description    string                   `json:"description"`
	Goal           string                   `json:"goal"`
	StartDate      time.Time                `json:"startDate"`
	MetricCategory constants.MetricCategory `json:"metricCategory"`
	MetricType     MetricType               `json:"metricType"`
	DailyRecords   []DailyRecord            `json:"dailyRecords"`
	CurrentStreak  int                      `json:"currentStreak"`
	LongestStreak  int                      `json:"longestStreak"`
	// LastReset is when the streak was last incremented; nil after an unmark
	LastReset *time.Time `json:"lastReset,omitempty"`
	// PreviousLongestStreak is LongestStreak before the mark that set LastReset
	PreviousLongestStreak *int `json:"previousLongestStreak,omitempty"`
	Points                int  `json:"points"`
	// Revision increases with every write from this store; older emissions are ignored
	Revision int64 `json:"revision"`
}

// Validate checks user-editable fields
func (h *Habit) Validate() error {
	if strings.TrimSpace(h.Title) == "" {
		return fmt.Errorf("habit title cannot be empty")
	}
	if h.OwnerID == "" {
		return fmt.Errorf("habit owner cannot be empty")
	}
	switch h.MetricCategory {
	case constants.MetricQuantity, constants.MetricTime, constants.MetricCompletion:
	default:
		return fmt.Errorf("unknown metric category %q", h.MetricCategory)
	}
	if h.CurrentStreak < 0 || h.LongestStreak < 0 {
		return fmt.Errorf("streaks cannot be negative")
	}
	return nil
}

// ValidateValue checks a value about to be recorded for this habit
func (h *Habit) ValidateValue(v float64) error {
	if h.MetricCategory == constants.MetricCompletion && v != 0 && v != 1 {
		return fmt.Errorf("completion habits accept only 0 or 1, got %v", v)
	}
	if v < 0 {
		return fmt.Errorf("recorded value cannot be negative, got %v", v)
	}
	return nil
}

// WeeklyStreakBadge reports whether the current streak is at least a week
func (h *Habit) WeeklyStreakBadge() bool {
	return h.CurrentStreak >= constants.WeeklyStreakThreshold
}

// MonthlyStreakBadge reports whether the current streak is at least a month
func (h *Habit) MonthlyStreakBadge() bool {
	return h.CurrentStreak >= constants.MonthlyStreakThreshold
}

// YearlyStreakBadge reports whether the current streak is at least a year
func (h *Habit) YearlyStreakBadge() bool {
	return h.CurrentStreak >= constants.YearlyStreakThreshold
}

// Clone returns a deep copy
func (h Habit) Clone() Habit {
	out := h
	out.DailyRecords = append([]DailyRecord(nil), h.DailyRecords...)
	if h.LastReset != nil {
		t := *h.LastReset
		out.LastReset = &t
	}
	if h.PreviousLongestStreak != nil {
		n := *h.PreviousLongestStreak
		out.PreviousLongestStreak = &n
	}
	return out
}

// UserNote is a free-text note attached to a habit
type UserNote struct {
	ID        string    `json:"id"`
	HabitID   string    `json:"habitID"`
	NoteText  string    `json:"noteText"`
	Timestamp time.Time `json:"timestamp"`
}

// UserRecord is the per-user document holding the points ledger and one-time flags
type UserRecord struct {
	ID                   string    `json:"id"`
	Points               int64     `json:"points"`
	DefaultHabitsCreated bool      `json:"defaultHabitsCreated"`
	CreatedAt            time.Time `json:"createdAt"`
}
