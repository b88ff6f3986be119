package utils

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/daystreak/internal/constants"
	"github.com/julianstephens/daystreak/internal/models"
)

// LoadLocation loads a timezone location from an IANA timezone name.
// If the timezone is "Local" or empty, it returns the system's local timezone.
func LoadLocation(timezone string) (*time.Location, error) {
	if timezone == "" || timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(timezone)
}

// NowInTimezone returns the current time in the specified timezone.
func NowInTimezone(timezone string) (time.Time, error) {
	loc, err := LoadLocation(timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	return time.Now().In(loc), nil
}

// StartOfDay returns local midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DayKey returns the YYYY-MM-DD key of t's calendar day.
func DayKey(t time.Time) string {
	return StartOfDay(t).Format(constants.DateFormat)
}

// SameDay reports whether a and b fall on the same calendar day in a's location.
func SameDay(a, b time.Time) bool {
	return DayKey(a) == DayKey(b.In(a.Location()))
}

// AddDays moves t by n calendar days, keeping the wall clock across DST changes.
func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// StartOfWeek returns midnight of the Sunday that starts t's week.
func StartOfWeek(t time.Time) time.Time {
	day := StartOfDay(t)
	return AddDays(day, -int(day.Weekday()))
}

// StartOfMonth returns midnight of the first day of t's month.
func StartOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

// DaysInMonth returns the number of days in t's month.
func DaysInMonth(t time.Time) int {
	return StartOfMonth(t).AddDate(0, 1, -1).Day()
}

// DaysBetween counts calendar days from a to b (negative when b is before a).
func DaysBetween(a, b time.Time) int {
	da := StartOfDay(a)
	db := StartOfDay(b.In(a.Location()))
	// Round through UTC dates so DST-shortened days still count as one
	ua := time.Date(da.Year(), da.Month(), da.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(db.Year(), db.Month(), db.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

// ParseTime parses a clock string in the standard format (HH:MM).
func ParseTime(timeStr string) (time.Time, error) {
	return time.Parse(constants.TimeFormat, timeStr)
}

// ValidateTimeFormat checks if the string matches the standard time format.
func ValidateTimeFormat(timeStr string) bool {
	_, err := ParseTime(timeStr)
	return err == nil
}

// ValidateTimezone checks if the timezone name is valid.
func ValidateTimezone(timezone string) bool {
	if timezone == "" || timezone == "Local" {
		return true
	}
	_, err := time.LoadLocation(timezone)
	return err == nil
}

// AnchorClock places an HH:MM clock time on date's calendar day.
func AnchorClock(date time.Time, clock string) (time.Time, error) {
	c, err := ParseTime(clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time format: %w", err)
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, c.Hour(), c.Minute(), 0, 0, date.Location()), nil
}

// Reanchor moves t's wall-clock time onto date's calendar day.
func Reanchor(t, date time.Time) time.Time {
	y, m, d := date.Date()
	local := t.In(date.Location())
	return time.Date(y, m, d, local.Hour(), local.Minute(), local.Second(), 0, date.Location())
}

// ClockOf formats t as HH:MM.
func ClockOf(t time.Time) string {
	return t.Format(constants.TimeFormat)
}

// TimeBlockLabels lists the labels of hourly blocks from wake to sleep,
// including a block exactly at sleep. Returns nil when sleep is before wake.
func TimeBlockLabels(wake, sleep time.Time) []string {
	var labels []string
	step := time.Duration(constants.BlockIntervalMin) * time.Minute
	for t := wake; !t.After(sleep); t = t.Add(step) {
		labels = append(labels, t.Format(constants.BlockLabelFormat))
	}
	return labels
}

// GenerateTimeBlocks builds empty hourly blocks from wake to sleep inclusive.
func GenerateTimeBlocks(wake, sleep time.Time) []models.TimeBlock {
	labels := TimeBlockLabels(wake, sleep)
	blocks := make([]models.TimeBlock, 0, len(labels))
	for _, label := range labels {
		blocks = append(blocks, models.TimeBlock{
			ID:   uuid.New().String(),
			Time: label,
		})
	}
	return blocks
}
