// Package report derives day-by-day series from a habit's sparse records.
// Everything here is pure: callers pass "now" and the account creation time.
package report

import (
	"time"

	apperrors "github.com/julianstephens/daystreak/internal/errors"
	"github.com/julianstephens/daystreak/internal/models"
	"github.com/julianstephens/daystreak/internal/utils"
)

// DayValue is one day of a series. Value is nil for days outside the
// period the user could have recorded anything.
type DayValue struct {
	Date  time.Time
	Label string
	Value *float64
}

// Values extracts the value column of a series
func Values(days []DayValue) []*float64 {
	out := make([]*float64, len(days))
	for i, d := range days {
		out[i] = d.Value
	}
	return out
}

// dailyTotals sums a habit's records per calendar day in loc
func dailyTotals(h models.Habit, loc *time.Location) map[string]float64 {
	totals := make(map[string]float64, len(h.DailyRecords))
	for _, r := range h.DailyRecords {
		totals[utils.DayKey(r.Date.In(loc))] += r.Value
	}
	return totals
}

// series builds one DayValue per day from first for n days. Days before
// floor or after ceil get a nil value; the rest get their total or zero.
func series(h models.Habit, first time.Time, n int, floor, ceil time.Time, label func(time.Time) string) []DayValue {
	totals := dailyTotals(h, first.Location())
	out := make([]DayValue, 0, n)
	for i := 0; i < n; i++ {
		day := utils.AddDays(first, i)
		dv := DayValue{Date: day, Label: label(day)}
		if !day.Before(floor) && !day.After(ceil) {
			v := totals[utils.DayKey(day)]
			dv.Value = &v
		}
		out = append(out, dv)
	}
	return out
}

// WeekOffsetBounds returns the navigable week offsets: min reaches the week
// the account was created in, max is the current week (0).
func WeekOffsetBounds(accountCreated, now time.Time) (lo, hi int) {
	created := utils.StartOfWeek(accountCreated.In(now.Location()))
	current := utils.StartOfWeek(now)
	weeks := utils.DaysBetween(created, current) / 7
	if weeks < 0 {
		weeks = 0
	}
	return -weeks, 0
}

// WeekSeries returns the Sunday-to-Saturday week weekOffset weeks from the
// current one.
func WeekSeries(h models.Habit, weekOffset int, accountCreated, now time.Time) ([]DayValue, error) {
	lo, hi := WeekOffsetBounds(accountCreated, now)
	if weekOffset < lo || weekOffset > hi {
		return nil, apperrors.Validation("week offset %d outside [%d, %d]", weekOffset, lo, hi)
	}
	first := utils.AddDays(utils.StartOfWeek(now), 7*weekOffset)
	floor := utils.StartOfDay(accountCreated.In(now.Location()))
	return series(h, first, 7, floor, utils.StartOfDay(now), func(d time.Time) string {
		return d.Format("Mon")
	}), nil
}

func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

// MonthOffsetBounds returns the navigable month offsets, back to the month
// of account creation.
func MonthOffsetBounds(accountCreated, now time.Time) (lo, hi int) {
	months := monthsBetween(accountCreated.In(now.Location()), now)
	if months < 0 {
		months = 0
	}
	return -months, 0
}

// MonthGrid returns every day of the month monthOffset months from the
// current one, labelled by day of month.
func MonthGrid(h models.Habit, monthOffset int, accountCreated, now time.Time) ([]DayValue, error) {
	lo, hi := MonthOffsetBounds(accountCreated, now)
	if monthOffset < lo || monthOffset > hi {
		return nil, apperrors.Validation("month offset %d outside [%d, %d]", monthOffset, lo, hi)
	}
	first := utils.StartOfMonth(now).AddDate(0, monthOffset, 0)
	floor := utils.StartOfDay(accountCreated.In(now.Location()))
	return series(h, first, utils.DaysInMonth(first), floor, utils.StartOfDay(now), func(d time.Time) string {
		return d.Format("2")
	}), nil
}

// CustomRangeSeries returns every day from start to end inclusive. The range
// may not begin before the habit started or end after today.
func CustomRangeSeries(h models.Habit, start, end, now time.Time) ([]DayValue, error) {
	loc := now.Location()
	startDay := utils.StartOfDay(start.In(loc))
	endDay := utils.StartOfDay(end.In(loc))
	today := utils.StartOfDay(now)

	if startDay.Before(utils.StartOfDay(h.StartDate.In(loc))) {
		return nil, apperrors.Validation("range starts %s, before the habit started", utils.DayKey(startDay))
	}
	if endDay.After(today) {
		return nil, apperrors.Validation("range ends %s, after today", utils.DayKey(endDay))
	}
	if endDay.Before(startDay) {
		return nil, apperrors.Validation("range end %s is before its start %s", utils.DayKey(endDay), utils.DayKey(startDay))
	}
	n := utils.DaysBetween(startDay, endDay) + 1
	return series(h, startDay, n, startDay, endDay, func(d time.Time) string {
		return d.Format("Jan 2")
	}), nil
}

// AverageCompletion is the mean of the non-nil values. ok is false when
// every value is nil.
func AverageCompletion(values []*float64) (avg float64, ok bool) {
	var sum float64
	n := 0
	for _, v := range values {
		if v == nil {
			continue
		}
		sum += *v
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
