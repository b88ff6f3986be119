package models

import (
	"fmt"
	"time"
)

// Priority is one ranked goal for the day
type Priority struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Progress float64 `json:"progress"` // 0..1
}

// TimeBlock is one hour slot of the day with free-form task text
type TimeBlock struct {
	ID   string `json:"id"`
	Time string `json:"time"` // "7:00 AM"
	Task string `json:"task"`
}

// DaySchedule is the per-user, per-day schedule document.
// ID is the day key (YYYY-MM-DD) of Date's local midnight.
type DaySchedule struct {
	ID         string      `json:"id"`
	UserID     string      `json:"userId"`
	Date       time.Time   `json:"date"`
	WakeUpTime time.Time   `json:"wakeUpTime"`
	SleepTime  time.Time   `json:"sleepTime"`
	Priorities []Priority  `json:"priorities"`
	TimeBlocks []TimeBlock `json:"timeBlocks"`
}

// Validate checks the fields the store relies on
func (s *DaySchedule) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("schedule id cannot be empty")
	}
	if s.UserID == "" {
		return fmt.Errorf("schedule user id cannot be empty")
	}
	for _, p := range s.Priorities {
		if p.Progress < 0 || p.Progress > 1 {
			return fmt.Errorf("priority %q progress %.2f outside [0,1]", p.ID, p.Progress)
		}
	}
	return nil
}

// Clone returns a deep copy so callers can edit without aliasing the store's copy
func (s DaySchedule) Clone() DaySchedule {
	out := s
	out.Priorities = append([]Priority(nil), s.Priorities...)
	out.TimeBlocks = append([]TimeBlock(nil), s.TimeBlocks...)
	return out
}

// SchedulePreferences remembers the last wake/sleep clock times a user saved
type SchedulePreferences struct {
	WakeUpTime string `json:"wakeUpTime"` // HH:MM
	SleepTime  string `json:"sleepTime"`  // HH:MM
}
