package docstore

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/julianstephens/daystreak/internal/constants"
)

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Join builds a path from segments
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// Collection returns the collection part of a document path
func Collection(path string) string {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return ""
	}
	return path[:i]
}

// ID returns the last segment of a path
func ID(path string) string {
	return path[strings.LastIndex(path, "/")+1:]
}

// ValidatePath checks that path names a document: non-empty segments, even count
func ValidatePath(path string) error {
	segments := strings.Split(path, "/")
	if len(segments)%2 != 0 {
		return fmt.Errorf("invalid document path %q: odd number of segments", path)
	}
	for _, s := range segments {
		if s == "" {
			return fmt.Errorf("invalid document path %q: empty segment", path)
		}
	}
	return nil
}

// ValidateField checks that a field name is safe to splice into backend JSON paths
func ValidateField(field string) error {
	if !fieldPattern.MatchString(field) {
		return fmt.Errorf("invalid field name %q", field)
	}
	return nil
}

// UserPath is the user's record: users/{uid}
func UserPath(userID string) string {
	return Join(constants.CollectionUsers, userID)
}

// DaySchedulePath is users/{uid}/daySchedules/{dayKey}
func DaySchedulePath(userID, dayKey string) string {
	return Join(constants.CollectionUsers, userID, constants.CollectionDaySchedules, dayKey)
}

// SchedulePreferencesPath is users/{uid}/preferences/schedule
func SchedulePreferencesPath(userID string) string {
	return Join(constants.CollectionUsers, userID, constants.CollectionPreferences, constants.PreferenceSchedule)
}

// DefaultHabitsFlagPath is users/{uid}/flags/defaultHabits
func DefaultHabitsFlagPath(userID string) string {
	return Join(constants.CollectionUsers, userID, constants.CollectionFlags, constants.FlagDefaultHabits)
}

// HabitPath is habits/{id}
func HabitPath(habitID string) string {
	return Join(constants.CollectionHabits, habitID)
}

// NotePath is UserNotes/{id}
func NotePath(noteID string) string {
	return Join(constants.CollectionUserNotes, noteID)
}
