package constants

// MetricCategory represents how a habit's daily value is measured
type MetricCategory string

// EventType identifies a domain event emitted by the habit store
type EventType string

const (
	// Badge thresholds, in consecutive days
	WeeklyStreakThreshold  = 7
	MonthlyStreakThreshold = 30
	YearlyStreakThreshold  = 365

	// Points:
	// - BasePoints is awarded for every mark, plus one point per day of the current streak.
	// - Bonus points are awarded once, on the mark that lands exactly on a badge threshold.
	BasePoints         = 1
	WeeklyBonusPoints  = 10
	MonthlyBonusPoints = 50
	YearlyBonusPoints  = 100

	// Metric categories
	MetricQuantity   MetricCategory = "quantity"
	MetricTime       MetricCategory = "time"
	MetricCompletion MetricCategory = "completion"

	// Event types
	EventHabitCompleted   EventType = "habit.completed"
	EventHabitUncompleted EventType = "habit.uncompleted"
	EventStreakMilestone  EventType = "streak.milestone"
)

func init() {
	// Thresholds must be strictly increasing so that badges nest
	if !(WeeklyStreakThreshold < MonthlyStreakThreshold && MonthlyStreakThreshold < YearlyStreakThreshold) {
		panic("streak thresholds must be strictly increasing")
	}
}
