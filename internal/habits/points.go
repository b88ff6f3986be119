package habits

import "github.com/julianstephens/daystreak/internal/constants"

// Award returns the points for the mark that brought a habit to streak:
// the base point, one per streak day, and a bonus when streak lands exactly
// on a badge threshold.
func Award(streak int) int {
	return constants.BasePoints + streak + milestoneBonus(streak)
}

func milestoneBonus(streak int) int {
	switch streak {
	case constants.WeeklyStreakThreshold:
		return constants.WeeklyBonusPoints
	case constants.MonthlyStreakThreshold:
		return constants.MonthlyBonusPoints
	case constants.YearlyStreakThreshold:
		return constants.YearlyBonusPoints
	}
	return 0
}

// IsMilestone reports whether streak is exactly a badge threshold
func IsMilestone(streak int) bool {
	return milestoneBonus(streak) > 0
}
