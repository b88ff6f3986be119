package constants

const (
	// Default schedule bounds, used when no preference has been saved
	DefaultWakeUpTime = "07:00"
	DefaultSleepTime  = "22:00"

	// DefaultTimezone uses the system local timezone
	DefaultTimezone = "Local"

	// BlockInterval is the spacing of generated time blocks in minutes
	BlockIntervalMin = 60
)
