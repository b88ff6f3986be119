package constants

const (
	AppName            = "daystreak"
	DefaultKeyringUser = "database-connection"
	DefaultConfigDir   = "~/.config/daystreak"
	DefaultStoreDSN    = "~/.config/daystreak/daystreak.db"
	Version            = "v0.1.0"

	// DateFormat is the day key format used for schedule documents (YYYY-MM-DD)
	DateFormat = "2006-01-02"

	// TimeFormat is the clock format accepted on the command line (HH:MM)
	TimeFormat = "15:04"

	// BlockLabelFormat is the label format for generated hour blocks ("7:00 AM")
	BlockLabelFormat = "3:04 PM"

	// Backup constants
	MaxBackups       = 14
	BackupDirName    = "backups"
	BackupFilePrefix = "daystreak-"
	BackupFileSuffix = ".db"

	// Log file rotation
	LogDirName    = "logs"
	LogMaxSizeMB  = 10
	LogMaxBackups = 3
	LogMaxAgeDays = 28

	// Tray notifier: the tray app writes "port|pid|secret" to its lockfile
	NotifierLockfileName   = "daystreak-notifier.lock"
	NotificationDurationMs = 5000
	TrayAppIdentifier      = "com.julianstephens.daystreak"
	TrayExecutablePrefix   = "daystreak-tray"
	TraySecretHeader       = "X-Daystreak-Secret"
)

// Document collection names and path segments.
const (
	CollectionUsers        = "users"
	CollectionDaySchedules = "daySchedules"
	CollectionPreferences  = "preferences"
	CollectionFlags        = "flags"
	CollectionHabits       = "habits"
	CollectionUserNotes    = "UserNotes"

	PreferenceSchedule   = "schedule"
	FlagDefaultHabits    = "defaultHabits"
	FieldPoints          = "points"
	FieldDefaultsCreated = "defaultHabitsCreated"
	FieldOwnerID         = "ownerId"
	FieldHabitID         = "habitID"
)
