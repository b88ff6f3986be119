package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/julianstephens/daystreak/internal/cli"
	"github.com/julianstephens/daystreak/internal/cli/backups"
	"github.com/julianstephens/daystreak/internal/cli/habits"
	"github.com/julianstephens/daystreak/internal/cli/schedules"
	"github.com/julianstephens/daystreak/internal/cli/system"
	"github.com/julianstephens/daystreak/internal/config"
	"github.com/julianstephens/daystreak/internal/constants"
	"github.com/julianstephens/daystreak/internal/errors"
	"github.com/julianstephens/daystreak/internal/logger"
)

var CLI struct {
	Version   kong.VersionFlag
	Store     string `help:"SQLite path, PostgreSQL connection string (no password), firestore://<project>, memory: or keyring:." default:"${default_store}" env:"DAYSTREAK_STORE"`
	User      string `help:"User id whose data is read and written." default:"local" env:"DAYSTREAK_USER"`
	Timezone  string `help:"IANA timezone used for day boundaries." default:"${default_tz}" env:"DAYSTREAK_TZ"`
	ConfigDir string `help:"Directory for logs." default:"${default_config_dir}" env:"DAYSTREAK_CONFIG_DIR"`
	Debug     bool   `help:"Mirror debug logs to stderr." env:"DAYSTREAK_DEBUG"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"" env:"DAYSTREAK_LOG_LEVEL"`
	LogFormat string `help:"Log file format." enum:"text,json,logfmt" default:"text" env:"DAYSTREAK_LOG_FORMAT"`
	AMQPURL   string `name:"amqp-url" help:"Publish habit events to RabbitMQ." default:"" env:"DAYSTREAK_AMQP_URL"`
	RedisURL  string `name:"redis-url" help:"Share streak high-water marks through Redis." default:"" env:"DAYSTREAK_REDIS_URL"`
	Tray      bool   `help:"Show streak milestones through daystreak-tray." env:"DAYSTREAK_TRAY"`

	Init     system.InitCmd        `cmd:"" help:"Initialize storage and create the starter habits."`
	Schedule schedules.ScheduleCmd `cmd:"" help:"Show and edit day schedules."`
	Habit    habits.HabitCmd       `cmd:"" help:"Manage habits and streaks."`
	Note     habits.NoteCmd        `cmd:"" help:"Manage habit notes."`
	Watch    system.WatchCmd       `cmd:"" help:"Follow habits and today's schedule live."`
	Keyring  system.KeyringCmd     `cmd:"" help:"Keep the store connection string in the OS keyring."`
	Backup   backups.BackupCmd     `cmd:"" help:"Manage SQLite backups."`
}

func main() {
	// .env must be in the environment before kong reads env tags
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, errors.Format(err))
		os.Exit(1)
	}

	kctx := kong.Parse(&CLI,
		kong.Name(constants.AppName),
		kong.Description("Day schedules, habit streaks and points, synced through a document store"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version":            constants.Version,
			"default_store":      constants.DefaultStoreDSN,
			"default_tz":         constants.DefaultTimezone,
			"default_config_dir": constants.DefaultConfigDir,
		},
	)

	configDir, err := config.ExpandHome(CLI.ConfigDir)
	if err != nil {
		errors.Fatal(err)
	}
	if err := logger.Init(logger.Config{
		ConfigDir: configDir,
		Debug:     CLI.Debug,
		Level:     CLI.LogLevel,
		Format:    CLI.LogFormat,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logger: %v\n", err)
	}

	appCtx := &cli.Context{
		StoreDSN: CLI.Store,
		UserID:   CLI.User,
		Timezone: CLI.Timezone,
		AMQPURL:  CLI.AMQPURL,
		RedisURL: CLI.RedisURL,
		Tray:     CLI.Tray,
	}

	err = kctx.Run(appCtx)
	if cerr := appCtx.Close(); cerr != nil {
		logger.Warn("Failed to close store", "error", cerr)
	}
	errors.Fatal(err)
}
