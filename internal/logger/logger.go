package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/julianstephens/daystreak/internal/constants"
)

// Logger is the global logger instance. Nil until Init or SetOutput.
var Logger *log.Logger

// Config describes where daystreak logs go and how they look
type Config struct {
	// ConfigDir holds the logs/ directory
	ConfigDir string
	// Debug lowers the level to debug and mirrors records to Console
	Debug bool
	// Level overrides the level implied by Debug ("debug", "info", "warn", "error")
	Level string
	// Format is "text" (default), "json" or "logfmt"
	Format string
	// Rotation limits; zero values fall back to the constants package
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Console receives mirrored records in debug mode; defaults to stderr
	Console io.Writer
}

// Path returns the log file location for configDir
func Path(configDir string) string {
	return filepath.Join(configDir, constants.LogDirName, constants.AppName+".log")
}

// Init replaces the global logger with a rotating file logger built from cfg
func Init(cfg Config) error {
	formatter, err := parseFormat(cfg.Format)
	if err != nil {
		return err
	}
	level := log.WarnLevel
	if cfg.Debug {
		level = log.DebugLevel
	}
	if cfg.Level != "" {
		parsed, err := log.ParseLevel(cfg.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	path := Path(cfg.ConfigDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var w io.Writer = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    orDefault(cfg.MaxSizeMB, constants.LogMaxSizeMB),
		MaxBackups: orDefault(cfg.MaxBackups, constants.LogMaxBackups),
		MaxAge:     orDefault(cfg.MaxAgeDays, constants.LogMaxAgeDays),
		Compress:   true,
	}
	if cfg.Debug {
		console := cfg.Console
		if console == nil {
			console = os.Stderr
		}
		w = io.MultiWriter(console, w)
	}

	Logger = log.NewWithOptions(w, log.Options{
		ReportCaller:    cfg.Debug,
		ReportTimestamp: true,
		Level:           level,
		Prefix:          constants.AppName,
		Formatter:       formatter,
	})
	return nil
}

// SetOutput replaces the global logger with a text logger writing to w at
// debug level. Used by tests and by commands that want console output.
func SetOutput(w io.Writer) {
	Logger = log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Level:           log.DebugLevel,
		Prefix:          constants.AppName,
	})
}

func parseFormat(format string) (log.Formatter, error) {
	switch format {
	case "", "text":
		return log.TextFormatter, nil
	case "json":
		return log.JSONFormatter, nil
	case "logfmt":
		return log.LogfmtFormatter, nil
	}
	return log.TextFormatter, fmt.Errorf("unknown log format %q", format)
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func Debug(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Debug(msg, keyvals...)
	}
}

func Info(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Info(msg, keyvals...)
	}
}

func Warn(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Warn(msg, keyvals...)
	}
}

func Error(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Error(msg, keyvals...)
	}
}
