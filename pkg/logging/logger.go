// Package logging configures the process-wide zerolog logger for a
// backtest run and builds the scoped sub-loggers the engine and
// position manager attach to every run, bar, and strategy so a trade
// can be traced back through a rotated log file after the fact.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel is a zerolog level spelled out for YAML/env configuration.
type LogLevel string

const (
	LevelTrace LogLevel = "trace"
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
	LevelFatal LogLevel = "fatal"
	LevelPanic LogLevel = "panic"
)

// Config controls the global logger: console formatting plus an
// optional rotating file sink for the run's trade and risk-cap log.
type Config struct {
	Level      LogLevel `yaml:"level" json:"level"`
	Pretty     bool     `yaml:"pretty" json:"pretty"`
	TimeFormat string   `yaml:"time_format" json:"time_format"`

	EnableFile  bool   `yaml:"enable_file" json:"enable_file"`
	LogDir      string `yaml:"log_dir" json:"log_dir"`
	LogFileName string `yaml:"log_file_name" json:"log_file_name"`
	MaxSize     int    `yaml:"max_size" json:"max_size"`
	MaxBackups  int    `yaml:"max_backups" json:"max_backups"`
	MaxAge      int    `yaml:"max_age" json:"max_age"`
	Compress    bool   `yaml:"compress" json:"compress"`
}

// DefaultConfig is what cmd/backtest runs with absent a run.yaml
// logging override: pretty console output plus a rotated file under
// ./logs, sized for a single unattended overnight run.
func DefaultConfig() Config {
	return Config{
		Level:      LevelInfo,
		Pretty:     true,
		TimeFormat: time.RFC3339,

		EnableFile:  true,
		LogDir:      "logs",
		LogFileName: "backtest-run.log",
		MaxSize:     20,
		MaxBackups:  10,
		MaxAge:      14,
		Compress:    true,
	}
}

// Initialize installs config as the package-wide zerolog logger that
// GetLogger, ForRun, ForBar, and ForStrategy all derive from.
func Initialize(config Config) {
	level, ok := zerologLevels[config.Level]
	if !ok {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = config.TimeFormat

	var writers []io.Writer
	if config.Pretty {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		writers = append(writers, os.Stderr)
	}

	if config.EnableFile {
		if err := os.MkdirAll(config.LogDir, 0755); err != nil {
			zerolog.New(os.Stderr).With().Timestamp().Logger().
				Error().Err(err).Str("log_dir", config.LogDir).Msg("failed to create log directory, file logging disabled")
		} else {
			writers = append(writers, &lumberjack.Logger{
				Filename:   filepath.Join(config.LogDir, config.LogFileName),
				MaxSize:    config.MaxSize,
				MaxBackups: config.MaxBackups,
				MaxAge:     config.MaxAge,
				Compress:   config.Compress,
			})
		}
	}

	var output io.Writer = io.MultiWriter(writers...)
	if len(writers) == 1 {
		output = writers[0]
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

var zerologLevels = map[LogLevel]zerolog.Level{
	LevelTrace: zerolog.TraceLevel,
	LevelDebug: zerolog.DebugLevel,
	LevelInfo:  zerolog.InfoLevel,
	LevelWarn:  zerolog.WarnLevel,
	LevelError: zerolog.ErrorLevel,
	LevelFatal: zerolog.FatalLevel,
	LevelPanic: zerolog.PanicLevel,
}

// GetLogger returns a logger tagged with the owning component, e.g.
// "engine", "position_manager", "data_loader".
func GetLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// ForRun scopes a logger to one backtest run so every line it emits
// carries the symbol and base timeframe being replayed, letting a
// multi-symbol batch's log lines be filtered back to a single run.
func ForRun(parent zerolog.Logger, symbol, baseTimeframe string) zerolog.Logger {
	return parent.With().Str("symbol", symbol).Str("base_timeframe", baseTimeframe).Logger()
}

// ForBar scopes a logger to a single bar close, for the rare case
// (a strategy panic, a malformed bar) where a run-level line needs to
// pin down exactly which bar it happened on.
func ForBar(parent zerolog.Logger, barClose time.Time) zerolog.Logger {
	return parent.With().Time("bar_time", barClose).Logger()
}

// ForStrategy scopes a logger to one registered strategy, replacing
// the ad-hoc Str("strategy", name) calls the engine and position
// manager would otherwise repeat at every log site.
func ForStrategy(parent zerolog.Logger, name string) zerolog.Logger {
	return parent.With().Str("strategy", name).Logger()
}
