// Package log provides structured, colored logging for PumpBox.
package log

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

// Component loggers for different parts of the system.
var (
	Program  zerolog.Logger
	Mint     zerolog.Logger
	Curve    zerolog.Logger
	Launch   zerolog.Logger
	Dispatch zerolog.Logger
	Runtime  zerolog.Logger
	RPC      zerolog.Logger
	Storage  zerolog.Logger
	Node     zerolog.Logger
)

// Options controls logger output.
type Options struct {
	Level string
	JSON  bool

	// File enables a rotated JSON log file next to console output.
	File       string
	MaxSizeMB  int // Megabytes before rotation (0 = lumberjack default, 100).
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func init() {
	// Default to colored console output
	Logger = NewConsoleLogger(os.Stdout, "info")
	initComponentLoggers()
}

// Init initializes the logger with the given level and outputs.
// When file is non-empty, logs are written to both the console (colored or
// JSON depending on jsonOutput) and the file (always JSON for machine parsing).
func Init(level string, jsonOutput bool, file string) error {
	return InitWithOptions(Options{Level: level, JSON: jsonOutput, File: file})
}

// InitWithOptions initializes the logger, rotating the log file with lumberjack.
func InitWithOptions(opts Options) error {
	var consoleWriter io.Writer
	if opts.JSON {
		consoleWriter = os.Stdout
	} else {
		consoleWriter = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0700); err != nil {
			return err
		}
		// File writer: always JSON (no ANSI codes, structured for parsing).
		fileWriter := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		}
		Logger = newLogger(zerolog.MultiLevelWriter(consoleWriter, fileWriter), opts.Level)
	} else {
		Logger = newLogger(consoleWriter, opts.Level)
	}

	initComponentLoggers()
	return nil
}

// NewConsoleLogger creates a colored console logger.
func NewConsoleLogger(w io.Writer, level string) zerolog.Logger {
	return newLogger(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}, level)
}

// NewJSONLogger creates a structured JSON logger.
func NewJSONLogger(w io.Writer, level string) zerolog.Logger {
	return newLogger(w, level)
}

func newLogger(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Logger()
}

// parseLevel converts a string level to zerolog.Level.
func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// initComponentLoggers initializes loggers for each component.
func initComponentLoggers() {
	Program = WithComponent("program")
	Mint = WithComponent("mint")
	Curve = WithComponent("curve")
	Launch = WithComponent("launch")
	Dispatch = WithComponent("dispatch")
	Runtime = WithComponent("runtime")
	RPC = WithComponent("rpc")
	Storage = WithComponent("storage")
	Node = WithComponent("node")
}

// WithComponent returns a logger with a component field.
func WithComponent(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// Debug logs a debug message.
func Debug() *zerolog.Event {
	return Logger.Debug()
}

// Info logs an info message.
func Info() *zerolog.Event {
	return Logger.Info()
}

// Warn logs a warning message.
func Warn() *zerolog.Event {
	return Logger.Warn()
}

// Error logs an error message.
func Error() *zerolog.Event {
	return Logger.Error()
}

// Fatal logs a fatal message and exits.
func Fatal() *zerolog.Event {
	return Logger.Fatal()
}
