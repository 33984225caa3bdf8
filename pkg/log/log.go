// Package log wraps zerolog with the orchestrator's component and
// task/worker child-logger conventions.
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance
	Logger zerolog.Logger
)

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger
func Init(cfg Config) {
	// Set log level
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	// Configure output
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	// Use JSON or console output
	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithComponent creates a child of the global logger tagged with
// component, the root scope every long-running process logger in this
// module starts from.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithWorkerID creates a child of the global logger tagged with
// worker_name, used by a worker process's own top-level logger.
func WithWorkerID(workerName string) zerolog.Logger {
	return Logger.With().Str("worker_name", workerName).Logger()
}

// WithTaskID further scopes an existing logger to one task, so every
// line it produces while that task runs carries task_id. Used by the
// graph execution engine and the dispatcher.
func WithTaskID(logger zerolog.Logger, taskID string) zerolog.Logger {
	return logger.With().Str("task_id", taskID).Logger()
}

// WithNodeURI further scopes an existing logger to one node within a
// task, used by the graph execution engine's per-node goroutines.
func WithNodeURI(logger zerolog.Logger, uri string) zerolog.Logger {
	return logger.With().Str("uri", uri).Logger()
}

// WithWorkerName further scopes an existing logger to one worker
// record, used by the dispatcher and the liveness reaper to tag which
// worker a decision concerns.
func WithWorkerName(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("worker", name).Logger()
}

// Helper functions for common logging patterns
func Info(msg string) {
	Logger.Info().Msg(msg)
}

func Debug(msg string) {
	Logger.Debug().Msg(msg)
}

func Warn(msg string) {
	Logger.Warn().Msg(msg)
}

func Error(msg string) {
	Logger.Error().Msg(msg)
}

func Errorf(format string, err error) {
	Logger.Error().Err(err).Msg(format)
}

func Fatal(msg string) {
	Logger.Fatal().Msg(msg)
}
