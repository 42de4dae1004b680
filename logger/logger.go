package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger represents a structured logger
type Logger struct {
	logger zerolog.Logger
}

// Fields represents log fields
type Fields map[string]interface{}

var (
	// Default is the default logger instance
	Default *Logger
)

// Init initializes the default logger writing to stdout
func Init() {
	InitWithWriter(os.Stdout)
}

// InitWithWriter initializes the default logger with a custom output
func InitWithWriter(out io.Writer) {
	level := getLogLevel()

	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(level)

	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}

	Default = New(output)

	Default.Debug().
		Str("level", level.String()).
		Msg("Logger initialized")
}

// New wraps a writer in a timestamped logger without touching Default
func New(out io.Writer) *Logger {
	return &Logger{logger: zerolog.New(out).With().Timestamp().Logger()}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

// ApplyEnvironment sets the global level for the configured environment.
// An explicit LOG_LEVEL still wins.
func ApplyEnvironment(environment string) {
	zerolog.SetGlobalLevel(levelFor(os.Getenv("LOG_LEVEL"), environment))
}

// getLogLevel returns the log level from environment variable
func getLogLevel() zerolog.Level {
	return levelFor(os.Getenv("LOG_LEVEL"), os.Getenv("WATCHER_ENVIRONMENT"))
}

func levelFor(levelStr, environment string) zerolog.Level {
	if levelStr == "" {
		if environment == "production" {
			return zerolog.InfoLevel
		}
		return zerolog.DebugLevel
	}

	level, err := zerolog.ParseLevel(levelStr)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// WithFields creates a new logger with fields
func (l *Logger) WithFields(fields Fields) *Logger {
	newLogger := l.logger.With()
	for k, v := range fields {
		newLogger = newLogger.Interface(k, v)
	}
	return &Logger{logger: newLogger.Logger()}
}

// WithField creates a new logger with a single field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{logger: l.logger.With().Interface(key, value).Logger()}
}

// WithError adds an error to the logger
func (l *Logger) WithError(err error) *Logger {
	return &Logger{logger: l.logger.With().Err(err).Logger()}
}

// Debug returns a debug event
func (l *Logger) Debug() *zerolog.Event {
	return l.logger.Debug()
}

// Info returns an info event
func (l *Logger) Info() *zerolog.Event {
	return l.logger.Info()
}

// Warn returns a warn event
func (l *Logger) Warn() *zerolog.Event {
	return l.logger.Warn()
}

// Error returns an error event
func (l *Logger) Error() *zerolog.Event {
	return l.logger.Error()
}

// Fatal returns a fatal event
func (l *Logger) Fatal() *zerolog.Event {
	return l.logger.Fatal()
}

// Info logs an info message
func Info(format string, v ...interface{}) {
	ensure()
	Default.Info().Msgf(format, v...)
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	ensure()
	return zerolog.GlobalLevel() <= zerolog.DebugLevel
}

func ensure() {
	if Default == nil {
		Init()
	}
}

// ForSite creates a logger for a specific marketplace profile
func ForSite(siteName string) *Logger {
	ensure()
	return Default.WithField("site", siteName)
}

// ForMonitor creates a logger for the poll loop
func ForMonitor() *Logger {
	ensure()
	return Default.WithField("component", "monitor")
}

// ForFetcher creates a logger for the search page fetcher of one site
func ForFetcher(siteName string) *Logger {
	return ForSite(siteName).WithField("component", "fetcher")
}

// ForStore creates a logger for the seen-listing store
func ForStore() *Logger {
	ensure()
	return Default.WithField("component", "store")
}

// ForNotifier creates a logger for the notifier
func ForNotifier() *Logger {
	ensure()
	return Default.WithField("component", "notifier")
}

// ForPublisher creates a logger for the publisher
func ForPublisher() *Logger {
	ensure()
	return Default.WithField("component", "publisher")
}

// ForCache creates a logger for the cache
func ForCache() *Logger {
	ensure()
	return Default.WithField("component", "cache")
}

// LogError is a convenience method for logging errors with context
func LogError(component string, err error, format string, v ...interface{}) {
	ensure()
	msg := fmt.Sprintf(format, v...)
	Default.Error().
		Str("component", component).
		Err(err).
		Msg(msg)
}
