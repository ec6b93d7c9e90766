package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/YuminosukeSato/scigo-workbench/pkg/errors"
)

var (
	providerMu sync.RWMutex
	provider   LoggerProvider = NewZerologProvider(os.Stderr, LevelInfo, "json")
)

// Setup configures the global logger. format is "json" or "console".
// Warnings raised through errors.Warn are routed to the new logger.
func Setup(level, format string, w io.Writer) error {
	lvl, err := ToLogLevel(level)
	if err != nil {
		return err
	}
	if format != "json" && format != "console" {
		return errors.NewValidationError("logging.format", "must be json or console", format)
	}
	if w == nil {
		w = os.Stderr
	}
	SetProvider(NewZerologProvider(w, lvl, format))
	return nil
}

// SetProvider replaces the global provider and re-targets warnings.
func SetProvider(p LoggerProvider) {
	providerMu.Lock()
	provider = p
	providerMu.Unlock()

	warnLogger := p.GetLoggerWithName("warnings")
	errors.SetZerologWarnFunc(func(w error) {
		warnLogger.Warn(w.Error(), ErrorTypeKey, fmt.Sprintf("%T", w))
	})
}

// GetLogger returns the default logger of the global provider.
func GetLogger() Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return provider.GetLogger()
}

// GetLoggerWithName returns a logger tagged with the component name.
func GetLoggerWithName(name string) Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return provider.GetLoggerWithName(name)
}

// ToLogLevel parses debug, info, warn or error.
func ToLogLevel(level string) (Level, error) {
	switch level {
	case "info", "":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	case "warn":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, errors.NewValidationError("logging.level", "invalid log level", level)
	}
}

func toZerologLevel(l Level) zerolog.Level {
	switch {
	case l <= LevelDebug:
		return zerolog.DebugLevel
	case l <= LevelInfo:
		return zerolog.InfoLevel
	case l <= LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

// ZerologProvider is the production LoggerProvider.
type ZerologProvider struct {
	mu   sync.Mutex
	base zerolog.Logger
}

// NewZerologProvider builds a provider writing to w.
func NewZerologProvider(w io.Writer, level Level, format string) *ZerologProvider {
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	base := zerolog.New(w).Level(toZerologLevel(level)).With().Timestamp().Logger()
	return &ZerologProvider{base: base}
}

// GetLogger implements LoggerProvider.GetLogger.
func (p *ZerologProvider) GetLogger() Logger {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &zerologLogger{zl: p.base}
}

// GetLoggerWithName implements LoggerProvider.GetLoggerWithName.
func (p *ZerologProvider) GetLoggerWithName(name string) Logger {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &zerologLogger{zl: p.base.With().Str(ComponentKey, name).Logger()}
}

// SetLevel implements LoggerProvider.SetLevel. Loggers handed out earlier keep
// their level.
func (p *ZerologProvider) SetLevel(level Level) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.base = p.base.Level(toZerologLevel(level))
}

type zerologLogger struct {
	zl zerolog.Logger
}

func (l *zerologLogger) Debug(msg string, fields ...any) {
	l.zl.Debug().Fields(fields).Msg(msg)
}

func (l *zerologLogger) Info(msg string, fields ...any) {
	l.zl.Info().Fields(fields).Msg(msg)
}

func (l *zerologLogger) Warn(msg string, fields ...any) {
	l.zl.Warn().Fields(fields).Msg(msg)
}

func (l *zerologLogger) Error(msg string, fields ...any) {
	ev := l.zl.Error()
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			ev = ev.Stack().Err(err)
			if m, ok := detail(err); ok {
				ev = ev.Object("error_detail", m)
			}
			fields = fields[1:]
		}
	}
	ev.Fields(fields).Msg(msg)
}

func (l *zerologLogger) With(fields ...any) Logger {
	return &zerologLogger{zl: l.zl.With().Fields(fields).Logger()}
}

func (l *zerologLogger) Enabled(_ context.Context, level Level) bool {
	return toZerologLevel(level) >= l.zl.GetLevel()
}

// detail finds the first error in the chain that knows how to marshal itself.
func detail(err error) (zerolog.LogObjectMarshaler, bool) {
	var m zerolog.LogObjectMarshaler
	if errors.As(err, &m) {
		return m, true
	}
	return nil, false
}
