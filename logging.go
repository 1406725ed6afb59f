package gsplat

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Level orders log severities. Messages below a logger's level are dropped.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"debug", "info", "warn", "error"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

// ParseLevel accepts the names used in the logging section of the config.
func ParseLevel(s string) (Level, error) {
	for i, n := range levelNames {
		if strings.EqualFold(s, n) {
			return Level(i), nil
		}
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

type Logger interface {
	Enabled(level Level) bool
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// StdLogger writes debug and info lines to one writer and warnings and errors
// to another, each line tagged with the configured prefix and level.
type StdLogger struct {
	mu     sync.Mutex
	level  Level
	prefix string
	out    *log.Logger
	err    *log.Logger
}

// NewLogger builds the logger described by cfg, writing to stdout and
// stderr. cfg is expected to have passed Load, so an unknown level falls
// back to info.
func NewLogger(cfg LoggingConfig) *StdLogger {
	return NewLoggerTo(cfg, os.Stdout, os.Stderr)
}

// NewLoggerTo is NewLogger with explicit destinations.
func NewLoggerTo(cfg LoggingConfig, out, errOut io.Writer) *StdLogger {
	level, _ := ParseLevel(cfg.Level)
	flags := log.LstdFlags | log.Lmicroseconds
	return &StdLogger{
		level:  level,
		prefix: cfg.Prefix,
		out:    log.New(out, "", flags),
		err:    log.New(errOut, "", flags),
	}
}

func (l *StdLogger) Level() Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

func (l *StdLogger) SetLevel(level Level) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

func (l *StdLogger) Enabled(level Level) bool { return level >= l.Level() }

func (l *StdLogger) logf(dst *log.Logger, level Level, format string, args ...any) {
	if !l.Enabled(level) {
		return
	}
	tag := strings.ToUpper(level.String())
	if l.prefix != "" {
		tag = l.prefix + " " + tag
	}
	dst.Printf("[%s] %s", tag, fmt.Sprintf(format, args...))
}

func (l *StdLogger) Debugf(format string, args ...any) { l.logf(l.out, LevelDebug, format, args...) }
func (l *StdLogger) Infof(format string, args ...any)  { l.logf(l.out, LevelInfo, format, args...) }
func (l *StdLogger) Warnf(format string, args ...any)  { l.logf(l.err, LevelWarn, format, args...) }
func (l *StdLogger) Errorf(format string, args ...any) { l.logf(l.err, LevelError, format, args...) }

type nopLogger struct{}

func (nopLogger) Enabled(Level) bool    { return false }
func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}

func NewNopLogger() Logger { return nopLogger{} }

// OrNop returns l, or a no-op logger when l is nil. Never returns nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return NewNopLogger()
	}
	return l
}
