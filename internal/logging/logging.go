// Package logging is a small leveled logger in the teacher's
// internal/debug idiom: one mutex-guarded writer, package-level helpers,
// optional file output. It is generalized here to the five levels the CLI
// surface exposes via --log-level (§6): error, warning, info, debug,
// trace.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level orders the five log levels from least to most verbose.
type Level int

const (
	LevelError Level = iota
	LevelWarning
	LevelInfo
	LevelDebug
	LevelTrace
)

// ParseLevel maps the CLI's --log-level strings to a Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "error":
		return LevelError, nil
	case "warning":
		return LevelWarning, nil
	case "info":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	case "trace":
		return LevelTrace, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarning:
		return "warning"
	case LevelInfo:
		return "info"
	case LevelDebug:
		return "debug"
	case LevelTrace:
		return "trace"
	default:
		return "info"
	}
}

var (
	mu         sync.Mutex
	output     io.Writer = os.Stderr
	level                = LevelInfo
	logFile    *os.File
	showTimes  bool
)

// SetLevel sets the minimum level that will be written.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

// SetOutput overrides the writer. Passing nil disables all output.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// SetShowElapsedTime toggles whether each line is prefixed with a
// timestamp, mirroring the CLI's --log-time flag (§6).
func SetShowElapsedTime(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	showTimes = enabled
}

// InitLogFile opens (creating if needed) a log file under dir and routes
// output there in addition to returning its path. Call CloseLogFile when
// done.
func InitLogFile(dir string) (string, error) {
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create log directory: %w", err)
	}
	name := fmt.Sprintf("kestrel-%s.log", time.Now().Format("20060102T150405"))
	path := filepath.Join(dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("open log file: %w", err)
	}
	logFile = f
	output = f
	return path, nil
}

// CloseLogFile closes the log file opened by InitLogFile, if any.
func CloseLogFile() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	output = os.Stderr
	return err
}

func logf(l Level, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()

	if output == nil || l > level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if showTimes {
		fmt.Fprintf(output, "%s [%s] %s\n", time.Now().Format(time.RFC3339Nano), l, msg)
		return
	}
	fmt.Fprintf(output, "[%s] %s\n", l, msg)
}

func Errorf(format string, args ...any)   { logf(LevelError, format, args...) }
func Warningf(format string, args ...any) { logf(LevelWarning, format, args...) }
func Infof(format string, args ...any)    { logf(LevelInfo, format, args...) }
func Debugf(format string, args ...any)   { logf(LevelDebug, format, args...) }
func Tracef(format string, args ...any)   { logf(LevelTrace, format, args...) }
