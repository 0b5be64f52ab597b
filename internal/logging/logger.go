package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/storyloom/storyloom/internal/config"
)

// Logger appends timestamped lines to .storyloom/logs/storyloom.log so users
// can inspect a run after the fact, including runs driven by the HTTP API.
type Logger struct {
	file   *os.File
	prefix string
}

// New creates (or reuses) the log file for the current project directory.
func New(projectDir string) (*Logger, error) {
	logDir := filepath.Join(projectDir, config.StoryloomDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	path := filepath.Join(logDir, "storyloom.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	return &Logger{file: f}, nil
}

// Close releases the file handle.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// With returns a logger that tags every line with the given component name.
// The returned logger shares the underlying file handle.
func (l *Logger) With(component string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{file: l.file, prefix: component}
}

// Printf writes a single timestamped line to the log file.
func (l *Logger) Printf(format string, args ...any) {
	if l == nil || l.file == nil {
		return
	}
	line := fmt.Sprintf(format, args...)
	line = strings.TrimRight(line, "\n")
	timestamp := time.Now().Format(time.RFC3339)
	if l.prefix != "" {
		fmt.Fprintf(l.file, "[%s] %s: %s\n", timestamp, l.prefix, line)
		return
	}
	fmt.Fprintf(l.file, "[%s] %s\n", timestamp, line)
}
