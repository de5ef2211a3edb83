// Package log wires slog to a rotatable log file.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// FileLogger is the slog sink. It owns the log file and survives rotation:
// the slog handler writes through it, so swapping the file under the mutex
// is invisible to callers.
type FileLogger struct {
	mu       sync.Mutex
	file     *os.File
	filename string
	level    *slog.LevelVar
}

var (
	loggerMu sync.Mutex
	logger   *FileLogger
)

// GetLogger returns the process-wide logger, nil before Setup.
func GetLogger() *FileLogger {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	return logger
}

// Setup opens the log file, installs it as the slog default, and registers
// it as the process-wide logger. With debug set, Debug-level records are
// written and also copied to stderr.
func Setup(filename string, debug bool) (*FileLogger, error) {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", filename, err)
	}

	level := new(slog.LevelVar)
	if debug {
		level.Set(slog.LevelDebug)
	}

	l := &FileLogger{
		file:     file,
		filename: filename,
		level:    level,
	}

	var out io.Writer = l
	if debug {
		out = io.MultiWriter(l, os.Stderr)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})))

	loggerMu.Lock()
	if logger != nil {
		logger.Close()
	}
	logger = l
	loggerMu.Unlock()

	return l, nil
}

// Write implements io.Writer for the slog handler.
func (l *FileLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return len(p), nil
	}
	return l.file.Write(p)
}

// Rotate closes and reopens the log file. Called on SIGHUP after an
// external tool has moved the old file aside.
func (l *FileLogger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}

	_ = l.file.Close()

	file, err := os.OpenFile(l.filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		l.file = nil
		return fmt.Errorf("failed to reopen log file %s: %w", l.filename, err)
	}
	l.file = file
	return nil
}

// SetDebug toggles Debug-level records at runtime.
func (l *FileLogger) SetDebug(debug bool) {
	if debug {
		l.level.Set(slog.LevelDebug)
	} else {
		l.level.Set(slog.LevelInfo)
	}
}

func (l *FileLogger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}
}
