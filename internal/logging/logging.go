// Package logging sets up the process slog logger and adapts zerolog and
// slog to the interfaces other packages log through.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFilePath builds the log file path for a session started at start.
func LogFilePath(logsDir, name string, start time.Time) string {
	return filepath.Join(logsDir, fmt.Sprintf("%s.%s.log", name, start.Format("20060102_150405")))
}

// Rotation bounds a log file. Zero MaxSizeMB keeps lumberjack's default.
type Rotation struct {
	MaxSizeMB  int
	MaxBackups int
	Compress   bool
}

// OpenLogFile creates the directory of path and returns a writer appending
// to path, rotated once it grows past the configured size.
func OpenLogFile(path string, rot Rotation) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    rot.MaxSizeMB,
		MaxBackups: rot.MaxBackups,
		Compress:   rot.Compress,
	}, nil
}
