package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogFilePath(t *testing.T) {
	start := time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

	tests := []struct {
		name    string
		logsDir string
		want    string
	}{
		{name: "relative", logsDir: "logs", want: filepath.Join("logs", "quakeview.20260212_213836.log")},
		{name: "dot prefix", logsDir: "./logs", want: filepath.Join(".", "logs", "quakeview.20260212_213836.log")},
		{name: "absolute", logsDir: filepath.Join("/var", "log"), want: filepath.Join("/var", "log", "quakeview.20260212_213836.log")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LogFilePath(tt.logsDir, "quakeview", start))
		})
	}
}

func TestOpenLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "server.log")

	f, err := OpenLogFile(path, Rotation{MaxSizeMB: 1})
	require.NoError(t, err)
	_, err = io.WriteString(f, "first\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f, err = OpenLogFile(path, Rotation{MaxSizeMB: 1})
	require.NoError(t, err)
	_, err = io.WriteString(f, "second\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(data))
}

func TestOpenLogFile_Rotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.log")

	f, err := OpenLogFile(path, Rotation{MaxSizeMB: 1, MaxBackups: 2})
	require.NoError(t, err)
	chunk := strings.Repeat("x", 600*1024)
	_, err = io.WriteString(f, chunk)
	require.NoError(t, err)
	_, err = io.WriteString(f, chunk)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
