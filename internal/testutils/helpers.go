// Package testutils holds fixtures shared by the package tests.
package testutils

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/conneroisu/breve/internal/logging"
)

// CreateTemplateDir writes files (name to content) under a fresh temporary
// directory and returns it. Names may contain slashes.
func CreateTemplateDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		WriteTemplate(t, dir, name, content)
	}
	return dir
}

// WriteTemplate writes one file under dir and returns its path.
func WriteTemplate(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// Touch moves the modification time of path by d. File loaders report
// whole seconds, so edits made within one second need this to be seen.
func Touch(t *testing.T, path string, d time.Duration) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	mtime := info.ModTime().Add(d)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

// LogBuffer collects JSON log records written by a test logger.
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// Records decodes the collected log lines.
func (b *LogBuffer) Records(t *testing.T) []map[string]interface{} {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(b.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &rec), "log line %q", line)
		out = append(out, rec)
	}
	return out
}

// Messages returns the msg field of every record.
func (b *LogBuffer) Messages(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, rec := range b.Records(t) {
		if msg, ok := rec["msg"].(string); ok {
			out = append(out, msg)
		}
	}
	return out
}

// NewTestLogger returns a debug-level JSON logger writing into a buffer.
func NewTestLogger() (logging.Logger, *LogBuffer) {
	buf := &LogBuffer{}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.LevelDebug,
		Format: "json",
		Output: buf,
	}), buf
}
