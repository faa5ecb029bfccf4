package testutils

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTemplateDir(t *testing.T) {
	dir := CreateTemplateDir(t, map[string]string{
		"index.b":      `p("x")`,
		"parts/head.b": `head()`,
	})

	data, err := os.ReadFile(filepath.Join(dir, "index.b"))
	require.NoError(t, err)
	assert.Equal(t, `p("x")`, string(data))
	assert.FileExists(t, filepath.Join(dir, "parts", "head.b"))
}

func TestTouch(t *testing.T) {
	dir := t.TempDir()
	path := WriteTemplate(t, dir, "a.b", "x")
	before, err := os.Stat(path)
	require.NoError(t, err)

	Touch(t, path, 3*time.Second)

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime().Add(3*time.Second).Unix(), after.ModTime().Unix())
}

func TestNewTestLogger(t *testing.T) {
	logger, logs := NewTestLogger()
	logger.WithComponent("test").Debug(context.Background(), "hello", "key", "value")
	logger.Warn(context.Background(), errors.New("boom"), "careful")

	recs := logs.Records(t)
	require.Len(t, recs, 2)
	assert.Equal(t, "hello", recs[0]["msg"])
	assert.Equal(t, "test", recs[0]["component"])
	assert.Equal(t, "value", recs[0]["key"])
	assert.Equal(t, "boom", recs[1]["error"])
	assert.Equal(t, []string{"hello", "careful"}, logs.Messages(t))
}
