package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"matchbook/config"
)

func TestJSONToStdoutAndFile(t *testing.T) {
	var out bytes.Buffer
	file := filepath.Join(t.TempDir(), "matchbook.log")

	l, lvl, err := build(config.LogConfig{Level: "info", Format: "json", File: file}, &out)
	require.NoError(t, err)

	l.Debug("hidden")
	l.Info("book created", zap.String("instrument", "AAPL"))
	require.NoError(t, l.Sync())

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &line))
	assert.Equal(t, "book created", line["msg"])
	assert.Equal(t, "AAPL", line["instrument"])

	raw, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(raw), "\n"))

	require.NoError(t, SetLevel(lvl, "debug"))
	l.Debug("now visible")
	assert.Contains(t, out.String(), "now visible")
	assert.Error(t, SetLevel(lvl, "loud"))
}

func TestBadLevel(t *testing.T) {
	_, _, err := New(config.LogConfig{Level: "loud", Format: "json"})
	assert.Error(t, err)
}
