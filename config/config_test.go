package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "matchbook.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Validate(Default()))
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeTempConfig(t, `
log:
  level: debug
engine:
  instruments: [AAPL, MSFT]
  snapshotDepth: 5
journal:
  enabled: true
  dir: /tmp/j
  segmentDuration: 1h
kafka:
  brokers: [k1:9092]
  flushInterval: 50ms
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format, "default kept")
	assert.Equal(t, []string{"AAPL", "MSFT"}, cfg.Engine.Instruments)
	assert.Equal(t, 5, cfg.Engine.SnapshotDepth)
	assert.Equal(t, time.Hour, cfg.Journal.SegmentDuration)
	assert.Equal(t, int64(64<<20), cfg.Journal.SegmentSize)
	assert.Equal(t, 50*time.Millisecond, cfg.Kafka.FlushInterval)
	assert.Equal(t, ":50051", cfg.GRPC.Addr)

	book := cfg.Engine.BookConfig()
	assert.Equal(t, 10000, book.Nodes.Prealloc)
	assert.Equal(t, 200, book.Levels.ChunkSize)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MATCHBOOK_KAFKA_BROKERS", "a:1, b:2,")
	t.Setenv("MATCHBOOK_GRPC_ADDR", "127.0.0.1:7000")
	t.Setenv("MATCHBOOK_LOG_LEVEL", "warn")

	cfg, err := Load(writeTempConfig(t, "kafka:\n  brokers: [x:9]\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Kafka.Brokers)
	assert.Equal(t, "127.0.0.1:7000", cfg.GRPC.Addr)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"log level":        func(c *Config) { c.Log.Level = "loud" },
		"log format":       func(c *Config) { c.Log.Format = "xml" },
		"duplicate instr":  func(c *Config) { c.Engine.Instruments = []string{"A", "A"} },
		"empty instr":      func(c *Config) { c.Engine.Instruments = []string{" "} },
		"negative depth":   func(c *Config) { c.Engine.SnapshotDepth = -1 },
		"pool range":       func(c *Config) { c.Engine.Pool.NodeMinFree = c.Engine.Pool.NodeMaxFree + 1 },
		"zero chunk":       func(c *Config) { c.Engine.Pool.LevelChunk = 0 },
		"ws without addr":  func(c *Config) { c.WS = ListenConfig{Enabled: true} },
		"journal no dir":   func(c *Config) { c.Journal.Enabled, c.Journal.Dir = true, "" },
		"outbox no kafka":  func(c *Config) { c.Outbox.Enabled = true },
		"intents no kafka": func(c *Config) { c.Kafka.IntentsTopic = "intents" },
		"codec":            func(c *Config) { c.Journal.Codec = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config")

	_, err = Load(writeTempConfig(t, "log: [unclosed"))
	assert.ErrorContains(t, err, "parse yaml")

	_, err = Load(writeTempConfig(t, "log:\n  level: loud\n"))
	assert.ErrorContains(t, err, "log.level")
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeTempConfig(t, "engine:\n  instruments: [AAPL]\n")
	w, err := NewWatcher(path, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := make(chan Config, 4)
	go func() { _ = w.Run(ctx, func(c Config) { updates <- c }) }()

	// an invalid write is skipped
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: loud\n"), 0o644))
	time.Sleep(300 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  instruments: [AAPL, MSFT]\n"), 0o644))

	select {
	case c := <-updates:
		assert.Equal(t, []string{"AAPL", "MSFT"}, c.Engine.Instruments)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload")
	}
}
