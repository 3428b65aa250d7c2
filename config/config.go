// Package config loads the server configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"matchbook/domain/orderbook"
	"matchbook/infra/memory"
)

type Config struct {
	Log     LogConfig     `yaml:"log"`
	Engine  EngineConfig  `yaml:"engine"`
	GRPC    ListenConfig  `yaml:"grpc"`
	WS      ListenConfig  `yaml:"ws"`
	Metrics ListenConfig  `yaml:"metrics"`
	Journal JournalConfig `yaml:"journal"`
	Outbox  OutboxConfig  `yaml:"outbox"`
	Kafka   KafkaConfig   `yaml:"kafka"`
}

type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is json or console.
	Format string `yaml:"format"`
	// File is written in addition to stdout when set.
	File string `yaml:"file"`
}

type EngineConfig struct {
	Instruments   []string   `yaml:"instruments"`
	SnapshotDepth int        `yaml:"snapshotDepth"`
	Pool          PoolConfig `yaml:"pool"`
}

type PoolConfig struct {
	NodeChunk     int `yaml:"nodeChunk"`
	NodePrealloc  int `yaml:"nodePrealloc"`
	NodeMinFree   int `yaml:"nodeMinFree"`
	NodeMaxFree   int `yaml:"nodeMaxFree"`
	LevelChunk    int `yaml:"levelChunk"`
	LevelPrealloc int `yaml:"levelPrealloc"`
	LevelMinFree  int `yaml:"levelMinFree"`
	LevelMaxFree  int `yaml:"levelMaxFree"`
	TrimEvery     int `yaml:"trimEvery"`
}

type ListenConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type JournalConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Dir             string        `yaml:"dir"`
	SegmentSize     int64         `yaml:"segmentSize"`
	SegmentDuration time.Duration `yaml:"segmentDuration"`
	SyncEveryAppend bool          `yaml:"syncEveryAppend"`
	// Codec is proto or json.
	Codec string `yaml:"codec"`
}

type OutboxConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
	Codec   string `yaml:"codec"`
}

type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers"`
	TradesTopic   string        `yaml:"tradesTopic"`
	IntentsTopic  string        `yaml:"intentsTopic"`
	ReportsTopic  string        `yaml:"reportsTopic"`
	GroupID       string        `yaml:"groupId"`
	FlushInterval time.Duration `yaml:"flushInterval"`
	MaxRetries    uint32        `yaml:"maxRetries"`
	TruncateEvery int           `yaml:"truncateEvery"`
}

// Default is a single-node setup with every optional component off.
func Default() Config {
	pool := orderbook.DefaultConfig()
	return Config{
		Log: LogConfig{Level: "info", Format: "console"},
		Engine: EngineConfig{
			SnapshotDepth: 10,
			Pool: PoolConfig{
				NodeChunk:     pool.Nodes.ChunkSize,
				NodePrealloc:  pool.Nodes.Prealloc,
				NodeMinFree:   pool.Nodes.MinFree,
				NodeMaxFree:   pool.Nodes.MaxFree,
				LevelChunk:    pool.Levels.ChunkSize,
				LevelPrealloc: pool.Levels.Prealloc,
				LevelMinFree:  pool.Levels.MinFree,
				LevelMaxFree:  pool.Levels.MaxFree,
				TrimEvery:     pool.TrimEvery,
			},
		},
		GRPC:    ListenConfig{Enabled: true, Addr: ":50051"},
		WS:      ListenConfig{Addr: ":8081"},
		Metrics: ListenConfig{Addr: ":9090"},
		Journal: JournalConfig{Dir: "data/journal", SegmentSize: 64 << 20, Codec: "proto"},
		Outbox:  OutboxConfig{Dir: "data/outbox", Codec: "proto"},
		Kafka: KafkaConfig{
			TradesTopic:   "trades",
			ReportsTopic:  "reports",
			GroupID:       "matchbook",
			FlushInterval: 250 * time.Millisecond,
			TruncateEvery: 40,
		},
	}
}

// Load reads path over Default, applies env overrides and validates.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	applyEnv(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MATCHBOOK_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = nil
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.Kafka.Brokers = append(cfg.Kafka.Brokers, b)
			}
		}
	}
	if v := os.Getenv("MATCHBOOK_GRPC_ADDR"); v != "" {
		cfg.GRPC.Addr = v
	}
	if v := os.Getenv("MATCHBOOK_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// Validate checks field ranges and cross-section requirements.
func Validate(cfg Config) error {
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q must be debug, info, warn or error", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "console" {
		return fmt.Errorf("log.format %q must be json or console", cfg.Log.Format)
	}

	seen := make(map[string]bool, len(cfg.Engine.Instruments))
	for _, in := range cfg.Engine.Instruments {
		if strings.TrimSpace(in) == "" {
			return errors.New("engine.instruments contains an empty name")
		}
		if seen[in] {
			return fmt.Errorf("engine.instruments lists %s twice", in)
		}
		seen[in] = true
	}
	if cfg.Engine.SnapshotDepth < 0 {
		return errors.New("engine.snapshotDepth must be >= 0")
	}
	p := cfg.Engine.Pool
	if p.NodeChunk <= 0 || p.LevelChunk <= 0 {
		return errors.New("engine.pool chunk sizes must be > 0")
	}
	if p.NodeMinFree > p.NodeMaxFree || p.LevelMinFree > p.LevelMaxFree {
		return errors.New("engine.pool minFree must not exceed maxFree")
	}
	if p.TrimEvery < 0 {
		return errors.New("engine.pool.trimEvery must be >= 0")
	}

	for name, l := range map[string]ListenConfig{"grpc": cfg.GRPC, "ws": cfg.WS, "metrics": cfg.Metrics} {
		if l.Enabled && l.Addr == "" {
			return fmt.Errorf("%s.addr is required when enabled", name)
		}
	}

	if cfg.Journal.Enabled {
		if cfg.Journal.Dir == "" {
			return errors.New("journal.dir is required when enabled")
		}
		if cfg.Journal.SegmentSize <= 0 {
			return errors.New("journal.segmentSize must be > 0")
		}
	}
	if cfg.Outbox.Enabled {
		if cfg.Outbox.Dir == "" {
			return errors.New("outbox.dir is required when enabled")
		}
		if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.TradesTopic == "" {
			return errors.New("outbox needs kafka.brokers and kafka.tradesTopic")
		}
	}
	if cfg.Kafka.IntentsTopic != "" && len(cfg.Kafka.Brokers) == 0 {
		return errors.New("kafka.intentsTopic needs kafka.brokers")
	}
	for name, c := range map[string]string{"journal": cfg.Journal.Codec, "outbox": cfg.Outbox.Codec} {
		if c != "" && c != "proto" && c != "json" {
			return fmt.Errorf("%s.codec %q must be proto or json", name, c)
		}
	}
	return nil
}

// BookConfig converts the pool section for the order book.
func (e EngineConfig) BookConfig() orderbook.Config {
	p := e.Pool
	return orderbook.Config{
		Nodes: memory.ArenaConfig{
			ChunkSize: p.NodeChunk,
			Prealloc:  p.NodePrealloc,
			MinFree:   p.NodeMinFree,
			MaxFree:   p.NodeMaxFree,
		},
		Levels: memory.ArenaConfig{
			ChunkSize: p.LevelChunk,
			Prealloc:  p.LevelPrealloc,
			MinFree:   p.LevelMinFree,
			MaxFree:   p.LevelMaxFree,
		},
		TrimEvery: p.TrimEvery,
	}
}
