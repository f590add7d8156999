// Package config loads the auditor node configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eigerco/auditor/internal/forest"
	"github.com/eigerco/auditor/internal/params"
	"github.com/eigerco/auditor/internal/ticktime"
)

// Config represents the complete node configuration.
type Config struct {
	// Preset names the params the Params section overrides: "default" or
	// "tiny".
	Preset string `yaml:"preset"`

	// Params are the protocol parameters. Fields left out of the file keep
	// the preset value.
	Params params.Params `yaml:"params"`

	// Node configures the driver loop.
	Node NodeConfig `yaml:"node"`

	// Forest configures the reference proof verifier.
	Forest ForestConfig `yaml:"forest"`

	// Store configures persistence.
	Store StoreConfig `yaml:"store"`

	// Bus configures event publishing.
	Bus BusConfig `yaml:"bus"`

	// Log configures logging.
	Log LogConfig `yaml:"log"`
}

// NodeConfig configures the driver loop.
type NodeConfig struct {
	// StepInterval is the wall time between two steps.
	StepInterval time.Duration `yaml:"step_interval"`

	// RequestBuffer is the capacity of the request channel.
	RequestBuffer int `yaml:"request_buffer"`

	// JournalRetention is how many ticks of journaled events are kept.
	// Zero keeps everything.
	JournalRetention ticktime.Tick `yaml:"journal_retention"`
}

type ForestConfig struct {
	Depth           int    `yaml:"depth"`
	ChunkChallenges uint32 `yaml:"chunk_challenges"`
}

// StoreConfig configures persistence.
type StoreConfig struct {
	// Path is the pebble directory. Empty keeps the state in memory.
	Path string `yaml:"path"`

	// CacheSize is the pebble block cache size in bytes.
	CacheSize int64 `yaml:"cache_size"`
}

// BusConfig configures event publishing over NATS.
type BusConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`

	// SubjectPrefix is prepended to the event name: "<prefix>.<event>".
	SubjectPrefix string `yaml:"subject_prefix"`

	// Stream, when set, keeps published events in a JetStream stream.
	Stream string `yaml:"stream"`

	// Embedded runs a NATS server inside the node and ignores URL.
	Embedded EmbeddedBusConfig `yaml:"embedded"`
}

type EmbeddedBusConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	StoreDir string `yaml:"store_dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is a zerolog level name.
	Level string `yaml:"level"`

	// Type is "console" or "json".
	Type string `yaml:"type"`
}

// Default returns a configuration with the default params, an in-memory
// store and publishing disabled.
func Default() *Config {
	return &Config{
		Preset: "default",
		Params: params.Default(),
		Node: NodeConfig{
			StepInterval:     6 * time.Second,
			RequestBuffer:    256,
			JournalRetention: 1000,
		},
		Forest: ForestConfig{
			Depth:           forest.DefaultDepth,
			ChunkChallenges: 4,
		},
		Store: StoreConfig{
			CacheSize: 64 << 20,
		},
		Bus: BusConfig{
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: "auditor",
			Embedded: EmbeddedBusConfig{
				Host: "127.0.0.1",
				Port: 4222,
			},
		},
		Log: LogConfig{
			Level: "info",
			Type:  "console",
		},
	}
}

// Load reads a configuration file. The preset is resolved first so the
// params section only overrides the fields it names.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML configuration.
func Parse(data []byte) (*Config, error) {
	var head struct {
		Preset string `yaml:"preset"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	config := Default()
	preset, err := params.Preset(head.Preset)
	if err != nil {
		return nil, err
	}
	config.Params = preset
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return config, nil
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
