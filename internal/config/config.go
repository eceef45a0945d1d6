// Package config loads the storage engine's settings from a YAML file.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds the knobs needed to open a database file: where it lives,
// how many frames the buffer pool gets, whether to bypass the OS page
// cache, and what key type the primary index uses.
type Config struct {
	Storage struct {
		File             string `mapstructure:"file"`
		DirectIO         bool   `mapstructure:"direct_io"`
		BufferPoolFrames int    `mapstructure:"buffer_pool_frames"`
		Concurrency      string `mapstructure:"concurrency"` // "shared" or "actor"
	} `mapstructure:"storage"`

	Index struct {
		KeyType      string `mapstructure:"key_type"` // "integer" or "varchar"
		MaxKeyLength uint32 `mapstructure:"max_key_length"`
	} `mapstructure:"index"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

// Load reads and unmarshals the YAML config file at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("storage.buffer_pool_frames", 256)
	v.SetDefault("storage.concurrency", "shared")
	v.SetDefault("index.key_type", "integer")
	v.SetDefault("log.level", "info")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}
