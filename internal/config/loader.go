package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultAddr          = ":8080"
	DefaultPageSize      = 2 << 20
	DefaultNumLayers     = 32
	DefaultVirtBuffSize  = 1 << 30
	DefaultMaxBatch      = 8
	DefaultBytesPerToken = 16 * 128 * 2
	DefaultLogLevel      = "info"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by ApplyDefaults.
type Config struct {
	Addr   string `json:"addr" yaml:"addr" toml:"addr"`
	Device int    `json:"device" yaml:"device" toml:"device"`
	// PageSize must equal the device allocation granularity.
	PageSize uint64 `json:"page_size" yaml:"page_size" toml:"page_size"`
	// LargePageThreshold selects the uvm backend for page sizes at or above it.
	LargePageThreshold uint64 `json:"large_page_threshold" yaml:"large_page_threshold" toml:"large_page_threshold"`
	NumLayers          int    `json:"num_layers" yaml:"num_layers" toml:"num_layers"`
	// FreeMemory is the byte budget handed to the pool sizer.
	FreeMemory uint64 `json:"free_memory" yaml:"free_memory" toml:"free_memory"`
	// VirtBuffSize is the length of every per-layer K and V virtual range.
	VirtBuffSize  uint64   `json:"virt_buff_size" yaml:"virt_buff_size" toml:"virt_buff_size"`
	MaxBatch      int      `json:"max_batch" yaml:"max_batch" toml:"max_batch"`
	BytesPerToken uint64   `json:"bytes_per_token" yaml:"bytes_per_token" toml:"bytes_per_token"`
	LogLevel      string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogJSON       bool     `json:"log_json" yaml:"log_json" toml:"log_json"`
	CORSOrigins   []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	if c.NumLayers == 0 {
		c.NumLayers = DefaultNumLayers
	}
	if c.VirtBuffSize == 0 {
		c.VirtBuffSize = DefaultVirtBuffSize
	}
	if c.FreeMemory == 0 {
		// Enough to fill every layer range once.
		c.FreeMemory = 2 * uint64(c.NumLayers) * c.VirtBuffSize
	}
	if c.MaxBatch == 0 {
		c.MaxBatch = DefaultMaxBatch
	}
	if c.BytesPerToken == 0 {
		c.BytesPerToken = DefaultBytesPerToken
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// Validate rejects combinations the paging core cannot serve.
func (c Config) Validate() error {
	if c.PageSize == 0 || c.PageSize&(c.PageSize-1) != 0 {
		return fmt.Errorf("page_size must be a power of two, got %d", c.PageSize)
	}
	if c.NumLayers <= 0 {
		return fmt.Errorf("num_layers must be positive, got %d", c.NumLayers)
	}
	if c.VirtBuffSize == 0 || c.VirtBuffSize%c.PageSize != 0 {
		return fmt.Errorf("virt_buff_size %d is not a multiple of page_size %d", c.VirtBuffSize, c.PageSize)
	}
	if c.MaxBatch <= 0 || c.VirtBuffSize/uint64(c.MaxBatch) < c.PageSize {
		return fmt.Errorf("max_batch %d leaves less than one page per slot", c.MaxBatch)
	}
	if c.Device < 0 {
		return fmt.Errorf("device must be non-negative, got %d", c.Device)
	}
	return nil
}
