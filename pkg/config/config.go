// Package config loads fusegraph configuration from TOML files.
//
// A config file tunes the partitioner, overrides operator patterns, and
// configures the cache, server, and run-store backends:
//
//	[partitioner]
//	opt_level = 2
//	max_fuse_depth = 100
//
//	[patterns]
//	my_custom_op = "elemwise"
//	black_box    = "opaque"
//
//	[cache]
//	backend = "file"          # file | redis | none
//	dir     = "~/.cache/fusegraph"
//
//	[server]
//	addr = ":8080"
//
//	[store]
//	backend = "memory"        # memory | mongo
//	uri     = "mongodb://localhost:27017"
//
// All sections are optional; missing values fall back to [Default].
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/fusegraph/pkg/errors"
	"github.com/matzehuels/fusegraph/pkg/ir"
)

// Config is the root configuration.
type Config struct {
	Partitioner PartitionerConfig `toml:"partitioner"`
	Patterns    map[string]string `toml:"patterns"`
	Cache       CacheConfig       `toml:"cache"`
	Server      ServerConfig      `toml:"server"`
	Store       StoreConfig       `toml:"store"`
}

// PartitionerConfig tunes the fusion partitioner.
type PartitionerConfig struct {
	// OptLevel gates the fusion phases (0–2).
	OptLevel int `toml:"opt_level"`

	// MaxFuseDepth bounds the number of ops in one fused kernel.
	MaxFuseDepth int `toml:"max_fuse_depth"`
}

// CacheConfig selects and configures the artifact cache.
type CacheConfig struct {
	// Backend is "file", "redis", or "none".
	Backend string `toml:"backend"`

	// Dir is the cache directory for the file backend.
	Dir string `toml:"dir"`

	// RedisAddr is the host:port of the Redis server for the redis backend.
	RedisAddr string `toml:"redis_addr"`

	// TTLHours is decoded from the config file but not read by the
	// pipeline, which stores entries for pipeline.DefaultCacheTTL.
	TTLHours int `toml:"ttl_hours"`
}

// ServerConfig configures the debug HTTP service.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `toml:"addr"`
}

// StoreConfig selects the run store backend for the service.
type StoreConfig struct {
	// Backend is "memory" or "mongo".
	Backend string `toml:"backend"`

	// URI is the MongoDB connection string for the mongo backend.
	URI string `toml:"uri"`

	// Database and Collection name where run reports are stored.
	Database   string `toml:"database"`
	Collection string `toml:"collection"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Partitioner: PartitionerConfig{
			OptLevel:     2,
			MaxFuseDepth: 100,
		},
		Cache: CacheConfig{
			Backend: "file",
			Dir:     defaultCacheDir(),
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Store: StoreConfig{
			Backend:    "memory",
			Database:   "fusegraph",
			Collection: "runs",
		},
	}
}

// Load reads a TOML config file and merges it over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "config %s", path)
		}
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse %s", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "unknown config key %q in %s", undecoded[0].String(), path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and enum fields.
func (c *Config) Validate() error {
	if c.Partitioner.OptLevel < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "opt_level must be >= 0")
	}
	if c.Partitioner.MaxFuseDepth < 1 {
		return errors.New(errors.ErrCodeInvalidConfig, "max_fuse_depth must be >= 1")
	}
	switch c.Cache.Backend {
	case "", "file", "redis", "none":
	default:
		return errors.New(errors.ErrCodeInvalidConfig, "unknown cache backend %q", c.Cache.Backend)
	}
	switch c.Store.Backend {
	case "", "memory", "mongo":
	default:
		return errors.New(errors.ErrCodeInvalidConfig, "unknown store backend %q", c.Store.Backend)
	}
	for op, pattern := range c.Patterns {
		if err := errors.ValidateOpName(op); err != nil {
			return err
		}
		if _, err := ir.ParsePatternKind(pattern); err != nil {
			return errors.New(errors.ErrCodeInvalidPattern, "pattern for %q: %v", op, err)
		}
	}
	return nil
}

// ApplyPatterns registers the config's pattern overrides on reg. Validate
// must have accepted the config first.
func (c *Config) ApplyPatterns(reg *ir.Registry) {
	for op, pattern := range c.Patterns {
		kind, err := ir.ParsePatternKind(pattern)
		if err != nil {
			panic(fmt.Sprintf("config: unvalidated pattern %q", pattern))
		}
		reg.Register(op, kind)
	}
}

// defaultCacheDir returns the per-user cache directory.
func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "fusegraph")
	}
	return ".fusegraph-cache"
}
