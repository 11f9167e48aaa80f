package config

import (
	_ "embed"
	"os"
	"path/filepath"

	"github.com/agentuity/go-cache/cache"
	"github.com/agentuity/go-cache/env"
	"github.com/agentuity/go-cache/logger"
	"github.com/agentuity/go-cache/sys"
	"github.com/cockroachdb/errors"
	yc "github.com/zijiren233/yaml-comment"
	"gopkg.in/yaml.v3"
)

// FileName is the name of the cache configuration file.
const FileName = "cache.yaml"

// DefaultDriver is used when the configuration does not name a driver.
const DefaultDriver = "memory"

var ErrConfigNotFound = errors.New("cache config not found")

//go:embed cache.yaml
var defaultConfig []byte

// Environment variables overriding the file values.
const (
	DriverEnv   = "CACHE_DRIVER"
	PrefixEnv   = "CACHE_PREFIX"
	EnabledEnv  = "CACHE_ENABLED"
	RedisURLEnv = "CACHE_REDIS_URL"
)

// Filename returns the configuration filename in dir.
func Filename(dir string) string {
	return filepath.Join(dir, FileName)
}

// Default returns the configuration installed by Install.
func Default() cache.Config {
	cfg, err := Parse(defaultConfig)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Parse decodes a YAML configuration.
func Parse(buf []byte) (cache.Config, error) {
	cfg := cache.Config{Driver: DefaultDriver}
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return cache.Config{}, errors.Wrap(err, "failed to decode YAML cache config")
	}
	if cfg.Driver == "" {
		cfg.Driver = DefaultDriver
	}
	return cfg, nil
}

// Load reads the configuration from fn. It returns ErrConfigNotFound if
// the file does not exist.
func Load(fn string) (cache.Config, error) {
	if !sys.Exists(fn) {
		return cache.Config{}, errors.Wrapf(ErrConfigNotFound, "%s", fn)
	}
	buf, err := os.ReadFile(fn)
	if err != nil {
		return cache.Config{}, errors.Wrapf(err, "failed to read cache config: %s", fn)
	}
	cfg, err := Parse(buf)
	if err != nil {
		return cache.Config{}, errors.Wrapf(err, "%s", fn)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with the CACHE_* environment variables that are set.
func ApplyEnv(cfg *cache.Config) {
	cfg.Driver = env.String(DriverEnv, cfg.Driver)
	if prefix, ok := os.LookupEnv(PrefixEnv); ok {
		cfg.Prefix = prefix
	}
	cfg.Enabled = env.Bool(EnabledEnv, cfg.Enabled)
	cfg.Redis.URL = env.String(RedisURLEnv, cfg.Redis.URL)
}

// Install writes the default configuration into dir. It does nothing and
// returns false if the file already exists or cannot be written.
func Install(dir string, log logger.Logger) bool {
	fn := Filename(dir)
	ok, err := sys.WriteFileIfMissing(fn, defaultConfig, 0644)
	if err != nil || !ok {
		return false
	}
	log.Info("create %s", fn)
	return true
}

// Save writes cfg to fn, annotated with a comment per field.
func Save(fn string, cfg cache.Config) error {
	if err := os.MkdirAll(filepath.Dir(fn), 0755); err != nil {
		return err
	}
	of, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer of.Close()
	of.WriteString("# ------------------------------------------------\n")
	of.WriteString("# This file is generated by cachectl\n")
	of.WriteString("# ------------------------------------------------\n")
	of.WriteString("\n")
	enc := yaml.NewEncoder(of)
	enc.SetIndent(2)
	yenc := yc.NewEncoder(enc)
	if err := yenc.Encode(cfg); err != nil {
		return errors.Wrapf(err, "failed to encode cache config: %s", fn)
	}
	return enc.Close()
}
