package cache

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

// Config is the static cache configuration. It is read once when a driver is
// constructed and treated as immutable afterwards.
type Config struct {
	// Enabled turns storage on for every driver built from this config.
	// When false, drivers resolve producers directly.
	Enabled bool `json:"enabled" yaml:"enabled" hc:"Whether drivers store values. When false every lookup computes the value"`
	// Prefix is prepended to every key, without a separator.
	Prefix string `json:"prefix" yaml:"prefix" hc:"Prepended to every key"`
	// Driver selects the active backend by name.
	Driver string `json:"driver" yaml:"driver" hc:"The active driver: memory, redis or any registered name"`

	Redis     RedisConfig     `json:"redis" yaml:"redis,omitempty" hc:"Settings for the redis driver"`
	SQLite    SQLiteConfig    `json:"sqlite" yaml:"sqlite,omitempty" hc:"Settings for the sqlite driver"`
	Composite CompositeConfig `json:"composite" yaml:"composite,omitempty" hc:"Settings for the composite driver"`
}

// RedisConfig configures the built-in redis driver.
type RedisConfig struct {
	URL          string   `json:"url" yaml:"url,omitempty" hc:"Connection URL, used when no client is injected"`
	QueryTimeout Duration `json:"query_timeout" yaml:"query_timeout,omitempty" hc:"Timeout of a single round trip"`
}

// SQLiteConfig configures the sqlite driver.
type SQLiteConfig struct {
	Path        string   `json:"path" yaml:"path,omitempty" hc:"Database file, :memory: when empty"`
	ExpiryCheck Duration `json:"expiry_check" yaml:"expiry_check,omitempty" hc:"How often expired rows are swept"`
}

// CompositeConfig lists the drivers chained by the composite driver, first tier first.
type CompositeConfig struct {
	Drivers []string `json:"drivers" yaml:"drivers,omitempty" hc:"Driver names, first tier first"`
}

// Duration is a time.Duration that decodes from strings such as "90s" or "1d".
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return str2duration.String(time.Duration(d))
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	val, err := str2duration.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", s)
	}
	if val < 0 {
		return errors.Newf("duration must be >= 0, got %q", s)
	}
	*d = Duration(val)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}
