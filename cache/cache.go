package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/agentuity/go-cache/logger"
	"github.com/cockroachdb/errors"
)

// Driver is the contract every storage backend implements.
type Driver interface {
	// Remember returns the value stored under key, or resolves producer,
	// stores the result for expires and returns it.
	Remember(ctx context.Context, key string, expires time.Duration, producer Producer) (any, error)
	// Forever is Remember without expiration.
	Forever(ctx context.Context, key string, producer Producer) (any, error)
	// Forget removes key. Removing an absent key is not an error.
	Forget(ctx context.Context, key string) error
}

// Factory constructs a ready to use Driver from the cache configuration.
type Factory func(cfg Config) (Driver, error)

// DefaultQueryTimeout is the per-operation timeout for cache backends that
// perform I/O (SQLite, Redis). Prevents indefinite hangs on slow or
// unresponsive storage.
const DefaultQueryTimeout = 5 * time.Second

// DefaultExpiryCheck is how often the SQLite backend sweeps expired rows.
const DefaultExpiryCheck = time.Minute

// options holds the resolved configuration for a driver implementation.
type options struct {
	queryTimeout time.Duration
	expiryCheck  time.Duration
	store        *MemoryStore
	logger       logger.Logger
}

// Option configures a Driver implementation.
type Option func(*options)

func defaultOptions() options {
	return options{
		queryTimeout: DefaultQueryTimeout,
		expiryCheck:  DefaultExpiryCheck,
		logger:       logger.NewConsoleLogger(logger.LevelNone),
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithQueryTimeout sets the per-operation timeout for I/O-backed drivers
// (SQLite, Redis). Defaults to DefaultQueryTimeout (5 seconds).
func WithQueryTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.queryTimeout = d
		}
	}
}

// WithExpiryCheck sets the interval for background expired row cleanup.
// Applies to the SQLite backend. Defaults to 1 minute.
func WithExpiryCheck(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.expiryCheck = d
		}
	}
}

// WithMemoryStore makes the memory driver use store instead of a private one.
// Use it to share one table between several drivers.
func WithMemoryStore(store *MemoryStore) Option {
	return func(o *options) { o.store = store }
}

// WithLogger sets the logger drivers use for hit/miss tracing.
func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.logger = log
		}
	}
}

// RememberAs is a typed version of Driver.Remember.
func RememberAs[T any](ctx context.Context, d Driver, key string, expires time.Duration, producer Producer) (T, error) {
	val, err := d.Remember(ctx, key, expires, producer)
	if err != nil {
		var zero T
		return zero, err
	}
	return convert[T](val)
}

// ForeverAs is a typed version of Driver.Forever.
func ForeverAs[T any](ctx context.Context, d Driver, key string, producer Producer) (T, error) {
	val, err := d.Forever(ctx, key, producer)
	if err != nil {
		var zero T
		return zero, err
	}
	return convert[T](val)
}

// convert turns a value returned by a driver into T.
// Values held in memory are asserted directly. Values decoded by a
// serializing backend (JSON objects, msgpack maps) are re-decoded into T.
func convert[T any](val any) (T, error) {
	var zero T
	if val == nil {
		return zero, nil
	}
	if typed, ok := val.(T); ok {
		return typed, nil
	}
	buf, err := json.Marshal(val)
	if err != nil {
		return zero, errors.Wrapf(err, "cache: cannot convert value of type %T to %T", val, zero)
	}
	var result T
	if err := json.Unmarshal(buf, &result); err != nil {
		return zero, errors.Wrapf(err, "cache: cannot convert value of type %T to %T", val, zero)
	}
	return result, nil
}
