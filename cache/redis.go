package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

type redisBackend struct {
	client       redis.UniversalClient
	queryTimeout time.Duration
}

func (b *redisBackend) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, b.queryTimeout)
}

// load collapses the EXISTS and GET round-trips into one GET; a nil reply
// is a miss.
func (b *redisBackend) load(ctx context.Context, key string) (any, bool, error) {
	qctx, cancel := b.queryCtx(ctx)
	defer cancel()
	data, err := b.client.Get(qctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable("redis", "get", key, err)
	}
	var val any
	if err := json.Unmarshal(data, &val); err != nil {
		// written by something else or corrupted; the backend cannot serve it
		return nil, false, unavailable("redis", "decode", key, err)
	}
	return val, true, nil
}

func (b *redisBackend) save(ctx context.Context, key string, val any, expires time.Duration) error {
	data, err := json.Marshal(val)
	if err != nil {
		return errors.Wrapf(err, "cache: failed to encode value of %q", key)
	}
	qctx, cancel := b.queryCtx(ctx)
	defer cancel()
	// go-redis sends PX for sub-second or fractional expirations
	if err := b.client.Set(qctx, key, data, expires).Err(); err != nil {
		return unavailable("redis", "set", key, err)
	}
	return nil
}

func (b *redisBackend) remove(ctx context.Context, key string) error {
	qctx, cancel := b.queryCtx(ctx)
	defer cancel()
	if err := b.client.Del(qctx, key).Err(); err != nil {
		return unavailable("redis", "del", key, err)
	}
	return nil
}

type redisDriver struct {
	readThrough
	client redis.UniversalClient
	owned  bool
}

var _ Driver = (*redisDriver)(nil)

// NewRedis returns a new Driver backed by Redis. Values are stored as JSON
// text, so anything json.Marshal accepts can be cached and comes back in
// its generic JSON shape (map[string]any, []any, float64, string, bool, nil).
// Expirations keep millisecond precision. A stored value that is not valid
// JSON is reported as a *BackendError.
// The caller owns the client lifecycle; Close is a no-op on the client.
func NewRedis(cfg Config, client redis.UniversalClient, opts ...Option) Driver {
	return newRedisDriver(cfg, client, false, opts)
}

func newRedisDriver(cfg Config, client redis.UniversalClient, owned bool, opts []Option) *redisDriver {
	o := applyOptions(append([]Option{WithQueryTimeout(cfg.Redis.QueryTimeout.Duration())}, opts...))
	b := &redisBackend{client: client, queryTimeout: o.queryTimeout}
	return &redisDriver{
		readThrough: newReadThrough("redis", cfg, b, o.logger),
		client:      client,
		owned:       owned,
	}
}

// Close closes the client if the driver created it from a URL.
func (d *redisDriver) Close() error {
	if d.owned {
		return d.client.Close()
	}
	return nil
}
