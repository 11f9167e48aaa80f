package cache

import (
	"context"
	"time"

	"github.com/agentuity/go-cache/logger"
)

// backend is the storage surface behind the built-in drivers. Keys passed
// to it are already namespaced. An expires of zero stores without expiration.
// Implementations classify their own failures (see unavailable).
type backend interface {
	load(ctx context.Context, key string) (any, bool, error)
	save(ctx context.Context, key string, val any, expires time.Duration) error
	remove(ctx context.Context, key string) error
}

// readThrough implements Driver on top of a backend.
type readThrough struct {
	name    string
	cfg     Config
	backend backend
	logger  logger.Logger
}

func newReadThrough(name string, cfg Config, b backend, log logger.Logger) readThrough {
	return readThrough{
		name:    name,
		cfg:     cfg,
		backend: b,
		logger:  log.WithPrefix("[" + name + "]"),
	}
}

func (d *readThrough) Remember(ctx context.Context, key string, expires time.Duration, producer Producer) (any, error) {
	if !d.cfg.Enabled {
		return producer.Resolve(ctx)
	}
	if err := validateRemember(key, expires, producer); err != nil {
		return nil, err
	}
	return d.fetch(ctx, key, expires, producer)
}

func (d *readThrough) Forever(ctx context.Context, key string, producer Producer) (any, error) {
	if !d.cfg.Enabled {
		return producer.Resolve(ctx)
	}
	if err := validateForever(key, producer); err != nil {
		return nil, err
	}
	return d.fetch(ctx, key, 0, producer)
}

func (d *readThrough) Forget(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := d.backend.remove(ctx, d.cfg.Prefix+key); err != nil {
		return err
	}
	d.logger.Trace("forget %s", key)
	return nil
}

func (d *readThrough) fetch(ctx context.Context, key string, expires time.Duration, producer Producer) (any, error) {
	k := d.cfg.Prefix + key
	val, found, err := d.backend.load(ctx, k)
	if err != nil {
		return nil, err
	}
	if found {
		d.logger.Trace("hit %s", key)
		return val, nil
	}
	d.logger.Trace("miss %s", key)
	val, err = producer.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	if err := d.backend.save(ctx, k, val, expires); err != nil {
		return nil, err
	}
	return val, nil
}
