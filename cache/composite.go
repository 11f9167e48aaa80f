package cache

import (
	"context"
	"io"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
)

type compositeDriver struct {
	cfg     Config
	drivers []Driver
}

var _ Driver = (*compositeDriver)(nil)

// NewComposite returns a Driver that chains multiple drivers together.
// Remember and Forever ask the first driver, whose producer on a miss asks
// the next one, so a value found in a later tier is written back to every
// earlier tier. Only the last tier invokes the caller's producer.
// Forget removes the key from every tier. Arguments are checked against cfg
// before any tier is consulted.
// At least one driver must be provided; panics if empty.
func NewComposite(cfg Config, drivers ...Driver) Driver {
	if len(drivers) == 0 {
		panic("cache: NewComposite requires at least one driver")
	}
	return &compositeDriver{cfg: cfg, drivers: drivers}
}

func (c *compositeDriver) Remember(ctx context.Context, key string, expires time.Duration, producer Producer) (any, error) {
	if c.cfg.Enabled {
		if err := validateRemember(key, expires, producer); err != nil {
			return nil, err
		}
	}
	return c.remember(ctx, 0, key, expires, producer)
}

func (c *compositeDriver) remember(ctx context.Context, tier int, key string, expires time.Duration, producer Producer) (any, error) {
	if tier == len(c.drivers)-1 {
		return c.drivers[tier].Remember(ctx, key, expires, producer)
	}
	next := Deferred(func(ctx context.Context) (any, error) {
		return c.remember(ctx, tier+1, key, expires, producer)
	})
	return c.drivers[tier].Remember(ctx, key, expires, next)
}

func (c *compositeDriver) Forever(ctx context.Context, key string, producer Producer) (any, error) {
	if c.cfg.Enabled {
		if err := validateForever(key, producer); err != nil {
			return nil, err
		}
	}
	return c.forever(ctx, 0, key, producer)
}

func (c *compositeDriver) forever(ctx context.Context, tier int, key string, producer Producer) (any, error) {
	if tier == len(c.drivers)-1 {
		return c.drivers[tier].Forever(ctx, key, producer)
	}
	next := Deferred(func(ctx context.Context) (any, error) {
		return c.forever(ctx, tier+1, key, producer)
	})
	return c.drivers[tier].Forever(ctx, key, next)
}

func (c *compositeDriver) Forget(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	var firstErr error
	for _, driver := range c.drivers {
		if err := driver.Forget(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes every tier that holds resources.
func (c *compositeDriver) Close() error {
	var firstErr error
	for _, driver := range c.drivers {
		if closer, ok := driver.(io.Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// CompositeFactory returns a Factory that builds a composite driver from the
// names listed in Config.Composite.Drivers, each resolved through m.
func CompositeFactory(m *Manager) Factory {
	return func(cfg Config) (Driver, error) {
		names := cfg.Composite.Drivers
		if len(names) == 0 {
			return nil, errors.New("cache: composite driver requires at least one driver name")
		}
		if slices.Contains(names, cfg.Driver) {
			return nil, errors.Newf("cache: composite driver cannot include itself (%s)", cfg.Driver)
		}
		drivers := make([]Driver, 0, len(names))
		for _, name := range names {
			d, err := m.MakeDriverInstance(name)
			if err != nil {
				for _, made := range drivers {
					if closer, ok := made.(io.Closer); ok {
						closer.Close()
					}
				}
				return nil, errors.Wrapf(err, "cache: composite tier %s", name)
			}
			drivers = append(drivers, d)
		}
		return NewComposite(cfg, drivers...), nil
	}
}
