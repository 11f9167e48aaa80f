package cache

import (
	"context"
	"io"
	"time"

	"github.com/agentuity/go-cache/env"
	"github.com/agentuity/go-cache/logger"
	"github.com/agentuity/go-cache/resilience"
	"github.com/agentuity/go-cache/sys"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const tracerName = "@agentuity/go-cache"

// producerError marks an error returned by the caller's producer so the
// facade can tell it apart from a driver failure.
type producerError struct {
	err error
}

func (e *producerError) Error() string {
	return e.err.Error()
}

func (e *producerError) Unwrap() error {
	return e.err
}

// tagErrors wraps p so that its errors come back as *producerError.
func tagErrors(p Producer) Producer {
	if !p.IsDeferred() {
		return p
	}
	return Deferred(func(ctx context.Context) (any, error) {
		val, err := p.Resolve(ctx)
		if err != nil {
			return nil, &producerError{err}
		}
		return val, nil
	})
}

// recoverable reports whether the facade answers err by computing the value
// directly. Invalid arguments and errors of the caller's producer are not.
func recoverable(err error) bool {
	var pe *producerError
	return !errors.As(err, &pe) && !errors.Is(err, ErrInvalidArgument)
}

// Cache wraps one driver for application code. On top of the driver it adds
// the CACHE_QUERIES toggle and keeps serving values while the driver fails:
// any driver error is logged and the producer is resolved directly.
// Invalid arguments and errors of the producer itself are returned.
type Cache struct {
	driver  Driver
	name    string
	enabled func() bool
	logger  logger.Logger
	breaker *resilience.CircuitBreaker
	tracer  trace.Tracer
	group   singleflight.Group
}

var _ Driver = (*Cache)(nil)

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithEnabled replaces the CACHE_QUERIES lookup. fn is called on every operation.
func WithEnabled(fn func() bool) CacheOption {
	return func(c *Cache) {
		if fn != nil {
			c.enabled = fn
		}
	}
}

// WithCacheLogger sets the logger receiving the degrade warnings.
func WithCacheLogger(log logger.Logger) CacheOption {
	return func(c *Cache) {
		if log != nil {
			c.logger = log
		}
	}
}

// WithCircuitBreaker guards the driver with a circuit breaker. While it is
// open the driver is skipped and values are computed directly. Unless
// cfg.IsFailure is set only backend failures trip it.
func WithCircuitBreaker(cfg resilience.CircuitBreakerConfig) CacheOption {
	return func(c *Cache) {
		if cfg.IsFailure == nil {
			cfg.IsFailure = func(err error) bool {
				return recoverable(err) && errors.Is(err, ErrBackendUnavailable)
			}
		}
		c.breaker = resilience.NewCircuitBreaker(cfg)
	}
}

// WithTracerProvider sets the provider for the operation spans. The global
// provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) CacheOption {
	return func(c *Cache) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// New returns a Cache over the driver selected by the manager's configuration.
func New(m *Manager, opts ...CacheOption) (*Cache, error) {
	d, err := m.Driver()
	if err != nil {
		return nil, err
	}
	return NewWithDriver(m.Config().Driver, d, opts...), nil
}

// NewWithDriver returns a Cache over d. name is only used for logs and spans.
func NewWithDriver(name string, d Driver, opts ...CacheOption) *Cache {
	c := &Cache{
		driver:  d,
		name:    name,
		enabled: env.CacheQueriesEnabled,
		logger:  logger.NewConsoleLogger(logger.LevelNone),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithPrefix("[cache]")
	return c
}

// Driver returns the wrapped driver.
func (c *Cache) Driver() Driver {
	return c.driver
}

// Enabled reports whether the facade currently consults the driver.
func (c *Cache) Enabled() bool {
	return c.enabled()
}

// Remember returns the value cached under key, or resolves producer and
// caches the result for expires.
func (c *Cache) Remember(ctx context.Context, key string, expires time.Duration, producer Producer) (any, error) {
	ctx, span := c.start(ctx, "cache.remember", key)
	defer span.End()
	if !c.enabled() {
		return c.direct(ctx, span, producer)
	}
	if err := validateRemember(key, expires, producer); err != nil {
		return nil, fail(span, err)
	}
	producer = producer.memoize()
	tagged := tagErrors(producer)
	return c.do(ctx, span, "remember", key, producer, func(ctx context.Context) (any, error) {
		return c.driver.Remember(ctx, key, expires, tagged)
	})
}

// Forever returns the value cached under key, or resolves producer and
// caches the result without expiration.
func (c *Cache) Forever(ctx context.Context, key string, producer Producer) (any, error) {
	ctx, span := c.start(ctx, "cache.forever", key)
	defer span.End()
	if !c.enabled() {
		return c.direct(ctx, span, producer)
	}
	if err := validateForever(key, producer); err != nil {
		return nil, fail(span, err)
	}
	producer = producer.memoize()
	tagged := tagErrors(producer)
	return c.do(ctx, span, "forever", key, producer, func(ctx context.Context) (any, error) {
		return c.driver.Forever(ctx, key, tagged)
	})
}

// Forget removes key. Driver failures are logged and not returned.
func (c *Cache) Forget(ctx context.Context, key string) error {
	ctx, span := c.start(ctx, "cache.forget", key)
	defer span.End()
	if err := validateKey(key); err != nil {
		return fail(span, err)
	}
	flightCtx := context.WithoutCancel(ctx)
	_, err, _ := c.group.Do("forget\x00"+key, func() (any, error) {
		if c.breaker == nil {
			return nil, c.driver.Forget(flightCtx, key)
		}
		return nil, c.breaker.Execute(flightCtx, func(ctx context.Context) error {
			return c.driver.Forget(ctx, key)
		})
	})
	if err != nil && recoverable(err) {
		c.logger.Warn("cache backend is down, could not forget %s: %s", key, err)
		span.AddEvent("cache.degraded")
		return nil
	}
	if err != nil {
		return fail(span, err)
	}
	return nil
}

// Close closes the wrapped driver if it holds resources.
func (c *Cache) Close() error {
	if closer, ok := c.driver.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

type outcome struct {
	val      any
	degraded bool
}

// do runs fn once for every concurrent caller asking for the same op and key.
// A driver failure is answered by the producer. The shared call does not
// inherit the first caller's cancellation; drivers bound it with their own
// query timeout.
func (c *Cache) do(ctx context.Context, span trace.Span, op string, key string, producer Producer, fn func(ctx context.Context) (any, error)) (any, error) {
	flightCtx := context.WithoutCancel(ctx)
	res, err, shared := c.group.Do(op+"\x00"+key, func() (any, error) {
		var degraded bool
		val, err := sys.From(c.call(flightCtx, fn)).Recover(func(err error) (any, error) {
			var pe *producerError
			if errors.As(err, &pe) {
				return nil, pe.err
			}
			if !recoverable(err) {
				return nil, err
			}
			c.logger.Warn("cache backend is down, computing %s directly: %s", key, err)
			degraded = true
			return producer.Resolve(flightCtx)
		}).Get()
		if err != nil {
			return nil, err
		}
		return outcome{val: val, degraded: degraded}, nil
	})
	span.SetAttributes(attribute.Bool("cache.shared", shared))
	if err != nil {
		return nil, fail(span, err)
	}
	out := res.(outcome)
	if out.degraded {
		span.AddEvent("cache.degraded")
	}
	return out.val, nil
}

func (c *Cache) call(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	if c.breaker == nil {
		return fn(ctx)
	}
	return resilience.Call(ctx, c.breaker, fn)
}

func (c *Cache) direct(ctx context.Context, span trace.Span, producer Producer) (any, error) {
	span.SetAttributes(attribute.Bool("cache.enabled", false))
	val, err := producer.Resolve(ctx)
	if err != nil {
		return nil, fail(span, err)
	}
	return val, nil
}

func (c *Cache) start(ctx context.Context, name string, key string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("cache.key", key),
		attribute.String("cache.driver", c.name),
	))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
