package cache

import (
	"slices"
	"strings"
	"sync"

	"github.com/agentuity/go-cache/logger"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// Manager resolves driver names to driver instances. It knows the built-in
// "memory" and "redis" drivers and any driver added with Extend. Create one
// per process and pass it to whatever needs a driver.
type Manager struct {
	cfg      Config
	mutex    sync.RWMutex
	builtins map[string]Factory
	drivers  map[string]Factory
	redis    redis.UniversalClient
	opts     []Option
	logger   logger.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithRedisClient sets the client used by the built-in redis driver. Without
// it, the driver dials Config.Redis.URL and owns that client.
func WithRedisClient(client redis.UniversalClient) ManagerOption {
	return func(m *Manager) { m.redis = client }
}

// WithDriverOptions sets options passed to the built-in drivers.
func WithDriverOptions(opts ...Option) ManagerOption {
	return func(m *Manager) { m.opts = append(m.opts, opts...) }
}

// WithManagerLogger sets the logger used by the manager and, unless
// overridden by WithDriverOptions, the built-in drivers.
func WithManagerLogger(log logger.Logger) ManagerOption {
	return func(m *Manager) {
		if log != nil {
			m.logger = log
		}
	}
}

// NewManager returns a Manager building drivers from cfg.
func NewManager(cfg Config, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:     cfg,
		drivers: make(map[string]Factory),
		logger:  logger.NewConsoleLogger(logger.LevelNone),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.builtins = map[string]Factory{
		"memory": m.newInMemory,
		"redis":  m.newRedis,
	}
	return m
}

// Config returns the configuration drivers are built from.
func (m *Manager) Config() Config {
	return m.cfg
}

// Extend registers factory under name. A later registration for the same
// name replaces the earlier one, and registrations take precedence over the
// built-in drivers.
func (m *Manager) Extend(name string, factory Factory) {
	m.mutex.Lock()
	m.drivers[name] = factory
	m.mutex.Unlock()
	m.logger.Debug("registered cache driver %s", name)
}

// Names returns every driver name the manager can resolve, sorted.
func (m *Manager) Names() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	names := make([]string, 0, len(m.builtins))
	for name := range m.builtins {
		names = append(names, name)
	}
	for name := range m.drivers {
		if _, ok := m.builtins[name]; !ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// MakeDriverInstance constructs a ready to use driver registered as name.
func (m *Manager) MakeDriverInstance(name string) (Driver, error) {
	m.mutex.RLock()
	factory, ok := m.drivers[name]
	if !ok {
		factory, ok = m.builtins[name]
	}
	m.mutex.RUnlock()
	if !ok {
		return nil, errors.WithHintf(&DriverError{Name: name}, "available drivers: %s", strings.Join(m.Names(), ", "))
	}
	d, err := factory(m.cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "cache: failed to create %s driver", name)
	}
	m.logger.Debug("created cache driver %s", name)
	return d, nil
}

// Driver constructs the driver selected by Config.Driver.
func (m *Manager) Driver() (Driver, error) {
	return m.MakeDriverInstance(m.cfg.Driver)
}

func (m *Manager) driverOptions() []Option {
	return append([]Option{WithLogger(m.logger)}, m.opts...)
}

func (m *Manager) newInMemory(cfg Config) (Driver, error) {
	return NewInMemory(cfg, m.driverOptions()...), nil
}

func (m *Manager) newRedis(cfg Config) (Driver, error) {
	if m.redis != nil {
		return newRedisDriver(cfg, m.redis, false, m.driverOptions()), nil
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("cache: redis driver requires a client or redis.url")
	}
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, errors.Wrap(err, "cache: invalid redis.url")
	}
	return newRedisDriver(cfg, redis.NewClient(opts), true, m.driverOptions()), nil
}
