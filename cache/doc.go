// Package cache provides a read-through cache with swappable storage
// drivers.
//
// # Drivers
//
// Every backend implements [Driver]. [Driver.Remember] returns the value
// stored under a key or, on a miss, resolves a [Producer], stores the result
// for the given expiration and returns it. [Driver.Forever] does the same
// without expiration and [Driver.Forget] removes a key.
//
// A [Producer] is either a literal built with [Value] or a computation built
// with [Deferred] / [DeferredOf]. A deferred producer only runs on a miss:
//
//	val, err := d.Remember(ctx, "user:1", time.Minute, cache.Deferred(func(ctx context.Context) (any, error) {
//	    return queries.GetUser(ctx, 1)
//	}))
//
// Keys are namespaced by concatenating [Config.Prefix] and the key. When
// [Config.Enabled] is false every driver resolves the producer directly and
// never touches its backend.
//
// The built-in drivers are:
//
//   - [NewInMemory]: values are kept as-is in a [MemoryStore]. Each value
//     with an expiration has its deletion scheduled when it is stored.
//     Stores can be shared between drivers with [WithMemoryStore].
//
//   - [NewRedis]: values are stored as JSON text with SET, keeping millisecond
//     expirations, and come back in their generic JSON shape. Every round trip
//     is bounded by a per-operation timeout ([DefaultQueryTimeout]).
//
//   - [NewSQLite]: values are encoded with msgpack into a SQLite table using
//     [modernc.org/sqlite]. Expired rows are removed on read and by a
//     background sweep.
//
//   - [NewComposite]: chains drivers, first tier first. A value found in a
//     later tier is written back to the earlier ones.
//
// [RememberAs] and [ForeverAs] convert the returned value to a concrete type,
// re-decoding values that went through a serializing backend.
//
// # Registry
//
// A [Manager] resolves driver names. "memory" and "redis" are built in and
// [Manager.Extend] adds more:
//
//	m := cache.NewManager(cfg, cache.WithRedisClient(client))
//	m.Extend("sqlite", cache.SQLiteFactory())
//	d, err := m.Driver()
//
// # Errors
//
// Invalid arguments return an [*ArgumentError] matching [ErrInvalidArgument]
// before any backend access. Unknown driver names return a [*DriverError]
// matching [ErrUnknownDriver]. Failures talking to a backend return a
// [*BackendError] matching [ErrBackendUnavailable]; drivers used directly
// propagate them. [Code] extracts the error code.
//
// # Facade
//
// [Cache] wraps one driver for application code. It is gated by the
// CACHE_QUERIES environment variable and, when a backend failure occurs,
// logs a warning and resolves the producer directly so a cache outage never
// fails the request. It can also guard the driver with a circuit breaker and
// records an OpenTelemetry span per operation.
package cache
