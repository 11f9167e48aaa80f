package cache

import (
	"bytes"
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"
)

type sqliteBackend struct {
	db           *sql.DB
	queryTimeout time.Duration
}

func (b *sqliteBackend) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, b.queryTimeout)
}

func (b *sqliteBackend) load(ctx context.Context, key string) (any, bool, error) {
	qctx, cancel := b.queryCtx(ctx)
	defer cancel()
	var data []byte
	var expiresAt int64
	err := b.db.QueryRowContext(qctx,
		`SELECT value, expires_at FROM cache WHERE key = ?`, key,
	).Scan(&data, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable("sqlite", "get", key, err)
	}
	if expiresAt > 0 && expiresAt <= time.Now().UnixNano() {
		// Lazily delete expired entry.
		_, _ = b.db.ExecContext(qctx, `DELETE FROM cache WHERE key = ? AND expires_at = ?`, key, expiresAt)
		return nil, false, nil
	}
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	var val any
	if err := dec.Decode(&val); err != nil {
		return nil, false, unavailable("sqlite", "decode", key, err)
	}
	return val, true, nil
}

func (b *sqliteBackend) save(ctx context.Context, key string, val any, expires time.Duration) error {
	data, err := msgpack.Marshal(val)
	if err != nil {
		return errors.Wrapf(err, "cache: failed to encode value of %q", key)
	}
	var expiresAt int64
	if expires > 0 {
		expiresAt = time.Now().Add(expires).UnixNano()
	}
	qctx, cancel := b.queryCtx(ctx)
	defer cancel()
	_, err = b.db.ExecContext(qctx,
		`INSERT INTO cache (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, data, expiresAt,
	)
	if err != nil {
		return unavailable("sqlite", "set", key, err)
	}
	return nil
}

func (b *sqliteBackend) remove(ctx context.Context, key string) error {
	qctx, cancel := b.queryCtx(ctx)
	defer cancel()
	if _, err := b.db.ExecContext(qctx, `DELETE FROM cache WHERE key = ?`, key); err != nil {
		return unavailable("sqlite", "del", key, err)
	}
	return nil
}

type sqliteDriver struct {
	readThrough
	db          *sql.DB
	ctx         context.Context
	cancel      context.CancelFunc
	waitGroup   sync.WaitGroup
	once        sync.Once
	expiryCheck time.Duration
}

var _ Driver = (*sqliteDriver)(nil)

// NewSQLite returns a new Driver backed by SQLite at cfg.SQLite.Path.
// If the path is empty or ":memory:", an in-memory database is used.
// Values are encoded with msgpack. Expired rows are removed lazily on read
// and by a background sweep every cfg.SQLite.ExpiryCheck.
func NewSQLite(cfg Config, opts ...Option) (Driver, error) {
	o := applyOptions(append([]Option{WithExpiryCheck(cfg.SQLite.ExpiryCheck.Duration())}, opts...))

	dbPath := cfg.SQLite.Path
	if dbPath == "" {
		dbPath = ":memory:"
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrapf(err, "cache: failed to open sqlite database %s", dbPath)
	}
	if dbPath == ":memory:" {
		// every connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS cache (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		expires_at INTEGER NOT NULL DEFAULT 0
	)`); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_cache_expires_at ON cache(expires_at)`); err != nil {
		db.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &sqliteDriver{
		readThrough: newReadThrough("sqlite", cfg, &sqliteBackend{db: db, queryTimeout: o.queryTimeout}, o.logger),
		db:          db,
		ctx:         ctx,
		cancel:      cancel,
		expiryCheck: o.expiryCheck,
	}

	d.waitGroup.Add(1)
	go d.run()

	return d, nil
}

// SQLiteFactory returns a Factory suitable for Manager.Extend.
func SQLiteFactory(opts ...Option) Factory {
	return func(cfg Config) (Driver, error) {
		return NewSQLite(cfg, opts...)
	}
}

// Close stops the background sweep and closes the database.
func (d *sqliteDriver) Close() error {
	var dbErr error
	d.once.Do(func() {
		d.cancel()
		d.waitGroup.Wait()
		dbErr = d.db.Close()
	})
	return dbErr
}

func (d *sqliteDriver) run() {
	defer d.waitGroup.Done()
	ticker := time.NewTicker(d.expiryCheck)
	defer ticker.Stop()
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UnixNano()
			if _, err := d.db.ExecContext(d.ctx, `DELETE FROM cache WHERE expires_at > 0 AND expires_at <= ?`, now); err != nil && d.ctx.Err() == nil {
				d.logger.Warn("failed to sweep expired entries: %s", err)
			}
		}
	}
}
