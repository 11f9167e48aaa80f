package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T, cfg Config, opts ...Option) *sqliteDriver {
	t.Helper()
	d, err := NewSQLite(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { d.(*sqliteDriver).Close() })
	return d.(*sqliteDriver)
}

func rowCount(t *testing.T, d *sqliteDriver) int {
	t.Helper()
	var n int
	require.NoError(t, d.db.QueryRow(`SELECT COUNT(*) FROM cache`).Scan(&n))
	return n
}

func TestSQLiteRemember(t *testing.T) {
	ctx := context.Background()
	d := newTestSQLite(t, enabledConfig("app:"))
	var c counter

	val, err := d.Remember(ctx, "key", time.Minute, c.produce("value"))
	require.NoError(t, err)
	assert.Equal(t, "value", val)

	val, err = d.Remember(ctx, "key", time.Minute, c.produce("other"))
	require.NoError(t, err)
	assert.Equal(t, "value", val)
	assert.Equal(t, 1, c.count())

	var key string
	require.NoError(t, d.db.QueryRow(`SELECT key FROM cache`).Scan(&key))
	assert.Equal(t, "app:key", key)
}

func TestSQLiteRememberExpires(t *testing.T) {
	ctx := context.Background()
	d := newTestSQLite(t, enabledConfig(""))
	var c counter

	_, err := d.Remember(ctx, "key", 20*time.Millisecond, c.produce("value"))
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)
	_, err = d.Remember(ctx, "key", time.Minute, c.produce("value"))
	require.NoError(t, err)
	assert.Equal(t, 2, c.count())
}

func TestSQLiteForever(t *testing.T) {
	ctx := context.Background()
	d := newTestSQLite(t, enabledConfig(""))
	var c counter

	_, err := d.Forever(ctx, "key", c.produce("value"))
	require.NoError(t, err)
	var expiresAt int64
	require.NoError(t, d.db.QueryRow(`SELECT expires_at FROM cache WHERE key = ?`, "key").Scan(&expiresAt))
	assert.Equal(t, int64(0), expiresAt)

	_, err = d.Forever(ctx, "key", c.produce("other"))
	require.NoError(t, err)
	assert.Equal(t, 1, c.count())
}

func TestSQLiteForget(t *testing.T) {
	ctx := context.Background()
	d := newTestSQLite(t, enabledConfig(""))
	var c counter

	_, err := d.Forever(ctx, "key", c.produce("value"))
	require.NoError(t, err)
	require.NoError(t, d.Forget(ctx, "key"))
	assert.Equal(t, 0, rowCount(t, d))
	assert.NoError(t, d.Forget(ctx, "missing"))
	assert.Equal(t, CodeInvalidKey, Code(d.Forget(ctx, "")))
}

func TestSQLiteStructuredValue(t *testing.T) {
	ctx := context.Background()
	d := newTestSQLite(t, enabledConfig(""))

	_, err := d.Forever(ctx, "user:1", Value(user{ID: 1, Name: "ada"}))
	require.NoError(t, err)

	u, err := ForeverAs[user](ctx, d, "user:1", Value(user{}))
	require.NoError(t, err)
	assert.Equal(t, user{ID: 1, Name: "ada"}, u)
}

func TestSQLiteSweep(t *testing.T) {
	ctx := context.Background()
	d := newTestSQLite(t, enabledConfig(""), WithExpiryCheck(10*time.Millisecond))

	_, err := d.Remember(ctx, "short", 5*time.Millisecond, Value("value"))
	require.NoError(t, err)
	_, err = d.Forever(ctx, "long", Value("value"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return rowCount(t, d) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestSQLitePersistence(t *testing.T) {
	ctx := context.Background()
	cfg := enabledConfig("")
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "cache.db")
	var c counter

	d, err := NewSQLite(cfg)
	require.NoError(t, err)
	_, err = d.Forever(ctx, "key", c.produce("value"))
	require.NoError(t, err)
	require.NoError(t, d.(*sqliteDriver).Close())

	d, err = NewSQLite(cfg)
	require.NoError(t, err)
	defer d.(*sqliteDriver).Close()
	val, err := d.Forever(ctx, "key", c.produce("other"))
	require.NoError(t, err)
	assert.Equal(t, "value", val)
	assert.Equal(t, 1, c.count())
}

func TestSQLiteUndecodableEntry(t *testing.T) {
	ctx := context.Background()
	d := newTestSQLite(t, enabledConfig(""))
	_, err := d.db.Exec(`INSERT INTO cache (key, value, expires_at) VALUES (?, ?, 0)`, "key", []byte{0xc1})
	require.NoError(t, err)

	_, err = d.Forever(ctx, "key", Value("fresh"))
	assert.True(t, errors.Is(err, ErrBackendUnavailable))
	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "decode", be.Op)
}

func TestSQLiteClosed(t *testing.T) {
	ctx := context.Background()
	d, err := NewSQLite(enabledConfig(""))
	require.NoError(t, err)
	require.NoError(t, d.(*sqliteDriver).Close())
	assert.NoError(t, d.(*sqliteDriver).Close())

	_, err = d.Remember(ctx, "key", time.Minute, Value("value"))
	assert.True(t, errors.Is(err, ErrBackendUnavailable))
}

func TestSQLiteExpiryCheckFromConfig(t *testing.T) {
	cfg := enabledConfig("")
	cfg.SQLite.ExpiryCheck = Duration(time.Hour)
	d := newTestSQLite(t, cfg)
	assert.Equal(t, time.Hour, d.expiryCheck)

	d = newTestSQLite(t, enabledConfig(""))
	assert.Equal(t, DefaultExpiryCheck, d.expiryCheck)
}
