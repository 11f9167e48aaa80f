package cache

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const memorySegments = 16

type value struct {
	object  any
	expires time.Time
	timer   *time.Timer
}

func (v *value) expired(now time.Time) bool {
	return !v.expires.IsZero() && !now.Before(v.expires)
}

type memorySegment struct {
	mutex  sync.Mutex
	values map[string]*value
}

// MemoryStore is an in-process table of cached values. Values are stored
// as-is, so mutations to stored pointers are visible through the cache.
// Each value with an expiration has a deletion scheduled for when it
// expires. A MemoryStore is safe for concurrent use.
type MemoryStore struct {
	segments [memorySegments]memorySegment
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	for i := range s.segments {
		s.segments[i].values = make(map[string]*value)
	}
	return s
}

func (s *MemoryStore) segment(key string) *memorySegment {
	return &s.segments[xxhash.Sum64String(key)%memorySegments]
}

// Get returns the value stored under key. Expired values are absent.
func (s *MemoryStore) Get(key string) (any, bool) {
	seg := s.segment(key)
	seg.mutex.Lock()
	defer seg.mutex.Unlock()
	val, ok := seg.values[key]
	if !ok {
		return nil, false
	}
	if val.expired(time.Now()) {
		seg.drop(key, val)
		return nil, false
	}
	return val.object, true
}

// Set stores object under key, replacing any previous value. If expires is
// greater than zero the value is deleted once it elapses.
func (s *MemoryStore) Set(key string, object any, expires time.Duration) {
	seg := s.segment(key)
	seg.mutex.Lock()
	defer seg.mutex.Unlock()
	if prev, ok := seg.values[key]; ok {
		seg.drop(key, prev)
	}
	val := &value{object: object}
	if expires > 0 {
		val.expires = time.Now().Add(expires)
		val.timer = time.AfterFunc(expires, func() {
			seg.mutex.Lock()
			defer seg.mutex.Unlock()
			// the key may have been overwritten since this was scheduled
			if cur, ok := seg.values[key]; ok && cur == val {
				delete(seg.values, key)
			}
		})
	}
	seg.values[key] = val
}

// Delete removes key and returns true if it was present.
func (s *MemoryStore) Delete(key string) bool {
	seg := s.segment(key)
	seg.mutex.Lock()
	defer seg.mutex.Unlock()
	val, ok := seg.values[key]
	if !ok {
		return false
	}
	seg.drop(key, val)
	return !val.expired(time.Now())
}

// Len returns the number of stored values, including expired values whose
// deletion has not run yet.
func (s *MemoryStore) Len() int {
	var n int
	for i := range s.segments {
		seg := &s.segments[i]
		seg.mutex.Lock()
		n += len(seg.values)
		seg.mutex.Unlock()
	}
	return n
}

// Clear removes every value and cancels pending deletions.
func (s *MemoryStore) Clear() {
	for i := range s.segments {
		seg := &s.segments[i]
		seg.mutex.Lock()
		for key, val := range seg.values {
			seg.drop(key, val)
		}
		seg.mutex.Unlock()
	}
}

// drop must be called with the segment mutex held.
func (seg *memorySegment) drop(key string, val *value) {
	if val.timer != nil {
		val.timer.Stop()
	}
	delete(seg.values, key)
}

type memoryBackend struct {
	store *MemoryStore
}

func (b *memoryBackend) load(_ context.Context, key string) (any, bool, error) {
	val, ok := b.store.Get(key)
	return val, ok, nil
}

func (b *memoryBackend) save(_ context.Context, key string, val any, expires time.Duration) error {
	b.store.Set(key, val, expires)
	return nil
}

func (b *memoryBackend) remove(_ context.Context, key string) error {
	b.store.Delete(key)
	return nil
}

type inMemoryDriver struct {
	readThrough
	store *MemoryStore
	owned bool
	once  sync.Once
}

var _ Driver = (*inMemoryDriver)(nil)

// NewInMemory returns a new in-memory Driver. Unless WithMemoryStore is
// given, the driver owns a private MemoryStore which Close clears.
func NewInMemory(cfg Config, opts ...Option) Driver {
	o := applyOptions(opts)
	store, owned := o.store, false
	if store == nil {
		store, owned = NewMemoryStore(), true
	}
	return &inMemoryDriver{
		readThrough: newReadThrough("memory", cfg, &memoryBackend{store}, o.logger),
		store:       store,
		owned:       owned,
	}
}

// Store returns the table backing this driver.
func (d *inMemoryDriver) Store() *MemoryStore {
	return d.store
}

// Close clears the store if the driver owns it. A shared store is left
// to the application that created it.
func (d *inMemoryDriver) Close() error {
	d.once.Do(func() {
		if d.owned {
			d.store.Clear()
		}
	})
	return nil
}
