package oauth

import (
	"sync"
	"time"
)

type item[T any] struct {
	value      T
	expiration time.Time
}

// NewVolatileCache creates an in-memory implementation of Cache.
func NewVolatileCache[T any](size int) *VolatileCache[T] {
	return &VolatileCache[T]{
		lock:  new(sync.Mutex),
		data:  make(map[string]*item[T], size),
		clock: time.Now,
	}
}

// VolatileCache is an in-memory implementation of Cache.
//
// Any process restart wipes out every entry; deployments running more than
// one instance should use RedisCache for sessions instead.
//
// Expired entries are dropped when read, or in bulk by calling Purge.
type VolatileCache[T any] struct {
	lock  *sync.Mutex
	data  map[string]*item[T]
	clock func() time.Time
}

func (vc *VolatileCache[T]) Get(key string) (T, bool) {
	now := vc.clock()

	vc.lock.Lock()
	defer vc.lock.Unlock()

	entry, exists := vc.data[key]

	// check item was in the cache
	if !exists {
		var empty T
		return empty, false
	}

	// check item expiration and purge if necessary
	if now.After(entry.expiration) {
		delete(vc.data, key)
		var empty T
		return empty, false
	}

	return entry.value, true
}

func (vc *VolatileCache[T]) Put(key string, value T, ttl time.Duration) {
	now := vc.clock()

	vc.lock.Lock()
	defer vc.lock.Unlock()

	vc.data[key] = &item[T]{
		expiration: now.Add(ttl),
		value:      value,
	}
}

func (vc *VolatileCache[T]) Remove(key string) {
	vc.lock.Lock()
	defer vc.lock.Unlock()

	delete(vc.data, key)
}

// Purge removes every expired entry, returning how many were removed.
func (vc *VolatileCache[T]) Purge() int {
	now := vc.clock()

	vc.lock.Lock()
	defer vc.lock.Unlock()

	count := 0
	for key, entry := range vc.data {
		if now.After(entry.expiration) {
			delete(vc.data, key)
			count++
		}
	}
	return count
}

// Len returns the number of entries, including expired ones not yet purged.
func (vc *VolatileCache[T]) Len() int {
	vc.lock.Lock()
	defer vc.lock.Unlock()

	return len(vc.data)
}
