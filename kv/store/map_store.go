package store

import (
	"context"
	"sync"
	"time"
)

type mapEntry[V any] struct {
	value    V
	expireAt time.Time
}

func (e mapEntry[V]) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

// MapStore 进程内存储，过期的键在访问时惰性删除
type MapStore[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]mapEntry[V]
}

func NewMapStoreWithOptions[K comparable, V any]() *MapStore[K, V] {
	return &MapStore[K, V]{
		m: make(map[K]mapEntry[V]),
	}
}

func (s *MapStore[K, V]) Set(ctx context.Context, key K, value V, opts ...setOption) error {
	options := applySetOptions(opts)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if options.IfNotExist {
		if e, ok := s.m[key]; ok && !e.expired(now) {
			return ErrConditionFailed
		}
	}

	e := mapEntry[V]{value: value}
	if options.Expiration > 0 {
		e.expireAt = now.Add(options.Expiration)
	}
	s.m[key] = e
	return nil
}

func (s *MapStore[K, V]) Get(ctx context.Context, key K) (V, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load(key, false)
}

func (s *MapStore[K, V]) Del(ctx context.Context, key K) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.m, key)
	return nil
}

func (s *MapStore[K, V]) GetDel(ctx context.Context, key K) (V, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load(key, true)
}

func (s *MapStore[K, V]) load(key K, del bool) (V, error) {
	var zero V
	e, ok := s.m[key]
	if !ok {
		return zero, ErrKeyNotFound
	}
	if e.expired(time.Now()) {
		delete(s.m, key)
		return zero, ErrKeyNotFound
	}
	if del {
		delete(s.m, key)
	}
	return e.value, nil
}

func (s *MapStore[K, V]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.m = make(map[K]mapEntry[V])
	return nil
}
