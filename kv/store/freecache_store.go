package store

import (
	"context"
	"sync"
	"time"

	"github.com/coocood/freecache"
	"github.com/hatlonely/restsql/kv/serializer"
	"github.com/hatlonely/restsql/ref"
	"github.com/pkg/errors"
)

type FreeCacheStoreOptions struct {
	// 缓存大小，单位字节，freecache 最小 512KB
	Size          int              `cfg:"size" def:"1048576"`
	DefaultTTL    time.Duration    `cfg:"defaultTTL"`
	KeySerializer *ref.TypeOptions `cfg:"keySerializer"`
	ValSerializer *ref.TypeOptions `cfg:"valSerializer"`
}

type FreeCacheStore[K, V any] struct {
	cache         *freecache.Cache
	defaultTTL    time.Duration
	keySerializer serializer.Serializer[K, []byte]
	valSerializer serializer.Serializer[V, []byte]

	// freecache 没有原子的 GetDel，写操作和 GetDel 串行
	mu sync.Mutex
}

func NewFreeCacheStoreWithOptions[K, V any](options *FreeCacheStoreOptions) (*FreeCacheStore[K, V], error) {
	if options == nil {
		options = &FreeCacheStoreOptions{}
	}

	keySerializer, err := serializer.NewByteSerializerWithOptions[K](options.KeySerializer)
	if err != nil {
		return nil, errors.WithMessage(err, "key serializer")
	}
	valSerializer, err := serializer.NewByteSerializerWithOptions[V](options.ValSerializer)
	if err != nil {
		return nil, errors.WithMessage(err, "value serializer")
	}

	return &FreeCacheStore[K, V]{
		cache:         freecache.NewCache(options.Size),
		defaultTTL:    options.DefaultTTL,
		keySerializer: keySerializer,
		valSerializer: valSerializer,
	}, nil
}

// expireSeconds freecache 以秒为单位，不足一秒的过期时间向上取整
func (s *FreeCacheStore[K, V]) expireSeconds(expiration time.Duration) int {
	if expiration == 0 {
		expiration = s.defaultTTL
	}
	if expiration <= 0 {
		return 0
	}
	return int((expiration + time.Second - 1) / time.Second)
}

func (s *FreeCacheStore[K, V]) Set(ctx context.Context, key K, value V, opts ...setOption) error {
	options := applySetOptions(opts)

	keyBytes, err := s.keySerializer.Serialize(key)
	if err != nil {
		return errors.Wrap(err, "serialize key")
	}
	valBytes, err := s.valSerializer.Serialize(value)
	if err != nil {
		return errors.Wrap(err, "serialize value")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if options.IfNotExist {
		if _, err := s.cache.Get(keyBytes); err == nil {
			return ErrConditionFailed
		}
	}
	return s.cache.Set(keyBytes, valBytes, s.expireSeconds(options.Expiration))
}

func (s *FreeCacheStore[K, V]) Get(ctx context.Context, key K) (V, error) {
	var zero V
	keyBytes, err := s.keySerializer.Serialize(key)
	if err != nil {
		return zero, errors.Wrap(err, "serialize key")
	}

	valBytes, err := s.cache.Get(keyBytes)
	if err != nil {
		return zero, ErrKeyNotFound
	}
	return s.valSerializer.Deserialize(valBytes)
}

func (s *FreeCacheStore[K, V]) Del(ctx context.Context, key K) error {
	keyBytes, err := s.keySerializer.Serialize(key)
	if err != nil {
		return errors.Wrap(err, "serialize key")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Del(keyBytes)
	return nil
}

func (s *FreeCacheStore[K, V]) GetDel(ctx context.Context, key K) (V, error) {
	var zero V
	keyBytes, err := s.keySerializer.Serialize(key)
	if err != nil {
		return zero, errors.Wrap(err, "serialize key")
	}

	s.mu.Lock()
	valBytes, err := s.cache.Get(keyBytes)
	if err == nil {
		s.cache.Del(keyBytes)
	}
	s.mu.Unlock()

	if err != nil {
		return zero, ErrKeyNotFound
	}
	return s.valSerializer.Deserialize(valBytes)
}

func (s *FreeCacheStore[K, V]) Close() error {
	s.cache.Clear()
	return nil
}
