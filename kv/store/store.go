package store

import (
	"context"
	"time"

	"github.com/hatlonely/restsql/ref"
	"github.com/pkg/errors"
)

var (
	ErrKeyNotFound     = errors.New("key not found")
	ErrConditionFailed = errors.New("condition failed")
)

type setOptions struct {
	Expiration time.Duration
	IfNotExist bool
}

type setOption func(*setOptions)

func WithExpiration(expiration time.Duration) setOption {
	return func(options *setOptions) {
		options.Expiration = expiration
	}
}

func WithIfNotExist() setOption {
	return func(options *setOptions) {
		options.IfNotExist = true
	}
}

func applySetOptions(opts []setOption) *setOptions {
	options := &setOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

type Store[K, V any] interface {
	// Set 设置键值对，WithIfNotExist 时键存在则返回 ErrConditionFailed
	Set(ctx context.Context, key K, value V, opts ...setOption) error
	// Get 获取键对应的值，键不存在或已过期时返回 ErrKeyNotFound
	Get(ctx context.Context, key K) (V, error)
	// Del 删除键，键不存在时也返回成功
	Del(ctx context.Context, key K) error
	// GetDel 原子地获取并删除，同一个键并发调用只有一个能拿到值
	GetDel(ctx context.Context, key K) (V, error)
	Close() error
}

func NewStoreWithOptions[K comparable, V any](options *ref.TypeOptions) (Store[K, V], error) {
	ref.RegisterT[*MapStore[K, V]](NewMapStoreWithOptions[K, V])
	ref.RegisterT[*FreeCacheStore[K, V]](NewFreeCacheStoreWithOptions[K, V])
	ref.RegisterT[*RedisStore[K, V]](NewRedisStoreWithOptions[K, V])

	if options == nil {
		return NewMapStoreWithOptions[K, V](), nil
	}

	obj, err := ref.NewWithOptions(options)
	if err != nil {
		return nil, errors.WithMessage(err, "ref.NewWithOptions failed")
	}
	s, ok := obj.(Store[K, V])
	if !ok {
		return nil, errors.Errorf("%T is not a Store", obj)
	}
	return s, nil
}
