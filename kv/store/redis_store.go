package store

import (
	"context"
	"time"

	"github.com/hatlonely/restsql/kv/serializer"
	"github.com/hatlonely/restsql/ref"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type RedisStoreOptions struct {
	// host:port 地址
	Endpoint string `cfg:"endpoint" validate:"required"`

	// 所有键的公共前缀，多个服务共用一个 redis 时用于隔离
	KeyPrefix string `cfg:"keyPrefix"`

	DefaultTTL time.Duration `cfg:"defaultTTL"`

	KeySerializer *ref.TypeOptions `cfg:"keySerializer"`
	ValSerializer *ref.TypeOptions `cfg:"valSerializer"`

	Username string `cfg:"username"`
	Password string `cfg:"password"`
	DB       int    `cfg:"db" def:"0"`

	// 放弃前的最大重试次数，-1 禁用重试
	MaxRetries   int           `cfg:"maxRetries" def:"3"`
	DialTimeout  time.Duration `cfg:"dialTimeout" def:"5s"`
	ReadTimeout  time.Duration `cfg:"readTimeout" def:"3s"`
	WriteTimeout time.Duration `cfg:"writeTimeout" def:"3s"`
	PoolSize     int           `cfg:"poolSize" def:"10"`
}

type RedisStore[K, V any] struct {
	client        redis.Cmdable
	closer        func() error
	keyPrefix     string
	defaultTTL    time.Duration
	keySerializer serializer.Serializer[K, []byte]
	valSerializer serializer.Serializer[V, []byte]
}

func NewRedisStoreWithOptions[K, V any](options *RedisStoreOptions) (*RedisStore[K, V], error) {
	if options == nil || options.Endpoint == "" {
		return nil, errors.New("redis endpoint is required")
	}

	keySerializer, err := serializer.NewByteSerializerWithOptions[K](options.KeySerializer)
	if err != nil {
		return nil, errors.WithMessage(err, "key serializer")
	}
	valSerializer, err := serializer.NewByteSerializerWithOptions[V](options.ValSerializer)
	if err != nil {
		return nil, errors.WithMessage(err, "value serializer")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         options.Endpoint,
		Username:     options.Username,
		Password:     options.Password,
		DB:           options.DB,
		MaxRetries:   options.MaxRetries,
		DialTimeout:  options.DialTimeout,
		ReadTimeout:  options.ReadTimeout,
		WriteTimeout: options.WriteTimeout,
		PoolSize:     options.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), options.DialTimeout+time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis.client.Ping failed")
	}

	return &RedisStore[K, V]{
		client:        client,
		closer:        client.Close,
		keyPrefix:     options.KeyPrefix,
		defaultTTL:    options.DefaultTTL,
		keySerializer: keySerializer,
		valSerializer: valSerializer,
	}, nil
}

func (s *RedisStore[K, V]) key(key K) (string, error) {
	buf, err := s.keySerializer.Serialize(key)
	if err != nil {
		return "", errors.Wrap(err, "serialize key")
	}
	return s.keyPrefix + string(buf), nil
}

func (s *RedisStore[K, V]) Set(ctx context.Context, key K, value V, opts ...setOption) error {
	options := applySetOptions(opts)

	k, err := s.key(key)
	if err != nil {
		return err
	}
	buf, err := s.valSerializer.Serialize(value)
	if err != nil {
		return errors.Wrap(err, "serialize value")
	}

	expiration := options.Expiration
	if expiration == 0 {
		expiration = s.defaultTTL
	}

	if options.IfNotExist {
		ok, err := s.client.SetNX(ctx, k, buf, expiration).Result()
		if err != nil {
			return errors.Wrap(err, "redis.SetNX failed")
		}
		if !ok {
			return ErrConditionFailed
		}
		return nil
	}

	if err := s.client.Set(ctx, k, buf, expiration).Err(); err != nil {
		return errors.Wrap(err, "redis.Set failed")
	}
	return nil
}

func (s *RedisStore[K, V]) Get(ctx context.Context, key K) (V, error) {
	var zero V
	k, err := s.key(key)
	if err != nil {
		return zero, err
	}

	buf, err := s.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return zero, ErrKeyNotFound
	}
	if err != nil {
		return zero, errors.Wrap(err, "redis.Get failed")
	}
	return s.valSerializer.Deserialize(buf)
}

func (s *RedisStore[K, V]) Del(ctx context.Context, key K) error {
	k, err := s.key(key)
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, k).Err(); err != nil {
		return errors.Wrap(err, "redis.Del failed")
	}
	return nil
}

// GetDel 需要 redis 6.2 及以上版本
func (s *RedisStore[K, V]) GetDel(ctx context.Context, key K) (V, error) {
	var zero V
	k, err := s.key(key)
	if err != nil {
		return zero, err
	}

	buf, err := s.client.GetDel(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return zero, ErrKeyNotFound
	}
	if err != nil {
		return zero, errors.Wrap(err, "redis.GetDel failed")
	}
	return s.valSerializer.Deserialize(buf)
}

func (s *RedisStore[K, V]) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
