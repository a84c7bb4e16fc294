package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hatlonely/restsql/ref"
	. "github.com/smartystreets/goconvey/convey"
)

type namedStore struct {
	name  string
	store Store[string, int64]
}

func newStores(t *testing.T) []namedStore {
	mr := miniredis.RunT(t)

	freecacheStore, err := NewFreeCacheStoreWithOptions[string, int64](&FreeCacheStoreOptions{Size: 1024 * 1024})
	So(err, ShouldBeNil)

	redisStore, err := NewRedisStoreWithOptions[string, int64](&RedisStoreOptions{
		Endpoint:    mr.Addr(),
		KeyPrefix:   "nonce:",
		DialTimeout: time.Second,
		MaxRetries:  -1,
	})
	So(err, ShouldBeNil)

	return []namedStore{
		{"MapStore", NewMapStoreWithOptions[string, int64]()},
		{"FreeCacheStore", freecacheStore},
		{"RedisStore", redisStore},
	}
}

func TestStore(t *testing.T) {
	Convey("Store", t, func() {
		ctx := context.Background()

		for _, ns := range newStores(t) {
			s := ns.store
			Convey(ns.name, func() {
				Reset(func() { _ = s.Close() })

				Convey("Set 和 Get", func() {
					So(s.Set(ctx, "a", 1), ShouldBeNil)
					v, err := s.Get(ctx, "a")
					So(err, ShouldBeNil)
					So(v, ShouldEqual, int64(1))
				})

				Convey("获取不存在的键", func() {
					_, err := s.Get(ctx, "missing")
					So(err, ShouldEqual, ErrKeyNotFound)
				})

				Convey("IfNotExist", func() {
					So(s.Set(ctx, "b", 1, WithIfNotExist()), ShouldBeNil)
					So(s.Set(ctx, "b", 2, WithIfNotExist()), ShouldEqual, ErrConditionFailed)
					v, _ := s.Get(ctx, "b")
					So(v, ShouldEqual, int64(1))
				})

				Convey("Del", func() {
					So(s.Set(ctx, "c", 1), ShouldBeNil)
					So(s.Del(ctx, "c"), ShouldBeNil)
					So(s.Del(ctx, "c"), ShouldBeNil)
					_, err := s.Get(ctx, "c")
					So(err, ShouldEqual, ErrKeyNotFound)
				})

				Convey("GetDel 只能取到一次", func() {
					So(s.Set(ctx, "d", 7, WithExpiration(time.Minute)), ShouldBeNil)
					v, err := s.GetDel(ctx, "d")
					So(err, ShouldBeNil)
					So(v, ShouldEqual, int64(7))
					_, err = s.GetDel(ctx, "d")
					So(err, ShouldEqual, ErrKeyNotFound)
				})

				Convey("GetDel 并发", func() {
					So(s.Set(ctx, "e", 1), ShouldBeNil)
					var hits int32
					var wg sync.WaitGroup
					for i := 0; i < 16; i++ {
						wg.Add(1)
						go func() {
							defer wg.Done()
							if _, err := s.GetDel(ctx, "e"); err == nil {
								atomic.AddInt32(&hits, 1)
							}
						}()
					}
					wg.Wait()
					So(hits, ShouldEqual, 1)
				})
			})
		}
	})
}

func TestMapStoreExpiration(t *testing.T) {
	Convey("MapStore 过期", t, func() {
		ctx := context.Background()
		s := NewMapStoreWithOptions[string, string]()

		So(s.Set(ctx, "k", "v", WithExpiration(20*time.Millisecond)), ShouldBeNil)
		v, err := s.Get(ctx, "k")
		So(err, ShouldBeNil)
		So(v, ShouldEqual, "v")

		time.Sleep(40 * time.Millisecond)
		_, err = s.GetDel(ctx, "k")
		So(err, ShouldEqual, ErrKeyNotFound)

		So(s.Set(ctx, "k", "w", WithIfNotExist()), ShouldBeNil)
	})
}

func TestRedisStoreExpiration(t *testing.T) {
	Convey("RedisStore 过期", t, func() {
		mr := miniredis.RunT(t)
		ctx := context.Background()
		s, err := NewRedisStoreWithOptions[string, string](&RedisStoreOptions{Endpoint: mr.Addr(), DialTimeout: time.Second})
		So(err, ShouldBeNil)
		defer s.Close()

		So(s.Set(ctx, "k", "v", WithExpiration(time.Minute)), ShouldBeNil)
		mr.FastForward(2 * time.Minute)
		_, err = s.Get(ctx, "k")
		So(err, ShouldEqual, ErrKeyNotFound)
	})

	Convey("RedisStore 连接失败", t, func() {
		_, err := NewRedisStoreWithOptions[string, string](&RedisStoreOptions{Endpoint: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
		So(err, ShouldNotBeNil)

		_, err = NewRedisStoreWithOptions[string, string](nil)
		So(err, ShouldNotBeNil)
	})
}

func TestNewStoreWithOptions(t *testing.T) {
	Convey("NewStoreWithOptions", t, func() {
		Convey("nil 时使用 MapStore", func() {
			s, err := NewStoreWithOptions[string, int64](nil)
			So(err, ShouldBeNil)
			_, ok := s.(*MapStore[string, int64])
			So(ok, ShouldBeTrue)
		})

		Convey("FreeCacheStore", func() {
			s, err := NewStoreWithOptions[string, int64](&ref.TypeOptions{
				Namespace: "github.com/hatlonely/restsql/kv/store",
				Type:      "FreeCacheStore[string,int64]",
				Options:   &FreeCacheStoreOptions{Size: 1024 * 1024},
			})
			So(err, ShouldBeNil)
			_, ok := s.(*FreeCacheStore[string, int64])
			So(ok, ShouldBeTrue)
		})

		Convey("未知类型", func() {
			_, err := NewStoreWithOptions[string, int64](&ref.TypeOptions{Namespace: "x", Type: "y"})
			So(err, ShouldNotBeNil)
		})
	})
}
