// Package serializer 存储层的值编码。随机数的过期时间和会话的用户 ID 都经过这里写入 redis 或 freecache，
// 默认使用 msgpack，需要在 redis-cli 里直接查看时可以配置成 json。
package serializer

import (
	"encoding/json"
	"reflect"

	"github.com/hatlonely/restsql/ref"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

type Serializer[F, T any] interface {
	Serialize(from F) (T, error)
	Deserialize(to T) (F, error)
}

// NewByteSerializerWithOptions options 为 nil 时使用 MsgPackSerializer
func NewByteSerializerWithOptions[T any](options *ref.TypeOptions) (Serializer[T, []byte], error) {
	ref.RegisterT[*JSONSerializer[T]](NewJSONSerializer[T])
	ref.RegisterT[*MsgPackSerializer[T]](NewMsgPackSerializer[T])

	if options == nil {
		var t T
		options = &ref.TypeOptions{
			Namespace: "github.com/hatlonely/restsql/kv/serializer",
			Type:      "MsgPackSerializer[" + reflect.TypeOf(&t).Elem().String() + "]",
		}
	}

	obj, err := ref.NewWithOptions(options)
	if err != nil {
		return nil, errors.WithMessage(err, "ref.NewWithOptions failed")
	}
	s, ok := obj.(Serializer[T, []byte])
	if !ok {
		return nil, errors.Errorf("%T is not a Serializer", obj)
	}
	return s, nil
}

// JSONSerializer 数字按 JSON 规则编码，T 为接口类型时整数会被还原成 float64
type JSONSerializer[T any] struct{}

func NewJSONSerializer[T any]() *JSONSerializer[T] {
	return &JSONSerializer[T]{}
}

func (s *JSONSerializer[T]) Serialize(v T) ([]byte, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "json.Marshal failed")
	}
	return buf, nil
}

func (s *JSONSerializer[T]) Deserialize(buf []byte) (T, error) {
	var v T
	if err := json.Unmarshal(buf, &v); err != nil {
		return v, errors.Wrap(err, "json.Unmarshal failed")
	}
	return v, nil
}

// MsgPackSerializer 默认的编码，int64 时间戳保持整数
type MsgPackSerializer[T any] struct{}

func NewMsgPackSerializer[T any]() *MsgPackSerializer[T] {
	return &MsgPackSerializer[T]{}
}

func (s *MsgPackSerializer[T]) Serialize(v T) ([]byte, error) {
	buf, err := msgpack.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "msgpack.Marshal failed")
	}
	return buf, nil
}

func (s *MsgPackSerializer[T]) Deserialize(buf []byte) (T, error) {
	var v T
	if err := msgpack.Unmarshal(buf, &v); err != nil {
		return v, errors.Wrap(err, "msgpack.Unmarshal failed")
	}
	return v, nil
}
