package serializer

import (
	"testing"

	"github.com/hatlonely/restsql/ref"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNewByteSerializerWithOptions(t *testing.T) {
	Convey("NewByteSerializerWithOptions", t, func() {
		Convey("默认 msgpack", func() {
			s, err := NewByteSerializerWithOptions[int64](nil)
			So(err, ShouldBeNil)
			_, ok := s.(*MsgPackSerializer[int64])
			So(ok, ShouldBeTrue)

			buf, err := s.Serialize(1700000000000)
			So(err, ShouldBeNil)
			v, err := s.Deserialize(buf)
			So(err, ShouldBeNil)
			So(v, ShouldEqual, int64(1700000000000))
		})

		Convey("指定 json", func() {
			s, err := NewByteSerializerWithOptions[string](&ref.TypeOptions{
				Namespace: "github.com/hatlonely/restsql/kv/serializer",
				Type:      "JSONSerializer[string]",
			})
			So(err, ShouldBeNil)
			buf, err := s.Serialize("nonce")
			So(err, ShouldBeNil)
			So(string(buf), ShouldEqual, `"nonce"`)
		})

		Convey("类型不匹配", func() {
			_, err := NewByteSerializerWithOptions[int](&ref.TypeOptions{
				Namespace: "github.com/hatlonely/restsql/kv/serializer",
				Type:      "JSONSerializer[string]",
			})
			So(err, ShouldNotBeNil)
		})

		Convey("解码失败", func() {
			_, err := NewMsgPackSerializer[int64]().Deserialize([]byte{0xc1})
			So(err, ShouldNotBeNil)
			_, err = NewJSONSerializer[int64]().Deserialize([]byte("not json"))
			So(err, ShouldNotBeNil)
		})

		Convey("会话的用户 ID", func() {
			s := NewMsgPackSerializer[string]()
			buf, err := s.Serialize("u1")
			So(err, ShouldBeNil)
			v, err := s.Deserialize(buf)
			So(err, ShouldBeNil)
			So(v, ShouldEqual, "u1")
		})
	})
}
