package query

import (
	"encoding/json"
	"testing"

	"github.com/hatlonely/restsql/rdb"
	. "github.com/smartystreets/goconvey/convey"
)

func mustLayout(s string) Layout {
	var l Layout
	So(json.Unmarshal([]byte(s), &l), ShouldBeNil)
	return l
}

func TestFields(t *testing.T) {
	Convey("Fields", t, func() {
		Convey("按顺序展开嵌套布局", func() {
			fields, err := Fields(mustLayout(`[{"field": "ID"}, {"subrow": [{"field": "NAME"}, [{"field": "Reg_Date"}]]}, "EMAIL"]`))
			So(err, ShouldBeNil)
			So(fields, ShouldEqual, `"id", "name", "reg_date", "email"`)
		})

		Convey("任意深度的通配符", func() {
			fields, err := Fields(mustLayout(`[{"field": "ID"}, {"subrow": [[{"field": "*"}]]}, {"field": "NAME"}]`))
			So(err, ShouldBeNil)
			So(fields, ShouldEqual, "*")
		})

		Convey("空布局", func() {
			fields, err := Fields(nil)
			So(err, ShouldBeNil)
			So(fields, ShouldEqual, "*")

			fields, err = Fields(mustLayout(`[{"name": "display only"}]`))
			So(err, ShouldBeNil)
			So(fields, ShouldEqual, "*")
		})

		Convey("格式错误", func() {
			_, err := Fields(mustLayout(`[{"field": 1}]`))
			So(rdb.KindOf(err), ShouldEqual, rdb.KindBadRequest)

			_, err = Fields(mustLayout(`[{"subrow": "x"}]`))
			So(rdb.KindOf(err), ShouldEqual, rdb.KindBadRequest)

			_, err = Fields(mustLayout(`[3]`))
			So(rdb.KindOf(err), ShouldEqual, rdb.KindBadRequest)
		})
	})
}

func TestOrder(t *testing.T) {
	Convey("Order", t, func() {
		So(Order(""), ShouldEqual, "")
		So(Order("NAME"), ShouldEqual, `"name"`)
		So(Order("NAME DESC, ID ASC"), ShouldEqual, `"name" DESC, "id" ASC`)
		So(Order("REG_DATE DESC NULLS LAST,,"), ShouldEqual, `"reg_date" DESC NULLS LAST`)
		So(Order("$LOWER(name) DESC"), ShouldEqual, "LOWER(name) DESC")
	})
}
