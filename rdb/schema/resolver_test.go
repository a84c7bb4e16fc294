package schema

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hatlonely/restsql/rdb"
	"github.com/hatlonely/restsql/rdb/database"
	"github.com/hatlonely/restsql/rdb/dialect"
	. "github.com/smartystreets/goconvey/convey"
)

func newSQLite(t *testing.T) *database.SQL {
	db, err := database.NewSQLWithOptions(&database.SQLOptions{
		Driver:   "sqlite3",
		Database: filepath.Join(t.TempDir(), "test.db"),
		MaxConns: 1,
		MaxIdle:  1,
	})
	So(err, ShouldBeNil)
	ctx := context.Background()
	for _, ddl := range []string{
		`CREATE TABLE ITEM (ID INTEGER PRIMARY KEY, Name TEXT, PRICE REAL)`,
		`CREATE TABLE ORDER_LINE (ORDER_ID INTEGER, LINE_NO INTEGER, QTY INTEGER, PRIMARY KEY (ORDER_ID, LINE_NO))`,
		`CREATE TABLE AUDIT (MSG TEXT)`,
	} {
		_, err := db.Exec(ctx, ddl)
		So(err, ShouldBeNil)
	}
	return db
}

func TestIntrospectSource(t *testing.T) {
	Convey("IntrospectSource", t, func() {
		db := newSQLite(t)
		defer db.Close()
		s := NewIntrospectSource(db)
		ctx := context.Background()

		Convey("Exists", func() {
			ok, err := s.Exists(ctx, "item")
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			ok, err = s.Exists(ctx, "MISSING")
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})

		Convey("PrimaryKey 按序号排列", func() {
			key, err := s.PrimaryKey(ctx, "ORDER_LINE")
			So(err, ShouldBeNil)
			So(key, ShouldResemble, Key{"ORDER_ID", "LINE_NO"})
			key, err = s.PrimaryKey(ctx, "AUDIT")
			So(err, ShouldBeNil)
			So(key, ShouldBeEmpty)
		})

		Convey("Columns", func() {
			columns, err := s.Columns(ctx, "ITEM")
			So(err, ShouldBeNil)
			So(columns, ShouldResemble, []string{"ID", "Name", "PRICE"})
		})

		Convey("Lookup", func() {
			t, err := s.Lookup(ctx, "ITEM")
			So(err, ShouldBeNil)
			So(t.Key, ShouldResemble, Key{"ID"})
			So(t.Fields, ShouldHaveLength, 3)

			_, err = s.Lookup(ctx, "MISSING")
			So(rdb.KindOf(err), ShouldEqual, rdb.KindNotFound)
		})
	})
}

func TestResolver(t *testing.T) {
	Convey("Resolver", t, func() {
		db := newSQLite(t)
		defer db.Close()
		catalog, err := NewCatalog([]TableSchema{
			{Name: "ITEM", Key: Key{"ID"}, Fields: []Field{{Name: "ID"}, {Name: "NAME"}}, Comment: "商品"},
			{Name: "ORDER_LINE", Override: &Override{WriteKey: Key{"ORDER_ID"}, TrimKeys: true}},
			{Name: "VIRTUAL", Key: Key{"A", "B"}},
		})
		So(err, ShouldBeNil)
		r := NewResolver(catalog, db)
		ctx := context.Background()

		Convey("Sources", func() {
			sources := r.Sources()
			So(sources, ShouldHaveLength, 2)
			So(sources[0].Name(), ShouldEqual, SourceCatalog)
			So(sources[1].Name(), ShouldEqual, SourceStore)

			ok, err := sources[0].Exists(ctx, "virtual")
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			ok, err = sources[1].Exists(ctx, "virtual")
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)

			key, err := sources[0].PrimaryKey(ctx, "ORDER_LINE")
			So(err, ShouldBeNil)
			So(key, ShouldBeEmpty)
			key, err = sources[1].PrimaryKey(ctx, "ORDER_LINE")
			So(err, ShouldBeNil)
			So(key, ShouldResemble, Key{"ORDER_ID", "LINE_NO"})
		})

		Convey("Exists", func() {
			So(r.Exists(ctx, "ITEM"), ShouldBeTrue)
			So(r.Exists(ctx, "virtual"), ShouldBeTrue)
			So(r.Exists(ctx, "audit"), ShouldBeTrue)
			So(r.Exists(ctx, "MISSING"), ShouldBeFalse)
		})

		Convey("PrimaryKey", func() {
			key, err := r.PrimaryKey(ctx, "VIRTUAL")
			So(err, ShouldBeNil)
			So(key, ShouldResemble, Key{"A", "B"})

			key, err = r.PrimaryKey(ctx, "ORDER_LINE")
			So(err, ShouldBeNil)
			So(key, ShouldResemble, Key{"ORDER_ID", "LINE_NO"})

			_, err = r.PrimaryKey(ctx, "AUDIT")
			So(rdb.KindOf(err), ShouldEqual, rdb.KindNotFound)
		})

		Convey("WriteTarget", func() {
			target, err := r.WriteTarget(ctx, "ORDER_LINE")
			So(err, ShouldBeNil)
			So(target.Key, ShouldResemble, Key{"ORDER_ID"})
			So(target.TrimKeys, ShouldBeTrue)

			target, err = r.WriteTarget(ctx, "ITEM")
			So(err, ShouldBeNil)
			So(target.Key, ShouldResemble, Key{"ID"})
			So(target.TrimKeys, ShouldBeFalse)
		})

		Convey("ActualColumns", func() {
			columns := r.ActualColumns(ctx, "ITEM")
			So(columns["name"], ShouldEqual, "Name")
			So(columns["id"], ShouldEqual, "ID")
			So(r.ActualColumns(ctx, "MISSING"), ShouldBeEmpty)
		})

		Convey("Resolve", func() {
			res, err := r.Resolve(ctx, "ITEM")
			So(err, ShouldBeNil)
			So(res.Exists, ShouldBeTrue)
			So(res.PrimaryKey, ShouldResemble, Key{"ID"})

			res, err = r.Resolve(ctx, "AUDIT")
			So(err, ShouldBeNil)
			So(res.Exists, ShouldBeTrue)
			So(res.PrimaryKey, ShouldBeEmpty)

			res, err = r.Resolve(ctx, "MISSING")
			So(err, ShouldBeNil)
			So(res.Exists, ShouldBeFalse)
		})

		Convey("Lookup", func() {
			t, err := r.Lookup(ctx, "audit")
			So(err, ShouldBeNil)
			So(t.Fields, ShouldHaveLength, 1)
			_, err = r.Lookup(ctx, "MISSING")
			So(rdb.KindOf(err), ShouldEqual, rdb.KindNotFound)
		})

		Convey("ListTables", func() {
			tables := r.ListTables(ctx)
			So(tables, ShouldHaveLength, 4)
			So(tables[0], ShouldResemble, TableInfo{Name: "ITEM", Key: "ID", Comment: "商品", FieldCount: 2, Source: SourceCatalog})
			So(tables[1].Key, ShouldBeNil)
			So(tables[2].Key, ShouldResemble, []string{"A", "B"})
			So(tables[3].Name, ShouldEqual, "AUDIT")
			So(tables[3].Source, ShouldEqual, SourceStore)
			So(tables[3].FieldCount, ShouldEqual, 0)
		})
	})
}

func TestResolverDegraded(t *testing.T) {
	Convey("数据库不可用时退回静态定义", t, func() {
		mdb, mock, err := sqlmock.New()
		So(err, ShouldBeNil)
		defer mdb.Close()
		db := database.NewSQLWithDB(mdb, dialect.NewPostgres("public"))

		catalog, _ := NewCatalog([]TableSchema{{Name: "ITEM", Key: Key{"ID"}}})
		r := NewResolver(catalog, db)
		ctx := context.Background()

		mock.ExpectQuery("information_schema").WillReturnError(errors.New("connection refused"))
		tables := r.ListTables(ctx)
		So(tables, ShouldHaveLength, 1)
		So(tables[0].Name, ShouldEqual, "ITEM")

		mock.ExpectQuery("information_schema").WillReturnError(errors.New("connection refused"))
		So(r.Exists(ctx, "OTHER"), ShouldBeFalse)

		mock.ExpectQuery("information_schema").WillReturnError(errors.New("connection refused"))
		So(r.ActualColumns(ctx, "ITEM"), ShouldBeEmpty)

		// 静态定义命中时不再查询数据库
		So(r.Exists(ctx, "item"), ShouldBeTrue)
		key, err := r.PrimaryKey(ctx, "ITEM")
		So(err, ShouldBeNil)
		So(key, ShouldResemble, Key{"ID"})

		mock.ExpectQuery("information_schema").WillReturnError(errors.New("connection refused"))
		_, err = r.PrimaryKey(ctx, "OTHER")
		So(rdb.KindOf(err), ShouldEqual, rdb.KindNotFound)
		So(err.Error(), ShouldContainSubstring, "connection refused")
		So(mock.ExpectationsWereMet(), ShouldBeNil)
	})
}
