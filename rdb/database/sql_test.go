package database

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hatlonely/restsql/rdb"
	"github.com/hatlonely/restsql/rdb/dialect"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNewSQLWithOptions(t *testing.T) {
	Convey("NewSQLWithOptions", t, func() {
		Convey("sqlite", func() {
			s, err := NewSQLWithOptions(&SQLOptions{
				Driver:   "sqlite3",
				Database: filepath.Join(t.TempDir(), "test.db"),
				MaxConns: 2,
				MaxIdle:  1,
			})
			So(err, ShouldBeNil)
			defer s.Close()
			So(s.Dialect().Name(), ShouldEqual, "sqlite3")

			ctx := context.Background()
			_, err = s.Exec(ctx, `CREATE TABLE ITEM (ID INTEGER PRIMARY KEY, NAME TEXT, DATA BLOB)`)
			So(err, ShouldBeNil)

			rows, err := s.Query(ctx, `INSERT INTO ITEM (ID, NAME) VALUES (?, ?) RETURNING *`, 1, "x")
			So(err, ShouldBeNil)
			So(rows, ShouldHaveLength, 1)
			So(rows[0]["ID"], ShouldEqual, int64(1))
			So(rows[0], ShouldContainKey, "NAME")

			n, err := s.Exec(ctx, `UPDATE ITEM SET NAME = ? WHERE ID = ?`, "y", 1)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)

			rows, err = s.Query(ctx, `SELECT * FROM ITEM WHERE ID = ?`, 2)
			So(err, ShouldBeNil)
			So(rows, ShouldBeEmpty)

			_, err = s.Query(ctx, `SELECT * FROM MISSING`)
			So(rdb.KindOf(err), ShouldEqual, rdb.KindStoreError)
			So(err.Error(), ShouldContainSubstring, "no such table")
		})

		Convey("不支持的驱动", func() {
			_, err := NewSQLWithOptions(&SQLOptions{Driver: "mysql"})
			So(err, ShouldNotBeNil)
		})

		Convey("nil options", func() {
			_, err := NewSQLWithOptions(nil)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestSQLQuery(t *testing.T) {
	Convey("SQL.Query", t, func() {
		db, mock, err := sqlmock.New()
		So(err, ShouldBeNil)
		s := NewSQLWithDB(db, dialect.NewPostgres(""))
		defer s.Close()
		ctx := context.Background()

		Convey("扫描所有列", func() {
			mock.ExpectQuery(`SELECT \* FROM "item"`).
				WillReturnRows(sqlmock.NewRows([]string{"ID", "NAME"}).AddRow(int64(1), []byte("x")).AddRow(int64(2), nil))

			rows, err := s.Query(ctx, `SELECT * FROM "item"`)
			So(err, ShouldBeNil)
			So(rows, ShouldHaveLength, 2)
			So(rows[0]["NAME"], ShouldResemble, []byte("x"))
			So(rows[1]["NAME"], ShouldBeNil)
			So(mock.ExpectationsWereMet(), ShouldBeNil)
		})

		Convey("连接错误归为 Unavailable", func() {
			mock.ExpectQuery(`SELECT 1`).WillReturnError(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")})
			_, err := s.Query(ctx, `SELECT 1`)
			So(rdb.KindOf(err), ShouldEqual, rdb.KindUnavailable)
		})

		Convey("其他错误归为 StoreError", func() {
			mock.ExpectQuery(`SELECT 1`).WillReturnError(errors.New(`syntax error at or near "x"`))
			_, err := s.Query(ctx, `SELECT 1`)
			So(rdb.KindOf(err), ShouldEqual, rdb.KindStoreError)
			So(err.Error(), ShouldEqual, `syntax error at or near "x"`)
		})
	})

	Convey("未初始化的连接池", t, func() {
		var s *SQL
		_, err := s.Query(context.Background(), "SELECT 1")
		So(rdb.KindOf(err), ShouldEqual, rdb.KindUnavailable)
		So(rdb.KindOf(s.Ping(context.Background())), ShouldEqual, rdb.KindUnavailable)
		So(s.Close(), ShouldBeNil)
	})
}
