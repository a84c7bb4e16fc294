package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hatlonely/restsql/auth"
	"github.com/hatlonely/restsql/kv/store"
	"github.com/hatlonely/restsql/rdb/crud"
	"github.com/hatlonely/restsql/rdb/database"
	"github.com/hatlonely/restsql/rdb/query"
	"github.com/hatlonely/restsql/rdb/schema"
	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/crypto/bcrypt"
)

type failingPinger struct{}

func (failingPinger) Ping(ctx context.Context) error {
	return errors.New("dial tcp: connection refused")
}

func newTestServer(t *testing.T) *httptest.Server {
	db, err := database.NewSQLWithOptions(&database.SQLOptions{
		Driver:   "sqlite3",
		Database: filepath.Join(t.TempDir(), "test.db"),
		MaxConns: 1,
		MaxIdle:  1,
	})
	So(err, ShouldBeNil)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	for _, ddl := range []string{
		`CREATE TABLE ITEM (ID INTEGER PRIMARY KEY, NAME TEXT)`,
		`CREATE TABLE MGMT_USER (USER_ID TEXT PRIMARY KEY, PASSWORD TEXT)`,
	} {
		_, err := db.Exec(ctx, ddl)
		So(err, ShouldBeNil)
	}

	catalog, err := schema.NewCatalog([]schema.TableSchema{{Name: "ITEM", Key: schema.Key{"ID"}, Comment: "商品"}})
	So(err, ShouldBeNil)

	nonces := auth.NewNonceManager(store.NewMapStoreWithOptions[string, int64](), time.Minute)
	executor := crud.NewExecutor(db, schema.NewResolver(catalog, db),
		crud.WithWriteHook(auth.NewPasswordHook(nonces, bcrypt.MinCost)))

	registry := prometheus.NewRegistry()
	service, err := crud.NewObservableService(executor, &crud.ObservableOptions{EnableMetrics: true, Name: "restsql"}, crud.WithRegisterer(registry))
	So(err, ShouldBeNil)

	sessions := auth.NewSessionManager(store.NewMapStoreWithOptions[string, string](), time.Hour)
	s, err := NewServer(&Options{Prefixes: []string{"", "/api", "api/"}}, service, db,
		WithNonceManager(nonces), WithGatherer(registry),
		WithAuthenticator(auth.NewAuthenticator(db, "MGMT_USER", nonces, sessions)))
	So(err, ShouldBeNil)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(ts *httptest.Server, method string, path string, body string) (int, string) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	So(err, ShouldBeNil)
	res, err := http.DefaultClient.Do(req)
	So(err, ShouldBeNil)
	defer res.Body.Close()
	buf, err := io.ReadAll(res.Body)
	So(err, ShouldBeNil)
	return res.StatusCode, string(buf)
}

func TestServer(t *testing.T) {
	Convey("Server", t, func() {
		ts := newTestServer(t)

		Convey("增删改查", func() {
			status, body := do(ts, http.MethodPost, "/rest-access-page/ITEM", `{"ID": 5, "NAME": "x"}`)
			So(status, ShouldEqual, http.StatusOK)
			So(body, ShouldEqual, `{"id":5,"name":"x"}`+"\n")

			status, body = do(ts, http.MethodGet, "/api/rest-access-page/ITEM?ID=5&dojo_preventCache=1", "")
			So(status, ShouldEqual, http.StatusOK)
			So(body, ShouldEqual, `[{"id":5,"name":"x"}]`+"\n")

			status, body = do(ts, http.MethodPut, "/rest-access-page/ITEM", `{"id": 5, "name": "y"}`)
			So(status, ShouldEqual, http.StatusOK)
			So(body, ShouldEqual, `{"id":5,"name":"y"}`+"\n")

			status, body = do(ts, http.MethodPost, "/api/get-db-array", `{"target": "/ITEM/", "layout": [{"field": "NAME"}], "query": [{"ID": 5}]}`)
			So(status, ShouldEqual, http.StatusOK)
			So(body, ShouldEqual, `[{"name":"y"}]`+"\n")

			status, body = do(ts, http.MethodDelete, "/rest-access-page/ITEM?key=5", "")
			So(status, ShouldEqual, http.StatusOK)
			So(body, ShouldEqual, `{"id":5,"name":"y"}`+"\n")

			status, body = do(ts, http.MethodGet, "/rest-access-page/ITEM?ID=5", "")
			So(status, ShouldEqual, http.StatusOK)
			So(body, ShouldEqual, "[]\n")
		})

		Convey("错误映射", func() {
			status, body := do(ts, http.MethodGet, "/rest-access-page/MISSING", "")
			So(status, ShouldEqual, http.StatusNotFound)
			var e errorResponse
			So(json.Unmarshal([]byte(body), &e), ShouldBeNil)
			So(e.Kind, ShouldEqual, "NotFound")

			status, _ = do(ts, http.MethodPut, "/rest-access-page/ITEM", `{"NAME": "y"}`)
			So(status, ShouldEqual, http.StatusBadRequest)

			status, _ = do(ts, http.MethodPost, "/rest-access-page/ITEM", `not json`)
			So(status, ShouldEqual, http.StatusBadRequest)

			status, _ = do(ts, http.MethodPut, "/rest-access-page/ITEM", `{"ID": 9, "NAME": "y"}`)
			So(status, ShouldEqual, http.StatusNotFound)

			status, _ = do(ts, http.MethodPost, "/get-db-array", `{"target": "/ITEM/", "where": "bogus syntax"}`)
			So(status, ShouldEqual, http.StatusInternalServerError)
		})

		Convey("密码和随机数", func() {
			status, body := do(ts, http.MethodGet, "/auth/nonce", "")
			So(status, ShouldEqual, http.StatusOK)
			var n nonceResponse
			So(json.Unmarshal([]byte(body), &n), ShouldBeNil)
			So(n.Nonce, ShouldHaveLength, 64)

			status, _ = do(ts, http.MethodPost, "/rest-access-page/MGMT_USER", `{"USER_ID": "u1", "PASSWORD": "secret"}`)
			So(status, ShouldEqual, http.StatusBadRequest)

			status, body = do(ts, http.MethodPost, "/rest-access-page/MGMT_USER", `{"USER_ID": "u1", "PASSWORD": "secret", "nonce": "`+n.Nonce+`"}`)
			So(status, ShouldEqual, http.StatusOK)
			var row map[string]any
			So(json.Unmarshal([]byte(body), &row), ShouldBeNil)
			So(auth.VerifyPassword("secret", row["password"].(string)), ShouldBeTrue)
			So(row, ShouldNotContainKey, "nonce")

			status, _ = do(ts, http.MethodPost, "/rest-access-page/MGMT_USER", `{"USER_ID": "u2", "PASSWORD": "secret", "nonce": "`+n.Nonce+`"}`)
			So(status, ShouldEqual, http.StatusBadRequest)
		})

		Convey("重复的键以最后一个为准", func() {
			status, body := do(ts, http.MethodPost, "/rest-access-page/ITEM", `{"ID": 7, "NAME": "a", "NAME": "b"}`)
			So(status, ShouldEqual, http.StatusOK)
			So(body, ShouldEqual, `{"id":7,"name":"b"}`+"\n")
		})

		Convey("登录和会话", func() {
			issue := func() string {
				_, body := do(ts, http.MethodGet, "/api/auth/nonce", "")
				var n nonceResponse
				So(json.Unmarshal([]byte(body), &n), ShouldBeNil)
				return n.Nonce
			}
			status, _ := do(ts, http.MethodPost, "/rest-access-page/MGMT_USER", `{"USER_ID": "u1", "PASSWORD": "digest", "NONCE": "`+issue()+`"}`)
			So(status, ShouldEqual, http.StatusOK)

			status, body := do(ts, http.MethodPost, "/auth/login", `{"user_id": "u1", "password": "wrong", "nonce": "`+issue()+`"}`)
			So(status, ShouldEqual, http.StatusUnauthorized)
			So(body, ShouldContainSubstring, "Invalid user_id or password")

			status, _ = do(ts, http.MethodPost, "/auth/login", `{"user_id": "u1", "password": "digest"}`)
			So(status, ShouldEqual, http.StatusBadRequest)

			res, err := http.Post(ts.URL+"/api/auth/login", "application/json",
				strings.NewReader(`{"USER_ID": "u1", "PASSWORD": "digest", "NONCE": "`+issue()+`"}`))
			So(err, ShouldBeNil)
			buf, _ := io.ReadAll(res.Body)
			res.Body.Close()
			So(res.StatusCode, ShouldEqual, http.StatusOK)
			So(string(buf), ShouldEqual, `{"user":{"id":"u1","name":"","email":""}}`+"\n")

			var cookie *http.Cookie
			for _, c := range res.Cookies() {
				if c.Name == auth.SessionCookie {
					cookie = c
				}
			}
			So(cookie, ShouldNotBeNil)
			So(cookie.HttpOnly, ShouldBeTrue)
			So(cookie.MaxAge, ShouldEqual, 3600)

			withCookie := func(method string, path string) (int, string) {
				req, err := http.NewRequest(method, ts.URL+path, nil)
				So(err, ShouldBeNil)
				req.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: cookie.Value})
				res, err := http.DefaultClient.Do(req)
				So(err, ShouldBeNil)
				defer res.Body.Close()
				buf, _ := io.ReadAll(res.Body)
				return res.StatusCode, string(buf)
			}

			status, body = withCookie(http.MethodGet, "/auth/me")
			So(status, ShouldEqual, http.StatusOK)
			So(body, ShouldContainSubstring, `"id":"u1"`)

			status, body = withCookie(http.MethodPost, "/api/auth/logout")
			So(status, ShouldEqual, http.StatusOK)
			So(body, ShouldEqual, `{"ok":true}`+"\n")

			status, _ = withCookie(http.MethodGet, "/auth/me")
			So(status, ShouldEqual, http.StatusUnauthorized)

			status, _ = do(ts, http.MethodGet, "/auth/me", "")
			So(status, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("表列表和健康检查", func() {
			status, body := do(ts, http.MethodGet, "/tables", "")
			So(status, ShouldEqual, http.StatusOK)
			var tables tablesResponse
			So(json.Unmarshal([]byte(body), &tables), ShouldBeNil)
			So(tables.Tables, ShouldHaveLength, 2)
			So(tables.Tables[0].Source, ShouldEqual, "catalog")
			So(tables.Tables[1].Name, ShouldEqual, "MGMT_USER")
			So(tables.Tables[1].Key, ShouldEqual, "USER_ID")

			status, body = do(ts, http.MethodGet, "/health", "")
			So(status, ShouldEqual, http.StatusOK)
			So(body, ShouldEqual, `{"status":"ok","database":"connected"}`+"\n")

			status, body = do(ts, http.MethodGet, "/metrics", "")
			So(status, ShouldEqual, http.StatusOK)
			So(body, ShouldContainSubstring, "restsql_operations_total")
		})
	})
}

func TestHealthUnavailable(t *testing.T) {
	Convey("数据库不可用", t, func() {
		s, err := NewServer(nil, crud.NewExecutor(nil, nil), failingPinger{})
		So(err, ShouldBeNil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		So(rec.Code, ShouldEqual, http.StatusOK)
		So(rec.Body.String(), ShouldContainSubstring, `"status":"error"`)
		So(rec.Body.String(), ShouldContainSubstring, "connection refused")
	})
}

func TestParseQuery(t *testing.T) {
	Convey("parseQuery", t, func() {
		params, err := parseQuery("B=2&a=1&B=3&name=O%27Brien&x=a+b&&flag")
		So(err, ShouldBeNil)
		So(params, ShouldResemble, query.Params{
			{Key: "B", Value: "3"},
			{Key: "a", Value: "1"},
			{Key: "name", Value: "O'Brien"},
			{Key: "x", Value: "a b"},
			{Key: "flag", Value: ""},
		})

		_, err = parseQuery("a=%zz")
		So(err, ShouldNotBeNil)
	})
}
