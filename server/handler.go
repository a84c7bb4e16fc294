package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hatlonely/restsql/auth"
	"github.com/hatlonely/restsql/rdb"
	"github.com/hatlonely/restsql/rdb/crud"
	"github.com/hatlonely/restsql/rdb/query"
	"github.com/hatlonely/restsql/rdb/schema"
)

type errorResponse struct {
	Kind   rdb.Kind `json:"kind"`
	Detail string   `json:"detail"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

type tablesResponse struct {
	Tables []schema.TableInfo `json:"tables"`
}

type nonceResponse struct {
	Nonce string `json:"nonce"`
}

type userResponse struct {
	User *auth.User `json:"user"`
}

type logoutResponse struct {
	OK bool `json:"ok"`
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var req crud.SearchRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rows, err := s.service.Search(r.Context(), &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeRows(w, rows)
}

func (s *Server) fetch(w http.ResponseWriter, r *http.Request) {
	params, err := parseQuery(r.URL.RawQuery)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rows, err := s.service.FetchByEquality(r.Context(), r.PathValue("table"), params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeRows(w, rows)
}

func (s *Server) insert(w http.ResponseWriter, r *http.Request) {
	var body query.Params
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	row, err := s.service.Insert(r.Context(), r.PathValue("table"), body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	var body query.Params
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	row, err := s.service.Update(r.Context(), r.PathValue("table"), body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	params, err := parseQuery(r.URL.RawQuery)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	row, err := s.service.Delete(r.Context(), r.PathValue("table"), params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) tables(w http.ResponseWriter, r *http.Request) {
	tables := s.service.ListTables(r.Context())
	if tables == nil {
		tables = []schema.TableInfo{}
	}
	writeJSON(w, http.StatusOK, tablesResponse{Tables: tables})
}

// health 数据库不可用时也返回 200，状态放在响应体里
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeJSON(w, http.StatusOK, healthResponse{Status: "error", Database: "database pool is not initialized"})
		return
	}
	if err := s.db.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusOK, healthResponse{Status: "error", Database: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Database: "connected"})
}

func (s *Server) nonce(w http.ResponseWriter, r *http.Request) {
	nonce, err := s.nonces.Issue(r.Context())
	if err != nil {
		s.writeError(w, r, rdb.NewUnavailable(err, "issue nonce failed"))
		return
	}
	writeJSON(w, http.StatusOK, nonceResponse{Nonce: nonce})
}

// login 请求体 {"user_id", "password", "nonce"}，键名大小写不敏感，password 为客户端摘要后的值
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var body query.Params
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	user, token, err := s.authenticator.Login(r.Context(), stringParam(body, "user_id"), stringParam(body, "password"), stringParam(body, auth.NonceKey))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.authenticator.Sessions().TTL().Seconds()),
		HttpOnly: true,
		Secure:   s.options.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, userResponse{User: user})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	user, err := s.authenticator.Me(r.Context(), sessionToken(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: user})
}

// logout 会话存储出错时只记录日志，cookie 总是被清除
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.authenticator.Logout(r.Context(), sessionToken(r)); err != nil {
		s.logger.WarnContext(r.Context(), "delete session failed", "error", err.Error())
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.options.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, logoutResponse{OK: true})
}

func sessionToken(r *http.Request) string {
	c, err := r.Cookie(auth.SessionCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

func stringParam(body query.Params, key string) string {
	_, v, ok := body.GetFold(key)
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := rdb.KindOf(err)
	status := statusOf(kind)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "kind", string(kind), "error", err.Error())
	}
	writeJSON(w, status, errorResponse{Kind: kind, Detail: err.Error()})
}

func statusOf(kind rdb.Kind) int {
	switch kind {
	case rdb.KindNotFound:
		return http.StatusNotFound
	case rdb.KindBadRequest:
		return http.StatusBadRequest
	case rdb.KindUnauthorized:
		return http.StatusUnauthorized
	case rdb.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeRows(w http.ResponseWriter, rows []rdb.Row) {
	if rows == nil {
		rows = []rdb.Row{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(r *http.Request, v any) error {
	buf, err := io.ReadAll(r.Body)
	if err != nil {
		return rdb.NewBadRequest("read body failed: %v", err)
	}
	if len(strings.TrimSpace(string(buf))) == 0 {
		return rdb.NewBadRequest("request body is empty")
	}
	if err := json.Unmarshal(buf, v); err != nil {
		return rdb.NewBadRequest("invalid json body: %v", err)
	}
	return nil
}

// parseQuery 保持参数顺序，同名参数以最后一次出现的值为准
func parseQuery(raw string) (query.Params, error) {
	params := query.Params{}
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			return nil, rdb.NewBadRequest("invalid query parameter %q", k)
		}
		value, err := url.QueryUnescape(v)
		if err != nil {
			return nil, rdb.NewBadRequest("invalid query parameter value %q", v)
		}
		params = params.Set(key, value)
	}
	return params, nil
}
