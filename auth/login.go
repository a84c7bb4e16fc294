package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/hatlonely/restsql/rdb"
	"github.com/hatlonely/restsql/rdb/database"
	"github.com/hatlonely/restsql/rdb/query"
)

const userIDField = "user_id"

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Authenticator 用户表中的 user_id 和 bcrypt 密码登录，登录成功后发放会话令牌
type Authenticator struct {
	db       database.Querier
	table    string
	nonces   *NonceManager
	sessions *SessionManager
}

func NewAuthenticator(db database.Querier, table string, nonces *NonceManager, sessions *SessionManager) *Authenticator {
	if table == "" {
		table = "MGMT_USER"
	}
	return &Authenticator{db: db, table: table, nonces: nonces, sessions: sessions}
}

func (a *Authenticator) Sessions() *SessionManager {
	return a.sessions
}

// Login 随机数在查询用户之前消费，失败的登录同样会用掉随机数
func (a *Authenticator) Login(ctx context.Context, userID string, password string, nonce string) (*User, string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, "", rdb.NewBadRequest("user_id required")
	}
	if password == "" {
		return nil, "", rdb.NewBadRequest("password required")
	}
	if nonce == "" {
		return nil, "", rdb.NewBadRequest("NONCE required for login")
	}
	valid, err := a.nonces.Consume(ctx, nonce)
	if err != nil {
		return nil, "", rdb.NewUnavailable(err, "nonce store unavailable")
	}
	if !valid {
		return nil, "", rdb.NewBadRequest("Invalid or expired nonce")
	}

	row, err := a.findUser(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	if row == nil || !VerifyPassword(password, field(row, "password")) {
		return nil, "", rdb.NewUnauthorized("Invalid user_id or password")
	}

	token, err := a.sessions.Create(ctx, userID)
	if err != nil {
		return nil, "", rdb.NewUnavailable(err, "session store unavailable")
	}
	return toUser(row, userID), token, nil
}

// Me 令牌对应的用户已经被删除时同时删除令牌
func (a *Authenticator) Me(ctx context.Context, token string) (*User, error) {
	userID, ok, err := a.sessions.Get(ctx, token)
	if err != nil {
		return nil, rdb.NewUnavailable(err, "session store unavailable")
	}
	if !ok {
		return nil, rdb.NewUnauthorized("Not authenticated")
	}
	row, err := a.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		_ = a.sessions.Delete(ctx, token)
		return nil, rdb.NewUnauthorized("User not found")
	}
	return toUser(row, userID), nil
}

func (a *Authenticator) Logout(ctx context.Context, token string) error {
	if err := a.sessions.Delete(ctx, token); err != nil {
		return rdb.NewUnavailable(err, "session store unavailable")
	}
	return nil
}

// findUser user_id 去掉首尾空白后比较，没有找到时返回 nil
func (a *Authenticator) findUser(ctx context.Context, userID string) (rdb.Row, error) {
	b := query.NewBinder(a.db.Dialect())
	where, err := (&query.TermQuery{Field: userIDField, Value: userID, Trim: true}).ToSQL(b)
	if err != nil {
		return nil, rdb.NewBadRequest("build condition failed: %v", err)
	}
	rows, err := a.db.Query(ctx, "SELECT * FROM "+query.QuoteIdentifier(a.table)+" WHERE "+where, b.Args()...)
	if err != nil {
		if rdb.KindOf(err) == rdb.KindUnavailable {
			return nil, err
		}
		return nil, rdb.NewUnavailable(err, "Database error")
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func toUser(row rdb.Row, userID string) *User {
	u := &User{
		ID:    field(row, userIDField),
		Name:  field(row, "user_name"),
		Email: field(row, "email"),
	}
	if u.ID == "" {
		u.ID = userID
	}
	return u
}

// field 列名大小写不敏感，值去掉首尾空白
func field(row rdb.Row, name string) string {
	for k, v := range row {
		if !strings.EqualFold(k, name) || v == nil {
			continue
		}
		if b, ok := v.([]byte); ok {
			return strings.TrimSpace(string(b))
		}
		return strings.TrimSpace(fmt.Sprint(v))
	}
	return ""
}
