package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hatlonely/restsql/kv/store"
	"github.com/hatlonely/restsql/rdb"
	"github.com/hatlonely/restsql/rdb/database"
	"github.com/hatlonely/restsql/rdb/query"
	"github.com/hatlonely/restsql/ref"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

const (
	PasswordKey = "password"
	NonceKey    = "nonce"

	// bcrypt 只使用前 72 个字节
	bcryptMaxBytes = 72
)

type Options struct {
	// Tables 需要处理密码的表，大小写不敏感
	Tables []string `cfg:"tables" def:"MGMT_USER"`

	NonceTTL   time.Duration `cfg:"nonceTTL" def:"60s"`
	BcryptCost int           `cfg:"bcryptCost" def:"10" validate:"min=4,max=31"`

	// NonceStore 随机数存储，为空时使用进程内的 MapStore
	NonceStore *ref.TypeOptions `cfg:"nonceStore"`

	// UserTable 登录时查询的用户表，需要 user_id 和 password 列
	UserTable  string        `cfg:"userTable" def:"MGMT_USER"`
	SessionTTL time.Duration `cfg:"sessionTTL" def:"168h"`

	// SessionStore 会话存储，为空时使用进程内的 MapStore
	SessionStore *ref.TypeOptions `cfg:"sessionStore"`
}

// Components 由同一份配置创建，随机数管理器被密码钩子和登录共用
type Components struct {
	Nonces   *NonceManager
	Sessions *SessionManager
	Password *PasswordHook
}

// PasswordHook 写入用户表时，校验并消费随机数，把密码替换为 bcrypt 哈希，并去掉随机数字段
type PasswordHook struct {
	tables map[string]struct{}
	nonces *NonceManager
	cost   int
}

func NewPasswordHook(nonces *NonceManager, cost int, tables ...string) *PasswordHook {
	if len(tables) == 0 {
		tables = []string{"MGMT_USER"}
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h := &PasswordHook{tables: map[string]struct{}{}, nonces: nonces, cost: cost}
	for _, t := range tables {
		h.tables[strings.ToUpper(strings.TrimSpace(t))] = struct{}{}
	}
	return h
}

func NewWithOptions(options *Options) (*Components, error) {
	if options == nil {
		options = &Options{}
	}
	nonceStore, err := store.NewStoreWithOptions[string, int64](options.NonceStore)
	if err != nil {
		return nil, errors.WithMessage(err, "create nonce store failed")
	}
	sessionStore, err := store.NewStoreWithOptions[string, string](options.SessionStore)
	if err != nil {
		return nil, errors.WithMessage(err, "create session store failed")
	}
	nonces := NewNonceManager(nonceStore, options.NonceTTL)
	return &Components{
		Nonces:   nonces,
		Sessions: NewSessionManager(sessionStore, options.SessionTTL),
		Password: NewPasswordHook(nonces, options.BcryptCost, options.Tables...),
	}, nil
}

// Authenticator 登录需要数据库，在连接池创建之后调用
func (c *Components) Authenticator(db database.Querier, table string) *Authenticator {
	return NewAuthenticator(db, table, c.Nonces, c.Sessions)
}

func (h *PasswordHook) Process(ctx context.Context, table string, body query.Params) (query.Params, error) {
	if _, ok := h.tables[strings.ToUpper(table)]; !ok {
		return body, nil
	}
	pwKey, pw, ok := body.GetFold(PasswordKey)
	if !ok {
		return body, nil
	}

	_, v, _ := body.GetFold(NonceKey)
	nonce := ""
	if v != nil {
		nonce = fmt.Sprint(v)
	}
	if nonce == "" {
		return nil, rdb.NewBadRequest("NONCE required for password")
	}
	valid, err := h.nonces.Consume(ctx, nonce)
	if err != nil {
		return nil, rdb.NewUnavailable(err, "nonce store unavailable")
	}
	if !valid {
		return nil, rdb.NewBadRequest("Invalid or expired nonce")
	}

	hashed, err := HashPassword(fmt.Sprint(pw), h.cost)
	if err != nil {
		return nil, rdb.NewBadRequest("hash password failed: %v", err)
	}

	out := make(query.Params, 0, len(body))
	for _, kv := range body {
		if strings.EqualFold(kv.Key, NonceKey) {
			continue
		}
		if kv.Key == pwKey {
			kv.Value = hashed
		}
		out = append(out, kv)
	}
	return out, nil
}

func HashPassword(password string, cost int) (string, error) {
	buf, err := bcrypt.GenerateFromPassword([]byte(truncate(password)), cost)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

func VerifyPassword(password string, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(truncate(password))) == nil
}

// truncate 按字节截断到 72，不截断半个字符
func truncate(s string) string {
	if len(s) <= bcryptMaxBytes {
		return s
	}
	n := bcryptMaxBytes
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
