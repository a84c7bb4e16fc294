package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/hatlonely/restsql/kv/store"
	"github.com/pkg/errors"
)

const tokenBytes = 32

// NonceManager 一次性随机数，值为过期时间的毫秒时间戳
type NonceManager struct {
	store store.Store[string, int64]
	ttl   time.Duration
	now   func() time.Time
}

func NewNonceManager(s store.Store[string, int64], ttl time.Duration) *NonceManager {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &NonceManager{store: s, ttl: ttl, now: time.Now}
}

func (m *NonceManager) TTL() time.Duration {
	return m.ttl
}

// Issue 生成 64 个字符的十六进制随机数
func (m *NonceManager) Issue(ctx context.Context) (string, error) {
	nonce, err := randomToken()
	if err != nil {
		return "", errors.WithMessage(err, "generate nonce failed")
	}

	expireAt := m.now().Add(m.ttl).UnixMilli()
	if err := m.store.Set(ctx, nonce, expireAt, store.WithExpiration(m.ttl), store.WithIfNotExist()); err != nil {
		return "", errors.WithMessage(err, "save nonce failed")
	}
	return nonce, nil
}

// Consume 随机数只能使用一次，不存在或者已过期返回 false
func (m *NonceManager) Consume(ctx context.Context, nonce string) (bool, error) {
	if nonce == "" {
		return false, nil
	}
	expireAt, err := m.store.GetDel(ctx, nonce)
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return false, nil
		}
		return false, errors.WithMessage(err, "consume nonce failed")
	}
	return m.now().UnixMilli() <= expireAt, nil
}

// randomToken 32 个字节的随机数，十六进制编码
func randomToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "read random bytes failed")
	}
	return hex.EncodeToString(buf), nil
}
