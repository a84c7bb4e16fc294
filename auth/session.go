package auth

import (
	"context"
	"time"

	"github.com/hatlonely/restsql/kv/store"
	"github.com/pkg/errors"
)

// SessionCookie 登录令牌所在的 cookie
const SessionCookie = "session_token"

// SessionManager 登录令牌到用户 ID，过期由存储负责
type SessionManager struct {
	store store.Store[string, string]
	ttl   time.Duration
}

func NewSessionManager(s store.Store[string, string], ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &SessionManager{store: s, ttl: ttl}
}

func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

func (m *SessionManager) Create(ctx context.Context, userID string) (string, error) {
	token, err := randomToken()
	if err != nil {
		return "", errors.WithMessage(err, "generate session token failed")
	}
	if err := m.store.Set(ctx, token, userID, store.WithExpiration(m.ttl), store.WithIfNotExist()); err != nil {
		return "", errors.WithMessage(err, "save session failed")
	}
	return token, nil
}

// Get 令牌不存在或已过期时返回 false
func (m *SessionManager) Get(ctx context.Context, token string) (string, bool, error) {
	if token == "" {
		return "", false, nil
	}
	userID, err := m.store.Get(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return "", false, nil
		}
		return "", false, errors.WithMessage(err, "get session failed")
	}
	return userID, true, nil
}

func (m *SessionManager) Delete(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return m.store.Del(ctx, token)
}
