package rdb

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind 错误类别，决定对外的状态码
type Kind string

const (
	// KindNotFound 表不存在、更新或删除没有命中记录、表没有主键
	KindNotFound Kind = "NotFound"
	// KindBadRequest 请求体缺少主键字段、没有可更新的字段、删除时无法解析主键
	KindBadRequest Kind = "BadRequest"
	// KindUnauthorized 登录失败、会话不存在或已过期
	KindUnauthorized Kind = "Unauthorized"
	// KindUnavailable 连接池未初始化或数据库不可达
	KindUnavailable Kind = "Unavailable"
	// KindStoreError 执行语句时数据库返回的其他错误，原始信息透传
	KindStoreError Kind = "StoreError"
)

// ErrTableNotFound 用 errors.Is 判断请求的表是否不存在，和记录不存在区分开
var ErrTableNotFound = errors.New("table not found")

type Error struct {
	Kind    Kind
	Message string
	Err     error

	tableMissing bool
}

func (e *Error) Error() string {
	switch {
	case e.Message == "" && e.Err != nil:
		return e.Err.Error()
	case e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == ErrTableNotFound && e.tableMissing
}

func NewNotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func NewTableNotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...), tableMissing: true}
}

func NewBadRequest(format string, args ...any) *Error {
	return &Error{Kind: KindBadRequest, Message: fmt.Sprintf(format, args...)}
}

func NewUnauthorized(format string, args ...any) *Error {
	return &Error{Kind: KindUnauthorized, Message: fmt.Sprintf(format, args...)}
}

func NewUnavailable(err error, message string) *Error {
	return &Error{Kind: KindUnavailable, Message: message, Err: err}
}

func NewStoreError(err error, message string) *Error {
	return &Error{Kind: KindStoreError, Message: message, Err: err}
}

// KindOf 返回错误链上第一个 *Error 的类别，其他错误视为 StoreError，nil 返回空
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStoreError
}

// Row 一行查询结果，列名到值
type Row = map[string]any
