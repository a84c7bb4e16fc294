package hook

import (
	"context"

	"github.com/hatlonely/restsql/rdb/query"
)

// WriteHook 插入和更新之前改写请求体，返回的参数替代原来的请求体
type WriteHook interface {
	Process(ctx context.Context, table string, body query.Params) (query.Params, error)
}

type Func func(ctx context.Context, table string, body query.Params) (query.Params, error)

func (f Func) Process(ctx context.Context, table string, body query.Params) (query.Params, error) {
	return f(ctx, table, body)
}

// Nop 原样返回请求体
var Nop WriteHook = Func(func(ctx context.Context, table string, body query.Params) (query.Params, error) {
	return body, nil
})

// Chain 依次执行，任意一个失败即返回
type Chain []WriteHook

func (c Chain) Process(ctx context.Context, table string, body query.Params) (query.Params, error) {
	var err error
	for _, h := range c {
		if h == nil {
			continue
		}
		if body, err = h.Process(ctx, table, body); err != nil {
			return nil, err
		}
	}
	return body, nil
}
