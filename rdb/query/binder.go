package query

import (
	"github.com/hatlonely/restsql/rdb/dialect"
)

// Binder 收集绑定参数并生成对应方言的占位符，调用方传入的原始片段不会被改写
type Binder struct {
	dialect dialect.Dialect
	args    []any
}

func NewBinder(d dialect.Dialect) *Binder {
	return &Binder{dialect: d}
}

func (b *Binder) Bind(v any) string {
	b.args = append(b.args, v)
	return b.dialect.Placeholder(len(b.args))
}

func (b *Binder) Args() []any {
	return b.args
}

func (b *Binder) Dialect() dialect.Dialect {
	return b.dialect
}
