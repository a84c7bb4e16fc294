package query

import (
	"strings"

	"github.com/pkg/errors"
)

// Query WHERE 条件节点
type Query interface {
	ToSQL(b *Binder) (string, error)
}

// MatchAll 没有任何条件时的占位
const MatchAll = "1=1"

// TermQuery 等值条件
type TermQuery struct {
	Field string
	Value any

	// PreserveCase 字段名已经是实际列名，不再转小写
	PreserveCase bool

	// Trim 两边都转成文本并去掉首尾空白后再比较，值先转成字符串去空白，空串视为 NULL
	Trim bool
}

func (q *TermQuery) ToSQL(b *Binder) (string, error) {
	if q.Field == "" {
		return "", errors.New("term query field is empty")
	}
	field := quoteField(q.Field, q.PreserveCase)

	if q.Trim {
		var s string
		if q.Value != nil {
			s = strings.TrimSpace(stringify(q.Value))
		}
		d := b.Dialect()
		return d.TrimText(field) + " = " + d.TrimText(FormatValue(s).ToSQL(b)), nil
	}
	return field + " = " + FormatValue(q.Value).ToSQL(b), nil
}

// TermsQuery IN 条件
type TermsQuery struct {
	Field        string
	Values       []any
	PreserveCase bool
}

func (q *TermsQuery) ToSQL(b *Binder) (string, error) {
	if q.Field == "" {
		return "", errors.New("terms query field is empty")
	}
	if len(q.Values) == 0 {
		return "", errors.Errorf("terms query on %s has no values", q.Field)
	}
	values := make([]string, 0, len(q.Values))
	for _, v := range q.Values {
		values = append(values, FormatValue(v).ToSQL(b))
	}
	return quoteField(q.Field, q.PreserveCase) + " IN (" + strings.Join(values, ", ") + ")", nil
}

// BoolQuery 所有子条件用 AND 连接，没有子条件时为 1=1
type BoolQuery struct {
	Must []Query
}

func (q *BoolQuery) ToSQL(b *Binder) (string, error) {
	if len(q.Must) == 0 {
		return MatchAll, nil
	}
	parts := make([]string, 0, len(q.Must))
	for _, sub := range q.Must {
		sql, err := sub.ToSQL(b)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}
	return strings.Join(parts, " AND "), nil
}

// RawQuery 调用方提供的 WHERE 片段，原样输出
type RawQuery struct {
	SQL string
}

func (q *RawQuery) ToSQL(b *Binder) (string, error) {
	if strings.TrimSpace(q.SQL) == "" {
		return MatchAll, nil
	}
	return q.SQL, nil
}

func quoteField(field string, preserve bool) string {
	if preserve {
		return QuoteIdentifierPreserve(field)
	}
	return QuoteIdentifier(field)
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return Value{Kind: ValueLiteral, Raw: v}.Literal()
}
