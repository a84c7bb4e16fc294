package query

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hatlonely/restsql/rdb/dialect"
)

// QuoteIdentifier 通配符原样返回，其他名字转小写后加引号
func QuoteIdentifier(name string) string {
	if name == "*" {
		return name
	}
	return dialect.QuoteIdent(strings.ToLower(name))
}

// QuoteIdentifierPreserve 保留大小写，用于已经解析出实际列名的写操作
func QuoteIdentifierPreserve(name string) string {
	if name == "*" {
		return name
	}
	return dialect.QuoteIdent(name)
}

type ValueKind int

const (
	ValueNull ValueKind = iota
	ValueTimestamp
	ValueString
	ValueLiteral
)

func (k ValueKind) String() string {
	switch k {
	case ValueNull:
		return "null"
	case ValueTimestamp:
		return "timestamp"
	case ValueString:
		return "string"
	default:
		return "literal"
	}
}

// Value 分类后的值
type Value struct {
	Kind ValueKind
	Raw  any
}

// FormatValue nil 和空串为 NULL，形如 YYYY-MM-DD HH:MM:SS 的 19 个字符为时间戳，
// 其他字符串为字符串，其余类型（数字、布尔）原样输出
func FormatValue(v any) Value {
	switch x := v.(type) {
	case nil:
		return Value{Kind: ValueNull}
	case string:
		if x == "" {
			return Value{Kind: ValueNull}
		}
		if isTimestamp(x) {
			return Value{Kind: ValueTimestamp, Raw: x}
		}
		return Value{Kind: ValueString, Raw: x}
	default:
		return Value{Kind: ValueLiteral, Raw: v}
	}
}

func isTimestamp(s string) bool {
	if utf8.RuneCountInString(s) != 19 {
		return false
	}
	r := []rune(s)
	return r[4] == '-' && r[7] == '-'
}

// Literal 字符串拼接形式的 SQL 片段，单引号转义
func (v Value) Literal() string {
	switch v.Kind {
	case ValueNull:
		return "NULL"
	case ValueTimestamp:
		return "timestamp '" + v.Raw.(string) + "'"
	case ValueString:
		return "'" + strings.ReplaceAll(v.Raw.(string), "'", "''") + "'"
	default:
		return fmt.Sprint(v.Raw)
	}
}

// ToSQL 参数绑定形式的 SQL 片段，NULL 直接输出，其他值通过占位符绑定
func (v Value) ToSQL(b *Binder) string {
	switch v.Kind {
	case ValueNull:
		return "NULL"
	case ValueTimestamp:
		return b.dialect.Timestamp(b.Bind(v.Raw))
	default:
		return b.Bind(v.arg())
	}
}

// arg int64 放得下的整数按整数绑定，其他数字按原文绑定，由数据库按列类型解析，和 Literal 保持一致
func (v Value) arg() any {
	n, ok := v.Raw.(json.Number)
	if !ok {
		return v.Raw
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	return n.String()
}
