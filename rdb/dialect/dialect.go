package dialect

import (
	"fmt"
	"strings"
)

// Dialect 屏蔽不同数据库在占位符、类型转换和元数据查询上的差异
// 元数据查询返回的列统一使用别名 n、column_name、table_name
type Dialect interface {
	Name() string

	// Placeholder 第 n 个参数的占位符，n 从 1 开始
	Placeholder(n int) string

	// Timestamp 把绑定的参数转换成时间戳，没有时间戳类型的库原样返回占位符
	Timestamp(placeholder string) string

	// TrimText 转成文本后去掉首尾空白，用于定长字符列的比较
	TrimText(expr string) string

	// TableExists 表名大小写不敏感的存在性查询，结果列 n 为匹配的表数量
	TableExists(table string) (string, []any)

	// Columns 按定义顺序返回表的实际列名，结果列 column_name
	Columns(table string) (string, []any)

	// PrimaryKey 按主键序号返回主键列，结果列 column_name
	PrimaryKey(table string) (string, []any)

	// BaseTables 返回所有普通表，结果列 table_name
	BaseTables() (string, []any)
}

// New 根据 database/sql 驱动名选择方言
func New(driver string, schema string) (Dialect, error) {
	switch driver {
	case "postgres", "pgx":
		return NewPostgres(schema), nil
	case "sqlite3", "sqlite":
		return NewSQLite(), nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}
}

// QuoteIdent 用双引号包裹标识符，内部的双引号转义
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func trimText(expr string) string {
	return "TRIM(CAST(" + expr + " AS TEXT))"
}
