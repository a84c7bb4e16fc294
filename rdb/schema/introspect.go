package schema

import (
	"context"
	"fmt"
	"strconv"

	"github.com/hatlonely/restsql/rdb"
	"github.com/hatlonely/restsql/rdb/database"
)

// IntrospectSource 每次调用都实时查询数据库的元数据，不做缓存
type IntrospectSource struct {
	db database.Querier
}

func NewIntrospectSource(db database.Querier) *IntrospectSource {
	return &IntrospectSource{db: db}
}

func (s *IntrospectSource) Name() string {
	return SourceStore
}

func (s *IntrospectSource) Lookup(ctx context.Context, table string) (*TableSchema, error) {
	exists, err := s.Exists(ctx, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, rdb.NewNotFound("table %s not found", table)
	}

	key, err := s.PrimaryKey(ctx, table)
	if err != nil {
		return nil, err
	}
	columns, err := s.Columns(ctx, table)
	if err != nil {
		return nil, err
	}

	t := &TableSchema{Name: table, Key: key}
	for _, c := range columns {
		t.Fields = append(t.Fields, Field{Name: c})
	}
	return t, nil
}

// Exists 表名大小写不敏感
func (s *IntrospectSource) Exists(ctx context.Context, table string) (bool, error) {
	q, args := s.db.Dialect().TableExists(table)
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return false, err
	}
	if len(rows) == 0 {
		return false, nil
	}
	n, err := toInt64(rows[0]["n"])
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PrimaryKey 按主键序号排列，没有主键时返回空
func (s *IntrospectSource) PrimaryKey(ctx context.Context, table string) (Key, error) {
	q, args := s.db.Dialect().PrimaryKey(table)
	return s.strings(ctx, "column_name", q, args)
}

// Columns 按定义顺序返回实际列名
func (s *IntrospectSource) Columns(ctx context.Context, table string) ([]string, error) {
	q, args := s.db.Dialect().Columns(table)
	return s.strings(ctx, "column_name", q, args)
}

func (s *IntrospectSource) BaseTables(ctx context.Context) ([]string, error) {
	q, args := s.db.Dialect().BaseTables()
	return s.strings(ctx, "table_name", q, args)
}

func (s *IntrospectSource) strings(ctx context.Context, column string, q string, args []any) ([]string, error) {
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, toString(row[column]))
	}
	return out, nil
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(v)
	}
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case []byte:
		return strconv.ParseInt(string(x), 10, 64)
	case string:
		return strconv.ParseInt(x, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected count type %T", v)
	}
}
