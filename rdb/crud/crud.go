package crud

import (
	"context"

	"github.com/hatlonely/restsql/rdb"
	"github.com/hatlonely/restsql/rdb/query"
	"github.com/hatlonely/restsql/rdb/schema"
)

// SearchRequest 通用查询请求，Target 形如 /TABLE/
type SearchRequest struct {
	Target string           `json:"target"`
	Layout query.Layout     `json:"layout"`
	Query  query.FilterSpec `json:"query"`

	// Where 非空时直接作为 WHERE 条件，忽略 Query
	Where string `json:"where"`

	// Order 以 $ 开头时原样输出
	Order string `json:"order"`
}

type Service interface {
	Search(ctx context.Context, req *SearchRequest) ([]rdb.Row, error)
	FetchByEquality(ctx context.Context, table string, params query.Params) ([]rdb.Row, error)
	Insert(ctx context.Context, table string, body query.Params) (rdb.Row, error)
	Update(ctx context.Context, table string, body query.Params) (rdb.Row, error)
	Delete(ctx context.Context, table string, params query.Params) (rdb.Row, error)
	ListTables(ctx context.Context) []schema.TableInfo
}
