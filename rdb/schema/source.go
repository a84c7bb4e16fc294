package schema

import (
	"context"

	"github.com/hatlonely/restsql/rdb"
)

// Source 表定义的一个来源，Resolver 按顺序查询，前面的来源优先
type Source interface {
	Name() string

	// Exists 表名大小写不敏感
	Exists(ctx context.Context, table string) (bool, error)

	// PrimaryKey 没有主键或者来源中没有这张表时返回空
	PrimaryKey(ctx context.Context, table string) (Key, error)

	// Lookup 表不存在时返回 NotFound
	Lookup(ctx context.Context, table string) (*TableSchema, error)
}

// CatalogSource 静态表定义
type CatalogSource struct {
	catalog *Catalog
}

func NewCatalogSource(catalog *Catalog) *CatalogSource {
	return &CatalogSource{catalog: catalog}
}

func (s *CatalogSource) Name() string {
	return SourceCatalog
}

func (s *CatalogSource) Exists(ctx context.Context, table string) (bool, error) {
	return s.catalog.Has(table), nil
}

func (s *CatalogSource) PrimaryKey(ctx context.Context, table string) (Key, error) {
	if t, ok := s.catalog.Lookup(table); ok {
		return t.Key, nil
	}
	return nil, nil
}

func (s *CatalogSource) Lookup(ctx context.Context, table string) (*TableSchema, error) {
	t, ok := s.catalog.Lookup(table)
	if !ok {
		return nil, rdb.NewNotFound("table %s not found in catalog", table)
	}
	return t, nil
}
