package schema

import (
	"context"
	"strings"

	"github.com/hatlonely/restsql/log"
	"github.com/hatlonely/restsql/rdb"
	"github.com/hatlonely/restsql/rdb/database"
)

const (
	SourceCatalog = "catalog"
	SourceStore   = "store"
)

// Resolution 一张表的解析结果
type Resolution struct {
	Exists     bool
	PrimaryKey Key

	// ActualColumns 小写列名到实际列名
	ActualColumns map[string]string
}

// WriteTarget 更新和删除使用的主键
type WriteTarget struct {
	Key      Key
	TrimKeys bool
}

// TableInfo 表列表中的一项
type TableInfo struct {
	Name       string `json:"name"`
	Key        any    `json:"key"`
	Comment    string `json:"comment"`
	FieldCount int    `json:"field_count"`
	Source     string `json:"source"`
}

// Resolver 先查静态定义，没有时实时查询数据库
type Resolver struct {
	catalog    *Catalog
	static     *CatalogSource
	introspect *IntrospectSource
	sources    []Source
	logger     log.Logger
}

func NewResolver(catalog *Catalog, db database.Querier) *Resolver {
	r := &Resolver{
		catalog:    catalog,
		static:     NewCatalogSource(catalog),
		introspect: NewIntrospectSource(db),
		logger:     log.Default(),
	}
	r.sources = []Source{r.static, r.introspect}
	return r
}

func (r *Resolver) SetLogger(logger log.Logger) {
	r.logger = logger
}

// Sources 按查询顺序返回表定义来源
func (r *Resolver) Sources() []Source {
	return r.sources
}

// Lookup 依次查询各个来源，返回第一个找到的表定义
func (r *Resolver) Lookup(ctx context.Context, table string) (*TableSchema, error) {
	var lastErr error
	for _, s := range r.Sources() {
		t, err := s.Lookup(ctx, table)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// Exists 任意一个来源找到即存在，元数据查询失败时视为不存在
func (r *Resolver) Exists(ctx context.Context, table string) bool {
	for _, s := range r.sources {
		exists, err := s.Exists(ctx, table)
		if err != nil {
			r.logger.WarnContext(ctx, "check table exists failed", "table", table, "source", s.Name(), "error", err.Error())
			continue
		}
		if exists {
			return true
		}
	}
	return false
}

// PrimaryKey 使用第一个给出主键的来源，静态定义在前，数据库按主键序号排列，都没有时返回 NotFound
func (r *Resolver) PrimaryKey(ctx context.Context, table string) (Key, error) {
	var lastErr error
	for _, s := range r.sources {
		key, err := s.PrimaryKey(ctx, table)
		if err != nil {
			lastErr = err
			continue
		}
		if len(key) > 0 {
			return key, nil
		}
	}
	if lastErr != nil {
		return nil, rdb.NewNotFound("failed to get primary key for table %s: %v", table, lastErr)
	}
	return nil, rdb.NewNotFound("table %s has no primary key", table)
}

// WriteTarget 主键之上应用表的 Override
func (r *Resolver) WriteTarget(ctx context.Context, table string) (*WriteTarget, error) {
	key, err := r.PrimaryKey(ctx, table)
	if err != nil {
		return nil, err
	}
	target := &WriteTarget{Key: key}
	if t, err := r.static.Lookup(ctx, table); err == nil && t.Override != nil {
		if len(t.Override.WriteKey) > 0 {
			target.Key = t.Override.WriteKey
		}
		target.TrimKeys = t.Override.TrimKeys
	}
	return target, nil
}

// ActualColumns 每次实时查询，失败时返回空 map，调用方退回到小写列名
func (r *Resolver) ActualColumns(ctx context.Context, table string) map[string]string {
	columns, err := r.introspect.Columns(ctx, table)
	if err != nil {
		r.logger.WarnContext(ctx, "query actual columns failed", "table", table, "error", err.Error())
		return map[string]string{}
	}
	m := make(map[string]string, len(columns))
	for _, c := range columns {
		m[strings.ToLower(c)] = c
	}
	return m
}

// Resolve 汇总存在性、主键和实际列名，表不存在时只返回 Exists=false
func (r *Resolver) Resolve(ctx context.Context, table string) (*Resolution, error) {
	if !r.Exists(ctx, table) {
		return &Resolution{ActualColumns: map[string]string{}}, nil
	}
	key, err := r.PrimaryKey(ctx, table)
	if err != nil && rdb.KindOf(err) != rdb.KindNotFound {
		return nil, err
	}
	return &Resolution{
		Exists:        true,
		PrimaryKey:    key,
		ActualColumns: r.ActualColumns(ctx, table),
	}, nil
}

// ListTables 静态定义的表在前，然后是数据库中未定义的普通表。查询数据库失败时只返回静态定义的表
func (r *Resolver) ListTables(ctx context.Context) []TableInfo {
	tables := r.catalog.Tables()
	out := make([]TableInfo, 0, len(tables))
	for _, t := range tables {
		out = append(out, TableInfo{
			Name:       t.Name,
			Key:        t.Key.Value(),
			Comment:    t.Comment,
			FieldCount: len(t.Fields),
			Source:     SourceCatalog,
		})
	}

	names, err := r.introspect.BaseTables(ctx)
	if err != nil {
		r.logger.WarnContext(ctx, "list store tables failed", "error", err.Error())
		return out
	}
	for _, name := range names {
		if r.catalog.Has(name) {
			continue
		}
		info := TableInfo{Name: name, Source: SourceStore}
		if key, err := r.introspect.PrimaryKey(ctx, name); err == nil {
			info.Key = key.Value()
		}
		out = append(out, info)
	}
	return out
}
