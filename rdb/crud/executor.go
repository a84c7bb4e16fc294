package crud

import (
	"context"
	"fmt"
	"strings"

	"github.com/hatlonely/restsql/log"
	"github.com/hatlonely/restsql/rdb"
	"github.com/hatlonely/restsql/rdb/database"
	"github.com/hatlonely/restsql/rdb/hook"
	"github.com/hatlonely/restsql/rdb/query"
	"github.com/hatlonely/restsql/rdb/schema"
	"github.com/pkg/errors"
)

// KeyParam 删除时按位置传入主键值的参数名，多个值用逗号分隔
const KeyParam = "key"

type Option func(*Executor)

func WithWriteHook(h hook.WriteHook) Option {
	return func(e *Executor) {
		if h != nil {
			e.hook = h
		}
	}
}

func WithLogger(logger log.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Executor 每个请求只执行一条语句，失败立即返回，不重试
type Executor struct {
	db       database.Querier
	resolver *schema.Resolver
	hook     hook.WriteHook
	logger   log.Logger
}

func NewExecutor(db database.Querier, resolver *schema.Resolver, opts ...Option) *Executor {
	e := &Executor{
		db:       db,
		resolver: resolver,
		hook:     hook.Nop,
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) Search(ctx context.Context, req *SearchRequest) ([]rdb.Row, error) {
	if req == nil {
		return nil, rdb.NewBadRequest("request is empty")
	}
	table := trimTarget(req.Target)
	if err := e.validateTable(ctx, table); err != nil {
		return nil, err
	}

	fields, err := query.Fields(req.Layout)
	if err != nil {
		return nil, err
	}

	b := query.NewBinder(e.db.Dialect())
	var cond query.Query = &query.RawQuery{SQL: req.Where}
	if strings.TrimSpace(req.Where) == "" {
		cond = query.Conditions(req.Query, -1)
	}
	where, err := cond.ToSQL(b)
	if err != nil {
		return nil, rdb.NewBadRequest("build condition failed: %v", err)
	}

	sql := "SELECT " + fields + " FROM " + query.QuoteIdentifier(table)
	if where != query.MatchAll {
		sql += " WHERE " + where
	}
	if order := query.Order(req.Order); order != "" {
		sql += " ORDER BY " + order
	}
	return e.queryRows(ctx, sql, b.Args())
}

func (e *Executor) FetchByEquality(ctx context.Context, table string, params query.Params) ([]rdb.Row, error) {
	if err := e.validateTable(ctx, table); err != nil {
		return nil, err
	}

	var order string
	if v, ok := params.Get(query.KeyOrder); ok && v != nil {
		order = query.Order(fmt.Sprint(v))
	}
	params = params.Without(query.KeyOrder, query.KeyPreventCache)

	b := query.NewBinder(e.db.Dialect())
	where, err := query.Conditions(query.FilterSpec{params}, len(params)).ToSQL(b)
	if err != nil {
		return nil, rdb.NewBadRequest("build condition failed: %v", err)
	}

	sql := "SELECT * FROM " + query.QuoteIdentifier(table) + " WHERE " + where
	if order != "" {
		sql += " ORDER BY " + order
	}
	return e.queryRows(ctx, sql, b.Args())
}

func (e *Executor) Insert(ctx context.Context, table string, body query.Params) (rdb.Row, error) {
	if err := e.validateTable(ctx, table); err != nil {
		return nil, err
	}
	body, err := e.process(ctx, table, body)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, rdb.NewBadRequest("no fields to insert")
	}

	actual := e.resolver.ActualColumns(ctx, table)
	b := query.NewBinder(e.db.Dialect())
	columns := make([]string, 0, len(body))
	values := make([]string, 0, len(body))
	for _, kv := range body {
		columns = append(columns, column(actual, kv.Key))
		values = append(values, query.FormatValue(kv.Value).ToSQL(b))
	}

	sql := "INSERT INTO " + query.QuoteIdentifier(table) +
		" (" + strings.Join(columns, ", ") + ") VALUES (" + strings.Join(values, ", ") + ") RETURNING *"
	rows, err := e.queryRows(ctx, sql, b.Args())
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, rdb.NewStoreError(nil, "insert returned no row")
	}
	return rows[0], nil
}

func (e *Executor) Update(ctx context.Context, table string, body query.Params) (rdb.Row, error) {
	if err := e.validateTable(ctx, table); err != nil {
		return nil, err
	}
	body, err := e.process(ctx, table, body)
	if err != nil {
		return nil, err
	}
	target, err := e.resolver.WriteTarget(ctx, table)
	if err != nil {
		return nil, err
	}

	keys := make(query.Params, 0, len(target.Key))
	for _, k := range target.Key {
		_, v, ok := body.GetFold(k)
		if !ok {
			return nil, rdb.NewBadRequest("key field %s not found", k)
		}
		keys = append(keys, query.Pair{Key: k, Value: v})
	}

	fields := make(query.Params, 0, len(body))
	for _, kv := range body {
		if _, _, isKey := keys.GetFold(kv.Key); !isKey {
			fields = append(fields, kv)
		}
	}
	if len(fields) == 0 {
		return nil, rdb.NewBadRequest("no fields to update")
	}

	actual := e.resolver.ActualColumns(ctx, table)
	b := query.NewBinder(e.db.Dialect())
	sets := make([]string, 0, len(fields))
	for _, kv := range fields {
		sets = append(sets, column(actual, kv.Key)+" = "+query.FormatValue(kv.Value).ToSQL(b))
	}
	where, err := keyCondition(actual, keys, target.TrimKeys).ToSQL(b)
	if err != nil {
		return nil, rdb.NewBadRequest("build condition failed: %v", err)
	}

	sql := "UPDATE " + query.QuoteIdentifier(table) + " SET " + strings.Join(sets, ", ") + " WHERE " + where + " RETURNING *"
	return e.queryOne(ctx, sql, b.Args())
}

func (e *Executor) Delete(ctx context.Context, table string, params query.Params) (rdb.Row, error) {
	if err := e.validateTable(ctx, table); err != nil {
		return nil, err
	}
	target, err := e.resolver.WriteTarget(ctx, table)
	if err != nil {
		return nil, err
	}
	keys, err := deleteKeys(target.Key, params)
	if err != nil {
		return nil, err
	}

	actual := e.resolver.ActualColumns(ctx, table)
	b := query.NewBinder(e.db.Dialect())
	where, err := keyCondition(actual, keys, false).ToSQL(b)
	if err != nil {
		return nil, rdb.NewBadRequest("build condition failed: %v", err)
	}

	sql := "DELETE FROM " + query.QuoteIdentifier(table) + " WHERE " + where + " RETURNING *"
	return e.queryOne(ctx, sql, b.Args())
}

func (e *Executor) ListTables(ctx context.Context) []schema.TableInfo {
	return e.resolver.ListTables(ctx)
}

func (e *Executor) validateTable(ctx context.Context, table string) error {
	if table == "" {
		return rdb.NewTableNotFound("table name is empty")
	}
	if !e.resolver.Exists(ctx, table) {
		return rdb.NewTableNotFound("table %s not found", table)
	}
	return nil
}

func (e *Executor) process(ctx context.Context, table string, body query.Params) (query.Params, error) {
	out, err := e.hook.Process(ctx, table, body)
	if err != nil {
		var re *rdb.Error
		if errors.As(err, &re) {
			return nil, err
		}
		return nil, rdb.NewBadRequest("%v", err)
	}
	return out, nil
}

func (e *Executor) queryRows(ctx context.Context, sql string, args []any) ([]rdb.Row, error) {
	rows, err := e.db.Query(ctx, sql, args...)
	if err != nil {
		e.logger.DebugContext(ctx, "statement failed", "sql", sql, "error", err.Error())
		return nil, err
	}
	for i := range rows {
		rows[i] = normalize(rows[i])
	}
	return rows, nil
}

func (e *Executor) queryOne(ctx context.Context, sql string, args []any) (rdb.Row, error) {
	rows, err := e.queryRows(ctx, sql, args)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, rdb.NewNotFound("record not found")
	}
	return rows[0], nil
}

// deleteKeys 先找每个主键列对应的单独参数（大小写不敏感），
// 找不到时把 key 参数按逗号分隔后按位置对应
func deleteKeys(key schema.Key, params query.Params) (query.Params, error) {
	if len(key) == 1 {
		if _, v, ok := params.GetFold(key[0]); ok {
			return query.Params{{Key: key[0], Value: v}}, nil
		}
		if _, v, ok := params.GetFold(KeyParam); ok {
			return query.Params{{Key: key[0], Value: v}}, nil
		}
		return nil, rdb.NewBadRequest("key parameter not found")
	}

	// 大小写不敏感的匹配已经覆盖了精确匹配，不需要再按原名找一遍
	if keys, ok := collectKeys(key, params); ok {
		return keys, nil
	}

	_, v, ok := params.GetFold(KeyParam)
	if !ok || v == nil {
		return nil, rdb.NewBadRequest("key field %s not found in query parameters", key[0])
	}
	parts := strings.Split(fmt.Sprint(v), ",")
	if len(parts) != len(key) {
		return nil, rdb.NewBadRequest("key must have %d comma-separated values", len(key))
	}
	keys := make(query.Params, 0, len(key))
	for i, k := range key {
		keys = append(keys, query.Pair{Key: k, Value: strings.TrimSpace(parts[i])})
	}
	return keys, nil
}

func collectKeys(key schema.Key, params query.Params) (query.Params, bool) {
	keys := make(query.Params, 0, len(key))
	for _, k := range key {
		_, v, ok := params.GetFold(k)
		if !ok {
			return nil, false
		}
		keys = append(keys, query.Pair{Key: k, Value: v})
	}
	return keys, true
}

func keyCondition(actual map[string]string, keys query.Params, trim bool) query.Query {
	q := &query.BoolQuery{}
	for _, kv := range keys {
		q.Must = append(q.Must, &query.TermQuery{
			Field:        actualName(actual, kv.Key),
			Value:        kv.Value,
			PreserveCase: true,
			Trim:         trim,
		})
	}
	return q
}

// actualName 查不到实际列名时退回到小写
func actualName(actual map[string]string, key string) string {
	lower := strings.ToLower(key)
	if name, ok := actual[lower]; ok {
		return name
	}
	return lower
}

func column(actual map[string]string, key string) string {
	return query.QuoteIdentifierPreserve(actualName(actual, key))
}

// normalize 列名转小写，[]byte 转成字符串
func normalize(row rdb.Row) rdb.Row {
	out := make(rdb.Row, len(row))
	for k, v := range row {
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		out[strings.ToLower(k)] = v
	}
	return out
}

func trimTarget(target string) string {
	return strings.Trim(target, "/")
}
