package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/hatlonely/restsql/log"
	"github.com/hatlonely/restsql/rdb"
	"github.com/hatlonely/restsql/rdb/dialect"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type SQLOptions struct {
	Driver   string `cfg:"driver" def:"postgres" validate:"oneof=postgres sqlite3"`
	DSN      string `cfg:"dsn"`
	Host     string `cfg:"host" def:"localhost"`
	Port     int    `cfg:"port" def:"5432"`
	Database string `cfg:"database"`
	Username string `cfg:"username"`
	Password string `cfg:"password"`
	SSLMode  string `cfg:"sslMode" def:"disable"`

	// postgres 元数据查询使用的 schema
	Schema string `cfg:"schema" def:"public"`

	MaxConns        int           `cfg:"maxConns" def:"10"`
	MaxIdle         int           `cfg:"maxIdle" def:"1"`
	ConnMaxLifetime time.Duration `cfg:"connMaxLifetime"`
}

// Querier 一次请求只执行一条语句，返回所有行
type Querier interface {
	Query(ctx context.Context, query string, args ...any) ([]rdb.Row, error)
	Dialect() dialect.Dialect
}

// SQL 共享的连接池，可以被并发使用
type SQL struct {
	db      *sql.DB
	dialect dialect.Dialect
	logger  log.Logger
}

func NewSQLWithOptions(options *SQLOptions) (*SQL, error) {
	if options == nil {
		return nil, errors.New("options cannot be nil")
	}

	d, err := dialect.New(options.Driver, options.Schema)
	if err != nil {
		return nil, err
	}

	dsn := options.DSN
	if dsn == "" {
		switch options.Driver {
		case "postgres":
			u := url.URL{
				Scheme:   "postgres",
				Host:     fmt.Sprintf("%s:%d", options.Host, options.Port),
				Path:     "/" + options.Database,
				RawQuery: url.Values{"sslmode": []string{options.SSLMode}}.Encode(),
			}
			if options.Username != "" {
				u.User = url.UserPassword(options.Username, options.Password)
			}
			dsn = u.String()
		case "sqlite3":
			dsn = options.Database
		}
	}

	db, err := sql.Open(options.Driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "sql.Open %s failed", options.Driver)
	}

	db.SetMaxOpenConns(options.MaxConns)
	db.SetMaxIdleConns(options.MaxIdle)
	if options.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(options.ConnMaxLifetime)
	}

	s := NewSQLWithDB(db, d)
	if err := s.Ping(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLWithDB 包装已经打开的连接池
func NewSQLWithDB(db *sql.DB, d dialect.Dialect) *SQL {
	return &SQL{db: db, dialect: d, logger: log.Default()}
}

func (s *SQL) SetLogger(logger log.Logger) {
	s.logger = logger
}

func (s *SQL) Dialect() dialect.Dialect {
	return s.dialect
}

func (s *SQL) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return rdb.NewUnavailable(nil, "database pool is not initialized")
	}
	if err := s.db.PingContext(ctx); err != nil {
		return classify(err)
	}
	return nil
}

func (s *SQL) Query(ctx context.Context, query string, args ...any) ([]rdb.Row, error) {
	if s == nil || s.db == nil {
		return nil, rdb.NewUnavailable(nil, "database pool is not initialized")
	}

	s.logger.DebugContext(ctx, "execute sql", "sql", query, "args", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, classify(err)
	}

	var results []rdb.Row
	for rows.Next() {
		row, err := scanRow(rows, columns)
		if err != nil {
			return nil, classify(err)
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return results, nil
}

// Exec 执行不返回结果的语句，返回影响的行数
func (s *SQL) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	if s == nil || s.db == nil {
		return 0, rdb.NewUnavailable(nil, "database pool is not initialized")
	}

	s.logger.DebugContext(ctx, "execute sql", "sql", query, "args", len(args))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classify(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}

func (s *SQL) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func scanRow(rows *sql.Rows, columns []string) (rdb.Row, error) {
	values := make([]any, len(columns))
	pointers := make([]any, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}
	if err := rows.Scan(pointers...); err != nil {
		return nil, err
	}

	row := make(rdb.Row, len(columns))
	for i, column := range columns {
		row[column] = values[i]
	}
	return row, nil
}

// classify 连接类错误归为 Unavailable，其他错误归为 StoreError 并保留数据库的原始信息
func classify(err error) error {
	if err == nil {
		return nil
	}

	var netErr net.Error
	switch {
	case errors.Is(err, sql.ErrConnDone), errors.Is(err, driver.ErrBadConn), errors.As(err, &netErr):
		return rdb.NewUnavailable(err, "database unavailable")
	default:
		return rdb.NewStoreError(err, "")
	}
}
