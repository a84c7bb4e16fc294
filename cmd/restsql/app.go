package main

import (
	"os"

	"github.com/hatlonely/restsql/auth"
	"github.com/hatlonely/restsql/cfg"
	"github.com/hatlonely/restsql/cfg/storage"
	"github.com/hatlonely/restsql/cfg/validator"
	"github.com/hatlonely/restsql/log"
	"github.com/hatlonely/restsql/rdb/crud"
	"github.com/hatlonely/restsql/rdb/database"
	"github.com/hatlonely/restsql/rdb/schema"
	"github.com/hatlonely/restsql/ref"
	"github.com/hatlonely/restsql/server"
	"github.com/pkg/errors"
)

// EnvDatabaseURL 设置时覆盖 database.dsn
const EnvDatabaseURL = "DATABASE_URL"

type CatalogOptions struct {
	// Path 表定义文件，和 Tables 同时存在时合并，文件中的表在前
	Path   string               `cfg:"path"`
	Tables []schema.TableSchema `cfg:"tables" validate:"dive"`
}

type Options struct {
	Database      database.SQLOptions    `cfg:"database"`
	Catalog       CatalogOptions         `cfg:"catalog"`
	Auth          auth.Options           `cfg:"auth"`
	Logger        *ref.TypeOptions       `cfg:"logger"`
	Observability crud.ObservableOptions `cfg:"observability"`
	Server        server.Options         `cfg:"server"`
}

// LoadOptions path 为空时只使用默认值
func LoadOptions(path string) (*Options, error) {
	var options Options
	if path == "" {
		if err := storage.SetDefaults(&options); err != nil {
			return nil, errors.WithMessage(err, "set defaults failed")
		}
		if err := validator.ValidateStruct(&options); err != nil {
			return nil, errors.WithMessage(err, "validation failed")
		}
	} else {
		conf, err := cfg.NewConfig(path)
		if err != nil {
			return nil, err
		}
		if err := conf.ConvertTo(&options); err != nil {
			return nil, errors.WithMessagef(err, "parse config %s failed", path)
		}
	}

	if dsn := os.Getenv(EnvDatabaseURL); dsn != "" {
		options.Database.DSN = dsn
	}
	return &options, nil
}

// App 持有进程内共享的资源，Close 时释放
type App struct {
	Logger   log.Logger
	DB       *database.SQL
	Catalog  *schema.Catalog
	Resolver *schema.Resolver
	Service  crud.Service
	Nonces   *auth.NonceManager

	Authenticator *auth.Authenticator
}

func NewApp(options *Options) (*App, error) {
	logger, err := log.NewLoggerWithOptions(options.Logger)
	if err != nil {
		return nil, errors.WithMessage(err, "create logger failed")
	}

	catalog, err := loadCatalog(&options.Catalog)
	if err != nil {
		return nil, err
	}

	db, err := database.NewSQLWithOptions(&options.Database)
	if err != nil {
		return nil, errors.WithMessage(err, "connect database failed")
	}
	db.SetLogger(logger.WithGroup("sql"))

	components, err := auth.NewWithOptions(&options.Auth)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	resolver := schema.NewResolver(catalog, db)
	resolver.SetLogger(logger.WithGroup("schema"))

	executor := crud.NewExecutor(db, resolver,
		crud.WithWriteHook(components.Password),
		crud.WithLogger(logger.WithGroup("executor")),
	)
	service, err := crud.NewObservableService(executor, &options.Observability, crud.WithObservableLogger(logger))
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &App{
		Logger:   logger,
		DB:       db,
		Catalog:  catalog,
		Resolver: resolver,
		Service:  service,
		Nonces:   components.Nonces,

		Authenticator: components.Authenticator(db, options.Auth.UserTable),
	}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}

func loadCatalog(options *CatalogOptions) (*schema.Catalog, error) {
	var tables []schema.TableSchema
	if options.Path != "" {
		c, err := schema.LoadCatalog(options.Path)
		if err != nil {
			return nil, err
		}
		tables = c.Tables()
	}
	tables = append(tables, options.Tables...)
	return schema.NewCatalog(tables)
}
