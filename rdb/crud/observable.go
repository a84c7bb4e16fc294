package crud

import (
	"context"
	"fmt"
	"time"

	"github.com/hatlonely/restsql/log"
	"github.com/hatlonely/restsql/rdb"
	"github.com/hatlonely/restsql/rdb/query"
	"github.com/hatlonely/restsql/rdb/schema"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type ObservableOptions struct {
	// EnableMetrics 是否启用指标收集
	EnableMetrics bool `cfg:"enableMetrics" def:"true"`

	// EnableLogging 是否启用日志记录
	EnableLogging bool `cfg:"enableLogging" def:"true"`

	// EnableTracing 是否启用分布式追踪
	EnableTracing bool `cfg:"enableTracing" def:"false"`

	// Name 组件名称，作为指标名前缀、日志的 component 字段和 span 的 component 属性
	Name string `cfg:"name" def:"restsql"`
}

// ObservableMetrics 封装 prometheus 指标
type ObservableMetrics struct {
	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	activeOperations  *prometheus.GaugeVec
	rowsHistogram     *prometheus.HistogramVec
}

// NewObservableMetrics 创建并注册指标，registerer 为 nil 时注册到默认 registry，
// 同名指标已经注册时复用已有的指标
func NewObservableMetrics(name string, registerer prometheus.Registerer) (*ObservableMetrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	operationCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: name + "_operations_total",
			Help: "Total number of crud operations",
		},
		[]string{"operation", "table", "status"},
	)
	operationDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    name + "_operation_duration_seconds",
			Help:    "Duration of crud operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
		[]string{"operation"},
	)
	activeOperations := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: name + "_active_operations",
			Help: "Number of active crud operations",
		},
		[]string{"operation"},
	)
	rowsHistogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    name + "_rows",
			Help:    "Number of rows returned by crud operations",
			Buckets: []float64{0, 1, 10, 100, 1000, 10000},
		},
		[]string{"operation"},
	)

	metrics := &ObservableMetrics{}
	var err error
	if metrics.operationCounter, err = register(registerer, operationCounter); err != nil {
		return nil, err
	}
	if metrics.operationDuration, err = register(registerer, operationDuration); err != nil {
		return nil, err
	}
	if metrics.activeOperations, err = register(registerer, activeOperations); err != nil {
		return nil, err
	}
	if metrics.rowsHistogram, err = register(registerer, rowsHistogram); err != nil {
		return nil, err
	}
	return metrics, nil
}

func register[C prometheus.Collector](registerer prometheus.Registerer, c C) (C, error) {
	if err := registerer.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, errors.Wrap(err, "register metrics failed")
	}
	return c, nil
}

// ObservableService 装饰器，为 Service 添加日志、指标和追踪
type ObservableService struct {
	service Service

	logger        log.Logger
	metrics       *ObservableMetrics
	tracer        trace.Tracer
	name          string
	enableMetrics bool
	enableLogging bool
	enableTracing bool
}

type ObservableOption func(*observableConfig)

type observableConfig struct {
	logger     log.Logger
	registerer prometheus.Registerer
}

func WithObservableLogger(logger log.Logger) ObservableOption {
	return func(c *observableConfig) {
		c.logger = logger
	}
}

func WithRegisterer(registerer prometheus.Registerer) ObservableOption {
	return func(c *observableConfig) {
		c.registerer = registerer
	}
}

func NewObservableService(service Service, options *ObservableOptions, opts ...ObservableOption) (*ObservableService, error) {
	if service == nil {
		return nil, errors.New("service is nil")
	}
	if options == nil {
		options = &ObservableOptions{EnableMetrics: true, EnableLogging: true, Name: "restsql"}
	}
	c := &observableConfig{}
	for _, opt := range opts {
		opt(c)
	}

	obs := &ObservableService{
		service:       service,
		name:          options.Name,
		enableMetrics: options.EnableMetrics,
		enableLogging: options.EnableLogging,
		enableTracing: options.EnableTracing,
	}

	if options.EnableLogging {
		l := c.logger
		if l == nil {
			l = log.Default()
		}
		obs.logger = l.WithGroup("crud")
	}

	if options.EnableMetrics {
		metrics, err := NewObservableMetrics(options.Name, c.registerer)
		if err != nil {
			return nil, errors.WithMessage(err, "failed to create metrics")
		}
		obs.metrics = metrics
	}

	if options.EnableTracing {
		obs.tracer = otel.Tracer(fmt.Sprintf("crud.%s", options.Name))
	}

	return obs, nil
}

// observeOperation 统一的操作观测逻辑，fn 返回结果行数
func (obs *ObservableService) observeOperation(ctx context.Context, operation string, table string, fn func(context.Context) (int, error)) error {
	start := time.Now()

	var span trace.Span
	if obs.enableTracing && obs.tracer != nil {
		ctx, span = obs.tracer.Start(ctx, fmt.Sprintf("crud.%s", operation),
			trace.WithAttributes(
				attribute.String("component", obs.name),
				attribute.String("operation", operation),
				attribute.String("table", table),
			),
		)
		defer span.End()
	}

	if obs.enableMetrics && obs.metrics != nil {
		obs.metrics.activeOperations.WithLabelValues(operation).Inc()
		defer obs.metrics.activeOperations.WithLabelValues(operation).Dec()
	}

	rows, err := fn(ctx)
	duration := time.Since(start)

	if obs.enableTracing && span != nil {
		span.SetAttributes(
			attribute.Int64("duration_ms", duration.Milliseconds()),
			attribute.Int("rows", rows),
		)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}

	if obs.enableMetrics && obs.metrics != nil {
		status := "success"
		if err != nil {
			status = string(rdb.KindOf(err))
		}
		obs.metrics.operationCounter.WithLabelValues(operation, tableLabel(table, err), status).Inc()
		obs.metrics.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
		if err == nil {
			obs.metrics.rowsHistogram.WithLabelValues(operation).Observe(float64(rows))
		}
	}

	if obs.enableLogging && obs.logger != nil {
		if err != nil {
			obs.logger.ErrorContext(ctx, "crud operation failed",
				"component", obs.name,
				"operation", operation,
				"table", table,
				"duration_ms", duration.Milliseconds(),
				"kind", string(rdb.KindOf(err)),
				"error", err.Error(),
			)
		} else {
			obs.logger.InfoContext(ctx, "crud operation completed",
				"component", obs.name,
				"operation", operation,
				"table", table,
				"duration_ms", duration.Milliseconds(),
				"rows", rows,
			)
		}
	}

	return err
}

func (obs *ObservableService) Search(ctx context.Context, req *SearchRequest) ([]rdb.Row, error) {
	var table string
	if req != nil {
		table = trimTarget(req.Target)
	}
	var result []rdb.Row
	err := obs.observeOperation(ctx, "Search", table, func(ctx context.Context) (int, error) {
		var err error
		result, err = obs.service.Search(ctx, req)
		return len(result), err
	})
	return result, err
}

func (obs *ObservableService) FetchByEquality(ctx context.Context, table string, params query.Params) ([]rdb.Row, error) {
	var result []rdb.Row
	err := obs.observeOperation(ctx, "FetchByEquality", table, func(ctx context.Context) (int, error) {
		var err error
		result, err = obs.service.FetchByEquality(ctx, table, params)
		return len(result), err
	})
	return result, err
}

func (obs *ObservableService) Insert(ctx context.Context, table string, body query.Params) (rdb.Row, error) {
	return obs.observeRow(ctx, "Insert", table, func(ctx context.Context) (rdb.Row, error) {
		return obs.service.Insert(ctx, table, body)
	})
}

func (obs *ObservableService) Update(ctx context.Context, table string, body query.Params) (rdb.Row, error) {
	return obs.observeRow(ctx, "Update", table, func(ctx context.Context) (rdb.Row, error) {
		return obs.service.Update(ctx, table, body)
	})
}

func (obs *ObservableService) Delete(ctx context.Context, table string, params query.Params) (rdb.Row, error) {
	return obs.observeRow(ctx, "Delete", table, func(ctx context.Context) (rdb.Row, error) {
		return obs.service.Delete(ctx, table, params)
	})
}

func (obs *ObservableService) ListTables(ctx context.Context) []schema.TableInfo {
	var result []schema.TableInfo
	_ = obs.observeOperation(ctx, "ListTables", "", func(ctx context.Context) (int, error) {
		result = obs.service.ListTables(ctx)
		return len(result), nil
	})
	return result
}

func (obs *ObservableService) observeRow(ctx context.Context, operation string, table string, fn func(context.Context) (rdb.Row, error)) (rdb.Row, error) {
	var result rdb.Row
	err := obs.observeOperation(ctx, operation, table, func(ctx context.Context) (int, error) {
		var err error
		result, err = fn(ctx)
		if err != nil {
			return 0, err
		}
		return 1, nil
	})
	return result, err
}

// UnknownTable 请求的表不存在时使用的指标标签
const UnknownTable = "_unknown"

// tableLabel 表名来自请求方，不存在的表统一成一个标签
func tableLabel(table string, err error) string {
	if errors.Is(err, rdb.ErrTableNotFound) {
		return UnknownTable
	}
	return table
}
