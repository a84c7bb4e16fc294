package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/hatlonely/restsql/auth"
	"github.com/hatlonely/restsql/log"
	"github.com/hatlonely/restsql/rdb/crud"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Options struct {
	Addr string `cfg:"addr" def:":8000"`

	// Prefixes 同一组路由注册在每个前缀下，空字符串表示根路径
	Prefixes []string `cfg:"prefixes" def:",/api"`

	ReadTimeout     time.Duration `cfg:"readTimeout" def:"30s"`
	WriteTimeout    time.Duration `cfg:"writeTimeout" def:"30s"`
	ShutdownTimeout time.Duration `cfg:"shutdownTimeout" def:"10s"`

	// CookieSecure 会话 cookie 只在 https 下发送
	CookieSecure bool `cfg:"cookieSecure"`
}

// Pinger 健康检查
type Pinger interface {
	Ping(ctx context.Context) error
}

type Option func(*Server)

func WithLogger(logger log.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithNonceManager(nonces *auth.NonceManager) Option {
	return func(s *Server) {
		s.nonces = nonces
	}
}

// WithAuthenticator 注册登录、当前用户和退出接口
func WithAuthenticator(authenticator *auth.Authenticator) Option {
	return func(s *Server) {
		s.authenticator = authenticator
	}
}

// WithGatherer /metrics 输出的指标来源，默认为 prometheus 默认 registry
func WithGatherer(gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = gatherer
	}
}

type Server struct {
	options  *Options
	service  crud.Service
	db       Pinger
	nonces   *auth.NonceManager
	gatherer prometheus.Gatherer
	logger   log.Logger
	handler  http.Handler

	authenticator *auth.Authenticator
}

func NewServer(options *Options, service crud.Service, db Pinger, opts ...Option) (*Server, error) {
	if service == nil {
		return nil, errors.New("service is nil")
	}
	if options == nil {
		options = &Options{Addr: ":8000", Prefixes: []string{"", "/api"}}
	}
	s := &Server{
		options:  options,
		service:  service,
		db:       db,
		gatherer: prometheus.DefaultGatherer,
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handler = s.accessLog(s.routes())
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	seen := map[string]bool{}
	prefixes := s.options.Prefixes
	if len(prefixes) == 0 {
		prefixes = []string{""}
	}
	for _, p := range prefixes {
		p = "/" + strings.Trim(strings.TrimSpace(p), "/")
		if p == "/" {
			p = ""
		}
		if seen[p] {
			continue
		}
		seen[p] = true

		mux.HandleFunc("POST "+p+"/get-db-array", s.search)
		mux.HandleFunc("GET "+p+"/rest-access-page/{table}", s.fetch)
		mux.HandleFunc("POST "+p+"/rest-access-page/{table}", s.insert)
		mux.HandleFunc("PUT "+p+"/rest-access-page/{table}", s.update)
		mux.HandleFunc("DELETE "+p+"/rest-access-page/{table}", s.delete)
		if s.nonces != nil {
			mux.HandleFunc("GET "+p+"/auth/nonce", s.nonce)
		}
		if s.authenticator != nil {
			mux.HandleFunc("POST "+p+"/auth/login", s.login)
			mux.HandleFunc("GET "+p+"/auth/me", s.me)
			mux.HandleFunc("POST "+p+"/auth/logout", s.logout)
		}
	}

	mux.HandleFunc("GET /tables", s.tables)
	mux.HandleFunc("GET /health", s.health)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Run 阻塞直到 ctx 结束或者服务出错，ctx 结束时优雅退出
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.options.Addr,
		Handler:      s.handler,
		ReadTimeout:  s.options.ReadTimeout,
		WriteTimeout: s.options.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server started", "addr", s.options.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "listen failed")
	case <-ctx.Done():
	}

	timeout := s.options.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.logger.Info("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown failed")
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
