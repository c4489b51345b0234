package server

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"swaprouter/internal/calldata"
	"swaprouter/internal/chain"
	"swaprouter/internal/model"
	"swaprouter/internal/provider"
	"swaprouter/internal/router"
)

// Router is the routing capability the server exposes.
type Router interface {
	Params() chain.Params
	Route(ctx context.Context, amount *big.Int, tokenIn, tokenOut model.Token, tradeType model.TradeType, opts *calldata.SwapOptions, cfg *router.RoutingConfig) (*model.SwapPlan, error)
}

// Config holds the HTTP listener settings.
type Config struct {
	Address        string        `mapstructure:"address"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	RatePerMinute  int           `mapstructure:"rate_per_minute"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

func DefaultConfig() Config {
	return Config{
		Address:        "localhost:8080",
		AllowedOrigins: []string{"*"},
		RequestTimeout: 30 * time.Second,
	}
}

// Server serves quotes over HTTP.
type Server struct {
	config     Config
	router     Router
	tokens     provider.TokenResolver
	gatherer   prometheus.Gatherer
	logger     *zap.Logger
	mux        *chi.Mux
	httpServer *http.Server
}

// New builds the handler tree. gatherer backs /metrics and defaults to the
// process-wide registry.
func New(cfg Config, rt Router, tokens provider.TokenResolver, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultConfig().RequestTimeout
	}
	s := &Server{
		config:   cfg,
		router:   rt,
		tokens:   tokens,
		gatherer: gatherer,
		logger:   logger,
	}

	mux := chi.NewMux()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(s.logRequests)
	mux.Use(middleware.Recoverer)
	mux.Use(middleware.Timeout(cfg.RequestTimeout))
	if cfg.RatePerMinute > 0 {
		mux.Use(httprate.LimitByIP(cfg.RatePerMinute, time.Minute))
	}

	mux.Get("/quote", s.handleQuote)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "chain": rt.Params().Name})
	})
	s.mux = mux

	s.httpServer = &http.Server{
		Addr:              cfg.Address,
		Handler:           h2c.NewHandler(newCORSHandler(cfg.AllowedOrigins, mux), &http2.Server{}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the full handler, CORS included.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server starting",
		zap.String("address", s.config.Address),
		zap.String("chain", s.router.Params().Name),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(started)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func newCORSHandler(allowedOrigins []string, next http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	allowCredentials := !(len(allowedOrigins) == 1 && allowedOrigins[0] == "*")
	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: allowCredentials,
		MaxAge:           300,
	}).Handler(next)
}
