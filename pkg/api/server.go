// Package api exposes the ledger service over HTTP: point reads, batched
// reads, cursor-paginated listings, and transaction creation, with rate
// limiting and conditional GET support.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"ledgercache/pkg/cache"
	"ledgercache/pkg/ledger"
	"ledgercache/pkg/logging"
	"ledgercache/pkg/ratelimit"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// maxBatchIDs caps the ?ids= batch endpoint.
const maxBatchIDs = 100

// Config tunes the HTTP server.
type Config struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Max-age values for Cache-Control on the read endpoints. They should
	// track the service's TTLs.
	AccountMaxAge     time.Duration
	TransactionMaxAge time.Duration
	ListMaxAge        time.Duration

	// ListCost is the rate limit token cost of a listing request. Point
	// reads cost one.
	ListCost int

	// Layers, when set, lets the health endpoint report cache topology.
	Layers func() []cache.Layer
}

func (c *Config) applyDefaults() {
	if c.Port <= 0 {
		c.Port = 8080
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 15 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.AccountMaxAge <= 0 {
		c.AccountMaxAge = 5 * time.Minute
	}
	if c.TransactionMaxAge <= 0 {
		c.TransactionMaxAge = 30 * time.Minute
	}
	if c.ListMaxAge <= 0 {
		c.ListMaxAge = 2 * time.Minute
	}
	if c.ListCost <= 0 {
		c.ListCost = 5
	}
}

// Server is the HTTP front of the service.
type Server struct {
	config Config
	router *mux.Router
	srv    *http.Server
	logger *logging.Logger
}

// New wires routes and middleware. The middleware order is logging, then
// metrics, then rate limiting, so throttled requests are still logged and
// counted.
func New(service *ledger.Service, limiter *ratelimit.Limiter, config Config, logger *logging.Logger) *Server {
	config.applyDefaults()
	if logger == nil {
		logger = logging.L()
	}
	logger = logger.Named("api")

	h := &handler{service: service, config: config, logger: logger}

	router := mux.NewRouter()
	router.Use(loggingMiddleware(logger))
	router.Use(metricsMiddleware())

	// Health and metrics bypass the rate limiter so probes never starve.
	router.HandleFunc("/health", h.health).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.Use(limiter.Middleware(listCost(config.ListCost)))

	v1.HandleFunc("/accounts", h.getAccountBatch).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{id}", h.getAccount).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{id}/transactions", h.listTransactions).Methods(http.MethodGet)
	v1.HandleFunc("/transactions", h.createTransaction).Methods(http.MethodPost)
	v1.HandleFunc("/transactions/{id}", h.getTransaction).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no such route")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	return &Server{
		config: config,
		router: router,
		logger: logger,
		srv: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			Handler:      router,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
	}
}

// listCost charges listings and batch reads more than point reads.
func listCost(cost int) ratelimit.CostFunc {
	return func(r *http.Request) int {
		route := mux.CurrentRoute(r)
		if route == nil {
			return 1
		}
		template, err := route.GetPathTemplate()
		if err != nil {
			return 1
		}
		switch template {
		case "/v1/accounts", "/v1/accounts/{id}/transactions":
			return cost
		default:
			return 1
		}
	}
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("server listening", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
