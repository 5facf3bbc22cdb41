package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

// Deps is what the router needs from the rest of the application.
type Deps struct {
	ServiceName    string
	Auth           AuthAPI
	Gate           Gate
	Logger         logging.Logger
	Metrics        RequestObserver
	MetricsHandler http.Handler
	RequestTimeout time.Duration
}

// HTTPServer serves the JSON API.
type HTTPServer struct {
	address string
	engine  *gin.Engine
	logger  logging.Logger
	srv     *http.Server
}

func NewHTTPServer(address string, d Deps) *HTTPServer {
	logger := d.Logger
	if logger == nil {
		logger = logging.Nop{}
	}
	logger = logger.With("module", "http_server")

	return &HTTPServer{
		address: address,
		engine:  newRouter(d, logger),
		logger:  logger,
	}
}

func newRouter(d Deps, logger logging.Logger) *gin.Engine {
	r := gin.New()
	r.Use(
		RequestID(),
		AccessLog(logger),
		Metrics(d.Metrics),
		Recovery(logger),
		Timeout(d.RequestTimeout),
	)

	h := NewHandler(d.Auth, logger, d.ServiceName)

	r.GET("/health", h.Health)
	if d.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(d.MetricsHandler))
	}

	auth := r.Group("/auth")
	auth.POST("/register", h.Register)
	auth.POST("/login", h.Login)
	auth.POST("/refresh", h.Refresh)
	auth.POST("/logout", RequireAuth(d.Gate, logger), h.Logout)

	r.GET("/users/me", RequireAuth(d.Gate, logger), h.Me)

	r.NoRoute(h.NotFound)
	return r
}

// Handler exposes the router, mostly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.engine
}

// Run listens on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve is Run on an existing listener.
func (s *HTTPServer) Serve(ctx context.Context, listen net.Listener) error {
	s.srv = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		s.logger.Info(context.Background(), "Stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, "http shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := s.srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-done
	return nil
}
