// Package server wires the authkeeper components together: storage
// backends, the auth services, and the HTTP and gRPC transports. It also
// handles graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/password"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/dmitrijs2005/authkeeper/internal/server/sessions"

	gs "github.com/dmitrijs2005/authkeeper/internal/server/grpc"
	hs "github.com/dmitrijs2005/authkeeper/internal/server/http"
)

const sessionSweepInterval = time.Minute

type App struct {
	config      *config.Config
	logger      logging.Logger
	repomanager repomanager.RepositoryManager
	sessions    sessions.Store
	metrics     *metrics.Metrics
	auth        *services.AuthService
	gate        *services.Authenticator
}

// NewApp opens the configured stores and builds the services. An empty
// DatabaseDSN or RedisURL selects the in-memory implementation.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(c.LogLevel, c.LogFormat, os.Stdout).With("service", c.ServiceName)

	m, err := openRepositoryManager(ctx, c, logger)
	if err != nil {
		return nil, err
	}

	store, err := openSessionStore(ctx, c, logger)
	if err != nil {
		_ = m.Close()
		return nil, err
	}

	return newApp(c, logger, m, store)
}

// newApp takes ownership of m and store. Both are closed when it fails.
func newApp(c *config.Config, logger logging.Logger, m repomanager.RepositoryManager, store sessions.Store) (*App, error) {
	codec, err := auth.NewCodec([]byte(c.SecretKey), c.Algorithm)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("token codec: %w", err), store.Close(), m.Close())
	}

	met := metrics.New()
	hasher := password.NewHasher(c.BcryptCost, 0)

	return &App{
		config:      c,
		logger:      logger,
		repomanager: m,
		sessions:    store,
		metrics:     met,
		auth:        services.NewAuthService(c, m, store, hasher, codec, logger).WithRecorder(met),
		gate:        services.NewAuthenticator(m, codec),
	}, nil
}

func openRepositoryManager(ctx context.Context, c *config.Config, logger logging.Logger) (repomanager.RepositoryManager, error) {
	if c.DatabaseDSN == "" {
		logger.Warn(ctx, "no database configured, users are kept in memory")
		return repomanager.NewInMemoryRepositoryManager(), nil
	}

	m, err := repomanager.OpenPostgres(ctx, repomanager.PostgresOptions{
		DSN:             c.DatabaseDSN,
		MaxOpenConns:    c.DBMaxOpenConns,
		MaxIdleConns:    c.DBMaxIdleConns,
		ConnMaxLifetime: c.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	if err := m.RunMigrations(ctx); err != nil {
		_ = m.Close()
		return nil, err
	}
	return m, nil
}

func openSessionStore(ctx context.Context, c *config.Config, logger logging.Logger) (sessions.Store, error) {
	if c.RedisURL == "" {
		logger.Warn(ctx, "no redis configured, sessions are kept in memory")
		return sessions.NewMemoryStore(sessionSweepInterval), nil
	}

	store, err := sessions.OpenRedis(ctx, sessions.RedisOptions{
		URL:          c.RedisURL,
		PoolSize:     c.RedisPoolSize,
		MinIdleConns: c.RedisMinIdleConns,
		DialTimeout:  c.RedisDialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("redis init error: %w", err)
	}
	return store, nil
}

// initSignalHandler cancels on SIGINT, SIGTERM or SIGQUIT until ctx ends.
// The returned channel is closed once signals are no longer watched.
func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer close(done)
		defer signal.Stop(sigs)
		select {
		case sig := <-sigs:
			app.logger.Info(ctx, "signal received", "signal", sig.String())
			cancelFunc()
		case <-ctx.Done():
		}
	}()
	return done
}

func (app *App) httpServer() *hs.HTTPServer {
	return hs.NewHTTPServer(app.config.HTTPAddr, hs.Deps{
		ServiceName:    app.config.ServiceName,
		Auth:           app.auth,
		Gate:           app.gate,
		Logger:         app.logger,
		Metrics:        app.metrics,
		MetricsHandler: app.metrics.Handler(),
		RequestTimeout: app.config.RequestTimeout,
	})
}

func (app *App) grpcServer() *gs.GRPCServer {
	s := gs.NewGRPCServer(app.config.GRPCAddr, app.config.ServiceName, app.logger, app.gate)
	s.Register(gs.RegisterIdentity)
	return s
}

type runner interface {
	Run(ctx context.Context) error
}

func (app *App) start(ctx context.Context, cancelFunc context.CancelFunc, wg *sync.WaitGroup, name string, r runner, errs chan<- error) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := r.Run(ctx); err != nil {
			app.logger.Error(ctx, "server failed", "server", name, "error", err)
			errs <- fmt.Errorf("%s: %w", name, err)
			cancelFunc()
		}
	}()
}

// Run serves until ctx is cancelled, a termination signal arrives or one of
// the servers fails. Stores are closed before returning.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(ctx, cancelFunc)

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	app.start(ctx, cancelFunc, &wg, "http", app.httpServer(), errs)
	if app.config.GRPCAddr != "" {
		app.start(ctx, cancelFunc, &wg, "grpc", app.grpcServer(), errs)
	}

	wg.Wait()
	close(errs)

	var runErr error
	for err := range errs {
		runErr = errors.Join(runErr, err)
	}

	app.logger.Info(context.Background(), "App stopped")
	return errors.Join(runErr, app.Close())
}

// Close releases the session store and the database.
func (app *App) Close() error {
	return errors.Join(app.sessions.Close(), app.repomanager.Close())
}
