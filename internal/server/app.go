// Package server provides the core application server and dependency wiring.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/realtime-product-indexer/internal/api"
	"github.com/JakeFAU/realtime-product-indexer/internal/clock/system"
	"github.com/JakeFAU/realtime-product-indexer/internal/config"
	collyfetcher "github.com/JakeFAU/realtime-product-indexer/internal/fetcher/colly"
	"github.com/JakeFAU/realtime-product-indexer/internal/id/uuid"
	"github.com/JakeFAU/realtime-product-indexer/internal/ingest"
	"github.com/JakeFAU/realtime-product-indexer/internal/kb"
	"github.com/JakeFAU/realtime-product-indexer/internal/logging"
	"github.com/JakeFAU/realtime-product-indexer/internal/metrics"
	"github.com/JakeFAU/realtime-product-indexer/internal/policy/ratelimit"
	"github.com/JakeFAU/realtime-product-indexer/internal/product"
	memorystore "github.com/JakeFAU/realtime-product-indexer/internal/storage/memory"
	pgstore "github.com/JakeFAU/realtime-product-indexer/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/realtime-product-indexer/internal/storage/sqlite"
)

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	apiServer *api.Server
	store     product.Store
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger is Build with a caller-supplied logger.
func BuildWithLogger(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("kb_base_url", cfg.KB.BaseURL),
		zap.String("db_driver", cfg.DB.Driver),
	)
	metrics.Init()

	clock := system.New()
	kbClient, err := kb.New(kb.Config{
		BaseURL:           cfg.KB.BaseURL,
		KnowledgeBoxID:    cfg.KB.KBID,
		WriterAPIKey:      cfg.KB.WriterAPIKey,
		ReaderAPIKey:      cfg.KB.ReaderAPIKey,
		Timeout:           cfg.KBTimeout(),
		RequestsPerSecond: cfg.KB.RequestsPerSecond,
		Burst:             cfg.KB.Burst,
	}, kb.WithLogger(logger.Named("kb")), kb.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("kb client init failed: %w", err)
	}

	pacer := ratelimit.New(ratelimit.Config{
		RPS:   cfg.HTTP.PerHostRequestsPerSecond,
		Burst: cfg.HTTP.PerHostBurst,
	})
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.FetchTimeout(),
		Pacer:     pacer,
		Logger:    logger.Named("fetcher"),
	})
	logger.Info("using colly page fetcher",
		zap.String("user_agent", cfg.HTTP.UserAgent),
		zap.Float64("per_host_rps", cfg.HTTP.PerHostRequestsPerSecond),
	)

	store, err := openStore(ctx, cfg.DB, logger)
	if err != nil {
		return nil, err
	}

	opts := []ingest.Option{
		ingest.WithClock(clock),
		ingest.WithLogger(logger.Named("ingest")),
		ingest.WithKBConfig(ingest.KBConfig{
			AuthToken:    cfg.KB.ReaderAPIKey,
			KnowledgeBox: cfg.KB.KBID,
			Zone:         cfg.KB.Zone,
		}),
	}
	if store != nil {
		opts = append(opts, ingest.WithStore(store))
	}
	svc, err := ingest.NewService(kbClient, fetcher, opts...)
	if err != nil {
		closeStore(store, logger)
		return nil, fmt.Errorf("ingest service init failed: %w", err)
	}

	return &App{
		cfg:       cfg,
		logger:    logger,
		apiServer: api.NewServer(svc, uuid.New(), clock, *cfg, logger.Named("api")),
		store:     store,
	}, nil
}

// openStore returns nil when persistence is disabled.
func openStore(ctx context.Context, cfg config.DBConfig, logger *zap.Logger) (product.Store, error) {
	switch cfg.Driver {
	case config.DriverNone:
		logger.Warn("no db.driver configured, product persistence disabled")
		return nil, nil
	case config.DriverMemory:
		logger.Info("using in-memory product store")
		return memorystore.NewProductStore(), nil
	case config.DriverSQLite:
		store, err := sqlitestore.Open(ctx, cfg.DSN, cfg.Table)
		if err != nil {
			return nil, fmt.Errorf("sqlite store init failed: %w", err)
		}
		logger.Info("sqlite product store initialized", zap.String("path", cfg.DSN), zap.String("table", cfg.Table))
		return store, nil
	case config.DriverPostgres:
		store, err := pgstore.NewProductStore(ctx, pgstore.Config{
			DSN:      cfg.DSN,
			Table:    cfg.Table,
			MaxConns: cfg.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres store init failed: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("postgres schema init failed: %w", err)
		}
		logger.Info("postgres product store initialized", zap.String("table", cfg.Table))
		return store, nil
	default:
		return nil, fmt.Errorf("unknown db.driver %q", cfg.Driver)
	}
}

func closeStore(store product.Store, logger *zap.Logger) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		logger.Warn("product store close failed", zap.Error(err))
	}
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run serves HTTP until ctx is canceled or a termination signal arrives, then
// shuts down gracefully and releases dependencies.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln until ctx is done.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	runErr := g.Wait()
	closeErr := a.Close()
	return errors.Join(runErr, closeErr)
}

// Close releases the product store and flushes the logger.
func (a *App) Close() error {
	var err error
	if a.store != nil {
		if cerr := a.store.Close(); cerr != nil {
			err = fmt.Errorf("close product store: %w", cerr)
		}
		a.store = nil
	}
	a.logger.Info("shutdown complete")
	_ = a.logger.Sync()
	return err
}
