package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"instituteos.app/internal/auth"
	"instituteos.app/internal/config"
	"instituteos.app/internal/httpapi"
	"instituteos.app/internal/institute"
	"instituteos.app/internal/obs"
	"instituteos.app/internal/pricing"
	tasksignal "instituteos.app/internal/signal"
	"instituteos.app/internal/store/memory"
	"instituteos.app/internal/store/pg"
	"instituteos.app/internal/student"
	"instituteos.app/internal/task"
	"instituteos.app/internal/tenancy"
	"instituteos.app/internal/trial"
	"instituteos.app/internal/usage"
)

const serviceName = "instituteos-api"

// backend is everything the API persists.
type backend interface {
	auth.Store
	institute.Store
	student.Store
	task.Store
	tasksignal.Store
	usage.Store
	Ping(ctx context.Context) error
	Close() error
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := obs.NewLogger(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	obs.SetLogger(logger)
	defer func() { _ = logger.Sync() }()
	obs.InitBuildInfo(serviceName, cfg.Version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	var (
		lookup      tenancy.Lookup = institute.DomainLookup(store)
		invalidator institute.Invalidator
	)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, tenant lookups will hit the database", zap.Error(err))
		}
		cached := tenancy.NewCachedLookup(lookup, rdb, cfg.Tenancy.CacheTTL)
		lookup, invalidator = cached, cached
	}

	tokens, err := auth.NewTokenService(cfg.Auth.Secret,
		auth.WithTokenTTL(cfg.Auth.TokenTTL),
		auth.WithIssuer(cfg.Auth.Issuer))
	if err != nil {
		return err
	}

	instOpts := []institute.Option{}
	if invalidator != nil {
		instOpts = append(instOpts, institute.WithInvalidator(invalidator))
	}
	recorder := usage.NewRecorder(store,
		usage.WithMaxInFlight(cfg.Usage.MaxInFlight),
		usage.WithTimeout(cfg.Usage.WriteTimeout),
		usage.WithLogger(logger))
	ready := httpapi.ReadyCheck{DB: store}

	api := httpapi.New(httpapi.Deps{
		Resolver:            tenancy.NewResolver(lookup, tenancy.WithRootDomain(cfg.RootDomain), tenancy.WithLogger(logger)),
		Auth:                auth.NewService(store, tokens),
		Institutes:          institute.NewService(store, instOpts...),
		Pricing:             pricing.NewService(store),
		Students:            student.NewService(store),
		Tasks:               task.NewService(store, store),
		Trial:               trial.NewGate(institute.TrialLoader(store), trial.WithWindow(cfg.Trial.Window)),
		Usage:               recorder,
		Ready:               ready,
		Version:             cfg.Version,
		TrustOverrideHeader: cfg.Tenancy.TrustOverrideHeader,
		TrustForwardedFor:   cfg.HTTP.TrustForwardedFor,
		SecureCookies:       cfg.IsProduction(),
		LoginBurst:          cfg.Login.RateBurst,
		LoginPerSec:         float64(cfg.Login.RatePerSec),
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	grpcSrv := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, httpapi.NewHealthServer(ready, logger))
	grpcLis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Signal.Enabled {
		engine := tasksignal.NewEngine(store,
			tasksignal.WithLogger(logger),
			tasksignal.WithWindow(cfg.Signal.ProximityWindow),
			tasksignal.WithJobTimeout(cfg.Signal.JobTimeout),
			tasksignal.WithSchedules(cfg.Signal.OverdueSchedule, cfg.Signal.ProximitySchedule))
		g.Go(func() error { return engine.Run(gctx, tasksignal.NewScheduler()) })
	}
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", srv.Addr), zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("grpc listening", zap.String("addr", grpcLis.Addr().String()))
		if err := grpcSrv.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		grpcSrv.GracefulStop()
		if cerr := recorder.Close(shutdownCtx); cerr != nil {
			logger.Warn("usage writes still pending at shutdown", zap.Error(cerr))
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}

func openBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (backend, error) {
	if cfg.Database.DSN == "" {
		if cfg.IsProduction() {
			return nil, errors.New("database.dsn is required in production (INSTITUTEOS_DATABASE_DSN)")
		}
		logger.Warn("no database configured, using in-memory store")
		store := memory.New()
		if cfg.Bootstrap.Email != "" {
			svc := auth.NewService(store, nil)
			if _, err := svc.SeedPlatformUser(ctx, cfg.Bootstrap.Email, cfg.Bootstrap.Password, "Platform", "Admin"); err != nil {
				return nil, fmt.Errorf("seed platform user: %w", err)
			}
			logger.Info("platform operator seeded", zap.String("email", cfg.Bootstrap.Email))
		}
		return store, nil
	}

	store, err := pg.Open(cfg.Database.DSN, pg.Pool{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		logger.Warn("database not reachable yet", zap.Error(err))
	}
	return store, nil
}
