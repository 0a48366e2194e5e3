package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"instituteos.app/internal/auth"
	"instituteos.app/internal/config"
	"instituteos.app/internal/edge"
	"instituteos.app/internal/httpapi"
	"instituteos.app/internal/institute"
	"instituteos.app/internal/obs"
	"instituteos.app/internal/store/pg"
	"instituteos.app/internal/tenancy"
)

const serviceName = "instituteos-edge"

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

	upstream, err := url.Parse(cfg.Edge.Upstream)
	if err != nil || upstream.Scheme == "" || upstream.Host == "" {
		return fmt.Errorf("invalid edge.upstream %q", cfg.Edge.Upstream)
	}

	var lookup tenancy.Lookup
	if cfg.Database.DSN != "" {
		store, err := pg.Open(cfg.Database.DSN, pg.Pool{MaxOpenConns: cfg.Database.MaxOpenConns, MaxIdleConns: cfg.Database.MaxIdleConns})
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer store.Close()
		lookup = institute.DomainLookup(store)
	} else {
		logger.Warn("no database configured, tenant hosts are served as public")
	}
	if lookup != nil && cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		lookup = tenancy.NewCachedLookup(lookup, rdb, cfg.Tenancy.CacheTTL)
	}

	tokens, err := auth.NewTokenService(cfg.Auth.Secret, auth.WithTokenTTL(cfg.Auth.TokenTTL), auth.WithIssuer(cfg.Auth.Issuer))
	if err != nil {
		return err
	}
	resolver := tenancy.NewResolver(lookup, tenancy.WithRootDomain(cfg.RootDomain), tenancy.WithLogger(logger))
	router := edge.NewRouter(resolver, tokens, edge.WithLogger(logger))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /_edge/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("GET /_edge/metrics", obs.Handler())
	mux.Handle("/", router.Middleware(edge.NewProxy(upstream)))
	route := func(r *http.Request) string {
		if strings.HasPrefix(r.URL.Path, "/_edge/") {
			return "/_edge"
		}
		return router.RouteLabel(r)
	}

	srv := &http.Server{
		Addr:              cfg.Edge.Addr,
		Handler:           httpapi.RequestID(httpapi.LoggingJSON(obs.Instrument(mux, route))),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("edge listening", zap.String("addr", srv.Addr), zap.String("upstream", upstream.String()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
