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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/asakaida/junban/internal/handlers"
	cacheinfra "github.com/asakaida/junban/internal/infrastructure/cache"
	"github.com/asakaida/junban/internal/infrastructure/config"
	"github.com/asakaida/junban/internal/infrastructure/database"
	"github.com/asakaida/junban/internal/infrastructure/logging"
	"github.com/asakaida/junban/internal/infrastructure/metrics"
	"github.com/asakaida/junban/internal/repositories/postgres"
	"github.com/asakaida/junban/internal/services"
	"github.com/asakaida/junban/pkg/cache"
	"github.com/asakaida/junban/pkg/cache/memorycache"
	"github.com/asakaida/junban/pkg/cache/rediscache"
)

const defaultEnv = "dev"

func main() {
	// Get environment from ENV variable or use default
	env := os.Getenv("ENV")
	if env == "" {
		env = defaultEnv
	}

	if err := config.InitConfig(env); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize config: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	pg, err := database.NewPostgres(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pg.Close()

	logger.Info("Connected to database",
		zap.String("user", cfg.Database.User),
		zap.String("host", cfg.Database.Host),
		zap.Int("port", cfg.Database.Port),
		zap.String("database", cfg.Database.Database),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	exporter := metrics.NewPrometheusExporter(registry)

	orderCache, err := newCache(cfg)
	if err != nil {
		return err
	}
	if orderCache != nil {
		defer orderCache.Close()
		if cfg.Cache.Metrics {
			registry.MustRegister(metrics.NewCacheCollector(orderCache, cfg.Cache.Backend))
		}
		logger.Info("Relation order cache enabled",
			zap.String("backend", cfg.Cache.Backend),
			zap.Duration("ttl", cfg.Cache.CacheTTL()),
		)
	}

	repo := postgres.NewPostgresRelationOrderRepository(pg.DB)
	service := services.NewRelationOrderService(repo, orderCache, exporter, logger, services.RelationOrderServiceConfig{
		StrictAnchors: cfg.Ordering.StrictAnchors,
		CacheTTL:      cfg.Cache.CacheTTL(),
	})

	// Committed writes from every instance evict through the service's read fence
	if orderCache != nil {
		invalidator := cacheinfra.NewInvalidationListener(service, cfg.Database.ConnectionString(), logger)
		if err := invalidator.Start(context.Background()); err != nil {
			return fmt.Errorf("failed to start cache invalidation listener: %w", err)
		}
		defer invalidator.Stop()
	}

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		logging.UnaryServerInterceptor(logger),
		metrics.UnaryServerInterceptor(exporter),
	))
	handlers.RegisterRelationOrderServiceServer(grpcServer, handlers.NewRelationOrderHandler(service))

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(handlers.RelationOrderServiceName, healthpb.HealthCheckResponse_SERVING)

	// Register reflection service (for grpcurl, etc.)
	reflection.Register(grpcServer)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler:           metricsMux(registry, pg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErrors := make(chan error, 2)
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", addr))
		if err := grpcServer.Serve(listener); err != nil {
			serverErrors <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()
	go func() {
		logger.Info("Metrics server listening", zap.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		grpcServer.Stop()
		_ = metricsServer.Close()
		return err
	case sig := <-sigChan:
		logger.Info("Initiating graceful shutdown", zap.String("signal", sig.String()))
	}

	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		logger.Info("gRPC server stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timeout exceeded, forcing stop")
		grpcServer.Stop()
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Error stopping metrics server", zap.Error(err))
	}

	logger.Info("Shutdown complete")
	return nil
}

// newCache builds the configured relation order cache, or nil when caching is disabled
func newCache(cfg *config.Config) (cache.Cache, error) {
	if !cfg.Cache.Enabled {
		return nil, nil
	}

	switch cfg.Cache.Backend {
	case "redis":
		c, err := rediscache.New(context.Background(), rediscache.Config{
			Addr:      cfg.Redis.Addr(),
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis cache: %w", err)
		}
		return c, nil
	default:
		return memorycache.New(&memorycache.Config{
			MaxSizeBytes:  cfg.Cache.MaxMemoryBytes,
			EnableMetrics: cfg.Cache.Metrics,
		}), nil
	}
}

func metricsMux(registry *prometheus.Registry, pg *database.Postgres) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pg.HealthCheck(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
