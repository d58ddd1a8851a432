package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/stockroom/internal/adapter/handler"
	"github.com/rl1809/stockroom/internal/adapter/handler/pb"
	"github.com/rl1809/stockroom/internal/adapter/messaging"
	"github.com/rl1809/stockroom/internal/adapter/storage"
	"github.com/rl1809/stockroom/internal/adapter/telemetry"
	"github.com/rl1809/stockroom/internal/config"
	"github.com/rl1809/stockroom/internal/core/service"
	"github.com/rl1809/stockroom/internal/port"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("invalid configuration", zap.Error(err))
	}

	logger, err := telemetry.NewLogger(cfg.LogLevel, config.ServiceName)
	if err != nil {
		zap.NewExample().Fatal("failed to build logger", zap.Error(err))
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.SetupTracing(ctx, config.ServiceName, config.ServiceVersion, cfg.OtelEndpoint)
	if err != nil {
		logger.Fatal("failed to set up tracing", zap.Error(err))
	}

	// Initialize store
	var (
		store port.Store
		db    *sql.DB
	)
	switch cfg.StoreDriver {
	case config.StoreMemory:
		store = storage.NewMemoryStore()
		logger.Warn("using in-memory store, data is lost on exit")
	default:
		db, err = sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			logger.Fatal("failed to open mysql", zap.Error(err))
		}
		db.SetMaxOpenConns(cfg.MySQLMaxOpenConns)
		db.SetMaxIdleConns(cfg.MySQLMaxIdleConns)
		db.SetConnMaxLifetime(cfg.MySQLConnMaxLifetime)

		mysqlAdapter := storage.NewMySQLAdapter(db, cfg.StoreTimeout)
		if err := mysqlAdapter.Ping(ctx); err != nil {
			logger.Fatal("failed to ping mysql", zap.Error(err))
		}
		if err := mysqlAdapter.EnsureSchema(ctx); err != nil {
			logger.Fatal("failed to ensure schema", zap.Error(err))
		}
		logger.Info("connected to mysql")
		store = mysqlAdapter
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if db != nil {
		registry.MustRegister(collectors.NewDBStatsCollector(db, "stockroom"))
	}

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithRecorder(telemetry.NewPrometheusRecorder(registry)),
	}

	// Optional Redis idempotency
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 100,
		})
		redisAdapter := storage.NewRedisAdapter(rdb, cfg.IdempotencyTTL)
		if err := redisAdapter.Ping(ctx); err != nil {
			logger.Fatal("failed to connect redis", zap.Error(err))
		}
		logger.Info("connected to redis")
		opts = append(opts, service.WithIdempotencyCache(redisAdapter))
	}

	// Optional Kafka events
	var publisher *messaging.KafkaPublisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = messaging.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		opts = append(opts, service.WithEventPublisher(publisher))
		logger.Info("publishing order events", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	// Initialize services
	orderService := service.NewOrderService(store, opts...)
	productService := service.NewProductService(store, logger)

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	pb.RegisterOrderServiceServer(grpcServer, handler.NewGRPCHandler(orderService, logger))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(pb.OrderService_ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}

	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(orderService, productService, store, logger)
	mux := http.NewServeMux()
	httpHandler.RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Middleware(mux, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	s := <-quit

	logger.Info("shutting down", zap.String("signal", s.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	healthServer.Shutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	// Close connections
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Warn("failed to close kafka writer", zap.Error(err))
		}
	}
	if rdb != nil {
		rdb.Close()
	}
	if db != nil {
		db.Close()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("failed to flush traces", zap.Error(err))
	}
	logger.Info("connections closed")
}
