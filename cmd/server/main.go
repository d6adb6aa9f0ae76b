package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/bookstore/internal/adapter/discovery"
	"github.com/rl1809/bookstore/internal/adapter/handler"
	"github.com/rl1809/bookstore/internal/adapter/messaging"
	"github.com/rl1809/bookstore/internal/adapter/storage"
	"github.com/rl1809/bookstore/internal/config"
	"github.com/rl1809/bookstore/internal/core/domain"
	"github.com/rl1809/bookstore/internal/core/service"
	"github.com/rl1809/bookstore/internal/platform/observability"
	"github.com/rl1809/bookstore/internal/port"
)

const shutdownTimeout = 15 * time.Second

// store bundles the repositories of one backend with its lifecycle hooks.
type store struct {
	books     port.BookRepository
	inventory port.InventoryRepository
	orders    port.OrderRepository
	pinger    port.Pinger
	seed      func(ctx context.Context, books []domain.Book) (int, error)
	close     func(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger, tp, otelShutdown, err := setupObservability(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up observability: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(ctx, cfg, logger, tp); err != nil {
		logger.Error("server exited with error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := otelShutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down OpenTelemetry", zap.Error(err))
	}
}

func setupObservability(ctx context.Context, cfg *config.Config) (*zap.Logger, trace.TracerProvider, func(context.Context) error, error) {
	noopShutdown := func(context.Context) error { return nil }

	if cfg.OtelEndpoint == "" {
		logger, err := observability.NewLogger(config.ServiceName, cfg.LogLevel)
		if err != nil {
			return nil, nil, nil, err
		}
		return logger, otel.GetTracerProvider(), noopShutdown, nil
	}

	otelCfg := observability.OTelConfig{
		ServiceName: config.ServiceName,
		Endpoint:    cfg.OtelEndpoint,
		AuthHeader:  cfg.OtelAuthHeader,
	}

	logShutdown, err := observability.SetupLoggingSDK(ctx, otelCfg)
	if err != nil {
		return nil, nil, nil, err
	}
	tp, traceShutdown, err := observability.SetupTracingSDK(ctx, otelCfg)
	if err != nil {
		return nil, nil, nil, errors.Join(err, logShutdown(ctx))
	}

	logger, err := observability.NewOTelLogger(config.ServiceName, cfg.LogLevel)
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Info("logger initialized with OpenTelemetry bridge", zap.String("endpoint", cfg.OtelEndpoint))

	shutdown := func(ctx context.Context) error {
		return errors.Join(traceShutdown(ctx), logShutdown(ctx))
	}
	return logger, tp, shutdown, nil
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, tp trace.TracerProvider) error {
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := st.close(closeCtx); err != nil {
			logger.Error("failed to close store", zap.Error(err))
		}
		logger.Info("store closed")
	}()

	if err := seedCatalog(ctx, cfg, st, logger); err != nil {
		return err
	}

	books := st.books
	var locker port.FulfillmentLocker = storage.NewMemoryLocker()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 100,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect redis: %w", err)
		}
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))

		redisAdapter := storage.NewRedisAdapter(rdb, cfg.LockTTL, cfg.CacheTTL)
		if err := redisAdapter.InvalidateBooks(ctx); err != nil {
			logger.Warn("failed to invalidate catalog cache", zap.Error(err))
		}
		locker = redisAdapter
		books = storage.NewCachedBookRepository(books, redisAdapter, logger)
	} else {
		logger.Info("redis disabled, using in-process fulfillment lock")
	}

	publisher, err := openPublisher(cfg, tp, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("failed to close event publisher", zap.Error(err))
		}
	}()

	dispatcher := service.NewEventDispatcher(publisher, cfg.EventQueueSize, logger)
	dispatcher.Start(cfg.EventWorkers)
	defer func() {
		dispatcher.Close()
		logger.Info("event dispatcher stopped")
	}()
	logger.Info("started event workers", zap.Int("workers", cfg.EventWorkers), zap.String("backend", cfg.EventsBackend))

	services := handler.Services{
		Catalog:   service.NewCatalogService(books, logger),
		Warehouse: service.NewWarehouseService(st.inventory, logger),
		Orders:    service.NewOrderService(st.orders, dispatcher, logger),
		Fulfillment: service.NewFulfillmentService(st.orders, st.inventory, locker, logger,
			service.WithEvents(dispatcher),
			service.WithTracer(tp.Tracer(config.ServiceName)),
			service.WithStrictLineMatch(cfg.FulfillmentStrictMatch),
		),
	}

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(handler.LoggingInterceptor(logger)))
	handler.RegisterBookstoreServer(grpcServer, handler.NewGRPCHandler(services, cfg.StoreTimeout, logger))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCAddr, err)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler.NewHTTPHandler(services, st.pinger, cfg.StoreTimeout, logger).Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	deregister := registerService(cfg, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case runErr = <-errCh:
		logger.Error("server failed, shutting down", zap.Error(runErr))
	}

	deregister()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server forced to shutdown", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	return runErr
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*store, error) {
	switch cfg.StoreBackend {
	case config.BackendMongo:
		client, err := storage.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		adapter := storage.NewMongoAdapter(client, cfg.MongoDatabase)
		if err := adapter.EnsureIndexes(ctx); err != nil {
			_ = adapter.Close(ctx)
			return nil, err
		}
		logger.Info("connected to mongo", zap.String("database", cfg.MongoDatabase))
		return &store{
			books:     adapter,
			inventory: adapter,
			orders:    adapter,
			pinger:    adapter,
			seed:      adapter.SeedBooks,
			close:     adapter.Close,
		}, nil

	case config.BackendMySQL:
		db, err := openMySQL(ctx, cfg.MySQLDSN)
		if err != nil {
			return nil, err
		}
		adapter := storage.NewMySQLAdapter(db)
		if err := adapter.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("connected to mysql")
		return &store{
			books:     adapter,
			inventory: adapter,
			orders:    adapter,
			pinger:    adapter,
			seed:      adapter.SeedBooks,
			close:     func(context.Context) error { return db.Close() },
		}, nil

	default:
		adapter := storage.NewMemoryAdapter()
		logger.Warn("using in-memory store, data is lost on restart")
		return &store{
			books:     adapter,
			inventory: adapter,
			orders:    adapter,
			pinger:    adapter,
			seed: func(_ context.Context, books []domain.Book) (int, error) {
				adapter.Seed(books)
				return len(books), nil
			},
			close: func(context.Context) error { return nil },
		}, nil
	}
}

func openMySQL(ctx context.Context, dsn string) (*sql.DB, error) {
	if _, err := mysql.ParseDSN(dsn); err != nil {
		return nil, fmt.Errorf("invalid MYSQL_DSN: %w", err)
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql: %w", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping mysql: %w", err)
	}
	return db, nil
}

func seedCatalog(ctx context.Context, cfg *config.Config, st *store, logger *zap.Logger) error {
	if cfg.SeedFile == "" {
		return nil
	}

	books, err := storage.LoadCatalogFile(cfg.SeedFile)
	if err != nil {
		return err
	}
	inserted, err := st.seed(ctx, books)
	if err != nil {
		return fmt.Errorf("failed to seed catalog: %w", err)
	}
	logger.Info("catalog seeded", zap.String("file", cfg.SeedFile), zap.Int("inserted", inserted))
	return nil
}

func openPublisher(cfg *config.Config, tp trace.TracerProvider, logger *zap.Logger) (port.EventPublisher, error) {
	switch cfg.EventsBackend {
	case config.EventsRabbitMQ:
		return messaging.NewRabbitMQPublisher(cfg.RabbitMQURL, logger)
	case config.EventsKafka:
		return messaging.NewKafkaPublisher(cfg.KafkaBroker, tp)
	default:
		return messaging.NewLogPublisher(logger), nil
	}
}

// registerService announces the HTTP endpoint to Consul when configured.
// The returned func deregisters it.
func registerService(cfg *config.Config, logger *zap.Logger) func() {
	noop := func() {}
	if cfg.ConsulAddr == "" {
		return noop
	}

	_, portStr, err := net.SplitHostPort(cfg.HTTPAddr)
	if err != nil {
		logger.Warn("cannot derive HTTP port for Consul registration", zap.Error(err))
		return noop
	}
	httpPort, err := strconv.Atoi(portStr)
	if err != nil {
		logger.Warn("cannot derive HTTP port for Consul registration", zap.Error(err))
		return noop
	}

	consul, err := discovery.NewConsulClient(cfg.ConsulAddr, logger)
	if err != nil {
		logger.Warn("Consul unavailable, continuing without registration", zap.Error(err))
		return noop
	}

	if err := consul.Register(discovery.ServiceConfig{
		Name: config.ServiceName,
		ID:   cfg.ServiceID,
		Port: httpPort,
		Tags: []string{"http", "api"},
	}); err != nil {
		logger.Warn("failed to register with Consul", zap.Error(err))
		return noop
	}

	return func() {
		if err := consul.Deregister(cfg.ServiceID); err != nil {
			logger.Error("failed to deregister from Consul", zap.Error(err))
		}
	}
}
