package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/grupoimpulso/seat-sales/internal/adapter/handler"
	"github.com/grupoimpulso/seat-sales/internal/adapter/messaging"
	"github.com/grupoimpulso/seat-sales/internal/adapter/payment"
	"github.com/grupoimpulso/seat-sales/internal/adapter/storage"
	"github.com/grupoimpulso/seat-sales/internal/config"
	"github.com/grupoimpulso/seat-sales/internal/core/domain"
	"github.com/grupoimpulso/seat-sales/internal/core/service"
	"github.com/grupoimpulso/seat-sales/internal/logger"
	"github.com/grupoimpulso/seat-sales/internal/port"
	"github.com/grupoimpulso/seat-sales/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default ./config/config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	logger.Setup(cfg.Log.Level, cfg.Log.Format)

	if err := run(cfg); err != nil {
		logrus.Fatalf("server error: %v", err)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	db, closeDB, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeDB()

	// Initialize Redis
	var cache port.CacheRepository
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		cache = storage.NewRedisAdapter(rdb)
		logrus.WithField("addr", cfg.Redis.Addr).Info("connected to redis")
	} else {
		logrus.Warn("redis disabled, checkout requests are not de-duplicated")
	}

	// Initialize event pipeline
	publisher, err := openPublisher(cfg.Events)
	if err != nil {
		return err
	}
	dispatcher := messaging.NewDispatcher(publisher, cfg.Events.Workers, cfg.Events.QueueSize)
	defer dispatcher.Close()

	// Initialize services
	gateway := payment.NewRedirectGateway(map[domain.PaymentMethod]payment.Provider{
		domain.PaymentMethodMercadoPago: {CheckoutURL: cfg.Payment.MercadoPago.CheckoutURL, Secret: cfg.Payment.MercadoPago.Secret},
		domain.PaymentMethodTransbank:   {CheckoutURL: cfg.Payment.Transbank.CheckoutURL, Secret: cfg.Payment.Transbank.Secret},
	})
	sales := service.NewSaleService(db, cache, dispatcher)
	reservations := service.NewReservationService(db, cache, gateway, sales, dispatcher)
	listings := service.NewListingService(db, cache, cfg.Redis.CacheTTL)
	auth := service.NewAuthService(db, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	if cfg.Auth.AdminEmail != "" {
		if _, err := auth.EnsureAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminName, cfg.Auth.AdminPassword); err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler.NewHTTPHandler(listings, reservations, sales, auth, gateway).Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.UnaryLogger))
	handler.RegisterSaleServiceServer(grpcServer, handler.NewGRPCHandler(reservations, sales))

	var grpcListener net.Listener
	if cfg.GRPC.Enabled {
		if grpcListener, err = net.Listen("tcp", cfg.GRPC.Addr); err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
	}

	sweeper := worker.NewPendingSaleSweeper(sales, cfg.Sale.SweepInterval, cfg.Sale.PendingTimeout, cfg.Sale.SweepBatch)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sweeper.Start(gctx)
		return nil
	})

	g.Go(func() error {
		logrus.WithField("addr", cfg.Server.Addr).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if grpcListener != nil {
		g.Go(func() error {
			logrus.WithField("addr", cfg.GRPC.Addr).Info("gRPC server listening")
			if err := grpcServer.Serve(grpcListener); err != nil {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logrus.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logrus.WithError(err).Error("HTTP server shutdown")
		}
		logrus.Info("HTTP server stopped")

		grpcServer.GracefulStop()
		logrus.Info("gRPC server stopped")
		return nil
	})

	err = g.Wait()

	// Drain queued events once nothing can emit any more
	if closeErr := dispatcher.Close(); closeErr != nil {
		logrus.WithError(closeErr).Error("failed to close event publisher")
	}
	logrus.Info("connections closed")
	return err
}

func openStorage(ctx context.Context, cfg config.StorageConfig) (port.DatabaseRepository, func(), error) {
	switch cfg.Driver {
	case "mysql":
		db, err := sql.Open("mysql", cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open mysql: %w", err)
		}
		db.SetMaxOpenConns(cfg.Pool.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Pool.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Pool.ConnMaxLifetime)
		db.SetConnMaxIdleTime(cfg.Pool.ConnMaxIdleTime)

		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ping mysql: %w", err)
		}
		if err := storage.MigrateMySQL(ctx, db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate mysql: %w", err)
		}
		logrus.Info("connected to mysql")
		return storage.NewMySQLAdapter(db), func() { db.Close() }, nil

	case "postgres":
		pool, err := storage.NewPostgresPool(ctx, cfg.DSN, storage.PoolConfig{
			MaxConns:        int32(cfg.Pool.MaxOpenConns),
			MinConns:        int32(min(cfg.Pool.MaxIdleConns, cfg.Pool.MaxOpenConns)),
			MaxConnLifetime: cfg.Pool.ConnMaxLifetime,
			MaxConnIdleTime: cfg.Pool.ConnMaxIdleTime,
			ConnectAttempts: cfg.Pool.ConnectAttempts,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := storage.MigratePostgres(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		logrus.Info("connected to postgres")
		return storage.NewPostgresAdapter(pool), pool.Close, nil
	}

	logrus.Warn("using in-memory storage, data is lost on restart")
	return storage.NewMemoryAdapter(), func() {}, nil
}

func openPublisher(cfg config.EventsConfig) (port.EventPublisher, error) {
	switch cfg.Driver {
	case "kafka":
		return messaging.NewKafkaPublisher(cfg.Brokers, cfg.Topic), nil
	case "rabbitmq":
		var (
			p   *messaging.RabbitMQPublisher
			err error
		)
		for attempt := 1; attempt <= 5; attempt++ {
			if p, err = messaging.NewRabbitMQPublisher(cfg.URL, cfg.Topic); err == nil {
				return p, nil
			}
			logrus.WithError(err).WithField("attempt", attempt).Warn("rabbitmq not ready, retrying")
			time.Sleep(2 * time.Second)
		}
		return nil, err
	}
	return messaging.NewLogPublisher(logrus.StandardLogger()), nil
}
