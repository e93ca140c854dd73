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

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/rl1809/farm-market/internal/adapter/handler"
	"github.com/rl1809/farm-market/internal/adapter/messaging"
	"github.com/rl1809/farm-market/internal/adapter/storage"
	"github.com/rl1809/farm-market/internal/app"
	"github.com/rl1809/farm-market/internal/config"
	"github.com/rl1809/farm-market/internal/core/domain"
	"github.com/rl1809/farm-market/internal/logging"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "farm-market",
		Short:        "Farm marketplace transaction coordinator",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	})

	root.AddCommand(&cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or revert the MySQL schema",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] != "up" && args[0] != "down" {
				return fmt.Errorf("unknown direction %q", args[0])
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := sqlx.Open("mysql", cfg.MySQLDSN)
			if err != nil {
				return fmt.Errorf("open mysql: %w", err)
			}
			defer db.Close()
			return storage.Migrate(db.DB, args[0] == "up")
		},
	})

	return root
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backends, closeBackends, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackends()

	svc, events := app.Wire(backends, app.AuthSettings{
		Secret:     []byte(cfg.JWTSecret),
		SessionTTL: cfg.SessionTTL,
	}, cfg.QueueSize, logger)

	// Start worker pool
	workers := make(chan struct{})
	go func() {
		defer close(workers)
		g := errgroup.Group{}
		for i := 0; i < cfg.WorkerCount; i++ {
			i := i
			g.Go(func() error {
				events.Work(i)
				return nil
			})
		}
		g.Wait()
	}()
	logger.Info("started dispatch workers", zap.Int("count", cfg.WorkerCount))

	grpcServer := grpc.NewServer()
	handler.RegisterMarketplaceServer(grpcServer, handler.NewGRPCHandler(svc.Auth, svc.Market, logger.Named("grpc")))

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewHTTPHandler(svc, logger.Named("http")).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP shutdown", zap.Error(err))
		}
		grpcServer.GracefulStop()
		return nil
	})

	err = g.Wait()

	// Drain queued events before closing the backends they publish to.
	events.Close()
	<-workers
	logger.Info("workers stopped")
	return err
}

// openBackends connects the stores selected by cfg.Store. The returned func
// closes every connection that was opened.
func openBackends(ctx context.Context, cfg config.Config, logger *zap.Logger) (app.Backends, func(), error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using in-memory store, data is lost on exit")
		return app.MemoryBackends(), func() {}, nil
	}

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (app.Backends, func(), error) {
		closeAll()
		return app.Backends{}, nil, err
	}

	db, err := sqlx.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return fail(fmt.Errorf("open mysql: %w", err))
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	closers = append(closers, func() { db.Close() })
	if err := db.PingContext(ctx); err != nil {
		return fail(fmt.Errorf("ping mysql: %w", err))
	}
	logger.Info("connected to mysql")

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, PoolSize: 100})
	closers = append(closers, func() { rdb.Close() })
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fail(fmt.Errorf("ping redis: %w", err))
	}
	logger.Info("connected to redis")

	mongoClient, err := storage.ConnectMongo(ctx, cfg.MongoURI)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() { mongoClient.Disconnect(context.Background()) })
	mdb := mongoClient.Database(cfg.MongoDatabase)
	harvests := storage.NewMongoCollection[domain.Harvest](mdb, domain.CollectionHarvests)
	reminders := storage.NewMongoCollection[domain.Reminder](mdb, domain.CollectionReminders)
	agenda := storage.NewMongoCollection[domain.AgendaItem](mdb, domain.CollectionAgenda)
	for _, ensure := range []func(context.Context) error{harvests.EnsureIndexes, reminders.EnsureIndexes, agenda.EnsureIndexes} {
		if err := ensure(ctx); err != nil {
			return fail(err)
		}
	}
	logger.Info("connected to mongo")

	mysqlAdapter := storage.NewMySQLAdapter(db)
	redisAdapter := storage.NewRedisAdapter(rdb)
	backends := app.Backends{
		Market:    mysqlAdapter,
		Accounts:  mysqlAdapter,
		Cache:     redisAdapter,
		Feed:      redisAdapter,
		Harvests:  harvests,
		Reminders: reminders,
		Agenda:    agenda,
	}

	if cfg.AMQPURL == "" {
		logger.Warn("AMQP_URL not set, notifications are not forwarded")
		return backends, closeAll, nil
	}
	ch, closeRabbit, err := messaging.DialRabbit(cfg.AMQPURL)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() { closeRabbit() })
	publisher, err := messaging.NewRabbitPublisher(ch, cfg.AMQPExchange, messaging.DefaultBreakerSettings(), logger.Named("rabbitmq"))
	if err != nil {
		return fail(err)
	}
	backends.Bus = publisher
	logger.Info("connected to rabbitmq", zap.String("exchange", cfg.AMQPExchange))

	return backends, closeAll, nil
}
