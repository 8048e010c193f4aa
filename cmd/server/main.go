package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dining-service/config"
	"dining-service/internal/api"
	"dining-service/internal/broker"
	"dining-service/internal/gateway"
	"dining-service/internal/realtime"
	"dining-service/internal/redisclient"
	"dining-service/internal/service"
	"dining-service/internal/store"
	"dining-service/internal/util"
	"dining-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting dining service", zap.String("env", cfg.Server.Env))

	tp, err := util.InitTracer(cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL, store.PoolConfig{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(); err != nil {
			logger.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	redisClient.SetReplayTTL(cfg.Payment.ReplayTTL)
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicActivity)
	defer producer.Close()
	logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	recorder := broker.NewActivityRecorder(producer, cfg.Kafka.ActivityBuffer)
	recorder.Start(workerCtx)

	sessions := service.NewSessionStore(
		service.WithJournal(db),
		service.WithActivitySink(recorder),
	)

	ctx := context.Background()
	if err := restoreSessions(ctx, db, sessions); err != nil {
		logger.Fatal("Failed to restore table sessions", zap.Error(err))
	}

	broadcaster := realtime.NewBroadcaster(sessions, cfg.Realtime.SubscriberBuffer)
	sessions.AddPublisher(broadcaster)

	tables := service.NewTableSessionManager(sessions)
	for _, spec := range cfg.Floor.Tables {
		for n := spec.From; n <= spec.To; n++ {
			if _, err := tables.Provision(ctx, spec.StoreID, n, spec.Capacity); err != nil {
				logger.Error("Failed to provision table",
					zap.Error(err), zap.String("store_id", spec.StoreID), zap.Int("table", n))
			}
		}
	}

	tickets := service.NewTicketDispatcher(sessions)
	orders := service.NewOrderAggregator(sessions, db, tickets)
	payments := service.NewPaymentReconciler(
		sessions,
		db,
		gateway.NewSimulated(cfg.Gateway.SuccessRate, cfg.Gateway.Latency),
		db,
		redisClient,
		service.ReconcilerConfig{
			GatewayTimeout: cfg.Gateway.Timeout,
			KeyLockTTL:     cfg.Payment.LockTTL,
		},
	)
	payments.SetReplayCache(redisClient)
	tickets.SetClosureReviewer(payments)

	resolved, err := payments.ResolvePending(ctx)
	if err != nil {
		logger.Error("Failed to resolve pending payments", zap.Error(err))
	} else if resolved > 0 {
		logger.Info("Resolved pending payments", zap.Int("count", resolved))
	}

	activityConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicActivity, cfg.Kafka.ConsumerGroup)
	activityWorker := worker.NewActivityWorker(activityConsumer, db)
	go func() {
		if err := activityWorker.Start(workerCtx); err != nil && err != context.Canceled {
			logger.Error("Activity worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(sessions, tables, orders, tickets, payments, broadcaster)
	handler.SetKeepalive(cfg.Realtime.Keepalive)
	handler.AddReadinessCheck("postgres", db)
	handler.AddReadinessCheck("redis", redisClient)
	handler.SetActivityLog(db)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Ends open event streams so Shutdown does not wait on them
	broadcaster.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	recorder.Stop()
	workerCancel()
	activityWorker.Stop()

	logger.Info("Server exited")
}

func restoreSessions(ctx context.Context, db *store.Store, sessions *service.SessionStore) error {
	tables, err := db.ListTables(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tables: %w", err)
	}
	checks, err := db.LoadOpenChecks(ctx)
	if err != nil {
		return fmt.Errorf("failed to load open checks: %w", err)
	}

	restored := sessions.Restore(tables, checks)
	util.GetLogger().Info("Restored table sessions",
		zap.Int("tables", len(tables)),
		zap.Int("checks", restored))
	return nil
}
