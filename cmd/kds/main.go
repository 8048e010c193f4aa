package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dining-service/internal/models"
	"dining-service/internal/realtime"
	"dining-service/internal/util"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	defaults := realtime.DefaultFollowerConfig()
	var (
		server, storeID, station, env string
		cfg                           realtime.FollowerConfig
	)

	flagSet := pflag.NewFlagSet("kds", pflag.ContinueOnError)
	flagSet.StringVar(&server, "server", envOr("KDS_SERVER_URL", "http://localhost:8080"), "dining service base URL")
	flagSet.StringVar(&storeID, "store", os.Getenv("KDS_STORE_ID"), "store to follow")
	flagSet.StringVar(&station, "station", os.Getenv("KDS_STATION"), "only show tickets for this station")
	flagSet.DurationVar(&cfg.PollInterval, "poll", defaults.PollInterval, "snapshot poll interval")
	flagSet.DurationVar(&cfg.BackoffMin, "backoff-min", defaults.BackoffMin, "initial reconnect delay")
	flagSet.DurationVar(&cfg.BackoffMax, "backoff-max", defaults.BackoffMax, "maximum reconnect delay")
	flagSet.StringVar(&env, "env", envOr("ENV", "development"), "logging environment")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		log.Fatalf("Invalid arguments: %v", err)
	}

	if err := util.InitLogger(env, os.Getenv("LOG_LEVEL")); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()
	logger := util.GetLogger()

	if storeID == "" {
		logger.Fatal("A store is required (--store or KDS_STORE_ID)")
	}

	// No client timeout; the event stream is long-lived
	source := realtime.NewHTTPSource(server, &http.Client{})
	follower := realtime.NewFollower(storeID, source, cfg)
	follower.OnApply(func(ev models.Envelope) {
		board := Summarize(follower.Checks(), station)
		logger.Info("Board updated",
			zap.String("event", string(ev.Type)),
			zap.String("check_id", ev.CheckID),
			zap.Uint64("sequence", ev.Sequence),
			zap.Int("open_checks", board.OpenChecks),
			zap.Int("pending", board.Pending),
			zap.Int("cooking", board.Cooking),
			zap.Int("ready", board.Ready))
		for _, line := range board.Lines {
			logger.Debug("Ticket item",
				zap.Int("table", line.Table),
				zap.String("station", line.Station),
				zap.String("item", line.Name),
				zap.Int("qty", line.Quantity),
				zap.String("status", string(line.Status)),
				zap.Duration("age", time.Since(line.Since).Truncate(time.Second)))
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Following store",
		zap.String("server", server),
		zap.String("store_id", storeID),
		zap.String("station", station))

	if err := follower.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("Follower stopped", zap.Error(err))
	}
	logger.Info("Kitchen display exited")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
