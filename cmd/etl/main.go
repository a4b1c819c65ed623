package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/smukkama/weather-warehouse/internal/database"
	"github.com/smukkama/weather-warehouse/internal/fetcher"
	"github.com/smukkama/weather-warehouse/internal/lock"
	"github.com/smukkama/weather-warehouse/internal/metrics"
	"github.com/smukkama/weather-warehouse/internal/pipeline"
	"github.com/smukkama/weather-warehouse/internal/queue"
	"github.com/smukkama/weather-warehouse/internal/registry"
	"github.com/smukkama/weather-warehouse/internal/warehouse"
	"github.com/smukkama/weather-warehouse/pkg/config"
	"github.com/smukkama/weather-warehouse/pkg/logging"
)

const dayLayout = "2006-01-02"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	start := flag.String("start", "", "first day to fetch (YYYY-MM-DD)")
	end := flag.String("end", "", "last day to fetch (YYYY-MM-DD), defaults to -start")
	backfillDays := flag.Int("backfill-days", cfg.Pipeline.BackfillDays, "fetch [today-N, today] when -start is not set")
	daemon := flag.Bool("daemon", false, "run on PIPELINE_SCHEDULE until interrupted")
	migrate := flag.Bool("migrate", false, "apply schema migrations before running")
	flag.Parse()

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	db, err := database.Connect(database.Dialect(cfg.Database.Driver), cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	store := database.NewStore(db, logger)
	defer store.Close()

	if *migrate {
		if err := db.RunMigrations(logger); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
	}

	p := pipeline.New(store, registry.New(store), fetcher.NewOpenMeteo(fetcher.Config{
		BaseURL:          cfg.Fetcher.BaseURL,
		Timeout:          cfg.Fetcher.Timeout,
		MaxRetries:       cfg.Fetcher.MaxRetries,
		RetryDelay:       cfg.Fetcher.RetryDelay,
		Multiplier:       cfg.Fetcher.Multiplier,
		BreakerThreshold: uint32(cfg.Fetcher.BreakerThreshold),
		BreakerTimeout:   cfg.Fetcher.BreakerTimeout,
	}, logger), logger, pipeline.Config{FetchConcurrency: cfg.Pipeline.FetchConcurrency})
	recorder := metrics.NewRecorder()
	p.SetMetrics(recorder)

	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		p.SetLocker(lock.NewRedisLocker(redisClient, lock.DefaultKey, cfg.Pipeline.LockTTL))
		logger.Info("Using Redis run lock", zap.String("addr", cfg.Redis.Addr))
	}

	if len(cfg.Kafka.Brokers) > 0 {
		if err := queue.CreateTopic(cfg.Kafka.Brokers, cfg.Kafka.TopicRuns, cfg.Kafka.NumPartitions, 1); err != nil {
			logger.Warn("Failed to create run topic", zap.String("topic", cfg.Kafka.TopicRuns), zap.Error(err))
		}
		producer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicRuns)
		defer producer.Close()
		p.SetPublisher(producer)
	}

	if *daemon {
		runDaemon(p, recorder, cfg, *backfillDays, logger)
		return
	}

	w, err := window(*start, *end, *backfillDays, time.Now())
	if err != nil {
		logger.Fatal("Invalid window", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := p.Run(ctx, w); err != nil {
		logger.Error("Run failed", zap.Error(err))
		if errors.Is(err, warehouse.ErrRunInProgress) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func runDaemon(p *pipeline.Pipeline, recorder *metrics.Recorder, cfg *config.Config, backfillDays int, logger *zap.Logger) {
	scheduler, err := pipeline.NewScheduler(cfg.Pipeline.Schedule, p, backfillDays, cfg.Pipeline.LockTTL, logger)
	if err != nil {
		logger.Fatal("Failed to create scheduler", zap.Error(err))
	}
	scheduler.Start()
	logger.Info("ETL daemon running", zap.String("schedule", cfg.Pipeline.Schedule))

	var metricsServer *http.Server
	if cfg.Pipeline.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", recorder.Handler())
		metricsServer = &http.Server{Addr: cfg.Pipeline.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Shutting down gracefully...")
	scheduler.Stop()
	if metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(ctx)
	}
}

// window resolves the run window from -start/-end, or the backfill default
func window(start, end string, backfillDays int, now time.Time) (pipeline.Window, error) {
	if start == "" {
		if end != "" {
			return pipeline.Window{}, errors.New("-end requires -start")
		}
		return pipeline.TodayWindow(now, backfillDays), nil
	}
	if end == "" {
		end = start
	}

	s, err := time.Parse(dayLayout, start)
	if err != nil {
		return pipeline.Window{}, fmt.Errorf("invalid -start: %w", err)
	}
	e, err := time.Parse(dayLayout, end)
	if err != nil {
		return pipeline.Window{}, fmt.Errorf("invalid -end: %w", err)
	}

	w := pipeline.Window{Start: s, End: e}
	return w, w.Validate()
}
