package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/smukkama/weather-warehouse/internal/api"
	"github.com/smukkama/weather-warehouse/internal/database"
	"github.com/smukkama/weather-warehouse/internal/metrics"
	"github.com/smukkama/weather-warehouse/internal/protocol"
	"github.com/smukkama/weather-warehouse/internal/queue"
	"github.com/smukkama/weather-warehouse/internal/registry"
	"github.com/smukkama/weather-warehouse/internal/reporting"
	"github.com/smukkama/weather-warehouse/pkg/config"
	"github.com/smukkama/weather-warehouse/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

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

	reports := reporting.NewService(store, cfg.API.CacheTTL)
	loc, err := time.LoadLocation(cfg.API.Timezone)
	if err != nil {
		logger.Fatal("Invalid report timezone", zap.String("timezone", cfg.API.Timezone), zap.Error(err))
	}
	reports.SetLocation(loc)

	// Drop cached reports as soon as a run commits new rows
	var listener *queue.RunListener
	if len(cfg.Kafka.Brokers) > 0 {
		consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicRuns, cfg.Kafka.ConsumerGroup)
		defer consumer.Close()

		listener = queue.NewRunListener(consumer, func(ctx context.Context, event *protocol.RunEvent) error {
			if event.Changed() {
				reports.Invalidate()
				logger.Info("Report cache invalidated", zap.String("run_id", event.RunID))
			}
			return nil
		}, logger)
		listener.Start(context.Background())
	}

	recorder := metrics.NewRecorder()
	app := api.NewApp(cfg.API.ReadTimeout, cfg.API.WriteTimeout, logger)
	api.SetupRoutes(app, api.NewHandler(reports, registry.New(store), logger), recorder.Handler())

	go func() {
		addr := fmt.Sprintf(":%d", cfg.API.Port)
		logger.Info("Starting server", zap.String("address", addr))

		if err := app.Listen(addr); err != nil {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if listener != nil {
		listener.Stop()
	}
	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}

	logger.Info("Server stopped")
}
