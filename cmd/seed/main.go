package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/smukkama/weather-warehouse/internal/database"
	"github.com/smukkama/weather-warehouse/internal/registry"
	"github.com/smukkama/weather-warehouse/internal/warehouse"
	"github.com/smukkama/weather-warehouse/pkg/config"
	"github.com/smukkama/weather-warehouse/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	file := flag.String("file", cfg.Pipeline.SeedFile, "YAML file with a locations list; the built-in set when empty")
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

	if err := db.RunMigrations(logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	locations := registry.DefaultLocations()
	if *file != "" {
		if locations, err = registry.LoadFile(*file); err != nil {
			logger.Fatal("Failed to load seed file", zap.String("file", *file), zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := registry.New(store).Seed(ctx, locations); err != nil {
		logger.Fatal("Failed to seed locations", zap.Error(err))
	}

	for _, loc := range locations {
		logger.Info("Seeded location", zap.Int("location_id", loc.ID), zap.String("city", loc.City))
	}
	logger.Info("Seeding complete", zap.Int("locations", len(locations)), zap.String("table", warehouse.TableLocation))
}
