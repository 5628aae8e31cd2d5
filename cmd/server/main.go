package main

import (
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/tandemhq/tandem-api/internal/bootstrap"
	"github.com/tandemhq/tandem-api/internal/config"
	"github.com/tandemhq/tandem-api/internal/server"
	"github.com/tandemhq/tandem-api/pkg/database"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db := database.Connect()
	if err := bootstrap.Migrate(db); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	if err := bootstrap.SeedJourneys(db); err != nil {
		log.Fatalf("failed to seed journeys: %v", err)
	}
	if cfg.AppEnv == "development" {
		if err := bootstrap.SeedDemoCouple(db); err != nil {
			log.Fatalf("failed to seed demo couple: %v", err)
		}
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("invalid REDIS_URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
	} else {
		log.Println("REDIS_URL not set, live updates disabled")
	}

	srv := server.NewServer(cfg, db, redisClient)
	if err := srv.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server exited with error: %v", err)
	}
}
