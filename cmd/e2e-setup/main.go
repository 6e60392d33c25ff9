package main

import (
	"context"
	"flag"
	"log"
	"time"

	"telegram-archive-bot/internal/config"
	"telegram-archive-bot/internal/infra/db/postgres"
	"telegram-archive-bot/internal/infra/redis"
)

// Resets the database and cache to a clean, predictable state for manual
// end-to-end testing: schema migrated, tables empty, cursor at zero.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := postgres.WaitForPostgres(ctx, cfg.Database.URL, 15*time.Second); err != nil {
		log.Fatalf("postgres not reachable: %v", err)
	}

	log.Println("--- Starting E2E Environment Setup ---")

	log.Println("[1/3] Running migrations...")
	if err := postgres.RunMigrations(cfg.Database.URL); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	pool, err := postgres.NewPgxPool(ctx, cfg.Database.URL, 5)
	if err != nil {
		log.Fatalf("postgres connection failed: %v", err)
	}
	defer pool.Close()

	log.Println("[2/3] Wiping archive data and resetting the cursor...")
	_, err = pool.Exec(ctx, `
		TRUNCATE
			users, conversations, messages, message_versions, outbound_messages
		RESTART IDENTITY CASCADE;
	`)
	if err != nil {
		log.Fatalf("failed to truncate tables: %v", err)
	}
	if _, err := pool.Exec(ctx, `UPDATE cursor SET last_update_id = 0 WHERE id = 1`); err != nil {
		log.Fatalf("failed to reset cursor: %v", err)
	}

	log.Println("[3/3] Wiping Redis cache...")
	redisClient, err := redis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer redisClient.Close()
	if err := redisClient.FlushDB(ctx); err != nil {
		log.Fatalf("failed to flush redis: %v", err)
	}

	log.Println("--- E2E Environment Setup Complete ---")
}
