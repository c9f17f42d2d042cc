package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"anoa.com/threadline/internal/bootstrap"
	"anoa.com/threadline/internal/config"
	"anoa.com/threadline/internal/server"
	"anoa.com/threadline/pkg/database"
	"github.com/meilisearch/meilisearch-go"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	dsn := cfg.DatabaseURL
	if dsn == "" {
		dsn = database.BuildDSN(cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode)
	}
	db, err := database.Connect(database.Options{DSN: dsn, Verbose: cfg.AppEnv == "development"})
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := bootstrap.Migrate(db); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	if err := bootstrap.SeedInteractionTypes(db); err != nil {
		log.Fatalf("failed to seed interaction types: %v", err)
	}
	if cfg.AppEnv == "development" {
		if err := bootstrap.SeedDemo(db); err != nil {
			log.Fatalf("failed to seed demo data: %v", err)
		}
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("%v", err)
		}
		defer redisClient.Close()
	} else {
		log.Println("⚠️ REDIS_URL not set: relay, rate limiting and analytics disabled")
	}

	var meiliClient meilisearch.ServiceManager
	if cfg.MeiliSearchHost != "" {
		host := cfg.MeiliSearchHost
		if !strings.HasPrefix(host, "http") {
			host = "http://" + host + ":7700"
		}
		meiliClient = meilisearch.New(host, meilisearch.WithAPIKey(cfg.MeiliMasterKey))
	} else {
		log.Println("⚠️ MEILISEARCH_HOST not set: comment search disabled")
	}

	srv, err := server.NewServer(cfg, db, redisClient, meiliClient)
	if err != nil {
		log.Fatalf("failed to build server: %v", err)
	}
	srv.Start()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(":" + cfg.Port)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server exited with error: %v", err)
		}
	case sig := <-quit:
		log.Printf("🛑 Received %s, shutting down...", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("❌ Shutdown error: %v", err)
	}
	log.Println("✅ Server stopped")
}
