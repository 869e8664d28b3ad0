package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/christopherjohns/fekoyaha/internal/blob"
	"github.com/christopherjohns/fekoyaha/internal/chat"
	"github.com/christopherjohns/fekoyaha/internal/config"
	"github.com/christopherjohns/fekoyaha/internal/directory"
	"github.com/christopherjohns/fekoyaha/internal/server"
)

func main() {
	// A missing .env is fine; the environment may be set by the deployment.
	_ = godotenv.Load()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := config.NewLogger(cfg.Env)

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithAdminToken(cfg.AdminToken),
		server.WithCreateRateLimit(cfg.CreateRateLimit),
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			cancel()
			log.Fatalf("Failed to connect to Redis at %s: %v", cfg.RedisAddr, err)
		}
		cancel()
		logger.Info("connected to redis", "addr", cfg.RedisAddr)
		opts = append(opts,
			server.WithStore(chat.NewRedisStore(rdb)),
			server.WithDirectory(directory.New(rdb, logger)),
		)
	} else {
		logger.Warn("REDIS_ADDR not set, room state is in-memory only")
	}

	var blobs blob.Store
	if cfg.BlobNATSURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		js, err := blob.NewJetStreamStore(ctx, cfg.BlobNATSURL, cfg.BlobBucket)
		cancel()
		if err != nil {
			log.Fatalf("Failed to open blob bucket: %v", err)
		}
		defer js.Close()
		blobs = js
		logger.Info("blob store on NATS", "url", cfg.BlobNATSURL, "bucket", cfg.BlobBucket)
	} else {
		fs, err := blob.NewFSStore(cfg.BlobDir)
		if err != nil {
			log.Fatalf("Failed to create blob dir %s: %v", cfg.BlobDir, err)
		}
		blobs = fs
		logger.Info("blob store on filesystem", "dir", cfg.BlobDir)
	}
	opts = append(opts, server.WithBlobStore(blobs))

	if cfg.AdminToken == "" {
		logger.Warn("ADMIN_TOKEN not set, admin surface is disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg.ListenAddr, opts...)
	logger.Info("starting server", "addr", cfg.ListenAddr, "env", cfg.Env)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
