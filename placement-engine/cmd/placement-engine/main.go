package main

import (
	"context"
	"database/sql"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/ILLUVRSE/placements/placement-engine/internal/analytics"
	"github.com/ILLUVRSE/placements/placement-engine/internal/config"
	"github.com/ILLUVRSE/placements/placement-engine/internal/fallback"
	"github.com/ILLUVRSE/placements/placement-engine/internal/httpserver"
	"github.com/ILLUVRSE/placements/placement-engine/internal/network"
	"github.com/ILLUVRSE/placements/placement-engine/internal/session"
	"github.com/ILLUVRSE/placements/placement-engine/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	kv, closeStore, err := openStore(cfg, logger)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer closeStore()

	client, err := network.New(network.Config{
		BaseURL: cfg.APIURL,
		APIKey:  cfg.APIKey,
		Timeout: cfg.APITimeout,
		Retries: cfg.APIRetries,
	})
	if err != nil {
		log.Fatalf("network client: %v", err)
	}

	var bundle *fallback.Bundle
	if cfg.FallbackFile != "" {
		bundle, err = fallback.LoadBundleFile(cfg.FallbackFile)
		if err != nil {
			log.Fatalf("load fallback bundle: %v", err)
		}
	}
	remotes := []fallback.Remote{client}
	if cfg.FallbackBucket != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		src, err := fallback.NewS3Source(ctx, cfg.FallbackBucket, cfg.FallbackKey, cfg.FallbackTTL, logger)
		cancel()
		if err != nil {
			log.Fatalf("s3 fallback source: %v", err)
		}
		remotes = append(remotes, src)
	}
	fallbacks := fallback.NewProvider(bundle, logger, remotes...)

	var sink analytics.Sink = analytics.NewLogSink(logger)
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := analytics.NewKafkaSink(analytics.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		}, logger)
		if err != nil {
			log.Fatalf("kafka sink: %v", err)
		}
		defer kafkaSink.Close()
		sink = analytics.Multi{sink, kafkaSink}
	}

	sessions := session.NewManager(session.Config{
		MaxProfiles:    cfg.MaxProfiles,
		IdleTTL:        cfg.SessionIdleTTL,
		DefaultTimeout: cfg.DefaultTimeout,
	}, session.Deps{
		Store:     kv,
		Backend:   client,
		Fallback:  fallbacks,
		Analytics: sink,
		Logger:    logger,
	})

	verifier, err := httpserver.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.DevAllowAuth)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}
	server := httpserver.New(sessions, verifier, kv, logger)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("placement engine listening", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	waitForShutdown(httpServer)
}

func openStore(cfg config.Config, logger *slog.Logger) (store.KV, func(), error) {
	switch {
	case cfg.DatabaseURL != "":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		db.SetMaxOpenConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("using postgres cache store")
		return store.NewPGStore(db), closer(db, logger), nil
	case cfg.BadgerPath != "":
		bs, err := store.OpenBadgerStore(store.BadgerConfig{Path: cfg.BadgerPath, SyncWrites: true, Logger: logger})
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using badger cache store", "path", cfg.BadgerPath)
		return bs, closer(bs, logger), nil
	default:
		logger.Warn("no persistent store configured, cache is in-memory")
		return store.NewMemoryStore(), func() {}, nil
	}
}

func closer(c io.Closer, logger *slog.Logger) func() {
	return func() {
		if err := c.Close(); err != nil {
			logger.Error("close store", "error", err)
		}
	}
}

func waitForShutdown(srv *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
