package main

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/hri/contact-sync/internal/activecampaign"
	"github.com/hri/contact-sync/internal/config"
	"github.com/hri/contact-sync/internal/filestore"
	"github.com/hri/contact-sync/internal/pkg/distlock"
	"github.com/hri/contact-sync/internal/pkg/logger"
	"github.com/hri/contact-sync/internal/secrets"
	"github.com/hri/contact-sync/internal/syncjob"
)

const (
	exitOK = iota
	exitFatal
	exitPartial
)

func main() {
	os.Exit(run())
}

func run() int {
	path := os.Getenv("CONTACT_SYNC_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := config.LoadFromEnv(path)
	if err != nil {
		logger.Error("failed to load config", "path", path, "error", err.Error())
		return exitFatal
	}

	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetRedactPII(cfg.Log.RedactPII)
	log := logger.Default().With("run_id", uuid.NewString())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.RunTimeout())
	defer cancel()

	// Credentials first: nothing runs without a token.
	token := cfg.ActiveCampaign.APIToken
	if token == "" {
		provider, err := secrets.New(ctx, cfg.Secrets)
		if err != nil {
			log.Error("failed to init secrets provider", "provider", cfg.Secrets.Provider, "error", err.Error())
			return exitFatal
		}
		token, err = provider.Get(ctx, cfg.Secrets.APITokenName)
		if err != nil {
			log.Error("failed to read API token", "secret", cfg.Secrets.APITokenName, "error", err.Error())
			return exitFatal
		}
	}
	if cfg.ActiveCampaign.BaseURL == "" {
		log.Error("activecampaign.base_url is required")
		return exitFatal
	}

	store, err := filestore.New(ctx, cfg.FileStore)
	if err != nil {
		log.Error("failed to init file store", "type", cfg.FileStore.Type, "error", err.Error())
		return exitFatal
	}

	lock, closeLock, err := openLock(cfg.Lock, log)
	if err != nil {
		log.Error("failed to init run log lock", "error", err.Error())
		return exitFatal
	}
	defer closeLock()

	client := activecampaign.NewClient(activecampaign.Config{
		BaseURL:        cfg.ActiveCampaign.BaseURL,
		APIToken:       token,
		BulkImportPath: cfg.ActiveCampaign.BulkImportPath,
		Timeout:        cfg.ActiveCampaign.Timeout(),
		MaxRetries:     cfg.ActiveCampaign.MaxRetries,
		Limiter:        rate.NewLimiter(rate.Limit(cfg.ActiveCampaign.RequestsPerSecond), 1),
	})

	job := syncjob.New(cfg, syncjob.Deps{API: client, Store: store, Lock: lock, Logger: log})

	log.Info("sync run starting", "filestore", cfg.FileStore.Type, "rps", cfg.ActiveCampaign.RequestsPerSecond)
	sum, err := job.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			log.Error("sync run aborted", "error", err.Error())
			return exitFatal
		}
		log.Error("sync run finished with errors", "error", err.Error())
		return exitPartial
	}

	for _, s := range []syncjob.SourceSummary{sum.Welcome, sum.Segments} {
		for _, f := range s.Failures {
			log.Error("batch not imported", "source", string(s.Source), "batch", f.Index, "lo", f.Lo, "hi", f.Hi,
				"retryable", f.Retryable, "error", f.Err.Error())
		}
		for _, fe := range s.FileErrors {
			log.Error("file not imported", "source", string(s.Source), "file", fe.File, "error", fe.Err.Error())
		}
	}
	if sum.Failed() {
		return exitPartial
	}
	return exitOK
}

// openLock picks Redis, then Postgres, then no lock.
func openLock(cfg config.LockConfig, log *logger.Logger) (distlock.DistLock, func(), error) {
	var (
		redisClient *redis.Client
		db          *sql.DB
	)
	closer := func() {
		if redisClient != nil {
			redisClient.Close()
		}
		if db != nil {
			db.Close()
		}
	}

	switch {
	case cfg.RedisURL != "":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			opts = &redis.Options{Addr: cfg.RedisURL}
		}
		redisClient = redis.NewClient(opts)
		log.Info("run log lock: redis")
	case cfg.DatabaseURL != "":
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, closer, err
		}
		db.SetMaxOpenConns(2)
		log.Info("run log lock: postgres advisory")
	default:
		log.Info("run log lock: none, runs must not overlap")
	}

	return distlock.NewLock(redisClient, db, cfg.Key, cfg.TTL()), closer, nil
}
