package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Skotchmaster/online_catalog/internal/auth"
	"github.com/Skotchmaster/online_catalog/internal/cache"
	"github.com/Skotchmaster/online_catalog/internal/config"
	"github.com/Skotchmaster/online_catalog/internal/events"
	"github.com/Skotchmaster/online_catalog/internal/files"
	"github.com/Skotchmaster/online_catalog/internal/handlers"
	"github.com/Skotchmaster/online_catalog/internal/logging"
	"github.com/Skotchmaster/online_catalog/internal/repo"
	"github.com/Skotchmaster/online_catalog/internal/revocation"
	"github.com/Skotchmaster/online_catalog/internal/search"
	"github.com/Skotchmaster/online_catalog/internal/service"
	"github.com/Skotchmaster/online_catalog/internal/tokens"
	httpserver "github.com/Skotchmaster/online_catalog/internal/transport/http"
)

const sideEffectTimeout = 5 * time.Second

func fatal(l *slog.Logger, msg string, err error) {
	l.Error(msg, "error", err)
	os.Exit(1)
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fatal(slog.Default(), "config_load_failed", err)
	}
	log := logging.New(cfg.LogLevel)
	slog.SetDefault(log)
	if err := cfg.Validate(); err != nil {
		fatal(log, "config_invalid", err)
	}

	ctx := context.Background()

	db, err := config.InitDB(ctx, cfg.DatabaseURL)
	if err != nil {
		fatal(log, "db_init_failed", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		fatal(log, "redis_url_invalid", err)
	}
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("redis_unreachable", "error", err)
	}

	storage, err := files.NewStorage(cfg)
	if err != nil {
		fatal(log, "storage_init_failed", err)
	}
	filesDir := ""
	if local, ok := storage.(*files.LocalStorage); ok {
		filesDir = local.Root()
	}

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		if err := events.EnsureTopics(ctx, cfg.KafkaBrokers[0], events.ProductTopic, events.UserTopic); err != nil {
			log.Warn("kafka_topics_not_ensured", "error", err)
		}
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers)
	}

	// A nil *search.Client must not reach the service as a non-nil Indexer.
	var indexer service.Indexer
	if cfg.ESURL != "" {
		es, err := search.Connect(ctx, cfg.ESURL, cfg.ESUser, cfg.ESPassword, cfg.ESIndex)
		if err != nil {
			log.Warn("search_disabled", "error", err)
		} else {
			indexer = es
		}
	}

	r := &repo.GormRepo{DB: db}
	store := cache.NewRedisStore(rdb, cfg.StoreTimeout)
	inv := cache.NewInvalidator(store, 2*time.Second)
	codec := tokens.NewCodec(cfg.JWTSecret)
	authn := auth.NewAuthenticator(codec, revocation.NewStore(rdb, cfg.StoreTimeout), r)

	catalog := service.NewCatalogService(service.CatalogDeps{
		Store:             r,
		Cache:             store,
		Invalidator:       inv,
		Files:             files.NewManager(storage, cfg.BaseURL),
		Events:            publisher,
		Search:            indexer,
		CacheTTL:          cfg.CacheTTL,
		SideEffectTimeout: sideEffectTimeout,
	})
	users := service.NewUserService(service.UserDeps{
		Store:             r,
		Cache:             store,
		Invalidator:       inv,
		Tokens:            codec,
		Revoker:           authn,
		Events:            publisher,
		CacheTTL:          cfg.CacheTTL,
		SideEffectTimeout: sideEffectTimeout,
	})

	e := httpserver.New(&httpserver.Deps{
		DB:             db,
		Redis:          rdb,
		Auth:           authn,
		ProductHandler: handlers.NewProductHandler(catalog),
		UserHandler:    handlers.NewUserHandler(users),
		Logger:         log,
		FilesDir:       filesDir,
		AllowedOrigins: cfg.AllowedOrigins,
		Development:    cfg.Development(),
		MaxUploadMB:    cfg.MaxUploadMB,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Info("http_server_started", "addr", cfg.HTTPAddr, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http_server_error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	go func() {
		<-quit
		log.Warn("force_exit")
		os.Exit(1)
	}()

	log.Info("shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server_shutdown_error", "error", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Error("db_close_error", "error", err)
		}
	} else {
		log.Error("db_handle_error", "error", err)
	}

	if err := rdb.Close(); err != nil {
		log.Error("redis_close_error", "error", err)
	}

	if err := publisher.Close(); err != nil {
		log.Error("kafka_close_error", "error", err)
	}

	log.Info("shutdown_complete")
}
