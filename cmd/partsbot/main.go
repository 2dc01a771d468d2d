package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/partsbot/internal/catalog"
	"github.com/vasiliy-maslov/partsbot/internal/chat"
	"github.com/vasiliy-maslov/partsbot/internal/config"
	"github.com/vasiliy-maslov/partsbot/internal/db"
	"github.com/vasiliy-maslov/partsbot/internal/engine"
	"github.com/vasiliy-maslov/partsbot/internal/handler"
	"github.com/vasiliy-maslov/partsbot/internal/history"
	"github.com/vasiliy-maslov/partsbot/internal/notify"
	"github.com/vasiliy-maslov/partsbot/internal/order"
	"github.com/vasiliy-maslov/partsbot/internal/profile"
	"github.com/vasiliy-maslov/partsbot/internal/rbac"
	"github.com/vasiliy-maslov/partsbot/internal/scenes"
	"github.com/vasiliy-maslov/partsbot/internal/session"
	"github.com/vasiliy-maslov/partsbot/internal/settings"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	log.Logger = log.With().Str("service", "partsbot").Logger()

	log.Info().Msg("Partsbot starting...")

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	ctx := context.Background()

	pg, err := db.New(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pg.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	catalogClient := catalog.NewClient(cfg.Catalog.Host, cfg.Catalog.User, cfg.Catalog.Password)
	distributors := catalog.NewDistributorCache(catalogClient, cfg.Catalog.DistributorsTTL)

	var sender chat.Sender
	if cfg.App.OutboundURL != "" {
		sender = chat.NewHTTPSender(cfg.App.OutboundURL)
	} else {
		log.Warn().Msg("OUTBOUND_URL is not set, replies go to the log only")
		sender = chat.LogSender{}
	}

	orders := order.NewRepository(pg.Pool)
	lifecycle := order.NewManager(orders)
	profiles := profile.NewRepository(pg.Pool)
	hist := history.NewRepository(pg.Pool)
	settingsSvc := settings.NewService(pg.Pool, rdb, cfg.SettingsCacheTTL)
	profileSvc := profile.NewService(profiles, orders, hist)
	notifier := notify.NewChatNotifier(sender, settingsSvc, cfg.App.ManagerChatID)
	roles := rbac.NewResolver(cfg.App.AdminIDs)

	deps := scenes.Deps{
		Catalog:      catalogClient,
		Distributors: distributors,
		Orders:       orders,
		Lifecycle:    lifecycle,
		Profiles:     profileSvc,
		History:      hist,
		Settings:     settingsSvc,
		Notifier:     notifier,
		Roles:        roles,
	}

	store := session.NewRedisStore(rdb, cfg.SessionTTL)
	eng := engine.New(store, sender,
		engine.WithInterceptors(scenes.Interceptors()...),
		engine.WithDefaultHandler(scenes.DefaultHandler(deps)),
		engine.WithFallbackScene(scenes.FallbackScene),
	)
	scenes.RegisterAll(eng, deps)

	h := handler.New(cfg.App.APIKey, orders, lifecycle, distributors, eng)

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      h.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Shutdown failed")
	}
	log.Info().Msg("Server stopped")
}
