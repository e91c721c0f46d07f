package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/isdelr/telemed-portal/internal/api"
	"github.com/isdelr/telemed-portal/internal/auth"
	"github.com/isdelr/telemed-portal/internal/config"
	"github.com/isdelr/telemed-portal/internal/database"
	"github.com/isdelr/telemed-portal/internal/logger"
	"github.com/isdelr/telemed-portal/internal/monitoring"
	"github.com/isdelr/telemed-portal/internal/notify"
	"github.com/isdelr/telemed-portal/internal/services"
	"github.com/isdelr/telemed-portal/internal/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.LogLevel, !cfg.IsProduction())

	// Set up database
	db, err := database.New(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database migrations")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up WebSocket Hub
	hub := websocket.NewHub()
	go hub.Run(ctx)

	eventService := services.NewEventService(db)

	// Mail notifications
	var mailer notify.Mailer = notify.LogMailer{}
	var graph *notify.GraphMailer
	var redisCache *notify.RedisTokenCache
	if cfg.Mail.Enabled {
		var cache notify.TokenCache = notify.NewMemoryTokenCache()
		if cfg.RedisAddr != "" {
			redisCache = notify.NewRedisTokenCache(cfg.RedisAddr)
			cache = redisCache
		}
		graph = notify.NewGraphMailer(notify.GraphConfig{
			ClientID:     cfg.Mail.ClientID,
			ClientSecret: cfg.Mail.ClientSecret,
			TokenURL:     cfg.Mail.TokenURL,
			APIBase:      cfg.Mail.APIBase,
			RefreshToken: cfg.Mail.RefreshToken,
		}, cache)
		mailer = graph
	} else {
		log.Warn().Msg("Mail disabled, notifications will only be logged")
	}

	queueOpts := notify.QueueOptions{
		Workers:     cfg.Notify.Workers,
		QueueSize:   cfg.Notify.QueueSize,
		MaxAttempts: cfg.Notify.MaxAttempts,
		Timeout:     cfg.Notify.Timeout,
	}
	var queue notify.Runner
	if len(cfg.KafkaBrokers) > 0 {
		queue = notify.NewKafkaQueue(mailer, eventService, notify.KafkaOptions{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic}, queueOpts)
		log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("Notifications routed through Kafka")
	} else {
		queue = notify.NewQueue(mailer, eventService, queueOpts)
	}
	queue.Start(ctx)
	dispatcher := notify.NewDispatcher(cfg.Mail.Recipient, queue)

	// Set up services
	userService := services.NewUserService(db, bcrypt.DefaultCost)
	postService := services.NewPostService(db, eventService, dispatcher, hub)
	contactService := services.NewContactService(db, eventService, dispatcher)
	directoryService := services.NewDirectoryService(db, eventService)
	fileService := services.NewFileService(cfg.UploadDir, eventService)

	// Set up and run the background scheduler
	statUpdater := monitoring.NewStatUpdater(cfg.UploadDir, eventService)
	scheduler := monitoring.NewScheduler(eventService)
	if err := scheduler.Add("host-stats", "@every 15s", statUpdater.Update); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule host stats")
	}
	if graph != nil {
		if err := scheduler.Add("mail-token-warmup", cfg.Mail.WarmupSpec, graph.Warmup); err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule mail token warmup")
		}
		go scheduler.RunNow("mail-token-warmup", graph.Warmup)
	}
	scheduler.Start()

	authenticator := auth.NewAuthenticator(
		auth.NewSessionManager(cfg.SessionSecret, cfg.IsProduction()),
		auth.NewTokenIssuer(cfg.JWTSecret),
		userService,
	)

	// Set up router
	router := api.NewRouter(api.Dependencies{
		Auth:           authenticator,
		Users:          userService,
		Posts:          postService,
		Contacts:       contactService,
		Directory:      directoryService,
		Events:         eventService,
		Files:          fileService,
		Hub:            hub,
		DB:             db,
		Stats:          statUpdater,
		StaticDir:      cfg.StaticDir,
		AllowedOrigins: cfg.CorsAllowedOrigins,
	})

	// Set up server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().Int("port", cfg.ServerPort).Str("env", cfg.AppEnv).Msg("Server starting")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ListenAndServe()")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Scheduler did not stop in time")
	}
	if err := queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Notification queue did not drain")
	}
	if redisCache != nil {
		if err := redisCache.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close redis token cache")
		}
	}
	cancel()

	log.Info().Msg("Server exiting")
}
