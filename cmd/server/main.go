package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Nekit-S/drowsiness-detection/internal/config"
	"github.com/Nekit-S/drowsiness-detection/internal/database"
	"github.com/Nekit-S/drowsiness-detection/internal/features"
	"github.com/Nekit-S/drowsiness-detection/internal/handler"
	"github.com/Nekit-S/drowsiness-detection/internal/ingest"
	"github.com/Nekit-S/drowsiness-detection/internal/jobs"
	"github.com/Nekit-S/drowsiness-detection/internal/metrics"
	"github.com/Nekit-S/drowsiness-detection/internal/middleware"
	"github.com/Nekit-S/drowsiness-detection/internal/prediction"
	"github.com/Nekit-S/drowsiness-detection/internal/redis"
	"github.com/Nekit-S/drowsiness-detection/internal/repository"
	"github.com/Nekit-S/drowsiness-detection/internal/service"
	"github.com/Nekit-S/drowsiness-detection/internal/sse"
	"github.com/Nekit-S/drowsiness-detection/internal/syncutil"
)

type stores struct {
	drivers  repository.DriverRepository
	sessions repository.SessionRepository
	events   repository.EventRepository
	tx       repository.SessionTxRunner
	db       *database.DB
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resolve timezone")
	}

	appCtx, stopApp := context.WithCancel(context.Background())
	defer stopApp()

	st := openStore(appCtx, cfg)
	if st.db != nil {
		defer st.db.Close()
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info().Msg("redis connected")
	}

	var sessionLocker service.Locker = syncutil.NewKeyedMutex()
	if cfg.LockBackend == config.LockBackendRedis {
		sessionLocker = redis.NewLocker(redisClient, config.SessionLockTTL, config.SessionLockRetry)
		log.Info().Msg("using redis session locks")
	}

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	extractor := features.NewExtractor(st.events, loc)
	riskModel := prediction.NewRuleModel()

	driverService := service.NewDriverService(st.drivers, sessionLocker)
	sessionService := service.NewSessionService(st.drivers, st.sessions, st.tx, sessionLocker, broker)
	eventService := service.NewEventService(st.events, sessionService, broker)
	analyticsService := service.NewAnalyticsService(
		st.drivers, st.events, st.sessions, sessionService,
		extractor, riskModel, cfg.FeatureWindow(),
	)

	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(cfg.MaxBodyBytes)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(cfg.Production)
	requestLogger := middleware.NewRequestLogger(nil)

	var ingestRateLimit func(http.Handler) http.Handler
	if redisClient != nil {
		ingestRateLimit = middleware.NewRedisRateLimitMiddleware(redisClient.Client, cfg.IngestRateLimitPerMin).Handler
	} else {
		ingestRateLimit = middleware.NewRateLimitMiddleware(cfg.IngestRateLimitPerMin).Handler
	}

	streamHandler := handler.NewStreamHandler(broker)
	driverHandler := handler.NewDriverHandler(driverService, sessionService, eventService, analyticsService, streamHandler)
	sessionHandler := handler.NewSessionHandler(sessionService, eventService)
	detectionHandler := handler.NewDetectionHandler(eventService)
	dispatcherHandler := handler.NewDispatcherHandler(analyticsService, streamHandler)
	modelHandler := handler.NewModelHandler(analyticsService)
	maintenanceHandler := handler.NewMaintenanceHandler(eventService, cfg.EventRetention())

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger.Handler)
	r.Use(chimiddleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(securityHeadersMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"store":     cfg.StoreDriver,
			"timestamp": time.Now().UnixMilli(),
		})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Mount("/drivers", driverHandler.Routes())
		r.Mount("/dispatcher", dispatcherHandler.Routes())

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
			r.Use(bodyLimitMiddleware.Handler)

			r.Get("/driver/{driverId}/prediction", driverHandler.Prediction)
			r.Mount("/sessions", sessionHandler.Routes())
			r.Mount("/model", modelHandler.Routes())
			r.Mount("/maintenance", maintenanceHandler.Routes())

			r.Group(func(r chi.Router) {
				r.Use(ingestRateLimit)
				r.Post("/detection-event", detectionHandler.Ingest)
				r.Post("/driver-state", detectionHandler.Ingest)
			})
		})
	})

	var reaperLock jobs.TryLocker
	if redisClient != nil {
		reaperLock = redis.NewLocker(redisClient, config.ReaperLockTTL, config.SessionLockRetry)
	}
	reaper := jobs.NewSessionReaper(sessionService, eventService, reaperLock, jobs.ReaperConfig{
		StaleAfter:    cfg.StaleSessionAfter(),
		Retention:     cfg.EventRetention(),
		SweepInterval: cfg.StaleSweepInterval,
		PurgeInterval: cfg.RetentionPurgeInterval,
	})
	reaper.Start()
	defer reaper.Stop()

	if cfg.KafkaEnabled() {
		consumer := ingest.NewKafkaConsumer(ingest.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		}, eventService)
		consumer.Start(appCtx)
		defer consumer.Stop()
	}

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Str("store", cfg.StoreDriver).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	// Open streams only end once the broker releases them.
	broker.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func openStore(ctx context.Context, cfg *config.Config) stores {
	if cfg.StoreDriver == config.StoreDriverMemory {
		mem := repository.NewMemoryStore()
		log.Info().Msg("using in-memory store")
		return stores{
			drivers:  mem.Drivers(),
			sessions: mem.Sessions(),
			events:   mem.Events(),
			tx:       mem,
		}
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	pingCtx, cancel := context.WithTimeout(ctx, config.DBPingTimeout)
	defer cancel()
	if err := db.Ping(pingCtx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	log.Info().Msg("database connected")

	if cfg.AutoMigrate {
		migrateCtx, cancel := context.WithTimeout(ctx, config.MigrationTimeout)
		defer cancel()
		if err := db.Migrate(migrateCtx); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
	}

	go metrics.StartDBStatsCollector(ctx, db.DB.DB, config.DBStatsInterval)

	sessions := repository.NewSessionRepository(db.DB)
	return stores{
		drivers:  repository.NewDriverRepository(db.DB),
		sessions: sessions,
		events:   repository.NewEventRepository(db.DB),
		tx:       repository.NewSessionTxRunner(db, sessions),
		db:       db,
	}
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
