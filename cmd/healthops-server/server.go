package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/healthops/healthops/internal/config"
	"github.com/healthops/healthops/internal/domain/account"
	"github.com/healthops/healthops/internal/domain/analytics"
	"github.com/healthops/healthops/internal/domain/calls"
	"github.com/healthops/healthops/internal/domain/doctor"
	"github.com/healthops/healthops/internal/domain/identity"
	"github.com/healthops/healthops/internal/domain/scheduling"
	"github.com/healthops/healthops/internal/platform/auth"
	"github.com/healthops/healthops/internal/platform/blobstore"
	"github.com/healthops/healthops/internal/platform/cache"
	"github.com/healthops/healthops/internal/platform/db"
	"github.com/healthops/healthops/internal/platform/docstore"
	"github.com/healthops/healthops/internal/platform/llm"
	"github.com/healthops/healthops/internal/platform/middleware"
	"github.com/healthops/healthops/internal/platform/notification"
	"github.com/healthops/healthops/internal/platform/voiceai"
)

const (
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
	otpKeyPrefix    = "otp:password-reset:"
)

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Logger
	logger := newLogger(cfg.Env)
	if cfg.InsecureJWTSecret {
		logger.Warn().Msg("JWT_SECRET_KEY is empty; using an insecure development secret")
	}

	ctx := context.Background()

	// PostgreSQL
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// MongoDB
	store, err := docstore.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to mongodb")
	}
	if err := store.EnsureIndexes(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to create mongodb indexes")
	}
	logger.Info().Str("database", cfg.MongoDB).Msg("connected to mongodb")

	// Redis
	redisClient, err := cache.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	logger.Info().Msg("connected to redis")

	// Notifications
	publisher := newPublisher(cfg, logger)
	dispatcher := notification.NewDispatcher(notification.NewTemplateEngine(), publisher, logger)

	// Call summary archive
	archive, err := newArchive(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure summary archive")
	}

	// Repositories
	patientRepo := identity.NewPatientRepo(pool)
	appointmentRepo := scheduling.NewAppointmentRepo(pool)
	historyRepo := scheduling.NewHistoryRepo(store.Collection(docstore.AppointmentHistory))
	doctorRepo := doctor.NewDoctorRepo(pool)
	userRepo := account.NewUserRepo(pool)
	callLogRepo := calls.NewCallLogRepo(store.Collection(docstore.CallLogs))
	callbackRepo := calls.NewCallbackRepo(store.Collection(docstore.Callbacks))

	// Services
	identitySvc := identity.NewService(patientRepo, identity.NewCounterRepo(pool), appointmentRepo, cfg.FailClosed(), logger)
	doctorSvc := doctor.NewService(doctorRepo, logger)
	schedulingSvc := scheduling.NewService(appointmentRepo, historyRepo, identitySvc, doctorSvc, dispatcher, logger)

	issuer := auth.NewTokenIssuer([]byte(cfg.JWTSecretKey), cfg.AccessTokenTTL())
	otps := auth.NewRedisOTPStore(redisClient, otpKeyPrefix)
	accountSvc := account.NewService(userRepo, issuer, otps, dispatcher, cfg.OTPTTL(), logger)

	detector := calls.NewIntentDetector(newClassifier(cfg), logger)
	builder := voiceai.Builder{PublicBaseURL: cfg.PublicBaseURL, AvailabilityURL: cfg.AvailabilityServiceURL}
	voice := voiceai.NewClient(cfg.UltravoxAPIURL, cfg.UltravoxAPIKey)
	callsSvc := calls.NewService(callLogRepo, callbackRepo, detector, voice, builder, doctorSvc, archive, logger)

	analyticsSvc := analytics.NewService(patientRepo, appointmentRepo, callsSvc, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.RequestTimeout(requestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	jwtCfg := auth.JWTConfig{SigningKey: []byte(cfg.JWTSecretKey), Skipper: auth.AuthSkipper}
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	// Rate limiting middleware
	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
		rateLimitCfg.BurstSize = cfg.RateLimitBurst
	}
	api := e.Group("")
	api.Use(middleware.RateLimit(rateLimitCfg))

	// Health checks
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"message": "Healthcare operations API"})
	})
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/health/deps", db.DependencyHealthHandler(dependencyChecks(store.Ping, cache.Pinger(redisClient))))

	// Domain routes
	identity.NewHandler(identitySvc).RegisterRoutes(api)
	scheduling.NewHandler(schedulingSvc).RegisterRoutes(api)
	doctor.NewHandler(doctorSvc).RegisterRoutes(api)
	account.NewHandler(accountSvc).RegisterRoutes(api)
	calls.NewHandler(callsSvc).RegisterRoutes(api)
	analytics.NewHandler(analyticsSvc).RegisterRoutes(api)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}

	// Drain detached work before closing the stores it writes to.
	callsSvc.Wait()
	dispatcher.Wait()

	if err := publisher.Close(); err != nil {
		logger.Error().Err(err).Msg("close notification publisher")
	}
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("close redis")
	}
	if err := store.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("close mongodb")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newPublisher returns a Kafka publisher when brokers are configured and a
// log-only publisher otherwise.
func newPublisher(cfg *config.Config, logger zerolog.Logger) notification.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info().Msg("KAFKA_BROKERS not set; notifications are logged only")
		return notification.NewLogPublisher(logger)
	}
	logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaNotificationTopic).Msg("publishing notifications to kafka")
	return notification.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaNotificationTopic)
}

// newArchive returns the S3 store when S3_BUCKET is set and an in-memory
// store otherwise.
func newArchive(ctx context.Context, cfg *config.Config) (blobstore.BlobStore, error) {
	if cfg.S3Bucket == "" {
		return blobstore.NewInMemoryBlobStore(), nil
	}
	return blobstore.NewS3BlobStore(ctx, cfg.S3Bucket, cfg.AWSRegion, cfg.S3Endpoint)
}

// newClassifier returns nil without an API key so intent detection stays
// keyword-only.
func newClassifier(cfg *config.Config) calls.Classifier {
	if cfg.OpenAIAPIKey == "" {
		return nil
	}
	return llm.NewClient(cfg.OpenAIAPIURL, cfg.OpenAIAPIKey, cfg.OpenAIModel)
}

func dependencyChecks(mongoPing, redisPing db.PingFunc) map[string]db.PingFunc {
	return map[string]db.PingFunc{
		"mongodb": mongoPing,
		"redis":   redisPing,
	}
}
