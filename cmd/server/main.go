package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/auralis/api/internal/auth"
	"github.com/auralis/api/internal/client"
	"github.com/auralis/api/internal/config"
	"github.com/auralis/api/internal/handler"
	"github.com/auralis/api/internal/logging"
	"github.com/auralis/api/internal/middleware"
	"github.com/auralis/api/internal/observe"
	"github.com/auralis/api/internal/service"
	ws "github.com/auralis/api/internal/websocket"
)

var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	log := logging.New(cfg.Server.LogLevel, cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Metrics
	var (
		metrics  *observe.Metrics
		provider *observe.Provider
	)
	if cfg.Metrics.Enabled {
		provider, err = observe.InitProvider(observe.ProviderConfig{ServiceName: "auralis", ServiceVersion: version})
		if err != nil {
			log.WithError(err).Fatal("failed to init metrics provider")
		}
		if metrics, err = observe.NewMetrics(provider.MeterProvider); err != nil {
			log.WithError(err).Fatal("failed to create metric instruments")
		}
	}

	// Optional Redis for shared rate limits
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warn("Redis not available, rate limits fail open")
		}
		defer redisClient.Close()
	}

	if cfg.Replicate.APIToken == "" {
		log.Warn("REPLICATE_API_TOKEN is not set; generation and status calls will return 503")
	}

	// Clients
	replicateClient := client.NewReplicateClient(&cfg.Replicate, log.WithField("component", "replicate"))
	audioClient := client.NewAudioClient(&cfg.Relay, log.WithField("component", "audio"))

	// Services
	validate := validator.New()
	generateService := service.NewGenerateService(replicateClient, validate, cfg.Replicate.ModelVersion, metrics, log)
	statusService := service.NewStatusService(replicateClient, metrics, log)
	relayService := service.NewRelayService(audioClient, cfg.Relay, metrics, log)

	// Handlers
	generateHandler := handler.NewGenerateHandler(generateService, log)
	statusHandler := handler.NewStatusHandler(statusService, log)
	audioHandler := handler.NewAudioHandler(relayService, log)
	pageHandler := handler.NewPageHandler(replicateClient, redisClient)

	hub := ws.NewHub(statusService, cfg.Poll.WSInterval, log.WithField("component", "websocket"))

	// Middleware
	rateLimiter := middleware.NewRateLimiter(redisClient, metrics, log)

	app := fiber.New(fiber.Config{
		ErrorHandler:          handler.ErrorHandler(log),
		BodyLimit:             cfg.Server.BodyLimit,
		DisableStartupMessage: cfg.Server.IsProduction(),
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{
		Generator: uuid.NewString,
	}))
	app.Use(middleware.RequestLogger(log))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	if metrics != nil {
		app.Use(observe.Middleware(metrics))
	}

	app.Get("/", pageHandler.Index)
	app.Get("/favicon.ico", pageHandler.Favicon)
	app.Get("/health", pageHandler.Health)
	if provider != nil {
		app.Get("/metrics", adaptor.HTTPHandler(provider.Handler))
	}

	// API routes
	var apiMiddleware, wsMiddleware []fiber.Handler
	if cfg.Auth.Enabled {
		authMiddleware := buildAuth(ctx, cfg, log)
		apiMiddleware = append(apiMiddleware, authMiddleware.Authenticate())
		wsMiddleware = append(wsMiddleware, authMiddleware.AuthenticateUpgrade())
	}
	api := app.Group("/api", apiMiddleware...)

	api.Post("/generate", rateLimiter.GenerateLimit(cfg.RateLimit.GeneratePerHour), generateHandler.Generate)
	api.Get("/status/:jobId", rateLimiter.PollThrottle(cfg.Poll.MinInterval), statusHandler.Status)
	api.Get("/stream", audioHandler.Stream)
	api.Get("/download", audioHandler.Download)

	// WebSocket routes
	wsMiddleware = append(wsMiddleware, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	wsGroup := app.Group("/ws", wsMiddleware...)

	wsGroup.Get("/status/:jobId", rateLimiter.WatchLimit(cfg.RateLimit.WatchPerMinute), websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, c.Params("jobId"))
	}))

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Info("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.WithError(err).Error("server shutdown error")
		}
	}()

	addr := ":" + cfg.Server.Port
	log.WithField("addr", addr).Info("Server starting")
	if err := app.Listen(addr); err != nil {
		log.WithError(err).Fatal("server error")
	}

	if provider != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("metrics provider shutdown")
		}
	}
}

// buildAuth wires the JWKS verifier when an issuer is configured and the
// shared-secret verifier when a secret is set. JWKS is tried first.
func buildAuth(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) *middleware.AuthMiddleware {
	var verifiers []auth.TokenVerifier

	if cfg.Auth.Issuer != "" {
		jwks, err := auth.NewJWKSVerifier(ctx, &cfg.Auth)
		if err != nil {
			log.WithError(err).Warn("JWKS verifier unavailable")
		} else {
			verifiers = append(verifiers, jwks)
		}
	}
	if cfg.Auth.JWTSecret != "" {
		verifiers = append(verifiers, auth.NewHMACVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience))
	}

	if len(verifiers) == 0 {
		log.Warn("auth enabled but no verifier configured; all API calls will be rejected")
	}
	return middleware.NewAuthMiddleware(verifiers...)
}
