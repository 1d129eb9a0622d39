package server

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"liveclass-backend/internal/auth"
	"liveclass-backend/internal/cache"
	"liveclass-backend/internal/config"
	"liveclass-backend/internal/handler"
	"liveclass-backend/internal/registry"
	"liveclass-backend/internal/room"
	"liveclass-backend/internal/rtc"
	"liveclass-backend/internal/store"
)

// Server wires the coordinator's components onto a Fiber app.
type Server struct {
	app              *fiber.App
	cfg              *config.Config
	db               *gorm.DB
	jwtManager       *auth.JWTManager
	reg              *registry.Registry
	directory        *room.Directory
	liveWSHandler    *handler.LiveWSHandler
	liveClassHandler *handler.LiveClassHandler
	healthHandler    *handler.HealthHandler
	redisClient      *cache.RedisClient
}

// New builds a Server and all of its collaborators.
func New(cfg *config.Config, db *gorm.DB) *Server {
	app := fiber.New(fiber.Config{
		AppName:         "Live Class Coordinator",
		ServerHeader:    "Fiber",
		StrictRouting:   true,
		CaseSensitive:   true,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		Prefork:         false, // incompatible with WebSocket
		ReadBufferSize:  16384,
		WriteBufferSize: 16384,
	})

	jwtManager := auth.NewJWTManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)

	// Redis is optional: the coordinator stays correct without it, only
	// the chat cache and the cross-server presence mirror go dark.
	var redisClient *cache.RedisClient
	if cfg.Redis.Enabled {
		var err error
		redisClient, err = cache.NewRedisClient(
			cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			cfg.Room.ChatCacheTTL, cfg.Room.ChatCacheSize,
		)
		if err != nil {
			log.Printf("⚠️ Redis initialization failed: %v (caching disabled)", err)
			redisClient = nil
		}
	} else {
		log.Println("ℹ️ Redis disabled by configuration")
	}

	rtcSvc := rtc.New(cfg.LiveKit)
	gateway := store.NewGormGateway(db)
	reg := registry.New()
	directory := room.NewDirectory(gateway, reg, redisClient, rtcSvc, cfg.Room)

	return &Server{
		app:              app,
		cfg:              cfg,
		db:               db,
		jwtManager:       jwtManager,
		reg:              reg,
		directory:        directory,
		liveWSHandler:    handler.NewLiveWSHandler(reg, directory, cfg),
		liveClassHandler: handler.NewLiveClassHandler(gateway, redisClient, rtcSvc, cfg.Room.ChatCacheSize),
		healthHandler:    handler.NewHealthHandler(db, redisClient, directory),
		redisClient:      redisClient,
	}
}

// SetupMiddleware installs the global middleware stack.
func (s *Server) SetupMiddleware() {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowOrigins,
		AllowHeaders:     s.cfg.CORS.AllowHeaders,
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
	}))
}

// SetupRoutes installs all endpoints.
func (s *Server) SetupRoutes() {
	s.app.Get("/health", s.healthHandler.Check)
	s.app.Get("/health/live", s.healthHandler.Liveness)
	s.app.Get("/health/ready", s.healthHandler.Readiness)

	// brute-force protection on the token-bearing REST surface
	apiLimiter := limiter.New(limiter.Config{
		Max:        60,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, please try again later",
			})
		},
	})

	api := s.app.Group("/api", apiLimiter, auth.Middleware(s.jwtManager))
	api.Get("/live-classes/:id/chat", s.liveClassHandler.GetChatHistory)
	api.Get("/live-classes/:id/participants", s.liveClassHandler.GetParticipants)
	api.Post("/rtc/token", s.liveClassHandler.GenerateRTCToken)

	// WebSocket upgrade: the credential is verified here, once, before
	// any protocol event is accepted. An unverified connection is
	// rejected at the door.
	s.app.Get("/ws/live", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		credential := c.Query("token")
		if credential == "" {
			credential = c.Cookies("access_token")
		}

		identity, err := s.jwtManager.Verify(credential)
		if err != nil {
			return c.SendStatus(fiber.StatusUnauthorized)
		}

		c.Locals("identity", identity)
		return c.Next()
	}, websocket.New(s.liveWSHandler.HandleWebSocket, websocket.Config{
		ReadBufferSize:   s.cfg.WebSocket.ReadBufferSize,
		WriteBufferSize:  s.cfg.WebSocket.WriteBufferSize,
		HandshakeTimeout: s.cfg.WebSocket.HandshakeTimeout,
	}))
}

// Start runs the server with graceful shutdown.
func (s *Server) Start() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("🛑 Shutting down server...")
		if err := s.app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Fatalf("Server shutdown error: %v", err)
		}
		if s.redisClient != nil {
			s.redisClient.Close()
		}
	}()

	log.Printf("🚀 Live Class Coordinator starting on %s", s.cfg.Server.Port)
	log.Printf("📡 WebSocket endpoint: ws://localhost%s/ws/live", s.cfg.Server.Port)

	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown stops the server.
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(30 * time.Second)
}
