package server

import (
	"context"
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

	"drawboard-backend/internal/auth"
	"drawboard-backend/internal/cache"
	"drawboard-backend/internal/config"
	"drawboard-backend/internal/handler"
	"drawboard-backend/internal/session"
)

// Server Fiber wrapper wiring the drawing-session API.
type Server struct {
	app            *fiber.App
	cfg            *config.Config
	db             *gorm.DB
	svc            *session.Service
	authHandler    *handler.AuthHandler
	sessionHandler *handler.SessionHandler
	healthHandler  *handler.HealthHandler
	sessionHub     *handler.SessionHub
	jwtManager     *auth.JWTManager
}

// New builds the server around an already-wired protocol service.
func New(cfg *config.Config, db *gorm.DB, svc *session.Service, redis *cache.RedisClient) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "Drawboard Gateway",
		ServerHeader:          "Fiber",
		StrictRouting:         true,
		CaseSensitive:         true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		Prefork:               false, // incompatible with WebSocket hubs
		ReadBufferSize:        cfg.WebSocket.ReadBufferSize,
		WriteBufferSize:       cfg.WebSocket.WriteBufferSize,
		BodyLimit:             10 * 1024 * 1024,
		DisableStartupMessage: false,
	})

	jwtManager := auth.NewJWTManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)
	googleAuth := auth.NewGoogleAuthenticator(cfg.Auth.GoogleClientID)

	return &Server{
		app:            app,
		cfg:            cfg,
		db:             db,
		svc:            svc,
		authHandler:    handler.NewAuthHandler(db, jwtManager, googleAuth, cfg.Auth.SecureCookie),
		sessionHandler: handler.NewSessionHandler(svc),
		healthHandler:  handler.NewHealthHandler(db, redis),
		sessionHub:     handler.NewSessionHub(svc, cfg.Session.CursorFlushInterval),
		jwtManager:     jwtManager,
	}
}

// SetupMiddleware registers the global middleware chain.
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

// SetupRoutes registers every HTTP and WebSocket route.
func (s *Server) SetupRoutes() {
	s.app.Get("/health", s.healthHandler.Check)
	s.app.Get("/health/live", s.healthHandler.Liveness)
	s.app.Get("/health/ready", s.healthHandler.Readiness)

	// brute-force protection on the login endpoints
	authLimiter := limiter.New(limiter.Config{
		Max:        10,
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

	authGroup := s.app.Group("/auth")
	authGroup.Post("/google", authLimiter, s.authHandler.GoogleLogin)
	authGroup.Post("/refresh", authLimiter, s.authHandler.RefreshToken)
	authGroup.Post("/logout", auth.Middleware(s.jwtManager), s.authHandler.Logout)
	authGroup.Get("/me", auth.Middleware(s.jwtManager), s.authHandler.GetMe)

	s.app.Get("/api/teams/:teamId/sessions", auth.Middleware(s.jwtManager), s.sessionHandler.ListSessions)

	sessionGroup := s.app.Group("/api/sessions", auth.Middleware(s.jwtManager))
	sessionGroup.Post("", s.sessionHandler.CreateSession)
	sessionGroup.Get("/:id", s.sessionHandler.GetSession)
	sessionGroup.Post("/:id/join", s.sessionHandler.JoinSession)
	sessionGroup.Post("/:id/leave", s.sessionHandler.LeaveSession)
	sessionGroup.Post("/:id/end", s.sessionHandler.EndSession)
	sessionGroup.Put("/:id/participants/:userId/role", s.sessionHandler.SwitchRole)
	sessionGroup.Post("/:id/paths", s.sessionHandler.AddPath)
	sessionGroup.Put("/:id/canvas", s.sessionHandler.UpdateCanvas)
	sessionGroup.Post("/:id/canvas/clear", s.sessionHandler.ClearCanvas)
	sessionGroup.Post("/:id/canvas/undo", s.sessionHandler.UndoPath)
	sessionGroup.Post("/:id/snapshots", s.sessionHandler.SaveSnapshot)
	sessionGroup.Post("/:id/snapshots/:snapshotId/restore", s.sessionHandler.RestoreSnapshot)
	sessionGroup.Post("/:id/chat", s.sessionHandler.SendChat)
	sessionGroup.Get("/:id/chat/recent", s.sessionHandler.RecentChat)
	sessionGroup.Post("/:id/cursor", s.sessionHandler.UpdateCursor)

	// WebSocket upgrade guard: authenticated participant of a live
	// session, or no socket.
	s.app.Get("/ws/sessions/:id", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		token := c.Cookies("access_token")
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			return c.SendStatus(fiber.StatusUnauthorized)
		}

		claims, err := s.jwtManager.ValidateAccessToken(token)
		if err != nil {
			return c.SendStatus(fiber.StatusUnauthorized)
		}

		identity := session.Identity{
			UserID: claims.UserID,
			Name:   claims.Nickname,
			Email:  claims.Email,
		}

		doc, err := s.svc.Get(c.Context(), identity, c.Params("id"))
		if err != nil {
			return c.SendStatus(fiber.StatusNotFound)
		}
		if doc.Participant(claims.UserID) == nil {
			return c.SendStatus(fiber.StatusForbidden)
		}

		c.Locals("identity", identity)
		return c.Next()
	}, websocket.New(s.sessionHub.HandleConnection, websocket.Config{
		ReadBufferSize:   s.cfg.WebSocket.ReadBufferSize,
		WriteBufferSize:  s.cfg.WebSocket.WriteBufferSize,
		HandshakeTimeout: s.cfg.WebSocket.HandshakeTimeout,
	}))
}

// Start runs the server with graceful shutdown on SIGINT/SIGTERM.
func (s *Server) Start() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := s.app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Fatalf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("Drawboard Gateway starting on %s", s.cfg.Server.Port)
	log.Printf("WebSocket endpoint: ws://localhost%s/ws/sessions/:id", s.cfg.Server.Port)

	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		return s.app.ShutdownWithTimeout(30 * time.Second)
	}
	return s.app.ShutdownWithTimeout(time.Until(deadline))
}
