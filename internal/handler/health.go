package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"drawboard-backend/internal/cache"
)

// HealthHandler reports database and Redis status.
type HealthHandler struct {
	db    *gorm.DB
	redis *cache.RedisClient
}

func NewHealthHandler(db *gorm.DB, redis *cache.RedisClient) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

type ComponentCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

type HealthResponse struct {
	Status    string                    `json:"status"`
	Timestamp string                    `json:"timestamp"`
	Checks    map[string]ComponentCheck `json:"checks"`
}

// Check reports overall status; Redis being down degrades but does not
// fail the check since chat falls back to the document log.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
		Checks:    make(map[string]ComponentCheck),
	}

	dbStart := time.Now()
	sqlDB, err := h.db.DB()
	if err != nil {
		response.Status = "unhealthy"
		response.Checks["database"] = ComponentCheck{
			Status: "unhealthy",
			Error:  "failed to get database connection",
		}
	} else if err := sqlDB.Ping(); err != nil {
		response.Status = "unhealthy"
		response.Checks["database"] = ComponentCheck{
			Status: "unhealthy",
			Error:  "database ping failed",
		}
	} else {
		response.Checks["database"] = ComponentCheck{
			Status:  "healthy",
			Latency: time.Since(dbStart).String(),
		}
	}

	if h.redis != nil {
		redisStart := time.Now()
		if err := h.redis.Health(c.Context()); err != nil {
			response.Checks["redis"] = ComponentCheck{
				Status: "degraded",
				Error:  "redis unreachable",
			}
		} else {
			response.Checks["redis"] = ComponentCheck{
				Status:  "healthy",
				Latency: time.Since(redisStart).String(),
			}
		}
	} else {
		response.Checks["redis"] = ComponentCheck{
			Status: "not_configured",
		}
	}

	statusCode := fiber.StatusOK
	if response.Status == "unhealthy" {
		statusCode = fiber.StatusServiceUnavailable
	}
	return c.Status(statusCode).JSON(response)
}

// Liveness liveness probe.
func (h *HealthHandler) Liveness(c *fiber.Ctx) error {
	return c.SendString("OK")
}

// Readiness readiness probe; requires a live database connection.
func (h *HealthHandler) Readiness(c *fiber.Ctx) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).SendString("NOT READY")
	}
	if err := sqlDB.Ping(); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).SendString("NOT READY")
	}
	return c.SendString("READY")
}
