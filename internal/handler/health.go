package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"liveclass-backend/internal/cache"
	"liveclass-backend/internal/room"
)

// HealthHandler reports coordinator health.
type HealthHandler struct {
	db        *gorm.DB
	cache     *cache.RedisClient
	directory *room.Directory
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(db *gorm.DB, cacheClient *cache.RedisClient, directory *room.Directory) *HealthHandler {
	return &HealthHandler{db: db, cache: cacheClient, directory: directory}
}

// ComponentCheck per-component status
type ComponentCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse full health report
type HealthResponse struct {
	Status    string                    `json:"status"`
	Timestamp string                    `json:"timestamp"`
	LiveRooms int                       `json:"live_rooms"`
	Checks    map[string]ComponentCheck `json:"checks"`
}

// Check reports the state of every collaborator.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
		LiveRooms: h.directory.Size(),
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

	if h.cache != nil {
		redisStart := time.Now()
		if err := h.cache.Health(c.Context()); err != nil {
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

// Liveness for K8s liveness probes.
func (h *HealthHandler) Liveness(c *fiber.Ctx) error {
	return c.SendString("OK")
}

// Readiness for K8s readiness probes.
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
