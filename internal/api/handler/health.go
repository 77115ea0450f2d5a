package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/findperson/internal/database"
)

// Version is reported by /health
const Version = "0.1.0"

// SessionCounter is implemented by *service.SessionManager
type SessionCounter interface {
	Running() int
}

type HealthHandler struct {
	db       database.Pinger
	sessions SessionCounter
}

// NewHealthHandler creates the probe handler. A nil db makes /ready always succeed.
func NewHealthHandler(db database.Pinger, sessions SessionCounter) *HealthHandler {
	return &HealthHandler{db: db, sessions: sessions}
}

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Sessions *int   `json:"running_sessions,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	resp := HealthResponse{
		Status:  "ok",
		Version: Version,
	}
	if h.sessions != nil {
		n := h.sessions.Running()
		resp.Sessions = &n
	}
	return c.JSON(resp)
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	if h.db != nil {
		if err := database.HealthCheck(c.Context(), h.db); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(HealthResponse{
				Status: "unavailable",
				Error:  err.Error(),
			})
		}
	}
	return c.JSON(HealthResponse{
		Status: "ready",
	})
}
