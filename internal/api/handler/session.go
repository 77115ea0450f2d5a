package handler

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/findperson/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/findperson/internal/domain"
	"github.com/saturnino-fabrica-de-software/findperson/internal/metrics"
	"github.com/saturnino-fabrica-de-software/findperson/internal/repository"
)

// SessionService is implemented by *service.SessionManager
type SessionService interface {
	Start(ctx context.Context, subject string, req domain.StartSessionRequest) (*domain.Session, error)
	Stop(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	List(ctx context.Context, limit int) ([]domain.Session, error)
	Detections(ctx context.Context, id uuid.UUID, limit int) ([]domain.Detection, error)
	Snapshot(ctx context.Context, id uuid.UUID) (*repository.Snapshot, error)
}

// MetricsReader is implemented by *metrics.Repository
type MetricsReader interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID, name string) ([]*metrics.SessionMetric, error)
}

// SessionHandler handles find-person session requests
type SessionHandler struct {
	service SessionService
	metrics MetricsReader
	logger  *slog.Logger
}

func NewSessionHandler(service SessionService, metrics MetricsReader, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		service: service,
		metrics: metrics,
		logger:  logger,
	}
}

// Start POST /v1/sessions - start watching a source for a reference
func (h *SessionHandler) Start(c *fiber.Ctx) error {
	subject, err := middleware.GetSubject(c)
	if err != nil {
		return err
	}

	var req domain.StartSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}
	req.Source = strings.TrimSpace(req.Source)
	if req.ReferenceID == uuid.Nil {
		return domain.ErrValidationFailed.WithError(errors.New("reference_id is required"))
	}

	session, err := h.service.Start(c.Context(), subject, req)
	if err != nil {
		return err
	}

	h.logger.Info("session started",
		slog.String("session_id", session.ID.String()),
		slog.String("reference_id", session.ReferenceID.String()),
		slog.String("subject", subject),
	)

	return c.Status(fiber.StatusCreated).JSON(session)
}

// List GET /v1/sessions
func (h *SessionHandler) List(c *fiber.Ctx) error {
	sessions, err := h.service.List(c.Context(), limitQuery(c))
	if err != nil {
		return err
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	return c.JSON(fiber.Map{
		"sessions": sessions,
	})
}

// Get GET /v1/sessions/:id
func (h *SessionHandler) Get(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}

	session, err := h.service.Get(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(session)
}

// Stop DELETE /v1/sessions/:id - ask a running session to end
func (h *SessionHandler) Stop(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}

	if err := h.service.Stop(c.Context(), id); err != nil {
		return err
	}

	h.logger.Info("session stop requested", slog.String("session_id", id.String()))

	return c.SendStatus(fiber.StatusAccepted)
}

// Detections GET /v1/sessions/:id/detections
func (h *SessionHandler) Detections(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}

	detections, err := h.service.Detections(c.Context(), id, limitQuery(c))
	if err != nil {
		return err
	}
	if detections == nil {
		detections = []domain.Detection{}
	}
	return c.JSON(fiber.Map{
		"detections": detections,
	})
}

// Snapshot GET /v1/sessions/:id/snapshot - latest annotated match frame
func (h *SessionHandler) Snapshot(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}

	snap, err := h.service.Snapshot(c.Context(), id)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, "image/jpeg")
	c.Set("X-Frame-Index", strconv.Itoa(snap.Frame))
	c.Set("X-Match-Score", strconv.FormatFloat(snap.Score, 'f', 4, 64))
	return c.Send(snap.Image)
}

// Metrics GET /v1/sessions/:id/metrics - flushed per-session counters
func (h *SessionHandler) Metrics(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}

	if _, err := h.service.Get(c.Context(), id); err != nil {
		return err
	}

	list, err := h.metrics.ListBySession(c.Context(), id, c.Query("name"))
	if err != nil {
		return err
	}
	if list == nil {
		list = []*metrics.SessionMetric{}
	}
	return c.JSON(fiber.Map{
		"metrics": list,
	})
}
