package handler

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/findperson/internal/domain"
	"github.com/saturnino-fabrica-de-software/findperson/internal/webhook"
)

// WebhookService is implemented by *webhook.Service
type WebhookService interface {
	ListWebhooks(ctx context.Context) ([]*webhook.Webhook, error)
	CreateWebhook(ctx context.Context, w *webhook.Webhook) error
	DeleteWebhook(ctx context.Context, id uuid.UUID) error
}

type WebhookHandler struct {
	service WebhookService
	logger  *slog.Logger
}

func NewWebhookHandler(service WebhookService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		service: service,
		logger:  logger,
	}
}

type CreateWebhookRequest struct {
	Name    string   `json:"name"`
	URL     string   `json:"url"`
	Events  []string `json:"events"`
	Secret  string   `json:"secret,omitempty"`
	Enabled *bool    `json:"enabled,omitempty"`
}

// List GET /v1/webhooks
func (h *WebhookHandler) List(c *fiber.Ctx) error {
	webhooks, err := h.service.ListWebhooks(c.Context())
	if err != nil {
		return err
	}
	if webhooks == nil {
		webhooks = []*webhook.Webhook{}
	}
	return c.JSON(fiber.Map{
		"webhooks": webhooks,
	})
}

// Create POST /v1/webhooks. The signing secret is only returned here.
func (h *WebhookHandler) Create(c *fiber.Ctx) error {
	var req CreateWebhookRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	w := &webhook.Webhook{
		Name:    req.Name,
		URL:     req.URL,
		Secret:  req.Secret,
		Events:  req.Events,
		Enabled: enabled,
	}
	if err := h.service.CreateWebhook(c.Context(), w); err != nil {
		return err
	}

	h.logger.Info("webhook created",
		slog.String("webhook_id", w.ID.String()),
		slog.String("name", w.Name),
	)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"webhook": w,
		"secret":  w.Secret,
	})
}

// Delete DELETE /v1/webhooks/:id
func (h *WebhookHandler) Delete(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}

	if err := h.service.DeleteWebhook(c.Context(), id); err != nil {
		return err
	}

	h.logger.Info("webhook deleted", slog.String("webhook_id", id.String()))

	return c.SendStatus(fiber.StatusNoContent)
}
