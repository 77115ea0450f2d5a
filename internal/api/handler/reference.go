package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/findperson/internal/domain"
)

const (
	maxImageSize = 10 * 1024 * 1024 // 10MB
)

var validImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// ReferenceService is implemented by *service.ReferenceService
type ReferenceService interface {
	Create(ctx context.Context, name string, images [][]byte) (*domain.Reference, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Reference, error)
	List(ctx context.Context) ([]domain.ReferenceView, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ReferenceHandler handles reference person requests
type ReferenceHandler struct {
	service ReferenceService
	logger  *slog.Logger
}

func NewReferenceHandler(service ReferenceService, logger *slog.Logger) *ReferenceHandler {
	return &ReferenceHandler{
		service: service,
		logger:  logger,
	}
}

// Create POST /v1/references - encode a reference person from one or more images
func (h *ReferenceHandler) Create(c *fiber.Ctx) error {
	name := strings.TrimSpace(c.FormValue("name"))
	if name == "" {
		return domain.ErrValidationFailed.WithError(errors.New("name is required"))
	}

	images, err := extractImages(c)
	if err != nil {
		return fmt.Errorf("create reference: %w", err)
	}

	ref, err := h.service.Create(c.Context(), name, images)
	if err != nil {
		return err
	}

	h.logger.Info("reference created",
		slog.String("reference_id", ref.ID.String()),
		slog.String("name", ref.Name),
		slog.Int("embeddings", ref.EmbeddingCount()),
	)

	return c.Status(fiber.StatusCreated).JSON(ref.View())
}

// List GET /v1/references
func (h *ReferenceHandler) List(c *fiber.Ctx) error {
	refs, err := h.service.List(c.Context())
	if err != nil {
		return err
	}
	if refs == nil {
		refs = []domain.ReferenceView{}
	}
	return c.JSON(fiber.Map{
		"references": refs,
	})
}

// Get GET /v1/references/:id
func (h *ReferenceHandler) Get(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}

	ref, err := h.service.Get(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(ref.View())
}

// Delete DELETE /v1/references/:id
func (h *ReferenceHandler) Delete(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}

	if err := h.service.Delete(c.Context(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// extractImages reads every "image" part of the multipart form
func extractImages(c *fiber.Ctx) ([][]byte, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, domain.ErrValidationFailed.WithError(err)
	}

	files := form.File["image"]
	if len(files) == 0 {
		return nil, domain.ErrValidationFailed.WithError(errors.New("at least one image is required"))
	}

	images := make([][]byte, 0, len(files))
	for _, file := range files {
		data, err := readImage(file)
		if err != nil {
			return nil, err
		}
		images = append(images, data)
	}
	return images, nil
}

// readImage validates and reads one uploaded image
func readImage(file *multipart.FileHeader) ([]byte, error) {
	if file.Size == 0 || file.Size > maxImageSize {
		return nil, domain.ErrInvalidImage.WithError(fmt.Errorf("%s: size %d out of range", file.Filename, file.Size))
	}

	contentType := file.Header.Get("Content-Type")
	if !validImageTypes[contentType] {
		return nil, domain.ErrInvalidImage.WithError(fmt.Errorf("%s: unsupported content type %q", file.Filename, contentType))
	}

	f, err := file.Open()
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}
	defer func() {
		_ = f.Close()
	}()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}
	return data, nil
}
