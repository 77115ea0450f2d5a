package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/findperson/internal/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// idParam parses the :id route parameter
func idParam(c *fiber.Ctx) (uuid.UUID, error) {
	raw := strings.TrimSpace(c.Params("id"))
	if raw == "" {
		return uuid.Nil, domain.ErrBadRequest.WithError(errors.New("id is required"))
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.ErrBadRequest.WithError(err)
	}
	return id, nil
}

// limitQuery reads ?limit= clamped to [1, maxListLimit]
func limitQuery(c *fiber.Ctx) int {
	limit := c.QueryInt("limit", defaultListLimit)
	if limit < 1 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
