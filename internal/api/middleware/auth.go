package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/findperson/internal/domain"
)

const (
	// LocalSubject is the key to retrieve the caller identity from context
	LocalSubject = "subject"

	subjectPrefixLen = 12
)

// Auth creates an authentication middleware using API Key. Keys are never
// stored; only their SHA-256 hashes are configured.
func Auth(hashes []string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// 1. Extract Bearer token
		apiKey := extractBearerToken(c)
		if apiKey == "" {
			return domain.ErrUnauthorized
		}

		// 2. Compare against the configured hashes
		if !domain.MatchAPIKey(apiKey, hashes) {
			return domain.ErrUnauthorized
		}

		// 3. The hash prefix identifies the caller for rate limiting and audit
		c.Locals(LocalSubject, "key:"+domain.HashAPIKey(apiKey)[:subjectPrefixLen])

		return c.Next()
	}
}

// extractBearerToken extracts token from Authorization header
func extractBearerToken(c *fiber.Ctx) string {
	auth := c.Get("Authorization")
	if auth == "" {
		return ""
	}

	// Expected format: "Bearer <token>"
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

// GetSubject retrieves the caller identity from Fiber context
func GetSubject(c *fiber.Ctx) (string, error) {
	subject, ok := c.Locals(LocalSubject).(string)
	if !ok || subject == "" {
		return "", domain.ErrUnauthorized
	}
	return subject, nil
}
