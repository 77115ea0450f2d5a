package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/findperson/internal/domain"
)

// Recover turns a handler panic into an INTERNAL_ERROR response. The panic
// value and stack are logged, never sent to the client.
func Recover(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			logger.Error("panic recovered",
				slog.Any("panic", r),
				slog.String("path", c.Path()),
				slog.String("method", c.Method()),
				slog.String("request_id", requestID(c)),
				slog.String("stack", string(debug.Stack())),
			)

			cause, ok := r.(error)
			if !ok {
				cause = fmt.Errorf("panic: %v", r)
			}
			err = domain.ErrInternal.WithError(cause)
		}()
		return c.Next()
	}
}
