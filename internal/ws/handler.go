package ws

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/saturnino-fabrica-de-software/findperson/internal/domain"
)

const subscriptionLocal = "ws_subscription"

func Handler(hub *Hub) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		sub, ok := c.Locals(subscriptionLocal).(Subscription)
		if !ok {
			_ = c.Close()
			return
		}

		client := NewClient(hub, c, sub)
		if err := client.greet(); err != nil || !hub.Register(client) {
			_ = c.Close()
			return
		}

		go client.WritePump()
		client.ReadPump()
	})
}

// UpgradeMiddleware accepts websocket upgrades and parses the optional
// session_id and events query parameters. Without session_id the client
// follows every session; without events it gets every event type.
func UpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		sub, err := ParseSubscription(c.Query("session_id"), c.Query("events"))
		if err != nil {
			return domain.ErrBadRequest.WithError(err)
		}

		c.Locals("allowed", true)
		c.Locals(subscriptionLocal, sub)
		return c.Next()
	}
}
