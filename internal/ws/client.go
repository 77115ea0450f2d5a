package ws

import (
	"encoding/json"

	"github.com/gofiber/websocket/v2"
)

const sendBuffer = 256

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	sub  Subscription
	send chan []byte
}

// NewClient creates a client of hub receiving the events sub selects
func NewClient(hub *Hub, conn *websocket.Conn, sub Subscription) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		sub:  sub,
		send: make(chan []byte, sendBuffer),
	}
}

// greet queues the subscription acknowledgement before the client is registered
func (c *Client) greet() error {
	msg, err := json.Marshal(newEvent(c.sub.SessionID, EventSubscribed, c.sub))
	if err != nil {
		return err
	}
	c.send <- msg
	return nil
}

// ReadPump discards inbound messages and unregisters the client when the
// connection closes.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}
