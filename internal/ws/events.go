package ws

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/findperson/internal/domain"
)

// EventSubscribed is the first message a client gets, echoing its filter
const EventSubscribed = "subscribed"

// Event is the JSON envelope written to websocket clients
type Event struct {
	SessionID uuid.UUID `json:"session_id"`
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func newEvent(sessionID uuid.UUID, eventType string, data any) Event {
	return Event{
		SessionID: sessionID,
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// Subscription selects the events a client receives
type Subscription struct {
	SessionID uuid.UUID `json:"session_id"`
	// Types is empty when every event type is wanted
	Types []string `json:"types,omitempty"`
}

// ParseSubscription reads the session_id and events query values. An empty
// sessionID follows every session; events is a comma separated type list.
func ParseSubscription(sessionID, events string) (Subscription, error) {
	sub := Subscription{SessionID: AllSessions}
	if sessionID != "" {
		id, err := uuid.Parse(sessionID)
		if err != nil {
			return Subscription{}, fmt.Errorf("invalid session_id: %w", err)
		}
		sub.SessionID = id
	}

	seen := make(map[string]bool)
	for _, t := range strings.Split(events, ",") {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		if !domain.ValidEventType(t) {
			return Subscription{}, fmt.Errorf("unknown event type %q", t)
		}
		seen[t] = true
		sub.Types = append(sub.Types, t)
	}
	return sub, nil
}

// Wants reports whether an event of eventType should reach the subscriber
func (s Subscription) Wants(eventType string) bool {
	if len(s.Types) == 0 {
		return true
	}
	for _, t := range s.Types {
		if t == eventType {
			return true
		}
	}
	return false
}
