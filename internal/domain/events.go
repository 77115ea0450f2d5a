package domain

// Session event types published over websockets and webhooks
const (
	EventPersonFound     = "person.found"
	EventPersonLost      = "person.lost"
	EventSessionFinished = "session.finished"
)

// EventTypes lists every event a subscriber can ask for
func EventTypes() []string {
	return []string{EventPersonFound, EventPersonLost, EventSessionFinished}
}

// ValidEventType reports whether t is a known event type
func ValidEventType(t string) bool {
	for _, e := range EventTypes() {
		if e == t {
			return true
		}
	}
	return false
}
