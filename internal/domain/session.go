package domain

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionRunning  SessionStatus = "running"
	SessionFinished SessionStatus = "finished"
	SessionStopped  SessionStatus = "stopped"
	SessionFailed   SessionStatus = "failed"
)

// Terminal reports whether the session can no longer change
func (s SessionStatus) Terminal() bool {
	return s == SessionFinished || s == SessionStopped || s == SessionFailed
}

// StartSessionRequest são os parâmetros aceitos ao iniciar uma sessão
type StartSessionRequest struct {
	ReferenceID    uuid.UUID `json:"reference_id"`
	Source         string    `json:"source"`
	Threshold      *float64  `json:"threshold,omitempty"`
	DetectInterval *int      `json:"detect_interval,omitempty"`
	Tracker        string    `json:"tracker,omitempty"`
	SkipEvery      int       `json:"skip_every,omitempty"`
	Realtime       bool      `json:"realtime,omitempty"`
}

// Session é uma execução do finder sobre uma fonte de vídeo
type Session struct {
	ID             uuid.UUID     `json:"id"`
	ReferenceID    uuid.UUID     `json:"reference_id"`
	Source         string        `json:"source"`
	Provider       string        `json:"provider"`
	Tracker        string        `json:"tracker"`
	Threshold      float64       `json:"threshold"`
	DetectInterval int           `json:"detect_interval"`
	Status         SessionStatus `json:"status"`
	Present        bool          `json:"present"`
	Stats          SessionStats  `json:"stats"`
	Error          string        `json:"error,omitempty"`
	StartedAt      time.Time     `json:"started_at"`
	EndedAt        *time.Time    `json:"ended_at,omitempty"`
}

// SessionStats mirrors the feed summary once a session ends, and the live
// counters while it runs
type SessionStats struct {
	FramesProcessed int     `json:"frames_processed"`
	Detections      int     `json:"detections"`
	TrackerUpdates  int     `json:"tracker_updates"`
	FoundFrames     int     `json:"found_frames"`
	BestScore       float64 `json:"best_score"`
	Errors          int     `json:"errors"`
	StopReason      string  `json:"stop_reason,omitempty"`
}
