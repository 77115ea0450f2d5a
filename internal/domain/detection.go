package domain

import (
	"time"

	"github.com/google/uuid"
)

type DetectionKind string

const (
	DetectionFound DetectionKind = "found"
	DetectionLost  DetectionKind = "lost"
)

// Box is a pixel rectangle in frame coordinates
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Detection registra uma transição de presença durante uma sessão
type Detection struct {
	ID        uuid.UUID     `json:"id"`
	SessionID uuid.UUID     `json:"session_id"`
	Kind      DetectionKind `json:"kind"`
	Frame     int           `json:"frame"`
	Score     float64       `json:"score"`
	Box       *Box          `json:"box,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}
