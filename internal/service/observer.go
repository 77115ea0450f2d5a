package service

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/findperson/internal/domain"
	"github.com/saturnino-fabrica-de-software/findperson/internal/feed"
	"github.com/saturnino-fabrica-de-software/findperson/internal/finder"
	"github.com/saturnino-fabrica-de-software/findperson/internal/repository"
	"github.com/saturnino-fabrica-de-software/findperson/internal/webhook"
)

// PresenceEvent is the payload of person.found and person.lost
type PresenceEvent struct {
	SessionID   uuid.UUID   `json:"session_id"`
	ReferenceID uuid.UUID   `json:"reference_id"`
	Frame       int         `json:"frame"`
	Score       float64     `json:"score"`
	Box         *domain.Box `json:"box,omitempty"`
	Present     bool        `json:"present"`
}

func toBox(r image.Rectangle) *domain.Box {
	if r.Empty() {
		return nil
	}
	return &domain.Box{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// sessionObserver keeps the live state of a session and fans presence
// transitions out to storage, websockets and webhooks. It runs on the feed
// goroutine, readers go through snapshot.
type sessionObserver struct {
	m           *SessionManager
	logger      *slog.Logger
	sessionID   uuid.UUID
	referenceID uuid.UUID

	mu      sync.Mutex
	session domain.Session
}

func newSessionObserver(m *SessionManager, session *domain.Session, logger *slog.Logger) *sessionObserver {
	return &sessionObserver{
		m:           m,
		logger:      logger,
		sessionID:   session.ID,
		referenceID: session.ReferenceID,
		session:     *session,
	}
}

func (o *sessionObserver) snapshot() domain.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}

// end replaces the live state with the final one
func (o *sessionObserver) end(final domain.Session) {
	o.mu.Lock()
	o.session = final
	o.mu.Unlock()
}

func (o *sessionObserver) Observe(ctx context.Context, obs feed.Observation) {
	o.mu.Lock()
	stats := &o.session.Stats
	stats.FramesProcessed++
	switch obs.Result.Mode {
	case finder.ModeDetection:
		stats.Detections++
	case finder.ModeTracking:
		stats.TrackerUpdates++
	}
	if obs.Result.Found {
		stats.FoundFrames++
	}
	if obs.Result.Score > stats.BestScore {
		stats.BestScore = obs.Result.Score
	}
	o.session.Present = obs.Present
	o.mu.Unlock()

	if obs.Transition == feed.TransitionNone {
		return
	}
	o.transition(ctx, obs)
}

func (o *sessionObserver) transition(ctx context.Context, obs feed.Observation) {
	deps := o.m.deps
	sessionID := o.sessionID
	ctx = context.WithoutCancel(ctx)

	kind, eventType := domain.DetectionLost, domain.EventPersonLost
	if obs.Transition == feed.TransitionFound {
		kind, eventType = domain.DetectionFound, domain.EventPersonFound
	}

	detection := &domain.Detection{
		SessionID: sessionID,
		Kind:      kind,
		Frame:     obs.Result.Frame,
		Score:     obs.Result.Score,
		Box:       toBox(obs.Result.Box),
	}
	if err := deps.Detections.Create(ctx, detection); err != nil {
		o.logger.Error("failed to store detection", slog.String("error", err.Error()))
	}
	if err := deps.Sessions.UpdatePresence(ctx, sessionID, obs.Present); err != nil {
		o.logger.Error("failed to update presence", slog.String("error", err.Error()))
	}

	if obs.Transition == feed.TransitionFound {
		o.saveSnapshot(ctx, obs)
	}

	event := PresenceEvent{
		SessionID:   sessionID,
		ReferenceID: o.referenceID,
		Frame:       obs.Result.Frame,
		Score:       obs.Result.Score,
		Box:         detection.Box,
		Present:     obs.Present,
	}
	if deps.Hub != nil {
		deps.Hub.BroadcastToSession(sessionID, eventType, event)
	}
	if deps.Webhooks != nil {
		deps.Webhooks.Publish(webhook.EventPayload{
			Type:      eventType,
			Data:      event,
			SessionID: sessionID,
			Timestamp: obs.At.UTC(),
		})
	}

	o.logger.Info("presence changed",
		slog.String("transition", string(obs.Transition)),
		slog.Int("frame", obs.Result.Frame),
		slog.Float64("score", obs.Result.Score),
	)
}

// saveSnapshot stores the annotated frame that started a found streak
func (o *sessionObserver) saveSnapshot(ctx context.Context, obs feed.Observation) {
	img, err := o.m.deps.Media.Annotate(obs.Frame, obs.Result)
	if err != nil {
		o.logger.Warn("failed to annotate snapshot", slog.String("error", err.Error()))
		return
	}

	snapshot := &repository.Snapshot{
		SessionID: o.sessionID,
		Frame:     obs.Result.Frame,
		Score:     obs.Result.Score,
		Image:     img,
		CreatedAt: time.Now(),
	}
	if err := o.m.deps.Snapshots.Save(ctx, snapshot); err != nil {
		o.logger.Error("failed to store snapshot", slog.String("error", err.Error()))
	}
}
