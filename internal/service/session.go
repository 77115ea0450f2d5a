package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/findperson/internal/audit"
	"github.com/saturnino-fabrica-de-software/findperson/internal/domain"
	"github.com/saturnino-fabrica-de-software/findperson/internal/feed"
	"github.com/saturnino-fabrica-de-software/findperson/internal/finder"
	"github.com/saturnino-fabrica-de-software/findperson/internal/metrics"
	"github.com/saturnino-fabrica-de-software/findperson/internal/provider"
	"github.com/saturnino-fabrica-de-software/findperson/internal/repository"
	"github.com/saturnino-fabrica-de-software/findperson/internal/webhook"
)

// Media opens video sources and builds the OpenCV parts of a session,
// *video.Media implements it
type Media interface {
	Open(source string) (feed.Source, error)
	Trackers(kind string) (finder.TrackerFactory, error)
	Annotate(frame finder.Frame, res finder.Result) ([]byte, error)
}

// MatcherBuilder turns a stored reference into a matcher, face.NewMatcher
// in production
type MatcherBuilder func(p provider.FaceProvider, ref *domain.Reference) (finder.Matcher, error)

// StartLimiter throttles session starts per caller, *ratelimit.RateLimiter implements it
type StartLimiter interface {
	CheckSessionStart(ctx context.Context, subject string, limit int) error
}

// Broadcaster pushes live events to websocket subscribers, *ws.Hub implements it
type Broadcaster interface {
	BroadcastToSession(sessionID uuid.UUID, eventType string, data interface{})
}

// EventPublisher queues webhook deliveries, *webhook.Dispatcher implements it
type EventPublisher interface {
	Publish(event webhook.EventPayload) bool
}

// SessionConfig holds the session defaults and limits
type SessionConfig struct {
	Threshold      float64
	DetectInterval int
	Tracker        string
	// MaxSessions caps the sessions running at once
	MaxSessions int
	// StartsPerMinute caps session starts per caller, 0 disables it
	StartsPerMinute int
	// MaxConsecutiveErrors is passed to every feed
	MaxConsecutiveErrors int
}

// SessionDeps are the collaborators of a SessionManager. Limiter, Hub,
// Webhooks, Metrics and Audit are optional.
type SessionDeps struct {
	References repository.ReferenceRepositoryInterface
	Sessions   repository.SessionRepositoryInterface
	Detections repository.DetectionRepositoryInterface
	Snapshots  repository.SnapshotRepositoryInterface
	Provider   provider.FaceProvider
	Matchers   MatcherBuilder
	Media      Media
	Limiter    StartLimiter
	Hub        Broadcaster
	Webhooks   EventPublisher
	Metrics    *metrics.Collector
	Audit      audit.Logger
	Logger     *slog.Logger
}

// runningSession is the in-memory side of a session whose feed is running
type runningSession struct {
	feed     *feed.Feed
	observer *sessionObserver
	done     chan struct{}
}

// SessionManager starts finder sessions and tracks them until they end
type SessionManager struct {
	deps SessionDeps
	cfg  SessionConfig

	// ctx outlives the requests that start sessions
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	running  map[uuid.UUID]*runningSession
	reserved int
	closed   bool
	wg       sync.WaitGroup
}

func NewSessionManager(deps SessionDeps, cfg SessionConfig) *SessionManager {
	if deps.Audit == nil {
		deps.Audit = &audit.NoOpLogger{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = finder.DefaultThreshold
	}
	if cfg.DetectInterval == 0 {
		cfg.DetectInterval = finder.DefaultDetectInterval
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &SessionManager{
		deps:    deps,
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		running: make(map[uuid.UUID]*runningSession),
	}
}

// Recover marks sessions left running by a previous process as failed
func (m *SessionManager) Recover(ctx context.Context) (int64, error) {
	n, err := m.deps.Sessions.FailRunning(ctx, "interrupted by service restart")
	if err != nil {
		return 0, fmt.Errorf("recover sessions: %w", err)
	}
	if n > 0 {
		m.deps.Logger.WarnContext(ctx, "marked interrupted sessions as failed", slog.Int64("count", n))
	}
	return n, nil
}

// finderConfig merges the request overrides into the defaults
func (m *SessionManager) finderConfig(req domain.StartSessionRequest) (finder.Config, error) {
	cfg := finder.Config{Threshold: m.cfg.Threshold, DetectInterval: m.cfg.DetectInterval}
	if req.Threshold != nil {
		cfg.Threshold = *req.Threshold
	}
	if req.DetectInterval != nil {
		cfg.DetectInterval = *req.DetectInterval
	}
	return cfg, cfg.Validate()
}

// Start validates req, opens its source and runs the finder in the
// background. subject identifies the caller for start rate limiting.
func (m *SessionManager) Start(ctx context.Context, subject string, req domain.StartSessionRequest) (*domain.Session, error) {
	fcfg, err := m.finderConfig(req)
	if err != nil {
		return nil, err
	}
	if req.SkipEvery < 0 {
		return nil, domain.ErrValidationFailed.WithError(errors.New("skip_every must not be negative"))
	}

	trackerKind := req.Tracker
	if trackerKind == "" {
		trackerKind = m.cfg.Tracker
	}
	trackers, err := m.deps.Media.Trackers(trackerKind)
	if err != nil {
		return nil, err
	}

	ref, err := m.deps.References.GetByID(ctx, req.ReferenceID)
	if err != nil {
		return nil, err
	}
	if ref.Provider != "" && ref.Provider != m.deps.Provider.Name() {
		return nil, domain.ErrValidationFailed.WithError(
			fmt.Errorf("reference was encoded with %s, the service runs %s", ref.Provider, m.deps.Provider.Name()))
	}
	matcher, err := m.deps.Matchers(m.deps.Provider, ref)
	if err != nil {
		return nil, domain.ErrValidationFailed.WithError(err)
	}

	if m.deps.Limiter != nil {
		if err := m.deps.Limiter.CheckSessionStart(ctx, subject, m.cfg.StartsPerMinute); err != nil {
			return nil, err
		}
	}

	if err := m.reserve(); err != nil {
		return nil, err
	}
	reserved := true
	defer func() {
		if reserved {
			m.unreserve()
		}
	}()

	src, err := m.deps.Media.Open(req.Source)
	if err != nil {
		return nil, err
	}

	session := &domain.Session{
		ID:             uuid.New(),
		ReferenceID:    ref.ID,
		Source:         req.Source,
		Provider:       m.deps.Provider.Name(),
		Tracker:        trackerKind,
		Threshold:      fcfg.Threshold,
		DetectInterval: fcfg.DetectInterval,
		Status:         domain.SessionRunning,
	}
	logger := m.deps.Logger.With(slog.String("session_id", session.ID.String()))

	fnd, err := finder.New(matcher, trackers, fcfg, finder.WithLogger(logger))
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	if err := m.deps.Sessions.Create(ctx, session); err != nil {
		_ = src.Close()
		_ = fnd.Close()
		return nil, err
	}

	observer := newSessionObserver(m, session, logger)
	opts := []feed.Option{feed.WithLogger(logger), feed.WithObserver(observer)}
	if m.deps.Metrics != nil {
		opts = append(opts, feed.WithObserver(m.deps.Metrics.Track(session.ID)))
	}
	f := feed.New(src, fnd, feed.Config{
		SkipEvery:            req.SkipEvery,
		Realtime:             req.Realtime,
		MaxConsecutiveErrors: m.cfg.MaxConsecutiveErrors,
	}, opts...)

	rs := &runningSession{feed: f, observer: observer, done: make(chan struct{})}

	m.mu.Lock()
	m.reserved--
	reserved = false
	if m.closed {
		m.mu.Unlock()
		// Run returns at once on a stopped feed and releases the source
		f.Stop()
		summary, _ := f.Run(m.ctx)
		m.finish(session, observer, summary, nil)
		return nil, domain.ErrTooManySessions.WithError(errors.New("service is shutting down"))
	}
	m.running[session.ID] = rs
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(session, rs)

	_ = m.deps.Audit.Log(ctx, audit.Event{
		EventType:   audit.EventSessionStarted,
		SessionID:   session.ID,
		ReferenceID: ref.ID,
		Provider:    session.Provider,
		Success:     true,
		Metadata: map[string]string{
			"source":  session.Source,
			"tracker": session.Tracker,
		},
	})
	logger.InfoContext(ctx, "session started",
		slog.String("reference_id", ref.ID.String()),
		slog.String("source", session.Source),
		slog.Float64("threshold", session.Threshold),
		slog.Int("detect_interval", session.DetectInterval),
		slog.String("tracker", session.Tracker),
	)

	snapshot := *session
	return &snapshot, nil
}

// reserve claims a slot under MaxSessions
func (m *SessionManager) reserve() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return domain.ErrTooManySessions.WithError(errors.New("service is shutting down"))
	}
	if len(m.running)+m.reserved >= m.cfg.MaxSessions {
		return domain.ErrTooManySessions.WithError(fmt.Errorf("%d sessions running", len(m.running)))
	}
	m.reserved++
	return nil
}

func (m *SessionManager) unreserve() {
	m.mu.Lock()
	m.reserved--
	m.mu.Unlock()
}

func (m *SessionManager) run(session *domain.Session, rs *runningSession) {
	defer m.wg.Done()
	defer close(rs.done)

	summary, err := rs.feed.Run(m.ctx)
	m.finish(session, rs.observer, summary, err)

	m.mu.Lock()
	delete(m.running, session.ID)
	m.mu.Unlock()
}

// finish stores the final state of a session and announces it
func (m *SessionManager) finish(session *domain.Session, observer *sessionObserver, summary feed.Summary, runErr error) {
	ctx := context.WithoutCancel(m.ctx)

	final := observer.snapshot()
	final.Stats = domain.SessionStats{
		FramesProcessed: summary.FramesProcessed,
		Detections:      summary.Detections,
		TrackerUpdates:  summary.TrackerUpdates,
		FoundFrames:     summary.FoundFrames,
		BestScore:       summary.BestScore,
		Errors:          summary.Errors,
		StopReason:      string(summary.Reason),
	}
	switch {
	case runErr != nil:
		final.Status = domain.SessionFailed
		final.Error = runErr.Error()
	case summary.Reason == feed.ReasonEOF:
		final.Status = domain.SessionFinished
	default:
		final.Status = domain.SessionStopped
	}

	if err := m.deps.Sessions.Finish(ctx, &final); err != nil {
		observer.logger.Error("failed to store session result", slog.String("error", err.Error()))
	}
	observer.end(final)

	if m.deps.Metrics != nil {
		m.deps.Metrics.Release(session.ID)
	}

	if m.deps.Hub != nil {
		m.deps.Hub.BroadcastToSession(session.ID, domain.EventSessionFinished, final)
	}
	if m.deps.Webhooks != nil {
		m.deps.Webhooks.Publish(webhook.EventPayload{
			Type:      domain.EventSessionFinished,
			Data:      final,
			SessionID: session.ID,
			Timestamp: time.Now().UTC(),
		})
	}

	event := audit.Event{
		EventType:   audit.EventSessionEnded,
		SessionID:   session.ID,
		ReferenceID: session.ReferenceID,
		Provider:    session.Provider,
		Success:     runErr == nil,
		Metadata: map[string]string{
			"status":       string(final.Status),
			"stop_reason":  string(summary.Reason),
			"found_frames": fmt.Sprint(summary.FoundFrames),
		},
	}
	if runErr != nil {
		event.Error = runErr.Error()
	}
	_ = m.deps.Audit.Log(ctx, event)

	observer.logger.Info("session ended",
		slog.String("status", string(final.Status)),
		slog.String("reason", string(summary.Reason)),
		slog.Int("frames_processed", summary.FramesProcessed),
		slog.Int("found_frames", summary.FoundFrames),
		slog.Float64("best_score", summary.BestScore),
	)
}

func (m *SessionManager) lookup(id uuid.UUID) (*runningSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, ok := m.running[id]
	return rs, ok
}

// Stop asks a running session to end. It does not wait for it.
func (m *SessionManager) Stop(ctx context.Context, id uuid.UUID) error {
	if rs, ok := m.lookup(id); ok {
		rs.feed.Stop()
		return nil
	}

	if _, err := m.deps.Sessions.GetByID(ctx, id); err != nil {
		return err
	}
	return domain.ErrSessionNotRunning
}

// Wait blocks until the session ends or ctx is done. Sessions that are not
// running return immediately.
func (m *SessionManager) Wait(ctx context.Context, id uuid.UUID) error {
	rs, ok := m.lookup(id)
	if !ok {
		return nil
	}
	select {
	case <-rs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get returns a session. Running sessions report their live counters.
func (m *SessionManager) Get(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	if rs, ok := m.lookup(id); ok {
		s := rs.observer.snapshot()
		return &s, nil
	}
	return m.deps.Sessions.GetByID(ctx, id)
}

// List returns the latest sessions, newest first
func (m *SessionManager) List(ctx context.Context, limit int) ([]domain.Session, error) {
	sessions, err := m.deps.Sessions.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if rs, ok := m.lookup(sessions[i].ID); ok {
			sessions[i] = rs.observer.snapshot()
		}
	}
	return sessions, nil
}

// Running returns the number of sessions currently running
func (m *SessionManager) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running)
}

// Detections returns the presence transitions of a session
func (m *SessionManager) Detections(ctx context.Context, id uuid.UUID, limit int) ([]domain.Detection, error) {
	if _, err := m.Get(ctx, id); err != nil {
		return nil, err
	}
	return m.deps.Detections.ListBySession(ctx, id, limit)
}

// Snapshot returns the latest annotated match frame of a session
func (m *SessionManager) Snapshot(ctx context.Context, id uuid.UUID) (*repository.Snapshot, error) {
	return m.deps.Snapshots.Get(ctx, id)
}

// Shutdown stops every session and waits for them to store their results
func (m *SessionManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	for _, rs := range m.running {
		rs.feed.Stop()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.cancel()
		return nil
	case <-ctx.Done():
		// interrupts reads blocked on slow sources
		m.cancel()
		return ctx.Err()
	}
}
