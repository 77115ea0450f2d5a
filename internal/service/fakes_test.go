package service

import (
	"context"
	"errors"
	"image"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/saturnino-fabrica-de-software/findperson/internal/domain"
	"github.com/saturnino-fabrica-de-software/findperson/internal/feed"
	"github.com/saturnino-fabrica-de-software/findperson/internal/finder"
	"github.com/saturnino-fabrica-de-software/findperson/internal/provider"
	"github.com/saturnino-fabrica-de-software/findperson/internal/repository"
	"github.com/saturnino-fabrica-de-software/findperson/internal/webhook"
)

type MockFaceProvider struct {
	mock.Mock
}

func (m *MockFaceProvider) Name() string {
	return "mockprov"
}

func (m *MockFaceProvider) DetectFaces(ctx context.Context, image []byte) ([]provider.DetectedFace, error) {
	args := m.Called(ctx, image)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]provider.DetectedFace), args.Error(1)
}

type MockReferenceRepository struct {
	mock.Mock
}

func (m *MockReferenceRepository) Create(ctx context.Context, ref *domain.Reference) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}

func (m *MockReferenceRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Reference, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Reference), args.Error(1)
}

func (m *MockReferenceRepository) List(ctx context.Context) ([]domain.ReferenceView, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ReferenceView), args.Error(1)
}

func (m *MockReferenceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// memorySessions is an in-memory SessionRepositoryInterface
type memorySessions struct {
	mu        sync.Mutex
	sessions  map[uuid.UUID]domain.Session
	presence  []bool
	failCount int64
	createErr error
}

func newMemorySessions() *memorySessions {
	return &memorySessions{sessions: make(map[uuid.UUID]domain.Session)}
}

func (r *memorySessions) Create(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	s.StartedAt = time.Now()
	r.sessions[s.ID] = *s
	return nil
}

func (r *memorySessions) GetByID(_ context.Context, id uuid.UUID) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return &s, nil
}

func (r *memorySessions) List(_ context.Context, limit int) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memorySessions) UpdatePresence(_ context.Context, id uuid.UUID, present bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessions[id]
	s.Present = present
	r.sessions[id] = s
	r.presence = append(r.presence, present)
	return nil
}

func (r *memorySessions) Finish(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	s.EndedAt = &now
	r.sessions[s.ID] = *s
	return nil
}

func (r *memorySessions) FailRunning(_ context.Context, _ string) (int64, error) {
	return r.failCount, nil
}

type memoryDetections struct {
	mu         sync.Mutex
	detections []domain.Detection
}

func (r *memoryDetections) Create(_ context.Context, d *domain.Detection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d.ID = uuid.New()
	r.detections = append(r.detections, *d)
	return nil
}

func (r *memoryDetections) ListBySession(_ context.Context, sessionID uuid.UUID, _ int) ([]domain.Detection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Detection
	for _, d := range r.detections {
		if d.SessionID == sessionID {
			out = append(out, d)
		}
	}
	return out, nil
}

type memorySnapshots struct {
	mu        sync.Mutex
	snapshots map[uuid.UUID]repository.Snapshot
	saves     int
}

func newMemorySnapshots() *memorySnapshots {
	return &memorySnapshots{snapshots: make(map[uuid.UUID]repository.Snapshot)}
}

func (r *memorySnapshots) Save(_ context.Context, s *repository.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[s.SessionID] = *s
	r.saves++
	return nil
}

func (r *memorySnapshots) Get(_ context.Context, sessionID uuid.UUID) (*repository.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.snapshots[sessionID]
	if !ok {
		return nil, domain.ErrSnapshotNotFound
	}
	return &s, nil
}

type testFrame struct {
	index int
}

func (f *testFrame) Index() int              { return f.index }
func (f *testFrame) Bounds() image.Rectangle { return image.Rect(0, 0, 320, 240) }
func (f *testFrame) JPEG() ([]byte, error)   { return []byte{0xFF, 0xD8}, nil }
func (f *testFrame) Close() error            { return nil }

// scriptedSource yields total frames, or frames forever every interval when
// total is 0
type scriptedSource struct {
	total    int
	interval time.Duration
	index    int
	closed   chan struct{}
	once     sync.Once
}

func newScriptedSource(total int, interval time.Duration) *scriptedSource {
	return &scriptedSource{total: total, interval: interval, closed: make(chan struct{})}
}

func (s *scriptedSource) Next(ctx context.Context) (feed.Frame, error) {
	if s.total > 0 && s.index >= s.total {
		return nil, io.EOF
	}
	if s.interval > 0 {
		select {
		case <-time.After(s.interval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.index++
	return &testFrame{index: s.index}, nil
}

func (s *scriptedSource) FPS() float64    { return 25 }
func (s *scriptedSource) FrameCount() int { return s.total }
func (s *scriptedSource) Live() bool      { return s.total == 0 }
func (s *scriptedSource) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type fakeMedia struct {
	mu       sync.Mutex
	sources  []*scriptedSource
	newSrc   func() *scriptedSource
	openErr  error
	annotate int
}

func (m *fakeMedia) Open(source string) (feed.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return nil, m.openErr
	}
	src := m.newSrc()
	m.sources = append(m.sources, src)
	return src, nil
}

func (m *fakeMedia) Trackers(kind string) (finder.TrackerFactory, error) {
	if kind != "csrt" && kind != "mil" {
		return nil, domain.ErrInvalidTracker
	}
	// detection-only sessions keep the scripts deterministic
	return nil, nil
}

func (m *fakeMedia) Annotate(frame finder.Frame, res finder.Result) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.annotate++
	return []byte{0xFF, 0xD8, byte(frame.Index())}, nil
}

// scoreMatcher scores one face per frame with score(frame index)
func scoreMatcher(score func(index int) float64) MatcherBuilder {
	return func(_ provider.FaceProvider, _ *domain.Reference) (finder.Matcher, error) {
		return finder.MatcherFunc(func(_ context.Context, frame finder.Frame) ([]finder.Candidate, error) {
			return []finder.Candidate{{Box: image.Rect(10, 10, 60, 60), Score: score(frame.Index())}}, nil
		}), nil
	}
}

func failingMatcher(err error) MatcherBuilder {
	return func(_ provider.FaceProvider, _ *domain.Reference) (finder.Matcher, error) {
		return finder.MatcherFunc(func(context.Context, finder.Frame) ([]finder.Candidate, error) {
			return nil, err
		}), nil
	}
}

type recordedEvent struct {
	sessionID uuid.UUID
	eventType string
}

type fakeHub struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (h *fakeHub) BroadcastToSession(sessionID uuid.UUID, eventType string, _ interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, recordedEvent{sessionID, eventType})
}

func (h *fakeHub) types() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.events))
	for _, e := range h.events {
		out = append(out, e.eventType)
	}
	return out
}

type fakePublisher struct {
	mu     sync.Mutex
	events []webhook.EventPayload
}

func (p *fakePublisher) Publish(event webhook.EventPayload) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return true
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type fakeLimiter struct {
	err      error
	subjects []string
}

func (l *fakeLimiter) CheckSessionStart(_ context.Context, subject string, _ int) error {
	l.subjects = append(l.subjects, subject)
	return l.err
}

var errMatcher = errors.New("provider unavailable")
