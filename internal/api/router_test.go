package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/findperson/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/findperson/internal/domain"
	"github.com/saturnino-fabrica-de-software/findperson/internal/metrics"
	"github.com/saturnino-fabrica-de-software/findperson/internal/repository"
	"github.com/saturnino-fabrica-de-software/findperson/internal/ws"
)

const testKey = "fp_test_0123456789abcdefghijABCDEFGHIJ"

type stubReferences struct{}

func (stubReferences) Create(ctx context.Context, name string, images [][]byte) (*domain.Reference, error) {
	return nil, domain.ErrNoFaceDetected
}

func (stubReferences) Get(ctx context.Context, id uuid.UUID) (*domain.Reference, error) {
	return nil, domain.ErrReferenceNotFound
}

func (stubReferences) List(ctx context.Context) ([]domain.ReferenceView, error) {
	return []domain.ReferenceView{{ID: uuid.New(), Name: "alice", Provider: "mock", Embeddings: 1}}, nil
}

func (stubReferences) Delete(ctx context.Context, id uuid.UUID) error {
	return nil
}

type stubSessions struct {
	running int
}

func (s stubSessions) Start(ctx context.Context, subject string, req domain.StartSessionRequest) (*domain.Session, error) {
	return nil, domain.ErrTooManySessions
}

func (s stubSessions) Stop(ctx context.Context, id uuid.UUID) error {
	return domain.ErrSessionNotFound
}

func (s stubSessions) Get(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	return nil, domain.ErrSessionNotFound
}

func (s stubSessions) List(ctx context.Context, limit int) ([]domain.Session, error) {
	return nil, nil
}

func (s stubSessions) Detections(ctx context.Context, id uuid.UUID, limit int) ([]domain.Detection, error) {
	return nil, domain.ErrSessionNotFound
}

func (s stubSessions) Snapshot(ctx context.Context, id uuid.UUID) (*repository.Snapshot, error) {
	return nil, domain.ErrSnapshotNotFound
}

func (s stubSessions) Running() int {
	return s.running
}

type stubMetrics struct{}

func (stubMetrics) ListBySession(ctx context.Context, sessionID uuid.UUID, name string) ([]*metrics.SessionMetric, error) {
	return nil, nil
}

type downDB struct{}

func (downDB) Ping(ctx context.Context) error {
	return errors.New("connection refused")
}

func newTestRouter(t *testing.T, deps *Dependencies) *Router {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRouter(logger, deps)
	r.Setup()
	t.Cleanup(func() { _ = r.Shutdown() })
	return r
}

func testDeps() *Dependencies {
	return &Dependencies{
		References:   stubReferences{},
		Sessions:     stubSessions{running: 1},
		Metrics:      stubMetrics{},
		Hub:          ws.NewHub(),
		APIKeyHashes: []string{domain.HashAPIKey(testKey)},
	}
}

func authed(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+testKey)
	return req
}

func TestRouter_HealthWithoutDependencies(t *testing.T) {
	r := newTestRouter(t, nil)

	resp, err := r.App().Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = r.App().Test(httptest.NewRequest("GET", "/ready", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = r.App().Test(httptest.NewRequest("GET", "/v1/references", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestRouter_ReadyReportsDatabase(t *testing.T) {
	deps := testDeps()
	deps.DB = downDB{}
	r := newTestRouter(t, deps)

	resp, err := r.App().Test(httptest.NewRequest("GET", "/ready", nil))
	require.NoError(t, err)
	assert.Equal(t, 503, resp.StatusCode)

	resp, err = r.App().Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, float64(1), health["running_sessions"])
}

func TestRouter_RequiresAPIKey(t *testing.T) {
	r := newTestRouter(t, testDeps())

	paths := []string{"/v1/references", "/v1/sessions", "/v1/ws"}
	for _, p := range paths {
		resp, err := r.App().Test(httptest.NewRequest("GET", p, nil))
		require.NoError(t, err)
		assert.Equal(t, 401, resp.StatusCode, p)
	}
}

func TestRouter_AuthenticatedRoutes(t *testing.T) {
	r := newTestRouter(t, testDeps())
	id := uuid.NewString()

	tests := []struct {
		method     string
		path       string
		wantStatus int
	}{
		{"GET", "/v1/references", 200},
		{"GET", "/v1/references/" + id, 404},
		{"DELETE", "/v1/references/" + id, 204},
		{"GET", "/v1/sessions", 200},
		{"GET", "/v1/sessions/" + id, 404},
		{"DELETE", "/v1/sessions/" + id, 404},
		{"GET", "/v1/sessions/" + id + "/detections", 404},
		{"GET", "/v1/sessions/" + id + "/snapshot", 404},
		{"GET", "/v1/sessions/" + id + "/metrics", 404},
		{"GET", "/v1/ws", 426},
		// no webhook service configured
		{"GET", "/v1/webhooks", 404},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			resp, err := r.App().Test(authed(tt.method, tt.path))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
		})
	}
}

func TestRouter_RateLimitOverride(t *testing.T) {
	deps := testDeps()
	deps.RateLimit = &middleware.RateLimiterConfig{Max: 2}
	r := newTestRouter(t, deps)

	for i := 0; i < 2; i++ {
		resp, err := r.App().Test(authed("GET", "/v1/sessions"))
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	}

	resp, err := r.App().Test(authed("GET", "/v1/sessions"))
	require.NoError(t, err)
	assert.Equal(t, 429, resp.StatusCode)
}
