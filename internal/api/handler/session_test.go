package handler

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/findperson/internal/domain"
	"github.com/saturnino-fabrica-de-software/findperson/internal/metrics"
	"github.com/saturnino-fabrica-de-software/findperson/internal/repository"
)

// MockSessionService is a mock implementation of SessionService
type MockSessionService struct {
	mock.Mock
}

func (m *MockSessionService) Start(ctx context.Context, subject string, req domain.StartSessionRequest) (*domain.Session, error) {
	args := m.Called(ctx, subject, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockSessionService) Stop(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockSessionService) Get(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockSessionService) List(ctx context.Context, limit int) ([]domain.Session, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Session), args.Error(1)
}

func (m *MockSessionService) Detections(ctx context.Context, id uuid.UUID, limit int) ([]domain.Detection, error) {
	args := m.Called(ctx, id, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Detection), args.Error(1)
}

func (m *MockSessionService) Snapshot(ctx context.Context, id uuid.UUID) (*repository.Snapshot, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Snapshot), args.Error(1)
}

// MockMetricsReader is a mock implementation of MetricsReader
type MockMetricsReader struct {
	mock.Mock
}

func (m *MockMetricsReader) ListBySession(ctx context.Context, sessionID uuid.UUID, name string) ([]*metrics.SessionMetric, error) {
	args := m.Called(ctx, sessionID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*metrics.SessionMetric), args.Error(1)
}

func sampleSession() *domain.Session {
	return &domain.Session{
		ID:             uuid.New(),
		ReferenceID:    uuid.New(),
		Source:         "rtsp://camera/1",
		Provider:       "deepface",
		Tracker:        "csrt",
		Threshold:      0.5,
		DetectInterval: 5,
		Status:         domain.SessionRunning,
		StartedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newSessionApp(svc *MockSessionService, reader *MockMetricsReader) *SessionHandler {
	return NewSessionHandler(svc, reader, testLogger())
}

func TestSessionHandler_Start(t *testing.T) {
	session := sampleSession()
	threshold := 0.6

	tests := []struct {
		name       string
		body       string
		setupMock  func(*MockSessionService)
		wantStatus int
		wantCode   string
	}{
		{
			name: "valid request",
			body: `{"reference_id":"` + session.ReferenceID.String() + `","source":" rtsp://camera/1 ","threshold":0.6,"tracker":"csrt"}`,
			setupMock: func(m *MockSessionService) {
				m.On("Start", mock.Anything, testSubject, domain.StartSessionRequest{
					ReferenceID: session.ReferenceID,
					Source:      "rtsp://camera/1",
					Threshold:   &threshold,
					Tracker:     "csrt",
				}).Return(session, nil)
			},
			wantStatus: 201,
		},
		{
			name:       "malformed json",
			body:       `{"reference_id":`,
			setupMock:  func(m *MockSessionService) {},
			wantStatus: 400,
			wantCode:   "BAD_REQUEST",
		},
		{
			name:       "missing reference",
			body:       `{"source":"0"}`,
			setupMock:  func(m *MockSessionService) {},
			wantStatus: 422,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name: "too many sessions",
			body: `{"reference_id":"` + session.ReferenceID.String() + `","source":"0"}`,
			setupMock: func(m *MockSessionService) {
				m.On("Start", mock.Anything, testSubject, mock.Anything).Return(nil, domain.ErrTooManySessions)
			},
			wantStatus: 429,
			wantCode:   "TOO_MANY_SESSIONS",
		},
		{
			name: "source unavailable",
			body: `{"reference_id":"` + session.ReferenceID.String() + `","source":"missing.mp4"}`,
			setupMock: func(m *MockSessionService) {
				m.On("Start", mock.Anything, testSubject, mock.Anything).Return(nil, domain.ErrSourceUnavailable)
			},
			wantStatus: 422,
			wantCode:   "SOURCE_UNAVAILABLE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockSessionService{}
			tt.setupMock(svc)

			app := newTestApp()
			app.Post("/v1/sessions", newSessionApp(svc, nil).Start)

			req := httptest.NewRequest("POST", "/v1/sessions", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, errorCode(t, resp))
			} else {
				var got domain.Session
				decodeJSON(t, resp, &got)
				assert.Equal(t, session.ID, got.ID)
				assert.Equal(t, domain.SessionRunning, got.Status)
			}

			svc.AssertExpectations(t)
		})
	}
}

func TestSessionHandler_GetAndList(t *testing.T) {
	session := sampleSession()

	svc := &MockSessionService{}
	svc.On("Get", mock.Anything, session.ID).Return(session, nil)
	svc.On("Get", mock.Anything, mock.Anything).Return(nil, domain.ErrSessionNotFound)
	svc.On("List", mock.Anything, 10).Return([]domain.Session{*session}, nil)
	svc.On("List", mock.Anything, defaultListLimit).Return(nil, nil)

	h := newSessionApp(svc, nil)
	app := newTestApp()
	app.Get("/v1/sessions", h.List)
	app.Get("/v1/sessions/:id", h.Get)

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/sessions/"+session.ID.String(), nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	var got domain.Session
	decodeJSON(t, resp, &got)
	assert.Equal(t, session.Source, got.Source)

	resp, err = app.Test(httptest.NewRequest("GET", "/v1/sessions/"+uuid.NewString(), nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/v1/sessions?limit=10", nil))
	require.NoError(t, err)
	var list map[string][]domain.Session
	decodeJSON(t, resp, &list)
	assert.Len(t, list["sessions"], 1)

	resp, err = app.Test(httptest.NewRequest("GET", "/v1/sessions?limit=0", nil))
	require.NoError(t, err)
	list = nil
	decodeJSON(t, resp, &list)
	require.Contains(t, list, "sessions")
	assert.Empty(t, list["sessions"])
}

func TestSessionHandler_Stop(t *testing.T) {
	running, finished := uuid.New(), uuid.New()

	svc := &MockSessionService{}
	svc.On("Stop", mock.Anything, running).Return(nil)
	svc.On("Stop", mock.Anything, finished).Return(domain.ErrSessionNotRunning)

	app := newTestApp()
	app.Delete("/v1/sessions/:id", newSessionApp(svc, nil).Stop)

	resp, err := app.Test(httptest.NewRequest("DELETE", "/v1/sessions/"+running.String(), nil))
	require.NoError(t, err)
	assert.Equal(t, 202, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("DELETE", "/v1/sessions/"+finished.String(), nil))
	require.NoError(t, err)
	assert.Equal(t, 409, resp.StatusCode)
	assert.Equal(t, "SESSION_NOT_RUNNING", errorCode(t, resp))
}

func TestSessionHandler_Detections(t *testing.T) {
	id := uuid.New()
	detections := []domain.Detection{
		{ID: uuid.New(), SessionID: id, Kind: domain.DetectionFound, Frame: 12, Score: 0.81, Box: &domain.Box{X: 1, Y: 2, Width: 30, Height: 40}},
		{ID: uuid.New(), SessionID: id, Kind: domain.DetectionLost, Frame: 40},
	}

	svc := &MockSessionService{}
	svc.On("Detections", mock.Anything, id, maxListLimit).Return(detections, nil)

	app := newTestApp()
	app.Get("/v1/sessions/:id/detections", newSessionApp(svc, nil).Detections)

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/sessions/"+id.String()+"/detections?limit=9999", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body map[string][]domain.Detection
	decodeJSON(t, resp, &body)
	require.Len(t, body["detections"], 2)
	assert.Equal(t, domain.DetectionFound, body["detections"][0].Kind)
	assert.Equal(t, 30, body["detections"][0].Box.Width)
	assert.Nil(t, body["detections"][1].Box)
}

func TestSessionHandler_Snapshot(t *testing.T) {
	id, missing := uuid.New(), uuid.New()
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}

	svc := &MockSessionService{}
	svc.On("Snapshot", mock.Anything, id).Return(&repository.Snapshot{SessionID: id, Frame: 42, Score: 0.8123, Image: jpeg}, nil)
	svc.On("Snapshot", mock.Anything, missing).Return(nil, domain.ErrSnapshotNotFound)

	app := newTestApp()
	app.Get("/v1/sessions/:id/snapshot", newSessionApp(svc, nil).Snapshot)

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/sessions/"+id.String()+"/snapshot", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	assert.Equal(t, "42", resp.Header.Get("X-Frame-Index"))
	assert.Equal(t, "0.8123", resp.Header.Get("X-Match-Score"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, jpeg, body)

	resp, err = app.Test(httptest.NewRequest("GET", "/v1/sessions/"+missing.String()+"/snapshot", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, "SNAPSHOT_NOT_FOUND", errorCode(t, resp))
}

func TestSessionHandler_Metrics(t *testing.T) {
	session := sampleSession()
	now := time.Now().UTC().Truncate(time.Second)

	svc := &MockSessionService{}
	svc.On("Get", mock.Anything, session.ID).Return(session, nil)
	svc.On("Get", mock.Anything, mock.Anything).Return(nil, domain.ErrSessionNotFound)

	reader := &MockMetricsReader{}
	reader.On("ListBySession", mock.Anything, session.ID, metrics.MetricDetections).Return([]*metrics.SessionMetric{
		{SessionID: session.ID, Name: metrics.MetricDetections, Value: 7, PeriodStart: now.Add(-time.Minute), PeriodEnd: now},
	}, nil)

	app := newTestApp()
	app.Get("/v1/sessions/:id/metrics", newSessionApp(svc, reader).Metrics)

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/sessions/"+session.ID.String()+"/metrics?name="+metrics.MetricDetections, nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body map[string][]metrics.SessionMetric
	decodeJSON(t, resp, &body)
	require.Len(t, body["metrics"], 1)
	assert.Equal(t, 7.0, body["metrics"][0].Value)

	resp, err = app.Test(httptest.NewRequest("GET", "/v1/sessions/"+uuid.NewString()+"/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)

	reader.AssertExpectations(t)
}
