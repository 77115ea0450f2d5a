package deepface

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Represent(t *testing.T) {
	tests := []struct {
		name           string
		serverResponse interface{}
		serverStatus   int
		wantErr        bool
		wantErrContain string
		validateResp   func(*testing.T, *RepresentResponse)
	}{
		{
			name: "successful response with single face",
			serverResponse: RepresentResponse{
				Results: []RepresentResult{
					{
						Embedding:  make([]float64, 512),
						FacialArea: FacialArea{X: 10, Y: 20, W: 100, H: 100},
					},
				},
			},
			serverStatus: http.StatusOK,
			validateResp: func(t *testing.T, resp *RepresentResponse) {
				require.NotNil(t, resp)
				require.Len(t, resp.Results, 1)
				assert.Len(t, resp.Results[0].Embedding, 512)
				assert.Equal(t, FacialArea{X: 10, Y: 20, W: 100, H: 100}, resp.Results[0].FacialArea)
			},
		},
		{
			name: "successful response with multiple faces",
			serverResponse: RepresentResponse{
				Results: []RepresentResult{
					{Embedding: make([]float64, 512), FacialArea: FacialArea{X: 10, Y: 20, W: 100, H: 100}},
					{Embedding: make([]float64, 512), FacialArea: FacialArea{X: 150, Y: 30, W: 90, H: 90}},
				},
			},
			serverStatus: http.StatusOK,
			validateResp: func(t *testing.T, resp *RepresentResponse) {
				assert.Len(t, resp.Results, 2)
			},
		},
		{
			name:           "no face is an empty result",
			serverResponse: map[string]string{"error": "Exception while representing pair: Face could not be detected in numpy array."},
			serverStatus:   http.StatusBadRequest,
			validateResp: func(t *testing.T, resp *RepresentResponse) {
				require.NotNil(t, resp)
				assert.Empty(t, resp.Results)
			},
		},
		{
			name:           "server error 500",
			serverResponse: map[string]string{"error": "internal server error"},
			serverStatus:   http.StatusInternalServerError,
			wantErr:        true,
			wantErrContain: "status 500",
		},
		{
			name:           "bad request 400",
			serverResponse: map[string]string{"error": "invalid image format"},
			serverStatus:   http.StatusBadRequest,
			wantErr:        true,
			wantErrContain: "status 400",
		},
		{
			name:           "service unavailable 503",
			serverResponse: map[string]string{"error": "service temporarily unavailable"},
			serverStatus:   http.StatusServiceUnavailable,
			wantErr:        true,
			wantErrContain: "deepface service unavailable",
		},
		{
			name:           "invalid json response",
			serverResponse: "not a valid json",
			serverStatus:   http.StatusOK,
			wantErr:        true,
			wantErrContain: "invalid response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/represent", r.URL.Path)
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

				var req RepresentRequest
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.NotEmpty(t, req.Img)
				assert.Equal(t, "Facenet512", req.Model)
				assert.Equal(t, "retinaface", req.Detector)
				assert.True(t, req.EnforceDetection)

				w.WriteHeader(tt.serverStatus)
				if str, ok := tt.serverResponse.(string); ok {
					_, _ = w.Write([]byte(str))
				} else {
					_ = json.NewEncoder(w).Encode(tt.serverResponse)
				}
			}))
			defer server.Close()

			config := DefaultConfig()
			config.BaseURL = server.URL
			config.RetryCount = 0

			client := NewClient(config)
			resp, err := client.Represent(context.Background(), "dGVzdA==")

			if tt.wantErr {
				require.Error(t, err)
				if tt.wantErrContain != "" {
					assert.Contains(t, err.Error(), tt.wantErrContain)
				}
				return
			}

			require.NoError(t, err)
			if tt.validateResp != nil {
				tt.validateResp(t, resp)
			}
		})
	}
}

func TestClient_RetryOnFailure(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "service unavailable"})
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(RepresentResponse{Results: []RepresentResult{}})
	}))
	defer server.Close()

	config := DefaultConfig()
	config.BaseURL = server.URL
	config.Timeout = 5 * time.Second

	client := NewClient(config)
	resp, err := client.Represent(context.Background(), "dGVzdA==")

	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, int32(3), attempts.Load(), "expected exactly 3 attempts")
}

func TestClient_RetryExhaustion(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "always failing"})
	}))
	defer server.Close()

	config := DefaultConfig()
	config.BaseURL = server.URL
	config.Timeout = 5 * time.Second
	config.RetryCount = 1

	client := NewClient(config)
	_, err := client.Represent(context.Background(), "dGVzdA==")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeepFaceUnavailable)
	assert.Equal(t, int32(2), attempts.Load(), "expected initial attempt + 1 retry")
}

func TestClient_NoRetryOnClientError(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid request"})
	}))
	defer server.Close()

	config := DefaultConfig()
	config.BaseURL = server.URL

	client := NewClient(config)
	_, err := client.Represent(context.Background(), "dGVzdA==")

	require.Error(t, err)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(RepresentResponse{Results: []RepresentResult{}})
	}))
	defer server.Close()

	config := DefaultConfig()
	config.BaseURL = server.URL

	client := NewClient(config)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Represent(ctx, "dGVzdA==")

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(RepresentResponse{Results: []RepresentResult{}})
	}))
	defer server.Close()

	config := DefaultConfig()
	config.BaseURL = server.URL
	config.Timeout = 50 * time.Millisecond
	config.RetryCount = 0

	client := NewClient(config)
	_, err := client.Represent(context.Background(), "dGVzdA==")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeepFaceUnavailable)
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{10, 30 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, calculateBackoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestNewClient(t *testing.T) {
	config := Config{
		BaseURL:    "http://localhost:5005",
		Timeout:    10 * time.Second,
		Model:      "Facenet512",
		Detector:   "retinaface",
		RetryCount: 3,
	}

	client := NewClient(config)

	require.NotNil(t, client)
	assert.Equal(t, config, client.config)
	assert.Equal(t, config.Timeout, client.httpClient.Timeout)
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "http://localhost:5005", config.BaseURL)
	assert.Equal(t, 30*time.Second, config.Timeout)
	assert.Equal(t, "Facenet512", config.Model)
	assert.Equal(t, "retinaface", config.Detector)
	assert.Equal(t, 3, config.RetryCount)
}
