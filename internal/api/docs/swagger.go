package docs

import (
	"github.com/go-swagno/swagno"
	"github.com/go-swagno/swagno/components/endpoint"
	"github.com/go-swagno/swagno/components/http/response"
	"github.com/go-swagno/swagno/components/mime"
	"github.com/go-swagno/swagno/components/parameter"
)

// ReferenceResponse represents an encoded reference person
type ReferenceResponse struct {
	ID         string `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Name       string `json:"name" example:"alice"`
	Provider   string `json:"provider" example:"deepface"`
	Embeddings int    `json:"embeddings" example:"3"`
	CreatedAt  string `json:"created_at" example:"2026-01-01T00:00:00Z"`
}

// ReferenceListResponse wraps the reference listing
type ReferenceListResponse struct {
	References []ReferenceResponse `json:"references"`
}

// StartSessionRequest is the body of POST /v1/sessions
type StartSessionRequest struct {
	ReferenceID    string  `json:"reference_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Source         string  `json:"source" example:"rtsp://camera.local/stream1"`
	Threshold      float64 `json:"threshold,omitempty" example:"0.5"`
	DetectInterval int     `json:"detect_interval,omitempty" example:"5"`
	Tracker        string  `json:"tracker,omitempty" example:"csrt"`
	SkipEvery      int     `json:"skip_every,omitempty" example:"1"`
	Realtime       bool    `json:"realtime,omitempty" example:"false"`
}

// SessionStats mirrors the live or final counters of a session
type SessionStats struct {
	FramesProcessed int     `json:"frames_processed" example:"1200"`
	Detections      int     `json:"detections" example:"240"`
	TrackerUpdates  int     `json:"tracker_updates" example:"960"`
	FoundFrames     int     `json:"found_frames" example:"310"`
	BestScore       float64 `json:"best_score" example:"0.83"`
	Errors          int     `json:"errors" example:"0"`
	StopReason      string  `json:"stop_reason,omitempty" example:"eof"`
}

// SessionResponse represents a find-person session
type SessionResponse struct {
	ID             string       `json:"id" example:"7c9e6679-7425-40de-944b-e07fc1f90ae7"`
	ReferenceID    string       `json:"reference_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Source         string       `json:"source" example:"rtsp://camera.local/stream1"`
	Provider       string       `json:"provider" example:"deepface"`
	Tracker        string       `json:"tracker" example:"csrt"`
	Threshold      float64      `json:"threshold" example:"0.5"`
	DetectInterval int          `json:"detect_interval" example:"5"`
	Status         string       `json:"status" example:"running"`
	Present        bool         `json:"present" example:"true"`
	Stats          SessionStats `json:"stats"`
	Error          string       `json:"error,omitempty" example:""`
	StartedAt      string       `json:"started_at" example:"2026-01-01T00:00:00Z"`
	EndedAt        string       `json:"ended_at,omitempty" example:"2026-01-01T00:10:00Z"`
}

// SessionListResponse wraps the session listing
type SessionListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
}

// BoxResponse is a face rectangle in frame pixels
type BoxResponse struct {
	X      int `json:"x" example:"120"`
	Y      int `json:"y" example:"80"`
	Width  int `json:"width" example:"96"`
	Height int `json:"height" example:"110"`
}

// DetectionResponse is a found or lost transition
type DetectionResponse struct {
	ID        string       `json:"id" example:"1b4e28ba-2fa1-11d2-883f-0016d3cca427"`
	SessionID string       `json:"session_id" example:"7c9e6679-7425-40de-944b-e07fc1f90ae7"`
	Kind      string       `json:"kind" example:"found"`
	Frame     int          `json:"frame" example:"215"`
	Score     float64      `json:"score" example:"0.78"`
	Box       *BoxResponse `json:"box,omitempty"`
	CreatedAt string       `json:"created_at" example:"2026-01-01T00:01:00Z"`
}

// DetectionListResponse wraps the detection listing
type DetectionListResponse struct {
	Detections []DetectionResponse `json:"detections"`
}

// SessionMetricResponse is one flushed counter
type SessionMetricResponse struct {
	SessionID   string  `json:"session_id" example:"7c9e6679-7425-40de-944b-e07fc1f90ae7"`
	Name        string  `json:"name" example:"detections"`
	Value       float64 `json:"value" example:"48"`
	PeriodStart string  `json:"period_start" example:"2026-01-01T00:00:00Z"`
	PeriodEnd   string  `json:"period_end" example:"2026-01-01T00:01:00Z"`
	CreatedAt   string  `json:"created_at" example:"2026-01-01T00:01:00Z"`
}

// SessionMetricListResponse wraps the metric listing
type SessionMetricListResponse struct {
	Metrics []SessionMetricResponse `json:"metrics"`
}

// CreateWebhookRequest is the body of POST /v1/webhooks
type CreateWebhookRequest struct {
	Name    string   `json:"name" example:"ops-channel"`
	URL     string   `json:"url" example:"https://hooks.example.com/findperson"`
	Events  []string `json:"events" example:"person.found,person.lost"`
	Secret  string   `json:"secret,omitempty" example:""`
	Enabled bool     `json:"enabled" example:"true"`
}

// WebhookResponse represents a registered webhook
type WebhookResponse struct {
	ID              string   `json:"id" example:"9b2f1c3e-8c1a-4d7e-9a55-3f0e2b1d6c77"`
	Name            string   `json:"name" example:"ops-channel"`
	URL             string   `json:"url" example:"https://hooks.example.com/findperson"`
	Events          []string `json:"events" example:"person.found,person.lost"`
	Enabled         bool     `json:"enabled" example:"true"`
	LastTriggeredAt string   `json:"last_triggered_at,omitempty" example:"2026-01-01T00:01:00Z"`
	CreatedAt       string   `json:"created_at" example:"2026-01-01T00:00:00Z"`
	UpdatedAt       string   `json:"updated_at" example:"2026-01-01T00:00:00Z"`
}

// CreateWebhookResponse carries the signing secret, shown only once
type CreateWebhookResponse struct {
	Webhook WebhookResponse `json:"webhook"`
	Secret  string          `json:"secret" example:"4f6c0b1e..."`
}

// WebhookListResponse wraps the webhook listing
type WebhookListResponse struct {
	Webhooks []WebhookResponse `json:"webhooks"`
}

// HealthResponse is returned by the probes
type HealthResponse struct {
	Status          string `json:"status" example:"ok"`
	Version         string `json:"version,omitempty" example:"0.1.0"`
	RunningSessions int    `json:"running_sessions,omitempty" example:"2"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Code    string `json:"code" example:"VALIDATION_FAILED"`
	Message string `json:"message" example:"Request validation failed"`
}

// EmptyResponse represents no content response (204)
type EmptyResponse struct{}

var (
	apiKeyAuth = endpoint.WithSecurity([]map[string][]string{{"ApiKeyAuth": {}}})

	errUnauthorized = response.New(ErrorResponse{Code: "UNAUTHORIZED", Message: "Invalid or missing API key"}, "401", "Unauthorized")
	errRateLimited  = response.New(ErrorResponse{Code: "RATE_LIMIT_EXCEEDED", Message: "Rate limit exceeded"}, "429", "Too Many Requests")
	errInternal     = response.New(ErrorResponse{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"}, "500", "Internal Server Error")
	errBadID        = response.New(ErrorResponse{Code: "BAD_REQUEST", Message: "Invalid id"}, "400", "Bad Request")
)

// authErrors appends the errors every authenticated endpoint can return
func authErrors(specific ...response.Response) []response.Response {
	return append([]response.Response{errUnauthorized, errRateLimited, errInternal}, specific...)
}

func NewSwagger() *swagno.Swagger {
	sw := swagno.New(swagno.Config{
		Title:       "FindPerson API",
		Version:     "v1.0.0",
		Description: "Finds a reference person in live or recorded video: periodic face matching against the reference with tracker hand-off between detections",
		Host:        "localhost:3000",
		Path:        "/v1",
	})

	endpoints := []*endpoint.EndPoint{
		// References

		// POST /v1/references - Encode reference
		endpoint.New(
			endpoint.POST,
			"/references",
			endpoint.WithTags("References"),
			endpoint.WithSummary("Encode a reference person"),
			endpoint.WithDescription("Encodes one to ten images of the person to find, sent as repeated image parts next to a name field. Each image must contain a face; the first face of each image is used."),
			endpoint.WithConsume([]mime.MIME{mime.MIME("multipart/form-data")}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(ReferenceResponse{}, "201", "Reference created"),
			}),
			endpoint.WithErrors(authErrors(
				response.New(ErrorResponse{Code: "REFERENCE_ALREADY_EXISTS", Message: "Reference already exists"}, "409", "Conflict"),
				response.New(ErrorResponse{Code: "INVALID_IMAGE", Message: "Invalid image"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "NO_FACE_DETECTED", Message: "No face detected in image"}, "422", "Unprocessable Entity"),
			)),
			apiKeyAuth,
		),

		// GET /v1/references - List references
		endpoint.New(
			endpoint.GET,
			"/references",
			endpoint.WithTags("References"),
			endpoint.WithSummary("List references"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(ReferenceListResponse{}, "200", "References"),
			}),
			endpoint.WithErrors(authErrors()),
			apiKeyAuth,
		),

		// GET /v1/references/{id} - Get reference
		endpoint.New(
			endpoint.GET,
			"/references/{id}",
			endpoint.WithTags("References"),
			endpoint.WithSummary("Get a reference"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("id", parameter.Path, parameter.WithDescription("Reference UUID")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(ReferenceResponse{}, "200", "Reference"),
			}),
			endpoint.WithErrors(authErrors(
				errBadID,
				response.New(ErrorResponse{Code: "REFERENCE_NOT_FOUND", Message: "Reference not found"}, "404", "Not Found"),
			)),
			apiKeyAuth,
		),

		// DELETE /v1/references/{id} - Delete reference
		endpoint.New(
			endpoint.DELETE,
			"/references/{id}",
			endpoint.WithTags("References"),
			endpoint.WithSummary("Delete a reference"),
			endpoint.WithDescription("Deletes the reference and its embeddings. Past sessions keep their results."),
			endpoint.WithParams(
				parameter.StrParam("id", parameter.Path, parameter.WithDescription("Reference UUID")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(EmptyResponse{}, "204", "Reference deleted"),
			}),
			endpoint.WithErrors(authErrors(
				errBadID,
				response.New(ErrorResponse{Code: "REFERENCE_NOT_FOUND", Message: "Reference not found"}, "404", "Not Found"),
			)),
			apiKeyAuth,
		),

		// Sessions

		// POST /v1/sessions - Start session
		endpoint.New(
			endpoint.POST,
			"/sessions",
			endpoint.WithTags("Sessions"),
			endpoint.WithSummary("Start a find-person session"),
			endpoint.WithDescription("Opens the source (empty or a digit for a camera, otherwise a file or stream URL) and starts searching for the reference. Threshold, detect interval and tracker default to the server configuration."),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SessionResponse{}, "201", "Session started"),
			}),
			endpoint.WithErrors(authErrors(
				response.New(ErrorResponse{Code: "BAD_REQUEST", Message: "Malformed body"}, "400", "Bad Request"),
				response.New(ErrorResponse{Code: "REFERENCE_NOT_FOUND", Message: "Reference not found"}, "404", "Not Found"),
				response.New(ErrorResponse{Code: "INVALID_THRESHOLD", Message: "Threshold must be in (0, 1]"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "INVALID_DETECT_INTERVAL", Message: "Detect interval must be at least 1"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "INVALID_TRACKER", Message: "Unknown tracker"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "SOURCE_UNAVAILABLE", Message: "Video source could not be opened"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "TOO_MANY_SESSIONS", Message: "Too many running sessions"}, "429", "Too Many Requests"),
				response.New(ErrorResponse{Code: "SESSION_RATE_LIMIT_EXCEEDED", Message: "Session start rate limit exceeded"}, "429", "Too Many Requests"),
			)),
			apiKeyAuth,
		),

		// GET /v1/sessions - List sessions
		endpoint.New(
			endpoint.GET,
			"/sessions",
			endpoint.WithTags("Sessions"),
			endpoint.WithSummary("List sessions"),
			endpoint.WithDescription("Returns the latest sessions, newest first. Running sessions report live counters."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.IntParam("limit", parameter.Query, parameter.WithDescription("Maximum number of sessions (default: 50, max: 500)")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SessionListResponse{}, "200", "Sessions"),
			}),
			endpoint.WithErrors(authErrors()),
			apiKeyAuth,
		),

		// GET /v1/sessions/{id} - Get session
		endpoint.New(
			endpoint.GET,
			"/sessions/{id}",
			endpoint.WithTags("Sessions"),
			endpoint.WithSummary("Get a session"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("id", parameter.Path, parameter.WithDescription("Session UUID")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SessionResponse{}, "200", "Session"),
			}),
			endpoint.WithErrors(authErrors(
				errBadID,
				response.New(ErrorResponse{Code: "SESSION_NOT_FOUND", Message: "Session not found"}, "404", "Not Found"),
			)),
			apiKeyAuth,
		),

		// DELETE /v1/sessions/{id} - Stop session
		endpoint.New(
			endpoint.DELETE,
			"/sessions/{id}",
			endpoint.WithTags("Sessions"),
			endpoint.WithSummary("Stop a running session"),
			endpoint.WithDescription("Asks the session to stop after the current frame. The final status is reported by GET /sessions/{id} and the session.finished event."),
			endpoint.WithParams(
				parameter.StrParam("id", parameter.Path, parameter.WithDescription("Session UUID")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(EmptyResponse{}, "202", "Stop requested"),
			}),
			endpoint.WithErrors(authErrors(
				errBadID,
				response.New(ErrorResponse{Code: "SESSION_NOT_FOUND", Message: "Session not found"}, "404", "Not Found"),
				response.New(ErrorResponse{Code: "SESSION_NOT_RUNNING", Message: "Session is not running"}, "409", "Conflict"),
			)),
			apiKeyAuth,
		),

		// GET /v1/sessions/{id}/detections - Presence transitions
		endpoint.New(
			endpoint.GET,
			"/sessions/{id}/detections",
			endpoint.WithTags("Sessions"),
			endpoint.WithSummary("List found/lost transitions"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("id", parameter.Path, parameter.WithDescription("Session UUID")),
				parameter.IntParam("limit", parameter.Query, parameter.WithDescription("Maximum number of detections (default: 50, max: 500)")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(DetectionListResponse{}, "200", "Detections"),
			}),
			endpoint.WithErrors(authErrors(
				errBadID,
				response.New(ErrorResponse{Code: "SESSION_NOT_FOUND", Message: "Session not found"}, "404", "Not Found"),
			)),
			apiKeyAuth,
		),

		// GET /v1/sessions/{id}/snapshot - Latest match frame
		endpoint.New(
			endpoint.GET,
			"/sessions/{id}/snapshot",
			endpoint.WithTags("Sessions"),
			endpoint.WithSummary("Latest annotated match frame"),
			endpoint.WithDescription("Returns the JPEG frame captured on the latest found transition, with the face box drawn. X-Frame-Index and X-Match-Score headers describe it."),
			endpoint.WithProduce([]mime.MIME{mime.MIME("image/jpeg")}),
			endpoint.WithParams(
				parameter.StrParam("id", parameter.Path, parameter.WithDescription("Session UUID")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(EmptyResponse{}, "200", "JPEG image"),
			}),
			endpoint.WithErrors(authErrors(
				errBadID,
				response.New(ErrorResponse{Code: "SNAPSHOT_NOT_FOUND", Message: "No snapshot for session"}, "404", "Not Found"),
			)),
			apiKeyAuth,
		),

		// GET /v1/sessions/{id}/metrics - Flushed counters
		endpoint.New(
			endpoint.GET,
			"/sessions/{id}/metrics",
			endpoint.WithTags("Sessions"),
			endpoint.WithSummary("Per-session counters"),
			endpoint.WithDescription("Returns the counters flushed by the metrics aggregator, one row per metric and period."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("id", parameter.Path, parameter.WithDescription("Session UUID")),
				parameter.StrParam("name", parameter.Query, parameter.WithDescription("Only this metric (frames_processed, detections, tracker_updates, found_frames, transitions, best_score)")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SessionMetricListResponse{}, "200", "Metrics"),
			}),
			endpoint.WithErrors(authErrors(
				errBadID,
				response.New(ErrorResponse{Code: "SESSION_NOT_FOUND", Message: "Session not found"}, "404", "Not Found"),
			)),
			apiKeyAuth,
		),

		// GET /v1/ws - Live events
		endpoint.New(
			endpoint.GET,
			"/ws",
			endpoint.WithTags("Events"),
			endpoint.WithSummary("Live session events over WebSocket"),
			endpoint.WithDescription("Streams person.found, person.lost and session.finished events after a subscribed acknowledgement. Without session_id every session is streamed."),
			endpoint.WithParams(
				parameter.StrParam("session_id", parameter.Query, parameter.WithDescription("Only events of this session")),
				parameter.StrParam("events", parameter.Query, parameter.WithDescription("Comma separated event types, all when empty")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(EmptyResponse{}, "101", "Switching Protocols"),
			}),
			endpoint.WithErrors(authErrors(
				response.New(ErrorResponse{Code: "BAD_REQUEST", Message: "Invalid session_id or events"}, "400", "Bad Request"),
				response.New(ErrorResponse{Code: "HTTP_ERROR", Message: "Upgrade Required"}, "426", "Upgrade Required"),
			)),
			apiKeyAuth,
		),

		// Webhooks

		// POST /v1/webhooks - Register webhook
		endpoint.New(
			endpoint.POST,
			"/webhooks",
			endpoint.WithTags("Webhooks"),
			endpoint.WithSummary("Register a webhook"),
			endpoint.WithDescription("Registers an HTTP endpoint for session events. An empty event list subscribes to every event. Deliveries are signed with HMAC-SHA256 in the X-FindPerson-Signature header."),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(CreateWebhookResponse{}, "201", "Webhook created"),
			}),
			endpoint.WithErrors(authErrors(
				response.New(ErrorResponse{Code: "BAD_REQUEST", Message: "Malformed body"}, "400", "Bad Request"),
				response.New(ErrorResponse{Code: "VALIDATION_FAILED", Message: "Invalid url or event"}, "422", "Unprocessable Entity"),
			)),
			apiKeyAuth,
		),

		// GET /v1/webhooks - List webhooks
		endpoint.New(
			endpoint.GET,
			"/webhooks",
			endpoint.WithTags("Webhooks"),
			endpoint.WithSummary("List webhooks"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(WebhookListResponse{}, "200", "Webhooks"),
			}),
			endpoint.WithErrors(authErrors()),
			apiKeyAuth,
		),

		// DELETE /v1/webhooks/{id} - Delete webhook
		endpoint.New(
			endpoint.DELETE,
			"/webhooks/{id}",
			endpoint.WithTags("Webhooks"),
			endpoint.WithSummary("Delete a webhook"),
			endpoint.WithParams(
				parameter.StrParam("id", parameter.Path, parameter.WithDescription("Webhook UUID")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(EmptyResponse{}, "204", "Webhook deleted"),
			}),
			endpoint.WithErrors(authErrors(
				errBadID,
				response.New(ErrorResponse{Code: "WEBHOOK_NOT_FOUND", Message: "Webhook not found"}, "404", "Not Found"),
			)),
			apiKeyAuth,
		),
	}

	sw.AddEndpoints(endpoints)

	return sw
}
