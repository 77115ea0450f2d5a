package domain

import (
	"fmt"
)

type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code, so wrapped copies made by
// WithError still satisfy errors.Is against the catalogue entry.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		Err:        err,
	}
}

// Pre-defined errors
var (
	ErrInternal = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		StatusCode: 500,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: 400,
	}

	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Invalid or missing API key",
		StatusCode: 401,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: 404,
	}

	ErrReferenceNotFound = &AppError{
		Code:       "REFERENCE_NOT_FOUND",
		Message:    "Reference person not found",
		StatusCode: 404,
	}

	ErrReferenceExists = &AppError{
		Code:       "REFERENCE_ALREADY_EXISTS",
		Message:    "A reference with this name already exists",
		StatusCode: 409,
	}

	ErrSessionNotFound = &AppError{
		Code:       "SESSION_NOT_FOUND",
		Message:    "Session not found",
		StatusCode: 404,
	}

	ErrSessionNotRunning = &AppError{
		Code:       "SESSION_NOT_RUNNING",
		Message:    "Session is not running",
		StatusCode: 409,
	}

	ErrSnapshotNotFound = &AppError{
		Code:       "SNAPSHOT_NOT_FOUND",
		Message:    "No match snapshot recorded for this session",
		StatusCode: 404,
	}

	ErrWebhookNotFound = &AppError{
		Code:       "WEBHOOK_NOT_FOUND",
		Message:    "Webhook not found",
		StatusCode: 404,
	}

	ErrInvalidImage = &AppError{
		Code:       "INVALID_IMAGE",
		Message:    "Invalid image format or corrupted file",
		StatusCode: 422,
	}

	ErrNoFaceDetected = &AppError{
		Code:       "NO_FACE_DETECTED",
		Message:    "No face detected in the image",
		StatusCode: 422,
	}

	ErrSourceUnavailable = &AppError{
		Code:       "SOURCE_UNAVAILABLE",
		Message:    "Cannot open video source",
		StatusCode: 422,
	}

	ErrTooManySessions = &AppError{
		Code:       "TOO_MANY_SESSIONS",
		Message:    "Maximum number of concurrent sessions reached",
		StatusCode: 429,
	}

	ErrRateLimitExceeded = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Rate limit exceeded, please try again later",
		StatusCode: 429,
	}

	ErrSessionRateLimitExceeded = &AppError{
		Code:       "SESSION_RATE_LIMIT_EXCEEDED",
		Message:    "Too many sessions started, try again later",
		StatusCode: 429,
	}

	ErrValidationFailed = &AppError{
		Code:       "VALIDATION_FAILED",
		Message:    "Request validation failed",
		StatusCode: 422,
	}

	ErrInvalidThreshold = &AppError{
		Code:       "INVALID_THRESHOLD",
		Message:    "Threshold must be greater than 0 and at most 1",
		StatusCode: 422,
	}

	ErrInvalidDetectInterval = &AppError{
		Code:       "INVALID_DETECT_INTERVAL",
		Message:    "Detect interval must be at least 1 frame",
		StatusCode: 422,
	}

	ErrInvalidTracker = &AppError{
		Code:       "INVALID_TRACKER",
		Message:    "Unknown tracker, use mil, kcf or csrt",
		StatusCode: 422,
	}
)
