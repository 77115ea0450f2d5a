package rekognition

import "errors"

var (
	// ErrInvalidCredentials indicates that AWS credentials are invalid or missing
	ErrInvalidCredentials = errors.New("invalid or missing AWS credentials")

	// ErrNoFaceDetected indicates that no face was found in the provided image
	ErrNoFaceDetected = errors.New("no face detected in image")

	// ErrInvalidImage indicates the image is empty or outside Rekognition's size limits
	ErrInvalidImage = errors.New("invalid image for rekognition")

	// ErrThrottled indicates the account exceeded its Rekognition throughput
	ErrThrottled = errors.New("rekognition request throttled")
)
