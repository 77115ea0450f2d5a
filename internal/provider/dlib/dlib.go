// Package dlib runs face detection and 128-d descriptors in process through
// dlib. It needs the dlib models (shape_predictor_5_face_landmarks.dat,
// dlib_face_recognition_resnet_model_v1.dat, mmod_human_face_detector.dat)
// and is only compiled with -tags=dlib; other builds get a stub.
package dlib

import "errors"

// ErrNotEnabled is returned by the stub build
var ErrNotEnabled = errors.New("dlib support not enabled: rebuild with -tags=dlib")

// Config holds the dlib recognizer configuration
type Config struct {
	// ModelsDir contains the dlib model files
	ModelsDir string
	// CNN switches detection to the slower and more accurate CNN detector
	CNN bool
}

const providerName = "dlib"
