package video

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"

	"github.com/saturnino-fabrica-de-software/findperson/internal/domain"
	"github.com/saturnino-fabrica-de-software/findperson/internal/finder"
)

// TrackerKind selects an OpenCV tracking algorithm
type TrackerKind string

const (
	// TrackerMIL ships with core OpenCV
	TrackerMIL TrackerKind = "mil"
	// TrackerKCF is fast and needs opencv_contrib
	TrackerKCF TrackerKind = "kcf"
	// TrackerCSRT is the most accurate and needs opencv_contrib
	TrackerCSRT TrackerKind = "csrt"
)

// ErrTrackerInit is returned when OpenCV refuses to start tracking a box
var ErrTrackerInit = errors.New("tracker init failed")

// ParseTrackerKind accepts mil, kcf and csrt, case-insensitive
func ParseTrackerKind(s string) (TrackerKind, error) {
	switch k := TrackerKind(strings.ToLower(strings.TrimSpace(s))); k {
	case TrackerMIL, TrackerKCF, TrackerCSRT:
		return k, nil
	default:
		return "", domain.ErrInvalidTracker.WithError(fmt.Errorf("got %q", s))
	}
}

// Tracker adapts a gocv.Tracker to finder.Tracker
type Tracker struct {
	kind    TrackerKind
	tracker gocv.Tracker
}

// NewTracker creates a tracker of the given kind
func NewTracker(kind TrackerKind) (*Tracker, error) {
	var t gocv.Tracker
	switch kind {
	case TrackerMIL:
		t = gocv.NewTrackerMIL()
	case TrackerKCF:
		t = contrib.NewTrackerKCF()
	case TrackerCSRT:
		t = contrib.NewTrackerCSRT()
	default:
		return nil, domain.ErrInvalidTracker.WithError(fmt.Errorf("got %q", kind))
	}
	return &Tracker{kind: kind, tracker: t}, nil
}

// TrackerFactory returns a finder.TrackerFactory producing trackers of kind
func TrackerFactory(kind TrackerKind) finder.TrackerFactory {
	return func() (finder.Tracker, error) {
		return NewTracker(kind)
	}
}

// Init starts tracking box on frame
func (t *Tracker) Init(frame finder.Frame, box image.Rectangle) error {
	mat, err := matOf(frame)
	if err != nil {
		return err
	}
	if !t.tracker.Init(mat, box) {
		return fmt.Errorf("%s: %w", t.kind, ErrTrackerInit)
	}
	return nil
}

// Update follows the target into frame
func (t *Tracker) Update(frame finder.Frame) (image.Rectangle, bool) {
	mat, err := matOf(frame)
	if err != nil {
		return image.Rectangle{}, false
	}
	return t.tracker.Update(mat)
}

// Close frees the OpenCV tracker
func (t *Tracker) Close() error {
	return t.tracker.Close()
}

var _ finder.Tracker = (*Tracker)(nil)
