// Package finder decides, frame by frame, whether the reference person is
// visible. An expensive Matcher (face detection + embedding comparison) runs
// every DetectInterval frames; once a face scores at or above Threshold a
// cheap visual Tracker follows it until the tracker loses it.
package finder

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/saturnino-fabrica-de-software/findperson/internal/domain"
)

const (
	DefaultThreshold      = 0.5
	DefaultDetectInterval = 5
)

// Frame is a decoded video frame
type Frame interface {
	// Index is the 1-based position of the frame in its stream
	Index() int
	Bounds() image.Rectangle
	// JPEG returns an encoded copy of the frame for face providers
	JPEG() ([]byte, error)
}

// Candidate is a face found by a Matcher and its best similarity to the reference set
type Candidate struct {
	Box   image.Rectangle
	Score float64
}

// Matcher finds faces in a frame and scores them against the reference person
type Matcher interface {
	Match(ctx context.Context, frame Frame) ([]Candidate, error)
}

// MatcherFunc adapts a function to Matcher
type MatcherFunc func(ctx context.Context, frame Frame) ([]Candidate, error)

func (f MatcherFunc) Match(ctx context.Context, frame Frame) ([]Candidate, error) {
	return f(ctx, frame)
}

// Tracker follows a box across frames
type Tracker interface {
	Init(frame Frame, box image.Rectangle) error
	Update(frame Frame) (image.Rectangle, bool)
	Close() error
}

// TrackerFactory creates a fresh tracker for every new lock
type TrackerFactory func() (Tracker, error)

// Mode tells which path produced a Result
type Mode string

const (
	ModeIdle      Mode = "idle"
	ModeTracking  Mode = "tracking"
	ModeDetection Mode = "detection"
)

// Result is the decision for one frame
type Result struct {
	Frame int             `json:"frame"`
	Found bool            `json:"found"`
	Score float64         `json:"score"`
	Box   image.Rectangle `json:"box"`
	Mode  Mode            `json:"mode"`
	// Faces is the number of faces the matcher saw, 0 outside detection frames
	Faces int `json:"faces"`
	// TrackerLost is set on the frame where an active tracker failed
	TrackerLost bool `json:"tracker_lost"`
}

// Config holds the decision parameters
type Config struct {
	Threshold      float64
	DetectInterval int
}

// DefaultConfig returns the stock threshold and detection interval
func DefaultConfig() Config {
	return Config{
		Threshold:      DefaultThreshold,
		DetectInterval: DefaultDetectInterval,
	}
}

// Validate checks 0 < Threshold <= 1 and DetectInterval >= 1
func (c Config) Validate() error {
	if c.Threshold <= 0 || c.Threshold > 1 {
		return domain.ErrInvalidThreshold
	}
	if c.DetectInterval < 1 {
		return domain.ErrInvalidDetectInterval
	}
	return nil
}

// Option configures a Finder
type Option func(*Finder)

// WithLogger sets the logger used for lock and loss events
func WithLogger(logger *slog.Logger) Option {
	return func(f *Finder) {
		f.logger = logger
	}
}

// Finder holds the detection/tracking state of one stream.
// It is not safe for concurrent use.
type Finder struct {
	matcher  Matcher
	trackers TrackerFactory
	cfg      Config
	logger   *slog.Logger

	frames    int
	tracker   Tracker
	lockScore float64
}

// New creates a Finder. trackers may be nil, in which case every frame
// relies on periodic detection only.
func New(matcher Matcher, trackers TrackerFactory, cfg Config, opts ...Option) (*Finder, error) {
	if matcher == nil {
		return nil, fmt.Errorf("finder: nil matcher")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	f := &Finder{
		matcher:  matcher,
		trackers: trackers,
		cfg:      cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Config returns the parameters the finder was built with
func (f *Finder) Config() Config {
	return f.cfg
}

// Tracking reports whether a tracker currently holds the person
func (f *Finder) Tracking() bool {
	return f.tracker != nil
}

// Frames returns how many frames DetectFrame has seen since creation or Reset
func (f *Finder) Frames() int {
	return f.frames
}

// DetectFrame processes one frame. While a tracker is locked only the tracker
// runs; otherwise the matcher runs on every DetectInterval-th frame.
// On a matcher error the returned Result still carries Frame and
// TrackerLost, so callers can report a tracker that dropped on this frame.
func (f *Finder) DetectFrame(ctx context.Context, frame Frame) (Result, error) {
	f.frames++
	bounds := frame.Bounds()
	res := Result{Frame: frame.Index(), Mode: ModeIdle}

	if f.tracker != nil {
		box, ok := f.tracker.Update(frame)
		box = box.Intersect(bounds)
		if ok && !box.Empty() {
			res.Found = true
			res.Score = f.lockScore
			res.Box = box
			res.Mode = ModeTracking
			return res, nil
		}

		f.logger.DebugContext(ctx, "tracker lost target", slog.Int("frame", res.Frame))
		f.dropLock()
		res.TrackerLost = true
	}

	if f.frames%f.cfg.DetectInterval != 0 {
		return res, nil
	}

	res.Mode = ModeDetection
	candidates, err := f.matcher.Match(ctx, frame)
	if err != nil {
		return res, fmt.Errorf("match frame %d: %w", res.Frame, err)
	}
	res.Faces = len(candidates)

	// Faces are checked in matcher order and the first one at or above the
	// threshold wins. Score is the best seen up to that face, never below 0.
	for _, c := range candidates {
		res.Score = max(res.Score, c.Score)
		if c.Score < f.cfg.Threshold {
			continue
		}
		res.Found = true
		res.Box = c.Box.Intersect(bounds)
		f.lock(ctx, frame, res.Box, c.Score)
		break
	}

	return res, nil
}

// lock starts a new tracker on box. Failures leave the finder unlocked so the
// next detection frame retries.
func (f *Finder) lock(ctx context.Context, frame Frame, box image.Rectangle, score float64) {
	if f.trackers == nil || box.Empty() {
		return
	}

	tracker, err := f.trackers()
	if err != nil {
		f.logger.WarnContext(ctx, "failed to create tracker", slog.String("error", err.Error()))
		return
	}
	if err := tracker.Init(frame, box); err != nil {
		_ = tracker.Close()
		f.logger.WarnContext(ctx, "failed to init tracker",
			slog.Int("frame", frame.Index()),
			slog.String("error", err.Error()),
		)
		return
	}

	f.tracker = tracker
	f.lockScore = score
	f.logger.DebugContext(ctx, "tracker locked",
		slog.Int("frame", frame.Index()),
		slog.Float64("score", score),
	)
}

func (f *Finder) dropLock() {
	if f.tracker != nil {
		_ = f.tracker.Close()
	}
	f.tracker = nil
	f.lockScore = 0
}

// Reset drops the lock and the frame counter
func (f *Finder) Reset() {
	f.dropLock()
	f.frames = 0
}

// Close releases the tracker
func (f *Finder) Close() error {
	f.dropLock()
	return nil
}
