// Package feed runs the frame loop around a finder: it reads frames from a
// source, skips and paces them, asks the detector for a decision and fans
// the result out to observers.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saturnino-fabrica-de-software/findperson/internal/finder"
)

const (
	DefaultMaxConsecutiveErrors = 10
	// DefaultRecordedSkip processes every second frame of recorded video
	DefaultRecordedSkip = 2
)

// ErrTooManyErrors is returned when the detector fails MaxConsecutiveErrors times in a row
var ErrTooManyErrors = errors.New("too many consecutive detection errors")

// Frame is a finder.Frame the feed must release
type Frame interface {
	finder.Frame
	Close() error
}

// Source produces frames until io.EOF
type Source interface {
	Next(ctx context.Context) (Frame, error)
	FPS() float64
	// FrameCount is 0 for live sources
	FrameCount() int
	Live() bool
	Close() error
}

// Detector decides per frame, *finder.Finder implements it
type Detector interface {
	DetectFrame(ctx context.Context, frame finder.Frame) (finder.Result, error)
	Close() error
}

// Transition marks frames where presence flips
type Transition string

const (
	TransitionNone  Transition = ""
	TransitionFound Transition = "found"
	TransitionLost  Transition = "lost"
)

// StopReason tells why Run returned
type StopReason string

const (
	ReasonEOF      StopReason = "eof"
	ReasonStopped  StopReason = "stopped"
	ReasonCanceled StopReason = "canceled"
	ReasonErrors   StopReason = "errors"
	ReasonSource   StopReason = "source_error"
)

// Observation is what observers receive for every processed frame
type Observation struct {
	Result finder.Result
	// Frame is only valid until Observe returns
	Frame finder.Frame
	// Present is the presence state after this frame. Idle frames keep the
	// state of the last decisive frame.
	Present    bool
	Transition Transition
	At         time.Time
}

// Observer receives observations synchronously on the feed goroutine
type Observer interface {
	Observe(ctx context.Context, obs Observation)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(ctx context.Context, obs Observation)

func (f ObserverFunc) Observe(ctx context.Context, obs Observation) {
	f(ctx, obs)
}

// Summary describes a finished run
type Summary struct {
	FramesRead      int           `json:"frames_read"`
	FramesProcessed int           `json:"frames_processed"`
	Detections      int           `json:"detections"`
	TrackerUpdates  int           `json:"tracker_updates"`
	FoundFrames     int           `json:"found_frames"`
	BestScore       float64       `json:"best_score"`
	Errors          int           `json:"errors"`
	Duration        time.Duration `json:"duration"`
	Reason          StopReason    `json:"reason"`
}

// Config tunes the loop
type Config struct {
	// SkipEvery processes every Nth frame. 0 picks 1 for live sources and
	// DefaultRecordedSkip for recorded ones.
	SkipEvery int
	// Realtime paces recorded sources to their frame rate
	Realtime bool
	// MaxConsecutiveErrors stops the run after that many detector errors in a row
	MaxConsecutiveErrors int
}

// Option configures a Feed
type Option func(*Feed)

// WithObserver appends an observer
func WithObserver(o Observer) Option {
	return func(f *Feed) {
		f.observers = append(f.observers, o)
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(f *Feed) {
		f.logger = logger
	}
}

// Feed owns a source and a detector for the duration of one Run
type Feed struct {
	source    Source
	detector  Detector
	cfg       Config
	observers []Observer
	logger    *slog.Logger

	stopped  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a feed. Zero config values take their defaults.
func New(source Source, detector Detector, cfg Config, opts ...Option) *Feed {
	if cfg.SkipEvery <= 0 {
		cfg.SkipEvery = 1
		if !source.Live() {
			cfg.SkipEvery = DefaultRecordedSkip
		}
	}
	if cfg.MaxConsecutiveErrors <= 0 {
		cfg.MaxConsecutiveErrors = DefaultMaxConsecutiveErrors
	}

	f := &Feed{
		source:   source,
		detector: detector,
		cfg:      cfg,
		logger:   slog.Default(),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Config returns the effective configuration
func (f *Feed) Config() Config {
	return f.cfg
}

// Stop asks Run to return after the current frame. It never blocks.
func (f *Feed) Stop() {
	f.stopped.Store(true)
	f.stopOnce.Do(func() { close(f.stopCh) })
}

// Stopped reports whether Stop was called
func (f *Feed) Stopped() bool {
	return f.stopped.Load()
}

// Run processes frames until the source ends, Stop is called, ctx is
// cancelled or the detector keeps failing. The source and the detector are
// closed before Run returns. The error is nil for end of stream, Stop and
// cancellation.
func (f *Feed) Run(ctx context.Context) (Summary, error) {
	defer f.cleanup()

	var (
		summary   Summary
		present   bool
		errStreak int
		lastErr   error
	)
	start := time.Now()
	fps := f.source.FPS()
	pace := f.cfg.Realtime && !f.source.Live() && fps > 0

	finish := func(reason StopReason, err error) (Summary, error) {
		summary.Reason = reason
		summary.Duration = time.Since(start)
		f.logger.InfoContext(ctx, "feed finished",
			slog.String("reason", string(reason)),
			slog.Int("frames_read", summary.FramesRead),
			slog.Int("frames_processed", summary.FramesProcessed),
			slog.Int("found_frames", summary.FoundFrames),
			slog.Float64("best_score", summary.BestScore),
			slog.Duration("duration", summary.Duration),
		)
		return summary, err
	}

	for {
		if f.stopped.Load() {
			return finish(ReasonStopped, nil)
		}
		if ctx.Err() != nil {
			return finish(ReasonCanceled, nil)
		}

		frame, err := f.source.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				return finish(ReasonEOF, nil)
			case ctx.Err() != nil:
				return finish(ReasonCanceled, nil)
			default:
				return finish(ReasonSource, fmt.Errorf("read frame: %w", err))
			}
		}
		summary.FramesRead++

		if summary.FramesRead%f.cfg.SkipEvery != 0 {
			_ = frame.Close()
			continue
		}

		if pace && !f.waitUntil(ctx, start.Add(frameOffset(frame.Index(), fps))) {
			_ = frame.Close()
			continue
		}

		res, err := f.detector.DetectFrame(ctx, frame)
		if err != nil {
			if ctx.Err() != nil {
				_ = frame.Close()
				return finish(ReasonCanceled, nil)
			}
			// the tracker may have dropped before detection failed
			if res.TrackerLost && present {
				present = false
				f.notify(ctx, Observation{
					Result:     finder.Result{Frame: res.Frame, Mode: finder.ModeIdle, TrackerLost: true},
					Frame:      frame,
					At:         time.Now(),
					Transition: TransitionLost,
				})
			}
			_ = frame.Close()
			summary.Errors++
			errStreak++
			lastErr = err
			f.logger.WarnContext(ctx, "detection failed",
				slog.Int("frame", frame.Index()),
				slog.Int("consecutive", errStreak),
				slog.String("error", err.Error()),
			)
			if errStreak >= f.cfg.MaxConsecutiveErrors {
				return finish(ReasonErrors, fmt.Errorf("%w: %v", ErrTooManyErrors, lastErr))
			}
			continue
		}
		errStreak = 0

		summary.FramesProcessed++
		switch res.Mode {
		case finder.ModeDetection:
			summary.Detections++
		case finder.ModeTracking:
			summary.TrackerUpdates++
		}
		if res.Found {
			summary.FoundFrames++
		}
		if res.Score > summary.BestScore {
			summary.BestScore = res.Score
		}

		obs := Observation{Result: res, Frame: frame, At: time.Now()}
		if decisive(res) && res.Found != present {
			present = res.Found
			obs.Transition = TransitionLost
			if present {
				obs.Transition = TransitionFound
			}
		}
		obs.Present = present

		f.notify(ctx, obs)
		_ = frame.Close()
	}
}

func (f *Feed) notify(ctx context.Context, obs Observation) {
	for _, o := range f.observers {
		o.Observe(ctx, obs)
	}
}

// decisive frames are the ones that carry a fresh decision: detections,
// tracker updates and tracker losses.
func decisive(res finder.Result) bool {
	return res.Mode != finder.ModeIdle || res.TrackerLost
}

func frameOffset(index int, fps float64) time.Duration {
	return time.Duration(float64(index-1) / fps * float64(time.Second))
}

// waitUntil sleeps until t. It returns false when interrupted by Stop or ctx.
func (f *Feed) waitUntil(ctx context.Context, t time.Time) bool {
	d := time.Until(t)
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-f.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

func (f *Feed) cleanup() {
	if err := f.detector.Close(); err != nil {
		f.logger.Warn("failed to close detector", slog.String("error", err.Error()))
	}
	if err := f.source.Close(); err != nil {
		f.logger.Warn("failed to close source", slog.String("error", err.Error()))
	}
}
