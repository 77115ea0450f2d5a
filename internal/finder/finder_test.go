package finder

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/findperson/internal/domain"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{"defaults", DefaultConfig(), nil},
		{"threshold one", Config{Threshold: 1, DetectInterval: 1}, nil},
		{"zero threshold", Config{Threshold: 0, DetectInterval: 5}, domain.ErrInvalidThreshold},
		{"negative threshold", Config{Threshold: -0.2, DetectInterval: 5}, domain.ErrInvalidThreshold},
		{"threshold above one", Config{Threshold: 1.01, DetectInterval: 5}, domain.ErrInvalidThreshold},
		{"zero interval", Config{Threshold: 0.5, DetectInterval: 0}, domain.ErrInvalidDetectInterval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNew(t *testing.T) {
	_, err := New(nil, nil, DefaultConfig())
	assert.Error(t, err)

	_, err = New(&scriptedMatcher{}, nil, Config{Threshold: 2, DetectInterval: 5})
	assert.ErrorIs(t, err, domain.ErrInvalidThreshold)

	f, err := New(&scriptedMatcher{}, nil, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), f.Config())
	assert.False(t, f.Tracking())
	assert.Zero(t, f.Frames())
}

func TestFinder_DetectsOnlyEveryInterval(t *testing.T) {
	matcher := &scriptedMatcher{}
	f, err := New(matcher, nil, Config{Threshold: 0.5, DetectInterval: 5})
	require.NoError(t, err)

	for i := 1; i <= 12; i++ {
		res, err := f.DetectFrame(context.Background(), newFrame(i))
		require.NoError(t, err)
		if i%5 == 0 {
			assert.Equal(t, ModeDetection, res.Mode, "frame %d", i)
		} else {
			assert.Equal(t, ModeIdle, res.Mode, "frame %d", i)
		}
		assert.False(t, res.Found)
	}

	assert.Equal(t, []int{5, 10}, matcher.calls)
	assert.Equal(t, 12, f.Frames())
}

func TestFinder_DetectionBelowThreshold(t *testing.T) {
	matcher := &scriptedMatcher{results: [][]Candidate{{
		{Box: image.Rect(10, 10, 50, 50), Score: 0.3},
		{Box: image.Rect(100, 100, 150, 150), Score: 0.49},
	}}}
	pool := &trackerPool{trackers: []*scriptedTracker{{hits: 10}}}
	f, err := New(matcher, pool.factory, Config{Threshold: 0.5, DetectInterval: 1})
	require.NoError(t, err)

	got, err := f.DetectFrame(context.Background(), newFrame(1))
	require.NoError(t, err)

	want := Result{Frame: 1, Mode: ModeDetection, Score: 0.49, Faces: 2}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DetectFrame() mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, f.Tracking())
	assert.Zero(t, pool.created)
}

func TestFinder_NoFaces(t *testing.T) {
	f, err := New(&scriptedMatcher{}, nil, Config{Threshold: 0.5, DetectInterval: 1})
	require.NoError(t, err)

	got, err := f.DetectFrame(context.Background(), newFrame(1))
	require.NoError(t, err)

	want := Result{Frame: 1, Mode: ModeDetection}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DetectFrame() mismatch (-want +got):\n%s", diff)
	}
}

func TestFinder_LockTrackAndLose(t *testing.T) {
	faceBox := image.Rect(100, 100, 200, 200)
	trackedBox := image.Rect(110, 105, 210, 205)
	matcher := &scriptedMatcher{results: [][]Candidate{
		{
			{Box: image.Rect(400, 100, 450, 150), Score: 0.2},
			{Box: faceBox, Score: 0.87},
			{Box: image.Rect(10, 10, 40, 40), Score: 0.6},
		},
	}}
	tracker := &scriptedTracker{hits: 3, box: trackedBox}
	pool := &trackerPool{trackers: []*scriptedTracker{tracker}}

	f, err := New(matcher, pool.factory, Config{Threshold: 0.5, DetectInterval: 5})
	require.NoError(t, err)

	ctx := context.Background()
	var results []Result
	for i := 1; i <= 11; i++ {
		res, err := f.DetectFrame(ctx, newFrame(i))
		require.NoError(t, err)
		results = append(results, res)
	}

	want := []Result{
		{Frame: 1, Mode: ModeIdle},
		{Frame: 2, Mode: ModeIdle},
		{Frame: 3, Mode: ModeIdle},
		{Frame: 4, Mode: ModeIdle},
		{Frame: 5, Mode: ModeDetection, Found: true, Score: 0.87, Box: faceBox, Faces: 3},
		{Frame: 6, Mode: ModeTracking, Found: true, Score: 0.87, Box: trackedBox},
		{Frame: 7, Mode: ModeTracking, Found: true, Score: 0.87, Box: trackedBox},
		{Frame: 8, Mode: ModeTracking, Found: true, Score: 0.87, Box: trackedBox},
		{Frame: 9, Mode: ModeIdle, TrackerLost: true},
		{Frame: 10, Mode: ModeDetection},
		{Frame: 11, Mode: ModeIdle},
	}
	if diff := cmp.Diff(want, results); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}

	// matcher never runs while the tracker holds the person
	assert.Equal(t, []int{5, 10}, matcher.calls)
	assert.Equal(t, faceBox, tracker.initBox)
	assert.True(t, tracker.closed)
	assert.False(t, f.Tracking())
}

func TestFinder_TrackerLostOnDetectionFrameRedetects(t *testing.T) {
	box := image.Rect(10, 10, 60, 60)
	matcher := &scriptedMatcher{results: [][]Candidate{
		{{Box: box, Score: 0.9}},
		{{Box: box, Score: 0.8}},
	}}
	first := &scriptedTracker{hits: 0}
	second := &scriptedTracker{hits: 5, box: box}
	pool := &trackerPool{trackers: []*scriptedTracker{first, second}}

	f, err := New(matcher, pool.factory, Config{Threshold: 0.5, DetectInterval: 1})
	require.NoError(t, err)

	ctx := context.Background()
	res, err := f.DetectFrame(ctx, newFrame(1))
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.True(t, f.Tracking())

	res, err = f.DetectFrame(ctx, newFrame(2))
	require.NoError(t, err)
	assert.True(t, res.TrackerLost)
	assert.Equal(t, ModeDetection, res.Mode)
	assert.True(t, res.Found)
	assert.Equal(t, 0.8, res.Score)
	assert.True(t, first.closed)
	assert.True(t, f.Tracking())

	res, err = f.DetectFrame(ctx, newFrame(3))
	require.NoError(t, err)
	assert.Equal(t, ModeTracking, res.Mode)
	assert.Equal(t, 0.8, res.Score)
}

func TestFinder_TrackedBoxIsClamped(t *testing.T) {
	matcher := &scriptedMatcher{results: [][]Candidate{{{Box: image.Rect(600, 400, 700, 520), Score: 0.7}}}}
	tracker := &scriptedTracker{hits: 2, box: image.Rect(620, 450, 720, 550)}
	pool := &trackerPool{trackers: []*scriptedTracker{tracker, {hits: 1}}}

	f, err := New(matcher, pool.factory, Config{Threshold: 0.5, DetectInterval: 1})
	require.NoError(t, err)

	ctx := context.Background()
	res, err := f.DetectFrame(ctx, newFrame(1))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(600, 400, 640, 480), res.Box)
	assert.Equal(t, image.Rect(600, 400, 640, 480), tracker.initBox)

	res, err = f.DetectFrame(ctx, newFrame(2))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(620, 450, 640, 480), res.Box)
}

func TestFinder_TrackedBoxOutsideFrameCountsAsLost(t *testing.T) {
	matcher := &scriptedMatcher{results: [][]Candidate{{{Box: image.Rect(10, 10, 50, 50), Score: 0.7}}}}
	tracker := &scriptedTracker{hits: 5, box: image.Rect(700, 500, 800, 600)}
	pool := &trackerPool{trackers: []*scriptedTracker{tracker}}

	f, err := New(matcher, pool.factory, Config{Threshold: 0.5, DetectInterval: 10})
	require.NoError(t, err)

	// the first detection, and so the lock, happens on frame 10
	ctx := context.Background()
	for i := 1; i <= 10; i++ {
		_, err := f.DetectFrame(ctx, newFrame(i))
		require.NoError(t, err)
	}
	require.True(t, f.Tracking())

	res, err := f.DetectFrame(ctx, newFrame(11))
	require.NoError(t, err)
	assert.True(t, res.TrackerLost)
	assert.False(t, res.Found)
	assert.True(t, tracker.closed)
}

func TestFinder_EmptyBoxNeverLocks(t *testing.T) {
	matcher := &scriptedMatcher{results: [][]Candidate{{{Box: image.Rect(700, 500, 800, 600), Score: 0.95}}}}
	pool := &trackerPool{trackers: []*scriptedTracker{{hits: 5}}}

	f, err := New(matcher, pool.factory, Config{Threshold: 0.5, DetectInterval: 1})
	require.NoError(t, err)

	res, err := f.DetectFrame(context.Background(), newFrame(1))
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.True(t, res.Box.Empty())
	assert.False(t, f.Tracking())
	assert.Zero(t, pool.created)
}

func TestFinder_TrackerFailuresKeepFound(t *testing.T) {
	tests := []struct {
		name string
		pool *trackerPool
	}{
		{"factory error", &trackerPool{err: errors.New("no contrib module")}},
		{"init error", &trackerPool{trackers: []*scriptedTracker{{initErr: errors.New("bad roi")}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matcher := &scriptedMatcher{results: [][]Candidate{
				{{Box: image.Rect(10, 10, 60, 60), Score: 0.9}},
				{{Box: image.Rect(10, 10, 60, 60), Score: 0.9}},
			}}
			f, err := New(matcher, tt.pool.factory, Config{Threshold: 0.5, DetectInterval: 1})
			require.NoError(t, err)

			res, err := f.DetectFrame(context.Background(), newFrame(1))
			require.NoError(t, err)
			assert.True(t, res.Found)
			assert.False(t, f.Tracking())

			for _, tr := range tt.pool.trackers {
				assert.True(t, tr.closed, "tracker that failed to init must be closed")
			}

			// next frame detects again
			_, err = f.DetectFrame(context.Background(), newFrame(2))
			require.NoError(t, err)
			assert.Len(t, matcher.calls, 2)
		})
	}
}

func TestFinder_NilTrackerFactory(t *testing.T) {
	matcher := &scriptedMatcher{results: [][]Candidate{
		{{Box: image.Rect(10, 10, 60, 60), Score: 0.9}},
		{{Box: image.Rect(10, 10, 60, 60), Score: 0.9}},
	}}
	f, err := New(matcher, nil, Config{Threshold: 0.5, DetectInterval: 1})
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		res, err := f.DetectFrame(context.Background(), newFrame(i))
		require.NoError(t, err)
		assert.True(t, res.Found)
		assert.Equal(t, ModeDetection, res.Mode)
	}
	assert.Len(t, matcher.calls, 2)
}

func TestFinder_MatcherError(t *testing.T) {
	boom := errors.New("provider down")
	matcher := &scriptedMatcher{errs: []error{boom}}
	f, err := New(matcher, nil, Config{Threshold: 0.5, DetectInterval: 1})
	require.NoError(t, err)

	res, err := f.DetectFrame(context.Background(), newFrame(7))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "match frame 7")
	assert.Equal(t, Result{Frame: 7, Mode: ModeDetection}, res)
	assert.Equal(t, 1, f.Frames())
}

func TestFinder_TrackerLostThenMatcherError(t *testing.T) {
	boom := errors.New("provider down")
	box := image.Rect(10, 10, 60, 60)
	matcher := &scriptedMatcher{
		results: [][]Candidate{{{Box: box, Score: 0.9}}},
		errs:    []error{nil, boom, boom},
	}
	pool := &trackerPool{trackers: []*scriptedTracker{{hits: 1, box: box}}}
	f, err := New(matcher, pool.factory, Config{Threshold: 0.5, DetectInterval: 1})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = f.DetectFrame(ctx, newFrame(1))
	require.NoError(t, err)
	res, err := f.DetectFrame(ctx, newFrame(2))
	require.NoError(t, err)
	assert.Equal(t, ModeTracking, res.Mode)

	res, err = f.DetectFrame(ctx, newFrame(3))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, Result{Frame: 3, Mode: ModeDetection, TrackerLost: true}, res)
	assert.False(t, f.Tracking())

	// the lock is already gone, later failures carry no loss
	res, err = f.DetectFrame(ctx, newFrame(4))
	require.ErrorIs(t, err, boom)
	assert.False(t, res.TrackerLost)
}

func TestFinder_FirstFaceAboveThresholdWins(t *testing.T) {
	first := image.Rect(10, 10, 60, 60)
	matcher := &scriptedMatcher{results: [][]Candidate{{
		{Box: image.Rect(300, 300, 340, 340), Score: 0.3},
		{Box: first, Score: 0.6},
		{Box: image.Rect(100, 100, 160, 160), Score: 0.9},
	}}}
	tracker := &scriptedTracker{hits: 1, box: first}
	pool := &trackerPool{trackers: []*scriptedTracker{tracker}}
	f, err := New(matcher, pool.factory, Config{Threshold: 0.5, DetectInterval: 1})
	require.NoError(t, err)

	got, err := f.DetectFrame(context.Background(), newFrame(1))
	require.NoError(t, err)

	want := Result{Frame: 1, Mode: ModeDetection, Found: true, Score: 0.6, Box: first, Faces: 3}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DetectFrame() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, first, tracker.initBox)

	got, err = f.DetectFrame(context.Background(), newFrame(2))
	require.NoError(t, err)
	assert.Equal(t, 0.6, got.Score)
}

func TestFinder_NegativeScoresReportZero(t *testing.T) {
	matcher := &scriptedMatcher{results: [][]Candidate{{
		{Box: image.Rect(10, 10, 60, 60), Score: -0.3},
		{Box: image.Rect(100, 100, 160, 160), Score: -0.1},
	}}}
	f, err := New(matcher, nil, Config{Threshold: 0.5, DetectInterval: 1})
	require.NoError(t, err)

	got, err := f.DetectFrame(context.Background(), newFrame(1))
	require.NoError(t, err)
	assert.Equal(t, Result{Frame: 1, Mode: ModeDetection, Faces: 2}, got)
}

func TestFinder_ThresholdIsInclusive(t *testing.T) {
	matcher := &scriptedMatcher{results: [][]Candidate{{{Box: image.Rect(10, 10, 60, 60), Score: 0.5}}}}
	f, err := New(matcher, nil, Config{Threshold: 0.5, DetectInterval: 1})
	require.NoError(t, err)

	res, err := f.DetectFrame(context.Background(), newFrame(1))
	require.NoError(t, err)
	assert.True(t, res.Found)
}

func TestFinder_ResetAndClose(t *testing.T) {
	matcher := &scriptedMatcher{results: [][]Candidate{{{Box: image.Rect(10, 10, 60, 60), Score: 0.9}}}}
	tracker := &scriptedTracker{hits: 10, box: image.Rect(10, 10, 60, 60)}
	pool := &trackerPool{trackers: []*scriptedTracker{tracker}}

	f, err := New(matcher, pool.factory, Config{Threshold: 0.5, DetectInterval: 1})
	require.NoError(t, err)

	_, err = f.DetectFrame(context.Background(), newFrame(1))
	require.NoError(t, err)
	require.True(t, f.Tracking())

	f.Reset()
	assert.False(t, f.Tracking())
	assert.Zero(t, f.Frames())
	assert.True(t, tracker.closed)

	assert.NoError(t, f.Close())
}
