package finder

import (
	"context"
	"errors"
	"image"
)

type fakeFrame struct {
	index  int
	bounds image.Rectangle
	jpeg   []byte
	err    error
}

func newFrame(index int) *fakeFrame {
	return &fakeFrame{index: index, bounds: image.Rect(0, 0, 640, 480), jpeg: []byte("jpeg")}
}

func (f *fakeFrame) Index() int              { return f.index }
func (f *fakeFrame) Bounds() image.Rectangle { return f.bounds }
func (f *fakeFrame) JPEG() ([]byte, error)   { return f.jpeg, f.err }

// scriptedMatcher returns results[i] on the i-th call, then empty results.
type scriptedMatcher struct {
	results [][]Candidate
	errs    []error
	calls   []int
}

func (m *scriptedMatcher) Match(_ context.Context, frame Frame) ([]Candidate, error) {
	i := len(m.calls)
	m.calls = append(m.calls, frame.Index())
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i < len(m.results) {
		return m.results[i], nil
	}
	return nil, nil
}

// scriptedTracker succeeds for `hits` updates, then fails.
type scriptedTracker struct {
	hits    int
	box     image.Rectangle
	initErr error

	initBox image.Rectangle
	updates int
	closed  bool
}

func (t *scriptedTracker) Init(_ Frame, box image.Rectangle) error {
	t.initBox = box
	return t.initErr
}

func (t *scriptedTracker) Update(_ Frame) (image.Rectangle, bool) {
	t.updates++
	if t.updates > t.hits {
		return image.Rectangle{}, false
	}
	return t.box, true
}

func (t *scriptedTracker) Close() error {
	t.closed = true
	return nil
}

type trackerPool struct {
	trackers []*scriptedTracker
	err      error
	created  int
}

func (p *trackerPool) factory() (Tracker, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.created >= len(p.trackers) {
		return nil, errors.New("no more trackers")
	}
	t := p.trackers[p.created]
	p.created++
	return t, nil
}
