package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/findperson/internal/feed"
	"github.com/saturnino-fabrica-de-software/findperson/internal/finder"
)

// Counters accumulates the observations of one session between flushes. It
// is a feed.Observer.
type Counters struct {
	sessionID uuid.UUID

	mu             sync.Mutex
	periodStart    time.Time
	frames         int
	detections     int
	trackerUpdates int
	foundFrames    int
	transitions    int
	bestScore      float64
}

func newCounters(sessionID uuid.UUID, now time.Time) *Counters {
	return &Counters{sessionID: sessionID, periodStart: now}
}

func (c *Counters) Observe(_ context.Context, obs feed.Observation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.frames++
	switch obs.Result.Mode {
	case finder.ModeDetection:
		c.detections++
	case finder.ModeTracking:
		c.trackerUpdates++
	}
	if obs.Result.Found {
		c.foundFrames++
	}
	if obs.Transition != feed.TransitionNone {
		c.transitions++
	}
	if obs.Result.Score > c.bestScore {
		c.bestScore = obs.Result.Score
	}
}

// drain returns the metrics of the period ending at now and starts a new
// one. A period without frames yields nothing.
func (c *Counters) drain(now time.Time) []*SessionMetric {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := c.periodStart
	c.periodStart = now
	if c.frames == 0 {
		return nil
	}

	values := []struct {
		name  string
		value float64
	}{
		{MetricFramesProcessed, float64(c.frames)},
		{MetricDetections, float64(c.detections)},
		{MetricTrackerUpdates, float64(c.trackerUpdates)},
		{MetricFoundFrames, float64(c.foundFrames)},
		{MetricTransitions, float64(c.transitions)},
		{MetricBestScore, c.bestScore},
	}
	c.frames, c.detections, c.trackerUpdates = 0, 0, 0
	c.foundFrames, c.transitions, c.bestScore = 0, 0, 0

	out := make([]*SessionMetric, 0, len(values))
	for _, v := range values {
		out = append(out, &SessionMetric{
			SessionID:   c.sessionID,
			Name:        v.name,
			Value:       v.value,
			PeriodStart: start,
			PeriodEnd:   now,
		})
	}
	return out
}

// Collector keeps the counters of running sessions
type Collector struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Counters
	// retired holds counters of finished sessions until the next flush
	retired []*Counters
	now     func() time.Time
}

// NewCollector creates an empty collector
func NewCollector() *Collector {
	return &Collector{
		sessions: make(map[uuid.UUID]*Counters),
		now:      time.Now,
	}
}

// Track returns the counters of a session, creating them on first use
func (c *Collector) Track(sessionID uuid.UUID) *Counters {
	c.mu.Lock()
	defer c.mu.Unlock()

	if counters, ok := c.sessions[sessionID]; ok {
		return counters
	}
	counters := newCounters(sessionID, c.now())
	c.sessions[sessionID] = counters
	return counters
}

// Release stops tracking a session. Its pending counts are still written by
// the next flush.
func (c *Collector) Release(sessionID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if counters, ok := c.sessions[sessionID]; ok {
		delete(c.sessions, sessionID)
		c.retired = append(c.retired, counters)
	}
}

// Active returns the number of tracked sessions
func (c *Collector) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// drain collects the pending metrics of every session
func (c *Collector) drain() []*SessionMetric {
	c.mu.Lock()
	all := make([]*Counters, 0, len(c.sessions)+len(c.retired))
	for _, counters := range c.sessions {
		all = append(all, counters)
	}
	all = append(all, c.retired...)
	c.retired = nil
	now := c.now()
	c.mu.Unlock()

	var out []*SessionMetric
	for _, counters := range all {
		out = append(out, counters.drain(now)...)
	}
	return out
}
