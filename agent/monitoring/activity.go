// Package monitoring turns raw foreground-window samples into the
// contiguous activity periods the server ingests.
package monitoring

import (
	"context"
	"time"

	"github.com/tekpossible/ems/agent/batch"
)

// Sample is one observation of the foreground window.
type Sample struct {
	WindowTitle string
	ProcessName string
	IsActive    bool
}

// Sampler captures the current foreground window. Platform-specific
// capture backends implement this.
type Sampler interface {
	Sample(ctx context.Context) (Sample, error)
}

// Aggregator merges consecutive identical samples into one period and
// emits an entry each time the observed window changes.
type Aggregator struct {
	current *Sample
	start   time.Time
}

// Observe records one sample. It returns the completed entry when this
// sample closes the previous period, nil otherwise.
func (a *Aggregator) Observe(s Sample, at time.Time) *batch.Entry {
	if a.current == nil {
		a.current = &s
		a.start = at
		return nil
	}
	if *a.current == s {
		return nil
	}

	entry := a.close(at)
	a.current = &s
	a.start = at
	return entry
}

// Flush closes the in-progress period, if any. Called on shutdown so
// the tail of the session is not lost.
func (a *Aggregator) Flush(at time.Time) *batch.Entry {
	if a.current == nil {
		return nil
	}
	entry := a.close(at)
	a.current = nil
	return entry
}

func (a *Aggregator) close(at time.Time) *batch.Entry {
	duration := int(at.Sub(a.start).Seconds())
	if duration < 0 {
		duration = 0
	}
	return &batch.Entry{
		StartTime:       a.start,
		EndTime:         at,
		DurationSeconds: duration,
		WindowTitle:     a.current.WindowTitle,
		ProcessName:     a.current.ProcessName,
		IsActive:        a.current.IsActive,
	}
}

// Tracker drives a Sampler on a fixed interval and feeds completed
// periods into the sink.
type Tracker struct {
	sampler  Sampler
	interval time.Duration
	sink     func(batch.Entry)
	agg      Aggregator
}

func NewTracker(sampler Sampler, interval time.Duration, sink func(batch.Entry)) *Tracker {
	return &Tracker{sampler: sampler, interval: interval, sink: sink}
}

// Run samples until ctx is cancelled, then flushes the open period.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if entry := t.agg.Flush(time.Now().UTC()); entry != nil {
				t.sink(*entry)
			}
			return
		case <-ticker.C:
			sample, err := t.sampler.Sample(ctx)
			if err != nil {
				continue
			}
			if entry := t.agg.Observe(sample, time.Now().UTC()); entry != nil {
				t.sink(*entry)
			}
		}
	}
}
