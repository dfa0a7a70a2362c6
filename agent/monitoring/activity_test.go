package monitoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregatorMergesIdenticalSamples(t *testing.T) {
	var agg Aggregator
	start := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	editor := Sample{WindowTitle: "main.go - editor", ProcessName: "code.exe", IsActive: true}

	assert.Nil(t, agg.Observe(editor, start))
	assert.Nil(t, agg.Observe(editor, start.Add(5*time.Second)))
	assert.Nil(t, agg.Observe(editor, start.Add(10*time.Second)))

	browser := Sample{WindowTitle: "docs - browser", ProcessName: "firefox", IsActive: true}
	entry := agg.Observe(browser, start.Add(15*time.Second))
	require.NotNil(t, entry)
	assert.Equal(t, "main.go - editor", entry.WindowTitle)
	assert.Equal(t, "code.exe", entry.ProcessName)
	assert.Equal(t, start, entry.StartTime)
	assert.Equal(t, start.Add(15*time.Second), entry.EndTime)
	assert.Equal(t, 15, entry.DurationSeconds)
}

func TestAggregatorIdleTransitionClosesPeriod(t *testing.T) {
	var agg Aggregator
	start := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	active := Sample{WindowTitle: "w", ProcessName: "p", IsActive: true}
	idle := Sample{WindowTitle: "w", ProcessName: "p", IsActive: false}

	assert.Nil(t, agg.Observe(active, start))
	entry := agg.Observe(idle, start.Add(30*time.Second))
	require.NotNil(t, entry)
	assert.True(t, entry.IsActive)
	assert.Equal(t, 30, entry.DurationSeconds)
}

func TestAggregatorFlush(t *testing.T) {
	var agg Aggregator
	start := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)

	assert.Nil(t, agg.Flush(start), "no open period yet")

	agg.Observe(Sample{WindowTitle: "w", ProcessName: "p", IsActive: true}, start)
	entry := agg.Flush(start.Add(42 * time.Second))
	require.NotNil(t, entry)
	assert.Equal(t, 42, entry.DurationSeconds)

	assert.Nil(t, agg.Flush(start.Add(time.Minute)), "flush must be idempotent")
}
