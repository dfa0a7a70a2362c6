package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tekpossible/ems/agent/httpclient"
)

type fakePoster struct {
	err      error
	payloads []map[string]interface{}
}

func (f *fakePoster) PostJSON(ctx context.Context, endpoint string, payload interface{}) error {
	f.payloads = append(f.payloads, payload.(map[string]interface{}))
	return f.err
}

func testEntry(start time.Time, title string) Entry {
	return Entry{
		StartTime:       start,
		EndTime:         start.Add(30 * time.Second),
		DurationSeconds: 30,
		WindowTitle:     title,
		ProcessName:     "code.exe",
		IsActive:        true,
	}
}

func newTestBatcher(t *testing.T, poster Poster) *Batcher {
	t.Helper()
	b, err := New(Config{
		Client:      poster,
		EmployeeID:  "emp-1",
		SpoolDir:    t.TempDir(),
		FlushPeriod: time.Hour,
		PostTimeout: time.Second,
	})
	require.NoError(t, err)
	return b
}

func TestFlushSendsBatchAndClears(t *testing.T) {
	poster := &fakePoster{}
	b := newTestBatcher(t, poster)

	now := time.Now().UTC()
	b.Add(testEntry(now, "a"))
	b.Add(testEntry(now.Add(time.Minute), "b"))

	require.NoError(t, b.Flush(context.Background()))
	assert.Zero(t, b.Size())

	require.Len(t, poster.payloads, 1)
	assert.Equal(t, "emp-1", poster.payloads[0]["employee_id"])
	assert.Len(t, poster.payloads[0]["activities"], 2)
}

func TestFlushEmptyIsNoOp(t *testing.T) {
	poster := &fakePoster{}
	b := newTestBatcher(t, poster)

	require.NoError(t, b.Flush(context.Background()))
	assert.Empty(t, poster.payloads)
}

func TestFlushKeepsEntriesOnTransientFailure(t *testing.T) {
	poster := &fakePoster{err: errors.New("connection refused")}
	b := newTestBatcher(t, poster)

	b.Add(testEntry(time.Now().UTC(), "a"))
	require.Error(t, b.Flush(context.Background()))
	assert.Equal(t, 1, b.Size())

	// Entries were spooled to disk for the next restart.
	_, err := os.Stat(b.spoolFile)
	assert.NoError(t, err)

	// Once the server recovers the same entries go through.
	poster.err = nil
	require.NoError(t, b.Flush(context.Background()))
	assert.Zero(t, b.Size())
}

func TestFlushDropsBatchOnClientError(t *testing.T) {
	poster := &fakePoster{err: &httpclient.StatusError{StatusCode: 400, Body: "malformed"}}
	b := newTestBatcher(t, poster)

	b.Add(testEntry(time.Now().UTC(), "a"))
	require.Error(t, b.Flush(context.Background()))
	assert.Zero(t, b.Size(), "permanently rejected batch must not be retried forever")
}

func TestSpoolSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	poster := &fakePoster{err: errors.New("server down")}

	b, err := New(Config{Client: poster, EmployeeID: "emp-1", SpoolDir: dir})
	require.NoError(t, err)
	b.Add(testEntry(time.Now().UTC(), "a"))
	b.Add(testEntry(time.Now().UTC(), "b"))
	require.Error(t, b.Flush(context.Background()))

	// A new batcher over the same spool dir picks the entries back up.
	b2, err := New(Config{Client: &fakePoster{}, EmployeeID: "emp-1", SpoolDir: dir})
	require.NoError(t, err)
	assert.Equal(t, 2, b2.Size())
}

func TestAddBoundsBuffer(t *testing.T) {
	b, err := New(Config{
		Client:     &fakePoster{},
		EmployeeID: "emp-1",
		SpoolDir:   t.TempDir(),
		MaxEntries: 3,
		FlushSize:  100,
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		b.Add(testEntry(now.Add(time.Duration(i)*time.Minute), "w"))
	}
	assert.Equal(t, 3, b.Size())
}

func TestCorruptSpoolFileIsIgnored(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, spoolFileName), []byte("{not json"), 0o600))

	b, err := New(Config{Client: &fakePoster{}, EmployeeID: "emp-1", SpoolDir: dir})
	require.NoError(t, err)
	assert.Zero(t, b.Size())
}
