package ingest

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tekpossible/ems/server/database"
)

type fakeBlobStore struct {
	objects   map[string][]byte
	putErr    error
	removeErr error
	removed   []string
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string][]byte)}
}

func (f *fakeBlobStore) PutScreenshot(ctx context.Context, key string, data []byte) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.objects[key] = data
	return nil
}

func (f *fakeBlobStore) RemoveScreenshot(ctx context.Context, key string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, key)
	delete(f.objects, key)
	return nil
}

type fakeScreenshotStore struct {
	records []database.ScreenshotRecord
	err     error
}

func (f *fakeScreenshotStore) InsertScreenshotRecord(ctx context.Context, rec database.ScreenshotRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

func newScreenshotIngestor() (*ScreenshotIngestor, *fakeBlobStore, *fakeScreenshotStore, *fakePresence) {
	blobs := newFakeBlobStore()
	store := &fakeScreenshotStore{}
	presence := &fakePresence{}
	ing := &ScreenshotIngestor{Blobs: blobs, Store: store, Presence: presence, MaxBytes: 1 << 20}
	return ing, blobs, store, presence
}

func TestScreenshotIngest(t *testing.T) {
	ing, blobs, store, presence := newScreenshotIngestor()

	capturedAt := time.Date(2026, 8, 28, 10, 30, 15, 123456000, time.UTC)
	receivedAt := capturedAt.Add(2 * time.Second)

	key, err := ing.Ingest(context.Background(), "emp-1", capturedAt, receivedAt, []byte("png-bytes"))
	require.NoError(t, err)

	assert.Regexp(t, `^20260828_103015_123456_emp-1_[0-9a-f]{8}\.png$`, key)
	assert.Equal(t, []byte("png-bytes"), blobs.objects[key])

	require.Len(t, store.records, 1)
	rec := store.records[0]
	assert.Equal(t, "emp-1", rec.EmployeeID)
	assert.Equal(t, capturedAt, rec.Timestamp)
	assert.Equal(t, database.LogTypeScreenshot, rec.LogType)
	assert.Equal(t, key, rec.ScreenshotPath)

	require.Len(t, presence.touches, 1)
	assert.Equal(t, receivedAt, presence.touches[0].observedAt)
}

func TestScreenshotIngestBlobFailureWritesNothing(t *testing.T) {
	ing, blobs, store, presence := newScreenshotIngestor()
	blobs.putErr = errors.New("bucket unavailable")

	_, err := ing.Ingest(context.Background(), "emp-1", time.Now().UTC(), time.Now().UTC(), []byte("png"))
	require.Error(t, err)
	assert.False(t, IsValidation(err))
	assert.Empty(t, store.records, "metadata must not be written when the blob write fails")
	assert.Empty(t, blobs.objects)
	assert.Empty(t, presence.touches)
}

func TestScreenshotIngestRollbackFailureIsNonFatal(t *testing.T) {
	ing, blobs, store, presence := newScreenshotIngestor()
	store.err = errors.New("write concern failed")
	blobs.removeErr = errors.New("connection reset")

	_, err := ing.Ingest(context.Background(), "emp-1", time.Now().UTC(), time.Now().UTC(), []byte("png"))
	require.Error(t, err)
	// The metadata failure is what gets reported; the failed rollback is
	// only logged and leaves the orphaned blob behind.
	assert.ErrorContains(t, err, "write concern failed")
	assert.Len(t, blobs.objects, 1)
	assert.Empty(t, blobs.removed)
	assert.Empty(t, presence.touches)
}

func TestScreenshotIngestRollsBackBlobOnMetadataFailure(t *testing.T) {
	ing, blobs, store, presence := newScreenshotIngestor()
	store.err = errors.New("write concern failed")

	_, err := ing.Ingest(context.Background(), "emp-1", time.Now().UTC(), time.Now().UTC(), []byte("png"))
	require.Error(t, err)
	assert.Len(t, blobs.removed, 1)
	assert.Empty(t, blobs.objects)
	assert.Empty(t, presence.touches)
}

func TestScreenshotIngestValidation(t *testing.T) {
	ing, _, _, _ := newScreenshotIngestor()
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := ing.Ingest(ctx, "", now, now, []byte("png"))
	assert.True(t, IsValidation(err))

	_, err = ing.Ingest(ctx, "emp-1", time.Time{}, now, []byte("png"))
	assert.True(t, IsValidation(err))

	_, err = ing.Ingest(ctx, "emp-1", now, now, nil)
	assert.True(t, IsValidation(err))
}

func TestScreenshotIngestSizeLimit(t *testing.T) {
	ing, blobs, _, _ := newScreenshotIngestor()
	ing.MaxBytes = 8

	_, err := ing.Ingest(context.Background(), "emp-1", time.Now().UTC(), time.Now().UTC(), []byte("123456789"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.Empty(t, blobs.objects)
}

func TestSanitizeEmployeeID(t *testing.T) {
	assert.Equal(t, "WORKSTATION-07_user", SanitizeEmployeeID("WORKSTATION-07_user"))
	assert.Equal(t, "host_name_1", SanitizeEmployeeID("host name/1"))
	assert.Equal(t, "______etc_", SanitizeEmployeeID(`../../etc/`))
	assert.Equal(t, "unknown_emp", SanitizeEmployeeID(""))
}

func TestObjectKeyUniqueness(t *testing.T) {
	ts := time.Date(2026, 8, 28, 10, 30, 15, 0, time.UTC)
	a := ObjectKey(ts, "emp-1")
	b := ObjectKey(ts, "emp-1")
	assert.NotEqual(t, a, b, "same-second captures must not collide")

	keyPattern := regexp.MustCompile(`^\d{8}_\d{6}_\d{6}_[A-Za-z0-9_-]+_[0-9a-f]{8}\.png$`)
	assert.Regexp(t, keyPattern, a)
}
