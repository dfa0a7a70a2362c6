package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tekpossible/ems/server/ingest"
	"go.uber.org/zap"
)

const testAPIKey = "test-key"

type fakePresence struct {
	employeeID string
	hostname   string
	err        error
	calls      int
}

func (f *fakePresence) Touch(ctx context.Context, employeeID, hostname string, observedAt time.Time) error {
	f.calls++
	f.employeeID = employeeID
	f.hostname = hostname
	return f.err
}

type fakeActivityIngestor struct {
	res        ingest.BatchResult
	err        error
	employeeID string
	entries    []json.RawMessage
}

func (f *fakeActivityIngestor) IngestBatch(ctx context.Context, employeeID string, entries []json.RawMessage, receivedAt time.Time) (ingest.BatchResult, error) {
	f.employeeID = employeeID
	f.entries = entries
	return f.res, f.err
}

type fakeScreenshotIngestor struct {
	key        string
	err        error
	employeeID string
	capturedAt time.Time
	data       []byte
}

func (f *fakeScreenshotIngestor) Ingest(ctx context.Context, employeeID string, capturedAt, receivedAt time.Time, data []byte) (string, error) {
	f.employeeID = employeeID
	f.capturedAt = capturedAt
	f.data = data
	return f.key, f.err
}

type testServer struct {
	router      *gin.Engine
	presence    *fakePresence
	activity    *fakeActivityIngestor
	screenshots *fakeScreenshotIngestor
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServer{
		presence:    &fakePresence{},
		activity:    &fakeActivityIngestor{},
		screenshots: &fakeScreenshotIngestor{key: "stored.png"},
	}
	s := &apiServer{
		presence:       ts.presence,
		activity:       ts.activity,
		screenshots:    ts.screenshots,
		maxUploadBytes: 1 << 20,
	}
	ts.router = newRouter(s, zap.NewNop(), testAPIKey)
	return ts
}

func (ts *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func jsonRequest(t *testing.T, method, path, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", testAPIKey)
	return req
}

func TestAPIKeyRequired(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/heartbeat", strings.NewReader(`{"employee_id": "emp-1"}`))
	req.Header.Set("Content-Type", "application/json")

	w := ts.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, ts.presence.calls)

	req = jsonRequest(t, http.MethodPost, "/api/heartbeat", `{"employee_id": "emp-1"}`)
	req.Header.Set("X-API-Key", "wrong-key")
	w = ts.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealthNeedsNoAuth(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHeartbeat(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, jsonRequest(t, http.MethodPost, "/api/heartbeat",
		`{"employee_id": "emp-1", "hostname": "WORKSTATION-07"}`))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "emp-1", ts.presence.employeeID)
	assert.Equal(t, "WORKSTATION-07", ts.presence.hostname)
}

func TestHeartbeatRejectsBadPayload(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, jsonRequest(t, http.MethodPost, "/api/heartbeat", `not json`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, jsonRequest(t, http.MethodPost, "/api/heartbeat", `{"hostname": "h"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, ts.presence.calls)
}

func TestHeartbeatStorageFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.presence.err = errors.New("primary unavailable")

	w := ts.do(t, jsonRequest(t, http.MethodPost, "/api/heartbeat", `{"employee_id": "emp-1"}`))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestLogActivity(t *testing.T) {
	ts := newTestServer(t)
	ts.activity.res = ingest.BatchResult{Processed: 2, Malformed: 1, Inserted: 2}

	w := ts.do(t, jsonRequest(t, http.MethodPost, "/api/log/activity",
		`{"employee_id": "emp-1", "activities": [{}, {}, {}]}`))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "emp-1", ts.activity.employeeID)
	assert.Len(t, ts.activity.entries, 3)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.EqualValues(t, 2, body["inserted_count"])
	assert.EqualValues(t, 1, body["malformed_count"])
}

func TestLogActivityMissingList(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, jsonRequest(t, http.MethodPost, "/api/log/activity", `{"employee_id": "emp-1"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, jsonRequest(t, http.MethodPost, "/api/log/activity",
		`{"employee_id": "emp-1", "activities": "nope"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogActivityEmptyListIsNoOp(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, jsonRequest(t, http.MethodPost, "/api/log/activity",
		`{"employee_id": "emp-1", "activities": []}`))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, ts.activity.employeeID, "empty batch must not reach the ingestor")
}

func TestLogActivityAllMalformed(t *testing.T) {
	ts := newTestServer(t)
	ts.activity.res = ingest.BatchResult{Malformed: 2}

	w := ts.do(t, jsonRequest(t, http.MethodPost, "/api/log/activity",
		`{"employee_id": "emp-1", "activities": [1, 2]}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogActivityStorageFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.activity.res = ingest.BatchResult{Processed: 2, Inserted: 1}
	ts.activity.err = errors.New("bulk write error")

	w := ts.do(t, jsonRequest(t, http.MethodPost, "/api/log/activity",
		`{"employee_id": "emp-1", "activities": [{}, {}]}`))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.EqualValues(t, 1, body["inserted_count"])
}

func screenshotRequest(t *testing.T, fields map[string]string, filename string, data []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("screenshot", filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload/screenshot", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-API-Key", testAPIKey)
	return req
}

func TestUploadScreenshot(t *testing.T) {
	ts := newTestServer(t)

	req := screenshotRequest(t, map[string]string{
		"employee_id": "emp-1",
		"timestamp":   "2026-08-28T10:30:15.123456Z",
	}, "capture.png", []byte("png-bytes"))

	w := ts.do(t, req)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "emp-1", ts.screenshots.employeeID)
	assert.Equal(t, []byte("png-bytes"), ts.screenshots.data)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "stored.png", body["filename"])
}

func TestUploadScreenshotMissingParts(t *testing.T) {
	ts := newTestServer(t)

	// No file part.
	w := ts.do(t, screenshotRequest(t, map[string]string{
		"employee_id": "emp-1",
		"timestamp":   "2026-08-28T10:30:15Z",
	}, "", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// No employee id.
	w = ts.do(t, screenshotRequest(t, map[string]string{
		"timestamp": "2026-08-28T10:30:15Z",
	}, "capture.png", []byte("png")))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unparsable timestamp.
	w = ts.do(t, screenshotRequest(t, map[string]string{
		"employee_id": "emp-1",
		"timestamp":   "yesterday",
	}, "capture.png", []byte("png")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadScreenshotErrorMapping(t *testing.T) {
	fields := map[string]string{
		"employee_id": "emp-1",
		"timestamp":   "2026-08-28T10:30:15Z",
	}

	ts := newTestServer(t)
	ts.screenshots.err = &ingest.ValidationError{Field: "screenshot", Reason: "empty payload"}
	w := ts.do(t, screenshotRequest(t, fields, "capture.png", []byte("png")))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	ts = newTestServer(t)
	ts.screenshots.err = ingest.ErrPayloadTooLarge
	w = ts.do(t, screenshotRequest(t, fields, "capture.png", []byte("png")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	ts = newTestServer(t)
	ts.screenshots.err = errors.New("minio unavailable")
	w = ts.do(t, screenshotRequest(t, fields, "capture.png", []byte("png")))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
