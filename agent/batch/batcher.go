// Package batch accumulates activity entries and ships them to the
// server in batches, spooling to disk across restarts and outages.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tekpossible/ems/agent/httpclient"
	"github.com/tekpossible/ems/zapctx"
	"go.uber.org/zap"
)

const (
	defaultMaxEntries  = 1000
	defaultFlushSize   = 50
	defaultFlushPeriod = 60 * time.Second
	defaultPostTimeout = 30 * time.Second

	spoolFileName = "activity_batch.json"
)

// Entry is one contiguous foreground-window period, in the wire shape
// the ingestion API expects.
type Entry struct {
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationSeconds int       `json:"duration_seconds"`
	WindowTitle     string    `json:"window_title"`
	ProcessName     string    `json:"process_name"`
	IsActive        bool      `json:"is_active"`
}

// Poster is the transport slice the batcher needs.
type Poster interface {
	PostJSON(ctx context.Context, endpoint string, payload interface{}) error
}

type Batcher struct {
	client     Poster
	employeeID string
	spoolFile  string

	maxEntries  int
	flushSize   int
	flushPeriod time.Duration
	postTimeout time.Duration

	mu           sync.Mutex
	entries      []Entry
	flushTrigger chan struct{}
}

type Config struct {
	Client      Poster
	EmployeeID  string
	SpoolDir    string
	MaxEntries  int
	FlushSize   int
	FlushPeriod time.Duration
	PostTimeout time.Duration
}

func New(cfg Config) (*Batcher, error) {
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = defaultMaxEntries
	}
	if cfg.FlushSize == 0 {
		cfg.FlushSize = defaultFlushSize
	}
	if cfg.FlushPeriod == 0 {
		cfg.FlushPeriod = defaultFlushPeriod
	}
	if cfg.PostTimeout == 0 {
		cfg.PostTimeout = defaultPostTimeout
	}
	if err := os.MkdirAll(cfg.SpoolDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}

	b := &Batcher{
		client:       cfg.Client,
		employeeID:   cfg.EmployeeID,
		spoolFile:    filepath.Join(cfg.SpoolDir, spoolFileName),
		maxEntries:   cfg.MaxEntries,
		flushSize:    cfg.FlushSize,
		flushPeriod:  cfg.FlushPeriod,
		postTimeout:  cfg.PostTimeout,
		entries:      make([]Entry, 0, cfg.MaxEntries),
		flushTrigger: make(chan struct{}, 1),
	}

	if err := b.loadFromDisk(); err != nil {
		zapctx.Warn(context.Background(), "Failed to load spooled activity entries", zap.Error(err))
	}
	return b, nil
}

// Add queues one entry. When the buffer is full the oldest entry is
// dropped, bounding memory during long outages.
func (b *Batcher) Add(e Entry) {
	b.mu.Lock()
	if len(b.entries) >= b.maxEntries {
		b.entries = b.entries[1:]
	}
	b.entries = append(b.entries, e)
	full := len(b.entries) >= b.flushSize
	b.mu.Unlock()

	if full {
		select {
		case b.flushTrigger <- struct{}{}:
		default:
		}
	}
}

// Size returns the number of queued entries.
func (b *Batcher) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Run flushes periodically until ctx is cancelled, then makes a final
// delivery attempt and spools whatever is left to disk.
func (b *Batcher) Run(ctx context.Context) {
	ticker := time.NewTicker(b.flushPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.shutdown()
			return
		case <-ticker.C:
			b.Flush(ctx)
		case <-b.flushTrigger:
			b.Flush(ctx)
		}
	}
}

// Flush attempts to deliver the queued entries. On transient failure the
// entries stay queued and are spooled to disk; a client-side rejection
// drops the batch since the server will never accept it.
func (b *Batcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	if len(b.entries) == 0 {
		b.mu.Unlock()
		return nil
	}
	pending := make([]Entry, len(b.entries))
	copy(pending, b.entries)
	b.mu.Unlock()

	postCtx, cancel := context.WithTimeout(ctx, b.postTimeout)
	defer cancel()

	err := b.client.PostJSON(postCtx, "/api/log/activity", map[string]interface{}{
		"employee_id": b.employeeID,
		"activities":  pending,
	})

	switch {
	case err == nil:
		b.drop(len(pending))
		if rerr := os.Remove(b.spoolFile); rerr != nil && !os.IsNotExist(rerr) {
			zapctx.Warn(ctx, "Failed to remove spool file", zap.Error(rerr))
		}
		zapctx.Info(ctx, "Flushed activity batch", zap.Int("entries", len(pending)))
		return nil

	case errors.Is(err, httpclient.ErrUnauthorized):
		zapctx.Error(ctx, "Server rejected API key; keeping batch spooled", zap.Error(err))
		b.spool(ctx)
		return err

	case httpclient.IsClientError(err):
		zapctx.Error(ctx, "Server permanently rejected activity batch; dropping it",
			zap.Error(err),
			zap.Int("entries", len(pending)))
		b.drop(len(pending))
		return err

	default:
		zapctx.Warn(ctx, "Failed to flush activity batch; will retry",
			zap.Error(err),
			zap.Int("entries", len(pending)))
		b.spool(ctx)
		return err
	}
}

// drop removes the n oldest entries; entries added during the flush
// stay queued.
func (b *Batcher) drop(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > len(b.entries) {
		n = len(b.entries)
	}
	b.entries = b.entries[n:]
}

func (b *Batcher) spool(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.saveToDiskLocked(); err != nil {
		zapctx.Error(ctx, "Failed to spool activity entries to disk", zap.Error(err))
	}
}

func (b *Batcher) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := b.Flush(ctx); err == nil {
		return
	}
	b.spool(ctx)
}

func (b *Batcher) saveToDiskLocked() error {
	if len(b.entries) == 0 {
		return nil
	}
	data, err := json.Marshal(b.entries)
	if err != nil {
		return fmt.Errorf("failed to marshal entries: %w", err)
	}
	if err := os.WriteFile(b.spoolFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write spool file: %w", err)
	}
	return nil
}

func (b *Batcher) loadFromDisk() error {
	data, err := os.ReadFile(b.spoolFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read spool file: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to unmarshal spool file: %w", err)
	}
	if len(entries) > b.maxEntries {
		entries = entries[len(entries)-b.maxEntries:]
	}

	b.mu.Lock()
	b.entries = append(entries, b.entries...)
	b.mu.Unlock()

	zapctx.Info(context.Background(), "Loaded spooled activity entries", zap.Int("entries", len(entries)))
	return nil
}
