package categorize

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tekpossible/ems/server/database"
	"github.com/tekpossible/ems/zapctx"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Source loads the full rule set from durable storage.
type Source interface {
	LoadRuleSet(ctx context.Context) ([]database.CategorizationRule, []database.Category, error)
}

// Cache holds the current rule snapshot and refreshes it from the
// Source when the TTL elapses. It is never the system of record.
//
// Refresh discipline: one refresher at a time; the caller that wins the
// refresh lock reloads synchronously, everyone else keeps reading the
// pre-refresh snapshot. A failed reload keeps the previous snapshot
// (stale-but-available) so categorization never hard-fails on storage
// trouble.
type Cache struct {
	source Source
	ttl    time.Duration

	// now is swappable so tests can force expiry deterministically.
	now func() time.Time

	snap      atomic.Pointer[timedSnapshot]
	refreshMu sync.Mutex
}

type timedSnapshot struct {
	*snapshot
	loadedAt time.Time
}

const DefaultTTL = 5 * time.Minute

func NewCache(source Source, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		source: source,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Categorize maps one activity to a category id using the current
// snapshot, refreshing it first if the TTL has elapsed. It returns nil
// when no rule matches and no fallback category exists, or when no
// snapshot could ever be loaded.
func (c *Cache) Categorize(ctx context.Context, act Activity) *primitive.ObjectID {
	snap := c.current(ctx)
	if snap == nil {
		return nil
	}
	return snap.categorize(ctx, act)
}

// Invalidate marks the snapshot expired so the next categorization
// reloads. Called by rule/category admin writes.
func (c *Cache) Invalidate() {
	if snap := c.snap.Load(); snap != nil {
		c.snap.Store(&timedSnapshot{snapshot: snap.snapshot})
	}
}

func (c *Cache) current(ctx context.Context) *snapshot {
	snap := c.snap.Load()
	if snap != nil && c.now().Sub(snap.loadedAt) < c.ttl {
		return snap.snapshot
	}

	if !c.refreshMu.TryLock() {
		// A refresh is in flight; serve the pre-refresh snapshot.
		if snap != nil {
			return snap.snapshot
		}
		return nil
	}
	defer c.refreshMu.Unlock()

	// Another caller may have refreshed while we waited for the lock.
	snap = c.snap.Load()
	if snap != nil && c.now().Sub(snap.loadedAt) < c.ttl {
		return snap.snapshot
	}

	rules, categories, err := c.source.LoadRuleSet(ctx)
	if err != nil {
		zapctx.Error(ctx, "Failed to refresh rule cache, keeping previous snapshot", zap.Error(err))
		if snap == nil {
			return nil
		}
		// Stamp the attempt so a broken store is retried once per TTL,
		// not on every categorization.
		stale := &timedSnapshot{snapshot: snap.snapshot, loadedAt: c.now()}
		c.snap.Store(stale)
		return stale.snapshot
	}

	fresh := &timedSnapshot{snapshot: newSnapshot(rules, categories), loadedAt: c.now()}
	c.snap.Store(fresh)
	zapctx.Debug(ctx, "Rule cache refreshed",
		zap.Int("rules", len(rules)),
		zap.Int("categories", len(categories)))
	return fresh.snapshot
}
