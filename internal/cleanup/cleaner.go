package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// SessionStore deletes scored test sessions nobody registered with
type SessionStore interface {
	DeleteOrphanSessions(ctx context.Context, olderThan time.Time) (int64, error)
}

// Cleaner periodically prunes orphan test sessions
type Cleaner struct {
	store     SessionStore
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
}

// NewCleaner creates a new cleanup worker
func NewCleaner(store SessionStore, interval, retention time.Duration) *Cleaner {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}

	return &Cleaner{
		store:     store,
		interval:  interval,
		retention: retention,
		now:       time.Now,
	}
}

// Start begins the cleanup worker in a goroutine
func (c *Cleaner) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Cleaner) run(ctx context.Context) {
	slog.Info("cleanup worker started", "interval", c.interval, "retention", c.retention)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Run immediately on start
	c.cleanup(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup worker stopped")
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

// cleanup removes sessions older than the retention window. It returns the
// number of sessions deleted.
func (c *Cleaner) cleanup(ctx context.Context) int64 {
	cutoff := c.now().Add(-c.retention)
	slog.Debug("running cleanup cycle", "cutoff", cutoff)

	deleted, err := c.store.DeleteOrphanSessions(ctx, cutoff)
	if err != nil {
		slog.Error("failed to delete orphan test sessions", "error", err)
		return 0
	}

	if deleted > 0 {
		slog.Info("orphan test sessions deleted", "count", deleted, "cutoff", cutoff)
	}
	return deleted
}
