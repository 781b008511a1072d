package cleanup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wimarka/lakra/internal/models"
	"github.com/wimarka/lakra/internal/storage"
)

type recordingStore struct {
	mu      sync.Mutex
	cutoffs []time.Time
	err     error
	calls   chan struct{}
}

func (s *recordingStore) DeleteOrphanSessions(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	s.cutoffs = append(s.cutoffs, olderThan)
	s.mu.Unlock()
	if s.calls != nil {
		s.calls <- struct{}{}
	}
	return 1, s.err
}

func TestCleanup_Cutoff(t *testing.T) {
	store := &recordingStore{}
	c := NewCleaner(store, time.Minute, 2*time.Hour)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	if got := c.cleanup(context.Background()); got != 1 {
		t.Errorf("cleanup() = %d, want 1", got)
	}
	if want := now.Add(-2 * time.Hour); !store.cutoffs[0].Equal(want) {
		t.Errorf("cutoff = %s, want %s", store.cutoffs[0], want)
	}

	store.err = errors.New("db down")
	if got := c.cleanup(context.Background()); got != 0 {
		t.Errorf("cleanup() with error = %d, want 0", got)
	}
}

func TestCleanup_MemoryRepository(t *testing.T) {
	repo := storage.NewMemoryRepository()
	ctx := context.Background()

	for _, id := range []string{"test_orphan", "test_kept"} {
		s := &models.TestSession{ID: id, Languages: []string{"tagalog"}, Passed: true}
		if err := repo.CreateTestSession(ctx, s, nil); err != nil {
			t.Fatalf("CreateTestSession() error = %v", err)
		}
	}
	user := &models.User{ID: "u-1", Email: "u@example.com", Username: "user"}
	if err := repo.CreateUser(ctx, user, "test_kept"); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	c := NewCleaner(repo, time.Minute, time.Hour)
	c.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	if got := c.cleanup(ctx); got != 1 {
		t.Fatalf("cleanup() = %d, want 1", got)
	}
	if s, _ := repo.GetTestSession(ctx, "test_orphan"); s != nil {
		t.Error("orphan session still present")
	}
	if s, _ := repo.GetTestSession(ctx, "test_kept"); s == nil {
		t.Error("consumed session was deleted")
	}
}

func TestStart_RunsImmediatelyAndStops(t *testing.T) {
	store := &recordingStore{calls: make(chan struct{}, 1)}
	c := NewCleaner(store, time.Hour, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)

	select {
	case <-store.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup did not run on start")
	}
	cancel()
}
