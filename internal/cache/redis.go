package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wimarka/lakra/internal/models"
)

const (
	questionPrefix = "lakra:questions:"
	lockPrefix     = "lakra:submit-lock:"
)

// ErrLocked is returned when another request holds the submission lock
var ErrLocked = errors.New("submission already in progress")

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Options configures the Redis connection
type Options struct {
	Address  string
	Password string
	DB       int
}

// NewClient connects to Redis and verifies the connection
func NewClient(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// QuestionCache stores active question sets per language key
type QuestionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewQuestionCache creates a cache whose entries expire after ttl
func NewQuestionCache(client *redis.Client, ttl time.Duration) *QuestionCache {
	return &QuestionCache{client: client, ttl: ttl}
}

// QuestionKey is the Redis key for a language set
func QuestionKey(languageKey string) string {
	return questionPrefix + languageKey
}

// Get returns the cached questions for a language key. ok is false on a miss.
func (c *QuestionCache) Get(ctx context.Context, languageKey string) ([]models.ProficiencyQuestion, bool, error) {
	data, err := c.client.Get(ctx, QuestionKey(languageKey)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read question cache: %w", err)
	}

	var questions []models.ProficiencyQuestion
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached questions: %w", err)
	}
	return questions, true, nil
}

// Set stores the questions for a language key
func (c *QuestionCache) Set(ctx context.Context, languageKey string, questions []models.ProficiencyQuestion) error {
	data, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("failed to encode questions: %w", err)
	}
	if err := c.client.Set(ctx, QuestionKey(languageKey), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write question cache: %w", err)
	}
	return nil
}

// InvalidateAll drops every cached question set. Called after admin edits,
// since one question can appear in many language sets.
func (c *QuestionCache) InvalidateAll(ctx context.Context) error {
	pattern := questionPrefix + "*"
	var cursor uint64
	var keysDeleted int

	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan keys: %w", err)
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				slog.Warn("failed to delete some cached question sets", "error", err)
			}
			keysDeleted += len(keys)
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	slog.Debug("question cache invalidated", "keys_deleted", keysDeleted)
	return nil
}

// SessionLocker serializes scoring per test session id across instances
type SessionLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionLocker creates a locker whose locks expire after ttl
func NewSessionLocker(client *redis.Client, ttl time.Duration) *SessionLocker {
	return &SessionLocker{client: client, ttl: ttl}
}

// Acquire takes the lock for a session id. The returned release function
// deletes the lock only if it is still held by this caller.
func (l *SessionLocker) Acquire(ctx context.Context, sessionID string) (func(), error) {
	key := lockPrefix + sessionID
	value := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, value, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire submission lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	release := func() {
		// the request context may already be cancelled
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		deleted, err := releaseScript.Run(ctx, l.client, []string{key}, value).Int64()
		switch {
		case err != nil:
			slog.Error("failed to release submission lock", "session_id", sessionID, "error", err)
		case deleted == 0:
			slog.Warn("submission lock expired before release", "session_id", sessionID)
		}
	}

	return release, nil
}

// Checker reports Redis health for the readiness endpoint
type Checker struct {
	client *redis.Client
}

// NewChecker wraps a client for health checks
func NewChecker(client *redis.Client) *Checker {
	return &Checker{client: client}
}

// Name returns the dependency name
func (c *Checker) Name() string { return "redis" }

// HealthCheck verifies Redis connectivity
func (c *Checker) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
