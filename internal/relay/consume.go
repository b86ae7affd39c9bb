package relay

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumedKeyPrefix namespaces consumption markers in Redis.
const consumedKeyPrefix = "relay:consumed:"

// consumedTTL bounds how long a consumption marker is retained. Authority
// tokens outliving this window are still protected by the URL rewrite; the
// marker only has to cover the replay-from-history window.
const consumedTTL = 24 * time.Hour

// ConsumeRecorder enforces single-use consumption of relayed tokens on the
// receiving origin: the first Consume for a token returns true, every
// subsequent one returns false.
type ConsumeRecorder interface {
	Consume(ctx context.Context, token string) (bool, error)
}

// RedisConsumeRecorder shares consumption state across gateway instances.
type RedisConsumeRecorder struct {
	client *redis.Client
}

// NewRedisConsumeRecorder creates a Redis-backed consume recorder.
func NewRedisConsumeRecorder(client *redis.Client) *RedisConsumeRecorder {
	return &RedisConsumeRecorder{client: client}
}

// Consume marks token consumed. SetNX makes first-use detection atomic
// across instances.
func (r *RedisConsumeRecorder) Consume(ctx context.Context, token string) (bool, error) {
	return r.client.SetNX(ctx, consumedKeyPrefix+token, "1", consumedTTL).Result()
}

// MemoryConsumeRecorder is the single-instance ConsumeRecorder used when
// Redis is not configured, and in tests.
type MemoryConsumeRecorder struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMemoryConsumeRecorder creates an empty in-memory consume recorder.
func NewMemoryConsumeRecorder() *MemoryConsumeRecorder {
	return &MemoryConsumeRecorder{seen: make(map[string]struct{})}
}

func (m *MemoryConsumeRecorder) Consume(_ context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[token]; ok {
		return false, nil
	}
	m.seen[token] = struct{}{}
	return true, nil
}
