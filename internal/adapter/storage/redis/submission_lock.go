package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"payment-reconciler/internal/core/ports"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SubmissionLock implements ports.SubmissionLock with SET NX. Each acquired
// key holds a random token so an expired lock taken over by another process
// is not released by the original holder.
type SubmissionLock struct {
	client goredis.UniversalClient
	prefix string

	mu     sync.Mutex
	tokens map[string]string
}

var _ ports.SubmissionLock = (*SubmissionLock)(nil)

// NewSubmissionLock creates a Redis-backed submission lock.
func NewSubmissionLock(client goredis.UniversalClient) *SubmissionLock {
	return &SubmissionLock{
		client: client,
		prefix: "submit:",
		tokens: make(map[string]string),
	}
}

// Acquire takes the lock for orderID. It returns false if the lock is held.
func (l *SubmissionLock) Acquire(ctx context.Context, orderID string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	err := l.client.SetArgs(ctx, l.prefix+orderID, token, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Err()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis acquire submission lock: %w", err)
	}

	l.mu.Lock()
	l.tokens[orderID] = token
	l.mu.Unlock()
	return true, nil
}

// Release drops the lock for orderID if this process still owns it.
func (l *SubmissionLock) Release(ctx context.Context, orderID string) error {
	l.mu.Lock()
	token, ok := l.tokens[orderID]
	delete(l.tokens, orderID)
	l.mu.Unlock()
	if !ok {
		return nil
	}

	if err := releaseScript.Run(ctx, l.client, []string{l.prefix + orderID}, token).Err(); err != nil {
		return fmt.Errorf("redis release submission lock: %w", err)
	}
	return nil
}
