// Package memory provides in-process twins of the Redis coordination
// primitives for single-replica deployments and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/dscengine/internal/domain"
)

type lease struct {
	token   uint64
	expires time.Time
}

// LockManager is a process-local domain.LockManager with TTL leases.
type LockManager struct {
	mu     sync.Mutex
	leases map[string]lease
	seq    uint64
	now    func() time.Time
}

// NewLockManager creates an empty lock table.
func NewLockManager() *LockManager {
	return &LockManager{leases: make(map[string]lease), now: time.Now}
}

// Acquire takes key for ttl or fails with domain.ErrLockHeld.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lm.mu.Lock()
	defer lm.mu.Unlock()

	now := lm.now()
	if l, ok := lm.leases[key]; ok && now.Before(l.expires) {
		return nil, domain.ErrLockHeld
	}
	lm.seq++
	token := lm.seq
	lm.leases[key] = lease{token: token, expires: now.Add(ttl)}

	var once sync.Once
	return func() {
		once.Do(func() {
			lm.mu.Lock()
			defer lm.mu.Unlock()
			if l, ok := lm.leases[key]; ok && l.token == token {
				delete(lm.leases, key)
			}
		})
	}, nil
}

var _ domain.LockManager = (*LockManager)(nil)
