package service

import (
	"hash/fnv"
	"sync"

	"agent-wallet-bridge/internal/core/ports"
)

const lockShards = 64

var _ ports.UserLocker = (*UserLocker)(nil)

// UserLocker is a fixed set of mutexes sharded by user id. Two users may
// share a shard; that only costs concurrency, never correctness.
type UserLocker struct {
	shards [lockShards]sync.Mutex
}

// NewUserLocker creates a sharded per-user lock.
func NewUserLocker() *UserLocker {
	return &UserLocker{}
}

// Lock acquires the user's shard and returns its unlock.
func (l *UserLocker) Lock(userID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	m := &l.shards[h.Sum32()%lockShards]
	m.Lock()
	return m.Unlock
}
