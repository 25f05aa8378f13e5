package storage

import (
	"context"
	"sync"
)

// Locker serializes mutation per key (session id or client IP). Concurrent
// advances for one adventure, or concurrent anonymous creates from one IP,
// must observe each other's committed writes.
type Locker interface {
	// Acquire blocks until the key's lock is held and returns its release
	// function.
	Acquire(ctx context.Context, key string) (func(), error)
}

// LocalLocker is an in-process Locker for single-node deployments and tests.
// Multi-process deployments use the Redis-backed locks instead.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock, nil
}

// RedisLocker adapts the Redis-backed distributed lock to the Locker
// interface for multi-process deployments.
type RedisLocker struct {
	Store *RedisStore
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	return l.Store.AcquireLock(ctx, key)
}
