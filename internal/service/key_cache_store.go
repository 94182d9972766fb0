package service

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// KeyCacheStore caches pinned device public keys in front of the
// relational store. Pinned keys never change once written, so entries
// only need invalidation when operators revoke a device out of band.
type KeyCacheStore interface {
	Get(ctx context.Context, deviceID string) (string, bool, error)
	Set(ctx context.Context, deviceID, publicKey string, ttl time.Duration) error
	InvalidateDevice(ctx context.Context, deviceID string) error
	InvalidateAll(ctx context.Context) error
}

type NoopKeyCacheStore struct{}

func NewNoopKeyCacheStore() *NoopKeyCacheStore {
	return &NoopKeyCacheStore{}
}

func (s *NoopKeyCacheStore) Get(context.Context, string) (string, bool, error) {
	return "", false, nil
}

func (s *NoopKeyCacheStore) Set(context.Context, string, string, time.Duration) error {
	return nil
}

func (s *NoopKeyCacheStore) InvalidateDevice(context.Context, string) error {
	return nil
}

func (s *NoopKeyCacheStore) InvalidateAll(context.Context) error {
	return nil
}

type keyCacheEntry struct {
	publicKey string
	expiresAt time.Time
}

// InMemoryKeyCacheStore invalidates through epoch counters instead of
// scanning: bumping an epoch makes every older entry unreachable and the
// stale data ages out via TTL.
type InMemoryKeyCacheStore struct {
	mu          sync.RWMutex
	data        map[string]keyCacheEntry
	globalEpoch uint64
	deviceEpoch map[string]uint64
}

func NewInMemoryKeyCacheStore() *InMemoryKeyCacheStore {
	return &InMemoryKeyCacheStore{
		data:        make(map[string]keyCacheEntry),
		deviceEpoch: make(map[string]uint64),
	}
}

func (s *InMemoryKeyCacheStore) Get(_ context.Context, deviceID string) (string, bool, error) {
	now := time.Now().UTC()
	s.mu.RLock()
	key := s.cacheKeyLocked(deviceID)
	entry, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if now.After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.data, key)
		s.mu.Unlock()
		return "", false, nil
	}
	return entry.publicKey, true, nil
}

func (s *InMemoryKeyCacheStore) Set(_ context.Context, deviceID, publicKey string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[s.cacheKeyLocked(deviceID)] = keyCacheEntry{
		publicKey: publicKey,
		expiresAt: time.Now().UTC().Add(ttl),
	}
	return nil
}

func (s *InMemoryKeyCacheStore) InvalidateDevice(_ context.Context, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deviceEpoch[deviceID]++
	return nil
}

func (s *InMemoryKeyCacheStore) InvalidateAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globalEpoch++
	return nil
}

func (s *InMemoryKeyCacheStore) cacheKeyLocked(deviceID string) string {
	return buildKeyCacheKey(s.globalEpoch, s.deviceEpoch[deviceID], deviceID)
}

func buildKeyCacheKey(globalEpoch, deviceEpoch uint64, deviceID string) string {
	return fmt.Sprintf("devicekey:g%d:d%d:device:%s", globalEpoch, deviceEpoch, hashToken(deviceID))
}
