package service

import (
	"context"
	"errors"
	"time"

	"github.com/relaymesh/devicegate/internal/domain"
	"github.com/relaymesh/devicegate/internal/repository"
)

const keyNotFoundNamespace = "public_key.not_found"

// CachedKeyResolver fronts the pinned-key store with a positive cache
// for pinned keys and a negative cache for devices that have not
// enrolled yet. It satisfies repository.PublicKeyRepository, so the
// session service never knows the caches exist.
type CachedKeyResolver struct {
	cache       KeyCacheStore
	negative    NegativeLookupCacheStore
	keys        repository.PublicKeyRepository
	ttl         time.Duration
	negativeTTL time.Duration
}

func NewCachedKeyResolver(cache KeyCacheStore, negative NegativeLookupCacheStore, keys repository.PublicKeyRepository, ttl time.Duration) *CachedKeyResolver {
	return &CachedKeyResolver{
		cache:       cache,
		negative:    negative,
		keys:        keys,
		ttl:         ttl,
		negativeTTL: ttl / 10,
	}
}

func (r *CachedKeyResolver) Find(ctx context.Context, deviceID string) (*domain.DevicePublicKey, error) {
	if r.cache != nil && r.ttl > 0 {
		publicKey, ok, err := r.cache.Get(ctx, deviceID)
		if err == nil && ok {
			return &domain.DevicePublicKey{DeviceID: deviceID, PublicKey: publicKey}, nil
		}
	}
	if r.negative != nil && r.negativeTTL > 0 {
		miss, err := r.negative.Get(ctx, keyNotFoundNamespace, deviceID)
		if err == nil && miss {
			return nil, repository.ErrPublicKeyNotFound
		}
	}

	record, err := r.keys.Find(ctx, deviceID)
	if errors.Is(err, repository.ErrPublicKeyNotFound) {
		if r.negative != nil && r.negativeTTL > 0 {
			_ = r.negative.Set(ctx, keyNotFoundNamespace, deviceID, r.negativeTTL)
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if r.cache != nil && r.ttl > 0 {
		_ = r.cache.Set(ctx, deviceID, record.PublicKey, r.ttl)
	}
	return record, nil
}

// Put writes through to the durable store first. The negative entry is
// cleared afterwards so the freshly pinned device is visible on the
// next lookup.
func (r *CachedKeyResolver) Put(ctx context.Context, record *domain.DevicePublicKey) error {
	if err := r.keys.Put(ctx, record); err != nil {
		return err
	}
	if r.cache != nil && r.ttl > 0 {
		_ = r.cache.Set(ctx, record.DeviceID, record.PublicKey, r.ttl)
	}
	if r.negative != nil {
		_ = r.negative.Delete(ctx, keyNotFoundNamespace, record.DeviceID)
	}
	return nil
}

// InvalidateDevice drops a device's cached key, for operator-driven
// revocation.
func (r *CachedKeyResolver) InvalidateDevice(ctx context.Context, deviceID string) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.InvalidateDevice(ctx, deviceID)
}
