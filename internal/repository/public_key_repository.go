package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/relaymesh/devicegate/internal/domain"
	"github.com/relaymesh/devicegate/internal/observability"
)

var ErrPublicKeyNotFound = errors.New("public key not found")

// PublicKeyRepository holds the key pinned for each device. The gateway
// only ever writes a device's key once; mismatches are rejected upstream,
// never overwritten here.
type PublicKeyRepository interface {
	Find(ctx context.Context, deviceID string) (*domain.DevicePublicKey, error)
	Put(ctx context.Context, record *domain.DevicePublicKey) error
}

type GormPublicKeyRepository struct{ db *gorm.DB }

func NewPublicKeyRepository(db *gorm.DB) PublicKeyRepository {
	return &GormPublicKeyRepository{db: db}
}

func (r *GormPublicKeyRepository) Find(ctx context.Context, deviceID string) (*domain.DevicePublicKey, error) {
	var record domain.DevicePublicKey
	err := r.db.WithContext(ctx).Where("device_id = ?", deviceID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "public_key", "find", "not_found")
			return nil, ErrPublicKeyNotFound
		}
		observability.RecordRepositoryOperation(ctx, "public_key", "find", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "public_key", "find", "success")
	return &record, nil
}

func (r *GormPublicKeyRepository) Put(ctx context.Context, record *domain.DevicePublicKey) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "public_key", "put", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "public_key", "put", "success")
	return nil
}
