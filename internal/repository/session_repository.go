package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/relaymesh/devicegate/internal/domain"
	"github.com/relaymesh/devicegate/internal/observability"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionRepository persists authenticated device sessions. Sessions are
// only created through the authenticated creation protocol; the online
// flag is the single mutable field afterwards.
type SessionRepository interface {
	Create(ctx context.Context, session *domain.DeviceSession) error
	FindByID(ctx context.Context, sessionID string) (*domain.DeviceSession, error)
	SetOnline(ctx context.Context, sessionID string, isOnline bool) error
}

type GormSessionRepository struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &GormSessionRepository{db: db}
}

func (r *GormSessionRepository) Create(ctx context.Context, session *domain.DeviceSession) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "session", "create", "success")
	return nil
}

func (r *GormSessionRepository) FindByID(ctx context.Context, sessionID string) (*domain.DeviceSession, error) {
	var session domain.DeviceSession
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "session", "find_by_id", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "session", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "find_by_id", "success")
	return &session, nil
}

// SetOnline updates the online flag for the addressed session only. A
// missing session is a no-op rather than an error; callers are expected
// to target sessions they already hold.
func (r *GormSessionRepository) SetOnline(ctx context.Context, sessionID string, isOnline bool) error {
	err := r.db.WithContext(ctx).Model(&domain.DeviceSession{}).
		Where("session_id = ?", sessionID).
		Update("is_online", isOnline).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "set_online", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "session", "set_online", "success")
	return nil
}
