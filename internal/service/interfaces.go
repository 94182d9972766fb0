package service

import (
	"context"

	"github.com/relaymesh/devicegate/internal/domain"
	"github.com/relaymesh/devicegate/internal/status"
)

type ChallengeServiceInterface interface {
	IssueChallenge(ctx context.Context, deviceID string) (string, status.Status)
}

type SessionServiceInterface interface {
	CreateSession(ctx context.Context, params CreateSessionParams) (string, status.Status)
	GetSession(ctx context.Context, sessionID string) (*domain.DeviceSession, error)
	SetOnlineStatus(ctx context.Context, sessionID string, isOnline bool) error
}
