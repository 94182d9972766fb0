package service

import (
	"context"

	"github.com/relaymesh/devicegate/internal/observability"
	"github.com/relaymesh/devicegate/internal/repository"
	"github.com/relaymesh/devicegate/internal/security"
	"github.com/relaymesh/devicegate/internal/status"
)

// ChallengeService issues the one-time signing challenges devices must
// answer before a session is minted.
type ChallengeService struct {
	challenges repository.ChallengeRepository
}

func NewChallengeService(challenges repository.ChallengeRepository) *ChallengeService {
	return &ChallengeService{challenges: challenges}
}

// IssueChallenge generates a fresh random challenge for the device and
// persists it, superseding any outstanding one for the same device.
func (s *ChallengeService) IssueChallenge(ctx context.Context, deviceID string) (string, status.Status) {
	if !security.ValidDeviceID(deviceID) {
		observability.RecordChallengeIssuance(ctx, "invalid_argument")
		return "", status.Errorf(status.InvalidArgument, "format validation failed for deviceID: %s", deviceID)
	}
	text, err := security.NewChallengeText()
	if err != nil {
		observability.RecordChallengeIssuance(ctx, "internal")
		return "", status.Errorf(status.Internal, "generate challenge: %s", err)
	}
	if err := s.challenges.Put(ctx, deviceID, text); err != nil {
		observability.RecordChallengeIssuance(ctx, "internal")
		return "", status.Errorf(status.Internal, "%s", err)
	}
	observability.RecordChallengeIssuance(ctx, "ok")
	return text, status.OK()
}
