package service

import (
	"context"
	"errors"

	"github.com/relaymesh/devicegate/internal/domain"
	"github.com/relaymesh/devicegate/internal/observability"
	"github.com/relaymesh/devicegate/internal/repository"
	"github.com/relaymesh/devicegate/internal/security"
	"github.com/relaymesh/devicegate/internal/status"
)

// ErrInvalidSessionID marks a malformed session identifier on the
// read-only query paths, which report sentinel errors instead of the
// write-path status enumeration.
var ErrInvalidSessionID = errors.New("invalid session id")

type CreateSessionParams struct {
	DeviceID    string
	PublicKey   string
	Signature   string
	DeviceType  domain.DeviceType
	AppVersion  string
	DeviceOS    string
	NotifyToken string
}

// SessionService authenticates devices against their outstanding
// challenge and manages the resulting sessions.
type SessionService struct {
	challenges repository.ChallengeRepository
	keys       repository.PublicKeyRepository
	sessions   repository.SessionRepository
	verifier   security.SignatureVerifier
}

func NewSessionService(
	challenges repository.ChallengeRepository,
	keys repository.PublicKeyRepository,
	sessions repository.SessionRepository,
	verifier security.SignatureVerifier,
) *SessionService {
	return &SessionService{
		challenges: challenges,
		keys:       keys,
		sessions:   sessions,
		verifier:   verifier,
	}
}

// CreateSession runs the authentication protocol: pin or check the
// device's public key, verify the signature over the outstanding
// challenge, consume the challenge, persist the session. Key resolution
// happens before signature verification so an attacker without the
// private key can neither burn a victim's challenge nor substitute a key.
// A failed verification leaves the challenge in place for a retry.
func (s *SessionService) CreateSession(ctx context.Context, params CreateSessionParams) (string, status.Status) {
	if !security.ValidDeviceID(params.DeviceID) {
		return "", s.creationFailed(ctx, status.Errorf(status.InvalidArgument, "format validation failed for deviceID"))
	}
	sessionID := security.NewSessionID()

	challengeText, err := s.challenges.Find(ctx, params.DeviceID)
	if err != nil {
		if errors.Is(err, repository.ErrChallengeNotFound) {
			return "", s.creationFailed(ctx, status.Errorf(status.NotFound, "no outstanding challenge for deviceID"))
		}
		return "", s.creationFailed(ctx, status.Errorf(status.Internal, "%s", err))
	}

	pinned, err := s.keys.Find(ctx, params.DeviceID)
	switch {
	case errors.Is(err, repository.ErrPublicKeyNotFound):
		// Trust on first use: pin the presented key.
		record := &domain.DevicePublicKey{DeviceID: params.DeviceID, PublicKey: params.PublicKey}
		if err := s.keys.Put(ctx, record); err != nil {
			return "", s.creationFailed(ctx, status.Errorf(status.Internal, "%s", err))
		}
	case err != nil:
		return "", s.creationFailed(ctx, status.Errorf(status.Internal, "%s", err))
	case pinned.PublicKey != params.PublicKey:
		return "", s.creationFailed(ctx, status.Errorf(status.PermissionDenied, "the public key doesn't match the key pinned for deviceID"))
	}

	if err := s.verifier.Verify(params.PublicKey, challengeText, params.Signature); err != nil {
		return "", s.creationFailed(ctx, status.Errorf(status.PermissionDenied, "signature for the verification message is not valid"))
	}

	// One-time use is enforced here, after verification, so a failed
	// attempt does not burn the challenge. The consume only removes the
	// exact text that was verified; if a newer challenge was issued
	// mid-verification, the superseding challenge survives and this
	// attempt is reported as gone.
	consumed, err := s.challenges.ConsumeIfMatch(ctx, params.DeviceID, challengeText)
	if err != nil {
		return "", s.creationFailed(ctx, status.Errorf(status.Internal, "%s", err))
	}
	if !consumed {
		return "", s.creationFailed(ctx, status.Errorf(status.NotFound, "challenge superseded during verification"))
	}

	session := &domain.DeviceSession{
		SessionID:   sessionID,
		DeviceID:    params.DeviceID,
		PublicKey:   params.PublicKey,
		NotifyToken: params.NotifyToken,
		DeviceType:  params.DeviceType,
		AppVersion:  params.AppVersion,
		DeviceOS:    params.DeviceOS,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return "", s.creationFailed(ctx, status.Errorf(status.Internal, "%s", err))
	}

	observability.RecordSessionCreation(ctx, "ok")
	return sessionID, status.OK()
}

// GetSession returns a snapshot of the session's stored fields plus the
// latest online flag.
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (*domain.DeviceSession, error) {
	if !security.ValidSessionID(sessionID) {
		observability.RecordSessionLookup(ctx, "invalid_argument")
		return nil, ErrInvalidSessionID
	}
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			observability.RecordSessionLookup(ctx, "not_found")
		} else {
			observability.RecordSessionLookup(ctx, "error")
		}
		return nil, err
	}
	observability.RecordSessionLookup(ctx, "ok")
	return session, nil
}

// SetOnlineStatus flips the online flag for the addressed session. The
// update targets a single key and never touches other records; callers
// are expected to hold a session they obtained from CreateSession.
func (s *SessionService) SetOnlineStatus(ctx context.Context, sessionID string, isOnline bool) error {
	if err := s.sessions.SetOnline(ctx, sessionID, isOnline); err != nil {
		observability.RecordOnlineUpdate(ctx, "error")
		return err
	}
	observability.RecordOnlineUpdate(ctx, "ok")
	return nil
}

func (s *SessionService) creationFailed(ctx context.Context, st status.Status) status.Status {
	observability.RecordSessionCreation(ctx, st.Code.String())
	return st
}
