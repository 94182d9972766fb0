package service

import (
	"context"
	"errors"
	"testing"

	"github.com/relaymesh/devicegate/internal/repository"
	"github.com/relaymesh/devicegate/internal/security"
	"github.com/relaymesh/devicegate/internal/status"
)

func issueForTest(t *testing.T, fx *serviceFixture, deviceID string) string {
	t.Helper()
	text, st := fx.challenge.IssueChallenge(context.Background(), deviceID)
	if !st.IsOK() {
		t.Fatalf("issue challenge: %v", st)
	}
	return text
}

func TestCreateSessionRejectsMalformedDeviceID(t *testing.T) {
	ctx := context.Background()
	fx := newServiceFixture(t)
	device := newTestDevice(t)

	_, st := fx.session.CreateSession(ctx, device.createParams("not-a-device-id", "sig"))
	if st.Code != status.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", st)
	}
	if len(fx.server.Keys()) != 0 {
		t.Fatal("rejected creation must not write state")
	}
	if _, err := fx.keys.Find(ctx, testDeviceID); !errors.Is(err, repository.ErrPublicKeyNotFound) {
		t.Fatalf("no key may be pinned, got %v", err)
	}
}

func TestCreateSessionWithoutChallengeReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	fx := newServiceFixture(t)
	device := newTestDevice(t)

	_, st := fx.session.CreateSession(ctx, device.createParams(testDeviceID, "irrelevant"))
	if st.Code != status.NotFound {
		t.Fatalf("expected NotFound, got %v", st)
	}
}

func TestCreateSessionHappyPathAndOneTimeUse(t *testing.T) {
	ctx := context.Background()
	fx := newServiceFixture(t)
	device := newTestDevice(t)

	challenge := issueForTest(t, fx, testDeviceID)
	sessionID, st := fx.session.CreateSession(ctx, device.createParams(testDeviceID, device.sign(t, challenge)))
	if !st.IsOK() {
		t.Fatalf("create session: %v", st)
	}
	if sessionID == "" || !security.ValidSessionID(sessionID) {
		t.Fatalf("expected well-formed session id, got %q", sessionID)
	}

	// The key is now pinned.
	pinned, err := fx.keys.Find(ctx, testDeviceID)
	if err != nil {
		t.Fatalf("find pinned key: %v", err)
	}
	if pinned.PublicKey != device.pubPEM {
		t.Fatal("pinned key differs from presented key")
	}

	// The challenge was consumed; replaying it fails.
	_, st = fx.session.CreateSession(ctx, device.createParams(testDeviceID, device.sign(t, challenge)))
	if st.Code != status.NotFound {
		t.Fatalf("expected NotFound on replay, got %v", st)
	}
}

func TestCreateSessionKeyMismatchIsRejected(t *testing.T) {
	ctx := context.Background()
	fx := newServiceFixture(t)
	device := newTestDevice(t)

	challenge := issueForTest(t, fx, testDeviceID)
	if _, st := fx.session.CreateSession(ctx, device.createParams(testDeviceID, device.sign(t, challenge))); !st.IsOK() {
		t.Fatalf("first create: %v", st)
	}

	// A different key with a perfectly valid signature is still refused.
	imposter := newTestDevice(t)
	challenge = issueForTest(t, fx, testDeviceID)
	_, st := fx.session.CreateSession(ctx, imposter.createParams(testDeviceID, imposter.sign(t, challenge)))
	if st.Code != status.PermissionDenied {
		t.Fatalf("expected PermissionDenied, got %v", st)
	}

	// The pinned key is untouched and the legitimate device can proceed.
	pinned, err := fx.keys.Find(ctx, testDeviceID)
	if err != nil {
		t.Fatalf("find pinned key: %v", err)
	}
	if pinned.PublicKey != device.pubPEM {
		t.Fatal("pinned key must not be overwritten by a mismatching request")
	}
	if _, st := fx.session.CreateSession(ctx, device.createParams(testDeviceID, device.sign(t, challenge))); !st.IsOK() {
		t.Fatalf("legitimate retry after mismatch: %v", st)
	}
}

func TestCreateSessionBadSignatureLeavesChallengeAvailable(t *testing.T) {
	ctx := context.Background()
	fx := newServiceFixture(t)
	device := newTestDevice(t)

	challenge := issueForTest(t, fx, testDeviceID)
	_, st := fx.session.CreateSession(ctx, device.createParams(testDeviceID, device.sign(t, "wrong message")))
	if st.Code != status.PermissionDenied {
		t.Fatalf("expected PermissionDenied, got %v", st)
	}

	// The failed attempt did not burn the challenge.
	sessionID, st := fx.session.CreateSession(ctx, device.createParams(testDeviceID, device.sign(t, challenge)))
	if !st.IsOK() {
		t.Fatalf("retry with correct signature: %v", st)
	}
	if sessionID == "" {
		t.Fatal("expected session id on retry")
	}
}

func TestCreateSessionSignatureOverSupersededChallengeFails(t *testing.T) {
	ctx := context.Background()
	fx := newServiceFixture(t)
	device := newTestDevice(t)

	first := issueForTest(t, fx, testDeviceID)
	issueForTest(t, fx, testDeviceID)

	_, st := fx.session.CreateSession(ctx, device.createParams(testDeviceID, device.sign(t, first)))
	if st.Code != status.PermissionDenied {
		t.Fatalf("expected PermissionDenied for stale challenge signature, got %v", st)
	}
}

func TestGetSessionReturnsStoredSnapshot(t *testing.T) {
	ctx := context.Background()
	fx := newServiceFixture(t)
	device := newTestDevice(t)

	challenge := issueForTest(t, fx, testDeviceID)
	sessionID, st := fx.session.CreateSession(ctx, device.createParams(testDeviceID, device.sign(t, challenge)))
	if !st.IsOK() {
		t.Fatalf("create: %v", st)
	}

	session, err := fx.session.GetSession(ctx, sessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if session.DeviceID != testDeviceID || session.PublicKey != device.pubPEM {
		t.Fatalf("identity fields not preserved: %+v", session)
	}
	if session.NotifyToken != "fcm-token" || session.AppVersion != "2.1.0" || session.DeviceOS != "Android 15" {
		t.Fatalf("metadata not preserved: %+v", session)
	}
	if session.IsOnline {
		t.Fatal("new session must start offline")
	}
}

func TestGetSessionErrors(t *testing.T) {
	ctx := context.Background()
	fx := newServiceFixture(t)

	if _, err := fx.session.GetSession(ctx, "not-a-uuid"); !errors.Is(err, ErrInvalidSessionID) {
		t.Fatalf("expected ErrInvalidSessionID, got %v", err)
	}
	if _, err := fx.session.GetSession(ctx, security.NewSessionID()); !errors.Is(err, repository.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSetOnlineStatusReflectedInGetSession(t *testing.T) {
	ctx := context.Background()
	fx := newServiceFixture(t)
	device := newTestDevice(t)

	challenge := issueForTest(t, fx, testDeviceID)
	sessionID, st := fx.session.CreateSession(ctx, device.createParams(testDeviceID, device.sign(t, challenge)))
	if !st.IsOK() {
		t.Fatalf("create: %v", st)
	}

	if err := fx.session.SetOnlineStatus(ctx, sessionID, true); err != nil {
		t.Fatalf("set online: %v", err)
	}
	session, err := fx.session.GetSession(ctx, sessionID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !session.IsOnline {
		t.Fatal("expected online flag set")
	}

	// Idempotent when repeated with the same value.
	if err := fx.session.SetOnlineStatus(ctx, sessionID, true); err != nil {
		t.Fatalf("repeat set online: %v", err)
	}
	session, err = fx.session.GetSession(ctx, sessionID)
	if err != nil {
		t.Fatalf("get after repeat: %v", err)
	}
	if !session.IsOnline {
		t.Fatal("online flag must survive an idempotent repeat")
	}
}

func TestDevicesAreIsolatedFromEachOther(t *testing.T) {
	ctx := context.Background()
	fx := newServiceFixture(t)
	deviceA := newTestDevice(t)
	deviceB := newTestDevice(t)
	otherID := otherDeviceID(t)

	challengeA := issueForTest(t, fx, testDeviceID)
	challengeB := issueForTest(t, fx, otherID)

	if _, st := fx.session.CreateSession(ctx, deviceA.createParams(testDeviceID, deviceA.sign(t, challengeA))); !st.IsOK() {
		t.Fatalf("device A create: %v", st)
	}
	if _, st := fx.session.CreateSession(ctx, deviceB.createParams(otherID, deviceB.sign(t, challengeB))); !st.IsOK() {
		t.Fatalf("device B create: %v", st)
	}
}
