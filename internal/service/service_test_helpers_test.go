package service

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/relaymesh/devicegate/internal/domain"
	"github.com/relaymesh/devicegate/internal/repository"
	"github.com/relaymesh/devicegate/internal/security"
)

const testDeviceID = "mobile:" + "c3f1a9b2d4e5f6a7b8c9d0e1f2a3b4c5d6e7f8a9b0c1d2e3f4a5b6c7d8e9f0a1"

func otherDeviceID(t *testing.T) string {
	t.Helper()
	return "web:" + strings.Repeat("Zz9A", 16)
}

type serviceFixture struct {
	server     *miniredis.Miniredis
	challenges repository.ChallengeRepository
	keys       repository.PublicKeyRepository
	sessions   repository.SessionRepository
	challenge  *ChallengeService
	session    *SessionService
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.DeviceSession{}, &domain.DevicePublicKey{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	challenges := repository.NewChallengeRepository(client, "challenge_test", 0)
	keys := repository.NewPublicKeyRepository(db)
	sessions := repository.NewSessionRepository(db)
	return &serviceFixture{
		server:     server,
		challenges: challenges,
		keys:       keys,
		sessions:   sessions,
		challenge:  NewChallengeService(challenges),
		session:    NewSessionService(challenges, keys, sessions, security.NewDeviceKeyVerifier()),
	}
}

type testDevice struct {
	key    *rsa.PrivateKey
	pubPEM string
}

func newTestDevice(t *testing.T) *testDevice {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return &testDevice{key: key, pubPEM: string(pemBytes)}
}

func (d *testDevice) sign(t *testing.T, message string) string {
	t.Helper()
	digest := sha256.Sum256([]byte(message))
	sig, err := rsa.SignPKCS1v15(rand.Reader, d.key, crypto.SHA256, digest[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return base64.StdEncoding.EncodeToString(sig)
}

func (d *testDevice) createParams(deviceID, signature string) CreateSessionParams {
	return CreateSessionParams{
		DeviceID:    deviceID,
		PublicKey:   d.pubPEM,
		Signature:   signature,
		DeviceType:  domain.DeviceTypeMobile,
		AppVersion:  "2.1.0",
		DeviceOS:    "Android 15",
		NotifyToken: "fcm-token",
	}
}
