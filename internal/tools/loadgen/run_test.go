package loadgen

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/relaymesh/devicegate/internal/domain"
	"github.com/relaymesh/devicegate/internal/health"
	"github.com/relaymesh/devicegate/internal/http/handler"
	"github.com/relaymesh/devicegate/internal/http/router"
	"github.com/relaymesh/devicegate/internal/repository"
	"github.com/relaymesh/devicegate/internal/security"
	"github.com/relaymesh/devicegate/internal/service"
)

func newGatewayForTest(t *testing.T) *httptest.Server {
	t.Helper()

	redisServer := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: redisServer.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.DeviceSession{}, &domain.DevicePublicKey{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	challenges := repository.NewChallengeRepository(redisClient, "challenge:", time.Minute)
	keys := repository.NewPublicKeyRepository(db)
	sessions := repository.NewSessionRepository(db)

	h := handler.NewDeviceHandler(
		service.NewChallengeService(challenges),
		service.NewSessionService(challenges, keys, sessions, security.NewDeviceKeyVerifier()),
	)
	server := httptest.NewServer(router.NewRouter(router.Dependencies{
		DeviceHandler:   h,
		APIRateLimitRPM: 100000,
		Readiness:       health.NewProbeRunner(0),
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRunDrivesFullFlow(t *testing.T) {
	server := newGatewayForTest(t)

	result, err := Run(context.Background(), Config{
		BaseURL:           server.URL,
		Devices:           4,
		SessionsPerDevice: 2,
		Concurrency:       2,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// 4 requests per flow: challenge, create, set online, get.
	wantTotal := int64(4 * 2 * 4)
	if result.TotalRequests != wantTotal {
		t.Fatalf("expected %d requests, got %d", wantTotal, result.TotalRequests)
	}
	if result.Failures != 0 {
		t.Fatalf("expected zero failures, got %d", result.Failures)
	}
}

func TestRunCountsFailuresAgainstDeadGateway(t *testing.T) {
	result, err := Run(context.Background(), Config{
		BaseURL: "http://127.0.0.1:1",
		Devices: 2,
		Timeout: time.Second,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Failures == 0 || result.Failures != result.TotalRequests {
		t.Fatalf("expected every request to fail, got %+v", result)
	}
}

func TestRunRequiresBaseURL(t *testing.T) {
	if _, err := Run(context.Background(), Config{}); err == nil {
		t.Fatal("expected an error without a base url")
	}
}
