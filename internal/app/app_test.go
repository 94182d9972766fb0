package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/relaymesh/devicegate/internal/config"
)

func sandboxConfig(redisAddr string) *config.Config {
	return &config.Config{
		Profile:            config.ProfileSandbox,
		HTTPAddr:           "127.0.0.1:0",
		DatabaseDriver:     "sqlite",
		DatabaseDSN:        ":memory:",
		RedisAddr:          redisAddr,
		ChallengeKeyPrefix: "device_challenge",
		ChallengeTTL:       time.Minute,
		KeyCacheTTL:        time.Minute,
		MessagesTable:      "relay_messages",
		APIRateLimitRPM:    1000,
		ShutdownTimeout:    time.Second,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewBootsSandboxGateway(t *testing.T) {
	redisServer := miniredis.RunT(t)

	application, err := New(context.Background(), sandboxConfig(redisServer.Addr()), quietLogger())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() { _ = application.Close() })

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	application.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected ready gateway, got %d: %s", rec.Code, rec.Body.String())
	}
	for _, check := range []string{"sessions-table", "public-keys-table", "messages-table", "challenge-store"} {
		if !strings.Contains(rec.Body.String(), check) {
			t.Fatalf("readiness body missing check %q: %s", check, rec.Body.String())
		}
	}
}

func TestNewRefusesToStartWithoutChallengeStore(t *testing.T) {
	cfg := sandboxConfig("127.0.0.1:1")

	if _, err := New(context.Background(), cfg, quietLogger()); err == nil {
		t.Fatal("expected boot to fail when the challenge store is unreachable")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	redisServer := miniredis.RunT(t)

	application, err := New(context.Background(), sandboxConfig(redisServer.Addr()), quietLogger())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() { _ = application.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after context cancellation")
	}
}
