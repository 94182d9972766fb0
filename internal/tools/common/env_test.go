package common

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnvFileMissingIsNoop(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}
}

func TestLoadEnvFileLoadsAndPreservesExisting(t *testing.T) {
	t.Setenv("DEVICEGATE_PROFILE", "production")
	file := filepath.Join(t.TempDir(), "devicegate.env")
	content := "# local overrides\nDEVICEGATE_PROFILE=sandbox\nDEVICEGATE_REDIS_ADDR=localhost:6380\nDEVICEGATE_DB_DSN=\"local.db\"\nNOT A PAIR\n"
	if err := os.WriteFile(file, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	if err := LoadEnvFile(file); err != nil {
		t.Fatalf("load env file: %v", err)
	}
	if got := os.Getenv("DEVICEGATE_PROFILE"); got != "production" {
		t.Fatalf("existing var must be preserved, got %q", got)
	}
	if got := os.Getenv("DEVICEGATE_REDIS_ADDR"); got != "localhost:6380" {
		t.Fatalf("unexpected DEVICEGATE_REDIS_ADDR=%q", got)
	}
	if got := os.Getenv("DEVICEGATE_DB_DSN"); got != "local.db" {
		t.Fatalf("quotes must be stripped, got %q", got)
	}
	t.Cleanup(func() {
		_ = os.Unsetenv("DEVICEGATE_REDIS_ADDR")
		_ = os.Unsetenv("DEVICEGATE_DB_DSN")
	})
}

func TestLoadEnvFileOpenError(t *testing.T) {
	if err := LoadEnvFile(t.TempDir()); err == nil {
		t.Fatal("expected error when path is a directory")
	}
}
