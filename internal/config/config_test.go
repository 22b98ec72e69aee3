package config

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestLoad_DefaultsAndFileValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "judge.conf")
	contents := "SECRET_KEY=abc123\nADMIN_PASSWORD=letmein\nPORT=9100\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SecretKey != "abc123" {
		t.Errorf("secret key = %q", cfg.SecretKey)
	}
	if cfg.Port != 9100 {
		t.Errorf("port = %d, want 9100", cfg.Port)
	}
	if cfg.MaxChecks != defaultMaxChecks {
		t.Errorf("max checks = %d, want default %d", cfg.MaxChecks, defaultMaxChecks)
	}
	if err := bcrypt.CompareHashAndPassword(cfg.AdminPasswordHash, []byte("letmein")); err != nil {
		t.Errorf("admin password did not hash correctly: %v", err)
	}
}

func TestLoad_MissingAdminPassword(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "judge.conf")
	if err := os.WriteFile(path, []byte("SECRET_KEY=abc\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing ADMIN_PASSWORD")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "judge.conf")
	if err := os.WriteFile(path, []byte("ADMIN_PASSWORD=letmein\nPORT=9000\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("JUDGE_PORT", "9500")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 9500 {
		t.Errorf("port = %d, want env override 9500", cfg.Port)
	}
}
