package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.TenantRoleName != "SaltwareCrossAccount" {
		t.Errorf("expected default tenant role, got %q", cfg.TenantRoleName)
	}
	if cfg.CredentialTTL() != 50*time.Minute {
		t.Errorf("expected 50m TTL, got %s", cfg.CredentialTTL())
	}
	if cfg.ArtifactRoot != "/tmp/reports" {
		t.Errorf("expected /tmp/reports, got %q", cfg.ArtifactRoot)
	}
	if cfg.RetentionReportDays != 2 || cfg.RetentionScreenerDays != 3 {
		t.Errorf("unexpected retention defaults: %d/%d",
			cfg.RetentionReportDays, cfg.RetentionScreenerDays)
	}
	if cfg.PrimaryRegion != "ap-northeast-2" {
		t.Errorf("expected ap-northeast-2, got %q", cfg.PrimaryRegion)
	}
	// Role session names read "SlackBot-<account_id>" downstream.
	if cfg.SessionNamePrefix != "SlackBot" {
		t.Errorf("expected SlackBot prefix, got %q", cfg.SessionNamePrefix)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TrustedAdvisorRegion != "us-east-1" {
		t.Errorf("expected us-east-1, got %q", cfg.TrustedAdvisorRegion)
	}
}

func TestLoadFileAndEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := DefaultConfig()
	cfg.ArtifactRoot = filepath.Join(dir, "reports")
	cfg.CredentialTTLMinutes = 30
	if err := Save(cfg, path); err != nil {
		t.Fatalf("save: %v", err)
	}

	os.Setenv("OPSASSIST_URL_PREFIX", "http://reports.internal/reports")
	os.Setenv("OPSASSIST_CREDENTIAL_TTL_MINUTES", "45")
	defer os.Unsetenv("OPSASSIST_URL_PREFIX")
	defer os.Unsetenv("OPSASSIST_CREDENTIAL_TTL_MINUTES")

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.ArtifactRoot != cfg.ArtifactRoot {
		t.Errorf("file value not applied: %q", loaded.ArtifactRoot)
	}
	if loaded.URLPrefix != "http://reports.internal/reports" {
		t.Errorf("env override not applied: %q", loaded.URLPrefix)
	}
	if loaded.CredentialTTLMinutes != 45 {
		t.Errorf("env should beat file, got %d", loaded.CredentialTTLMinutes)
	}
}

func TestSavePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfgdir", "config.json")
	if err := Save(DefaultConfig(), path); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected 0600, got %o", info.Mode().Perm())
	}
}
