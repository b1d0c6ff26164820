package config

import (
	"testing"
)

func TestLoadRequiresSessionSecret(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error without SESSION_SECRET")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "secret")
	t.Setenv("PORT", "")
	t.Setenv("DEFAULT_TRIAL_DAYS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.DefaultTrialDays != 30 {
		t.Errorf("DefaultTrialDays = %d, want 30", cfg.DefaultTrialDays)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "auto" {
		t.Errorf("log defaults = %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
}

func TestLoadRejectsInvalidTrialDays(t *testing.T) {
	t.Setenv("SESSION_SECRET", "secret")

	t.Setenv("DEFAULT_TRIAL_DAYS", "not-a-number")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for non-numeric DEFAULT_TRIAL_DAYS")
	}

	t.Setenv("DEFAULT_TRIAL_DAYS", "-5")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for negative DEFAULT_TRIAL_DAYS")
	}
}
