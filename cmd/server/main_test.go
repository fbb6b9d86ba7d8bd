package main

import (
	"testing"

	"kasirponsel/backend/internal/config"
)

func TestValidateSecurityConfigRejectsShortSecret(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short"})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongSecret(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestBuildSettingsParsesRate(t *testing.T) {
	settings, err := buildSettings(config.Config{GSTEnabled: true, GSTRatePercent: "18"})
	if err != nil {
		t.Fatalf("buildSettings: %v", err)
	}
	if !settings.TaxEnabled {
		t.Fatalf("expected tax enabled")
	}
	if settings.TaxRate.String() != "18" {
		t.Fatalf("expected rate 18, got %s", settings.TaxRate)
	}
}

func TestBuildSettingsRejectsBadRate(t *testing.T) {
	for _, raw := range []string{"abc", "-1", "101"} {
		if _, err := buildSettings(config.Config{GSTRatePercent: raw}); err == nil {
			t.Fatalf("expected rate %q to be rejected", raw)
		}
	}
}
