package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_ENV", "test") // no config/config.test.yaml exists

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 3000 {
		t.Errorf("expected default port 3000, got %d", cfg.Port)
	}
	if cfg.AuthTimeout != 10*time.Second {
		t.Errorf("expected 10s auth timeout, got %v", cfg.AuthTimeout)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Errorf("expected 24h session ttl, got %v", cfg.SessionTTL)
	}
	if cfg.SweepInterval != time.Hour {
		t.Errorf("expected 1h sweep interval, got %v", cfg.SweepInterval)
	}
	if cfg.SendBuffer != 32 || cfg.ReadLimit != 32768 {
		t.Errorf("unexpected buffer limits %d/%d", cfg.SendBuffer, cfg.ReadLimit)
	}
}
