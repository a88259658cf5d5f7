package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MQTTBroker != "localhost" || cfg.MQTTPort != 1883 {
		t.Errorf("broker %s:%d, want localhost:1883", cfg.MQTTBroker, cfg.MQTTPort)
	}
	if cfg.PowerThreshold != 30 {
		t.Errorf("power threshold %v, want 30", cfg.PowerThreshold)
	}
	if cfg.DefaultDailyMinutes != 125 {
		t.Errorf("default daily minutes %d, want 125", cfg.DefaultDailyMinutes)
	}
	if cfg.TickInterval() != 2*time.Minute {
		t.Errorf("tick interval %v, want 2m", cfg.TickInterval())
	}
	if cfg.StaleThreshold() != 80*time.Second {
		t.Errorf("stale threshold %v, want 80s", cfg.StaleThreshold())
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("MQTT_BROKER", "broker.example.com")
	t.Setenv("TICK_INTERVAL_MINUTES", "5")
	t.Setenv("POWER_THRESHOLD", "45.5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MQTTBroker != "broker.example.com" {
		t.Errorf("broker %q", cfg.MQTTBroker)
	}
	if cfg.TickInterval() != 5*time.Minute {
		t.Errorf("tick interval %v, want 5m", cfg.TickInterval())
	}
	if cfg.PowerThreshold != 45.5 {
		t.Errorf("power threshold %v, want 45.5", cfg.PowerThreshold)
	}
}

func TestLoadRequiresBotToken(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")

	_, err := Load("")
	if !errors.Is(err, ErrMissingBotToken) {
		t.Fatalf("expected ErrMissingBotToken, got %v", err)
	}
}

func TestLoadRejectsBadPort(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("MQTT_PORT", "70000")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
}

func TestIsAdmin(t *testing.T) {
	cfg := &Config{AdminIDs: []int64{1, 42}}
	if !cfg.IsAdmin(42) {
		t.Error("42 should be admin")
	}
	if cfg.IsAdmin(7) {
		t.Error("7 should not be admin")
	}
}
