package cluster

import "testing"

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.DunThreshold != 800 {
		t.Fatalf("DunThreshold = %d, want 800", cfg.DunThreshold)
	}
	if cfg.TenderInterval.Milliseconds() != 1200 {
		t.Fatalf("TenderInterval = %v, want 1.2s", cfg.TenderInterval)
	}
	if cfg.Logger == nil {
		t.Fatal("expected a default logger")
	}
}

func TestConfigNowInjectable(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.now().IsZero() {
		t.Fatal("expected now() to return a real time")
	}
}
