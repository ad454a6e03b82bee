package grpcserver

import "testing"

func TestConfigApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}

	cfg = Config{Port: 1234}
	cfg.applyDefaults()
	if cfg.Port != 1234 {
		t.Errorf("Port = %d, want 1234 (explicit value preserved)", cfg.Port)
	}
}
