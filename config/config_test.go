package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	ncerr "twbridge/internal/errors"
)

func TestParseTunnelSpec(t *testing.T) {
	tests := []struct {
		spec     string
		wantUser string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{"admin@bastion.example.com", "admin", "bastion.example.com", 22, false},
		{"admin@bastion.example.com:2222", "admin", "bastion.example.com", 2222, false},
		{"bastion.example.com", "", "bastion.example.com", 22, false},
		{"gw:2200", "", "gw", 2200, false},
		{"user@host:0", "", "", 0, true},
		{"user@host:99999", "", "", 0, true},
		{"", "", "", 0, true},
		{"a@b@c", "", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			user, host, port, err := ParseTunnelSpec(tt.spec)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.spec)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if user != tt.wantUser || host != tt.wantHost || port != tt.wantPort {
				t.Errorf("got %q %q %d, want %q %q %d", user, host, port, tt.wantUser, tt.wantHost, tt.wantPort)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.URL != DefaultURL || cfg.OpenTimeout != 3*time.Second || cfg.RequestTimeout != 5*time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.PlayerPolicy != PolicyRequired || cfg.TunnelEnabled {
		t.Errorf("policy=%q tunnel=%v", cfg.PlayerPolicy, cfg.TunnelEnabled)
	}
}

func TestValidate_Normalises(t *testing.T) {
	cfg := Default()
	cfg.URL = "192.168.1.20:8787"
	cfg.PlayerPolicy = " Optional "
	cfg.TunnelSpec = "steve@gw.example.com:2022"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.URL != "ws://192.168.1.20:8787" {
		t.Errorf("URL = %q", cfg.URL)
	}
	if cfg.PlayerPolicy != PolicyOptional {
		t.Errorf("PlayerPolicy = %q", cfg.PlayerPolicy)
	}
	if !cfg.TunnelEnabled || cfg.TunnelUser != "steve" || cfg.TunnelHost != "gw.example.com" || cfg.TunnelPort != 2022 {
		t.Errorf("tunnel = %v %q %q %d", cfg.TunnelEnabled, cfg.TunnelUser, cfg.TunnelHost, cfg.TunnelPort)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		field   string
		wantSub string
	}{
		{"bad scheme", func(c *Config) { c.URL = "ftp://x" }, "url", "hint:"},
		{"zero open timeout", func(c *Config) { c.OpenTimeout = 0 }, "open-timeout", "must be positive"},
		{"negative request timeout", func(c *Config) { c.RequestTimeout = -time.Second }, "request-timeout", "must be positive"},
		{"unknown policy", func(c *Config) { c.PlayerPolicy = "sometimes" }, "player-policy", "use required or optional"},
		{"negative retries", func(c *Config) { c.Retries = -1 }, "retries", "must not be negative"},
		{"negative breaker", func(c *Config) { c.Breaker = -2 }, "breaker", "must not be negative"},
		{"bad tunnel", func(c *Config) { c.TunnelSpec = "x@y:abc" }, "tunnel", "invalid tunnel spec"},
		{"ssh flags without tunnel", func(c *Config) { c.UseSSHAgent = true }, "tunnel", "--tunnel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			var ce *ncerr.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if ce.Field != tt.field {
				t.Errorf("Field = %q, want %q", ce.Field, tt.field)
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q should contain %q", err.Error(), tt.wantSub)
			}
		})
	}
}
