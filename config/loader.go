package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Config file  (file.go)
//   4. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the TWBRIDGE_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).  Durations accept Go
// syntax ("750ms", "3s") or a bare number of milliseconds.

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  Call it after the config file
// and before flag parsing.
func LoadFromEnv(cfg *Config) {
	if v := env("URL"); v != "" {
		cfg.URL = v
	}
	if v := env("CODE"); v != "" {
		cfg.Code = v
	}
	if v := env("PLAYER"); v != "" {
		cfg.Player = v
	}
	if v := env("PLAYER_POLICY"); v != "" {
		cfg.PlayerPolicy = v
	}
	if d := envDuration("OPEN_TIMEOUT"); d > 0 {
		cfg.OpenTimeout = d
	}
	if d := envDuration("REQUEST_TIMEOUT"); d > 0 {
		cfg.RequestTimeout = d
	}
	if n, ok := envInt("RETRIES"); ok {
		cfg.Retries = n
	}
	if n, ok := envInt("BREAKER"); ok {
		cfg.Breaker = n
	}
	if v := env("SCRIPT"); v != "" {
		cfg.Script = v
	}
	if envBool("FAIL_FAST") {
		cfg.FailFast = true
	}
	if envBool("LOAD_BLOCKS") {
		cfg.LoadBlocks = true
	}

	// SSH tunnel
	if v := env("TUNNEL"); v != "" {
		cfg.TunnelSpec = v
	}
	if v := env("SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if envBool("SSH_PASSWORD") {
		cfg.SSHPassword = true
	}
	if envBool("SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	if v := env("KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}

	// Output
	if n, ok := envInt("VERBOSE"); ok && n > 0 {
		cfg.Verbose = n
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func env(key string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + key))
}

func envInt(key string) (int, bool) {
	v := env(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(key string) bool {
	v := strings.ToLower(env(key))
	return v == "1" || v == "true" || v == "yes"
}

func envDuration(key string) time.Duration {
	d, _ := parseDuration(env(key))
	return d
}

// parseDuration accepts Go duration syntax or plain milliseconds.
func parseDuration(v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(v)
}
