package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleKDL = `
// twbridge settings
url "ws://192.168.1.20:8787"
player "Steve"
player-policy "optional"
request-timeout "8s"
open-timeout "1500"
retries 3
ssh {
    tunnel "steve@gw.example.com:2022"
    key "/home/steve/.ssh/id_ed25519"
    known-hosts "/home/steve/.ssh/known_hosts"
}
`

func TestParseFile(t *testing.T) {
	cfg := Default()
	if err := ParseFile(cfg, []byte(sampleKDL)); err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	if cfg.URL != "ws://192.168.1.20:8787" || cfg.Player != "Steve" || cfg.PlayerPolicy != "optional" {
		t.Errorf("url=%q player=%q policy=%q", cfg.URL, cfg.Player, cfg.PlayerPolicy)
	}
	if cfg.RequestTimeout != 8*time.Second || cfg.OpenTimeout != 1500*time.Millisecond {
		t.Errorf("timeouts = %v / %v", cfg.OpenTimeout, cfg.RequestTimeout)
	}
	if cfg.Retries != 3 {
		t.Errorf("Retries = %d", cfg.Retries)
	}
	if cfg.TunnelSpec != "steve@gw.example.com:2022" || cfg.SSHKeyPath != "/home/steve/.ssh/id_ed25519" {
		t.Errorf("ssh: tunnel=%q key=%q", cfg.TunnelSpec, cfg.SSHKeyPath)
	}
	// Untouched values keep their defaults.
	if cfg.Code != "" || cfg.Breaker != 0 {
		t.Errorf("code=%q breaker=%d", cfg.Code, cfg.Breaker)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestParseFile_BadDuration(t *testing.T) {
	cfg := Default()
	if err := ParseFile(cfg, []byte(`request-timeout "soon"`)); err == nil {
		t.Fatal("expected error for bad duration")
	}
}

func TestParseFile_Syntax(t *testing.T) {
	cfg := Default()
	if err := ParseFile(cfg, []byte(`url "unterminated`)); err == nil {
		t.Fatal("expected syntax error")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twbridge.kdl")
	if err := os.WriteFile(path, []byte(`code "654321"`), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	if err := LoadFile(cfg, path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Code != "654321" || cfg.ConfigFile != path {
		t.Errorf("code=%q file=%q", cfg.Code, cfg.ConfigFile)
	}

	if err := LoadFile(Default(), filepath.Join(t.TempDir(), "missing.kdl")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDefaultFilePath_XDG(t *testing.T) {
	chdirTest(t, t.TempDir())
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	if got := DefaultFilePath(); got != "" {
		t.Fatalf("DefaultFilePath() = %q, want none", got)
	}

	p := filepath.Join(xdg, "twbridge", "config.kdl")
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if got := DefaultFilePath(); got != p {
		t.Errorf("DefaultFilePath() = %q, want %q", got, p)
	}

	if err := os.WriteFile(FileName, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if got := DefaultFilePath(); got != FileName {
		t.Errorf("working-directory file should win, got %q", got)
	}
}

// chdirTest changes the working directory to dir and restores it when the
// test finishes (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdirTest(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
