package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	ncerr "twbridge/internal/errors"
)

// isolate hides any real config file and TWBRIDGE_* variables and
// captures stdout.
func isolate(t *testing.T) *bytes.Buffer {
	t.Helper()
	dir := t.TempDir()
	chdirTest(t, dir)
	t.Setenv("XDG_CONFIG_HOME", dir)
	for _, k := range []string{"URL", "CODE", "PLAYER", "PLAYER_POLICY", "OPEN_TIMEOUT",
		"REQUEST_TIMEOUT", "RETRIES", "BREAKER", "SCRIPT", "FAIL_FAST", "LOAD_BLOCKS",
		"TUNNEL", "SSH_KEY", "SSH_PASSWORD", "SSH_AGENT", "STRICT_HOSTKEY", "KNOWN_HOSTS",
		"VERBOSE", "CONFIG"} {
		t.Setenv("TWBRIDGE_"+k, "")
	}
	buf := &bytes.Buffer{}
	old := stdout
	stdout = buf
	t.Cleanup(func() { stdout = old })
	return buf
}

// TestExecute_Version verifies --version prints a version string.
func TestExecute_Version(t *testing.T) {
	out := isolate(t)
	if err := Execute(context.Background(), []string{"--version"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.String() != "twbridge "+version+"\n" {
		t.Errorf("output = %q", out.String())
	}
}

// TestExecute_Help verifies --help prints usage and every flag.
func TestExecute_Help(t *testing.T) {
	out := isolate(t)
	if err := Execute(context.Background(), []string{"-h"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"Usage:", "--url", "--tunnel", "--fail-fast", "twbridge.kdl"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("help missing %q", want)
		}
	}
}

// TestExecute_DryRun verifies --dry-run validates, normalises and
// prints the configuration without connecting.
func TestExecute_DryRun(t *testing.T) {
	out := isolate(t)
	err := Execute(context.Background(), []string{
		"--url", "10.0.0.9:9000", "-p", "Alex", "--code", "123456", "--retries", "2", "--dry-run",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{`"url": "ws://10.0.0.9:9000"`, `"player": "Alex"`, `"code": "******"`,
		`"retries": 2`, `"player_policy": "required"`} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("dry run missing %s:\n%s", want, out.String())
		}
	}
	if strings.Contains(out.String(), "123456") {
		t.Error("pairing code leaked into dry-run output")
	}
}

// TestExecute_Precedence verifies flags beat the environment, which
// beats the config file.
func TestExecute_Precedence(t *testing.T) {
	out := isolate(t)
	kdl := "url \"ws://10.0.0.1:8787\"\nplayer \"FromFile\"\nverbose 2\n"
	if err := os.WriteFile("twbridge.kdl", []byte(kdl), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TWBRIDGE_PLAYER", "FromEnv")

	if err := Execute(context.Background(), []string{"--dry-run"}); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"url": "ws://10.0.0.1:8787"`, `"player": "FromEnv"`, `"verbose": 2`,
		`"config_file": "twbridge.kdl"`} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("missing %s:\n%s", want, out.String())
		}
	}

	out.Reset()
	if err := Execute(context.Background(), []string{"--dry-run", "-p", "FromFlag", "-v"}); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"player": "FromFlag"`, `"verbose": 1`} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("missing %s:\n%s", want, out.String())
		}
	}
}

// TestExecute_ConfigFlag verifies --config names the file to load and
// that a missing one is an error.
func TestExecute_ConfigFlag(t *testing.T) {
	out := isolate(t)
	path := filepath.Join(t.TempDir(), "bridge.kdl")
	if err := os.WriteFile(path, []byte(`player-policy "optional"`), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := Execute(context.Background(), []string{"--config=" + path, "--dry-run"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), `"player_policy": "optional"`) {
		t.Errorf("output:\n%s", out.String())
	}

	if err := Execute(context.Background(), []string{"--config", "nope.kdl", "--dry-run"}); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

// TestExecute_TunnelUserDefault verifies the tunnel user falls back to
// $USER.
func TestExecute_TunnelUserDefault(t *testing.T) {
	out := isolate(t)
	t.Setenv("USER", "steve")
	if err := Execute(context.Background(), []string{"-T", "gw.example.com:2022", "--dry-run"}); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"user": "steve"`, `"host": "gw.example.com"`, `"port": 2022`} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("missing %s:\n%s", want, out.String())
		}
	}
}

// TestExecute_Invalid verifies bad input is rejected before any I/O.
func TestExecute_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
		cfg  bool // expect a *ConfigError
	}{
		{"unknown flag", []string{"--nonexistent-flag"}, false},
		{"positional", []string{"localhost"}, false},
		{"policy", []string{"--player-policy", "sometimes", "--dry-run"}, true},
		{"scheme", []string{"--url", "ftp://host", "--dry-run"}, true},
		{"ssh without tunnel", []string{"--ssh-agent", "--dry-run"}, true},
		{"timeout", []string{"--open-timeout", "0s", "--dry-run"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			err := Execute(context.Background(), tt.args)
			if err == nil {
				t.Fatal("expected error")
			}
			var ce *ncerr.ConfigError
			if tt.cfg != errors.As(err, &ce) {
				t.Errorf("err = %v (%T), config error expected: %v", err, err, tt.cfg)
			}
		})
	}
}

// TestExecute_MissingScript verifies a script run reaches the core and
// reports an unreadable file.
func TestExecute_MissingScript(t *testing.T) {
	isolate(t)
	err := Execute(context.Background(), []string{"-f", "missing.tw"})
	if err == nil || !strings.HasPrefix(err.Error(), "script: ") {
		t.Fatalf("err = %v", err)
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
