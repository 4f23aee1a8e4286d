package core

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"twbridge/config"
	"twbridge/internal/bridge"
	ncerr "twbridge/internal/errors"
	"twbridge/util"
)

// syncBuffer is a bytes.Buffer safe to share with the logger.
type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

// harness wires a real bridge and host to a bridgeServer.
type harness struct {
	bridge *bridge.Bridge
	out    *bytes.Buffer
	log    *syncBuffer
	logger *util.Logger
	cfg    *config.Config
}

func newHarness(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	h := &harness{out: &bytes.Buffer{}, log: &syncBuffer{}, cfg: cfg}
	h.logger = util.NewLogger(1)
	h.logger.SetOutput(h.log)
	b, err := NewBridge(cfg, h.logger)
	if err != nil {
		t.Fatal(err)
	}
	h.bridge = b
	return h
}

func (h *harness) script(text string) *ScriptMode {
	return &ScriptMode{
		Host:     NewHost(h.cfg, h.bridge, h.out, h.logger),
		Bridge:   h.bridge,
		AutoPair: false,
		Logger:   h.logger,
		Input:    strings.NewReader(text),
	}
}

func runWithTimeout(t *testing.T, m Mode) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.Run(ctx)
}

// TestScriptMode_Run verifies a script pairs, runs each line in order
// and disconnects at the end.
func TestScriptMode_Run(t *testing.T) {
	bs := newBridgeServer(t)
	h := newHarness(t, testConfig(bs.URL))
	m := h.script("connect\n\n# bring the agent over\nexecute say hi\nteleport agent1\nmove agent1 forward 3\n")

	if err := runWithTimeout(t, m); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{bridge.CmdPair, bridge.CmdRun, bridge.CmdTeleport, bridge.CmdMove}
	if got := bs.commands(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("commands = %v, want %v", got, want)
	}
	if !strings.HasPrefix(h.out.String(), "paired as Steve (session s-1)\nok\nok\nok\n") {
		t.Errorf("output = %q", h.out.String())
	}
	if h.bridge.IsConnected() {
		t.Error("bridge still connected after Run")
	}
}

// TestScriptMode_ContinuesAfterErrors verifies failing lines are
// logged with their line number and counted.
func TestScriptMode_ContinuesAfterErrors(t *testing.T) {
	bs := newBridgeServer(t)
	h := newHarness(t, testConfig(bs.URL))
	m := h.script("connect\nteleport ghost\nmove agent1 sideways\ndespawn agent1\n")

	err := runWithTimeout(t, m)
	if err == nil || err.Error() != "2 of 4 line(s) failed" {
		t.Fatalf("err = %v", err)
	}
	log := h.log.String()
	for _, want := range []string{"stdin:2: agent.teleportToPlayer: agent not found", "stdin:3: invalid direction"} {
		if !strings.Contains(log, want) {
			t.Errorf("log missing %q:\n%s", want, log)
		}
	}
	want := []string{bridge.CmdPair, bridge.CmdTeleport, bridge.CmdDespawn}
	if got := bs.commands(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("commands = %v, want %v", got, want)
	}
}

// TestScriptMode_FailFast verifies the first failure ends the run.
func TestScriptMode_FailFast(t *testing.T) {
	bs := newBridgeServer(t)
	h := newHarness(t, testConfig(bs.URL))
	m := h.script("connect\nteleport ghost\ndespawn agent1\n")
	m.FailFast = true

	err := runWithTimeout(t, m)
	var re *ncerr.RemoteError
	if !errors.As(err, &re) || !strings.HasPrefix(err.Error(), "stdin:2: ") {
		t.Fatalf("err = %v", err)
	}
	if got := len(bs.commands()); got != 2 {
		t.Errorf("%d commands sent, want 2", got)
	}
}

// TestScriptMode_AutoPair verifies a configured code pairs first and a
// rejected pairing stops the script.
func TestScriptMode_AutoPair(t *testing.T) {
	bs := newBridgeServer(t)

	h := newHarness(t, testConfig(bs.URL))
	m := h.script("player\n")
	m.AutoPair = true
	if err := runWithTimeout(t, m); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(h.out.String(), "Steve\n") {
		t.Errorf("output = %q", h.out.String())
	}

	cfg := testConfig(bs.URL)
	cfg.Code = "bad"
	h = newHarness(t, cfg)
	m = h.script("player\n")
	m.AutoPair = true
	err := runWithTimeout(t, m)
	if !errors.Is(err, ncerr.ErrPairingFailed) || !strings.Contains(err.Error(), "invalid code") {
		t.Fatalf("err = %v", err)
	}
	if h.out.Len() != 0 {
		t.Errorf("script ran after failed pairing: %q", h.out.String())
	}
}

// TestScriptMode_LoadBlocks verifies --load-blocks fetches the catalog
// right after pairing.
func TestScriptMode_LoadBlocks(t *testing.T) {
	bs := newBridgeServer(t)
	cfg := testConfig(bs.URL)
	cfg.LoadBlocks = true
	h := newHarness(t, cfg)

	if err := runWithTimeout(t, h.script("connect\n")); err != nil {
		t.Fatal(err)
	}
	want := []string{bridge.CmdPair, bridge.CmdListBlocks}
	if got := bs.commands(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("commands = %v, want %v", got, want)
	}
	if id, ok := h.bridge.Catalog().Resolve("STONE"); !ok || id != "stone" {
		t.Errorf("Resolve(STONE) = %q, %v", id, ok)
	}
}

// TestScriptMode_MissingFile verifies an unreadable script is reported.
func TestScriptMode_MissingFile(t *testing.T) {
	h := newHarness(t, testConfig(config.DefaultURL))
	m := h.script("")
	m.Input = nil
	m.Path = t.TempDir() + "/missing.tw"
	if err := runWithTimeout(t, m); err == nil || !strings.HasPrefix(err.Error(), "script: ") {
		t.Fatalf("err = %v", err)
	}
}
