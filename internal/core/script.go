package core

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"twbridge/internal/capability"
	"twbridge/util"
)

// ScriptMode runs one opcode per line from a file or stdin, then
// disconnects.
type ScriptMode struct {
	Path     string // "-" reads stdin
	Host     *capability.Host
	Bridge   io.Closer
	AutoPair bool // connect with the configured defaults first
	FailFast bool // stop at the first failing line
	Logger   *util.Logger

	// Input overrides Path.  Used by tests.
	Input io.Reader
}

func (m *ScriptMode) open() (io.Reader, func(), error) {
	switch {
	case m.Input != nil:
		return m.Input, func() {}, nil
	case m.Path == "-":
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(m.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("script: %w", err)
	}
	return f, func() { f.Close() }, nil
}

// Run executes the script.  Failing lines are logged with their line
// number; the run keeps going unless FailFast is set, and reports how
// many lines failed.
func (m *ScriptMode) Run(ctx context.Context) error {
	defer m.Bridge.Close()

	in, done, err := m.open()
	if err != nil {
		return err
	}
	defer done()

	if m.AutoPair {
		if err := m.Host.Run(ctx, "connect"); err != nil {
			return err
		}
	}

	sc := bufio.NewScanner(in)
	failed, n := 0, 0
	for sc.Scan() {
		n++
		err := m.Host.Exec(ctx, sc.Text())
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if m.FailFast {
			return fmt.Errorf("%s:%d: %w", m.name(), n, err)
		}
		failed++
		m.Logger.Error("%s:%d: %v", m.name(), n, err)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("script: %w", err)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d line(s) failed", failed, n)
	}
	return nil
}

func (m *ScriptMode) name() string {
	if m.Input != nil || m.Path == "-" {
		return "stdin"
	}
	return m.Path
}
