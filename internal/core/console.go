package core

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"twbridge/internal/capability"
	"twbridge/util"
)

// ConsoleMode reads opcodes from stdin until EOF, "quit" or
// cancellation.  Errors are reported and the console keeps going.
type ConsoleMode struct {
	Host        *capability.Host
	Bridge      io.Closer
	AutoPair    bool
	Interactive bool // print a prompt before each line
	Logger      *util.Logger

	// Stdin defaults to os.Stdin when nil.
	Stdin io.Reader
}

func (m *ConsoleMode) stdin() io.Reader {
	if m.Stdin != nil {
		return m.Stdin
	}
	return os.Stdin
}

// Run serves the console.  Reading stdin cannot be interrupted, so
// lines are scanned on their own goroutine and Run returns as soon as
// ctx is done.
func (m *ConsoleMode) Run(ctx context.Context) error {
	defer m.Bridge.Close()

	if m.AutoPair {
		if err := m.Host.Run(ctx, "connect"); err != nil {
			m.Logger.Error("%v", err)
		}
	}
	if m.Interactive {
		fmt.Fprintln(m.Host.Out, `twbridge console; "help" lists commands, "quit" leaves`)
	}

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(m.stdin())
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		m.prompt()
		select {
		case <-ctx.Done():
			return nil
		case err := <-scanErr:
			return err
		case line := <-lines:
			switch strings.TrimSpace(line) {
			case "quit", "exit":
				return nil
			}
			if err := m.Host.Exec(ctx, line); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				m.Logger.Error("%v", err)
			}
		}
	}
}

// prompt shows the paired player, if any.
func (m *ConsoleMode) prompt() {
	if !m.Interactive {
		return
	}
	if p := m.Host.Bridge.CurrentPlayer(); p != "" {
		fmt.Fprintf(m.Host.Out, "twbridge(%s)> ", p)
		return
	}
	fmt.Fprint(m.Host.Out, "twbridge> ")
}
