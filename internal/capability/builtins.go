package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/pretty"

	"twbridge/internal/bridge"
	ncerr "twbridge/internal/errors"
)

// Builtins returns a registry holding every opcode the host supports.
func Builtins() *Registry {
	r := NewRegistry()
	for _, s := range []Spec{
		{Name: "help", Usage: "[command]", Summary: "list commands", MaxArgs: 1, Capability: Func(help)},
		{Name: "connect", Usage: "[url] [code] [player]", Summary: "open the websocket and pair (\"-\" keeps the configured value)", MaxArgs: 3, Capability: Func(connect)},
		{Name: "disconnect", Summary: "drop the session and close the websocket", Capability: Func(disconnect)},
		{Name: "connected", Summary: "print whether the websocket is open", Capability: Func(connected)},
		{Name: "player", Summary: "print the paired player", Capability: Func(player)},
		{Name: "status", Summary: "print the session state", Capability: Func(status)},
		{Name: "execute", Usage: "<command...>", Summary: "run a server command", MinArgs: 1, MaxArgs: -1, Capability: Func(execute)},
		{Name: "teleport", Usage: "<agent>", Summary: "bring the agent to the player", MinArgs: 1, MaxArgs: 1, Capability: agentOp(Bridge.TeleportAgent)},
		{Name: "despawn", Usage: "<agent>", Summary: "remove the agent", MinArgs: 1, MaxArgs: 1, Capability: agentOp(Bridge.DespawnAgent)},
		{Name: "move", Usage: "<agent> <direction> [blocks]", Summary: "move the agent (" + strings.Join(bridge.Directions, "|") + ")", MinArgs: 2, MaxArgs: 3, Capability: Func(move)},
		{Name: "rotate", Usage: "<agent> <left|right>", Summary: "turn the agent", MinArgs: 2, MaxArgs: 2, Capability: Func(rotate)},
		{Name: "slot", Usage: "<agent> <slot>", Summary: "activate an inventory slot (1-27)", MinArgs: 2, MaxArgs: 2, Capability: Func(slot)},
		{Name: "setslot", Usage: "<agent> <block> <amount> <slot>", Summary: "fill an inventory slot", MinArgs: 4, MaxArgs: 4, Capability: Func(setSlot)},
		{Name: "place", Usage: "<agent> <direction>", Summary: "place the active block", MinArgs: 2, MaxArgs: 2, Capability: Func(place)},
		{Name: "blocks", Summary: "load and list the server's blocks", Capability: Func(blocks)},
		{Name: "stats", Summary: "print client metrics", Capability: Func(stats)},
		{Name: "wait", Usage: "<duration>", Summary: "pause, e.g. wait 500ms", MinArgs: 1, MaxArgs: 1, Capability: Func(wait)},
	} {
		r.Register(s)
	}
	return r
}

func help(_ context.Context, c *Call) error {
	specs := c.reg.Specs()
	if name := c.Arg(0, ""); name != "" {
		s, ok := c.reg.Lookup(name)
		if !ok {
			return fmt.Errorf("%w %q", ErrUnknownOpcode, name)
		}
		specs = []*Spec{s}
	}
	for _, s := range specs {
		fmt.Fprintf(c.Out, "  %-32s %s\n", strings.TrimSpace(s.Name+" "+s.Usage), s.Summary)
	}
	return nil
}

// orDefault treats a missing argument or "-" as the configured value.
func (c *Call) orDefault(i int, def string) string {
	if v := c.Arg(i, "-"); v != "-" {
		return v
	}
	return def
}

func connect(ctx context.Context, c *Call) error {
	url := c.orDefault(0, c.Defaults.URL)
	code := c.orDefault(1, c.Defaults.Code)
	who := c.orDefault(2, c.Defaults.Player)

	pair := func(int) error { return c.Bridge.Pair(ctx, url, code, who) }
	var err error
	if c.PairRetry != nil {
		b := *c.PairRetry
		b.Retryable = ncerr.IsRetryable
		b.OnRetry = func(attempt int, err error, wait time.Duration) {
			c.Logger.Warn("pair attempt %d: %v; retrying in %s", attempt, err, wait.Round(time.Millisecond))
		}
		err = b.Do(ctx, pair)
	} else {
		err = pair(1)
	}
	if err != nil {
		return err
	}

	snap := c.Bridge.Session()
	if snap.Player != "" {
		fmt.Fprintf(c.Out, "paired as %s (session %s)\n", snap.Player, snap.ID)
	} else {
		fmt.Fprintf(c.Out, "paired (session %s)\n", snap.ID)
	}

	if c.LoadBlocks {
		if list, err := c.Bridge.LoadBlocks(ctx); err != nil {
			c.Logger.Warn("block list unavailable: %v", err)
		} else {
			c.Logger.Info("%d block(s) available", len(list))
		}
	}
	return nil
}

func disconnect(_ context.Context, c *Call) error {
	c.Bridge.Disconnect()
	fmt.Fprintln(c.Out, "disconnected")
	return nil
}

func connected(_ context.Context, c *Call) error {
	fmt.Fprintln(c.Out, strconv.FormatBool(c.Bridge.IsConnected()))
	return nil
}

func player(_ context.Context, c *Call) error {
	fmt.Fprintln(c.Out, c.Bridge.CurrentPlayer())
	return nil
}

func status(_ context.Context, c *Call) error {
	data, err := json.Marshal(c.Bridge.Session())
	if err != nil {
		return err
	}
	c.printJSON(data)
	return nil
}

func execute(ctx context.Context, c *Call) error {
	return c.printResult(c.Bridge.RunCommand(ctx, strings.Join(c.Args, " ")))
}

// agentOp builds the opcodes whose only argument is an agent id.
func agentOp(op func(Bridge, context.Context, string) (bridge.Result, error)) Capability {
	return Func(func(ctx context.Context, c *Call) error {
		return c.printResult(op(c.Bridge, ctx, c.Args[0]))
	})
}

func move(ctx context.Context, c *Call) error {
	// A missing count moves one block; junk is rejected by the bridge.
	dist := 0.0
	if v := c.Arg(2, ""); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			f = math.NaN()
		}
		dist = f
	}
	return c.printResult(c.Bridge.MoveAgent(ctx, c.Args[0], c.Args[1], dist))
}

func rotate(ctx context.Context, c *Call) error {
	return c.printResult(c.Bridge.RotateAgent(ctx, c.Args[0], c.Args[1]))
}

func slot(ctx context.Context, c *Call) error {
	n, err := intArg("slot", c.Args[1], "slot must be 1-27")
	if err != nil {
		return err
	}
	return c.printResult(c.Bridge.ActivateSlot(ctx, c.Args[0], n))
}

func setSlot(ctx context.Context, c *Call) error {
	count, err := intArg("amount", c.Args[2], "amount must be 1-64")
	if err != nil {
		return err
	}
	n, err := intArg("slot", c.Args[3], "slot must be 1-27")
	if err != nil {
		return err
	}
	return c.printResult(c.Bridge.SetSlotBlock(ctx, c.Args[0], c.Args[1], count, n))
}

func place(ctx context.Context, c *Call) error {
	return c.printResult(c.Bridge.PlaceBlock(ctx, c.Args[0], c.Args[1]))
}

func blocks(ctx context.Context, c *Call) error {
	list, err := c.Bridge.LoadBlocks(ctx)
	if err != nil {
		return err
	}
	for _, b := range list {
		if b.Name != "" && b.Name != b.ID {
			fmt.Fprintf(c.Out, "%s\t%s\n", b.ID, b.Name)
		} else {
			fmt.Fprintln(c.Out, b.ID)
		}
	}
	fmt.Fprintf(c.Out, "%d block(s)\n", len(list))
	return nil
}

func stats(_ context.Context, c *Call) error {
	c.printJSON([]byte(c.Bridge.Metrics().JSON()))
	return nil
}

func wait(ctx context.Context, c *Call) error {
	d, err := time.ParseDuration(c.Args[0])
	if err != nil || d < 0 {
		return ncerr.Invalid("duration", c.Args[0], "invalid duration")
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func intArg(name, v, msg string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, ncerr.Invalid(name, v, msg)
	}
	return n, nil
}

// printResult prints a command's payload, or "ok" when the server sent
// nothing beyond success.
func (c *Call) printResult(res bridge.Result, err error) error {
	if err != nil {
		return err
	}
	p := bytes.TrimSpace(res.Payload)
	switch string(p) {
	case "", "{}", "null", "true":
		fmt.Fprintln(c.Out, "ok")
		return nil
	}
	c.printJSON(p)
	return nil
}

func (c *Call) printJSON(raw []byte) {
	out := pretty.Pretty(raw)
	if c.Color {
		out = pretty.Color(out, nil)
	}
	c.Out.Write(out) //nolint:errcheck
}
