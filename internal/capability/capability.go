// Package capability defines what a host can do with a bridge.  Each
// Capability encapsulates a single opcode (pair, move an agent, print
// metrics, etc.) and operates on a Call rather than on the bridge's
// internals, which keeps opcodes testable against a fake bridge.
package capability

import (
	"context"

	"twbridge/internal/bridge"
	"twbridge/internal/metrics"
	"twbridge/internal/session"
)

// Capability handles a single opcode invocation.
type Capability interface {
	// Handle runs the opcode with the call's arguments.  It blocks
	// until the bridge answers or the context is cancelled.
	Handle(ctx context.Context, c *Call) error
}

// Func adapts a plain function to a Capability.
type Func func(ctx context.Context, c *Call) error

// Handle calls f.
func (f Func) Handle(ctx context.Context, c *Call) error { return f(ctx, c) }

// Bridge is the part of [bridge.Bridge] the opcodes drive.
type Bridge interface {
	Pair(ctx context.Context, url, code, player string) error
	Disconnect()
	IsConnected() bool
	CurrentPlayer() string
	Session() session.Snapshot
	Metrics() *metrics.Collector

	RunCommand(ctx context.Context, command string) (bridge.Result, error)
	TeleportAgent(ctx context.Context, agentID string) (bridge.Result, error)
	DespawnAgent(ctx context.Context, agentID string) (bridge.Result, error)
	MoveAgent(ctx context.Context, agentID, direction string, dist float64) (bridge.Result, error)
	RotateAgent(ctx context.Context, agentID, turn string) (bridge.Result, error)
	ActivateSlot(ctx context.Context, agentID string, slot int) (bridge.Result, error)
	SetSlotBlock(ctx context.Context, agentID, block string, count, slot int) (bridge.Result, error)
	PlaceBlock(ctx context.Context, agentID, direction string) (bridge.Result, error)
	LoadBlocks(ctx context.Context) ([]bridge.Block, error)
}

var _ Bridge = (*bridge.Bridge)(nil)

// Call is one parsed opcode line bound to the host that runs it.
type Call struct {
	*Host
	Name string
	Args []string
}

// Arg returns the i'th argument, or def when there are fewer.
func (c *Call) Arg(i int, def string) string {
	if i < len(c.Args) {
		return c.Args[i]
	}
	return def
}
