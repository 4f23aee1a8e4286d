package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	ncerr "twbridge/internal/errors"
)

// Pair opens the transport if needed (to url, when given) and trades
// the one-time code for a session bound to player.  On success the
// bridge is paired; a failure establishes no session.
func (b *Bridge) Pair(ctx context.Context, url, code, player string) error {
	player = strings.TrimSpace(player)
	if player == "" && b.policy == PlayerRequired {
		return ncerr.Missing("player")
	}
	if err := b.EnsureOpen(ctx, url); err != nil {
		return err
	}

	conn := b.current()
	code = strings.TrimSpace(code)
	res, err := b.call(ctx, Request{Cmd: CmdPair, Code: &code, Player: player})
	if err != nil {
		return pairError(err)
	}
	sid := res.Get("sessionId").String()
	if sid == "" {
		return ncerr.ErrPairingFailed
	}

	// Only bind if the transport the reply came over is still the
	// current one.
	b.mu.Lock()
	ok := b.conn == conn && conn != nil && b.sess.Establish(player, sid)
	b.mu.Unlock()
	if !ok {
		return ncerr.ErrDisconnected
	}

	b.metrics.Paired()
	if player != "" {
		b.logger.Info("paired as %s", player)
	} else {
		b.logger.Info("paired")
	}
	return nil
}

// pairError reports a server rejection, or the server dropping the
// socket with a reason, as a pairing failure.
func pairError(err error) error {
	var re *ncerr.RemoteError
	if errors.As(err, &re) {
		return fmt.Errorf("%w: %s", ncerr.ErrPairingFailed, re.Reason)
	}
	var ce *closedError
	if errors.As(err, &ce) {
		return fmt.Errorf("%w: %s", ncerr.ErrPairingFailed, ce.reason)
	}
	return err
}

// ready checks the session preconditions shared by every command.
func (b *Bridge) ready(needPlayer bool) error {
	snap := b.sess.Snapshot()
	if snap.ID == "" {
		return ncerr.ErrNotConnected
	}
	if needPlayer && b.policy == PlayerRequired && snap.Player == "" {
		return ncerr.ErrPlayerNotBound
	}
	return nil
}

// send runs the lazy reopen and the round trip for a validated request.
func (b *Bridge) send(ctx context.Context, req Request) (Result, error) {
	if b.current() == nil {
		if err := b.EnsureOpen(ctx, ""); err != nil {
			return Result{}, err
		}
	}
	return b.call(ctx, req)
}

// RunCommand executes a server command line as the paired session.
func (b *Bridge) RunCommand(ctx context.Context, command string) (Result, error) {
	if err := b.ready(false); err != nil {
		return Result{}, err
	}
	command, err := required("command", command)
	if err != nil {
		return Result{}, err
	}
	return b.send(ctx, Request{Cmd: CmdRun, Command: command})
}

// agentCall validates the session and agent id shared by agent commands.
func (b *Bridge) agentCall(agentID string) (string, error) {
	if err := b.ready(true); err != nil {
		return "", err
	}
	return required("agent id", agentID)
}

// TeleportAgent brings the agent to its player.
func (b *Bridge) TeleportAgent(ctx context.Context, agentID string) (Result, error) {
	id, err := b.agentCall(agentID)
	if err != nil {
		return Result{}, err
	}
	return b.send(ctx, Request{Cmd: CmdTeleport, AgentID: id})
}

// DespawnAgent removes the agent from the world.
func (b *Bridge) DespawnAgent(ctx context.Context, agentID string) (Result, error) {
	id, err := b.agentCall(agentID)
	if err != nil {
		return Result{}, err
	}
	return b.send(ctx, Request{Cmd: CmdDespawn, AgentID: id})
}

// MoveAgent moves the agent dist blocks toward direction.  The distance
// is rounded and clamped by [Steps].
func (b *Bridge) MoveAgent(ctx context.Context, agentID, direction string, dist float64) (Result, error) {
	id, err := b.agentCall(agentID)
	if err != nil {
		return Result{}, err
	}
	dir, err := oneOf("direction", direction, Directions)
	if err != nil {
		return Result{}, err
	}
	steps, err := Steps(dist)
	if err != nil {
		return Result{}, err
	}
	return b.send(ctx, Request{Cmd: CmdMove, AgentID: id, Direction: dir, Blocks: steps})
}

// RotateAgent turns the agent left or right.
func (b *Bridge) RotateAgent(ctx context.Context, agentID, turn string) (Result, error) {
	id, err := b.agentCall(agentID)
	if err != nil {
		return Result{}, err
	}
	dir, err := oneOf("direction", turn, Turns)
	if err != nil {
		return Result{}, err
	}
	return b.send(ctx, Request{Cmd: CmdRotate, AgentID: id, Direction: dir})
}

// ActivateSlot selects an inventory slot on the agent.
func (b *Bridge) ActivateSlot(ctx context.Context, agentID string, slot int) (Result, error) {
	id, err := b.agentCall(agentID)
	if err != nil {
		return Result{}, err
	}
	if err := checkSlot(slot); err != nil {
		return Result{}, err
	}
	return b.send(ctx, Request{Cmd: CmdSlotActivate, AgentID: id, Slot: slot})
}

// SetSlotBlock fills an agent inventory slot with count of block.  With
// a loaded catalog, block may be a display name and must be known.
func (b *Bridge) SetSlotBlock(ctx context.Context, agentID, block string, count, slot int) (Result, error) {
	id, err := b.agentCall(agentID)
	if err != nil {
		return Result{}, err
	}
	block, err = required("block", block)
	if err != nil {
		return Result{}, err
	}
	resolved, ok := b.catalog.Resolve(block)
	if !ok {
		return Result{}, ncerr.Invalid("block", block, "unknown block")
	}
	if err := checkCount(count); err != nil {
		return Result{}, err
	}
	if err := checkSlot(slot); err != nil {
		return Result{}, err
	}
	return b.send(ctx, Request{Cmd: CmdSlotSet, AgentID: id, Block: resolved, Amount: count, Slot: slot})
}

// PlaceBlock places the active slot's block next to the agent.
func (b *Bridge) PlaceBlock(ctx context.Context, agentID, direction string) (Result, error) {
	id, err := b.agentCall(agentID)
	if err != nil {
		return Result{}, err
	}
	dir, err := oneOf("direction", direction, Directions)
	if err != nil {
		return Result{}, err
	}
	return b.send(ctx, Request{Cmd: CmdPlace, AgentID: id, Direction: dir})
}

// LoadBlocks fetches the server's block list into the catalog and
// returns it.
func (b *Bridge) LoadBlocks(ctx context.Context) ([]Block, error) {
	if err := b.ready(false); err != nil {
		return nil, err
	}
	res, err := b.send(ctx, Request{Cmd: CmdListBlocks})
	if err != nil {
		return nil, err
	}
	blocks := parseBlocks(res)
	b.catalog.Replace(blocks)
	b.logger.Verbose("loaded %d block(s)", len(blocks))
	return b.catalog.Blocks(), nil
}
