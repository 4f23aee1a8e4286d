package core

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"twbridge/config"
	"twbridge/internal/bridge"
	"twbridge/internal/capability"
	"twbridge/internal/retry"
	"twbridge/internal/transport"
	"twbridge/tunnel"
	"twbridge/util"
)

// Build constructs the Mode for a validated configuration: ScriptMode
// when a script is named, ConsoleMode otherwise.
func Build(cfg *config.Config, logger *util.Logger) (Mode, error) {
	b, err := NewBridge(cfg, logger)
	if err != nil {
		return nil, err
	}
	host := NewHost(cfg, b, os.Stdout, logger)

	if cfg.Script != "" {
		return &ScriptMode{
			Path:     cfg.Script,
			Host:     host,
			Bridge:   b,
			AutoPair: cfg.Code != "",
			FailFast: cfg.FailFast,
			Logger:   logger,
		}, nil
	}
	return &ConsoleMode{
		Host:        host,
		Bridge:      b,
		AutoPair:    cfg.Code != "",
		Interactive: isTerminal(os.Stdin),
		Logger:      logger,
	}, nil
}

// NewBridge builds a bridge client from cfg: its dialer (direct or
// through the SSH gateway), the optional open breaker, timeouts and
// player policy.
func NewBridge(cfg *config.Config, logger *util.Logger) (*bridge.Bridge, error) {
	policy := bridge.PlayerRequired
	switch cfg.PlayerPolicy {
	case "", config.PolicyRequired:
	case config.PolicyOptional:
		policy = bridge.PlayerOptional
	default:
		return nil, fmt.Errorf("unknown player policy %q", cfg.PlayerPolicy)
	}

	opts := []bridge.Option{
		bridge.WithURL(cfg.URL),
		bridge.WithOpenTimeout(cfg.OpenTimeout),
		bridge.WithRequestTimeout(cfg.RequestTimeout),
		bridge.WithPlayerPolicy(policy),
		bridge.WithLogger(logger),
		bridge.WithDialer(buildDialer(cfg, logger)),
	}
	if cfg.Breaker > 0 {
		opts = append(opts, bridge.WithBreaker(buildBreaker(cfg, logger)))
	}
	return bridge.New(opts...), nil
}

// NewHost returns an opcode host over b with the connect defaults,
// pair retry and output settings taken from cfg.
func NewHost(cfg *config.Config, b capability.Bridge, out io.Writer, logger *util.Logger) *capability.Host {
	h := capability.NewHost(b, out, logger)
	h.Defaults = capability.Defaults{URL: cfg.URL, Code: cfg.Code, Player: cfg.Player}
	if cfg.Retries > 0 {
		bo := retry.DefaultBackoff()
		bo.MaxAttempts = cfg.Retries + 1
		h.PairRetry = bo
	}
	h.LoadBlocks = cfg.LoadBlocks
	if f, ok := out.(*os.File); ok {
		h.Color = isTerminal(f)
	}
	return h
}

// ── shared helpers ───────────────────────────────────────────────────

// buildDialer creates the transport.Dialer the websocket rides on.
func buildDialer(cfg *config.Config, logger *util.Logger) transport.Dialer {
	if cfg.TunnelEnabled {
		if target, err := util.HostPort(cfg.URL); err == nil {
			logger.Verbose("reaching %s through ssh %s@%s:%d", target, cfg.TunnelUser, cfg.TunnelHost, cfg.TunnelPort)
		}
		return transport.NewSSHDialer(&tunnel.SSHConfig{
			User:          cfg.TunnelUser,
			Host:          cfg.TunnelHost,
			Port:          cfg.TunnelPort,
			KeyPath:       cfg.SSHKeyPath,
			PromptPass:    cfg.SSHPassword,
			UseAgent:      cfg.UseSSHAgent,
			StrictHostKey: cfg.StrictHostKey,
			KnownHosts:    cfg.KnownHostsPath,
			ConnTimeout:   cfg.SSHTimeout,
		}, logger)
	}
	return &transport.TCPDialer{Timeout: cfg.OpenTimeout}
}

func buildBreaker(cfg *config.Config, logger *util.Logger) *retry.CircuitBreaker {
	bc := retry.DefaultCircuitBreakerConfig()
	bc.MaxFailures = cfg.Breaker
	bc.OnStateChange = func(from, to retry.State) {
		logger.Warn("open breaker %s → %s", from, to)
	}
	return retry.NewCircuitBreaker(bc)
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
