// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	flag "github.com/spf13/pflag"
	"github.com/tidwall/pretty"

	"twbridge/config"
	"twbridge/internal/core"
	"twbridge/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X twbridge/cmd.version=1.1.0"
var version = "1.0.0" //nolint:gochecknoglobals

// stdout is where help, version and dry-run output go.
var stdout io.Writer = os.Stdout //nolint:gochecknoglobals

// Execute loads the configuration (defaults, config file, environment,
// then args) and runs the script or console it describes.
func Execute(ctx context.Context, args []string) error {
	cfg := config.Default()

	// ── config file ──────────────────────────────────────────────
	path := configPath(args)
	if path != "" {
		if err := config.LoadFile(cfg, path); err != nil {
			return err
		}
	}

	// ── environment ──────────────────────────────────────────────
	config.LoadFromEnv(cfg)

	// ── flags (defaults are the values loaded so far) ────────────
	fs := flag.NewFlagSet("twbridge", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var configFlag string
	fs.StringVar(&configFlag, "config", path, "KDL config file")

	// bridge
	fs.StringVarP(&cfg.URL, "url", "u", cfg.URL, "Bridge server websocket URL")
	fs.StringVarP(&cfg.Code, "code", "c", cfg.Code, "One-time pairing code (pairs on start when set)")
	fs.StringVarP(&cfg.Player, "player", "p", cfg.Player, "Player name to bind")
	fs.StringVar(&cfg.PlayerPolicy, "player-policy", cfg.PlayerPolicy, "required or optional")
	fs.DurationVar(&cfg.OpenTimeout, "open-timeout", cfg.OpenTimeout, "Websocket open timeout")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "Per-request response timeout")

	// resilience
	fs.IntVar(&cfg.Retries, "retries", cfg.Retries, "Retry pairing N times on transport failures")
	fs.IntVar(&cfg.Breaker, "breaker", cfg.Breaker, "Refuse opens after N consecutive failures (0 = off)")

	// host
	fs.StringVarP(&cfg.Script, "script", "f", cfg.Script, `Run commands from a file ("-" for stdin)`)
	fs.BoolVar(&cfg.FailFast, "fail-fast", cfg.FailFast, "Stop the script at the first failing line")
	fs.BoolVar(&cfg.LoadBlocks, "load-blocks", cfg.LoadBlocks, "Fetch the block list after pairing")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Print the resolved configuration and exit")

	// SSH tunnel
	fs.StringVarP(&cfg.TunnelSpec, "tunnel", "T", cfg.TunnelSpec, "Reach the server through SSH [user@]host[:port]")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")

	// output
	verbose := cfg.Verbose
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")

	var showVersion, showHelp bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w (use --help for usage)", err)
	}
	if !fs.Changed("verbose") {
		cfg.Verbose = verbose
	}

	if showHelp {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Fprintf(stdout, "twbridge %s\n", version)
		return nil
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument %q (use --help for usage)", fs.Arg(0))
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.TunnelEnabled && cfg.TunnelUser == "" {
		cfg.TunnelUser = os.Getenv("USER")
	}

	if cfg.DryRun {
		return printConfig(cfg)
	}

	// ── build & run ──────────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	if cfg.ConfigFile != "" {
		logger.Verbose("loaded %s", cfg.ConfigFile)
	}
	mode, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}
	return mode.Run(ctx)
}

// ── helpers ──────────────────────────────────────────────────────────

// configPath finds the config file before flags are parsed, since its
// values become the flag defaults: --config, then TWBRIDGE_CONFIG, then
// the default locations.
func configPath(args []string) string {
	for i, a := range args {
		if a == "--" {
			break
		}
		if v, ok := strings.CutPrefix(a, "--config="); ok {
			return v
		}
		if a == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	if v := os.Getenv(config.EnvPrefix + "CONFIG"); v != "" {
		return v
	}
	return config.DefaultFilePath()
}

// printConfig writes the resolved configuration as JSON with the
// pairing code masked.
func printConfig(cfg *config.Config) error {
	code := ""
	if cfg.Code != "" {
		code = "******"
	}
	view := map[string]interface{}{
		"url":             cfg.URL,
		"code":            code,
		"player":          cfg.Player,
		"player_policy":   cfg.PlayerPolicy,
		"open_timeout":    cfg.OpenTimeout.String(),
		"request_timeout": cfg.RequestTimeout.String(),
		"retries":         cfg.Retries,
		"breaker":         cfg.Breaker,
		"script":          cfg.Script,
		"fail_fast":       cfg.FailFast,
		"load_blocks":     cfg.LoadBlocks,
		"verbose":         cfg.Verbose,
		"config_file":     cfg.ConfigFile,
	}
	if cfg.TunnelEnabled {
		view["tunnel"] = map[string]interface{}{
			"user":           cfg.TunnelUser,
			"host":           cfg.TunnelHost,
			"port":           cfg.TunnelPort,
			"key":            cfg.SSHKeyPath,
			"password":       cfg.SSHPassword,
			"agent":          cfg.UseSSHAgent,
			"strict_hostkey": cfg.StrictHostKey,
			"known_hosts":    cfg.KnownHostsPath,
			"timeout":        cfg.SSHTimeout.String(),
		}
	}
	data, err := json.Marshal(view)
	if err != nil {
		return err
	}
	stdout.Write(pretty.Pretty(data)) //nolint:errcheck
	return nil
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(stdout, `twbridge – command-line client for the TurboWarp bridge v%s

Pairs with a bridge server over websocket and drives the player's
agent from a script or an interactive console.

Usage:
  twbridge [options]                         Interactive console
  twbridge -f moves.tw [options]             Run a script
  twbridge -T admin@gateway -u ws://mc:8787  Through an SSH gateway

Options:
`, version)
	fs.SetOutput(stdout)
	fs.PrintDefaults()
	fs.SetOutput(io.Discard)
	fmt.Fprintf(stdout, `
Console/script commands:
  connect [url] [code] [player]   execute <command...>   teleport <agent>
  move <agent> <dir> [blocks]     rotate <agent> <turn>  place <agent> <dir>
  slot <agent> <n>   setslot <agent> <block> <amount> <slot>   help

Configuration is read from %s (or $XDG_CONFIG_HOME/twbridge/config.kdl),
then %s* environment variables, then flags.
`, config.FileName, config.EnvPrefix)
}
