// Package config defines the runtime configuration for twbridge and
// loads it from defaults, a KDL file, TWBRIDGE_* environment variables
// and command-line flags, in increasing order of precedence.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	ncerr "twbridge/internal/errors"
	"twbridge/util"
)

// Config holds every tuneable for one twbridge run.
type Config struct {
	// ── Bridge ───────────────────────────────────────────────────────
	URL            string
	Code           string
	Player         string
	PlayerPolicy   string // "required" or "optional"
	OpenTimeout    time.Duration
	RequestTimeout time.Duration

	// ── Resilience ───────────────────────────────────────────────────
	Retries int // pair retries after transport failures
	Breaker int // consecutive open failures before opens are refused (0 = off)

	// ── Host ─────────────────────────────────────────────────────────
	Script     string // script path, "-" for stdin, "" for the console
	FailFast   bool
	LoadBlocks bool
	DryRun     bool

	// ── SSH tunnel ───────────────────────────────────────────────────
	TunnelSpec     string // raw [user@]host[:port] from --tunnel
	TunnelEnabled  bool
	TunnelUser     string
	TunnelHost     string
	TunnelPort     int
	SSHKeyPath     string
	SSHPassword    bool // true → prompt interactively
	UseSSHAgent    bool
	StrictHostKey  bool
	KnownHostsPath string
	SSHTimeout     time.Duration

	// ── Output ───────────────────────────────────────────────────────
	Verbose    int
	ConfigFile string // file the values were loaded from, if any
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:@]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(strings.TrimSpace(spec))
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q – expected [user@]host[:port]", spec)
	}
	user, host, port = m[1], m[2], DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	return user, host, port, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks the configuration and normalises it in place: the
// URL gets a ws/wss scheme, the tunnel spec is split into its parts
// and the player policy is lower-cased.
func (c *Config) Validate() error {
	url, err := util.NormalizeURL(c.URL, DefaultURL)
	if err != nil {
		return &ncerr.ConfigError{Field: "url", Value: c.URL, Message: err.Error(),
			Hint: "use ws://host:port or wss://host:port"}
	}
	c.URL = url

	if c.OpenTimeout <= 0 {
		return &ncerr.ConfigError{Field: "open-timeout", Value: c.OpenTimeout, Message: "must be positive"}
	}
	if c.RequestTimeout <= 0 {
		return &ncerr.ConfigError{Field: "request-timeout", Value: c.RequestTimeout, Message: "must be positive"}
	}

	c.PlayerPolicy = strings.ToLower(strings.TrimSpace(c.PlayerPolicy))
	switch c.PlayerPolicy {
	case "":
		c.PlayerPolicy = DefaultPlayerPolicy
	case PolicyRequired, PolicyOptional:
	default:
		return &ncerr.ConfigError{Field: "player-policy", Value: c.PlayerPolicy,
			Message: "unknown policy", Hint: "use required or optional"}
	}

	if c.Retries < 0 {
		return &ncerr.ConfigError{Field: "retries", Value: c.Retries, Message: "must not be negative"}
	}
	if c.Breaker < 0 {
		return &ncerr.ConfigError{Field: "breaker", Value: c.Breaker, Message: "must not be negative"}
	}

	if c.TunnelSpec != "" {
		user, host, port, err := ParseTunnelSpec(c.TunnelSpec)
		if err != nil {
			return &ncerr.ConfigError{Field: "tunnel", Value: c.TunnelSpec, Message: err.Error()}
		}
		c.TunnelEnabled = true
		c.TunnelUser, c.TunnelHost, c.TunnelPort = user, host, port
	}
	if c.TunnelEnabled && c.TunnelHost == "" {
		return &ncerr.ConfigError{Field: "tunnel", Message: "tunnel host is required"}
	}
	if !c.TunnelEnabled && (c.SSHKeyPath != "" || c.SSHPassword || c.UseSSHAgent) {
		return &ncerr.ConfigError{Field: "tunnel", Message: "SSH options given without a tunnel",
			Hint: "add --tunnel [user@]host[:port]"}
	}
	return nil
}
