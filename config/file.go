package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	kdl "github.com/sblinch/kdl-go"
)

// fileConfig mirrors the KDL layout:
//
//	url "ws://192.168.1.20:8787"
//	player "Steve"
//	request-timeout "8s"
//	ssh {
//	    tunnel "steve@gateway.example.com"
//	    agent true
//	}
type fileConfig struct {
	URL            string   `kdl:"url"`
	Code           string   `kdl:"code"`
	Player         string   `kdl:"player"`
	PlayerPolicy   string   `kdl:"player-policy"`
	OpenTimeout    string   `kdl:"open-timeout"`
	RequestTimeout string   `kdl:"request-timeout"`
	Retries        int      `kdl:"retries"`
	Breaker        int      `kdl:"breaker"`
	Script         string   `kdl:"script"`
	FailFast       bool     `kdl:"fail-fast"`
	LoadBlocks     bool     `kdl:"load-blocks"`
	Verbose        int      `kdl:"verbose"`
	SSH            *fileSSH `kdl:"ssh"`
}

type fileSSH struct {
	Tunnel        string `kdl:"tunnel"`
	Key           string `kdl:"key"`
	Password      bool   `kdl:"password"`
	Agent         bool   `kdl:"agent"`
	StrictHostKey bool   `kdl:"strict-host-key"`
	KnownHosts    string `kdl:"known-hosts"`
	Timeout       string `kdl:"timeout"`
}

// DefaultFilePath returns the first config file that exists: FileName
// in the working directory, then $XDG_CONFIG_HOME/twbridge/config.kdl
// (~/.config when unset).  It returns "" when there is none.
func DefaultFilePath() string {
	if _, err := os.Stat(FileName); err == nil {
		return FileName
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	p := filepath.Join(dir, "twbridge", "config.kdl")
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return ""
}

// LoadFile overlays the KDL file at path onto cfg.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config file: %w", err)
	}
	if err := ParseFile(cfg, data); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	cfg.ConfigFile = path
	return nil
}

// ParseFile overlays KDL document data onto cfg.  Nodes that are absent
// leave cfg untouched.
func ParseFile(cfg *Config, data []byte) error {
	var fc fileConfig
	if err := kdl.Unmarshal(data, &fc); err != nil {
		return err
	}

	setString(&cfg.URL, fc.URL)
	setString(&cfg.Code, fc.Code)
	setString(&cfg.Player, fc.Player)
	setString(&cfg.PlayerPolicy, fc.PlayerPolicy)
	setString(&cfg.Script, fc.Script)
	if err := setDuration(&cfg.OpenTimeout, "open-timeout", fc.OpenTimeout); err != nil {
		return err
	}
	if err := setDuration(&cfg.RequestTimeout, "request-timeout", fc.RequestTimeout); err != nil {
		return err
	}
	if fc.Retries > 0 {
		cfg.Retries = fc.Retries
	}
	if fc.Breaker > 0 {
		cfg.Breaker = fc.Breaker
	}
	cfg.FailFast = cfg.FailFast || fc.FailFast
	cfg.LoadBlocks = cfg.LoadBlocks || fc.LoadBlocks
	if fc.Verbose > 0 {
		cfg.Verbose = fc.Verbose
	}

	if s := fc.SSH; s != nil {
		setString(&cfg.TunnelSpec, s.Tunnel)
		setString(&cfg.SSHKeyPath, s.Key)
		setString(&cfg.KnownHostsPath, s.KnownHosts)
		cfg.SSHPassword = cfg.SSHPassword || s.Password
		cfg.UseSSHAgent = cfg.UseSSHAgent || s.Agent
		cfg.StrictHostKey = cfg.StrictHostKey || s.StrictHostKey
		if err := setDuration(&cfg.SSHTimeout, "ssh.timeout", s.Timeout); err != nil {
			return err
		}
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, name, v string) error {
	d, err := parseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if d > 0 {
		*dst = d
	}
	return nil
}
