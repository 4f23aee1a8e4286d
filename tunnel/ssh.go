package tunnel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	ncerr "twbridge/internal/errors"
	"twbridge/util"
)

// SSHConfig holds everything needed to reach an SSH gateway.
type SSHConfig struct {
	User          string
	Host          string
	Port          int
	KeyPath       string
	PromptPass    bool
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string
	ConnTimeout   time.Duration
}

// Addr returns the gateway's host:port.
func (c *SSHConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SSHTunnel implements [Tunnel] on top of an ssh.Client.
type SSHTunnel struct {
	cfg    SSHConfig
	logger *util.Logger

	mu     sync.Mutex
	client *ssh.Client
	done   chan struct{}
}

// NewSSHTunnel returns a tunnel that is ready to [SSHTunnel.Connect].
func NewSSHTunnel(cfg *SSHConfig, logger *util.Logger) *SSHTunnel {
	c := *cfg
	if c.Port == 0 {
		c.Port = 22
	}
	if c.ConnTimeout == 0 {
		c.ConnTimeout = 15 * time.Second
	}
	return &SSHTunnel{cfg: c, logger: logger.Named("tunnel")}
}

// Connect dials the gateway and completes the SSH handshake.  Calling
// Connect on a live tunnel is a no-op.
func (t *SSHTunnel) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		return nil
	}

	auth, err := BuildAuthMethods(&t.cfg)
	if err != nil {
		return ncerr.WrapSSH("auth", t.cfg.Host, t.cfg.Port, err)
	}
	hostKeys, err := hostKeyCallback(&t.cfg)
	if err != nil {
		return ncerr.WrapSSH("hostkey", t.cfg.Host, t.cfg.Port, err)
	}

	addr := t.cfg.Addr()
	t.logger.Debug("dialing %s as %s", addr, t.cfg.User)

	dialCtx, cancel := context.WithTimeout(ctx, t.cfg.ConnTimeout)
	defer cancel()
	var d net.Dialer
	raw, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return ncerr.Wrap("dial", addr, err)
	}
	// The handshake itself is not context-aware; bound it with a deadline.
	if dl, ok := dialCtx.Deadline(); ok {
		raw.SetDeadline(dl) //nolint:errcheck
	}

	conn, chans, reqs, err := ssh.NewClientConn(raw, addr, &ssh.ClientConfig{
		User:            t.cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         t.cfg.ConnTimeout,
	})
	if err != nil {
		raw.Close()
		return ncerr.WrapSSH("handshake", t.cfg.Host, t.cfg.Port, classifyHandshake(err))
	}
	raw.SetDeadline(time.Time{}) //nolint:errcheck

	t.client = ssh.NewClient(conn, chans, reqs)
	t.done = make(chan struct{})
	go t.watch(t.client, t.done)

	t.logger.Verbose("connected to %s", addr)
	return nil
}

// classifyHandshake tags rejected credentials and changed host keys
// with their sentinels.
func classifyHandshake(err error) error {
	var ke *knownhosts.KeyError
	switch {
	case errors.As(err, &ke):
		return fmt.Errorf("%w: %v", ncerr.ErrHostKeyMismatch, err)
	case strings.Contains(err.Error(), "unable to authenticate"):
		return fmt.Errorf("%w: %v", ncerr.ErrAuthFailed, err)
	}
	return err
}

// Dial opens a forwarded connection through the gateway.
func (t *SSHTunnel) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client == nil {
		return nil, ncerr.ErrTunnelClosed
	}

	t.logger.Debug("forward %s %s", network, address)
	conn, err := client.DialContext(ctx, network, address)
	if err != nil {
		return nil, ncerr.Wrap("forward", address, err)
	}
	return conn, nil
}

// Close shuts the gateway connection down.
func (t *SSHTunnel) Close() error {
	t.mu.Lock()
	client := t.client
	t.client = nil
	t.mu.Unlock()
	if client == nil {
		return nil
	}
	return client.Close()
}

// Done is closed when the gateway connection ends.  Before the first
// successful Connect it returns a closed channel.
func (t *SSHTunnel) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return t.done
}

func (t *SSHTunnel) watch(client *ssh.Client, done chan struct{}) {
	err := client.Wait()

	t.mu.Lock()
	if t.client == client {
		t.client = nil
	}
	t.mu.Unlock()
	close(done)

	if err != nil {
		t.logger.Debug("gateway closed: %v", err)
	} else {
		t.logger.Debug("gateway closed")
	}
}
