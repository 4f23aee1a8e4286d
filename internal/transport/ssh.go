package transport

import (
	"context"
	"fmt"
	"net"

	"twbridge/tunnel"
	"twbridge/util"
)

// SSHDialer forwards connections through an SSH gateway.  The gateway
// is connected on the first Dial and reconnected on a later Dial if it
// dropped in between.
type SSHDialer struct {
	tun    tunnel.Tunnel
	logger *util.Logger
}

// NewSSHDialer returns a dialer that tunnels through the gateway in cfg.
func NewSSHDialer(cfg *tunnel.SSHConfig, logger *util.Logger) *SSHDialer {
	return NewTunnelDialer(tunnel.NewSSHTunnel(cfg, logger), logger)
}

// NewTunnelDialer wraps an existing tunnel.
func NewTunnelDialer(tun tunnel.Tunnel, logger *util.Logger) *SSHDialer {
	return &SSHDialer{tun: tun, logger: logger.Named("transport")}
}

// Dial connects to address on the far side of the gateway.
func (d *SSHDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	select {
	case <-d.tun.Done():
		d.logger.Verbose("establishing SSH tunnel")
		if err := d.tun.Connect(ctx); err != nil {
			return nil, fmt.Errorf("tunnel: %w", err)
		}
	default:
	}
	return d.tun.Dial(ctx, network, address)
}

// Close tears down the gateway connection.
func (d *SSHDialer) Close() error {
	return d.tun.Close()
}
