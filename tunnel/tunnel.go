// Package tunnel carries the bridge websocket through an SSH gateway
// when the bridge server only listens on a remote loopback interface.
package tunnel

import (
	"context"
	"net"
)

// Tunnel is an encrypted channel that outbound connections can be
// forwarded through.
type Tunnel interface {
	// Connect establishes the tunnel to the gateway.
	Connect(ctx context.Context) error

	// Dial opens a connection to address on the far side of the tunnel.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close tears down the tunnel.
	Close() error

	// Done is closed once the gateway connection is gone.
	Done() <-chan struct{}
}
