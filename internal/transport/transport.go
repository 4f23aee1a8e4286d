// Package transport opens the network connections the bridge client
// runs its websocket over.  A Dialer decides how bytes reach the
// bridge server (direct TCP or an SSH gateway); [DialWebsocket] layers
// the websocket handshake and a read loop on top.
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound stream connections.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases long-lived resources held by the dialer, such as
	// an SSH session.  Stateless dialers return nil.
	Close() error
}
