package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	ncerr "twbridge/internal/errors"
	"twbridge/internal/metrics"
	"twbridge/util"
)

const (
	defaultReadLimit = 1 << 20
	closeGrace       = time.Second
)

// WSOptions configures [DialWebsocket].
type WSOptions struct {
	// Dialer carries the TCP stream.  Nil dials directly.
	Dialer Dialer
	// HandshakeTimeout bounds the HTTP upgrade.  Zero means no limit
	// beyond ctx.
	HandshakeTimeout time.Duration
	// ReadLimit caps inbound frame size (default 1 MiB).
	ReadLimit int64
	// OnMessage is called from the read loop for every data frame, in
	// arrival order.  It must not block for long.
	OnMessage func(data []byte)
	Logger    *util.Logger
	Metrics   *metrics.Collector
}

// WSConn is an open websocket with its read loop running.
type WSConn struct {
	ws      *websocket.Conn
	url     string
	logger  *util.Logger
	metrics *metrics.Collector

	wmu sync.Mutex // gorilla allows one concurrent writer

	closeOnce sync.Once
	closing   chan struct{}
	done      chan struct{}
	err       error // valid after done is closed
}

// DialWebsocket opens a websocket to url and starts reading.  Failures
// wrap [ncerr.ErrOpenFailed].
func DialWebsocket(ctx context.Context, url string, opts WSOptions) (*WSConn, error) {
	d := opts.Dialer
	if d == nil {
		d = &TCPDialer{}
	}
	wd := websocket.Dialer{
		NetDialContext:   d.Dial,
		HandshakeTimeout: opts.HandshakeTimeout,
		WriteBufferPool:  util.WriteBufferPool,
		Proxy:            http.ProxyFromEnvironment,
	}

	ws, resp, err := wd.DialContext(ctx, url, nil)
	if err != nil {
		opts.Metrics.OpenFailed()
		if resp != nil {
			return nil, fmt.Errorf("%w: %s: handshake status %s", ncerr.ErrOpenFailed, url, resp.Status)
		}
		return nil, fmt.Errorf("%w: %w", ncerr.ErrOpenFailed, ncerr.Wrap("open", url, err))
	}

	limit := opts.ReadLimit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	ws.SetReadLimit(limit)

	c := &WSConn{
		ws:      ws,
		url:     url,
		logger:  opts.Logger.Named("ws"),
		metrics: opts.Metrics,
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	opts.Metrics.ConnectionOpened()
	c.logger.Verbose("open %s", url)

	go c.readLoop(opts.OnMessage)
	return c, nil
}

// URL returns the address the connection was opened to.
func (c *WSConn) URL() string { return c.url }

// Send writes one text frame.
func (c *WSConn) Send(data []byte) error {
	select {
	case <-c.closing:
		return ncerr.ErrDisconnected
	case <-c.done:
		return ncerr.ErrDisconnected
	default:
	}

	c.wmu.Lock()
	err := c.ws.WriteMessage(websocket.TextMessage, data)
	c.wmu.Unlock()
	if err != nil {
		return ncerr.Wrap("write", c.url, err)
	}
	c.metrics.BytesSent(int64(len(data)))
	return nil
}

// Done is closed once the read loop has exited, whether the peer went
// away or [WSConn.Close] was called.
func (c *WSConn) Done() <-chan struct{} { return c.done }

// Err reports why the connection ended.  It is nil while the
// connection is open and after a local Close or a clean remote close.
func (c *WSConn) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Close sends a normal close frame, shuts the socket and waits for the
// read loop to exit.  It is safe to call more than once.
func (c *WSConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closing)
		c.wmu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace)) //nolint:errcheck
		c.wmu.Unlock()
		err = c.ws.Close()
	})
	<-c.done
	if util.IsHarmlessClose(err) {
		return nil
	}
	return err
}

func (c *WSConn) readLoop(onMessage func([]byte)) {
	var err error
	for {
		var data []byte
		_, data, err = c.ws.ReadMessage()
		if err != nil {
			break
		}
		c.metrics.BytesReceived(int64(len(data)))
		if onMessage != nil {
			onMessage(data)
		}
	}

	select {
	case <-c.closing:
		err = nil
	default:
		c.ws.Close()
	}
	if util.IsHarmlessClose(err) {
		err = nil
	}
	c.err = err
	c.metrics.ConnectionClosed()

	if code, text, ok := util.CloseReason(err); ok {
		c.logger.Verbose("closed by peer: %d %s", code, text)
	} else if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Verbose("closed: %v", err)
	} else {
		c.logger.Verbose("closed")
	}
	close(c.done)
}
