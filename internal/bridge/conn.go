package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"

	ncerr "twbridge/internal/errors"
	"twbridge/internal/transport"
	"twbridge/util"
)

// EnsureOpen makes sure a transport is open.  It returns immediately
// if one already is (whatever its URL).  Otherwise it dials url, or
// the last URL used, or [DefaultURL].  Callers arriving while a dial is
// in flight share its outcome; the first caller's URL wins.
//
// Cancelling ctx abandons the wait but not the shared dial, which is
// bounded by the open timeout.
func (b *Bridge) EnsureOpen(ctx context.Context, url string) error {
	if url != "" {
		norm, err := util.NormalizeURL(url, "")
		if err != nil {
			return ncerr.Invalid("url", url, err.Error())
		}
		url = norm
	}
	if b.current() != nil {
		return nil
	}

	ch := b.opens.DoChan("open", func() (interface{}, error) {
		b.mu.Lock()
		if b.conn != nil {
			b.mu.Unlock()
			return nil, nil
		}
		if url != "" {
			b.url = url
		}
		if b.url == "" {
			b.url = DefaultURL
		}
		target, gen := b.url, b.gen
		b.mu.Unlock()
		return nil, b.open(context.WithoutCancel(ctx), target, gen)
	})
	select {
	case r := <-ch:
		return r.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bridge) open(ctx context.Context, url string, gen uint64) error {
	if b.breaker != nil {
		if err := b.breaker.Allow(); err != nil {
			return err
		}
	}

	octx, cancel := context.WithTimeout(ctx, b.openTimeout)
	defer cancel()

	b.logger.Debug("opening %s", url)
	conn, err := transport.DialWebsocket(octx, url, transport.WSOptions{
		Dialer:    b.dialer,
		OnMessage: b.pending.deliver,
		Logger:    b.logger,
		Metrics:   b.metrics,
	})
	if err != nil {
		if octx.Err() != nil || isTimeout(err) {
			err = &ncerr.NetworkError{Op: "open", Addr: url, Err: ncerr.ErrOpenTimeout, Retryable: true}
		}
		if b.breaker != nil {
			b.breaker.Record(err)
		}
		b.metrics.RecordError(err.Error())
		b.logger.Verbose("%v", err)
		return err
	}
	if b.breaker != nil {
		b.breaker.Record(nil)
	}

	b.mu.Lock()
	if b.gen != gen {
		// Disconnect ran while we were dialing.
		b.mu.Unlock()
		conn.Close() //nolint:errcheck
		return errDisconnected(nil)
	}
	b.conn = conn
	b.sess.Opened()
	b.mu.Unlock()

	go b.watch(conn)
	return nil
}

// watch waits for conn to end and, unless Disconnect already took it
// down, clears the session and fails pending requests.
func (b *Bridge) watch(conn *transport.WSConn) {
	<-conn.Done()

	b.mu.Lock()
	current := b.conn == conn
	if current {
		b.conn = nil
		b.sess.Clear()
	}
	b.mu.Unlock()
	if !current {
		return
	}

	cause := conn.Err()
	if n := b.pending.failAll(errDisconnected(cause)); n > 0 {
		b.logger.Verbose("transport closed with %d pending request(s)", n)
	}
	if cause != nil {
		b.metrics.RecordError(cause.Error())
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// current returns the open transport, or nil.
func (b *Bridge) current() *transport.WSConn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn
}

// errDisconnected wraps [ncerr.ErrDisconnected] with the reason a peer
// gave when it closed the socket, if any.
func errDisconnected(cause error) error {
	if _, text, ok := util.CloseReason(cause); ok && text != "" {
		return &closedError{reason: text}
	}
	return ncerr.ErrDisconnected
}

// closedError is ErrDisconnected plus the peer's close reason.
type closedError struct{ reason string }

func (e *closedError) Error() string { return fmt.Sprintf("%v: %s", ncerr.ErrDisconnected, e.reason) }
func (e *closedError) Unwrap() error { return ncerr.ErrDisconnected }
