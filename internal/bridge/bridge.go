// Package bridge is the client side of the twbridge websocket protocol.
//
// A Bridge owns exactly one websocket to the bridge server and at most
// one paired session on it.  Commands are validated locally, sent as
// JSON requests tagged with a fresh id, and resolved by the response
// carrying the same id, a per-request timeout, or a disconnect.
//
// A Bridge is safe for concurrent use.
package bridge

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"twbridge/internal/metrics"
	"twbridge/internal/retry"
	"twbridge/internal/session"
	"twbridge/internal/transport"
	"twbridge/util"
)

// Defaults used when the corresponding option is not given.
const (
	DefaultURL            = "ws://127.0.0.1:8787"
	DefaultOpenTimeout    = 3 * time.Second
	DefaultRequestTimeout = 5 * time.Second
)

// PlayerPolicy decides whether the client insists on a bound player.
type PlayerPolicy int

const (
	// PlayerRequired rejects pairing without a player name and agent
	// commands while no player is bound.
	PlayerRequired PlayerPolicy = iota
	// PlayerOptional leaves player enforcement to the server.
	PlayerOptional
)

func (p PlayerPolicy) String() string {
	if p == PlayerOptional {
		return "optional"
	}
	return "required"
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithURL sets the URL used when EnsureOpen or Pair get none.
func WithURL(url string) Option {
	return func(b *Bridge) { b.url = url }
}

// WithOpenTimeout bounds each transport open attempt.
func WithOpenTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.openTimeout = d
		}
	}
}

// WithRequestTimeout bounds the wait for each response.
func WithRequestTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.requestTimeout = d
		}
	}
}

// WithPlayerPolicy selects client-side player enforcement.
func WithPlayerPolicy(p PlayerPolicy) Option {
	return func(b *Bridge) { b.policy = p }
}

// WithLogger sets the logger.  Nil disables logging.
func WithLogger(l *util.Logger) Option {
	return func(b *Bridge) { b.logger = l.Named("bridge") }
}

// WithMetrics sets the collector fed by the bridge and its transport.
func WithMetrics(m *metrics.Collector) Option {
	return func(b *Bridge) { b.metrics = m }
}

// WithDialer routes the websocket's TCP stream through d, e.g. an
// SSH gateway.
func WithDialer(d transport.Dialer) Option {
	return func(b *Bridge) { b.dialer = d }
}

// WithBreaker guards transport opens with a circuit breaker.
func WithBreaker(cb *retry.CircuitBreaker) Option {
	return func(b *Bridge) { b.breaker = cb }
}

// withIDs replaces the request id generator.  Tests only.
func withIDs(gen func() string) Option {
	return func(b *Bridge) { b.newID = gen }
}

// Bridge is a websocket client bound to at most one paired session.
type Bridge struct {
	openTimeout    time.Duration
	requestTimeout time.Duration
	policy         PlayerPolicy
	logger         *util.Logger
	metrics        *metrics.Collector
	dialer         transport.Dialer
	breaker        *retry.CircuitBreaker
	newID          func() string

	sess    *session.Session
	pending *correlator
	catalog *Catalog

	opens singleflight.Group

	mu   sync.Mutex
	url  string
	conn *transport.WSConn
	gen  uint64 // bumped by Disconnect to orphan in-flight opens
}

// New returns a disconnected Bridge.
func New(opts ...Option) *Bridge {
	b := &Bridge{
		url:            DefaultURL,
		openTimeout:    DefaultOpenTimeout,
		requestTimeout: DefaultRequestTimeout,
		metrics:        metrics.New(),
		newID:          uuid.NewString,
		sess:           session.New(),
		catalog:        &Catalog{},
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.dialer == nil {
		b.dialer = &transport.TCPDialer{Timeout: b.openTimeout}
	}
	b.pending = newCorrelator(b.logger, b.metrics)
	return b
}

// IsConnected reports whether the transport is open.
func (b *Bridge) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

// CurrentPlayer returns the bound player, or "" when none is bound.
func (b *Bridge) CurrentPlayer() string { return b.sess.Player() }

// SessionID returns the server-issued session id, or "".
func (b *Bridge) SessionID() string { return b.sess.ID() }

// State returns where the bridge is in the connect/pair lifecycle.
func (b *Bridge) State() session.State { return b.sess.State() }

// Session returns a consistent snapshot of the pairing state.
func (b *Bridge) Session() session.Snapshot { return b.sess.Snapshot() }

// URL returns the URL of the current or most recent transport.
func (b *Bridge) URL() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.url
}

// Policy returns the configured player policy.
func (b *Bridge) Policy() PlayerPolicy { return b.policy }

// Metrics returns the bridge's collector.
func (b *Bridge) Metrics() *metrics.Collector { return b.metrics }

// Catalog returns the block catalog filled by [Bridge.LoadBlocks].
func (b *Bridge) Catalog() *Catalog { return b.catalog }

// Pending returns the number of requests awaiting a response.
func (b *Bridge) Pending() int { return b.pending.len() }

// Disconnect drops the session, fails every pending request with
// [ncerr.ErrDisconnected] and closes the transport.  It is safe to call
// at any time, including with nothing open.
func (b *Bridge) Disconnect() {
	b.mu.Lock()
	conn := b.conn
	b.conn = nil
	b.gen++
	b.sess.Clear()
	b.mu.Unlock()

	if n := b.pending.failAll(errDisconnected(nil)); n > 0 {
		b.logger.Verbose("disconnect failed %d pending request(s)", n)
	}
	if conn != nil {
		conn.Close() //nolint:errcheck
	}
}

// Close disconnects and releases the dialer (an SSH gateway, if any).
func (b *Bridge) Close() error {
	b.Disconnect()
	return b.dialer.Close()
}
