// Package metrics provides lightweight, lock-free counters for tracking
// the runtime statistics of a bridge: transport lifecycles, request
// outcomes and inbound traffic that did not match any waiter.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for a bridge.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	connectionsActive atomic.Int64
	connectionsTotal  atomic.Int64
	openFailures      atomic.Int64
	bytesIn           atomic.Int64
	bytesOut          atomic.Int64

	requestsSent     atomic.Int64
	responsesOK      atomic.Int64
	responsesFailed  atomic.Int64
	requestTimeouts  atomic.Int64
	requestsCanceled atomic.Int64
	messagesDropped  atomic.Int64
	pairings         atomic.Int64
	errorsTotal      atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastPaired   time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Transport metrics ────────────────────────────────────────────────

// ConnectionOpened increments both the active and total counters.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(1)
	c.connectionsTotal.Add(1)
}

// ConnectionClosed decrements the active connection counter.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(-1)
}

// OpenFailed records a transport open that errored or timed out.
func (c *Collector) OpenFailed() {
	if c == nil {
		return
	}
	c.openFailures.Add(1)
}

// ActiveConnections returns the current number of open transports.
func (c *Collector) ActiveConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsActive.Load()
}

// TotalConnections returns the lifetime count of opened transports.
func (c *Collector) TotalConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsTotal.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records an inbound message of n bytes.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// BytesSent records an outbound message of n bytes.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// ── Request metrics ──────────────────────────────────────────────────

// RequestSent records a request written to the socket.
func (c *Collector) RequestSent() {
	if c == nil {
		return
	}
	c.requestsSent.Add(1)
}

// ResponseMatched records an inbound response that resolved a waiter.
func (c *Collector) ResponseMatched(ok bool) {
	if c == nil {
		return
	}
	if ok {
		c.responsesOK.Add(1)
	} else {
		c.responsesFailed.Add(1)
	}
}

// RequestTimedOut records a waiter removed by its timer.
func (c *Collector) RequestTimedOut() {
	if c == nil {
		return
	}
	c.requestTimeouts.Add(1)
}

// RequestsCanceled records n waiters failed by a disconnect.
func (c *Collector) RequestsCanceled(n int) {
	if c == nil || n == 0 {
		return
	}
	c.requestsCanceled.Add(int64(n))
}

// MessageDropped records an inbound message that was malformed or
// carried no known request id.
func (c *Collector) MessageDropped() {
	if c == nil {
		return
	}
	c.messagesDropped.Add(1)
}

// Paired records a successful pairing handshake.
func (c *Collector) Paired() {
	if c == nil {
		return
	}
	c.pairings.Add(1)
	c.mu.Lock()
	c.lastPaired = time.Now()
	c.mu.Unlock()
}

// RequestsSent returns the number of requests written to the socket.
func (c *Collector) RequestsSent() int64 {
	if c == nil {
		return 0
	}
	return c.requestsSent.Load()
}

// Timeouts returns the number of requests that timed out.
func (c *Collector) Timeouts() int64 {
	if c == nil {
		return 0
	}
	return c.requestTimeouts.Load()
}

// Dropped returns the number of inbound messages that were discarded.
func (c *Collector) Dropped() int64 {
	if c == nil {
		return 0
	}
	return c.messagesDropped.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime            string `json:"uptime"`
	ConnectionsActive int64  `json:"connections_active"`
	ConnectionsTotal  int64  `json:"connections_total"`
	OpenFailures      int64  `json:"open_failures"`
	BytesIn           int64  `json:"bytes_in"`
	BytesOut          int64  `json:"bytes_out"`
	RequestsSent      int64  `json:"requests_sent"`
	ResponsesOK       int64  `json:"responses_ok"`
	ResponsesFailed   int64  `json:"responses_failed"`
	RequestTimeouts   int64  `json:"request_timeouts"`
	RequestsCanceled  int64  `json:"requests_canceled"`
	MessagesDropped   int64  `json:"messages_dropped"`
	Pairings          int64  `json:"pairings"`
	ErrorsTotal       int64  `json:"errors_total"`
	LastPaired        string `json:"last_paired,omitempty"`
	LastError         string `json:"last_error,omitempty"`
	LastErrorMessage  string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:            time.Since(c.startTime).Truncate(time.Second).String(),
		ConnectionsActive: c.connectionsActive.Load(),
		ConnectionsTotal:  c.connectionsTotal.Load(),
		OpenFailures:      c.openFailures.Load(),
		BytesIn:           c.bytesIn.Load(),
		BytesOut:          c.bytesOut.Load(),
		RequestsSent:      c.requestsSent.Load(),
		ResponsesOK:       c.responsesOK.Load(),
		ResponsesFailed:   c.responsesFailed.Load(),
		RequestTimeouts:   c.requestTimeouts.Load(),
		RequestsCanceled:  c.requestsCanceled.Load(),
		MessagesDropped:   c.messagesDropped.Load(),
		Pairings:          c.pairings.Load(),
		ErrorsTotal:       c.errorsTotal.Load(),
	}
	if !c.lastPaired.IsZero() {
		s.LastPaired = c.lastPaired.Format(time.RFC3339)
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
