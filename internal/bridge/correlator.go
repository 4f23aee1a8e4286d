package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	ncerr "twbridge/internal/errors"
	"twbridge/internal/metrics"
	"twbridge/util"
)

type outcome struct {
	res Result
	err error
}

// correlator matches inbound responses to waiting requests by id.
// Every waiter is removed exactly once: by its response, its timer,
// its context, or failAll.
type correlator struct {
	logger  *util.Logger
	metrics *metrics.Collector

	mu      sync.Mutex
	waiters map[string]chan outcome
}

func newCorrelator(logger *util.Logger, m *metrics.Collector) *correlator {
	return &correlator{
		logger:  logger.Named("rpc"),
		metrics: m,
		waiters: make(map[string]chan outcome),
	}
}

// register adds a waiter for id.  The channel receives at most one
// outcome.
func (c *correlator) register(id string) <-chan outcome {
	ch := make(chan outcome, 1)
	c.mu.Lock()
	c.waiters[id] = ch
	c.mu.Unlock()
	return ch
}

// take removes the waiter for id and returns it, or nil if it is
// already gone.
func (c *correlator) take(id string) chan outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.waiters[id]
	if !ok {
		return nil
	}
	delete(c.waiters, id)
	return ch
}

func (c *correlator) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// deliver is the transport's message handler.  Frames that do not
// parse or do not match a waiter are dropped.
func (c *correlator) deliver(data []byte) {
	id, res, ok := decodeResponse(data)
	if !ok {
		c.metrics.MessageDropped()
		c.logger.Debug("dropped frame: %.120s", data)
		return
	}
	ch := c.take(id)
	if ch == nil {
		c.metrics.MessageDropped()
		c.logger.Debug("no waiter for %s", id)
		return
	}
	c.metrics.ResponseMatched(res.OK)
	c.logger.Debug("<- %s ok=%v", id, res.OK)
	ch <- outcome{res: res}
}

// failAll fails every waiter with err and empties the map.  It returns
// how many waiters were failed.
func (c *correlator) failAll(err error) int {
	c.mu.Lock()
	waiters := c.waiters
	c.waiters = make(map[string]chan outcome)
	c.mu.Unlock()

	for _, ch := range waiters {
		ch <- outcome{err: err}
	}
	c.metrics.RequestsCanceled(len(waiters))
	return len(waiters)
}

// roundTrip sends req on the current transport and waits for its
// outcome.  Server-side failures come back as a Result with OK unset;
// the caller decides how to report them.
func (b *Bridge) roundTrip(ctx context.Context, req Request) (Result, error) {
	conn := b.current()
	if conn == nil {
		return Result{}, ncerr.ErrDisconnected
	}

	req.ID = b.newID()
	if sid := b.sess.ID(); sid != "" {
		req.SessionID = &sid
	}
	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("encode %s: %w", req.Cmd, err)
	}

	c := b.pending
	ch := c.register(req.ID)
	c.logger.Debug("-> %s %s", req.ID, req.Cmd)
	if err := conn.Send(body); err != nil {
		c.take(req.ID)
		return Result{}, err
	}
	c.metrics.RequestSent()

	timer := time.NewTimer(b.requestTimeout)
	defer timer.Stop()

	select {
	case o := <-ch:
		return o.res, o.err
	case <-timer.C:
		if c.take(req.ID) != nil {
			c.metrics.RequestTimedOut()
			c.logger.Debug("timeout %s %s", req.ID, req.Cmd)
			return Result{}, ncerr.ErrTimeout
		}
	case <-ctx.Done():
		if c.take(req.ID) != nil {
			c.metrics.RequestsCanceled(1)
			return Result{}, ctx.Err()
		}
	}
	// Lost the race with a response or failAll; its outcome is on ch.
	o := <-ch
	return o.res, o.err
}

// call is roundTrip with server failures turned into *RemoteError.
func (b *Bridge) call(ctx context.Context, req Request) (Result, error) {
	res, err := b.roundTrip(ctx, req)
	if err != nil {
		return Result{}, err
	}
	if !res.OK {
		b.metrics.RecordError(req.Cmd + ": " + res.Reason)
		return res, &ncerr.RemoteError{Cmd: req.Cmd, Reason: res.Reason}
	}
	return res, nil
}
