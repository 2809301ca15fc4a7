// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Client invokes remote procedures on one endpoint.
type Client struct {
	endpoint string
	opts     *options

	builder  *requestBuilder
	pool     *Pool
	sched    *Scheduler
	recon    *reconstructor
	registry *Registry
	history  *history
	metrics  *metrics
	log      *zap.Logger

	closed atomic.Bool
}

// New creates a client for endpoint. No connection is made until the first
// call.
func New(endpoint string, opts ...Option) (*Client, error) {
	o := newOptions(opts)
	if err := o.validate(); err != nil {
		return nil, err
	}
	m, err := newMetrics(o.registerer)
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	c := &Client{
		endpoint: endpoint,
		opts:     o,
		builder:  newRequestBuilder(o.codec, o.clock, o.profiling),
		history:  newHistory(o.historySize, o.clock),
		metrics:  m,
		log:      o.logger.With(zap.String("endpoint", endpoint)),
	}
	o.logger = c.log
	c.registry = newRegistry(c)
	c.recon = &reconstructor{
		codec:          o.codec,
		registry:       c.registry,
		transformDates: o.transformDates,
		applyFixups:    o.applyFixups,
	}
	c.pool = newPool(o, m)
	c.sched = newScheduler(o, c.exchangeCall, m)
	return c, nil
}

// Call invokes method and waits for its result.
func (c *Client) Call(ctx context.Context, method string, args ...interface{}) (interface{}, error) {
	return c.call(ctx, method, args, 0)
}

// Go invokes method without blocking. cb, if not nil, runs on the scheduler's
// dispatch goroutine once the result is available; the returned Call completes
// at the same time.
func (c *Client) Go(method string, cb Callback, args ...interface{}) (*Call, error) {
	return c.goCall(method, cb, args, 0)
}

// Notify sends method without an id. The server sends no result, so only
// connection and protocol errors are reported.
func (c *Client) Notify(ctx context.Context, method string, args ...interface{}) error {
	return c.notify(ctx, method, args, 0)
}

// Cancel cancels the non-blocking call with the given id. See
// Scheduler.Cancel.
func (c *Client) Cancel(id uint64) bool {
	return c.sched.Cancel(id)
}

// CreateObject invokes the remote constructor of class and returns a proxy to
// the new object.
func (c *Client) CreateObject(ctx context.Context, class string, args ...interface{}) (*Proxy, error) {
	result, err := c.Call(ctx, constructorMethod(class), args...)
	if err != nil {
		return nil, err
	}
	p, ok := result.(*Proxy)
	if !ok {
		return nil, unmarshalError("constructor of %s returned %T, not a reference", class, result)
	}
	return p, nil
}

// GoCreateObject invokes the remote constructor of class without blocking. The
// callback receives the *Proxy as its result.
func (c *Client) GoCreateObject(class string, cb Callback, args ...interface{}) (*Call, error) {
	return c.Go(constructorMethod(class), cb, args...)
}

// ListMethods fetches the server method list and loads it into the registry.
func (c *Client) ListMethods(ctx context.Context) ([]string, error) {
	result, err := c.Call(ctx, listMethodsMethod)
	if err != nil {
		return nil, err
	}
	list, ok := result.([]interface{})
	if !ok {
		return nil, unmarshalError("method list is %T, not an array", result)
	}
	names := make([]string, 0, len(list))
	for _, v := range list {
		name, ok := v.(string)
		if !ok {
			return nil, unmarshalError("method list entry is %T, not a string", v)
		}
		names = append(names, name)
	}
	c.registry.AddMethods(names)
	c.log.Debug("loaded method list", zap.Int("methods", len(names)))
	return names, nil
}

// NewProxy returns a proxy for a remote object the caller already knows of.
func (c *Client) NewProxy(objectID int64, class string) *Proxy {
	return c.registry.NewProxy(objectID, class)
}

// Registry returns the client's remote class registry.
func (c *Client) Registry() *Registry {
	return c.registry
}

// History returns the recorded request and response bodies, oldest first.
func (c *Client) History() []HistoryEntry {
	return c.history.entries()
}

// ClearHistory drops every recorded body.
func (c *Client) ClearHistory() {
	c.history.clear()
}

// Stats returns the scheduler queue sizes.
func (c *Client) Stats() Stats {
	return c.sched.Stats()
}

// Close stops the scheduler and releases idle transport handles. Outstanding
// non-blocking calls complete with ErrClosed.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.sched.Close()
	var errs error
	errs = multierr.Append(errs, c.pool.Close())
	c.log.Debug("client closed")
	return errs
}

func (c *Client) call(ctx context.Context, method string, args []interface{}, objectID int64) (interface{}, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	call, err := c.builder.build(method, args, objectID, false)
	if err != nil {
		return nil, err
	}
	c.metrics.requests.WithLabelValues(modeCall).Inc()
	return c.exchange(ctx, call.body, false)
}

func (c *Client) goCall(method string, cb Callback, args []interface{}, objectID int64) (*Call, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	call, err := c.builder.build(method, args, objectID, false)
	if err != nil {
		return nil, err
	}
	call.callback = cb
	if err := c.sched.submit(call); err != nil {
		return nil, err
	}
	c.metrics.requests.WithLabelValues(modeAsync).Inc()
	return call, nil
}

func (c *Client) notify(ctx context.Context, method string, args []interface{}, objectID int64) error {
	if c.closed.Load() {
		return ErrClosed
	}
	call, err := c.builder.build(method, args, objectID, true)
	if err != nil {
		return err
	}
	c.metrics.requests.WithLabelValues(modeNotify).Inc()
	_, err = c.exchange(ctx, call.body, true)
	return err
}

func (c *Client) exchangeCall(ctx context.Context, call *Call) (interface{}, error) {
	return c.exchange(ctx, call.body, false)
}

// exchange sends body and reconstructs the result. Notifications stop after
// the status check.
func (c *Client) exchange(ctx context.Context, body []byte, notify bool) (interface{}, error) {
	h, err := c.pool.Lease()
	if err != nil {
		if errors.Is(err, ErrClosed) {
			return nil, ErrClosed
		}
		return nil, connectionError(err)
	}
	if err := h.Open(ctx, c.endpoint); err != nil {
		c.pool.Discard(h)
		return nil, connectionError(err)
	}
	h.SetHeader("Content-Type", jsonRPCContentType)
	h.SetHeader("User-Agent", c.opts.userAgent)

	c.history.record(DirectionRequest, body)
	if err := h.Send(body); err != nil {
		c.pool.Discard(h)
		c.log.Debug("request failed", zap.Error(err))
		return nil, connectionError(err)
	}
	code, text, err := h.Status()
	if err != nil {
		c.pool.Discard(h)
		return nil, connectionError(err)
	}
	header := h.Header()
	respBody, err := h.Body()
	if err != nil {
		c.pool.Discard(h)
		return nil, connectionError(err)
	}
	c.pool.Release(h)
	c.history.record(DirectionResponse, respBody)

	if code != http.StatusOK {
		return nil, protocolError(code, text)
	}
	if notify {
		return nil, nil
	}
	decoded, err := decodeCharset(respBody, header.Get("Content-Type"))
	if err != nil {
		return nil, parseError(err)
	}
	return c.recon.unmarshal(decoded)
}
