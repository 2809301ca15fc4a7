// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Pool hands out transport handles and keeps up to capacity idle ones for
// reuse. It is shared by blocking callers and scheduler goroutines.
type Pool struct {
	mu       sync.Mutex
	spare    []Handle
	capacity int
	closed   bool

	names   []string
	custom  Factory
	cfg     *TransportConfig
	factory Factory // first factory that produced a handle
	failed  error

	metrics *metrics
	log     *zap.Logger
}

func newPool(o *options, m *metrics) *Pool {
	return &Pool{
		capacity: o.poolCapacity,
		names:    o.transports,
		custom:   o.factory,
		cfg: &TransportConfig{
			HTTPClient: o.httpClient,
			GRPCConn:   o.grpcConn,
		},
		metrics: m,
		log:     o.logger,
	}
}

// Lease returns a spare handle or constructs a new one.
func (p *Pool) Lease() (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	if n := len(p.spare); n > 0 {
		h := p.spare[n-1]
		p.spare[n-1] = nil
		p.spare = p.spare[:n-1]
		p.metrics.spare.Set(float64(len(p.spare)))
		return h, nil
	}
	if p.failed != nil {
		return nil, p.failed
	}
	if p.factory != nil {
		return p.factory(p.cfg)
	}
	if p.custom != nil {
		h, err := p.custom(p.cfg)
		if err != nil {
			p.failed = fmt.Errorf("%w: %w", ErrNoTransport, err)
			p.log.Error("handle factory failed", zap.Error(err))
			return nil, p.failed
		}
		p.factory = p.custom
		return h, nil
	}

	var errs error
	for _, name := range p.names {
		f, ok := lookupTransport(name)
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("%s: not registered", name))
			continue
		}
		h, err := f(p.cfg)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		p.factory = f
		p.log.Debug("selected transport", zap.String("transport", name))
		return h, nil
	}
	if errs == nil {
		p.failed = ErrNoTransport
	} else {
		p.failed = fmt.Errorf("%w: %w", ErrNoTransport, errs)
	}
	p.log.Error("no usable transport", zap.Strings("transports", p.names), zap.Error(errs))
	return nil, p.failed
}

// Release returns h to the pool, closing it when the pool is full.
func (p *Pool) Release(h Handle) {
	p.mu.Lock()
	if !p.closed && len(p.spare) < p.capacity {
		p.spare = append(p.spare, h)
		p.metrics.spare.Set(float64(len(p.spare)))
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.Discard(h)
}

// Discard closes h without returning it to the pool.
func (p *Pool) Discard(h Handle) {
	if err := h.Close(); err != nil {
		p.log.Debug("failed to close handle", zap.Error(err))
	}
}

// Spare returns the number of idle handles.
func (p *Pool) Spare() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.spare)
}

// Close closes every idle handle. Handles leased afterwards are refused.
func (p *Pool) Close() error {
	p.mu.Lock()
	spare := p.spare
	p.spare = nil
	p.closed = true
	p.metrics.spare.Set(0)
	p.mu.Unlock()

	var errs error
	for _, h := range spare {
		errs = multierr.Append(errs, h.Close())
	}
	return errs
}
