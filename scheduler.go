// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"context"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ExceptionHandler receives errors that cannot be returned to a caller, such
// as panics raised by callbacks.
type ExceptionHandler func(err error)

// exchangeFunc performs one request/response round trip for call.
type exchangeFunc func(ctx context.Context, call *Call) (interface{}, error)

// Stats is a snapshot of the scheduler queues.
type Stats struct {
	Queued    int
	InFlight  int
	Completed int
}

// Scheduler runs non-blocking calls. Calls wait in a FIFO queue until a send
// slot is free, are exchanged on their own goroutine, and have their callbacks
// dispatched one at a time from drain passes handed to an Executor.
//
// Drain passes are coalesced: at most one is scheduled at any time and passes
// never overlap.
type Scheduler struct {
	mu             sync.Mutex
	queued         []*Call
	inflight       map[uint64]*Call
	completed      []*Call
	drainScheduled bool
	draining       bool
	closed         bool

	// drainMu serializes drain passes for executors that run tasks concurrently.
	drainMu sync.Mutex

	slots    *semaphore.Weighted
	exec     Executor
	loop     *loopExecutor // set when exec is owned by the scheduler
	exchange exchangeFunc
	handler  ExceptionHandler
	clock    clock.Clock
	metrics  *metrics
	log      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newScheduler(o *options, exchange exchangeFunc, m *metrics) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		inflight: make(map[uint64]*Call),
		slots:    semaphore.NewWeighted(int64(o.maxConcurrent)),
		exec:     o.executor,
		exchange: exchange,
		handler:  o.handler,
		clock:    o.clock,
		metrics:  m,
		log:      o.logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	if s.exec == nil {
		s.loop = newLoopExecutor()
		s.exec = s.loop
	}
	if s.handler == nil {
		log := o.logger
		s.handler = func(err error) {
			log.Error("unhandled callback error", zap.Error(err))
		}
	}
	return s
}

// submit queues call and schedules a drain pass.
func (s *Scheduler) submit(call *Call) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	call.sched = s
	s.queued = append(s.queued, call)
	s.metrics.queued.Set(float64(len(s.queued)))
	s.mu.Unlock()

	s.kick()
	return nil
}

// kick schedules a drain pass unless one is already pending.
func (s *Scheduler) kick() {
	s.mu.Lock()
	if s.drainScheduled || s.closed {
		s.mu.Unlock()
		return
	}
	s.drainScheduled = true
	s.mu.Unlock()

	s.exec.Schedule(s.drain)
}

func (s *Scheduler) drain() {
	s.drainMu.Lock()
	defer s.drainMu.Unlock()

	s.mu.Lock()
	s.drainScheduled = false
	s.draining = true
	s.mu.Unlock()
	s.metrics.drains.Inc()

	defer func() {
		s.mu.Lock()
		s.draining = false
		s.mu.Unlock()
	}()

	for {
		s.mu.Lock()
		if len(s.completed) == 0 {
			s.mu.Unlock()
			break
		}
		call := s.completed[0]
		s.completed[0] = nil
		s.completed = s.completed[1:]
		canceled := call.canceled
		s.mu.Unlock()

		if canceled {
			s.log.Debug("discarding canceled response", zap.Uint64("id", call.ID))
			call.finish(nil, ErrCanceled)
			continue
		}
		s.dispatch(call)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queued) > 0 && !s.closed {
		call := s.queued[0]
		if !call.canceled && !s.slots.TryAcquire(1) {
			break
		}
		s.queued[0] = nil
		s.queued = s.queued[1:]
		if call.canceled {
			s.log.Debug("dropping canceled request", zap.Uint64("id", call.ID))
			call.finish(nil, ErrCanceled)
			continue
		}
		s.inflight[call.ID] = call
		s.wg.Add(1)
		go s.transmit(call)
	}
	s.metrics.queued.Set(float64(len(s.queued)))
	s.metrics.inflight.Set(float64(len(s.inflight)))
}

func (s *Scheduler) dispatch(call *Call) {
	if call.Profile != nil {
		call.Profile.Dispatch = s.clock.Now()
	}
	if call.callback != nil {
		s.invoke(call)
	}
	call.finish(call.result, call.err)
}

func (s *Scheduler) invoke(call *Call) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.callbackPanics.Inc()
			s.handler(fmt.Errorf("%w: request %d: %v", ErrCallbackPanic, call.ID, r))
		}
	}()
	call.callback(call.result, call.err, call.Profile)
}

func (s *Scheduler) transmit(call *Call) {
	defer s.wg.Done()

	if call.Profile != nil {
		call.Profile.Start = s.clock.Now()
	}
	result, err := s.exchange(s.ctx, call)
	if call.Profile != nil {
		call.Profile.End = s.clock.Now()
	}
	s.complete(call, result, err)
}

// complete moves call out of the in-flight set. It runs exactly once per
// transmitted call, whether the exchange succeeded or not.
func (s *Scheduler) complete(call *Call, result interface{}, err error) {
	s.mu.Lock()
	delete(s.inflight, call.ID)
	s.slots.Release(1)
	s.metrics.inflight.Set(float64(len(s.inflight)))
	call.result, call.err = result, err
	switch {
	case call.canceled:
		call.finish(nil, ErrCanceled)
	case s.closed:
		call.finish(nil, ErrClosed)
	default:
		s.completed = append(s.completed, call)
	}
	s.mu.Unlock()

	s.kick()
}

// Cancel marks the call with the given id canceled. It reports whether a
// live, not yet canceled call was found in flight, queued or completed. A
// canceled call is never dispatched; a transfer already in progress is not
// aborted.
func (s *Scheduler) Cancel(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if call, ok := s.inflight[id]; ok {
		return s.markCanceled(call, stageInflight)
	}
	for _, call := range s.queued {
		if call.ID == id {
			return s.markCanceled(call, stageQueued)
		}
	}
	for _, call := range s.completed {
		if call.ID == id {
			return s.markCanceled(call, stageCompleted)
		}
	}
	return false
}

func (s *Scheduler) markCanceled(call *Call, stage string) bool {
	if call.canceled {
		return false
	}
	call.canceled = true
	s.metrics.canceled.WithLabelValues(stage).Inc()
	return true
}

// Stats returns the current queue sizes.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Queued:    len(s.queued),
		InFlight:  len(s.inflight),
		Completed: len(s.completed),
	}
}

// Close rejects further calls and completes every outstanding future with
// ErrClosed. It waits for in-flight exchanges to return. Close may be called
// from a callback.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	draining := s.draining
	abandoned := make([]*Call, 0, len(s.queued)+len(s.completed))
	abandoned = append(abandoned, s.queued...)
	abandoned = append(abandoned, s.completed...)
	s.queued = nil
	s.completed = nil
	s.metrics.queued.Set(0)
	s.mu.Unlock()

	s.cancel()
	for _, call := range abandoned {
		call.finish(nil, ErrClosed)
	}
	s.wg.Wait()

	if s.loop != nil {
		if draining {
			s.loop.stop()
		} else {
			s.loop.Close()
		}
	}
	s.log.Debug("scheduler closed", zap.Int("abandoned", len(abandoned)))
}
