// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

type schedulerHarness struct {
	sched   *Scheduler
	builder *requestBuilder
	metrics *metrics
}

func newSchedulerHarness(t *testing.T, exchange exchangeFunc, opts ...Option) *schedulerHarness {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	o := newOptions(opts)
	require.NoError(t, o.validate())
	m, err := newMetrics(nil)
	require.NoError(t, err)
	return &schedulerHarness{
		sched:   newScheduler(o, exchange, m),
		builder: newRequestBuilder(o.codec, o.clock, o.profiling),
		metrics: m,
	}
}

func (h *schedulerHarness) submit(t *testing.T, cb Callback) *Call {
	t.Helper()
	call, err := h.builder.build("echo", nil, 0, false)
	require.NoError(t, err)
	call.callback = cb
	require.NoError(t, h.sched.submit(call))
	return call
}

func echoExchange(_ context.Context, call *Call) (interface{}, error) {
	return call.ID, nil
}

// gatedExchange holds every exchange until release is closed or the scheduler
// shuts down.
func gatedExchange(release <-chan struct{}) exchangeFunc {
	return func(ctx context.Context, call *Call) (interface{}, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return call.ID, nil
	}
}

func waitDone(t *testing.T, call *Call) (interface{}, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := call.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	return result, err
}

func TestSchedulerCoalescesDrains(t *testing.T) {
	exec := &manualExecutor{}
	h := newSchedulerHarness(t, gatedExchange(nil), WithExecutor(exec))
	defer h.sched.Close()

	h.submit(t, nil)
	h.submit(t, nil)
	require.Equal(t, 1, exec.Pending())
	require.Equal(t, 2, h.sched.Stats().Queued)

	exec.RunAll()
	require.Equal(t, float64(1), testutil.ToFloat64(h.metrics.drains))
}

func TestSchedulerDispatchesInCompletionOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var mu sync.Mutex
	var got []uint64
	h := newSchedulerHarness(t, echoExchange)

	calls := make([]*Call, 0, 5)
	for i := 0; i < 5; i++ {
		calls = append(calls, h.submit(t, func(result interface{}, err error, _ *Profile) {
			assert.NoError(t, err)
			mu.Lock()
			got = append(got, result.(uint64))
			mu.Unlock()
		}))
	}
	for _, call := range calls {
		result, err := waitDone(t, call)
		require.NoError(t, err)
		require.Equal(t, call.ID, result)
	}
	h.sched.Close()

	// One slot means completion order equals submission order.
	require.Equal(t, []uint64{1, 2, 3, 4, 5}, got)
}

func TestSchedulerLimitsInFlight(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	const limit = 2
	var (
		current atomic.Int32
		peak    atomic.Int32
		release = make(chan struct{})
	)
	exchange := func(ctx context.Context, call *Call) (interface{}, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		current.Add(-1)
		return call.ID, nil
	}
	h := newSchedulerHarness(t, exchange, WithMaxConcurrent(limit))

	calls := make([]*Call, 0, 6)
	for i := 0; i < 6; i++ {
		calls = append(calls, h.submit(t, nil))
	}
	require.Eventually(t, func() bool {
		s := h.sched.Stats()
		return s.InFlight == limit && s.Queued == 4
	}, 5*time.Second, time.Millisecond)

	close(release)
	for _, call := range calls {
		_, err := waitDone(t, call)
		require.NoError(t, err)
	}
	h.sched.Close()
	require.LessOrEqual(t, peak.Load(), int32(limit))
}

func TestSchedulerCancelQueuedNeverSent(t *testing.T) {
	exec := &manualExecutor{}
	release := make(chan struct{})
	var sent sync.Map
	exchange := func(_ context.Context, call *Call) (interface{}, error) {
		sent.Store(call.ID, true)
		<-release
		return call.ID, nil
	}
	h := newSchedulerHarness(t, exchange, WithExecutor(exec))
	defer h.sched.Close()

	var dispatched atomic.Int32
	cb := func(interface{}, error, *Profile) { dispatched.Add(1) }
	first := h.submit(t, cb)
	second := h.submit(t, cb)
	exec.RunAll()
	require.Equal(t, 1, h.sched.Stats().InFlight)

	require.True(t, second.Cancel())
	require.False(t, second.Cancel())

	close(release)
	require.Eventually(t, func() bool { return exec.Pending() > 0 }, 5*time.Second, time.Millisecond)
	exec.RunAll()

	_, err := waitDone(t, first)
	require.NoError(t, err)
	_, err = waitDone(t, second)
	require.ErrorIs(t, err, ErrCanceled)

	_, ok := sent.Load(second.ID)
	require.False(t, ok)
	require.Equal(t, int32(1), dispatched.Load())
	require.Equal(t, float64(1), testutil.ToFloat64(h.metrics.canceled.WithLabelValues(stageQueued)))
}

func TestSchedulerCancelCompletedNeverDispatched(t *testing.T) {
	exec := &manualExecutor{}
	release := make(chan struct{})
	h := newSchedulerHarness(t, gatedExchange(release), WithExecutor(exec))
	defer h.sched.Close()

	var dispatched atomic.Bool
	call := h.submit(t, func(interface{}, error, *Profile) { dispatched.Store(true) })
	exec.RunAll()
	close(release)
	require.Eventually(t, func() bool { return h.sched.Stats().Completed == 1 }, 5*time.Second, time.Millisecond)

	require.True(t, h.sched.Cancel(call.ID))
	require.False(t, h.sched.Cancel(call.ID))
	exec.RunAll()

	_, err := waitDone(t, call)
	require.ErrorIs(t, err, ErrCanceled)
	require.False(t, dispatched.Load())
	require.False(t, h.sched.Cancel(call.ID))
}

func TestSchedulerCancelInFlight(t *testing.T) {
	exec := &manualExecutor{}
	release := make(chan struct{})
	h := newSchedulerHarness(t, gatedExchange(release), WithExecutor(exec))
	defer h.sched.Close()

	var dispatched atomic.Bool
	call := h.submit(t, func(interface{}, error, *Profile) { dispatched.Store(true) })
	exec.RunAll()
	require.Equal(t, 1, h.sched.Stats().InFlight)

	require.True(t, h.sched.Cancel(call.ID))
	close(release)

	_, err := waitDone(t, call)
	require.ErrorIs(t, err, ErrCanceled)
	require.Eventually(t, func() bool { return exec.Pending() > 0 }, 5*time.Second, time.Millisecond)
	exec.RunAll()
	require.False(t, dispatched.Load())
	require.Equal(t, Stats{}, h.sched.Stats())
}

func TestSchedulerCancelUnknown(t *testing.T) {
	h := newSchedulerHarness(t, echoExchange, WithExecutor(&manualExecutor{}))
	defer h.sched.Close()
	require.False(t, h.sched.Cancel(42))
}

func TestSchedulerCallbackPanic(t *testing.T) {
	exec := &manualExecutor{}
	release := make(chan struct{})
	var handled []error
	h := newSchedulerHarness(t, gatedExchange(release),
		WithExecutor(exec),
		WithMaxConcurrent(2),
		WithExceptionHandler(func(err error) { handled = append(handled, err) }),
	)
	defer h.sched.Close()

	var ran atomic.Bool
	panicking := h.submit(t, func(interface{}, error, *Profile) { panic("bad callback") })
	other := h.submit(t, func(interface{}, error, *Profile) { ran.Store(true) })
	exec.RunAll()
	close(release)
	require.Eventually(t, func() bool { return h.sched.Stats().Completed == 2 }, 5*time.Second, time.Millisecond)
	exec.RunAll()

	require.Len(t, handled, 1)
	require.ErrorIs(t, handled[0], ErrCallbackPanic)
	require.Contains(t, handled[0].Error(), "bad callback")
	require.True(t, ran.Load())
	require.Equal(t, float64(1), testutil.ToFloat64(h.metrics.callbackPanics))

	_, err := waitDone(t, panicking)
	require.NoError(t, err)
	_, err = waitDone(t, other)
	require.NoError(t, err)
	require.Len(t, handled, 1)
}

func TestSchedulerDeliversExchangeErrors(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	failure := connectionError(errors.New("dial tcp: refused"))
	h := newSchedulerHarness(t, func(context.Context, *Call) (interface{}, error) {
		return nil, failure
	})

	errs := make(chan error, 1)
	call := h.submit(t, func(result interface{}, err error, _ *Profile) {
		assert.Nil(t, result)
		errs <- err
	})
	_, err := waitDone(t, call)
	require.ErrorIs(t, err, ErrConnection)
	require.ErrorIs(t, <-errs, ErrConnection)
	h.sched.Close()
}

func TestSchedulerProfile(t *testing.T) {
	mock := clock.NewMock()
	start := mock.Now()
	exec := &manualExecutor{}
	release := make(chan struct{})
	exchange := func(_ context.Context, call *Call) (interface{}, error) {
		<-release
		mock.Add(time.Second)
		return call.ID, nil
	}
	h := newSchedulerHarness(t, exchange, WithExecutor(exec), WithClock(mock), WithProfiling())
	defer h.sched.Close()

	profiles := make(chan *Profile, 1)
	call := h.submit(t, func(_ interface{}, _ error, p *Profile) { profiles <- p })
	mock.Add(time.Second)
	exec.RunAll()
	close(release)
	require.Eventually(t, func() bool { return h.sched.Stats().Completed == 1 }, 5*time.Second, time.Millisecond)
	mock.Add(time.Second)
	exec.RunAll()

	p := <-profiles
	require.Same(t, call.Profile, p)
	require.Equal(t, start, p.Submit)
	require.Equal(t, start.Add(time.Second), p.Start)
	require.Equal(t, start.Add(2*time.Second), p.End)
	require.Equal(t, start.Add(3*time.Second), p.Dispatch)
}

func TestSchedulerClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newSchedulerHarness(t, gatedExchange(nil))

	inflight := h.submit(t, nil)
	queued := h.submit(t, nil)
	require.Eventually(t, func() bool { return h.sched.Stats().InFlight == 1 }, 5*time.Second, time.Millisecond)

	h.sched.Close()
	_, err := waitDone(t, inflight)
	require.ErrorIs(t, err, ErrClosed)
	_, err = waitDone(t, queued)
	require.ErrorIs(t, err, ErrClosed)

	call, err := h.builder.build("echo", nil, 0, false)
	require.NoError(t, err)
	require.ErrorIs(t, h.sched.submit(call), ErrClosed)

	// Closing twice is a no-op.
	h.sched.Close()
}

func TestSchedulerCloseFromCallback(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newSchedulerHarness(t, echoExchange)
	closed := make(chan struct{})
	call := h.submit(t, func(interface{}, error, *Profile) {
		h.sched.Close()
		close(closed)
	})
	_, err := waitDone(t, call)
	require.NoError(t, err)
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close from callback did not return")
	}
}
