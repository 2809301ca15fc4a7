// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"context"
	"sync"
	"time"
)

// Profile records when a non-blocking call moved through the scheduler.
type Profile struct {
	Submit   time.Time
	Start    time.Time
	End      time.Time
	Dispatch time.Time
}

// Callback receives the outcome of a non-blocking call. Exactly one of result
// and err is meaningful; profile is nil unless profiling is enabled.
type Callback func(result interface{}, err error, profile *Profile)

// Call is an outstanding non-blocking request. It is created by Client.Go and
// owned by the scheduler until it is dispatched or discarded.
type Call struct {
	ID       uint64
	Method   string
	ObjectID int64
	Result   interface{}
	Error    error
	Profile  *Profile

	// Done receives the call once it has been dispatched, canceled or
	// abandoned by Close.
	Done chan *Call

	body     []byte
	callback Callback
	canceled bool // guarded by Scheduler.mu
	result   interface{}
	err      error
	sched    *Scheduler
	once     sync.Once
}

// Cancel marks the call canceled. See Scheduler.Cancel.
func (c *Call) Cancel() bool {
	if c.sched == nil {
		return false
	}
	return c.sched.Cancel(c.ID)
}

// Wait blocks until the call is done or ctx ends.
func (c *Call) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.Done:
		return c.Result, c.Error
	}
}

func (c *Call) finish(result interface{}, err error) {
	c.once.Do(func() {
		c.Result = result
		c.Error = err
		c.Done <- c
	})
}
