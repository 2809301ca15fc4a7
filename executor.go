// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import "sync"

// Executor runs deferred scheduler work. The scheduler never hands an executor
// more than one pending drain pass at a time.
type Executor interface {
	Schedule(task func())
}

// ExecutorFunc is a function adapter for Executor
type ExecutorFunc func(task func())

func (f ExecutorFunc) Schedule(task func()) {
	f(task)
}

// loopExecutor runs tasks one after another on a single goroutine.
type loopExecutor struct {
	tasks chan func()
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

func newLoopExecutor() *loopExecutor {
	e := &loopExecutor{
		tasks: make(chan func(), 1),
		done:  make(chan struct{}),
	}
	e.wg.Add(1)
	go e.loop()
	return e
}

func (e *loopExecutor) Schedule(task func()) {
	select {
	case e.tasks <- task:
	case <-e.done:
	}
}

func (e *loopExecutor) loop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.done:
			return
		case task := <-e.tasks:
			task()
		}
	}
}

// stop ends the loop without waiting for a running task.
func (e *loopExecutor) stop() {
	e.once.Do(func() {
		close(e.done)
	})
}

func (e *loopExecutor) Close() {
	e.stop()
	e.wg.Wait()
}
