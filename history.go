// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Direction of a recorded body.
const (
	DirectionRequest  = "request"
	DirectionResponse = "response"
)

// HistoryEntry is one recorded request or response body.
type HistoryEntry struct {
	Direction string
	Body      []byte
	Time      time.Time
}

// history keeps the most recent bodies in a fixed-size ring.
type history struct {
	mu    sync.Mutex
	ring  []HistoryEntry
	next  int
	full  bool
	clock clock.Clock
}

func newHistory(size int, clk clock.Clock) *history {
	return &history{ring: make([]HistoryEntry, size), clock: clk}
}

func (h *history) record(direction string, body []byte) {
	if len(h.ring) == 0 {
		return
	}
	entry := HistoryEntry{
		Direction: direction,
		Body:      append([]byte(nil), body...),
		Time:      h.clock.Now(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.ring[h.next] = entry
	h.next = (h.next + 1) % len(h.ring)
	if h.next == 0 {
		h.full = true
	}
}

// entries returns the recorded bodies, oldest first.
func (h *history) entries() []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.full {
		return append([]HistoryEntry(nil), h.ring[:h.next]...)
	}
	out := make([]HistoryEntry, 0, len(h.ring))
	out = append(out, h.ring[h.next:]...)
	return append(out, h.ring[:h.next]...)
}

func (h *history) clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	clear(h.ring)
	h.next = 0
	h.full = false
}
