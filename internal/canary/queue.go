/*
SPDX-License-Identifier: GPL-3.0-or-later

Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com

This file is part of GoSight.

GoSight is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

GoSight is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with GoSight. If not, see https://www.gnu.org/licenses/.
*/

// Package canary is the downstream historian writer: a bounded queue, a
// token bucket, a batcher, a retrying circuit-broken dispatcher, and a
// session-token lifecycle manager, all feeding a single background
// dispatch worker.
package canary

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueFull is returned by Enqueue when the queue is at capacity.
var ErrQueueFull = errors.New("canary: queue is full")

// BackpressureHook is invoked (best-effort, never blocking) whenever
// Enqueue rejects a diff for lack of capacity.
type BackpressureHook func(d Diff)

// Queue is the bounded, multi-producer single-consumer FIFO between the
// CDC sink and the dispatch worker. Per the redesign note replacing the
// source's lock-plus-condition-variable monitor, it is a buffered Go
// channel guarded by a small counter for depth/drop reporting.
type Queue struct {
	ch           chan Diff
	backpressure BackpressureHook

	mu      sync.Mutex
	dropped int
}

// NewQueue builds a queue with the given capacity (must be > 0) and an
// optional backpressure hook.
func NewQueue(capacity int, backpressure BackpressureHook) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		ch:           make(chan Diff, capacity),
		backpressure: backpressure,
	}
}

// Enqueue appends d without blocking. If the queue is full it returns
// ErrQueueFull and invokes the backpressure hook, if any.
func (q *Queue) Enqueue(d Diff) error {
	select {
	case q.ch <- d:
		return nil
	default:
		q.mu.Lock()
		q.dropped++
		q.mu.Unlock()
		if q.backpressure != nil {
			q.backpressure(d)
		}
		return ErrQueueFull
	}
}

// AcquireBatch blocks until at least one item is available, ctx is
// cancelled, or the queue is closed, then drains up to maxItems items
// without blocking further. ok is false only when no batch could be
// acquired because of shutdown.
func (q *Queue) AcquireBatch(ctx context.Context, maxItems int) (batch []Diff, ok bool) {
	if maxItems <= 0 {
		maxItems = 1
	}

	select {
	case d, open := <-q.ch:
		if !open {
			return nil, false
		}
		batch = append(batch, d)
	case <-ctx.Done():
		return nil, false
	}

	for len(batch) < maxItems {
		select {
		case d, open := <-q.ch:
			if !open {
				return batch, true
			}
			batch = append(batch, d)
		default:
			return batch, true
		}
	}
	return batch, true
}

// Close closes the underlying channel. AcquireBatch still returns Diffs
// that were queued before Close and reports ok=false once they are
// drained; Enqueue after Close panics.
func (q *Queue) Close() {
	close(q.ch)
}

// Depth reports the number of items currently queued.
func (q *Queue) Depth() int {
	return len(q.ch)
}

// Dropped reports how many Enqueue calls have failed with ErrQueueFull.
func (q *Queue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
