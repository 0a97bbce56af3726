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

package canary

import (
	"context"
	"testing"
	"time"
)

func TestQueueEnqueueAndAcquireBatch(t *testing.T) {
	q := NewQueue(4, nil)
	for i := 0; i < 3; i++ {
		if err := q.Enqueue(Diff{CanaryID: "c1"}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	batch, ok := q.AcquireBatch(ctx, 10)
	if !ok {
		t.Fatal("expected batch")
	}
	if len(batch) != 3 {
		t.Fatalf("got %d items, want 3", len(batch))
	}
}

func TestQueueAcquireBatchRespectsMaxItems(t *testing.T) {
	q := NewQueue(10, nil)
	for i := 0; i < 5; i++ {
		_ = q.Enqueue(Diff{CanaryID: "c1"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	batch, ok := q.AcquireBatch(ctx, 2)
	if !ok || len(batch) != 2 {
		t.Fatalf("got %d items ok=%v, want 2 true", len(batch), ok)
	}
	if q.Depth() != 3 {
		t.Fatalf("depth = %d, want 3", q.Depth())
	}
}

func TestQueueEnqueueFullInvokesBackpressure(t *testing.T) {
	var dropped Diff
	hookCalled := false
	q := NewQueue(1, func(d Diff) {
		hookCalled = true
		dropped = d
	})

	if err := q.Enqueue(Diff{CanaryID: "first"}); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if err := q.Enqueue(Diff{CanaryID: "second"}); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if !hookCalled || dropped.CanaryID != "second" {
		t.Fatalf("backpressure hook not invoked correctly: called=%v dropped=%+v", hookCalled, dropped)
	}
	if q.Dropped() != 1 {
		t.Fatalf("dropped counter = %d, want 1", q.Dropped())
	}
}

func TestQueueAcquireBatchBlocksUntilCancelled(t *testing.T) {
	q := NewQueue(1, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, ok := q.AcquireBatch(ctx, 10)
	if ok {
		t.Fatal("expected AcquireBatch to fail on cancelled context with an empty queue")
	}
}
