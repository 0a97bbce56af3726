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

func TestWriterEnqueueAndDispatchEndToEnd(t *testing.T) {
	ft := &fakeTransport{nextToken: "tok"}
	w := newTestWriter(ft)

	w.Start(context.Background())
	if err := w.Enqueue(Diff{CanaryID: "line1", Entries: []DiffEntry{{Key: "A", Timestamp: time.Now(), Value: 1}}}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if w.StatsSnapshot().SuccessTotal == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	w.Stop(time.Second)

	stats := w.StatsSnapshot()
	if stats.SuccessTotal != 1 {
		t.Fatalf("SuccessTotal = %d, want 1", stats.SuccessTotal)
	}
	if ft.revokeCalls != 1 {
		t.Fatalf("revokeCalls = %d, want 1 (Stop should revoke the session)", ft.revokeCalls)
	}
}

func TestWriterStopWithoutTrafficSkipsRevoke(t *testing.T) {
	ft := &fakeTransport{nextToken: "tok"}
	w := newTestWriter(ft)

	w.Start(context.Background())
	w.Stop(time.Second)

	// No batches were dispatched, so no session should have been
	// acquired, and Revoke is a no-op in that case.
	if ft.revokeCalls != 0 {
		t.Fatalf("revokeCalls = %d, want 0 when no session was ever acquired", ft.revokeCalls)
	}
}

func TestWriterStatsSnapshotReportsOpenBreaker(t *testing.T) {
	ft := &fakeTransport{nextToken: "tok"}
	w := newTestWriter(ft)
	w.breaker = NewCircuitBreaker(1, time.Hour)
	// Force the breaker open so the run loop holds its batch in
	// waitForReady instead of dispatching it.
	w.breaker.RecordFailure()

	w.Start(context.Background())
	_ = w.Enqueue(Diff{CanaryID: "line1", Entries: []DiffEntry{{Key: "A", Timestamp: time.Now(), Value: 1}}})

	time.Sleep(20 * time.Millisecond)
	stats := w.StatsSnapshot()
	if stats.BreakerState != "open" {
		t.Fatalf("BreakerState = %q, want open", stats.BreakerState)
	}

	w.Stop(time.Second)
}
