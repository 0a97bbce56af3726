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
	"sync"
	"sync/atomic"
	"time"

	"github.com/aaronlmathis/uns-metadata-sync/internal/config"
	"github.com/aaronlmathis/uns-metadata-sync/internal/logging"
)

// Stats is a point-in-time snapshot of the writer's counters, for the
// /status endpoint.
type Stats struct {
	QueueDepth     int
	QueueDropped   int
	SuccessTotal   int64
	RetryTotal     int64
	FailureTotal   int64
	BreakerState   string
}

// Writer is the top-level Canary writer: it owns the queue, token bucket,
// circuit breaker, and session manager, and runs one background dispatch
// worker that pops batches and sends them until Stop is called.
type Writer struct {
	queue     *Queue
	bucket    *TokenBucket
	breaker   *CircuitBreaker
	session   *SessionManager
	transport Transport

	maxBatchTags    int
	maxPayloadBytes int
	retryAttempts   int
	retryBase       time.Duration
	retryMax        time.Duration
	deadLetter      DeadLetterHook

	successTotal atomic.Int64
	retryTotal   atomic.Int64
	failureTotal atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Writer from the Canary configuration section. deadLetter
// may be nil.
func New(cfg config.CanaryConfig, deadLetter DeadLetterHook) *Writer {
	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	transport := NewHTTPTransport(cfg.BaseURL, timeout, false)

	session := NewSessionManager(
		transport,
		cfg.APIToken,
		cfg.ClientID,
		cfg.Historians,
		cfg.SessionTimeoutMS,
		time.Duration(cfg.KeepaliveIdleSeconds*float64(time.Second)),
		time.Duration(cfg.KeepaliveJitterSeconds*float64(time.Second)),
	)

	return &Writer{
		queue:           NewQueue(cfg.QueueCapacity, func(d Diff) { logging.Warn("canary: queue full, dropping diff for %s", d.CanaryID) }),
		bucket:          NewTokenBucket(cfg.RateLimitRPS, cfg.BurstSize),
		breaker:         NewCircuitBreaker(cfg.CircuitConsecutiveFailures, time.Duration(cfg.CircuitResetSeconds*float64(time.Second))),
		session:         session,
		transport:       transport,
		maxBatchTags:    cfg.MaxBatchTags,
		maxPayloadBytes: cfg.MaxPayloadBytes,
		retryAttempts:   cfg.RetryAttempts,
		retryBase:       time.Duration(cfg.RetryBaseDelaySeconds * float64(time.Second)),
		retryMax:        time.Duration(cfg.RetryMaxDelaySeconds * float64(time.Second)),
		deadLetter:      deadLetter,
	}
}

// Enqueue appends d to the bounded queue, returning ErrQueueFull if it is
// at capacity.
func (w *Writer) Enqueue(d Diff) error {
	return w.queue.Enqueue(d)
}

// Start launches the background dispatch worker.
func (w *Writer) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)
}

// Stop cancels the dispatch worker and waits up to timeout for it to
// finish its in-flight batch, then revokes the session token. Any diffs
// still queued at this point are abandoned.
func (w *Writer) Stop(timeout time.Duration) {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		logging.Warn("canary: writer did not stop within %s", timeout)
	}

	revokeCtx, rcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer rcancel()
	w.session.Revoke(revokeCtx)
}

func (w *Writer) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		diffs, ok := w.queue.AcquireBatch(ctx, w.maxBatchTags)
		if !ok {
			return
		}

		if !w.waitForReady(ctx) {
			return
		}

		b, err := buildBatch(diffs, w.maxPayloadBytes)
		if err != nil {
			w.failureTotal.Add(1)
			logging.Error("canary: batch rejected: %v", err)
			for _, d := range diffs {
				if w.deadLetter != nil {
					w.deadLetter(d, err)
				}
			}
			continue
		}

		w.dispatch(ctx, b)
	}
}

// waitForReady blocks, polling at <=100ms intervals so shutdown is
// noticed promptly, until the circuit breaker admits a call and a token
// bucket slot is available.
func (w *Writer) waitForReady(ctx context.Context) bool {
	for !w.breaker.Allow() {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}

	for !w.bucket.Consume(1) {
		wait := w.bucket.TimeUntilReady(1)
		if wait > 100*time.Millisecond {
			wait = 100 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
	}
	return true
}

// StatsSnapshot reports the writer's current counters.
func (w *Writer) StatsSnapshot() Stats {
	return Stats{
		QueueDepth:   w.queue.Depth(),
		QueueDropped: w.queue.Dropped(),
		SuccessTotal: w.successTotal.Load(),
		RetryTotal:   w.retryTotal.Load(),
		FailureTotal: w.failureTotal.Load(),
		BreakerState: w.breaker.State().String(),
	}
}
