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
	"fmt"
	"time"

	"github.com/aaronlmathis/uns-metadata-sync/internal/cdc"
	"github.com/aaronlmathis/uns-metadata-sync/internal/logging"
)

// DeadLetterHook receives one diff from a batch that exhausted every retry
// attempt, alongside the final error.
type DeadLetterHook func(d Diff, err error)

// dispatch sends one batch with the configured retry policy: attempts =
// 1 + retryAttempts, exponential backoff with full jitter between
// attempts. Network errors, HTTP 5xx/429, and session errors are
// retriable; any other 4xx is not. On exhaustion every diff in the batch
// is handed to the dead-letter hook.
func (w *Writer) dispatch(ctx context.Context, b batch) {
	attempts := 1 + w.retryAttempts
	backoff := cdc.NewBackoff(w.retryBase, 2.0, w.retryMax, true, 0)

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		token, err := w.session.GetToken(ctx)
		if err != nil {
			lastErr = fmt.Errorf("acquire session: %w", err)
			if attempt == attempts-1 {
				break
			}
			w.retryTotal.Add(1)
			w.sleepBetweenAttempts(ctx, backoff)
			continue
		}

		status, body, sendErr := w.transport.StoreData(ctx, token, b.properties)
		if sendErr == nil && status >= 200 && status < 300 {
			w.breaker.RecordSuccess()
			w.session.MarkActivity()
			w.successTotal.Add(1)
			return
		}

		w.breaker.RecordFailure()

		var retryable bool
		switch {
		case sendErr != nil:
			lastErr = sendErr
			retryable = true
		case isSessionError(status, body):
			lastErr = fmt.Errorf("session invalidated (status %d)", status)
			w.session.Invalidate()
			retryable = true
		case status == 429 || status >= 500:
			lastErr = fmt.Errorf("store data failed with status %d", status)
			retryable = true
		default:
			lastErr = fmt.Errorf("store data rejected with status %d", status)
			retryable = false
		}

		if !retryable || attempt == attempts-1 {
			break
		}
		w.retryTotal.Add(1)
		w.sleepBetweenAttempts(ctx, backoff)
	}

	w.failureTotal.Add(1)
	logging.Error("canary: batch permanently failed after %d attempts: %v", attempts, lastErr)
	for _, d := range b.diffs {
		if w.deadLetter != nil {
			w.deadLetter(d, lastErr)
		}
	}
}

func (w *Writer) sleepBetweenAttempts(ctx context.Context, backoff *cdc.Backoff) {
	delay, err := backoff.Next()
	if err != nil {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}
