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
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket limits the dispatch rate to rate_limit_rps with a burst
// capacity. It wraps golang.org/x/time/rate.Limiter behind the spec's
// consume/time_until_ready vocabulary rather than rate's Allow/Reserve,
// so the dispatch loop reads the same way the spec describes it.
type TokenBucket struct {
	limiter *rate.Limiter
}

// NewTokenBucket builds a bucket refilling at ratePerSecond with the given
// burst capacity.
func NewTokenBucket(ratePerSecond float64, burst int) *TokenBucket {
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucket{limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

// Consume attempts to take n tokens immediately, returning false without
// blocking if unavailable.
func (b *TokenBucket) Consume(n int) bool {
	return b.limiter.AllowN(time.Now(), n)
}

// TimeUntilReady reports how long the caller must wait before n tokens
// would be available, without consuming anything.
func (b *TokenBucket) TimeUntilReady(n int) time.Duration {
	r := b.limiter.ReserveN(time.Now(), n)
	defer r.Cancel()
	if !r.OK() {
		return 0
	}
	return r.Delay()
}
