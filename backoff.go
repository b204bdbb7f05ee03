/*
 *
 * Copyright 2026 The statecast Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package statecast

import (
	"runtime"
	"time"
)

// Backoff controls how lock-free retry loops wait for the other side.
// Early attempts spin, later attempts yield the processor, and beyond
// YieldLimit each attempt sleeps. Retry loops that pass the attempt
// number through step get spin-then-yield-then-sleep behavior without
// any shared state, so a single Backoff value can be used from many
// goroutines.
type Backoff struct {
	// SpinLimit is the number of attempts that busy-spin before the
	// loop starts yielding.
	SpinLimit int

	// YieldLimit is the number of attempts (including spins) before
	// the loop starts sleeping.
	YieldLimit int

	// Sleep is the per-attempt sleep once past YieldLimit.
	Sleep time.Duration

	// MaxRetries bounds the total number of attempts. Zero means
	// retry forever.
	MaxRetries int
}

// DefaultBackoff is tuned for sub-millisecond writer critical sections:
// a torn snapshot read or a slot mid-fill resolves within a few spins
// almost always.
var DefaultBackoff = Backoff{
	SpinLimit:  64,
	YieldLimit: 1024,
	Sleep:      50 * time.Microsecond,
}

// step waits an amount appropriate for the given attempt number.
func (b Backoff) step(attempt int) {
	switch {
	case attempt < b.SpinLimit:
		// Busy-spin. The contended window is a handful of stores.
	case attempt < b.YieldLimit:
		runtime.Gosched()
	default:
		sleep := b.Sleep
		if sleep <= 0 {
			sleep = 50 * time.Microsecond
		}
		time.Sleep(sleep)
	}
}

// exhausted reports whether the attempt number has used up the retry
// budget.
func (b Backoff) exhausted(attempt int) bool {
	return b.MaxRetries > 0 && attempt >= b.MaxRetries
}
