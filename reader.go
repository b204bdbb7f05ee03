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
	"fmt"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Reader is an attached consumer of a channel: it copies snapshots out
// and sends commands back to the writer. Many Readers, across
// processes, may be attached to one channel at a time, bounded by the
// channel's MaxClients.
//
// A Reader's methods may be called concurrently.
type Reader struct {
	region   *Region
	clientID uint32
	// generation is this attachment's registry generation; it stamps
	// every sent command so the writer can discard messages whose
	// sender detached before they were drained.
	generation uint32
	backoff    Backoff
	closed     atomic.Bool

	// mu orders operations against Close: operations hold the read
	// side, Close unmaps under the write side after waking any waiter
	// blocked on the region's futex words.
	mu sync.RWMutex
}

// Open attaches to a named channel and claims a client id. It returns
// ErrChannelNotFound if no such channel exists and ErrClientsExhausted
// when the channel's client table is full.
func Open(name string) (*Reader, error) {
	region, err := openRegion(name)
	if err != nil {
		return nil, err
	}

	if region.Hdr.Closed() {
		region.Close()
		return nil, fmt.Errorf("%w: %s", ErrChannelClosed, name)
	}

	id, gen, err := region.Reg.acquire(uint32(os.Getpid()))
	if err != nil {
		region.Close()
		return nil, err
	}

	return &Reader{
		region:     region,
		clientID:   id,
		generation: gen,
		backoff:    DefaultBackoff,
	}, nil
}

// ClientID returns this reader's id, unique among attached readers and
// recycled after Close.
func (r *Reader) ClientID() uint32 {
	return r.clientID
}

// Name returns the channel name.
func (r *Reader) Name() string {
	return r.region.Name
}

// Config returns the channel's capacities as created.
func (r *Reader) Config() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed.Load() {
		return Config{}
	}
	return Config{
		DataSize:   r.region.Hdr.DataSize(),
		CmdSlots:   r.region.Hdr.CmdSlots(),
		MaxClients: r.region.Hdr.MaxClients(),
	}
}

// SetBackoff replaces the pacing policy used when a read races a
// publish. Call before sharing the Reader between goroutines.
func (r *Reader) SetBackoff(bo Backoff) {
	r.backoff = bo
}

// Read copies the current snapshot into buf and returns the number of
// bytes copied plus the snapshot's sequence number. Before the first
// publish it returns (0, 0, nil). After the writer closes the channel
// it returns ErrChannelClosed.
func (r *Reader) Read(buf []byte) (int, uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed.Load() || r.region.Hdr.Closed() {
		return 0, 0, ErrChannelClosed
	}
	return r.region.Snap.read(buf, r.backoff)
}

// TryRead is Read without the retry loop: a single copy attempt that
// returns ErrBusy when a publish raced the copy. Callers that can
// tolerate staleness keep their previous snapshot and poll again.
func (r *Reader) TryRead(buf []byte) (int, uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed.Load() || r.region.Hdr.Closed() {
		return 0, 0, ErrChannelClosed
	}
	return r.region.Snap.tryRead(buf)
}

// ReadIfNewer is Read that skips the copy when nothing was published
// since lastSeq. updated reports whether buf holds a fresh snapshot.
func (r *Reader) ReadIfNewer(buf []byte, lastSeq uint64) (n int, seq uint64, updated bool, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed.Load() || r.region.Hdr.Closed() {
		return 0, lastSeq, false, ErrChannelClosed
	}
	return r.region.Snap.readIfNewer(buf, lastSeq, r.backoff)
}

// WaitUpdate blocks until a snapshot newer than lastSeq exists, the
// writer closes the channel, or the timeout elapses. A zero or
// negative timeout waits indefinitely. On return with nil error a
// subsequent Read observes a sequence greater than lastSeq.
func (r *Reader) WaitUpdate(lastSeq uint64, timeout time.Duration) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		if r.closed.Load() || r.region.Hdr.Closed() {
			return ErrChannelClosed
		}
		if r.region.Snap.seq() > lastSeq {
			return nil
		}

		// Snapshot the event counter, then re-check so a publish that
		// lands in between cannot be missed.
		seq := r.region.Hdr.UpdateSeq()
		if r.region.Snap.seq() > lastSeq {
			return nil
		}

		waitNs := int64(0)
		if timeout > 0 {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return ErrWaitTimeout
			}
			waitNs = remaining.Nanoseconds()
		}
		if err := futexWaitTimeout(&r.region.Hdr.updateSeq, seq, waitNs); err != nil {
			return err
		}
	}
}

// Send enqueues a command for the writer. It fails fast with
// ErrQueueFull when the queue is full and ErrChannelClosed once the
// writer has torn the channel down; it never blocks on the consumer.
func (r *Reader) Send(p []byte) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed.Load() || r.region.Hdr.Closed() {
		return ErrChannelClosed
	}
	if err := r.region.Queue.sendBackoff(r.clientID, r.generation, p, r.backoff); err != nil {
		return err
	}
	r.region.Hdr.BumpCmdSeq()
	futexWake(&r.region.Hdr.cmdSeq, 1)
	return nil
}

// Closed reports whether the writer has torn the channel down.
func (r *Reader) Closed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed.Load() || r.region.Hdr.Closed()
}

// Close detaches from the channel, returning this reader's client id
// to the pool. Close is idempotent and never affects other readers or
// the writer.
func (r *Reader) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}

	// Bump both event counters so a waiter between its counter
	// snapshot and the sleep falls through, then kick everyone out of
	// futex sleeps. Waiters in other processes wake spuriously,
	// re-check their condition and go back to sleep.
	r.region.Hdr.BumpUpdateSeq()
	r.region.Hdr.BumpCmdSeq()
	futexWake(&r.region.Hdr.updateSeq, math.MaxInt32)
	futexWake(&r.region.Hdr.cmdSeq, math.MaxInt32)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.region.Reg.release(r.clientID)
	return r.region.Close()
}
