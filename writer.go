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
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Writer is the owning side of a channel: it publishes snapshots and
// drains the command queue. There is exactly one Writer per channel;
// creating it creates the shared memory region, closing it tears the
// channel down for every attached Reader.
//
// Publish and the receive methods may be used from different
// goroutines, but each must be called from at most one goroutine at a
// time.
type Writer struct {
	region *Region
	closed atomic.Bool

	// mu orders operations against Close: operations hold the read
	// side, Close unmaps under the write side after waking any waiter
	// blocked on the region's futex words.
	mu sync.RWMutex
}

// Create creates a named channel and returns its Writer. A name
// already backed by a live writer yields ErrNameInUse; leftovers from
// a writer that crashed or closed are silently reclaimed.
func Create(name string, cfg Config) (*Writer, error) {
	region, err := createRegion(name, cfg)
	if err != nil {
		return nil, err
	}
	return &Writer{region: region}, nil
}

// Name returns the channel name.
func (w *Writer) Name() string {
	return w.region.Name
}

// Config returns the channel's capacities as created.
func (w *Writer) Config() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed.Load() {
		return Config{}
	}
	return Config{
		DataSize:   w.region.Hdr.DataSize(),
		CmdSlots:   w.region.Hdr.CmdSlots(),
		MaxClients: w.region.Hdr.MaxClients(),
	}
}

// Publish replaces the channel snapshot with p and wakes any readers
// blocked in WaitUpdate. Readers that copy concurrently either get the
// previous snapshot or retry; none sees a torn mix.
func (w *Writer) Publish(p []byte) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed.Load() {
		return ErrChannelClosed
	}
	if _, err := w.region.Snap.publish(p); err != nil {
		return err
	}
	w.region.Hdr.BumpUpdateSeq()
	futexWake(&w.region.Hdr.updateSeq, math.MaxInt32)
	return nil
}

// Seq returns the snapshot sequence of the latest publish, zero before
// the first.
func (w *Writer) Seq() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed.Load() {
		return 0
	}
	return w.region.Snap.seq()
}

// TryRecv drains at most one pending command into buf, returning its
// full length and the sender's client id. ok is false when none is
// ready. If buf is shorter than the command, only len(buf) bytes are
// copied and n still reports the full length; pass a MaxCommandSize
// buffer to never hit that case.
//
// Commands whose sender detached after sending are discarded, never
// returned: a freed or reissued client id is not a valid attribution.
func (w *Writer) TryRecv(buf []byte) (n int, clientID uint32, ok bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed.Load() {
		return 0, 0, false
	}
	return w.drainOne(buf)
}

// drainOne pops messages until one from a still-attached sender turns
// up. The registry generation advances when an id is released, so a
// stamp from a sender that has since detached cannot match even after
// the id is handed to a new client.
func (w *Writer) drainOne(buf []byte) (n int, clientID uint32, ok bool) {
	for {
		n, id, gen, ok := w.region.Queue.tryRecv(buf)
		if !ok {
			return 0, 0, false
		}
		if w.region.Reg.generationMatches(id, gen) {
			return n, id, true
		}
	}
}

// Recv drains one command, blocking until one arrives or the timeout
// elapses. A zero or negative timeout blocks indefinitely. Returns
// ErrWaitTimeout on timeout and ErrChannelClosed once the writer is
// closed. Buffer sizing and detached-sender discarding follow TryRecv.
func (w *Writer) Recv(buf []byte, timeout time.Duration) (n int, clientID uint32, err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		if w.closed.Load() {
			return 0, 0, ErrChannelClosed
		}
		if n, clientID, ok := w.drainOne(buf); ok {
			return n, clientID, nil
		}

		// Snapshot the event counter, then re-check so a send that
		// lands in between cannot be missed.
		seq := w.region.Hdr.CmdSeq()
		if n, clientID, ok := w.drainOne(buf); ok {
			return n, clientID, nil
		}

		waitNs := int64(0)
		if timeout > 0 {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return 0, 0, ErrWaitTimeout
			}
			waitNs = remaining.Nanoseconds()
		}
		if err := futexWaitTimeout(&w.region.Hdr.cmdSeq, seq, waitNs); err != nil {
			return 0, 0, err
		}
	}
}

// Pending returns the number of commands sent but not yet drained.
func (w *Writer) Pending() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed.Load() {
		return 0
	}
	return w.region.Queue.pending()
}

// Clients returns the number of currently attached readers.
func (w *Writer) Clients() uint32 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed.Load() {
		return 0
	}
	return w.region.Reg.count()
}

// Close tears the channel down: it raises the closed sentinel so
// attached readers fail their next operation with ErrChannelClosed,
// wakes every blocked waiter, unlinks the backing file and unmaps the
// region. Close is idempotent.
func (w *Writer) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}

	w.region.Hdr.SetClosed(true)

	// Bump both event counters so sleepers that re-check their
	// snapshot value fall through, then wake them. Waiters in this
	// process observe the closed flag, drop their read lock and bail;
	// only then can the write lock below be taken and the mapping
	// dropped.
	w.region.Hdr.BumpUpdateSeq()
	w.region.Hdr.BumpCmdSeq()
	futexWake(&w.region.Hdr.updateSeq, math.MaxInt32)
	futexWake(&w.region.Hdr.cmdSeq, math.MaxInt32)

	w.mu.Lock()
	defer w.mu.Unlock()

	firstErr := w.region.Unlink()
	if err := w.region.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
