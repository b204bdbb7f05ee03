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
	"unsafe"
)

// commandQueue is the bounded multi-producer single-consumer message
// queue: a two-cursor header followed by fixed-size slots. Producers
// claim a monotonic index by CAS, fill their slot, and mark it ready;
// the single consumer drains in index order.
//
// A failed send consumes no index, so a full queue never deadlocks the
// consumer: every claimed index is eventually marked ready by the
// producer that won it.
type commandQueue struct {
	hdr   *QueueHeader
	mem   []byte
	base  uint64 // offset of slot 0
	slots uint32
}

// newCommandQueue builds a view over mem at the given offset.
func newCommandQueue(mem []byte, off uint64, slots uint32) *commandQueue {
	return &commandQueue{
		hdr:   (*QueueHeader)(unsafe.Pointer(&mem[off])),
		mem:   mem,
		base:  off + QueueHeaderSize,
		slots: slots,
	}
}

// slot returns the header and data area for a monotonic index.
func (q *commandQueue) slot(idx uint64) (*SlotHeader, []byte) {
	off := q.base + (idx%uint64(q.slots))*slotStride
	hdr := (*SlotHeader)(unsafe.Pointer(&q.mem[off]))
	data := q.mem[off+SlotHeaderSize : off+SlotHeaderSize+MaxCommandSize]
	return hdr, data
}

// send enqueues p on behalf of clientID, stamped with the sender's
// attachment generation. It fails fast with ErrQueueFull when the
// queue has no room; it never blocks waiting for the consumer.
func (q *commandQueue) send(clientID, gen uint32, p []byte) error {
	return q.sendBackoff(clientID, gen, p, DefaultBackoff)
}

// sendBackoff is send with an explicit pacing policy. bo applies only
// to producer-producer claim contention, never to a full queue.
func (q *commandQueue) sendBackoff(clientID, gen uint32, p []byte, bo Backoff) error {
	if len(p) == 0 {
		return ErrCommandEmpty
	}
	if len(p) > MaxCommandSize {
		return ErrCommandTooLarge
	}

	for attempt := 0; ; attempt++ {
		w := q.hdr.WriteIndex()
		r := q.hdr.ReadIndex()
		if w-r >= uint64(q.slots) {
			return ErrQueueFull
		}

		if !q.hdr.ClaimWriteIndex(w) {
			// Lost the claim race to another producer.
			if bo.exhausted(attempt) {
				return ErrRetryBudget
			}
			bo.step(attempt)
			continue
		}

		// Index w is ours alone. The capacity check above guarantees
		// the consumer has already drained the slot's previous lap.
		sh, data := q.slot(w)
		sh.SetState(slotWriting)
		sh.SetClientID(clientID)
		sh.SetGeneration(gen)
		copy(data, p)
		sh.SetLength(uint32(len(p)))
		sh.SetState(slotReady)
		return nil
	}
}

// tryRecv drains at most one message into buf, returning the message's
// full length, the originating client id and the sender's attachment
// generation stamp. ok is false when no message is ready; that
// includes a slot a producer has claimed but not yet finished, since
// draining past it would break arrival order.
//
// n is the stored message length even when buf is shorter; only
// min(n, len(buf)) bytes are copied, so n > len(buf) tells the caller
// its buffer was too small rather than silently shortening a command.
//
// Only the channel owner may call tryRecv, from one goroutine.
func (q *commandQueue) tryRecv(buf []byte) (n int, clientID, gen uint32, ok bool) {
	r := q.hdr.ReadIndex()
	sh, data := q.slot(r)
	if sh.State() != slotReady {
		return 0, 0, 0, false
	}

	length := sh.Length()
	if length > MaxCommandSize {
		length = MaxCommandSize
	}
	copied := length
	if copied > uint32(len(buf)) {
		copied = uint32(len(buf))
	}
	clientID = sh.ClientID()
	gen = sh.Generation()
	copy(buf[:copied], data[:copied])

	// Release the slot before publishing the new read index, so a
	// producer that observes the advanced cursor finds the slot empty.
	sh.SetState(slotEmpty)
	q.hdr.SetReadIndex(r + 1)

	return int(length), clientID, gen, true
}

// pending returns the number of claimed-but-undrained messages.
func (q *commandQueue) pending() uint64 {
	return q.hdr.Pending()
}

// reset clears the cursors and all slot states.
func (q *commandQueue) reset() {
	// No CAS needed: reset runs before the region is shared.
	q.hdr.SetWriteIndex(0)
	q.hdr.SetReadIndex(0)
	for i := uint64(0); i < uint64(q.slots); i++ {
		sh, _ := q.slot(i)
		sh.SetState(slotEmpty)
		sh.SetLength(0)
		sh.SetClientID(0)
		sh.SetGeneration(0)
	}
}
