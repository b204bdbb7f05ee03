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

// snapshotRegion is the seqlock-guarded snapshot area: a 64-byte header
// followed by the payload bytes. The counter is even while the payload
// is stable and odd while the writer is mid-publish; a reader that
// observes the same even value before and after its copy holds an
// untorn snapshot.
//
// Exactly one goroutine in one process may publish. Any number of
// goroutines in any number of attached processes may read.
type snapshotRegion struct {
	hdr      *SnapshotHeader
	data     []byte
	capacity uint64
}

// newSnapshotRegion builds a view over mem at the given offset. mem may
// be a shared mapping or an ordinary aligned buffer; the seqlock does
// not care what backs it.
func newSnapshotRegion(mem []byte, off, dataSize uint64) *snapshotRegion {
	return &snapshotRegion{
		hdr:      (*SnapshotHeader)(unsafe.Pointer(&mem[off])),
		data:     mem[off+SnapshotHeaderSize : off+SnapshotHeaderSize+dataSize],
		capacity: dataSize,
	}
}

// publish replaces the snapshot with p and returns the new (even)
// sequence value. Readers racing with the copy see an odd counter or a
// counter mismatch and retry; they never see a mix of old and new
// bytes as a successful read.
func (s *snapshotRegion) publish(p []byte) (uint64, error) {
	if uint64(len(p)) > s.capacity {
		return 0, ErrSnapshotTooLarge
	}

	seq := s.hdr.WriteSeq()

	// Odd: payload unstable. The atomic store orders the marker before
	// the payload writes below.
	s.hdr.SetWriteSeq(seq + 1)

	copy(s.data, p)
	s.hdr.SetDataLen(uint64(len(p)))

	// Even again: payload stable.
	s.hdr.SetWriteSeq(seq + 2)

	return seq + 2, nil
}

// seq returns the current seqlock counter. Zero means nothing has been
// published yet.
func (s *snapshotRegion) seq() uint64 {
	return s.hdr.WriteSeq()
}

// read copies the current snapshot into buf, retrying per bo until it
// obtains an untorn copy. It returns the number of bytes copied and the
// sequence value the copy was validated against.
//
// Before the first publish it returns (0, 0, nil): the channel exists
// but carries no snapshot yet. If buf is shorter than the snapshot,
// only len(buf) bytes are copied. A bounded bo that runs out of
// attempts yields ErrRetryBudget.
func (s *snapshotRegion) read(buf []byte, bo Backoff) (int, uint64, error) {
	for attempt := 0; ; attempt++ {
		n, seq, err := s.tryRead(buf)
		if err == nil {
			return n, seq, nil
		}
		if bo.exhausted(attempt) {
			return 0, 0, ErrRetryBudget
		}
		bo.step(attempt)
	}
}

// tryRead attempts a single untorn copy of the snapshot into buf. It
// returns ErrBusy if a publish was in flight during the copy; callers
// that can tolerate staleness simply keep their previous snapshot.
func (s *snapshotRegion) tryRead(buf []byte) (int, uint64, error) {
	seq1 := s.hdr.WriteSeq()
	if seq1 == 0 {
		return 0, 0, nil // nothing published yet
	}
	if seq1&1 != 0 {
		return 0, 0, ErrBusy // publish in flight
	}

	n := s.hdr.DataLen()
	if n > s.capacity {
		// A racing publish can leave a transiently absurd length; the
		// counter check below rejects the copy, but clamp first so we
		// do not walk off the mapping.
		n = s.capacity
	}
	if n > uint64(len(buf)) {
		n = uint64(len(buf))
	}
	copy(buf[:n], s.data[:n])

	seq2 := s.hdr.WriteSeq()
	if seq1 != seq2 {
		return 0, 0, ErrBusy // torn: publish landed mid-copy
	}

	return int(n), seq2, nil
}

// readIfNewer is like read but returns (0, lastSeq, nil) without
// copying when no publish has happened since lastSeq. Pollers use it to
// skip decoding unchanged snapshots.
func (s *snapshotRegion) readIfNewer(buf []byte, lastSeq uint64, bo Backoff) (int, uint64, bool, error) {
	if s.hdr.WriteSeq() == lastSeq {
		return 0, lastSeq, false, nil
	}
	n, seq, err := s.read(buf, bo)
	if err != nil {
		return 0, lastSeq, false, err
	}
	return n, seq, true, nil
}
