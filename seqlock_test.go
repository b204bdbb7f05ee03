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
	"bytes"
	"encoding/binary"
	"sync"
	"testing"
)

// newTestSnapshot lays a snapshot region over a plain aligned buffer.
// The seqlock only needs memory, not a mapping.
func newTestSnapshot(dataSize uint64) *snapshotRegion {
	mem := alignedBuf(SnapshotHeaderSize + dataSize)
	return newSnapshotRegion(mem, 0, dataSize)
}

func TestSnapshotPublishRead(t *testing.T) {
	snap := newTestSnapshot(64)

	payload := make([]byte, 8)
	binary.LittleEndian.PutUint64(payload, 42)
	seq1, err := snap.publish(payload)
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if seq1 != 2 {
		t.Errorf("first publish seq = %d, want 2", seq1)
	}

	buf := make([]byte, 64)
	n, seq, err := snap.read(buf, DefaultBackoff)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if n != 8 {
		t.Fatalf("read n = %d, want 8", n)
	}
	if got := binary.LittleEndian.Uint64(buf); got != 42 {
		t.Errorf("read value = %d, want 42", got)
	}
	if seq != seq1 {
		t.Errorf("read seq = %d, want %d", seq, seq1)
	}

	// Overwrite and read again: only the newest value is visible.
	binary.LittleEndian.PutUint64(payload, 43)
	seq2, err := snap.publish(payload)
	if err != nil {
		t.Fatalf("second publish failed: %v", err)
	}
	if seq2 != seq1+2 {
		t.Errorf("second publish seq = %d, want %d", seq2, seq1+2)
	}

	n, seq, err = snap.read(buf, DefaultBackoff)
	if err != nil || n != 8 {
		t.Fatalf("second read n=%d err=%v", n, err)
	}
	if got := binary.LittleEndian.Uint64(buf); got != 43 {
		t.Errorf("read value after overwrite = %d, want 43", got)
	}
	if seq != seq2 {
		t.Errorf("read seq after overwrite = %d, want %d", seq, seq2)
	}
}

func TestSnapshotReadBeforePublish(t *testing.T) {
	snap := newTestSnapshot(64)

	buf := make([]byte, 64)
	n, seq, err := snap.read(buf, DefaultBackoff)
	if err != nil {
		t.Fatalf("read before publish failed: %v", err)
	}
	if n != 0 || seq != 0 {
		t.Errorf("read before publish = (%d, %d), want (0, 0)", n, seq)
	}
}

func TestSnapshotPublishTooLarge(t *testing.T) {
	snap := newTestSnapshot(16)

	if _, err := snap.publish(make([]byte, 17)); err != ErrSnapshotTooLarge {
		t.Errorf("oversize publish err = %v, want ErrSnapshotTooLarge", err)
	}
	// A rejected publish must not disturb the seqlock.
	if snap.seq() != 0 {
		t.Errorf("seq after rejected publish = %d, want 0", snap.seq())
	}
	if _, err := snap.publish(make([]byte, 16)); err != nil {
		t.Errorf("exact-capacity publish failed: %v", err)
	}
}

func TestSnapshotShortReadBuffer(t *testing.T) {
	snap := newTestSnapshot(64)

	payload := []byte("0123456789abcdef")
	if _, err := snap.publish(payload); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	buf := make([]byte, 4)
	n, _, err := snap.read(buf, DefaultBackoff)
	if err != nil {
		t.Fatalf("short read failed: %v", err)
	}
	if n != 4 || !bytes.Equal(buf, []byte("0123")) {
		t.Errorf("short read = %d %q, want 4 %q", n, buf, "0123")
	}
}

func TestSnapshotTryReadBusy(t *testing.T) {
	snap := newTestSnapshot(64)
	if _, err := snap.publish([]byte("x")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	// Simulate a publish in flight by forcing the counter odd.
	snap.hdr.SetWriteSeq(snap.hdr.WriteSeq() + 1)

	buf := make([]byte, 64)
	if _, _, err := snap.tryRead(buf); err != ErrBusy {
		t.Errorf("tryRead during publish err = %v, want ErrBusy", err)
	}

	// Bounded read gives up instead of spinning forever.
	bounded := Backoff{SpinLimit: 4, YieldLimit: 8, MaxRetries: 16}
	if _, _, err := snap.read(buf, bounded); err != ErrRetryBudget {
		t.Errorf("bounded read during publish err = %v, want ErrRetryBudget", err)
	}
}

func TestSnapshotReadIfNewer(t *testing.T) {
	snap := newTestSnapshot(64)
	buf := make([]byte, 64)

	// Nothing published, nothing newer.
	n, seq, updated, err := snap.readIfNewer(buf, 0, DefaultBackoff)
	if err != nil || updated || n != 0 || seq != 0 {
		t.Fatalf("readIfNewer on empty = (%d, %d, %v, %v)", n, seq, updated, err)
	}

	pubSeq, err := snap.publish([]byte("one"))
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	n, seq, updated, err = snap.readIfNewer(buf, 0, DefaultBackoff)
	if err != nil || !updated {
		t.Fatalf("readIfNewer after publish = (%v, %v)", updated, err)
	}
	if n != 3 || seq != pubSeq {
		t.Errorf("readIfNewer = (%d, %d), want (3, %d)", n, seq, pubSeq)
	}

	// Same sequence again: no copy.
	n, seq, updated, err = snap.readIfNewer(buf, pubSeq, DefaultBackoff)
	if err != nil || updated || seq != pubSeq {
		t.Errorf("readIfNewer unchanged = (%d, %d, %v, %v)", n, seq, updated, err)
	}
}

// TestSnapshotNoTornReads hammers one snapshot area with a publisher
// and several readers. Every payload is a counter value repeated
// across the buffer, so any torn copy that slipped through the seqlock
// would show up as a mixed buffer.
func TestSnapshotNoTornReads(t *testing.T) {
	const (
		dataSize = 256
		rounds   = 20000
		readers  = 4
	)

	snap := newTestSnapshot(dataSize)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf := make([]byte, dataSize)
			var lastVal uint64
			for {
				select {
				case <-stop:
					return
				default:
				}

				n, _, err := snap.read(buf, DefaultBackoff)
				if err != nil {
					t.Errorf("read failed: %v", err)
					return
				}
				if n == 0 {
					continue // nothing published yet
				}
				if n != dataSize {
					t.Errorf("read n = %d, want %d", n, dataSize)
					return
				}

				val := binary.LittleEndian.Uint64(buf)
				for off := 8; off < dataSize; off += 8 {
					if w := binary.LittleEndian.Uint64(buf[off:]); w != val {
						t.Errorf("torn read: word at %d = %d, first word = %d", off, w, val)
						return
					}
				}
				if val < lastVal {
					t.Errorf("snapshot went backwards: %d after %d", val, lastVal)
					return
				}
				lastVal = val
			}
		}()
	}

	payload := make([]byte, dataSize)
	for round := uint64(1); round <= rounds; round++ {
		for off := 0; off < dataSize; off += 8 {
			binary.LittleEndian.PutUint64(payload[off:], round)
		}
		if _, err := snap.publish(payload); err != nil {
			t.Fatalf("publish round %d failed: %v", round, err)
		}
	}

	close(stop)
	wg.Wait()
}
