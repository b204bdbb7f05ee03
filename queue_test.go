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
	"errors"
	"fmt"
	"sync"
	"testing"
)

// newTestQueue lays a command queue over a plain aligned buffer.
func newTestQueue(slots uint32) *commandQueue {
	mem := alignedBuf(QueueHeaderSize + uint64(slots)*slotStride)
	q := newCommandQueue(mem, 0, slots)
	q.reset()
	return q
}

func TestQueueSendRecvBasic(t *testing.T) {
	q := newTestQueue(8)

	if err := q.send(3, 5, []byte("set-volume")); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if got := q.pending(); got != 1 {
		t.Errorf("pending = %d, want 1", got)
	}

	buf := make([]byte, MaxCommandSize)
	n, clientID, gen, ok := q.tryRecv(buf)
	if !ok {
		t.Fatal("tryRecv found nothing")
	}
	if gen != 5 {
		t.Errorf("generation = %d, want 5", gen)
	}
	if clientID != 3 {
		t.Errorf("clientID = %d, want 3", clientID)
	}
	if !bytes.Equal(buf[:n], []byte("set-volume")) {
		t.Errorf("payload = %q, want %q", buf[:n], "set-volume")
	}
	if got := q.pending(); got != 0 {
		t.Errorf("pending after drain = %d, want 0", got)
	}
}

// TestQueueRecvShortBuffer checks that a drain into an undersized
// buffer still reports the message's full length, so the caller can
// tell the copy was cut short instead of mistaking a prefix for the
// whole command.
func TestQueueRecvShortBuffer(t *testing.T) {
	q := newTestQueue(4)

	if err := q.send(1, 0, []byte("set-default-sink")); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	buf := make([]byte, 4)
	n, clientID, _, ok := q.tryRecv(buf)
	if !ok {
		t.Fatal("tryRecv found nothing")
	}
	if n != len("set-default-sink") {
		t.Errorf("n = %d, want the full length %d", n, len("set-default-sink"))
	}
	if clientID != 1 {
		t.Errorf("clientID = %d, want 1", clientID)
	}
	if !bytes.Equal(buf, []byte("set-")) {
		t.Errorf("copied prefix = %q, want %q", buf, "set-")
	}
}

func TestQueueRecvEmpty(t *testing.T) {
	q := newTestQueue(4)

	buf := make([]byte, MaxCommandSize)
	if _, _, _, ok := q.tryRecv(buf); ok {
		t.Error("tryRecv on empty queue returned a message")
	}
}

func TestQueueSendValidation(t *testing.T) {
	q := newTestQueue(4)

	if err := q.send(0, 0, nil); err != ErrCommandEmpty {
		t.Errorf("empty send err = %v, want ErrCommandEmpty", err)
	}
	if err := q.send(0, 0, make([]byte, MaxCommandSize+1)); err != ErrCommandTooLarge {
		t.Errorf("oversize send err = %v, want ErrCommandTooLarge", err)
	}
	if err := q.send(0, 0, make([]byte, MaxCommandSize)); err != nil {
		t.Errorf("max-size send failed: %v", err)
	}
}

func TestQueueFull(t *testing.T) {
	q := newTestQueue(2)

	if err := q.send(0, 0, []byte("a")); err != nil {
		t.Fatalf("send 1 failed: %v", err)
	}
	if err := q.send(0, 0, []byte("b")); err != nil {
		t.Fatalf("send 2 failed: %v", err)
	}
	if err := q.send(0, 0, []byte("c")); err != ErrQueueFull {
		t.Fatalf("send to full queue err = %v, want ErrQueueFull", err)
	}

	// Draining one makes room for exactly one.
	buf := make([]byte, MaxCommandSize)
	if _, _, _, ok := q.tryRecv(buf); !ok {
		t.Fatal("tryRecv found nothing")
	}
	if err := q.send(0, 0, []byte("c")); err != nil {
		t.Fatalf("send after drain failed: %v", err)
	}
	if err := q.send(0, 0, []byte("d")); err != ErrQueueFull {
		t.Errorf("send err = %v, want ErrQueueFull", err)
	}
}

func TestQueueFIFO(t *testing.T) {
	q := newTestQueue(8)

	for i := 0; i < 8; i++ {
		if err := q.send(uint32(i), 0, []byte{byte(i)}); err != nil {
			t.Fatalf("send %d failed: %v", i, err)
		}
	}

	buf := make([]byte, MaxCommandSize)
	for i := 0; i < 8; i++ {
		n, clientID, _, ok := q.tryRecv(buf)
		if !ok {
			t.Fatalf("tryRecv %d found nothing", i)
		}
		if n != 1 || buf[0] != byte(i) || clientID != uint32(i) {
			t.Errorf("message %d = (%d, %d, %v), want ({%d}, %d)", i, buf[0], clientID, buf[:n], i, i)
		}
	}
}

// TestQueueWrapAround pushes far more messages than slots through a
// small queue so every monotonic index class gets reused many times.
func TestQueueWrapAround(t *testing.T) {
	q := newTestQueue(4)
	buf := make([]byte, MaxCommandSize)

	for i := uint64(0); i < 100; i++ {
		var payload [8]byte
		binary.LittleEndian.PutUint64(payload[:], i)
		if err := q.send(7, 0, payload[:]); err != nil {
			t.Fatalf("send %d failed: %v", i, err)
		}

		n, _, _, ok := q.tryRecv(buf)
		if !ok || n != 8 {
			t.Fatalf("recv %d = (%d, %v)", i, n, ok)
		}
		if got := binary.LittleEndian.Uint64(buf); got != i {
			t.Fatalf("recv %d got payload %d", i, got)
		}
	}
}

// TestQueueConcurrentExactlyOnce runs several producers against the
// single consumer and checks that every sent message is drained exactly
// once, unmodified.
func TestQueueConcurrentExactlyOnce(t *testing.T) {
	const (
		producers   = 4
		perProducer = 2000
		slots       = 16
	)

	q := newTestQueue(slots)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			bo := DefaultBackoff
			for i := 0; i < perProducer; i++ {
				var payload [16]byte
				binary.LittleEndian.PutUint64(payload[0:], uint64(p))
				binary.LittleEndian.PutUint64(payload[8:], uint64(i))
				for attempt := 0; ; attempt++ {
					err := q.send(uint32(p), 0, payload[:])
					if err == nil {
						break
					}
					if err != ErrQueueFull {
						t.Errorf("producer %d send err: %v", p, err)
						return
					}
					bo.step(attempt)
				}
			}
		}(p)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	seen := make(map[string]int)
	buf := make([]byte, MaxCommandSize)
	received := 0
	bo := DefaultBackoff
	for attempt := 0; received < producers*perProducer; {
		n, clientID, _, ok := q.tryRecv(buf)
		if !ok {
			select {
			case <-done:
				// Producers finished; drain whatever is left.
				if q.pending() == 0 {
					t.Fatalf("consumer stalled with %d of %d messages", received, producers*perProducer)
				}
			default:
			}
			bo.step(attempt)
			attempt++
			continue
		}
		attempt = 0
		received++

		if n != 16 {
			t.Fatalf("message length = %d, want 16", n)
		}
		p := binary.LittleEndian.Uint64(buf[0:])
		i := binary.LittleEndian.Uint64(buf[8:])
		if p != uint64(clientID) {
			t.Fatalf("payload producer %d does not match clientID %d", p, clientID)
		}
		key := fmt.Sprintf("%d/%d", p, i)
		seen[key]++
		if seen[key] > 1 {
			t.Fatalf("message %s delivered twice", key)
		}
	}

	<-done
	if len(seen) != producers*perProducer {
		t.Errorf("received %d distinct messages, want %d", len(seen), producers*perProducer)
	}
	if _, _, _, ok := q.tryRecv(buf); ok {
		t.Error("queue not empty after all messages drained")
	}
}

// TestQueueSingleSlotContention runs two producers against a one-slot
// queue. A send that loses the race fails with ErrQueueFull without
// claiming an index, so the consumer keeps making progress.
func TestQueueSingleSlotContention(t *testing.T) {
	const perProducer = 1000

	q := newTestQueue(1)

	var wg sync.WaitGroup
	var delivered sync.Map
	for p := 0; p < 2; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			bo := DefaultBackoff
			for i := 0; i < perProducer; i++ {
				var payload [16]byte
				binary.LittleEndian.PutUint64(payload[0:], uint64(p))
				binary.LittleEndian.PutUint64(payload[8:], uint64(i))
				for attempt := 0; ; attempt++ {
					err := q.send(uint32(p), 0, payload[:])
					if err == nil {
						break
					}
					if !errors.Is(err, ErrQueueFull) {
						t.Errorf("producer %d send err: %v", p, err)
						return
					}
					bo.step(attempt)
				}
			}
		}(p)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	buf := make([]byte, MaxCommandSize)
	received := 0
	bo := DefaultBackoff
	for attempt := 0; received < 2*perProducer; {
		n, _, _, ok := q.tryRecv(buf)
		if !ok {
			bo.step(attempt)
			attempt++
			continue
		}
		attempt = 0
		if n != 16 {
			t.Fatalf("message length = %d, want 16", n)
		}
		p := binary.LittleEndian.Uint64(buf[0:])
		i := binary.LittleEndian.Uint64(buf[8:])
		key := fmt.Sprintf("%d/%d", p, i)
		if _, dup := delivered.LoadOrStore(key, true); dup {
			t.Fatalf("message %s delivered twice", key)
		}
		received++
	}

	<-done
}
