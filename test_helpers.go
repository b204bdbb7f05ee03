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
	"strings"
	"testing"
	"time"
	"unsafe"
)

// testChannelName builds a unique, valid channel name for a test.
// Subtest names contain slashes and spaces, which are not valid in
// channel names, so those are flattened.
func testChannelName(t *testing.T, base string) string {
	t.Helper()

	flat := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, t.Name())

	return fmt.Sprintf("%s_%s_%d", base, flat, time.Now().UnixNano())
}

// createTestChannel creates a channel with a unique name and registers
// cleanup so the backing file never outlives the test.
func createTestChannel(t *testing.T, base string, cfg Config) *Writer {
	t.Helper()

	name := testChannelName(t, base)
	Remove(name)

	w, err := Create(name, cfg)
	if err != nil {
		t.Fatalf("Failed to create test channel %s: %v", name, err)
	}

	t.Cleanup(func() {
		if w != nil {
			w.Close()
		}
		Remove(name)
	})

	return w
}

// openTestReader attaches to a channel and registers cleanup.
func openTestReader(t *testing.T, name string) *Reader {
	t.Helper()

	r, err := Open(name)
	if err != nil {
		t.Fatalf("Failed to open test channel %s: %v", name, err)
	}

	t.Cleanup(func() {
		r.Close()
	})

	return r
}

// alignedBuf allocates a zeroed byte buffer whose base address is
// 8-byte aligned, suitable for laying headers over without a mapping.
func alignedBuf(size uint64) []byte {
	words := make([]uint64, (size+7)/8)
	buf := unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), len(words)*8)
	return buf[:size]
}
