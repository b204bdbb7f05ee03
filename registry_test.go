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
	"sync"
	"testing"
)

func newTestRegistry(max uint32) *clientRegistry {
	mem := alignedBuf(uint64(max) * registryStride)
	r := newClientRegistry(mem, 0, max)
	r.reset()
	return r
}

func TestRegistryAcquireRelease(t *testing.T) {
	reg := newTestRegistry(4)

	// Ids come out lowest-first.
	for want := uint32(0); want < 4; want++ {
		id, _, err := reg.acquire(100 + want)
		if err != nil {
			t.Fatalf("acquire %d failed: %v", want, err)
		}
		if id != want {
			t.Errorf("acquire = %d, want %d", id, want)
		}
	}
	if got := reg.count(); got != 4 {
		t.Errorf("count = %d, want 4", got)
	}

	// Table full.
	if _, _, err := reg.acquire(200); err != ErrClientsExhausted {
		t.Errorf("acquire on full table err = %v, want ErrClientsExhausted", err)
	}

	// Release in the middle; the freed id is reused first.
	reg.release(1)
	if got := reg.owner(1); got != 0 {
		t.Errorf("owner(1) after release = %d, want 0", got)
	}
	id, _, err := reg.acquire(300)
	if err != nil {
		t.Fatalf("acquire after release failed: %v", err)
	}
	if id != 1 {
		t.Errorf("acquire after release = %d, want 1", id)
	}
	if got := reg.owner(1); got != 300 {
		t.Errorf("owner(1) = %d, want 300", got)
	}
}

// TestRegistryGenerationAdvances checks that each release moves an
// id's generation forward, so a stamp from an earlier attachment never
// matches again, even after the id is reissued.
func TestRegistryGenerationAdvances(t *testing.T) {
	reg := newTestRegistry(2)

	id, gen1, err := reg.acquire(100)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if !reg.generationMatches(id, gen1) {
		t.Error("fresh attachment generation does not match")
	}

	reg.release(id)
	if reg.generationMatches(id, gen1) {
		t.Error("released generation still matches")
	}

	id2, gen2, err := reg.acquire(200)
	if err != nil {
		t.Fatalf("reacquire failed: %v", err)
	}
	if id2 != id {
		t.Fatalf("reacquire = id %d, want recycled id %d", id2, id)
	}
	if gen2 == gen1 {
		t.Error("reissued id kept the old generation")
	}
	if reg.generationMatches(id, gen1) {
		t.Error("old generation matches the new attachment")
	}
	if !reg.generationMatches(id2, gen2) {
		t.Error("new attachment generation does not match")
	}
}

func TestRegistryGenerationOutOfRange(t *testing.T) {
	reg := newTestRegistry(2)
	if reg.generationMatches(99, 0) {
		t.Error("out-of-range id matched a generation")
	}
}

func TestRegistryReleaseOutOfRange(t *testing.T) {
	reg := newTestRegistry(2)
	reg.release(99) // must not panic or touch anything
	if got := reg.count(); got != 0 {
		t.Errorf("count = %d, want 0", got)
	}
}

func TestRegistryZeroPID(t *testing.T) {
	reg := newTestRegistry(2)

	// A zero PID still has to leave the word nonzero while taken.
	id, _, err := reg.acquire(0)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if reg.owner(id) == 0 {
		t.Error("taken id reads as free")
	}
}

// TestRegistryConcurrentAcquire races more claimants than ids and
// checks that winners hold distinct ids and exactly max claims win.
func TestRegistryConcurrentAcquire(t *testing.T) {
	const max = 8
	const claimants = 32

	reg := newTestRegistry(max)

	var wg sync.WaitGroup
	ids := make(chan uint32, claimants)
	var failures sync.Map
	for c := 0; c < claimants; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			id, _, err := reg.acquire(uint32(1000 + c))
			if err != nil {
				failures.Store(c, err)
				return
			}
			ids <- id
		}(c)
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint32]bool)
	for id := range ids {
		if seen[id] {
			t.Errorf("id %d handed out twice", id)
		}
		seen[id] = true
	}
	if len(seen) != max {
		t.Errorf("%d ids handed out, want %d", len(seen), max)
	}

	var failed int
	failures.Range(func(_, v any) bool {
		if v != ErrClientsExhausted {
			t.Errorf("unexpected acquire error: %v", v)
		}
		failed++
		return true
	})
	if failed != claimants-max {
		t.Errorf("%d acquires failed, want %d", failed, claimants-max)
	}
}
