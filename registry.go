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
	"sync/atomic"
	"unsafe"
)

// clientRegistry hands out small stable client ids. It is an array of
// MaxClients entries in shared memory, each an owner word paired with
// an attachment generation. The owner word is zero when the id is free
// and holds the claimant's PID while taken. Ids are recycled on
// release, and a new attach always takes the lowest free id.
//
// The generation advances every time an id is released, so a message
// stamped with an earlier attachment's generation can be told apart
// from one sent by the id's current owner even after the id has been
// handed out again.
type clientRegistry struct {
	mem  []byte
	base uint64
	max  uint32
}

// newClientRegistry builds a view over mem at the given offset.
func newClientRegistry(mem []byte, off uint64, max uint32) *clientRegistry {
	return &clientRegistry{mem: mem, base: off, max: max}
}

// word returns a pointer to the owner word for id i.
func (r *clientRegistry) word(i uint32) *uint32 {
	return (*uint32)(unsafe.Pointer(&r.mem[r.base+uint64(i)*registryStride]))
}

// gen returns a pointer to the generation word for id i.
func (r *clientRegistry) gen(i uint32) *uint32 {
	return (*uint32)(unsafe.Pointer(&r.mem[r.base+uint64(i)*registryStride+4]))
}

// acquire claims the lowest free id for the given owner PID and
// returns the id together with its current attachment generation. Two
// concurrent attaches never receive the same id: each owner word is
// taken by exactly one winning CAS.
func (r *clientRegistry) acquire(pid uint32) (uint32, uint32, error) {
	if pid == 0 {
		pid = 1 // word must be nonzero while taken
	}
	for i := uint32(0); i < r.max; i++ {
		if atomic.CompareAndSwapUint32(r.word(i), 0, pid) {
			return i, atomic.LoadUint32(r.gen(i)), nil
		}
	}
	return 0, 0, ErrClientsExhausted
}

// release frees an id for reuse. The generation advances before the
// owner word clears, so anything stamped with the released generation
// stops matching as soon as the id is gone. Releasing an id that is
// not taken is a no-op.
func (r *clientRegistry) release(id uint32) {
	if id >= r.max {
		return
	}
	atomic.AddUint32(r.gen(id), 1)
	atomic.StoreUint32(r.word(id), 0)
}

// owner returns the PID recorded for id, or zero if the id is free.
func (r *clientRegistry) owner(id uint32) uint32 {
	if id >= r.max {
		return 0
	}
	return atomic.LoadUint32(r.word(id))
}

// generationMatches reports whether gen is the current attachment
// generation of id. A stamp from a sender that has since released the
// id never matches, regardless of whether the id has been reissued.
func (r *clientRegistry) generationMatches(id, gen uint32) bool {
	if id >= r.max {
		return false
	}
	return atomic.LoadUint32(r.gen(id)) == gen
}

// count returns the number of taken ids.
func (r *clientRegistry) count() uint32 {
	var n uint32
	for i := uint32(0); i < r.max; i++ {
		if atomic.LoadUint32(r.word(i)) != 0 {
			n++
		}
	}
	return n
}

// reset frees every id. Runs before the region is shared.
func (r *clientRegistry) reset() {
	for i := uint32(0); i < r.max; i++ {
		atomic.StoreUint32(r.word(i), 0)
		atomic.StoreUint32(r.gen(i), 0)
	}
}
