//go:build linux && (amd64 || arm64)

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
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Futex operation codes from <linux/futex.h>. golang.org/x/sys/unix
// exports SYS_FUTEX but not the op constants, so they are defined here.
const (
	futexOpWait = 0 // FUTEX_WAIT
	futexOpWake = 1 // FUTEX_WAKE
)

// The futex words live in a file-backed mapping shared across
// processes, so the private-futex fast path must not be used: a
// FUTEX_WAIT_PRIVATE in one process would never see a wake issued in
// another. Plain FUTEX_WAIT/FUTEX_WAKE match waiters by backing page.

// futexWait waits for the value at addr to change from val.
// It returns when either:
//   - The value at addr is no longer equal to val
//   - Another process calls futexWake on the same address
//   - The system call is interrupted
//
// This function should only be called when the logical condition is unmet
// and *addr == val. Always re-check the condition after this returns due
// to possible spurious wakeups.
func futexWait(addr *uint32, val uint32) error {
	// Re-check the value atomically before entering the syscall. This
	// prevents the lost-wake race where the other side bumps the
	// counter and wakes us between our snapshot and futex entry.
	if atomic.LoadUint32(addr) != val {
		return nil // Value already changed, no need to wait
	}

	// syscall number, uaddr, futex_op, val, timeout, uaddr2, val3
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)), // uaddr - address to wait on
		futexOpWait,                   // futex_op - shared wait
		uintptr(val),                  // val - expected value
		0,                             // timeout - infinite (NULL)
		0,                             // uaddr2 - unused
		0,                             // val3 - unused
	)

	if errno != 0 {
		// EAGAIN means the value didn't match - expected, not an error
		if errno == unix.EAGAIN {
			return nil
		}
		// EINTR means interrupted by signal - also not a real error here
		if errno == unix.EINTR {
			return nil
		}
		return fmt.Errorf("futex wait failed: %w", errno)
	}

	return nil
}

// futexWaitTimeout waits on addr until the value changes from val or the
// timeout elapses. timeout is specified in nanoseconds; zero or negative
// means wait forever. Returns ErrWaitTimeout if the wait times out.
//
// As with futexWait, always re-check the logical condition after return.
func futexWaitTimeout(addr *uint32, val uint32, timeoutNs int64) error {
	if timeoutNs <= 0 {
		return futexWait(addr, val)
	}

	if atomic.LoadUint32(addr) != val {
		return nil // Value already changed, no need to wait
	}

	ts := unix.NsecToTimespec(timeoutNs)

	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)), // uaddr - address to wait on
		futexOpWait,                   // futex_op - shared wait
		uintptr(val),                  // val - expected value
		uintptr(unsafe.Pointer(&ts)),  // timeout - timespec pointer
		0,                             // uaddr2 - unused
		0,                             // val3 - unused
	)

	if errno != 0 {
		if errno == unix.EAGAIN {
			return nil
		}
		if errno == unix.EINTR {
			return nil
		}
		if errno == unix.ETIMEDOUT {
			return ErrWaitTimeout
		}
		return fmt.Errorf("futex wait failed: %w", errno)
	}

	return nil
}

// futexWake wakes up to n waiters blocked on addr.
// Returns the number of waiters actually woken.
func futexWake(addr *uint32, n int) (int, error) {
	r1, _, errno := unix.RawSyscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)), // uaddr - address to wake on
		futexOpWake,                   // futex_op - shared wake
		uintptr(n),                    // val - number of waiters to wake
		0,                             // timeout - unused for wake
		0,                             // uaddr2 - unused
		0,                             // val3 - unused
	)

	if errno != 0 {
		return 0, fmt.Errorf("futex wake failed: %w", errno)
	}

	return int(r1), nil
}
