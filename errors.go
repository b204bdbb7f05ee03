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

import "errors"

var (
	// ErrChannelNotFound indicates that no channel with the given name
	// exists. Callers should treat this as "producer not running yet"
	// and retry, not as a fatal condition.
	ErrChannelNotFound = errors.New("statecast: channel not found")

	// ErrNameInUse indicates that Create found a live, compatible channel
	// already bound to the name. A second writer on the same channel is
	// not allowed.
	ErrNameInUse = errors.New("statecast: channel name already in use")

	// ErrIncompatible indicates that the named region exists but does not
	// carry a valid channel of a supported version. This is distinct from
	// ErrChannelNotFound: the name is bound, but not to something usable.
	ErrIncompatible = errors.New("statecast: incompatible channel region")

	// ErrChannelClosed indicates the writer has destroyed the channel.
	// Readers observe this on their next Read or Send and should detach.
	ErrChannelClosed = errors.New("statecast: channel closed")

	// ErrSnapshotTooLarge is returned by Publish when the blob exceeds
	// the channel's DataSize. The blob is never truncated; the previously
	// published snapshot remains readable.
	ErrSnapshotTooLarge = errors.New("statecast: snapshot exceeds channel data size")

	// ErrCommandTooLarge is returned by Send for messages larger than
	// MaxCommandSize. Commands are never truncated.
	ErrCommandTooLarge = errors.New("statecast: command exceeds slot size")

	// ErrCommandEmpty is returned by Send for zero-length messages, which
	// would be indistinguishable from "no command pending" on the drain
	// side.
	ErrCommandEmpty = errors.New("statecast: empty command")

	// ErrQueueFull is returned by Send when every command slot is
	// occupied. The message is rejected, never dropped silently and never
	// blocked on.
	ErrQueueFull = errors.New("statecast: command queue full")

	// ErrClientsExhausted is returned by Connect when the channel already
	// has MaxClients attached readers.
	ErrClientsExhausted = errors.New("statecast: client registry full")

	// ErrBusy is returned by TryRead when a publish was in progress or
	// completed mid-copy. The caller may simply try again.
	ErrBusy = errors.New("statecast: concurrent publish in progress")

	// ErrRetryBudget is returned by Read when a retry limit was
	// configured and exhausted without obtaining a consistent snapshot.
	ErrRetryBudget = errors.New("statecast: read retry budget exhausted")

	// ErrWaitTimeout is returned by WaitUpdate and WaitCommand when the
	// timeout elapses before the awaited event.
	ErrWaitTimeout = errors.New("statecast: wait timed out")

	// ErrPlatformUnsupported is returned by operations that require
	// Linux shared-memory or futex support on other platforms.
	ErrPlatformUnsupported = errors.New("statecast: not supported on this platform")
)
