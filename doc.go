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

// Package statecast provides a lock-free shared-memory broadcast channel
// for same-machine inter-process communication.
//
// A channel connects exactly one writer process to any number of reader
// processes through a named memory-mapped region, with no sockets and no
// kernel calls on the data path. The writer repeatedly publishes a full
// state snapshot (an opaque byte blob); readers poll the latest snapshot
// at their own cadence. A sequence-lock protocol guarantees that a reader
// never observes a torn snapshot, at the cost of occasionally retrying a
// read that raced with a publish.
//
// Alongside the broadcast direction, each channel carries a bounded
// multi-producer/single-consumer command queue in the opposite direction:
// any attached reader can enqueue a fixed-maximum-size command message,
// and the writer drains pending commands non-blockingly on its own
// schedule. Every attached reader is assigned a small integer client id
// by the channel's registry; commands are tagged with the sender's id.
//
// The transport does not interpret payload bytes. Collaborators are
// expected to begin every snapshot with a self-describing tag so foreign
// or stale blobs can be rejected before interpretation; package
// audiostate implements one such payload protocol.
package statecast
