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

// Package audiostate defines the payloads carried over a statecast
// channel by the audio daemon: the State snapshot the daemon publishes
// and the fixed-size commands clients send back.
//
// Snapshots are a small fixed prefix (magic, version, update counter)
// followed by a deterministically encoded CBOR body. The prefix lets a
// poller discard unchanged snapshots without decoding; the CBOR body
// lets the schema grow without breaking old readers.
//
// Commands are fixed 260-byte records with a one-byte kind, matching
// the channel's requirement that command payloads fit a single queue
// slot and need no length negotiation.
package audiostate
