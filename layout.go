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
)

// Memory layout constants
const (
	// Magic bytes for channel identification
	ChannelMagic = "STATECST"

	// Current protocol version
	ChannelVersion = uint32(1)

	// Channel header size (aligned to 128 bytes)
	ChannelHeaderSize = 128

	// Snapshot header size (aligned to 64 bytes)
	SnapshotHeaderSize = 64

	// Command queue header size (two cache lines: producer and consumer
	// cursors on separate lines to avoid false sharing)
	QueueHeaderSize = 128

	// Command slot header size (aligned to 64 bytes)
	SlotHeaderSize = 64

	// Fixed data capacity of one command slot. Send rejects anything
	// larger; variable slot sizes are deliberately not supported.
	MaxCommandSize = 4096

	// Upper bounds on configurable capacities
	MaxSnapshotSize = 1 << 30
	MaxCmdSlots     = 1024
	MaxClientsLimit = 1024

	// Default channel configuration
	DefaultDataSize   = 64 * 1024
	DefaultCmdSlots   = 32
	DefaultMaxClients = 16
)

// slotStride is the byte distance between consecutive command slots.
const slotStride = SlotHeaderSize + MaxCommandSize

// registryStride is the byte size of one registry entry: an owner word
// and an attachment generation word.
const registryStride = 8

// Command slot states. Producers transition empty -> writing -> ready;
// the consumer transitions ready -> empty.
const (
	slotEmpty   = uint32(0)
	slotWriting = uint32(1)
	slotReady   = uint32(2)
)

// Config describes the fixed capacities of a channel, decided at
// creation time. The zero value of any field selects its default.
type Config struct {
	// DataSize is the maximum snapshot payload size in bytes.
	DataSize uint64

	// CmdSlots is the command queue capacity in messages.
	CmdSlots uint32

	// MaxClients bounds the number of simultaneously attached readers.
	MaxClients uint32
}

// withDefaults returns cfg with zero fields replaced by defaults.
func (cfg Config) withDefaults() Config {
	if cfg.DataSize == 0 {
		cfg.DataSize = DefaultDataSize
	}
	if cfg.CmdSlots == 0 {
		cfg.CmdSlots = DefaultCmdSlots
	}
	if cfg.MaxClients == 0 {
		cfg.MaxClients = DefaultMaxClients
	}
	return cfg
}

// validate checks cfg against the supported capacity bounds.
func (cfg Config) validate() error {
	if cfg.DataSize > MaxSnapshotSize {
		return fmt.Errorf("data size %d exceeds maximum %d", cfg.DataSize, uint64(MaxSnapshotSize))
	}
	if cfg.CmdSlots > MaxCmdSlots {
		return fmt.Errorf("cmd slots %d exceeds maximum %d", cfg.CmdSlots, MaxCmdSlots)
	}
	if cfg.MaxClients > MaxClientsLimit {
		return fmt.Errorf("max clients %d exceeds maximum %d", cfg.MaxClients, MaxClientsLimit)
	}
	return nil
}

// ChannelHeader is the shared memory channel header. Layout is fixed at
// 128 bytes; field offsets are part of the wire contract and pinned by
// tests.
type ChannelHeader struct {
	magic      [8]byte  // 0x00: "STATECST"
	version    uint32   // 0x08: protocol version
	flags      uint32   // 0x0C: reserved flags
	totalSize  uint64   // 0x10: total region size
	snapOff    uint64   // 0x18: offset to snapshot header
	queueOff   uint64   // 0x20: offset to command queue header
	regOff     uint64   // 0x28: offset to client registry words
	dataSize   uint64   // 0x30: snapshot payload capacity
	cmdSlots   uint32   // 0x38: command queue capacity
	maxClients uint32   // 0x3C: client registry capacity
	writerPID  uint32   // 0x40: writer process ID
	closed     uint32   // 0x44: teardown sentinel (0 live, 1 closed)
	updateSeq  uint32   // 0x48: publish event counter (futex word)
	cmdSeq     uint32   // 0x4C: send event counter (futex word)
	reserved   [48]byte // 0x50-0x7F: reserved/padding to 128B
}

// Magic returns the magic bytes
func (h *ChannelHeader) Magic() [8]byte {
	return h.magic
}

// SetMagic sets the magic bytes
func (h *ChannelHeader) SetMagic(magic [8]byte) {
	h.magic = magic
}

// Version returns the protocol version
func (h *ChannelHeader) Version() uint32 {
	return atomic.LoadUint32(&h.version)
}

// SetVersion sets the protocol version
func (h *ChannelHeader) SetVersion(version uint32) {
	atomic.StoreUint32(&h.version, version)
}

// TotalSize returns the total region size
func (h *ChannelHeader) TotalSize() uint64 {
	return atomic.LoadUint64(&h.totalSize)
}

// SetTotalSize sets the total region size
func (h *ChannelHeader) SetTotalSize(size uint64) {
	atomic.StoreUint64(&h.totalSize, size)
}

// SnapshotOffset returns the offset to the snapshot header
func (h *ChannelHeader) SnapshotOffset() uint64 {
	return atomic.LoadUint64(&h.snapOff)
}

// SetSnapshotOffset sets the offset to the snapshot header
func (h *ChannelHeader) SetSnapshotOffset(off uint64) {
	atomic.StoreUint64(&h.snapOff, off)
}

// QueueOffset returns the offset to the command queue header
func (h *ChannelHeader) QueueOffset() uint64 {
	return atomic.LoadUint64(&h.queueOff)
}

// SetQueueOffset sets the offset to the command queue header
func (h *ChannelHeader) SetQueueOffset(off uint64) {
	atomic.StoreUint64(&h.queueOff, off)
}

// RegistryOffset returns the offset to the client registry words
func (h *ChannelHeader) RegistryOffset() uint64 {
	return atomic.LoadUint64(&h.regOff)
}

// SetRegistryOffset sets the offset to the client registry words
func (h *ChannelHeader) SetRegistryOffset(off uint64) {
	atomic.StoreUint64(&h.regOff, off)
}

// DataSize returns the snapshot payload capacity
func (h *ChannelHeader) DataSize() uint64 {
	return atomic.LoadUint64(&h.dataSize)
}

// SetDataSize sets the snapshot payload capacity
func (h *ChannelHeader) SetDataSize(size uint64) {
	atomic.StoreUint64(&h.dataSize, size)
}

// CmdSlots returns the command queue capacity
func (h *ChannelHeader) CmdSlots() uint32 {
	return atomic.LoadUint32(&h.cmdSlots)
}

// SetCmdSlots sets the command queue capacity
func (h *ChannelHeader) SetCmdSlots(n uint32) {
	atomic.StoreUint32(&h.cmdSlots, n)
}

// MaxClients returns the client registry capacity
func (h *ChannelHeader) MaxClients() uint32 {
	return atomic.LoadUint32(&h.maxClients)
}

// SetMaxClients sets the client registry capacity
func (h *ChannelHeader) SetMaxClients(n uint32) {
	atomic.StoreUint32(&h.maxClients, n)
}

// WriterPID returns the writer process ID
func (h *ChannelHeader) WriterPID() uint32 {
	return atomic.LoadUint32(&h.writerPID)
}

// SetWriterPID sets the writer process ID
func (h *ChannelHeader) SetWriterPID(pid uint32) {
	atomic.StoreUint32(&h.writerPID, pid)
}

// Closed returns the teardown sentinel
func (h *ChannelHeader) Closed() bool {
	return atomic.LoadUint32(&h.closed) != 0
}

// SetClosed sets the teardown sentinel
func (h *ChannelHeader) SetClosed(closed bool) {
	var val uint32
	if closed {
		val = 1
	}
	atomic.StoreUint32(&h.closed, val)
}

// UpdateSeq returns the publish event counter
func (h *ChannelHeader) UpdateSeq() uint32 {
	return atomic.LoadUint32(&h.updateSeq)
}

// BumpUpdateSeq atomically increments the publish event counter
func (h *ChannelHeader) BumpUpdateSeq() uint32 {
	return atomic.AddUint32(&h.updateSeq, 1)
}

// CmdSeq returns the send event counter
func (h *ChannelHeader) CmdSeq() uint32 {
	return atomic.LoadUint32(&h.cmdSeq)
}

// BumpCmdSeq atomically increments the send event counter
func (h *ChannelHeader) BumpCmdSeq() uint32 {
	return atomic.AddUint32(&h.cmdSeq, 1)
}

// SnapshotHeader is the seqlock header preceding the payload bytes.
// writeSeq is even while the payload is stable, odd while a publish is
// in progress, and is mutated only by the writer.
type SnapshotHeader struct {
	writeSeq uint64   // 0x00: seqlock counter
	dataLen  uint64   // 0x08: valid payload length in bytes
	reserved [48]byte // 0x10-0x3F: padding so payload starts on its own cache line
}

// WriteSeq returns the seqlock counter
func (s *SnapshotHeader) WriteSeq() uint64 {
	return atomic.LoadUint64(&s.writeSeq)
}

// SetWriteSeq sets the seqlock counter
func (s *SnapshotHeader) SetWriteSeq(seq uint64) {
	atomic.StoreUint64(&s.writeSeq, seq)
}

// DataLen returns the valid payload length
func (s *SnapshotHeader) DataLen() uint64 {
	return atomic.LoadUint64(&s.dataLen)
}

// SetDataLen sets the valid payload length
func (s *SnapshotHeader) SetDataLen(n uint64) {
	atomic.StoreUint64(&s.dataLen, n)
}

// QueueHeader holds the command queue cursors. The producer-side claim
// cursor and the consumer-side drain cursor live on separate cache
// lines; both are monotonic, with slot position derived modulo CmdSlots.
type QueueHeader struct {
	widx uint64   // 0x00: monotonic claim index (producers CAS forward)
	pad0 [56]byte // 0x08: pad widx to its own cache line
	ridx uint64   // 0x40: monotonic drain index (consumer only)
	pad1 [56]byte // 0x48: pad ridx to its own cache line
}

// WriteIndex returns the monotonic claim index
func (q *QueueHeader) WriteIndex() uint64 {
	return atomic.LoadUint64(&q.widx)
}

// SetWriteIndex sets the monotonic claim index
func (q *QueueHeader) SetWriteIndex(idx uint64) {
	atomic.StoreUint64(&q.widx, idx)
}

// ClaimWriteIndex attempts to advance the claim index from old to old+1
func (q *QueueHeader) ClaimWriteIndex(old uint64) bool {
	return atomic.CompareAndSwapUint64(&q.widx, old, old+1)
}

// ReadIndex returns the monotonic drain index
func (q *QueueHeader) ReadIndex() uint64 {
	return atomic.LoadUint64(&q.ridx)
}

// SetReadIndex sets the monotonic drain index
func (q *QueueHeader) SetReadIndex(idx uint64) {
	atomic.StoreUint64(&q.ridx, idx)
}

// Pending returns the number of sent-but-undrained messages
func (q *QueueHeader) Pending() uint64 {
	w := atomic.LoadUint64(&q.widx)
	r := atomic.LoadUint64(&q.ridx)
	return w - r // uint64 arithmetic handles wrap-around
}

// SlotHeader precedes each command slot's data area.
type SlotHeader struct {
	state      uint32   // 0x00: slot state (empty, writing, ready)
	clientID   uint32   // 0x04: originating client id
	length     uint32   // 0x08: command length in bytes
	generation uint32   // 0x0C: sender's registry attachment generation
	reserved   [48]byte // 0x10-0x3F: padding so data starts on its own cache line
}

// State returns the slot state
func (s *SlotHeader) State() uint32 {
	return atomic.LoadUint32(&s.state)
}

// SetState sets the slot state
func (s *SlotHeader) SetState(state uint32) {
	atomic.StoreUint32(&s.state, state)
}

// ClientID returns the originating client id
func (s *SlotHeader) ClientID() uint32 {
	return atomic.LoadUint32(&s.clientID)
}

// SetClientID sets the originating client id
func (s *SlotHeader) SetClientID(id uint32) {
	atomic.StoreUint32(&s.clientID, id)
}

// Length returns the command length
func (s *SlotHeader) Length() uint32 {
	return atomic.LoadUint32(&s.length)
}

// SetLength sets the command length
func (s *SlotHeader) SetLength(n uint32) {
	atomic.StoreUint32(&s.length, n)
}

// Generation returns the sender's attachment generation
func (s *SlotHeader) Generation() uint32 {
	return atomic.LoadUint32(&s.generation)
}

// SetGeneration sets the sender's attachment generation
func (s *SlotHeader) SetGeneration(gen uint32) {
	atomic.StoreUint32(&s.generation, gen)
}

// CalculateChannelLayout computes the region layout for a configuration.
// All sub-regions are aligned to 64-byte boundaries.
func CalculateChannelLayout(cfg Config) (totalSize, snapOff, queueOff, regOff uint64, err error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return 0, 0, 0, 0, err
	}

	snapOff = alignTo64(ChannelHeaderSize)
	queueOff = alignTo64(snapOff + SnapshotHeaderSize + cfg.DataSize)
	regOff = alignTo64(queueOff + QueueHeaderSize + uint64(cfg.CmdSlots)*slotStride)
	totalSize = alignTo64(regOff + uint64(cfg.MaxClients)*registryStride)

	return totalSize, snapOff, queueOff, regOff, nil
}

// alignTo64 aligns a size to a 64-byte boundary
func alignTo64(size uint64) uint64 {
	return (size + 63) &^ 63
}

// channelMagicBytes returns the magic constant as a byte array.
func channelMagicBytes() [8]byte {
	var m [8]byte
	copy(m[:], ChannelMagic)
	return m
}

// ValidateChannelHeader verifies that a mapped header describes a
// channel this package can use: right magic, supported version, and a
// layout consistent with the recorded configuration.
func ValidateChannelHeader(h *ChannelHeader) error {
	if h.Magic() != channelMagicBytes() {
		return fmt.Errorf("invalid magic bytes")
	}
	if h.Version() != ChannelVersion {
		return fmt.Errorf("unsupported version %d, expected %d", h.Version(), ChannelVersion)
	}

	cfg := Config{
		DataSize:   h.DataSize(),
		CmdSlots:   h.CmdSlots(),
		MaxClients: h.MaxClients(),
	}
	if cfg.DataSize == 0 || cfg.CmdSlots == 0 || cfg.MaxClients == 0 {
		return fmt.Errorf("zero capacity in header")
	}

	expectedTotal, expectedSnap, expectedQueue, expectedReg, err := CalculateChannelLayout(cfg)
	if err != nil {
		return fmt.Errorf("layout calculation failed: %w", err)
	}

	if h.TotalSize() != expectedTotal {
		return fmt.Errorf("total size mismatch: got %d, expected %d", h.TotalSize(), expectedTotal)
	}
	if h.SnapshotOffset() != expectedSnap {
		return fmt.Errorf("snapshot offset mismatch: got %d, expected %d", h.SnapshotOffset(), expectedSnap)
	}
	if h.QueueOffset() != expectedQueue {
		return fmt.Errorf("queue offset mismatch: got %d, expected %d", h.QueueOffset(), expectedQueue)
	}
	if h.RegistryOffset() != expectedReg {
		return fmt.Errorf("registry offset mismatch: got %d, expected %d", h.RegistryOffset(), expectedReg)
	}

	return nil
}
