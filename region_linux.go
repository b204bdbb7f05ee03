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
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

func init() {
	// Set platform-specific function implementations
	unmapMemory = munmapImpl
}

// createRegion creates a new shared memory channel region for the
// writer. If the name is taken by a live channel it returns
// ErrNameInUse; a channel left behind by a dead or closed writer is
// reclaimed and replaced.
func createRegion(name string, cfg Config) (*Region, error) {
	if err := validateChannelName(name); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	// Calculate the layout
	totalSize, snapOff, queueOff, regOff, err := CalculateChannelLayout(cfg)
	if err != nil {
		return nil, fmt.Errorf("layout calculation failed: %w", err)
	}

	path := channelPath(name)

	// Create the file with exclusive access. One reclaim attempt on
	// collision, then give up.
	var file *os.File
	for attempt := 0; ; attempt++ {
		file, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create channel file %s: %w", path, err)
		}
		if attempt > 0 {
			return nil, fmt.Errorf("%w: %s", ErrNameInUse, name)
		}
		stale, serr := isStaleChannel(path)
		if serr != nil {
			return nil, serr
		}
		if !stale {
			return nil, fmt.Errorf("%w: %s", ErrNameInUse, name)
		}
		if rerr := os.Remove(path); rerr != nil && !os.IsNotExist(rerr) {
			return nil, fmt.Errorf("failed to reclaim stale channel %s: %w", path, rerr)
		}
	}

	// Ensure cleanup on error
	cleanup := func() {
		file.Close()
		os.Remove(path)
	}

	// Set the file size
	if err := file.Truncate(int64(totalSize)); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to resize channel file: %w", err)
	}

	// Memory map the file
	mem, err := mmapFile(file, int(totalSize))
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to mmap channel: %w", err)
	}

	// Initialize the channel header
	hdr := (*ChannelHeader)(unsafe.Pointer(&mem[0]))
	hdr.SetMagic(channelMagicBytes())
	hdr.SetVersion(ChannelVersion)
	hdr.SetTotalSize(totalSize)
	hdr.SetSnapshotOffset(snapOff)
	hdr.SetQueueOffset(queueOff)
	hdr.SetRegistryOffset(regOff)
	hdr.SetDataSize(cfg.DataSize)
	hdr.SetCmdSlots(cfg.CmdSlots)
	hdr.SetMaxClients(cfg.MaxClients)
	hdr.SetWriterPID(uint32(os.Getpid()))
	hdr.SetClosed(false)

	region := bindRegion(mem, name, path, file)

	// A fresh mapping is zero-filled, so the seqlock counter, queue
	// cursors, slot states and registry words all start in their
	// initial state. Set them explicitly anyway in case the file was
	// reclaimed from a partially written predecessor.
	region.Snap.hdr.SetWriteSeq(0)
	region.Snap.hdr.SetDataLen(0)
	region.Queue.reset()
	region.Reg.reset()

	return region, nil
}

// openRegion opens an existing shared memory channel region for a
// reader.
func openRegion(name string) (*Region, error) {
	if err := validateChannelName(name); err != nil {
		return nil, err
	}

	path := channelPath(name)

	// Open the existing file
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, name)
		}
		return nil, fmt.Errorf("failed to open channel file %s: %w", path, err)
	}

	// Get file info to determine size
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat channel file: %w", err)
	}

	size := info.Size()
	if size < ChannelHeaderSize {
		file.Close()
		return nil, fmt.Errorf("%w: channel file too small: %d bytes", ErrIncompatible, size)
	}

	// Memory map the file
	mem, err := mmapFile(file, int(size))
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to mmap channel: %w", err)
	}

	// Validate the header
	hdr := (*ChannelHeader)(unsafe.Pointer(&mem[0]))
	if err := ValidateChannelHeader(hdr); err != nil {
		munmapImpl(mem)
		file.Close()
		return nil, fmt.Errorf("%w: %v", ErrIncompatible, err)
	}
	if hdr.TotalSize() != uint64(size) {
		munmapImpl(mem)
		file.Close()
		return nil, fmt.Errorf("%w: file size %d does not match header total %d", ErrIncompatible, size, hdr.TotalSize())
	}

	return bindRegion(mem, name, path, file), nil
}

// isStaleChannel reports whether an existing channel file belongs to a
// writer that has closed the channel or died. A file too small or too
// corrupt to carry a header is treated as stale.
func isStaleChannel(path string) (bool, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("failed to inspect channel file %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return false, fmt.Errorf("failed to stat channel file: %w", err)
	}
	if info.Size() < ChannelHeaderSize {
		return true, nil
	}

	mem, err := mmapFile(file, ChannelHeaderSize)
	if err != nil {
		return false, fmt.Errorf("failed to mmap channel header: %w", err)
	}
	defer munmapImpl(mem)

	hdr := (*ChannelHeader)(unsafe.Pointer(&mem[0]))
	if hdr.Magic() != channelMagicBytes() {
		return true, nil
	}
	if hdr.Closed() {
		return true, nil
	}
	return !processAlive(int(hdr.WriterPID())), nil
}

// processAlive probes a PID with signal 0.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	// EPERM means the process exists but belongs to another user.
	return err == nil || err == unix.EPERM
}

// mmapFile memory maps a file
func mmapFile(file *os.File, size int) ([]byte, error) {
	fd := int(file.Fd())

	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap failed: %w", err)
	}

	return data, nil
}

// munmapImpl unmaps a memory-mapped region
func munmapImpl(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("munmap failed: %w", err)
	}

	return nil
}
