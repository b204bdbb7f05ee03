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
	"path/filepath"
	"unsafe"
)

// Platform-specific function implementations, set by init() in the
// platform files.
var (
	// unmapMemory unmaps a memory-mapped region
	unmapMemory func([]byte) error
)

// Region is a mapped shared memory channel. It is the common substrate
// for both the writer and reader handles: a file-backed mapping plus
// typed views over the header, snapshot area, command queue and client
// registry.
type Region struct {
	File  *os.File // File descriptor for the shared memory file
	Mem   []byte   // Memory-mapped region
	Path  string   // File path
	Name  string   // Channel name (without path or prefix)
	Hdr   *ChannelHeader
	Snap  *snapshotRegion
	Queue *commandQueue
	Reg   *clientRegistry
}

// bindRegion builds the typed views over an already mapped and
// validated channel region.
func bindRegion(mem []byte, name, path string, file *os.File) *Region {
	hdr := (*ChannelHeader)(unsafe.Pointer(&mem[0]))
	return &Region{
		File:  file,
		Mem:   mem,
		Path:  path,
		Name:  name,
		Hdr:   hdr,
		Snap:  newSnapshotRegion(mem, hdr.SnapshotOffset(), hdr.DataSize()),
		Queue: newCommandQueue(mem, hdr.QueueOffset(), hdr.CmdSlots()),
		Reg:   newClientRegistry(mem, hdr.RegistryOffset(), hdr.MaxClients()),
	}
}

// Close unmaps the region and closes the underlying file. It does not
// unlink the file; Writer.Close handles teardown.
func (r *Region) Close() error {
	var firstErr error

	// Unmap the memory
	if r.Mem != nil {
		if err := unmapMemory(r.Mem); err != nil && firstErr == nil {
			firstErr = err
		}
		r.Mem = nil
		r.Hdr = nil
		r.Snap = nil
		r.Queue = nil
		r.Reg = nil
	}

	// Close the file
	if r.File != nil {
		if err := r.File.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.File = nil
	}

	return firstErr
}

// Unlink removes the backing file. Mappings held by attached processes
// stay valid under POSIX semantics until they unmap.
func (r *Region) Unlink() error {
	if r.Path == "" {
		return nil
	}
	if err := os.Remove(r.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to unlink channel file: %w", err)
	}
	return nil
}

// Remove deletes the backing file of a named channel if it exists.
// Intended for cleaning up after crashed writers; removing a live
// channel unlinks it out from under its writer.
func Remove(name string) error {
	if err := validateChannelName(name); err != nil {
		return err
	}
	if err := os.Remove(channelPath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove channel file: %w", err)
	}
	return nil
}

// channelPath generates the file path for a named channel
func channelPath(name string) string {
	// Prefer /dev/shm for shared memory on Linux
	if isDevShmAvailable() {
		return filepath.Join("/dev/shm", "statecast_"+name)
	}

	// Fallback to temporary directory
	return filepath.Join(os.TempDir(), "statecast_"+name)
}

// isDevShmAvailable checks if /dev/shm is available and writable
func isDevShmAvailable() bool {
	info, err := os.Stat("/dev/shm")
	if err != nil {
		return false
	}
	return info.IsDir()
}

// validateChannelName rejects names that would escape the channel
// directory or produce an unusable path.
func validateChannelName(name string) error {
	if name == "" {
		return fmt.Errorf("channel name must not be empty")
	}
	if len(name) > 200 {
		return fmt.Errorf("channel name too long: %d bytes", len(name))
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '-' || c == '.':
		default:
			return fmt.Errorf("channel name contains invalid byte %q at index %d", c, i)
		}
	}
	return nil
}
