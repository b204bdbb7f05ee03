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

package audiostate

import (
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Snapshot framing constants.
const (
	// SnapshotVersion is bumped on incompatible State schema changes.
	SnapshotVersion = uint32(1)

	// headerSize is the fixed prefix before the CBOR body: 4 bytes
	// magic, 4 bytes version, 8 bytes update counter, little-endian.
	headerSize = 16

	// MaxDeviceName bounds device and profile name lengths.
	MaxDeviceName = 128

	// MaxDevices bounds the sink and source lists.
	MaxDevices = 16

	// MaxAppStreams bounds the application stream list.
	MaxAppStreams = 32
)

var snapshotMagic = [4]byte{'A', 'U', 'D', 'S'}

var (
	ErrTruncated  = errors.New("audiostate: snapshot truncated")
	ErrBadMagic   = errors.New("audiostate: bad snapshot magic")
	ErrBadVersion = errors.New("audiostate: unsupported snapshot version")
)

// encMode is the CBOR encoder configured with Core Deterministic
// Encoding: same logical state always produces identical bytes, so a
// publisher can compare encodings to suppress no-op publishes.
var encMode cbor.EncMode

// decMode is the CBOR decoder; unknown fields are ignored so old
// readers survive schema growth.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("audiostate: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("audiostate: CBOR decoder initialization failed: " + err.Error())
	}
}

// Device describes one output sink or input source.
type Device struct {
	Name        string `cbor:"name"`
	Description string `cbor:"description,omitempty"`
	Volume      int32  `cbor:"volume"`
	Muted       bool   `cbor:"muted,omitempty"`
	Default     bool   `cbor:"default,omitempty"`
}

// AppStream describes one application playback stream.
type AppStream struct {
	Index  uint32 `cbor:"index"`
	Name   string `cbor:"name"`
	Icon   string `cbor:"icon,omitempty"`
	Volume int32  `cbor:"volume"`
	Muted  bool   `cbor:"muted,omitempty"`
}

// State is the full audio picture the daemon publishes: master levels,
// default devices, the device lists and per-application streams.
type State struct {
	Volume            int32 `cbor:"volume"`
	MicVolume         int32 `cbor:"mic_volume"`
	Muted             bool  `cbor:"muted,omitempty"`
	MicMuted          bool  `cbor:"mic_muted,omitempty"`
	Overamplification bool  `cbor:"overamplification,omitempty"`
	MaxVolume         int32 `cbor:"max_volume,omitempty"`

	DefaultSink   string `cbor:"default_sink,omitempty"`
	DefaultSource string `cbor:"default_source,omitempty"`

	Sinks   []Device    `cbor:"sinks,omitempty"`
	Sources []Device    `cbor:"sources,omitempty"`
	Apps    []AppStream `cbor:"apps,omitempty"`

	// UpdateCounter increments on every publish; TimestampNS is the
	// publish time on the daemon's clock.
	UpdateCounter uint64 `cbor:"update_counter"`
	TimestampNS   uint64 `cbor:"timestamp_ns,omitempty"`
}

// validate rejects states that would not fit the wire bounds.
func (s *State) validate() error {
	if len(s.Sinks) > MaxDevices {
		return fmt.Errorf("too many sinks: %d > %d", len(s.Sinks), MaxDevices)
	}
	if len(s.Sources) > MaxDevices {
		return fmt.Errorf("too many sources: %d > %d", len(s.Sources), MaxDevices)
	}
	if len(s.Apps) > MaxAppStreams {
		return fmt.Errorf("too many app streams: %d > %d", len(s.Apps), MaxAppStreams)
	}
	if len(s.DefaultSink) >= MaxDeviceName || len(s.DefaultSource) >= MaxDeviceName {
		return fmt.Errorf("default device name too long")
	}
	for _, list := range [][]Device{s.Sinks, s.Sources} {
		for _, d := range list {
			if len(d.Name) >= MaxDeviceName || len(d.Description) >= MaxDeviceName {
				return fmt.Errorf("device name too long: %q", d.Name)
			}
		}
	}
	return nil
}

// Encode serializes the state as a snapshot payload: fixed prefix plus
// deterministic CBOR body.
func (s *State) Encode() ([]byte, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}

	body, err := encMode.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("audiostate: encode failed: %w", err)
	}

	out := make([]byte, headerSize+len(body))
	copy(out[0:4], snapshotMagic[:])
	binary.LittleEndian.PutUint32(out[4:8], SnapshotVersion)
	binary.LittleEndian.PutUint64(out[8:16], s.UpdateCounter)
	copy(out[headerSize:], body)
	return out, nil
}

// Decode parses a snapshot payload produced by Encode.
func Decode(data []byte) (*State, error) {
	if len(data) < headerSize {
		return nil, ErrTruncated
	}
	if [4]byte(data[0:4]) != snapshotMagic {
		return nil, ErrBadMagic
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != SnapshotVersion {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, v)
	}

	var s State
	if err := decMode.Unmarshal(data[headerSize:], &s); err != nil {
		return nil, fmt.Errorf("audiostate: decode failed: %w", err)
	}
	return &s, nil
}

// PeekCounter extracts the update counter from a snapshot payload
// without decoding the body. Pollers use it to skip unchanged states.
func PeekCounter(data []byte) (uint64, error) {
	if len(data) < headerSize {
		return 0, ErrTruncated
	}
	if [4]byte(data[0:4]) != snapshotMagic {
		return 0, ErrBadMagic
	}
	return binary.LittleEndian.Uint64(data[8:16]), nil
}
