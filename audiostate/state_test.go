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
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func sampleState() *State {
	return &State{
		Volume:        72,
		MicVolume:     100,
		Muted:         false,
		MicMuted:      true,
		MaxVolume:     150,
		DefaultSink:   "alsa_output.pci-0000_00_1f.3.analog-stereo",
		DefaultSource: "alsa_input.pci-0000_00_1f.3.analog-stereo",
		Sinks: []Device{
			{Name: "alsa_output.pci-0000_00_1f.3.analog-stereo", Description: "Built-in Audio", Volume: 72, Default: true},
			{Name: "bluez_output.AA_BB", Description: "Headphones", Volume: 55, Muted: true},
		},
		Sources: []Device{
			{Name: "alsa_input.pci-0000_00_1f.3.analog-stereo", Description: "Built-in Mic", Volume: 100, Default: true},
		},
		Apps: []AppStream{
			{Index: 7, Name: "music-player", Icon: "audio-player", Volume: 64},
		},
		UpdateCounter: 41,
	}
}

func TestStateEncodeDecode(t *testing.T) {
	want := sampleState()

	data, err := want.Encode()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestStateEncodeDeterministic(t *testing.T) {
	a, err := sampleState().Encode()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	b, err := sampleState().Encode()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("equal states encoded to different bytes")
	}
}

func TestPeekCounter(t *testing.T) {
	s := sampleState()
	s.UpdateCounter = 9001

	data, err := s.Encode()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	counter, err := PeekCounter(data)
	if err != nil {
		t.Fatalf("PeekCounter failed: %v", err)
	}
	if counter != 9001 {
		t.Errorf("PeekCounter = %d, want 9001", counter)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode(nil); !errors.Is(err, ErrTruncated) {
		t.Errorf("Decode(nil) err = %v, want ErrTruncated", err)
	}
	if _, err := Decode(make([]byte, 8)); !errors.Is(err, ErrTruncated) {
		t.Errorf("Decode(short) err = %v, want ErrTruncated", err)
	}

	data, err := sampleState().Encode()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	bad := append([]byte(nil), data...)
	bad[0] = 'X'
	if _, err := Decode(bad); !errors.Is(err, ErrBadMagic) {
		t.Errorf("Decode with bad magic err = %v, want ErrBadMagic", err)
	}
	if _, err := PeekCounter(bad); !errors.Is(err, ErrBadMagic) {
		t.Errorf("PeekCounter with bad magic err = %v, want ErrBadMagic", err)
	}

	bad = append([]byte(nil), data...)
	bad[4] = 99
	if _, err := Decode(bad); !errors.Is(err, ErrBadVersion) {
		t.Errorf("Decode with bad version err = %v, want ErrBadVersion", err)
	}
}

func TestStateEncodeBounds(t *testing.T) {
	s := sampleState()
	s.Sinks = make([]Device, MaxDevices+1)
	if _, err := s.Encode(); err == nil {
		t.Error("encode accepted too many sinks")
	}

	s = sampleState()
	s.Apps = make([]AppStream, MaxAppStreams+1)
	if _, err := s.Encode(); err == nil {
		t.Error("encode accepted too many app streams")
	}

	s = sampleState()
	s.DefaultSink = strings.Repeat("x", MaxDeviceName)
	if _, err := s.Encode(); err == nil {
		t.Error("encode accepted an oversized default sink name")
	}

	s = sampleState()
	s.Sinks[0].Description = strings.Repeat("y", MaxDeviceName)
	if _, err := s.Encode(); err == nil {
		t.Error("encode accepted an oversized device description")
	}
}

// Old readers must survive fields they do not know about.
func TestDecodeIgnoresUnknownFields(t *testing.T) {
	type futureState struct {
		State
		Spatializer bool `cbor:"spatializer"`
	}

	future := futureState{State: *sampleState(), Spatializer: true}
	body, err := encMode.Marshal(future)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	data := make([]byte, headerSize+len(body))
	copy(data[0:4], snapshotMagic[:])
	data[4] = byte(SnapshotVersion)
	copy(data[headerSize:], body)

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.Volume != future.Volume || got.DefaultSink != future.DefaultSink {
		t.Errorf("known fields lost while skipping unknown ones: %+v", got)
	}
}
