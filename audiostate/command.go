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
	"encoding/binary"
	"errors"
	"fmt"
)

// CommandSize is the fixed wire size of every command: a one-byte
// kind, three bytes of padding, and a 256-byte kind-specific payload.
const CommandSize = 260

// Command kinds on the wire.
const (
	kindSetVolume = uint8(iota + 1)
	kindSetMuted
	kindSetMicVolume
	kindSetMicMuted
	kindSetDefaultSink
	kindSetDefaultSource
	kindSetSinkVolume
	kindSetSourceVolume
	kindSetAppVolume
	kindSetAppMuted
	kindMoveAppToSink
	kindSetOveramplification
	kindSetProfile
	kindRefresh
)

var (
	ErrBadCommand     = errors.New("audiostate: malformed command")
	ErrUnknownCommand = errors.New("audiostate: unknown command kind")
	ErrNameTooLong    = errors.New("audiostate: name too long")
)

// Command is one client request to the daemon. It is a closed set; the
// daemon switches over the concrete types.
type Command interface {
	kind() uint8
	encodePayload(p []byte) error
}

// SetVolume sets the master output volume.
type SetVolume struct{ Volume int32 }

// SetMuted mutes or unmutes the master output.
type SetMuted struct{ Muted bool }

// SetMicVolume sets the master input volume.
type SetMicVolume struct{ Volume int32 }

// SetMicMuted mutes or unmutes the master input.
type SetMicMuted struct{ Muted bool }

// SetDefaultSink selects the default output device by name.
type SetDefaultSink struct{ Name string }

// SetDefaultSource selects the default input device by name.
type SetDefaultSource struct{ Name string }

// SetSinkVolume sets one output device's volume.
type SetSinkVolume struct {
	Name   string
	Volume int32
}

// SetSourceVolume sets one input device's volume.
type SetSourceVolume struct {
	Name   string
	Volume int32
}

// SetAppVolume sets one application stream's volume.
type SetAppVolume struct {
	Index  uint32
	Volume int32
}

// SetAppMuted mutes or unmutes one application stream.
type SetAppMuted struct {
	Index uint32
	Muted bool
}

// MoveAppToSink reroutes an application stream to a named sink.
type MoveAppToSink struct {
	Index uint32
	Sink  string
}

// SetOveramplification enables or disables volume above 100%.
type SetOveramplification struct{ Enabled bool }

// SetProfile switches a card to a named profile.
type SetProfile struct {
	Card    string
	Profile string
}

// Refresh asks the daemon to re-enumerate devices and republish.
type Refresh struct{}

func (SetVolume) kind() uint8            { return kindSetVolume }
func (SetMuted) kind() uint8             { return kindSetMuted }
func (SetMicVolume) kind() uint8         { return kindSetMicVolume }
func (SetMicMuted) kind() uint8          { return kindSetMicMuted }
func (SetDefaultSink) kind() uint8       { return kindSetDefaultSink }
func (SetDefaultSource) kind() uint8     { return kindSetDefaultSource }
func (SetSinkVolume) kind() uint8        { return kindSetSinkVolume }
func (SetSourceVolume) kind() uint8      { return kindSetSourceVolume }
func (SetAppVolume) kind() uint8         { return kindSetAppVolume }
func (SetAppMuted) kind() uint8          { return kindSetAppMuted }
func (MoveAppToSink) kind() uint8        { return kindMoveAppToSink }
func (SetOveramplification) kind() uint8 { return kindSetOveramplification }
func (SetProfile) kind() uint8           { return kindSetProfile }
func (Refresh) kind() uint8              { return kindRefresh }

// putName writes a NUL-padded fixed name field. Names must leave room
// for a terminator so C-style readers can treat the field as a string.
func putName(p []byte, name string) error {
	if len(name) >= MaxDeviceName {
		return fmt.Errorf("%w: %d bytes", ErrNameTooLong, len(name))
	}
	copy(p[:MaxDeviceName], name)
	return nil
}

// getName reads a NUL-padded fixed name field.
func getName(p []byte) string {
	field := p[:MaxDeviceName]
	if i := bytes.IndexByte(field, 0); i >= 0 {
		field = field[:i]
	}
	return string(field)
}

func (c SetVolume) encodePayload(p []byte) error {
	binary.LittleEndian.PutUint32(p, uint32(c.Volume))
	return nil
}

func (c SetMuted) encodePayload(p []byte) error {
	p[0] = boolByte(c.Muted)
	return nil
}

func (c SetMicVolume) encodePayload(p []byte) error {
	binary.LittleEndian.PutUint32(p, uint32(c.Volume))
	return nil
}

func (c SetMicMuted) encodePayload(p []byte) error {
	p[0] = boolByte(c.Muted)
	return nil
}

func (c SetDefaultSink) encodePayload(p []byte) error {
	return putName(p, c.Name)
}

func (c SetDefaultSource) encodePayload(p []byte) error {
	return putName(p, c.Name)
}

func (c SetSinkVolume) encodePayload(p []byte) error {
	if err := putName(p, c.Name); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(p[MaxDeviceName:], uint32(c.Volume))
	return nil
}

func (c SetSourceVolume) encodePayload(p []byte) error {
	if err := putName(p, c.Name); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(p[MaxDeviceName:], uint32(c.Volume))
	return nil
}

func (c SetAppVolume) encodePayload(p []byte) error {
	binary.LittleEndian.PutUint32(p[0:], c.Index)
	binary.LittleEndian.PutUint32(p[4:], uint32(c.Volume))
	return nil
}

func (c SetAppMuted) encodePayload(p []byte) error {
	binary.LittleEndian.PutUint32(p[0:], c.Index)
	p[4] = boolByte(c.Muted)
	return nil
}

func (c MoveAppToSink) encodePayload(p []byte) error {
	binary.LittleEndian.PutUint32(p[0:], c.Index)
	return putName(p[4:], c.Sink)
}

func (c SetOveramplification) encodePayload(p []byte) error {
	p[0] = boolByte(c.Enabled)
	return nil
}

func (c SetProfile) encodePayload(p []byte) error {
	if err := putName(p, c.Card); err != nil {
		return err
	}
	return putName(p[MaxDeviceName:], c.Profile)
}

func (Refresh) encodePayload(p []byte) error { return nil }

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// EncodeCommand serializes a command to its fixed wire form.
func EncodeCommand(c Command) ([]byte, error) {
	out := make([]byte, CommandSize)
	out[0] = c.kind()
	if err := c.encodePayload(out[4:]); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeCommand parses a fixed-size command record.
func DecodeCommand(data []byte) (Command, error) {
	if len(data) != CommandSize {
		return nil, fmt.Errorf("%w: length %d, want %d", ErrBadCommand, len(data), CommandSize)
	}
	p := data[4:]

	switch data[0] {
	case kindSetVolume:
		return SetVolume{Volume: int32(binary.LittleEndian.Uint32(p))}, nil
	case kindSetMuted:
		return SetMuted{Muted: p[0] != 0}, nil
	case kindSetMicVolume:
		return SetMicVolume{Volume: int32(binary.LittleEndian.Uint32(p))}, nil
	case kindSetMicMuted:
		return SetMicMuted{Muted: p[0] != 0}, nil
	case kindSetDefaultSink:
		return SetDefaultSink{Name: getName(p)}, nil
	case kindSetDefaultSource:
		return SetDefaultSource{Name: getName(p)}, nil
	case kindSetSinkVolume:
		return SetSinkVolume{
			Name:   getName(p),
			Volume: int32(binary.LittleEndian.Uint32(p[MaxDeviceName:])),
		}, nil
	case kindSetSourceVolume:
		return SetSourceVolume{
			Name:   getName(p),
			Volume: int32(binary.LittleEndian.Uint32(p[MaxDeviceName:])),
		}, nil
	case kindSetAppVolume:
		return SetAppVolume{
			Index:  binary.LittleEndian.Uint32(p[0:]),
			Volume: int32(binary.LittleEndian.Uint32(p[4:])),
		}, nil
	case kindSetAppMuted:
		return SetAppMuted{
			Index: binary.LittleEndian.Uint32(p[0:]),
			Muted: p[4] != 0,
		}, nil
	case kindMoveAppToSink:
		return MoveAppToSink{
			Index: binary.LittleEndian.Uint32(p[0:]),
			Sink:  getName(p[4:]),
		}, nil
	case kindSetOveramplification:
		return SetOveramplification{Enabled: p[0] != 0}, nil
	case kindSetProfile:
		return SetProfile{
			Card:    getName(p),
			Profile: getName(p[MaxDeviceName:]),
		}, nil
	case kindRefresh:
		return Refresh{}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCommand, data[0])
	}
}
