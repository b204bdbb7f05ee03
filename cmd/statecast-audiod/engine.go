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

package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/statecast/statecast/audiostate"
)

// engine holds the daemon's authoritative audio state and applies
// client commands to it. It stands in for a real mixer backend: every
// mutation lands in the State and is published; a backend integration
// would additionally push the change to the sound server.
//
// engine is not goroutine-safe; the daemon drives it from one loop.
type engine struct {
	state audiostate.State
	log   *slog.Logger
	dirty bool
}

func newEngine(cfg config, log *slog.Logger) *engine {
	e := &engine{log: log}
	e.state.Volume = 100
	e.state.MicVolume = 100
	e.state.MaxVolume = cfg.MaxVolume

	for _, d := range cfg.Devices.Sinks {
		e.state.Sinks = append(e.state.Sinks, audiostate.Device{
			Name:        d.Name,
			Description: d.Description,
			Volume:      d.Volume,
			Default:     d.Default,
		})
		if d.Default {
			e.state.DefaultSink = d.Name
		}
	}
	for _, d := range cfg.Devices.Sources {
		e.state.Sources = append(e.state.Sources, audiostate.Device{
			Name:        d.Name,
			Description: d.Description,
			Volume:      d.Volume,
			Default:     d.Default,
		})
		if d.Default {
			e.state.DefaultSource = d.Name
		}
	}

	e.dirty = true
	return e
}

// snapshot stamps and encodes the current state, clearing the dirty
// flag.
func (e *engine) snapshot() ([]byte, error) {
	e.state.UpdateCounter++
	e.state.TimestampNS = uint64(time.Now().UnixNano())
	e.dirty = false
	return e.state.Encode()
}

// clampVolume bounds a requested volume to the legal range.
func (e *engine) clampVolume(v int32) int32 {
	max := int32(100)
	if e.state.Overamplification && e.state.MaxVolume > max {
		max = e.state.MaxVolume
	}
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

// apply executes one decoded command. Unknown targets are logged and
// dropped; clients are not trusted to name real devices.
func (e *engine) apply(cmd audiostate.Command) {
	switch c := cmd.(type) {
	case audiostate.SetVolume:
		e.state.Volume = e.clampVolume(c.Volume)
	case audiostate.SetMuted:
		e.state.Muted = c.Muted
	case audiostate.SetMicVolume:
		e.state.MicVolume = e.clampVolume(c.Volume)
	case audiostate.SetMicMuted:
		e.state.MicMuted = c.Muted
	case audiostate.SetDefaultSink:
		if e.findSink(c.Name) == nil {
			e.log.Warn("unknown sink", "name", c.Name)
			return
		}
		e.state.DefaultSink = c.Name
		for i := range e.state.Sinks {
			e.state.Sinks[i].Default = e.state.Sinks[i].Name == c.Name
		}
	case audiostate.SetDefaultSource:
		if e.findSource(c.Name) == nil {
			e.log.Warn("unknown source", "name", c.Name)
			return
		}
		e.state.DefaultSource = c.Name
		for i := range e.state.Sources {
			e.state.Sources[i].Default = e.state.Sources[i].Name == c.Name
		}
	case audiostate.SetSinkVolume:
		d := e.findSink(c.Name)
		if d == nil {
			e.log.Warn("unknown sink", "name", c.Name)
			return
		}
		d.Volume = e.clampVolume(c.Volume)
	case audiostate.SetSourceVolume:
		d := e.findSource(c.Name)
		if d == nil {
			e.log.Warn("unknown source", "name", c.Name)
			return
		}
		d.Volume = e.clampVolume(c.Volume)
	case audiostate.SetAppVolume:
		a := e.findApp(c.Index)
		if a == nil {
			e.log.Warn("unknown app stream", "index", c.Index)
			return
		}
		a.Volume = e.clampVolume(c.Volume)
	case audiostate.SetAppMuted:
		a := e.findApp(c.Index)
		if a == nil {
			e.log.Warn("unknown app stream", "index", c.Index)
			return
		}
		a.Muted = c.Muted
	case audiostate.MoveAppToSink:
		if e.findApp(c.Index) == nil || e.findSink(c.Sink) == nil {
			e.log.Warn("bad app move", "index", c.Index, "sink", c.Sink)
			return
		}
		// The simulated backend tracks no per-stream routing, so the
		// move only republishes; a mixer backend would reroute here.
	case audiostate.SetOveramplification:
		e.state.Overamplification = c.Enabled
		if !c.Enabled {
			e.state.Volume = e.clampVolume(e.state.Volume)
		}
	case audiostate.SetProfile:
		e.log.Info("profile change requested", "card", c.Card, "profile", c.Profile)
	case audiostate.Refresh:
		// Re-enumeration is a no-op for the simulated device list;
		// the republish below is the visible effect.
	default:
		e.log.Warn("unhandled command", "type", fmt.Sprintf("%T", cmd))
		return
	}
	e.dirty = true
}

func (e *engine) findSink(name string) *audiostate.Device {
	for i := range e.state.Sinks {
		if e.state.Sinks[i].Name == name {
			return &e.state.Sinks[i]
		}
	}
	return nil
}

func (e *engine) findSource(name string) *audiostate.Device {
	for i := range e.state.Sources {
		if e.state.Sources[i].Name == name {
			return &e.state.Sources[i]
		}
	}
	return nil
}

func (e *engine) findApp(index uint32) *audiostate.AppStream {
	for i := range e.state.Apps {
		if e.state.Apps[i].Index == index {
			return &e.state.Apps[i]
		}
	}
	return nil
}
