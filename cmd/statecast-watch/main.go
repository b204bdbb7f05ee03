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

// statecast-watch attaches to an audio statecast channel. Without
// command flags it follows the published state and prints every
// update; with a command flag it sends that command and exits.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/statecast/statecast"
	"github.com/statecast/statecast/audiostate"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "statecast-watch: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		channel    string
		retry      time.Duration
		jsonOutput bool
		once       bool

		setVolume    int32
		setMicVolume int32
		mute         bool
		unmute       bool
		micMute      bool
		micUnmute    bool
		defaultSink  string
		defaultSrc   string
		sinkVolume   string
		sourceVolume string
		appVolume    string
		appMute      uint32
		appUnmute    uint32
		moveApp      string
		overamp      string
		profile      string
		refresh      bool
	)

	flagSet := pflag.NewFlagSet("statecast-watch", pflag.ContinueOnError)
	flagSet.StringVar(&channel, "channel", "audio", "channel name to attach to")
	flagSet.DurationVar(&retry, "retry", 0, "keep retrying the attach for this long if the channel is missing")
	flagSet.BoolVar(&jsonOutput, "json", false, "print state as JSON instead of a summary")
	flagSet.BoolVarP(&once, "once", "o", false, "print the current state once and exit")

	flagSet.Int32Var(&setVolume, "set-volume", -1, "set master volume (0-150)")
	flagSet.Int32Var(&setMicVolume, "set-mic-volume", -1, "set microphone volume")
	flagSet.BoolVar(&mute, "mute", false, "mute the master output")
	flagSet.BoolVar(&unmute, "unmute", false, "unmute the master output")
	flagSet.BoolVar(&micMute, "mic-mute", false, "mute the microphone")
	flagSet.BoolVar(&micUnmute, "mic-unmute", false, "unmute the microphone")
	flagSet.StringVar(&defaultSink, "default-sink", "", "set the default output device")
	flagSet.StringVar(&defaultSrc, "default-source", "", "set the default input device")
	flagSet.StringVar(&sinkVolume, "sink-volume", "", "set a sink volume as name=volume")
	flagSet.StringVar(&sourceVolume, "source-volume", "", "set a source volume as name=volume")
	flagSet.StringVar(&appVolume, "app-volume", "", "set an app stream volume as index=volume")
	flagSet.Uint32Var(&appMute, "app-mute", 0, "mute the app stream with this index")
	flagSet.Uint32Var(&appUnmute, "app-unmute", 0, "unmute the app stream with this index")
	flagSet.StringVar(&moveApp, "move-app", "", "move an app stream as index=sink")
	flagSet.StringVar(&overamp, "overamplification", "", "enable or disable overamplification: on|off")
	flagSet.StringVar(&profile, "profile", "", "switch a card profile as card=profile")
	flagSet.BoolVar(&refresh, "refresh", false, "ask the daemon to re-enumerate devices")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	var commands []audiostate.Command
	if setVolume >= 0 {
		commands = append(commands, audiostate.SetVolume{Volume: setVolume})
	}
	if setMicVolume >= 0 {
		commands = append(commands, audiostate.SetMicVolume{Volume: setMicVolume})
	}
	if mute || unmute {
		if mute && unmute {
			return fmt.Errorf("--mute and --unmute are mutually exclusive")
		}
		commands = append(commands, audiostate.SetMuted{Muted: mute})
	}
	if micMute || micUnmute {
		if micMute && micUnmute {
			return fmt.Errorf("--mic-mute and --mic-unmute are mutually exclusive")
		}
		commands = append(commands, audiostate.SetMicMuted{Muted: micMute})
	}
	if defaultSink != "" {
		commands = append(commands, audiostate.SetDefaultSink{Name: defaultSink})
	}
	if defaultSrc != "" {
		commands = append(commands, audiostate.SetDefaultSource{Name: defaultSrc})
	}
	if sinkVolume != "" {
		name, vol, err := parseNameVolume(sinkVolume)
		if err != nil {
			return fmt.Errorf("--sink-volume: %w", err)
		}
		commands = append(commands, audiostate.SetSinkVolume{Name: name, Volume: vol})
	}
	if sourceVolume != "" {
		name, vol, err := parseNameVolume(sourceVolume)
		if err != nil {
			return fmt.Errorf("--source-volume: %w", err)
		}
		commands = append(commands, audiostate.SetSourceVolume{Name: name, Volume: vol})
	}
	if appVolume != "" {
		idx, vol, err := parseIndexVolume(appVolume)
		if err != nil {
			return fmt.Errorf("--app-volume: %w", err)
		}
		commands = append(commands, audiostate.SetAppVolume{Index: idx, Volume: vol})
	}
	if flagSet.Changed("app-mute") {
		commands = append(commands, audiostate.SetAppMuted{Index: appMute, Muted: true})
	}
	if flagSet.Changed("app-unmute") {
		commands = append(commands, audiostate.SetAppMuted{Index: appUnmute, Muted: false})
	}
	if moveApp != "" {
		idxStr, sink, ok := strings.Cut(moveApp, "=")
		if !ok {
			return fmt.Errorf("--move-app wants index=sink, got %q", moveApp)
		}
		idx, err := strconv.ParseUint(idxStr, 10, 32)
		if err != nil {
			return fmt.Errorf("--move-app: bad index %q", idxStr)
		}
		commands = append(commands, audiostate.MoveAppToSink{Index: uint32(idx), Sink: sink})
	}
	if overamp != "" {
		switch overamp {
		case "on":
			commands = append(commands, audiostate.SetOveramplification{Enabled: true})
		case "off":
			commands = append(commands, audiostate.SetOveramplification{Enabled: false})
		default:
			return fmt.Errorf("--overamplification wants on or off, got %q", overamp)
		}
	}
	if profile != "" {
		card, prof, ok := strings.Cut(profile, "=")
		if !ok {
			return fmt.Errorf("--profile wants card=profile, got %q", profile)
		}
		commands = append(commands, audiostate.SetProfile{Card: card, Profile: prof})
	}
	if refresh {
		commands = append(commands, audiostate.Refresh{})
	}

	reader, err := attach(channel, retry)
	if err != nil {
		return err
	}
	defer reader.Close()

	if len(commands) > 0 {
		return sendCommands(reader, commands)
	}
	return watch(reader, jsonOutput, once)
}

// attach opens the channel, retrying while it does not exist yet so
// the watcher can be started before the daemon.
func attach(channel string, retry time.Duration) (*statecast.Reader, error) {
	deadline := time.Now().Add(retry)
	for {
		reader, err := statecast.Open(channel)
		if err == nil {
			return reader, nil
		}
		if !errors.Is(err, statecast.ErrChannelNotFound) || retry <= 0 || time.Now().After(deadline) {
			return nil, err
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func sendCommands(reader *statecast.Reader, commands []audiostate.Command) error {
	for _, cmd := range commands {
		data, err := audiostate.EncodeCommand(cmd)
		if err != nil {
			return err
		}
		// A full queue means the daemon is behind; give it a moment.
		for attempt := 0; ; attempt++ {
			err = reader.Send(data)
			if !errors.Is(err, statecast.ErrQueueFull) {
				break
			}
			if attempt >= 50 {
				return fmt.Errorf("command queue stayed full: %w", err)
			}
			time.Sleep(10 * time.Millisecond)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func watch(reader *statecast.Reader, jsonOutput, once bool) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	clearScreen := !jsonOutput && !once && term.IsTerminal(int(os.Stdout.Fd()))

	buf := make([]byte, reader.Config().DataSize)
	var lastSeq uint64
	for {
		n, seq, updated, err := reader.ReadIfNewer(buf, lastSeq)
		if err != nil {
			if errors.Is(err, statecast.ErrChannelClosed) {
				fmt.Fprintln(os.Stderr, "channel closed by daemon")
				return nil
			}
			return err
		}
		if updated && n > 0 {
			state, err := audiostate.Decode(buf[:n])
			if err != nil {
				return fmt.Errorf("decoding snapshot: %w", err)
			}
			if err := printState(state, jsonOutput, clearScreen); err != nil {
				return err
			}
			if once {
				return nil
			}
		}
		lastSeq = seq

		done := make(chan error, 1)
		go func() { done <- reader.WaitUpdate(lastSeq, time.Second) }()
		select {
		case <-sigCh:
			return nil
		case err := <-done:
			switch {
			case err == nil, errors.Is(err, statecast.ErrWaitTimeout):
			case errors.Is(err, statecast.ErrChannelClosed):
				fmt.Fprintln(os.Stderr, "channel closed by daemon")
				return nil
			default:
				return err
			}
		}
	}
}

func printState(s *audiostate.State, jsonOutput, clearScreen bool) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		return enc.Encode(s)
	}

	if clearScreen {
		fmt.Print("\033[H\033[2J")
	}

	muted := func(b bool) string {
		if b {
			return " [muted]"
		}
		return ""
	}

	fmt.Printf("update %d\n", s.UpdateCounter)
	fmt.Printf("volume: %d%%%s   mic: %d%%%s\n",
		s.Volume, muted(s.Muted), s.MicVolume, muted(s.MicMuted))
	fmt.Printf("default sink: %s   default source: %s\n", s.DefaultSink, s.DefaultSource)

	if len(s.Sinks) > 0 {
		fmt.Println("sinks:")
		for _, d := range s.Sinks {
			marker := "  "
			if d.Default {
				marker = "* "
			}
			fmt.Printf("  %s%-40s %3d%%%s\n", marker, d.Name, d.Volume, muted(d.Muted))
		}
	}
	if len(s.Sources) > 0 {
		fmt.Println("sources:")
		for _, d := range s.Sources {
			marker := "  "
			if d.Default {
				marker = "* "
			}
			fmt.Printf("  %s%-40s %3d%%%s\n", marker, d.Name, d.Volume, muted(d.Muted))
		}
	}
	if len(s.Apps) > 0 {
		fmt.Println("apps:")
		for _, a := range s.Apps {
			fmt.Printf("   [%3d] %-34s %3d%%%s\n", a.Index, a.Name, a.Volume, muted(a.Muted))
		}
	}
	return nil
}

func parseNameVolume(arg string) (string, int32, error) {
	name, volStr, ok := strings.Cut(arg, "=")
	if !ok || name == "" {
		return "", 0, fmt.Errorf("want name=volume, got %q", arg)
	}
	vol, err := strconv.ParseInt(volStr, 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf("bad volume %q", volStr)
	}
	return name, int32(vol), nil
}

func parseIndexVolume(arg string) (uint32, int32, error) {
	idxStr, volStr, ok := strings.Cut(arg, "=")
	if !ok {
		return 0, 0, fmt.Errorf("want index=volume, got %q", arg)
	}
	idx, err := strconv.ParseUint(idxStr, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("bad index %q", idxStr)
	}
	vol, err := strconv.ParseInt(volStr, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("bad volume %q", volStr)
	}
	return uint32(idx), int32(vol), nil
}
