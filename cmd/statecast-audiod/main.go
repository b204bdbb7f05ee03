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

// statecast-audiod owns an audio statecast channel: it publishes the
// audio state snapshot and applies commands sent back by clients. The
// mixer backend is simulated; the daemon exists to run the shared
// memory protocol end to end.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/statecast/statecast"
	"github.com/statecast/statecast/audiostate"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "statecast-audiod: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		channel    string
		tick       time.Duration
		logLevel   string
	)

	flagSet := pflag.NewFlagSet("statecast-audiod", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	flagSet.StringVar(&channel, "channel", "", "channel name (overrides config)")
	flagSet.DurationVar(&tick, "tick", 0, "heartbeat republish interval (overrides config)")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	log, err := newLogger(logLevel)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if channel != "" {
		cfg.Channel = channel
	}
	if tick > 0 {
		cfg.Tick = tick
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	writer, err := statecast.Create(cfg.Channel, cfg.channelConfig())
	if err != nil {
		return fmt.Errorf("creating channel %q: %w", cfg.Channel, err)
	}
	defer writer.Close()

	log.Info("channel created",
		"channel", cfg.Channel,
		"data_size", writer.Config().DataSize,
		"cmd_slots", writer.Config().CmdSlots,
		"max_clients", writer.Config().MaxClients)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return serve(writer, cfg, log, sigCh)
}

// serve is the daemon loop: publish on change, heartbeat on the tick,
// drain commands as they arrive.
func serve(writer *statecast.Writer, cfg config, log *slog.Logger, sigCh <-chan os.Signal) error {
	eng := newEngine(cfg, log)

	publish := func() error {
		payload, err := eng.snapshot()
		if err != nil {
			return fmt.Errorf("encoding state: %w", err)
		}
		if err := writer.Publish(payload); err != nil {
			return fmt.Errorf("publishing state: %w", err)
		}
		log.Debug("published", "counter", eng.state.UpdateCounter, "bytes", len(payload))
		return nil
	}

	if err := publish(); err != nil {
		return err
	}

	// Commands arrive on their own goroutine so a quiet channel does
	// not hold up the heartbeat.
	cmdCh := make(chan audiostate.Command, 16)
	recvErr := make(chan error, 1)
	go func() {
		buf := make([]byte, statecast.MaxCommandSize)
		for {
			n, clientID, err := writer.Recv(buf, 0)
			if err != nil {
				recvErr <- err
				return
			}
			cmd, err := audiostate.DecodeCommand(buf[:n])
			if err != nil {
				log.Warn("dropping bad command", "client", clientID, "error", err)
				continue
			}
			log.Debug("command", "client", clientID, "type", fmt.Sprintf("%T", cmd))
			cmdCh <- cmd
		}
	}()

	ticker := time.NewTicker(cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigCh:
			log.Info("shutting down", "signal", sig.String())
			return nil
		case err := <-recvErr:
			if err == statecast.ErrChannelClosed {
				return nil
			}
			return fmt.Errorf("receiving commands: %w", err)
		case cmd := <-cmdCh:
			eng.apply(cmd)
			// Coalesce a burst of commands into one publish.
			for len(cmdCh) > 0 {
				eng.apply(<-cmdCh)
			}
			if eng.dirty {
				if err := publish(); err != nil {
					return err
				}
			}
		case <-ticker.C:
			if err := publish(); err != nil {
				return err
			}
		}
	}
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}
