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

// statecast-bench measures channel throughput in-process: one
// publisher hammering snapshots, a set of attached readers copying
// them out, and optionally a stream of commands flowing back.
package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/pflag"

	"github.com/statecast/statecast"
)

type counters struct {
	publishes uint64
	reads     uint64
	fresh     uint64
	commands  uint64
	cmdFull   uint64
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "statecast-bench: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		readers  int
		senders  int
		size     uint64
		slots    uint32
		duration time.Duration
	)

	flagSet := pflag.NewFlagSet("statecast-bench", pflag.ContinueOnError)
	flagSet.IntVar(&readers, "readers", 4, "number of snapshot readers")
	flagSet.IntVar(&senders, "senders", 1, "number of command senders (0 disables commands)")
	flagSet.Uint64Var(&size, "size", 4096, "snapshot payload size in bytes")
	flagSet.Uint32Var(&slots, "slots", statecast.DefaultCmdSlots, "command queue capacity")
	flagSet.DurationVar(&duration, "duration", 5*time.Second, "measurement length")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if readers+senders+1 > statecast.MaxClientsLimit {
		return fmt.Errorf("too many participants")
	}

	name := fmt.Sprintf("bench_%d", os.Getpid())
	statecast.Remove(name)
	writer, err := statecast.Create(name, statecast.Config{
		DataSize:   size,
		CmdSlots:   slots,
		MaxClients: uint32(readers + senders),
	})
	if err != nil {
		return err
	}
	defer func() {
		writer.Close()
		statecast.Remove(name)
	}()

	var c counters
	var wg sync.WaitGroup
	stop := make(chan struct{})

	// Snapshot readers.
	for i := 0; i < readers; i++ {
		reader, err := statecast.Open(name)
		if err != nil {
			return fmt.Errorf("attaching reader %d: %w", i, err)
		}
		defer reader.Close()

		wg.Add(1)
		go func() {
			defer wg.Done()
			buf := make([]byte, size)
			var lastSeq uint64
			for {
				select {
				case <-stop:
					return
				default:
				}
				n, seq, updated, err := reader.ReadIfNewer(buf, lastSeq)
				if err != nil {
					return
				}
				atomic.AddUint64(&c.reads, 1)
				if updated && n > 0 {
					atomic.AddUint64(&c.fresh, 1)
				}
				lastSeq = seq
			}
		}()
	}

	// Command senders.
	for i := 0; i < senders; i++ {
		sender, err := statecast.Open(name)
		if err != nil {
			return fmt.Errorf("attaching sender %d: %w", i, err)
		}
		defer sender.Close()

		wg.Add(1)
		go func() {
			defer wg.Done()
			payload := make([]byte, 64)
			for {
				select {
				case <-stop:
					return
				default:
				}
				err := sender.Send(payload)
				switch {
				case err == nil:
					atomic.AddUint64(&c.commands, 1)
				case errors.Is(err, statecast.ErrQueueFull):
					atomic.AddUint64(&c.cmdFull, 1)
				default:
					return
				}
			}
		}()
	}

	// Command drain on the writer side.
	if senders > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf := make([]byte, statecast.MaxCommandSize)
			for {
				select {
				case <-stop:
					return
				default:
				}
				writer.Recv(buf, 10*time.Millisecond)
			}
		}()
	}

	// The publisher runs in the main goroutine.
	payload := make([]byte, size)
	start := time.Now()
	deadline := start.Add(duration)
	var round uint64
	for time.Now().Before(deadline) {
		round++
		if size >= 8 {
			binary.LittleEndian.PutUint64(payload, round)
		}
		if err := writer.Publish(payload); err != nil {
			return err
		}
		atomic.AddUint64(&c.publishes, 1)
	}
	elapsed := time.Since(start)

	close(stop)
	wg.Wait()

	report(&c, elapsed, size, readers, senders)
	return nil
}

func report(c *counters, elapsed time.Duration, size uint64, readers, senders int) {
	secs := elapsed.Seconds()
	pub := atomic.LoadUint64(&c.publishes)
	reads := atomic.LoadUint64(&c.reads)
	fresh := atomic.LoadUint64(&c.fresh)
	cmds := atomic.LoadUint64(&c.commands)
	full := atomic.LoadUint64(&c.cmdFull)

	fmt.Printf("elapsed:    %.2fs, payload %d bytes, %d readers, %d senders\n",
		secs, size, readers, senders)
	fmt.Printf("publishes:  %d (%.0f/s, %.1f MB/s)\n",
		pub, float64(pub)/secs, float64(pub*size)/secs/1e6)
	fmt.Printf("reads:      %d (%.0f/s), %d fresh\n",
		reads, float64(reads)/secs, fresh)
	if senders > 0 {
		fmt.Printf("commands:   %d (%.0f/s), %d rejected full\n",
			cmds, float64(cmds)/secs, full)
	}
}
