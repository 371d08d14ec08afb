// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

// Program tensorlanectl is a command-line utility for exercising tensorlane
// channels and transports without writing Go.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/creachadair/command"
	"github.com/tensorlane/tensorlane"
	"github.com/tensorlane/tensorlane/channel/basic"
	"github.com/tensorlane/tensorlane/channel/cma"
	"github.com/tensorlane/tensorlane/config"
	"github.com/tensorlane/tensorlane/platform"
	"github.com/tensorlane/tensorlane/transport"
	"github.com/tensorlane/tensorlane/transport/shm"
	"github.com/tensorlane/tensorlane/transport/uv"
	"github.com/tensorlane/tensorlane/wire"
)

func main() {
	cfg := config.Default()
	var fs *flag.FlagSet
	root := &command.C{
		Name: filepath.Base(os.Args[0]),
		Help: "Utilities for exercising tensorlane channels and transports.",
		SetFlags: func(env *command.Env, f *flag.FlagSet) {
			config.Bind(f, cfg)
			fs = f
		},
		Commands: []*command.C{
			{
				Name:  "descriptor",
				Usage: "pack <operation-id> | unpack <hex-bytes>",
				Help: `Pack or unpack the out-of-band descriptor exchanged by channel/basic.

pack takes a decimal operation id and prints its encoded descriptor as hex.
unpack takes a hex-encoded descriptor and prints its operation id.
`,
				Commands: []*command.C{
					{
						Name:  "pack",
						Usage: "<operation-id>",
						Run: func(env *command.Env) error {
							if len(env.Args) != 1 {
								return env.Usagef("exactly one operation id is required")
							}
							id, err := strconv.ParseUint(env.Args[0], 10, 64)
							if err != nil {
								return fmt.Errorf("invalid operation id: %w", err)
							}
							fmt.Printf("%x\n", wire.EncodeDescriptor(id))
							return nil
						},
					},
					{
						Name:  "unpack",
						Usage: "<hex-bytes>",
						Run: func(env *command.Env) error {
							if len(env.Args) != 1 {
								return env.Usagef("exactly one hex descriptor is required")
							}
							b, err := decodeHex(env.Args[0])
							if err != nil {
								return err
							}
							id, err := wire.DecodeDescriptor(b)
							if err != nil {
								return err
							}
							fmt.Println(id)
							return nil
						},
					},
				},
			},
			{
				Name: "config",
				Help: "Print the effective configuration after flags and environment are applied.",
				Run: func(env *command.Env) error {
					setupFromFlags(fs, cfg)
					fmt.Printf("cma-mailbox-capacity:    %d\n", cfg.CMAMailboxCapacity)
					fmt.Printf("reactor-poll-timeout-ms: %d\n", cfg.ReactorPollTimeoutMS)
					fmt.Printf("log-level:               %s\n", cfg.LogLevel)
					fmt.Printf("log-format:              %s\n", cfg.LogFormat)
					fmt.Printf("channel-buffer-hint:     %d\n", cfg.ChannelBufferHint)
					return nil
				},
			},
			{
				Name:  "demo",
				Usage: "basic | cma | shm",
				Help: `Run a self-contained loopback send/recv over one channel kind.

Each variant builds a connected pair of endpoints in-process, sends a small
payload from one side to the other, and reports the round trip.
`,
				Commands: []*command.C{
					{Name: "basic", Run: func(env *command.Env) error { return runBasicDemo(env, fs, cfg) }},
					{Name: "cma", Run: func(env *command.Env) error { return runCMADemo(env, fs, cfg) }},
					{Name: "shm", Run: func(env *command.Env) error { return runSHMDemo(env, fs, cfg) }},
				},
			},
			command.VersionCommand(),
			command.HelpCommand(nil),
		},
	}
	command.RunOrFail(root.NewEnv(nil).MergeFlags(true), os.Args[1:])
}

// setupFromFlags applies the environment fallback to cfg and installs the
// resulting logger as the process default, so every sticky-error log line
// a demo triggers respects the configured level and format. Call it first
// thing in any Run that touches cfg.
func setupFromFlags(fs *flag.FlagSet, cfg *config.Config) {
	config.ApplyEnv(fs, cfg)
	slog.SetDefault(config.NewLogger(cfg))
}

func decodeHex(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, errors.New("hex string has odd length")
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		v, err := strconv.ParseUint(s[2*i:2*i+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid hex byte %q: %w", s[2*i:2*i+2], err)
		}
		out[i] = byte(v)
	}
	return out, nil
}

// runBasicDemo wires a channel/basic.Channel pair over transport.Direct, the
// in-memory loopback Connection, and round-trips one payload.
func runBasicDemo(env *command.Env, fs *flag.FlagSet, cfg *config.Config) error {
	setupFromFlags(fs, cfg)
	a, b := transport.Direct()
	ca := basic.New(a, nil)
	cb := basic.New(b, nil)
	defer ca.Close()
	defer cb.Close()

	payload := []byte("tensorlane basic demo payload")
	recvBuf := make([]byte, len(payload))

	done := make(chan tensorlane.Error, 2)
	ca.Send(payload, func(err tensorlane.Error, descriptor []byte) {
		if !err.IsSuccess() {
			done <- err
			return
		}
		cb.Recv(descriptor, recvBuf, func(err tensorlane.Error) { done <- err })
	}, func(err tensorlane.Error) { done <- err })

	if err := waitAll(done, 2); err != nil {
		return err
	}
	fmt.Printf("basic: sent %d bytes, received %q\n", len(payload), recvBuf)
	return nil
}

// runCMADemo wires a channel/cma.Channel pair atop a cma.Context sharing a
// single process identity, exercising the same-process RequestCopy path the
// cma package's tests use in place of a real cross-process CMA transfer.
func runCMADemo(env *command.Env, fs *flag.FlagSet, cfg *config.Config) error {
	setupFromFlags(fs, cfg)
	id, err := platform.CurrentIdentity()
	if err != nil {
		return fmt.Errorf("current identity: %w", err)
	}
	ctx := cma.NewContext(id, cfg.CMAMailboxCapacity)
	defer ctx.Close()
	defer ctx.Join()

	a, b := transport.Direct()
	ca := cma.New(a, ctx)
	cb := cma.New(b, ctx)
	defer ca.Close()
	defer cb.Close()

	payload := []byte("tensorlane cma demo payload")
	recvBuf := make([]byte, len(payload))

	done := make(chan tensorlane.Error, 2)
	ca.Send(payload, func(err tensorlane.Error, descriptor []byte) {
		if !err.IsSuccess() {
			done <- err
			return
		}
		cb.Recv(descriptor, recvBuf, func(err tensorlane.Error) { done <- err })
	}, func(err tensorlane.Error) { done <- err })

	if err := waitAll(done, 2); err != nil {
		return err
	}
	fmt.Printf("cma: sent %d bytes, received %q\n", len(payload), recvBuf)
	return nil
}

// runSHMDemo wires a channel/basic.Channel pair over a transport/shm ring
// buffer pair, exercising the reactor's epoll-registered fds alongside the
// ring's futex-driven fast path.
func runSHMDemo(env *command.Env, fs *flag.FlagSet, cfg *config.Config) error {
	setupFromFlags(fs, cfg)
	reactor, err := shm.NewReactor(cfg.ReactorPollTimeoutMS)
	if err != nil {
		return fmt.Errorf("new reactor: %w", err)
	}
	defer reactor.Join()
	defer reactor.Close()

	loop := uv.New()
	defer loop.Shutdown()

	a, b, err := shm.NewPair(reactor, cfg.ChannelBufferHint)
	if err != nil {
		return fmt.Errorf("new shm pair: %w", err)
	}
	ca := basic.New(a, nil)
	cb := basic.New(b, nil)
	defer ca.Close()
	defer cb.Close()

	payload := []byte("tensorlane shm demo payload")
	recvBuf := make([]byte, len(payload))

	done := make(chan tensorlane.Error, 2)
	loop.RegisterHandle()
	loop.Defer(func() {
		defer loop.ReleaseHandle()
		ca.Send(payload, func(err tensorlane.Error, descriptor []byte) {
			if !err.IsSuccess() {
				done <- err
				return
			}
			cb.Recv(descriptor, recvBuf, func(err tensorlane.Error) { done <- err })
		}, func(err tensorlane.Error) { done <- err })
	})

	if err := waitAll(done, 2); err != nil {
		return err
	}
	fmt.Printf("shm: sent %d bytes, received %q\n", len(payload), recvBuf)
	return nil
}

func waitAll(done chan tensorlane.Error, n int) error {
	for i := 0; i < n; i++ {
		select {
		case err := <-done:
			if !err.IsSuccess() {
				return err
			}
		case <-time.After(5 * time.Second):
			return errors.New("timed out waiting for demo completion")
		}
	}
	return nil
}
