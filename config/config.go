// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

// Package config defines the process-wide tunables shared by
// cmd/tensorlanectl and any embedder that wants the teacher's flag-binding
// convention instead of wiring its own flags: a flat struct, bound to a
// flag.FlagSet with github.com/creachadair/flax tags, with an environment
// variable fallback that only applies to flags the command line left at
// their default. NewLogger turns LogLevel and LogFormat into the
// log/slog.Logger every sticky-error transition is logged through.
package config

import (
	"flag"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/creachadair/flax"
	"github.com/creachadair/mds/value"
	"github.com/tensorlane/tensorlane/channel/cma"
)

// EnvPrefix is prepended to a flag's name (uppercased, dashes turned to
// underscores) to form its environment variable fallback, e.g. the
// cma-mailbox-capacity flag falls back to TENSORLANE_CMA_MAILBOX_CAPACITY.
const EnvPrefix = "TENSORLANE_"

// Config is the flat set of tunables read by the SHM reactor, the CMA
// context, and the process's logger.
type Config struct {
	CMAMailboxCapacity   int    `flag:"cma-mailbox-capacity,4096,Capacity of the CMA context's bounded copy-request mailbox"`
	ReactorPollTimeoutMS int    `flag:"reactor-poll-timeout-ms,0,Ceiling in milliseconds for the SHM reactor's epoll_wait timeout (0 blocks indefinitely)"`
	LogLevel             string `flag:"log-level,info,Minimum level emitted by the process logger (debug, info, warn, error)"`
	LogFormat            string `flag:"log-format,text,Log output format: text or json"`
	ChannelBufferHint    int    `flag:"channel-buffer-hint,65536,Default per-operation buffer size hint used by channel callers that preallocate"`
}

// Default returns a Config populated with the library's built-in
// defaults, independent of the flax tag defaults above, for embedders that
// never touch a flag.FlagSet at all.
func Default() *Config {
	return &Config{
		CMAMailboxCapacity:   cma.DefaultMailboxCapacity,
		ReactorPollTimeoutMS: 0,
		LogLevel:             "info",
		LogFormat:            "text",
		ChannelBufferHint:    65536,
	}
}

// Bind registers c's fields as flags on fs, in the teacher's
// flax-tagged-struct convention. Call ApplyEnv after fs.Parse to let
// TENSORLANE_* environment variables fill in anything the command line
// left at its flag default.
func Bind(fs *flag.FlagSet, c *Config) { flax.MustBind(fs, c) }

// ApplyEnv overrides any field in c whose flag was not explicitly set on
// fs with the value of its TENSORLANE_* environment variable, if present.
// Call it after fs.Parse.
func ApplyEnv(fs *flag.FlagSet, c *Config) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	setIfEnv(explicit, "cma-mailbox-capacity", func(v string) {
		if n, err := strconv.Atoi(v); err == nil {
			c.CMAMailboxCapacity = n
		}
	})
	setIfEnv(explicit, "reactor-poll-timeout-ms", func(v string) {
		if n, err := strconv.Atoi(v); err == nil {
			c.ReactorPollTimeoutMS = n
		}
	})
	setIfEnv(explicit, "log-level", func(v string) { c.LogLevel = v })
	setIfEnv(explicit, "log-format", func(v string) { c.LogFormat = v })
	setIfEnv(explicit, "channel-buffer-hint", func(v string) {
		if n, err := strconv.Atoi(v); err == nil {
			c.ChannelBufferHint = n
		}
	})
}

// NewLogger builds the process logger described by c.LogLevel and
// c.LogFormat: a text handler by default, or a JSON handler when LogFormat
// is "json". An unrecognized LogLevel falls back to Info rather than
// failing the process over a typo in a flag or environment variable.
func NewLogger(c *Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.LogLevel)}
	handler := value.Cond[slog.Handler](c.LogFormat == "json",
		slog.NewJSONHandler(os.Stderr, opts),
		slog.NewTextHandler(os.Stderr, opts))
	return slog.New(handler)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setIfEnv(explicit map[string]bool, flagName string, apply func(string)) {
	if explicit[flagName] {
		return
	}
	key := EnvPrefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
	if v, ok := os.LookupEnv(key); ok {
		apply(v)
	}
}
