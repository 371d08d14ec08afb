// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package tensorlane

import "log/slog"

// A LogSink is an ErrorSink that can also identify itself for logging:
// Component names the package implementing it (e.g. "channel/basic"), and
// LogID is the handle the owning Registry assigned it, so a log line can be
// correlated back to the specific channel that produced it. Both Channel
// types implement LogSink; applyFirstError logs through it when present and
// silently skips logging for any ErrorSink that does not.
type LogSink interface {
	ErrorSink
	Component() string
	LogID() uint64
}

// logStickyError emits the structured log line for an error that just
// became sticky on s, the first time applyFirstError observes it. Severity
// follows err.Kind: a short transfer or a full mailbox is routine backpressure
// and logs at Warn, a protocol violation or a wrapped system error logs at
// Error, and anything else (channel closed, connection closed, EOF) logs at
// Info.
func logStickyError(s ErrorSink, err Error) {
	sink, ok := s.(LogSink)
	if !ok {
		return
	}
	attrs := []any{
		slog.String("component", sink.Component()),
		slog.Uint64("id", sink.LogID()),
		slog.String("kind", err.Kind.String()),
	}
	if err.Detail != "" {
		attrs = append(attrs, slog.String("detail", err.Detail))
	}
	if err.Subsystem != "" {
		attrs = append(attrs, slog.String("subsystem", err.Subsystem))
	}
	if err.Errno != nil {
		attrs = append(attrs, slog.Any("errno", err.Errno))
	}
	if err.Kind == KindShortRead || err.Kind == KindShortWrite {
		attrs = append(attrs, slog.Int("expected", err.Expected), slog.Int("got", err.Got))
	}

	switch err.Kind {
	case KindShortRead, KindShortWrite, KindMailboxFull:
		slog.Warn("channel error became sticky", attrs...)
	case KindProtocolError, KindSystemError:
		slog.Error("channel error became sticky", attrs...)
	default:
		slog.Info("channel error became sticky", attrs...)
	}
}
