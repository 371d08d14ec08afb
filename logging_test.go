// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package tensorlane

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

type fakeSink struct {
	loop Loop
	err  Error
}

func (f *fakeSink) Loop() *Loop               { return &f.loop }
func (f *fakeSink) Err() Error                { return f.err }
func (f *fakeSink) TrySetError(err Error) bool { f.err = err; return true }
func (f *fakeSink) HandleError()               {}
func (f *fakeSink) Component() string          { return "fakepkg" }
func (f *fakeSink) LogID() uint64              { return 7 }

func TestLogStickyErrorIncludesComponentAndID(t *testing.T) {
	var buf bytes.Buffer
	old := slog.Default()
	defer slog.SetDefault(old)
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))

	logStickyError(&fakeSink{}, ProtocolError("bad frame"))

	got := buf.String()
	for _, want := range []string{"component=fakepkg", "id=7", "kind=", "detail=\"bad frame\""} {
		if !strings.Contains(got, want) {
			t.Errorf("log output %q does not contain %q", got, want)
		}
	}
}

func TestLogStickyErrorSkipsNonLogSink(t *testing.T) {
	var buf bytes.Buffer
	old := slog.Default()
	defer slog.SetDefault(old)
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))

	logStickyError(&noLogSink{}, ProtocolError("bad frame"))

	if buf.Len() != 0 {
		t.Errorf("log output: got %q, want empty (subject does not implement LogSink)", buf.String())
	}
}

type noLogSink struct {
	loop Loop
	err  Error
}

func (s *noLogSink) Loop() *Loop                { return &s.loop }
func (s *noLogSink) Err() Error                 { return s.err }
func (s *noLogSink) TrySetError(err Error) bool { s.err = err; return true }
func (s *noLogSink) HandleError()               {}
