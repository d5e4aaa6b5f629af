package mlog

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func capture(t *testing.T, levels map[string]slog.Level, fn func()) string {
	t.Helper()
	var b bytes.Buffer
	Output = &b
	SetConfig(levels)
	defer func() {
		Output = nil
		SetConfig(map[string]slog.Level{"": LevelError})
	}()
	fn()
	return b.String()
}

func TestLevels(t *testing.T) {
	log := New("message", nil)
	out := capture(t, map[string]slog.Level{"": LevelInfo, "message": LevelDebug}, func() {
		log.Debug("skipped", slog.Int("offset", 3))
		log.WithPkg("sub").Debug("nested")
		New("token", nil).Debug("hidden")
		New("token", nil).Infox("malformed", errors.New("boom"))
	})
	if !strings.Contains(out, "debug: skipped (offset: 3; pkg: message)\n") {
		t.Fatalf("missing debug line in %q", out)
	}
	// Level of parent package applies.
	if !strings.Contains(out, "debug: nested (pkg: message/sub)\n") {
		t.Fatalf("missing debug line for subpackage in %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("line for disabled level in %q", out)
	}
	if !strings.Contains(out, "info: malformed (err: boom; pkg: token)\n") {
		t.Fatalf("missing info line in %q", out)
	}
}

func TestTrace(t *testing.T) {
	log := New("message", nil)
	data := []byte("Subject: test\r\n")

	out := capture(t, map[string]slog.Level{"": LevelTrace}, func() {
		log.Trace(LevelTracedata, "header field: ", data)
	})
	if !strings.Contains(out, "header field: ...") || strings.Contains(out, "Subject") {
		t.Fatalf("data not hidden at trace level: %q", out)
	}

	out = capture(t, map[string]slog.Level{"": LevelTracedata}, func() {
		log.Trace(LevelTracedata, "header field: ", data)
	})
	if !strings.Contains(out, "Subject: test") {
		t.Fatalf("data not shown at tracedata level: %q", out)
	}

	out = capture(t, map[string]slog.Level{"": LevelDebug}, func() {
		log.Trace(LevelTracedata, "header field: ", data)
	})
	if out != "" {
		t.Fatalf("trace logged at debug level: %q", out)
	}
}
