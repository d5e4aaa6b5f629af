package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/mjl-/sconf"

	"github.com/mjl-/mimecodec/mlog"
)

func tcheck(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %s", msg, err)
	}
}

func tcompare(t *testing.T, got, exp any) {
	t.Helper()
	if !reflect.DeepEqual(got, exp) {
		t.Fatalf("got %v, expected %v", got, exp)
	}
}

func TestDefault(t *testing.T) {
	c := Default()
	tcompare(t, c.LogLevel, "info")
	tcompare(t, c.Log, map[string]slog.Level{"": mlog.LevelInfo})
	tcompare(t, c.Charset, "utf-8")
	tcompare(t, c.MaxLineLength, 78)
	tcompare(t, c.CorpusPath, DefaultCorpusPath)
}

func TestDescribe(t *testing.T) {
	// A described config can be parsed again.
	c := Default()
	c.PackageLogLevels = map[string]string{"message": "debug"}
	c.Charset = "iso-8859-1"
	c.Pedantic = true
	var b bytes.Buffer
	err := sconf.Describe(&b, &c)
	tcheck(t, err, "describe")

	nc, errs := Parse(&b)
	if len(errs) > 0 {
		t.Fatalf("parse described config: %v", errs)
	}
	tcompare(t, nc.Log, map[string]slog.Level{"": mlog.LevelInfo, "message": mlog.LevelDebug})
	tcompare(t, nc.Charset, "iso-8859-1")
	tcompare(t, nc.Pedantic, true)
}

func TestParseErrors(t *testing.T) {
	check := func(conf string, nerrs int) {
		t.Helper()
		_, errs := Parse(strings.NewReader(conf))
		if len(errs) != nerrs {
			t.Fatalf("got %d errors %v, expected %d, for config %q", len(errs), errs, nerrs, conf)
		}
	}

	check("", 0)
	check("LogLevel: debug\n", 0)
	check("LogLevel: bogus\n", 1)
	check("PackageLogLevels:\n\tmessage: bogus\n", 1)
	check("Charset: bogus\n", 1)
	check("MaxLineLength: 10\n", 1)
	check("MaxLineLength: 999\n", 1)
	check("MaxWindow: 100\n", 1)
	check("LogLevel: bogus\nCharset: bogus\nMaxWindow: 100\n", 3)
	check("Unknown: x\n", 1)
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "mimecodec.conf")
	err := os.WriteFile(p, []byte("CorpusPath: data/corpus.db\nMetricsOutput: -\n"), 0660)
	tcheck(t, err, "write config")
	c, errs := ParseFile(p)
	if len(errs) > 0 {
		t.Fatalf("parse file: %v", errs)
	}
	tcompare(t, c.CorpusPath, filepath.Join(dir, "data/corpus.db"))
	tcompare(t, c.MetricsOutput, "-")

	_, errs = ParseFile(filepath.Join(dir, "missing.conf"))
	tcompare(t, len(errs), 1)
}

func TestLevelNames(t *testing.T) {
	tcompare(t, LevelNames(), []string{"debug", "error", "fatal", "info", "print", "trace", "traceauth", "tracedata"})
}
