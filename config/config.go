package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/mjl-/sconf"
	"golang.org/x/exp/maps"

	"github.com/mjl-/mimecodec/message"
	"github.com/mjl-/mimecodec/mlog"
	"github.com/mjl-/mimecodec/scan"
	"github.com/mjl-/mimecodec/token"
)

const (
	// MinLineLength is the smallest configurable line length, an encoded-word
	// with a long charset name must still fit.
	MinLineLength = 40

	DefaultCorpusPath = "corpus.db"
)

// Config is the parsed form of the configuration file.
type Config struct {
	LogLevel         string            `sconf:"optional" sconf-doc:"NOTE: This config file is in 'sconf' format. Indent with tabs. Comments must be on their own line, they don't end a line. Do not escape or quote strings. Details: https://pkg.go.dev/github.com/mjl-/sconf.\n\n\nDefault log level, one of: error, info, debug, trace. Default: info."`
	PackageLogLevels map[string]string `sconf:"optional" sconf-doc:"Overrides of log level per package (e.g. message, corpus)."`
	Charset          string            `sconf:"optional" sconf-doc:"Charset for encoded-words and RFC 2231 parameter values when encoding. Must be known in the IANA registry. Default: utf-8."`
	Language         string            `sconf:"optional" sconf-doc:"Language tag for RFC 2231 parameter values, e.g. en. Default: empty."`
	MaxLineLength    int               `sconf:"optional" sconf-doc:"Maximum line length when folding header fields, not including CRLF. Lines can be longer if a single element does not fit. Default: 78."`
	MaxWindow        int               `sconf:"optional" sconf-doc:"Maximum number of bytes buffered when scanning for the end of header fields and body parts. Must leave room for a header field of maximum size. Default: 1048576."`
	Pedantic         bool              `sconf:"optional" sconf-doc:"In pedantic mode, syntax seen in practice that is not allowed by the RFCs results in errors instead of being accepted."`
	CorpusPath       string            `sconf:"optional" sconf-doc:"Database file with the corpus of header samples, for regression checks. If relative, it is relative to the directory of the config file. Default: corpus.db."`
	MetricsOutput    string            `sconf:"optional" sconf-doc:"If set, file to write metrics to in Prometheus text format when a command finishes, e.g. for the textfile collector of the node exporter. Use - for stderr."`

	// Parsed log levels, from LogLevel and PackageLogLevels.
	Log map[string]slog.Level `sconf:"-" json:"-"`
}

// Default returns a config with all defaults filled in.
func Default() Config {
	c := Config{}
	if errs := c.prepare(""); len(errs) > 0 {
		panic(fmt.Sprintf("default config invalid: %v", errs))
	}
	return c
}

// ParseFile parses and validates the config file at p.
func ParseFile(p string) (*Config, []error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, []error{fmt.Errorf("open config file: %v", err)}
	}
	defer f.Close()
	return parse(f, p)
}

// Parse parses and validates a config from r.
func Parse(r io.Reader) (*Config, []error) {
	return parse(r, "")
}

func parse(r io.Reader, p string) (*Config, []error) {
	var c Config
	if err := sconf.Parse(r, &c); err != nil {
		return nil, []error{fmt.Errorf("parsing %s%v", p, err)}
	}
	if errs := c.prepare(p); len(errs) > 0 {
		return nil, errs
	}
	return &c, nil
}

// prepare fills in defaults and checks values. Relative paths are resolved
// against the directory of config file p, if set.
func (c *Config) prepare(p string) (errs []error) {
	addErrorf := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if logLevel, ok := mlog.Levels[c.LogLevel]; ok {
		c.Log = map[string]slog.Level{"": logLevel}
	} else {
		addErrorf("invalid log level %q, must be one of: %v", c.LogLevel, LevelNames())
	}
	for pkg, s := range c.PackageLogLevels {
		if logLevel, ok := mlog.Levels[s]; ok {
			if c.Log != nil {
				c.Log[pkg] = logLevel
			}
		} else {
			addErrorf("invalid package log level %q for package %q", s, pkg)
		}
	}

	if c.Charset == "" {
		c.Charset = "utf-8"
	}
	if _, err := token.Charset(c.Charset); err != nil {
		addErrorf("charset: %v", err)
	}

	if c.MaxLineLength == 0 {
		c.MaxLineLength = message.MaxLineLength
	} else if c.MaxLineLength < MinLineLength || c.MaxLineLength > message.RequiredLineLength {
		addErrorf("max line length %d must be between %d and %d", c.MaxLineLength, MinLineLength, message.RequiredLineLength)
	}

	if c.MaxWindow == 0 {
		c.MaxWindow = scan.DefaultMaxWindow
	} else if least := message.RequiredLineLength + 1 + message.MaxFieldSize + 2; c.MaxWindow < least {
		addErrorf("max window %d must be at least %d", c.MaxWindow, least)
	}

	if c.CorpusPath == "" {
		c.CorpusPath = DefaultCorpusPath
	}
	if p != "" {
		c.CorpusPath = resolve(p, c.CorpusPath)
		if c.MetricsOutput != "" && c.MetricsOutput != "-" {
			c.MetricsOutput = resolve(p, c.MetricsOutput)
		}
	}
	return errs
}

func resolve(configFile, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(configFile), p)
}

// LevelNames returns the known log level names, sorted.
func LevelNames() []string {
	l := maps.Keys(mlog.Levels)
	sort.Strings(l)
	return l
}
