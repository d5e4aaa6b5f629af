// Command mimecodec reads and writes MIME header fields and multipart bodies.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/mjl-/mimecodec/config"
	"github.com/mjl-/mimecodec/message"
	"github.com/mjl-/mimecodec/mlog"
)

func envString(k, def string) string {
	s := os.Getenv(k)
	if s == "" {
		return def
	}
	return s
}

var commands = []struct {
	cmd string
	fn  func(c *cmd)
}{
	{"header parse", cmdHeaderParse},
	{"header encode", cmdHeaderEncode},
	{"header addresses", cmdHeaderAddresses},
	{"header references", cmdHeaderReferences},
	{"params parse", cmdParamsParse},
	{"params encode", cmdParamsEncode},
	{"tokens", cmdTokens},
	{"messageid", cmdMessageID},
	{"multipart split", cmdMultipartSplit},
	{"multipart join", cmdMultipartJoin},
	{"corpus add", cmdCorpusAdd},
	{"corpus check", cmdCorpusCheck},
	{"corpus list", cmdCorpusList},
	{"corpus print", cmdCorpusPrint},
	{"config test", cmdConfigTest},
	{"config describe", cmdConfigDescribe},
	{"metrics", cmdMetrics},
	{"help", cmdHelp},
	{"version", cmdVersion},

	// Not listed.
	{"helpall", cmdHelpall},
}

var cmds []cmd

func init() {
	for _, xc := range commands {
		c := cmd{words: strings.Split(xc.cmd, " "), fn: xc.fn}
		cmds = append(cmds, c)
	}
}

type cmd struct {
	words []string
	fn    func(c *cmd)

	// Set before calling command.
	flag     *flag.FlagSet
	flagArgs []string
	_gather  bool // Set when using Parse to gather usage for a command.

	// Set by invoked command or Parse.
	unlisted bool   // If set, command is not listed until at least some words are matched from command.
	params   string // Arguments to command. Multiple lines possible.
	help     string // Additional explanation. First line is synopsis, the rest is only printed for an explicit help/usage for that command.
	args     []string

	log mlog.Log
}

func (c *cmd) Parse() []string {
	// To gather params and usage information, we just run the command but cause this
	// panic after the command has registered its flags and set its params and help
	// information. This is then caught and that info printed.
	if c._gather {
		panic("gather")
	}

	c.flag.Usage = c.Usage
	c.flag.Parse(c.flagArgs)
	c.args = c.flag.Args()
	return c.args
}

func (c *cmd) gather() {
	c.flag = flag.NewFlagSet("mimecodec "+strings.Join(c.words, " "), flag.ExitOnError)
	c._gather = true
	defer func() {
		x := recover()
		// panic generated by Parse.
		if x != "gather" {
			panic(x)
		}
	}()
	c.fn(c)
}

func (c *cmd) makeUsage() string {
	var r strings.Builder
	cs := "mimecodec " + strings.Join(c.words, " ")
	for i, line := range strings.Split(strings.TrimSpace(c.params), "\n") {
		s := ""
		if i == 0 {
			s = "usage:"
		}
		if line != "" {
			line = " " + line
		}
		fmt.Fprintf(&r, "%6s %s%s\n", s, cs, line)
	}
	c.flag.SetOutput(&r)
	c.flag.PrintDefaults()
	return r.String()
}

func (c *cmd) printUsage() {
	fmt.Fprint(os.Stderr, c.makeUsage())
	if c.help != "" {
		fmt.Fprint(os.Stderr, "\n"+c.help+"\n")
	}
}

func (c *cmd) Usage() {
	c.printUsage()
	os.Exit(2)
}

func cmdHelp(c *cmd) {
	c.params = "[command ...]"
	c.help = `Prints help about matching commands.

If multiple commands match, they are listed along with the first line of their help text.
If a single command matches, its usage and full help text is printed.
`
	args := c.Parse()
	if len(args) == 0 {
		c.Usage()
	}

	prefix := func(l, pre []string) bool {
		if len(pre) > len(l) {
			return false
		}
		return slices.Equal(pre, l[:len(pre)])
	}

	var partial []cmd
	for _, c := range cmds {
		if slices.Equal(c.words, args) {
			c.gather()
			fmt.Print(c.makeUsage())
			if c.help != "" {
				fmt.Print("\n" + c.help + "\n")
			}
			return
		} else if prefix(c.words, args) {
			partial = append(partial, c)
		}
	}
	if len(partial) == 0 {
		fmt.Fprintf(os.Stderr, "%s: unknown command\n", strings.Join(args, " "))
		os.Exit(2)
	}
	for _, c := range partial {
		c.gather()
		line := "mimecodec " + strings.Join(c.words, " ")
		fmt.Printf("%s\n", line)
		if c.help != "" {
			fmt.Printf("\t%s\n", strings.Split(c.help, "\n")[0])
		}
	}
}

func cmdHelpall(c *cmd) {
	c.unlisted = true
	c.help = `Print all detailed usage and help information for all listed commands.

Used to generate documentation.
`
	args := c.Parse()
	if len(args) != 0 {
		c.Usage()
	}

	n := 0
	for _, c := range cmds {
		c.gather()
		if c.unlisted {
			continue
		}
		if n > 0 {
			fmt.Fprintf(os.Stderr, "\n")
		}
		n++

		fmt.Fprintf(os.Stderr, "# mimecodec %s\n\n", strings.Join(c.words, " "))
		if c.help != "" {
			fmt.Fprintln(os.Stderr, c.help+"\n")
		}
		s := c.makeUsage()
		s = "\t" + strings.ReplaceAll(s, "\n", "\n\t")
		fmt.Fprintln(os.Stderr, s)
	}
}

func usage(l []cmd, unlisted bool) {
	var lines []string
	if !unlisted {
		lines = append(lines, "mimecodec [-config mimecodec.conf] [-loglevel level] [-pedantic] ...")
	}
	for _, c := range l {
		c.gather()
		if c.unlisted && !unlisted {
			continue
		}
		for _, line := range strings.Split(c.params, "\n") {
			x := append([]string{"mimecodec"}, c.words...)
			if line != "" {
				x = append(x, line)
			}
			lines = append(lines, strings.Join(x, " "))
		}
	}
	for i, line := range lines {
		pre := "       "
		if i == 0 {
			pre = "usage: "
		}
		fmt.Fprintln(os.Stderr, pre+line)
	}
	os.Exit(2)
}

var (
	configPath    string
	configFlagSet bool // Whether -config or $MIMECODECCONF was given, then the file must exist.
	loglevel      string
	pedantic      bool

	// Loaded at startup, defaults if there is no config file.
	conf = config.Default()
)

// mustLoadConfig reads the config file, if any, and applies its log levels and
// settings. A loglevel from the command-line overrides the config file. Commands
// call it after parsing their flags, "config test" does not, it reports errors
// itself.
func mustLoadConfig() {
	c, errs := config.ParseFile(configPath)
	if len(errs) == 1 && !configFlagSet {
		if _, err := os.Stat(configPath); err != nil && errors.Is(err, fs.ErrNotExist) {
			c, errs = nil, nil
		}
	}
	if len(errs) > 1 {
		log.Printf("multiple errors in config file %s:", configPath)
		for _, err := range errs {
			log.Printf("%s", err)
		}
		os.Exit(1)
	} else if len(errs) == 1 {
		log.Fatalf("config file %s: %s", configPath, errs[0])
	}
	if c != nil {
		conf = *c
	}

	if loglevel != "" {
		level, ok := mlog.Levels[loglevel]
		if !ok {
			log.Fatalf("unknown loglevel %q, must be one of %v", loglevel, config.LevelNames())
		}
		conf.Log[""] = level
	}
	mlog.SetConfig(conf.Log)
	message.Pedantic = conf.Pedantic || pedantic
}

func main() {
	log.SetFlags(0)

	configPath = envString("MIMECODECCONF", "")
	configFlagSet = configPath != ""
	if configPath == "" {
		configPath = "mimecodec.conf"
	}

	flag.Func("config", "configuration file, defaults to $MIMECODECCONF with a fallback to mimecodec.conf, which is optional", func(s string) error {
		configPath = s
		configFlagSet = true
		return nil
	})
	flag.StringVar(&loglevel, "loglevel", "", "if non-empty, overrides the log level from the config file: "+strings.Join(config.LevelNames(), ", "))
	flag.BoolVar(&pedantic, "pedantic", false, "syntax violations result in errors instead of being accepted")

	var cpuprofile, memprofile, tracefile string
	flag.StringVar(&cpuprofile, "cpuprof", "", "store cpu profile to file")
	flag.StringVar(&memprofile, "memprof", "", "store mem profile to file")
	flag.StringVar(&tracefile, "trace", "", "store execution trace to file")

	flag.Usage = func() { usage(cmds, false) }
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage(cmds, false)
	}

	if tracefile != "" {
		defer traceExecution(tracefile)()
	}
	defer profile(cpuprofile, memprofile)()

	ll := loglevel
	if ll == "" {
		ll = "info"
	}
	if level, ok := mlog.Levels[ll]; ok {
		conf.Log[""] = level
		mlog.SetConfig(conf.Log)
		// note: SetConfig is called again when commands load the config.
	} else {
		log.Fatalf("unknown loglevel %q, must be one of %v", loglevel, config.LevelNames())
	}
	message.Pedantic = pedantic

	var partial []cmd
next:
	for _, c := range cmds {
		for i, w := range c.words {
			if i >= len(args) || w != args[i] {
				if i > 0 {
					partial = append(partial, c)
				}
				continue next
			}
		}
		c.flag = flag.NewFlagSet("mimecodec "+strings.Join(c.words, " "), flag.ExitOnError)
		c.flagArgs = args[len(c.words):]
		c.log = mlog.New(strings.Join(c.words, ""), nil)
		start := time.Now()
		c.fn(&c)
		commandObserve(strings.Join(c.words, " "), start)
		if conf.MetricsOutput != "" {
			err := writeMetrics(conf.MetricsOutput)
			c.log.Check(err, "writing metrics", slog.String("path", conf.MetricsOutput))
		}
		return
	}
	if len(partial) > 0 {
		usage(partial, true)
	}
	usage(cmds, false)
}

func xcheckf(err error, format string, args ...any) {
	if err == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	log.Fatalf("%s: %s", msg, err)
}

var ctxbg = context.Background()
