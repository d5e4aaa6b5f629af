package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/mjl-/sconf"

	"github.com/mjl-/mimecodec/charclass"
	"github.com/mjl-/mimecodec/config"
	"github.com/mjl-/mimecodec/corpus"
	"github.com/mjl-/mimecodec/mcvar"
	"github.com/mjl-/mimecodec/message"
	"github.com/mjl-/mimecodec/scan"
	"github.com/mjl-/mimecodec/segment"
	"github.com/mjl-/mimecodec/token"
	"github.com/mjl-/mimecodec/wordenc"
)

func wordOptions(semantics wordenc.Semantics) wordenc.Options {
	return wordenc.Options{
		Semantics:     semantics,
		Charset:       conf.Charset,
		MaxLineLength: conf.MaxLineLength,
	}
}

func segmentOptions(extended bool) segment.Options {
	return segment.Options{
		MaxLineLength: conf.MaxLineLength,
		Charset:       conf.Charset,
		Language:      conf.Language,
		Extended:      extended,
	}
}

// xinput returns a source for the file named in args, or stdin. Bare LF line
// endings are turned into CRLF while reading.
func xinput(args []string) scan.Source {
	var f io.ReadCloser = os.Stdin
	if len(args) == 1 {
		var err error
		f, err = os.Open(args[0])
		xcheckf(err, "open input")
	}
	pr, pw := io.Pipe()
	go func() {
		defer f.Close()
		_, err := io.Copy(message.NewWriter(pw), f)
		pw.CloseWithError(err)
	}()
	return scan.NewReader(pr, conf.MaxWindow)
}

// copyRemaining writes all data left in src to w.
func copyRemaining(w io.Writer, src scan.Source) error {
	for {
		if n := len(src.Window()); n > 0 {
			if err := src.CopyTo(w, n); err != nil {
				return err
			}
		}
		if err := src.Fill(ctxbg); err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
	}
}

func xcompose(w io.Writer, fn func(xc *message.Composer)) {
	err := func() (rerr error) {
		defer message.Recover(&rerr)
		xc := message.NewComposer(w, 0)
		fn(xc)
		xc.Flush()
		return nil
	}()
	xcheckf(err, "writing output")
}

func cmdHeaderParse(c *cmd) {
	c.params = "[-json] [file]"
	c.help = `Parse the header section of a message and print the decoded fields.

The message is read from file, or from stdin. Encoded-words are decoded, and
folded lines unfolded. Address fields and parameterized fields like
Content-Type are normalized. Malformed fields are skipped, with -loglevel
debug they are logged. With -json, the raw field bodies are printed as well.
`
	var fjson bool
	c.flag.BoolVar(&fjson, "json", false, "print fields as JSON")
	args := c.Parse()
	if len(args) > 1 {
		c.Usage()
	}
	mustLoadConfig()

	h, err := message.LoadHeader(ctxbg, c.log, xinput(args))
	xcheckf(err, "loading header")

	if !fjson {
		for _, f := range h.Fields {
			fmt.Printf("%s: %s\n", f.Name, f.Value)
		}
		return
	}

	type field struct {
		Name  string
		Value string
		Raw   string
	}
	fields := []field{}
	for _, f := range h.Fields {
		fields = append(fields, field{f.Name, f.Value, string(f.Raw)})
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "\t")
	err = enc.Encode(fields)
	xcheckf(err, "write json")
}

func cmdHeaderEncode(c *cmd) {
	c.params = "[-phrase] name text"
	c.help = `Encode text as header field, with encoded-words where needed.

The field is folded at MaxLineLength from the config file. Text that is not
ASCII is written as encoded-words in the configured charset. With -phrase, the
text is encoded as a phrase, e.g. for a display name in an address, with
quoted-strings for special characters.
`
	var phrase bool
	c.flag.BoolVar(&phrase, "phrase", false, "encode as phrase instead of unstructured text")
	args := c.Parse()
	if len(args) != 2 {
		c.Usage()
	}
	mustLoadConfig()

	semantics := wordenc.Unstructured
	if phrase {
		semantics = wordenc.Phrase
	}
	var h message.Header
	err := h.AddText(args[0], args[1], wordOptions(semantics))
	xcheckf(err, "encoding field")
	xcompose(os.Stdout, func(xc *message.Composer) {
		xc.Fields(h)
	})
}

// parseAddress parses `Name <addr>` or a bare address.
func parseAddress(s string) message.Address {
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, ">") {
		return message.Address{Address: s}
	}
	i := strings.LastIndexByte(s, '<')
	if i < 0 {
		log.Fatalf("bad address %q, missing <", s)
	}
	return message.Address{Name: strings.TrimSpace(s[:i]), Address: s[i+1 : len(s)-1]}
}

func cmdHeaderAddresses(c *cmd) {
	c.params = `name address ...`
	c.help = `Encode an address list field like From or To.

Each address is either a bare address, or a display name followed by an
address in angle brackets, e.g. "Jörg Müller <jm@example.org>". Display names
are encoded as phrase.
`
	args := c.Parse()
	if len(args) < 2 {
		c.Usage()
	}
	mustLoadConfig()

	var addrs []message.Address
	for _, s := range args[1:] {
		addrs = append(addrs, parseAddress(s))
	}
	var h message.Header
	err := h.AddAddresses(args[0], addrs, wordOptions(wordenc.Phrase))
	xcheckf(err, "encoding field")
	xcompose(os.Stdout, func(xc *message.Composer) {
		xc.Fields(h)
	})
}

func cmdHeaderReferences(c *cmd) {
	c.params = "[file]"
	c.help = `Print the message-ids referenced by the References and In-Reply-To fields.

The message is read from file, or from stdin. Message-ids are printed in
canonical form, one per line, without angle brackets.
`
	args := c.Parse()
	if len(args) > 1 {
		c.Usage()
	}
	mustLoadConfig()

	h, err := message.LoadHeader(ctxbg, c.log, xinput(args))
	xcheckf(err, "loading header")
	for _, id := range h.ReferencedIDs() {
		fmt.Println(id)
	}
}

func cmdParamsParse(c *cmd) {
	c.params = "body"
	c.help = `Parse the body of a parameterized field, like Content-Type or Content-Disposition.

RFC 2231 continuations and charsets are decoded. The value is printed first,
followed by a line per parameter.

Example:

	mimecodec params parse "text/plain; title*0*=us-ascii'en'This%20is; title*1=' even more'"
`
	args := c.Parse()
	if len(args) != 1 {
		c.Usage()
	}
	mustLoadConfig()

	value, params, err := message.ParseParams([]byte(args[0]))
	xcheckf(err, "parsing parameters")
	fmt.Println(value)
	for _, p := range params {
		var extra string
		if p.Charset != "" || p.Language != "" {
			extra = fmt.Sprintf(" (charset %q, language %q)", p.Charset, p.Language)
		}
		fmt.Printf("\t%s=%q%s\n", p.Name, p.Value, extra)
	}
}

func cmdParamsEncode(c *cmd) {
	c.params = "[-field name] [-extended] value [name=value ...]"
	c.help = `Encode a parameterized field, like Content-Type or Content-Disposition.

Parameter values that are too long for a line, or that are not ASCII, are
split into RFC 2231 segments, with the smallest encoded size.
`
	field := "Content-Type"
	var extended bool
	c.flag.StringVar(&field, "field", field, "header field name")
	c.flag.BoolVar(&extended, "extended", false, "use RFC 2231 encoding with charset for all parameters")
	args := c.Parse()
	if len(args) < 1 {
		c.Usage()
	}
	mustLoadConfig()

	var params []message.Param
	for _, s := range args[1:] {
		k, v, ok := strings.Cut(s, "=")
		if !ok {
			log.Fatalf("bad parameter %q, must be name=value", s)
		}
		params = append(params, message.Param{Name: k, Value: v})
	}
	var h message.Header
	err := h.AddParams(field, args[0], params, segmentOptions(extended))
	xcheckf(err, "encoding field")
	xcompose(os.Stdout, func(xc *message.Composer) {
		xc.Fields(h)
	})
}

func cmdTokens(c *cmd) {
	c.params = "[-class atom|token|attr] [-dot] text"
	c.help = `Print the tokens in a structured field body.

Each token is printed with its kind, offset and length, its raw bytes, and its
decoded form for values, quoted-strings and encoded-words.
`
	class := "atom"
	var dot bool
	c.flag.StringVar(&class, "class", class, "characters of values: atom (RFC 5322), token (RFC 2045) or attr (RFC 2231 attribute)")
	c.flag.BoolVar(&dot, "dot", false, "join values with single dots, as for dot-atom")
	args := c.Parse()
	if len(args) != 1 {
		c.Usage()
	}

	classes := map[string]charclass.Class{
		"atom":  charclass.Atom,
		"token": charclass.Token,
		"attr":  charclass.AttrChar,
	}
	cl, ok := classes[class]
	if !ok {
		c.Usage()
	}

	src := []byte(args[0])
	l, err := token.New(src, cl, dot).All()
	for _, t := range l {
		s, encoded, derr := token.Decode(src, t)
		var extra string
		if derr != nil {
			extra = fmt.Sprintf(" (decode: %v)", derr)
		} else if encoded || t.Kind == token.QuotedValue {
			extra = fmt.Sprintf(" %q", s)
		}
		fmt.Printf("%-6s %3d %3d %q%s\n", t.Kind, t.Offset, t.Length, t.Bytes(src), extra)
	}
	xcheckf(err, "tokenizing")
}

func cmdMessageID(c *cmd) {
	c.params = "message-id ..."
	c.help = `Print the canonical form of message-ids.

A message-id that is not of the form local@domain is printed as is, marked as
raw. With -pedantic, trailing text after the message-id is an error.
`
	args := c.Parse()
	if len(args) == 0 {
		c.Usage()
	}
	mustLoadConfig()

	for _, s := range args {
		id, raw, err := message.MessageIDCanonical(s)
		if err != nil {
			fmt.Printf("%s: error: %v\n", s, err)
		} else if raw {
			fmt.Printf("%s (raw)\n", id)
		} else {
			fmt.Println(id)
		}
	}
}

// boundary returns the boundary parameter of the Content-Type field in h.
func boundary(h message.Header) (string, error) {
	for _, f := range h.Fields {
		if !strings.EqualFold(f.Name, "Content-Type") {
			continue
		}
		value, params, err := message.ParseParams(f.Raw)
		if err != nil {
			return "", fmt.Errorf("parsing content-type: %w", err)
		}
		if !strings.HasPrefix(strings.ToLower(value), "multipart/") {
			return "", fmt.Errorf("content-type %q is not multipart", value)
		}
		for _, p := range params {
			if p.Name == "boundary" {
				return p.Value, nil
			}
		}
		return "", errors.New("content-type without boundary parameter")
	}
	return "", errors.New("no content-type field")
}

func cmdMultipartSplit(c *cmd) {
	c.params = "[-boundary boundary] dir [file]"
	c.help = `Split a multipart message into its parts.

The message is read from file, or from stdin. Without -boundary, the header
section is read first, and the boundary taken from its Content-Type field. With
-boundary, the input starts with the multipart body.

Each part is written to dir as part-N.eml, with its header. Parts of nested
multiparts are not split.
`
	var fboundary string
	c.flag.StringVar(&fboundary, "boundary", "", "boundary, if input is only the multipart body")
	args := c.Parse()
	if len(args) != 1 && len(args) != 2 {
		c.Usage()
	}
	mustLoadConfig()

	dir := args[0]
	src := xinput(args[1:])
	if fboundary == "" {
		h, err := message.LoadHeader(ctxbg, c.log, src)
		xcheckf(err, "loading message header")
		fboundary, err = boundary(h)
		xcheckf(err, "finding boundary")
	}

	mr, err := message.NewMultipartReader(ctxbg, c.log, src, fboundary)
	xcheckf(err, "multipart reader")
	err = os.MkdirAll(dir, 0770)
	xcheckf(err, "creating output directory")
	var n int
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		xcheckf(err, "reading part %d", n)
		n++
		path := filepath.Join(dir, fmt.Sprintf("part-%d.eml", n))
		f, err := os.Create(path)
		xcheckf(err, "creating part file")
		xcompose(f, func(xc *message.Composer) {
			xc.Header(p.Header)
			_, err := io.Copy(xc, p)
			xc.Checkf(err, "copying part")
		})
		err = f.Close()
		xcheckf(err, "closing part file")
		fmt.Printf("%s: %d fields\n", path, len(p.Header.Fields))
	}
	fmt.Printf("%d parts, preamble %d bytes, epilogue %d bytes\n", n, len(mr.Preamble), len(mr.Epilogue))
}

func cmdMultipartJoin(c *cmd) {
	c.params = "[-subtype mixed] [-boundary boundary] file ..."
	c.help = `Write a multipart message with files as parts.

Each file is a part with its header section, e.g. as written by "multipart
split". A file without header fields must start with an empty line. The
message with MIME-Version and Content-Type fields is written to stdout.
`
	subtype := "mixed"
	var fboundary string
	c.flag.StringVar(&subtype, "subtype", subtype, "multipart subtype, e.g. mixed or alternative")
	c.flag.StringVar(&fboundary, "boundary", "", "boundary, a random boundary is generated if empty")
	args := c.Parse()
	if len(args) == 0 {
		c.Usage()
	}
	mustLoadConfig()

	xcompose(os.Stdout, func(xc *message.Composer) {
		mw := message.NewMultipartWriter(xc)
		if fboundary != "" {
			err := mw.SetBoundary(fboundary)
			xc.Checkf(err, "setting boundary")
		}

		var h message.Header
		err := h.Add("MIME-Version", "1.0")
		xc.Checkf(err, "adding mime-version")
		err = h.AddParams("Content-Type", "multipart/"+subtype, []message.Param{{Name: "boundary", Value: mw.Boundary()}}, segmentOptions(false))
		xc.Checkf(err, "adding content-type")
		xc.Header(h)

		for _, p := range args {
			src := xinput([]string{p})
			ph, err := message.LoadHeader(ctxbg, c.log, src)
			xc.Checkf(err, "loading header of %s", p)
			w, err := mw.CreatePart(ph)
			xc.Checkf(err, "creating part")
			err = copyRemaining(w, src)
			xc.Checkf(err, "copying %s", p)
		}
		err = mw.Close()
		xc.Checkf(err, "closing multipart")
	})
}

func xopenCorpus(c *cmd) *corpus.Corpus {
	cp, err := corpus.Open(ctxbg, c.log, conf.CorpusPath)
	xcheckf(err, "open corpus")
	return cp
}

func cmdCorpusAdd(c *cmd) {
	c.params = "file ..."
	c.help = `Add the header sections of messages to the corpus.

The fields are decoded and stored with the raw header section. Use "corpus
check" after changing the decoder, to find samples that now decode
differently. Header sections already in the corpus are skipped.
`
	args := c.Parse()
	if len(args) == 0 {
		c.Usage()
	}
	mustLoadConfig()

	cp := xopenCorpus(c)
	defer func() {
		err := cp.Close()
		c.log.Check(err, "closing corpus")
	}()
	for _, p := range args {
		buf, err := os.ReadFile(p)
		xcheckf(err, "reading %s", p)
		var b bytes.Buffer
		_, err = message.NewWriter(&b).Write(buf)
		xcheckf(err, "converting line endings")
		s, err := cp.Add(ctxbg, c.log, filepath.Base(p), b.Bytes())
		if errors.Is(err, corpus.ErrExists) {
			fmt.Printf("%s: already present\n", p)
			continue
		}
		xcheckf(err, "adding %s", p)
		fmt.Printf("%s: added as %d, %d fields\n", p, s.ID, len(s.Fields))
	}
}

func cmdCorpusCheck(c *cmd) {
	c.help = `Decode all samples in the corpus again, and print differences.

Exits with status 1 if a sample decodes differently than when it was added.
`
	if len(c.Parse()) != 0 {
		c.Usage()
	}
	mustLoadConfig()

	cp := xopenCorpus(c)
	l, err := cp.Check(ctxbg, c.log)
	xcheckf(err, "checking corpus")
	err = cp.Close()
	c.log.Check(err, "closing corpus")
	for _, m := range l {
		fmt.Printf("sample %d (%s):\n", m.Sample.ID, m.Sample.Name)
		if m.Err != nil {
			fmt.Printf("\terror: %v\n", m.Err)
			continue
		}
		for i := range max(len(m.Fields), len(m.Sample.Fields)) {
			var was, now corpus.Field
			if i < len(m.Sample.Fields) {
				was = m.Sample.Fields[i]
			}
			if i < len(m.Fields) {
				now = m.Fields[i]
			}
			if was != now {
				fmt.Printf("\t- %s: %s\n\t+ %s: %s\n", was.Name, was.Value, now.Name, now.Value)
			}
		}
	}
	if len(l) > 0 {
		os.Exit(1)
	}
	fmt.Println("corpus OK")
}

func cmdCorpusList(c *cmd) {
	c.help = `List the samples in the corpus.`
	if len(c.Parse()) != 0 {
		c.Usage()
	}
	mustLoadConfig()

	cp := xopenCorpus(c)
	l, err := cp.List(ctxbg)
	xcheckf(err, "listing corpus")
	err = cp.Close()
	c.log.Check(err, "closing corpus")
	for _, s := range l {
		fmt.Printf("%d %s %s %d fields, %d bytes, %d compressed\n", s.ID, s.Created.Format("2006-01-02T15:04:05"), s.Name, len(s.Fields), s.Size, len(s.Data))
	}
}

func cmdCorpusPrint(c *cmd) {
	c.params = "id"
	c.help = `Print the raw header section of a sample in the corpus.`
	args := c.Parse()
	if len(args) != 1 {
		c.Usage()
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	xcheckf(err, "parsing id")
	mustLoadConfig()

	cp := xopenCorpus(c)
	defer func() {
		err := cp.Close()
		c.log.Check(err, "closing corpus")
	}()
	s, err := cp.Get(ctxbg, id)
	xcheckf(err, "get sample")
	raw, err := cp.Raw(s)
	xcheckf(err, "decompress sample")
	_, err = os.Stdout.Write(raw)
	xcheckf(err, "write")
}

func cmdConfigTest(c *cmd) {
	c.help = `Parses and validates the configuration file.

If valid, the command exits with status 0. If not valid, all errors encountered
are printed.
`
	args := c.Parse()
	if len(args) != 0 {
		c.Usage()
	}

	_, errs := config.ParseFile(configPath)
	if len(errs) > 1 {
		log.Printf("multiple errors:")
		for _, err := range errs {
			log.Printf("%s", err)
		}
		os.Exit(1)
	} else if len(errs) == 1 {
		log.Fatalf("%s", errs[0])
	}
	fmt.Println("config OK")
}

func cmdConfigDescribe(c *cmd) {
	c.params = ">mimecodec.conf"
	c.help = `Prints an annotated empty configuration for use as mimecodec.conf.

All fields are optional.
`
	if len(c.Parse()) != 0 {
		c.Usage()
	}

	var cc config.Config
	err := sconf.Describe(os.Stdout, &cc)
	xcheckf(err, "describing config")
}

func cmdVersion(c *cmd) {
	c.help = "Prints this mimecodec version."
	if len(c.Parse()) != 0 {
		c.Usage()
	}
	fmt.Println(mcvar.Version)
	fmt.Printf("%s %s/%s\n", mcvar.GoVersion, runtime.GOOS, runtime.GOARCH)
}
