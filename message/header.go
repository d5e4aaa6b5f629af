// Package message loads and saves message header sections and multipart
// bodies, decoding and encoding field bodies with the token, wordenc and
// segment packages.
package message

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/mjl-/mimecodec/charclass"
	"github.com/mjl-/mimecodec/metrics"
	"github.com/mjl-/mimecodec/mlog"
	"github.com/mjl-/mimecodec/scan"
	"github.com/mjl-/mimecodec/segment"
	"github.com/mjl-/mimecodec/token"
	"github.com/mjl-/mimecodec/wordenc"
)

const (
	// MaxFieldSize is the maximum size of a field body, everything after the
	// colon including folding, when loading a header.
	MaxFieldSize = 16 * 1024

	MaxLineLength      = 78  // ../rfc/5322:378
	RequiredLineLength = 998 // ../rfc/5322:365
	MaxWordLength      = 75  // ../rfc/2047:219
)

var (
	ErrSizeLimit = errors.New("size limit exceeded")
	ErrHeader    = errors.New("malformed header")
)

// Field is a header field. Raw is the body as found in the message or as it
// will be written, folded, without the terminating CRLF. Value is the decoded
// body.
type Field struct {
	Name  string
	Raw   []byte
	Value string
}

// Header is a header section, fields in order.
type Header struct {
	Fields []Field
}

type fieldKind int

const (
	unstructured fieldKind = iota
	addresses
	parameterized
	structured
	mimeStructured
)

// kind returns how the body of a field is decoded. Fields we do not know are
// treated as unstructured.
func kind(name string) fieldKind {
	switch strings.ToLower(name) {
	case "subject", "comments", "content-description":
		return unstructured
	case "from", "sender", "reply-to", "to", "cc", "bcc",
		"resent-from", "resent-sender", "resent-to", "resent-cc", "resent-bcc",
		"keywords":
		return addresses
	case "content-type", "content-disposition":
		return parameterized
	case "content-transfer-encoding", "content-id", "mime-version":
		return mimeStructured
	case "date", "resent-date", "message-id", "resent-message-id", "in-reply-to", "references", "return-path", "received":
		return structured
	}
	return unstructured
}

// decodeField returns the decoded value of a field body.
func decodeField(name string, body []byte) (string, error) {
	switch kind(name) {
	case addresses:
		return decodeAddresses(body)
	case parameterized:
		value, params, err := ParseParams(body)
		if err != nil {
			return "", err
		}
		return paramsValue(value, params), nil
	case structured:
		return token.Normalize(body, charclass.Atom, true)
	case mimeStructured:
		return token.Normalize(body, charclass.Token, false)
	}
	s, err := token.DecodeText(body)
	if err != nil {
		return "", err
	}
	return strings.Trim(s, " \t"), nil
}

// phraseToken returns whether t can be part of a phrase, e.g. a display name.
func phraseToken(src []byte, t token.Token) bool {
	switch t.Kind {
	case token.Value, token.QuotedValue, token.RoundBracketedValue:
		return true
	case token.Separator:
		// obs-phrase. ../rfc/5322:1728
		return src[t.Offset] == '.'
	}
	return false
}

// decodeAddresses decodes an address list. Display names and group names are
// decoded as phrase and quoted when needed, everything else is normalized.
func decodeAddresses(src []byte) (string, error) {
	tokens, err := token.New(src, charclass.Atom, true).All()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	prevEnd := -1
	add := func(s string, offset, end int) {
		if prevEnd >= 0 && offset > prevEnd {
			b.WriteByte(' ')
		}
		b.WriteString(s)
		prevEnd = end
	}
	for i := 0; i < len(tokens); {
		j := i
		for j < len(tokens) && phraseToken(src, tokens[j]) {
			j++
		}
		if j > i && j < len(tokens) && (tokens[j].Kind == token.AngleBracketedValue || tokens[j].Kind == token.Separator && src[tokens[j].Offset] == ':') {
			s, err := token.DecodePhrase(src[tokens[i].Offset:tokens[j-1].End()])
			if err != nil {
				return "", err
			}
			if (charclass.Atom | charclass.Space).IndexNot([]byte(s)) >= 0 {
				s = token.Quote(s)
			}
			add(s, tokens[i].Offset, tokens[j-1].End())
			i = j
			continue
		}
		if j == i {
			j++
		}
		buf := src[tokens[i].Offset:tokens[j-1].End()]
		s, err := token.Normalize(buf, charclass.Atom, true)
		if err != nil {
			var fe *token.FormatError
			if errors.As(err, &fe) {
				fe.Offset += tokens[i].Offset
			}
			return "", err
		}
		add(s, tokens[i].Offset, tokens[j-1].End())
		i = j
	}
	return b.String(), nil
}

// Get returns the value of the first field with name, case-insensitive.
func (h Header) Get(name string) string {
	for _, f := range h.Fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

// Values returns the values of all fields with name.
func (h Header) Values(name string) []string {
	var l []string
	for _, f := range h.Fields {
		if strings.EqualFold(f.Name, name) {
			l = append(l, f.Value)
		}
	}
	return l
}

// Del removes all fields with name.
func (h *Header) Del(name string) {
	l := h.Fields[:0]
	for _, f := range h.Fields {
		if !strings.EqualFold(f.Name, name) {
			l = append(l, f)
		}
	}
	h.Fields = l
}

func checkName(name string) error {
	if name == "" || !charclass.Visible.All([]byte(name)) || strings.Contains(name, ":") {
		return fmt.Errorf("%w: invalid field name %q", ErrHeader, name)
	}
	return nil
}

func (h *Header) add(name string, w *HeaderWriter) error {
	raw := w.Body()
	value, err := decodeField(name, raw)
	if err != nil {
		return fmt.Errorf("field %q: %w", name, err)
	}
	h.Fields = append(h.Fields, Field{name, raw, value})
	return nil
}

// Add adds a field with a structured body, folded between tokens where needed.
func (h *Header) Add(name, body string) error {
	if err := checkName(name); err != nil {
		return err
	}
	src := []byte(body)
	tokens, err := token.New(src, charclass.Atom, true).All()
	if err != nil {
		return fmt.Errorf("field %q: %w", name, err)
	}
	w := NewHeaderWriter(name, 0)
	prevEnd := -1
	for _, t := range tokens {
		// Whitespace between tokens is a place to fold, as is the start.
		if prevEnd < 0 || t.Offset > prevEnd {
			w.Add(" ", string(t.Bytes(src)))
		} else {
			w.Add("", string(t.Bytes(src)))
		}
		prevEnd = t.End()
	}
	return h.add(name, w)
}

// Set replaces all fields with name with a single field, see Add.
func (h *Header) Set(name, body string) error {
	h.Del(name)
	return h.Add(name, body)
}

// AddText adds an unstructured field like Subject, encoding words as needed.
func (h *Header) AddText(name, text string, opts wordenc.Options) error {
	if err := checkName(name); err != nil {
		return err
	}
	opts.Semantics = wordenc.Unstructured
	e, err := wordenc.New([]byte(text), opts)
	if err != nil {
		return fmt.Errorf("field %q: %w", name, err)
	}
	w := NewHeaderWriter(name, opts.MaxLineLength)
	w.AddChunks(e.All())
	return h.add(name, w)
}

// Address is a mailbox with optional display name.
type Address struct {
	Name    string // Display name, UTF-8.
	Address string // addr-spec, written as is.
}

// AddAddresses adds an address list field like From or To, encoding display
// names as needed.
func (h *Header) AddAddresses(name string, addrs []Address, opts wordenc.Options) error {
	if err := checkName(name); err != nil {
		return err
	}
	opts.Semantics = wordenc.Phrase
	w := NewHeaderWriter(name, opts.MaxLineLength)
	for i, a := range addrs {
		addr := "<" + a.Address + ">"
		if i < len(addrs)-1 {
			addr += ","
		}
		if a.Name == "" {
			w.Add(" ", addr)
			continue
		}
		e, err := wordenc.New([]byte(a.Name), opts)
		if err != nil {
			return fmt.Errorf("field %q: display name: %w", name, err)
		}
		w.AddChunks(e.All())
		w.Add(" ", addr)
	}
	return h.add(name, w)
}

// AddParams adds a parameterized field like Content-Type. Parameters are
// written as RFC 2231 segments when needed.
func (h *Header) AddParams(name, value string, params []Param, opts segment.Options) error {
	if err := checkName(name); err != nil {
		return err
	}
	l, err := FormatParams(value, params, opts)
	if err != nil {
		return fmt.Errorf("field %q: %w", name, err)
	}
	w := NewHeaderWriter(name, opts.MaxLineLength)
	w.Add(" ", l...)
	return h.add(name, w)
}

// AddRaw adds a field with a body as it will be written, it must already be
// folded and must not end with CRLF. The body is decoded to check it.
func (h *Header) AddRaw(name string, raw []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	value, err := decodeField(name, raw)
	if err != nil {
		return fmt.Errorf("field %q: %w", name, err)
	}
	h.Fields = append(h.Fields, Field{name, raw, value})
	return nil
}

// WriteTo writes the header section, including the empty line that ends it.
func (h Header) WriteTo(w io.Writer) (int64, error) {
	var b bytes.Buffer
	for _, f := range h.Fields {
		b.WriteString(f.Name)
		b.WriteString(":")
		b.Write(f.Raw)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	return b.WriteTo(w)
}

// LoadHeader reads a header section from src, consuming it and the empty line
// that ends it. Further empty lines are left in src, they belong to the body.
//
// Fields are read one at a time. A field with an invalid name or a body that
// cannot be decoded is logged and skipped. A field body larger than
// MaxFieldSize results in ErrSizeLimit.
func LoadHeader(ctx context.Context, log mlog.Log, src scan.Source) (Header, error) {
	var h Header
	fs := scan.NewFieldScanner()
	for {
		fs.Reset()
		n, err := scan.Scan(ctx, src, fs, RequiredLineLength+1+MaxFieldSize)
		if errors.Is(err, scan.ErrLimit) {
			return h, fmt.Errorf("%w: header field larger than %d bytes", ErrSizeLimit, MaxFieldSize)
		} else if err != nil {
			return h, err
		}
		tl := fs.TerminatorLength
		if n == 0 && fs.EndOfHeader {
			src.Skip(min(tl, 2))
			return h, nil
		}

		log.Trace(mlog.LevelTracedata, "header field: ", src.Window()[:n])
		f, err := parseField(src.Window()[:n])
		if errors.Is(err, ErrSizeLimit) {
			return h, err
		} else if err != nil {
			log.Debugx("skipping malformed header field", err)
			metrics.HeaderFieldInc("malformed")
		} else {
			metrics.HeaderFieldInc("ok")
			h.Fields = append(h.Fields, f)
		}

		if fs.EndOfHeader {
			src.Skip(n + min(tl, 4))
			log.Debug("header loaded", slog.Int("fields", len(h.Fields)))
			return h, nil
		}
		src.Skip(n + tl)
	}
}

// parseField parses a field from buf, which is not retained.
func parseField(buf []byte) (Field, error) {
	i := bytes.IndexByte(buf, ':')
	if i < 0 {
		return Field{}, fmt.Errorf("%w: missing colon in field", ErrHeader)
	}
	// WSP before the colon is allowed in the obsolete syntax. ../rfc/5322:1938
	name := string(bytes.TrimRight(buf[:i], " \t"))
	if err := checkName(name); err != nil {
		return Field{}, err
	}
	body := buf[i+1:]
	if len(body) > MaxFieldSize {
		metrics.HeaderFieldInc("toolarge")
		return Field{}, fmt.Errorf("%w: field %q body of %d bytes larger than %d", ErrSizeLimit, name, len(body), MaxFieldSize)
	}
	raw := append([]byte(nil), body...)
	value, err := decodeField(name, raw)
	if err != nil {
		return Field{}, fmt.Errorf("field %q: %w", name, err)
	}
	return Field{name, raw, value}, nil
}
