package message

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/mjl-/mimecodec/charclass"
	"github.com/mjl-/mimecodec/segment"
	"github.com/mjl-/mimecodec/token"
)

// Param is a parameter of a Content-Type or Content-Disposition field.
type Param struct {
	Name     string // Lower case.
	Value    string // Decoded, UTF-8.
	Charset  string // For RFC 2231 extended values, as found in the value.
	Language string
}

// paramParser parses a parameterized field body. Errors cause a panic with a
// *token.FormatError, recovered in ParseParams.
type paramParser struct {
	src    []byte
	cursor int
}

func (p *paramParser) xerrorf(offset int, format string, args ...any) {
	panic(token.Errorf(p.src, offset, nil, format, args...))
}

// next returns the next token, skipping comments.
func (p *paramParser) next() token.Token {
	for {
		t, err := token.Next(p.src, charclass.Token, false, &p.cursor)
		if err != nil {
			panic(err)
		}
		if t.Kind != token.RoundBracketedValue {
			return t
		}
	}
}

func (p *paramParser) peek() token.Token {
	o := p.cursor
	t := p.next()
	p.cursor = o
	return t
}

func (p *paramParser) isSep(t token.Token, c byte) bool {
	return t.Kind == token.Separator && p.src[t.Offset] == c
}

// section of a parameter value, a single parameter for values without
// continuations.
type section struct {
	offset   int
	number   int // -1 for a value without section number.
	extended bool
	raw      []byte // Without quotes and escapes.
}

// ParseParams parses a parameterized field body like that of Content-Type or
// Content-Disposition: a value followed by ";" separated "attribute=value"
// parameters. ../rfc/2045:325
//
// RFC 2231 value continuations and charset/language are decoded.
// ../rfc/2231:142 Quoted values that are RFC 2047 encoded-words, not valid but
// common in practice, are decoded too. Syntax errors are returned as
// *token.FormatError.
func ParseParams(body []byte) (value string, params []Param, rerr error) {
	p := &paramParser{src: body}
	defer func() {
		x := recover()
		if x == nil {
			return
		}
		fe, ok := x.(*token.FormatError)
		if !ok {
			panic(x)
		}
		rerr = fe
	}()

	var b strings.Builder
	for {
		t := p.peek()
		if !t.Valid() || p.isSep(t, ';') {
			break
		}
		p.next()
		if t.Kind != token.Value && !p.isSep(t, '/') {
			p.xerrorf(t.Offset, "unexpected %s in value", t.Kind)
		}
		b.Write(t.Bytes(body))
	}
	value = b.String()
	if value == "" {
		p.xerrorf(0, "missing value")
	}

	var names []string
	sections := map[string][]section{}
	for {
		t := p.next()
		if !t.Valid() {
			break
		} else if !p.isSep(t, ';') {
			p.xerrorf(t.Offset, "expected semicolon")
		}
		t = p.next()
		if !t.Valid() {
			// Trailing semicolon, seen in practice.
			break
		} else if t.Kind != token.Value {
			p.xerrorf(t.Offset, "expected parameter name")
		}
		name, s := p.xattribute(t)
		if eq := p.next(); !p.isSep(eq, '=') {
			p.xerrorf(eq.Offset, "expected equals sign after parameter name")
		}
		v := p.next()
		switch v.Kind {
		case token.Value:
			s.raw = v.Bytes(body)
		case token.QuotedValue:
			s.raw = token.Unescape(v.Inner(body))
		default:
			p.xerrorf(v.Offset, "expected parameter value")
		}
		l, ok := sections[name]
		if !ok {
			names = append(names, name)
		}
		for _, o := range l {
			if o.number == s.number || o.number < 0 || s.number < 0 {
				p.xerrorf(t.Offset, "duplicate parameter %q", name)
			}
		}
		sections[name] = append(l, s)
	}

	for _, name := range names {
		params = append(params, p.xvalue(name, sections[name]))
	}
	return value, params, nil
}

// xattribute parses a parameter name with optional section number and
// extended marker, e.g. "filename*1*". ../rfc/2231:185
func (p *paramParser) xattribute(t token.Token) (string, section) {
	name := string(t.Bytes(p.src))
	s := section{offset: t.Offset, number: -1}
	if strings.HasSuffix(name, "*") {
		s.extended = true
		name = name[:len(name)-1]
	}
	if base, num, ok := strings.Cut(name, "*"); ok {
		// No leading zeroes. ../rfc/2231:391
		n, err := strconv.ParseUint(num, 10, 16)
		if err != nil || len(num) > 1 && num[0] == '0' {
			p.xerrorf(t.Offset, "bad section number %q", num)
		}
		name = base
		s.number = int(n)
	}
	if name == "" || !charclass.AttrChar.All([]byte(name)) {
		p.xerrorf(t.Offset, "bad parameter name")
	}
	return strings.ToLower(name), s
}

// xvalue assembles the value of a parameter from its sections.
func (p *paramParser) xvalue(name string, l []section) Param {
	sort.Slice(l, func(i, j int) bool {
		return l[i].number < l[j].number
	})
	param := Param{Name: name}
	if len(l) == 1 && l[0].number < 0 && !l[0].extended {
		param.Value = string(l[0].raw)
		if token.LooksEncoded(l[0].raw) {
			if s, err := token.DecodeWord(param.Value); err == nil {
				param.Value = s
			}
		}
		return param
	}

	var buf []byte
	for i, s := range l {
		// Sections after a gap are ignored. ../rfc/2231:180
		if s.number >= 0 && s.number != i {
			break
		}
		raw := s.raw
		if i == 0 && s.extended {
			// ../rfc/2231:230
			t := strings.SplitN(string(raw), "'", 3)
			if len(t) != 3 {
				p.xerrorf(s.offset, "missing charset and language in extended value")
			}
			param.Charset, param.Language = t[0], t[1]
			raw = []byte(t[2])
		}
		if s.extended {
			buf = p.xpercentDecode(buf, raw, s.offset)
		} else {
			buf = append(buf, raw...)
		}
	}
	if param.Charset != "" {
		enc, err := token.Charset(param.Charset)
		if err != nil {
			panic(token.Errorf(p.src, l[0].offset, err, "parameter %q", name))
		} else if enc != nil {
			buf, err = enc.NewDecoder().Bytes(buf)
			if err != nil {
				panic(token.Errorf(p.src, l[0].offset, err, "decoding parameter %q", name))
			}
		}
	}
	param.Value = string(buf)
	return param
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func (p *paramParser) xpercentDecode(dst, raw []byte, offset int) []byte {
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '%' {
			dst = append(dst, c)
			continue
		}
		if i+2 >= len(raw) {
			p.xerrorf(offset, "truncated percent-encoding")
		}
		hi, ok1 := unhex(raw[i+1])
		lo, ok2 := unhex(raw[i+2])
		if !ok1 || !ok2 {
			p.xerrorf(offset, "bad percent-encoding %q", raw[i:i+3])
		}
		dst = append(dst, hi<<4|lo)
		i += 2
	}
	return dst
}

// FormatParams returns the chunks for a parameterized field body, for folding
// with a HeaderWriter. Parameter values that do not fit on a line or are not
// ASCII are written as RFC 2231 segments, in the charset of opts.
func FormatParams(value string, params []Param, opts segment.Options) ([]string, error) {
	l := []string{value}
	for _, p := range params {
		segs, err := segment.Param(p.Name, p.Value, opts)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		l = append(l, segs...)
	}
	// Separators are attached to the preceding element.
	for i := range l[:len(l)-1] {
		l[i] += ";"
	}
	return l, nil
}

// paramsValue is the decoded form of a parameterized field, as in Field.Value.
func paramsValue(value string, params []Param) string {
	var b strings.Builder
	b.WriteString(value)
	for _, p := range params {
		b.WriteString("; ")
		b.WriteString(p.Name)
		b.WriteString("=")
		if p.Value != "" && charclass.Token.All([]byte(p.Value)) {
			b.WriteString(p.Value)
		} else {
			b.WriteString(token.Quote(p.Value))
		}
	}
	return b.String()
}
