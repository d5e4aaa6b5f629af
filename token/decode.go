package token

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"

	"github.com/mjl-/mimecodec/charclass"
)

// LooksEncoded returns whether buf has the shape of an RFC 2047 encoded-word:
// longer than 8 bytes, starting with "=?" and ending with "?=".
func LooksEncoded(buf []byte) bool {
	n := len(buf)
	return n > 8 && buf[0] == '=' && buf[1] == '?' && buf[n-2] == '?' && buf[n-1] == '='
}

// Charset returns the encoding for a charset name, looked up in the MIME and
// IANA indexes. For us-ascii and utf-8 a nil encoding is returned, no
// transformation is needed. Unknown charsets result in ErrCharset.
func Charset(name string) (encoding.Encoding, error) {
	switch strings.ToLower(name) {
	case "", "us-ascii", "utf-8", "utf8":
		return nil, nil
	}
	enc, _ := ianaindex.MIME.Encoding(name)
	if enc == nil {
		enc, _ = ianaindex.IANA.Encoding(name)
	}
	// todo: ianaindex doesn't know all encodings, e.g. gb2312. should we transform them, with which code?
	if enc == nil {
		return nil, fmt.Errorf("%w %q", ErrCharset, name)
	}
	return enc, nil
}

var wordDecoder = mime.WordDecoder{
	CharsetReader: func(charset string, r io.Reader) (io.Reader, error) {
		enc, err := Charset(charset)
		if err != nil {
			return nil, err
		} else if enc == nil {
			return r, nil
		}
		return enc.NewDecoder().Reader(r), nil
	},
}

// DecodeWord decodes a single RFC 2047 encoded-word, e.g.
// "=?UTF-8?Q?Hello=2C_World!?=". An RFC 2231 language suffix on the charset,
// e.g. "=?utf-8*en?q?...?=", is ignored.
//
// Errors are of type *FormatError, wrapping ErrCharset or ErrEncoding for an
// unknown charset or encoding letter.
func DecodeWord(word string) (string, error) {
	// ../rfc/2047:244
	src := []byte(word)
	if !LooksEncoded(src) {
		return "", Errorf(src, 0, nil, "not an encoded-word")
	}
	t := strings.SplitN(word[2:len(word)-2], "?", 3)
	if len(t) != 3 {
		return "", Errorf(src, 0, nil, "encoded-word without charset, encoding and text")
	}
	charset, enc, text := t[0], t[1], t[2]
	// ../rfc/2231:556
	if i := strings.IndexByte(charset, '*'); i >= 0 {
		charset = charset[:i]
	}
	if charset == "" {
		return "", Errorf(src, 2, ErrCharset, "empty charset")
	}
	switch enc {
	case "Q", "q", "B", "b":
	default:
		return "", Errorf(src, 3+len(t[0]), ErrEncoding, "encoding %q", enc)
	}
	if _, err := Charset(charset); err != nil {
		return "", Errorf(src, 2, err, "charset")
	}
	s, err := wordDecoder.Decode("=?" + charset + "?" + enc + "?" + text + "?=")
	if err != nil {
		return "", Errorf(src, 0, err, "decoding encoded-word")
	}
	return s, nil
}

// Unescape returns buf with the backslash escapes of a quoted-string or
// domain literal removed. If buf has no backslashes, it is returned as is.
func Unescape(buf []byte) []byte {
	if bytes.IndexByte(buf, '\\') < 0 {
		return buf
	}
	r := make([]byte, 0, len(buf))
	for i := 0; i < len(buf); i++ {
		if buf[i] == '\\' && i+1 < len(buf) {
			i++
		}
		r = append(r, buf[i])
	}
	return r
}

// Quote returns s as quoted-string, escaping double quotes and backslashes.
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	b.WriteByte('"')
	return b.String()
}

// Decode returns the decoded form of token t in src, and whether it was an
// encoded-word. Quoted-strings and domain literals are unescaped, without
// their delimiters. Values and quoted-strings that look like an encoded-word
// are decoded. Other tokens are returned raw.
func Decode(src []byte, t Token) (string, bool, error) {
	var buf []byte
	switch t.Kind {
	case QuotedValue, SquareBracketedValue:
		buf = Unescape(t.Inner(src))
		if t.Kind == SquareBracketedValue {
			return string(buf), false, nil
		}
	case Value:
		buf = t.Bytes(src)
	default:
		return string(t.Bytes(src)), false, nil
	}
	if !LooksEncoded(buf) {
		return string(buf), false, nil
	}
	s, err := DecodeWord(string(buf))
	if err != nil {
		var fe *FormatError
		if errors.As(err, &fe) {
			fe.Offset += t.Offset
		}
		return "", false, err
	}
	return s, true, nil
}

// DecodePhrase decodes a phrase, e.g. the display name of an address.
//
// Words are joined with exactly one space, except between two adjacent
// encoded-words, where whitespace is not significant. ../rfc/2047:506
// Comments are dropped. Separators, like the "." in "John Q. Public", are
// attached to the preceding word.
func DecodePhrase(src []byte) (string, error) {
	var b strings.Builder
	var prevEncoded, first = false, true
	cursor := 0
	for {
		t, err := Next(src, charclass.Atom, true, &cursor)
		if err != nil {
			return "", err
		} else if !t.Valid() {
			break
		}
		switch t.Kind {
		case RoundBracketedValue:
			continue
		case Separator:
			b.Write(t.Bytes(src))
			prevEncoded = false
			first = false
			continue
		}
		s, encoded, err := Decode(src, t)
		if err != nil {
			return "", err
		}
		if !first && !(encoded && prevEncoded) {
			b.WriteByte(' ')
		}
		b.WriteString(s)
		prevEncoded = encoded
		first = false
	}
	return b.String(), nil
}

// Unfold removes the CRLF line endings from a folded field body. The
// whitespace starting each continuation line is kept. ../rfc/5322:421
func Unfold(src []byte) []byte {
	if bytes.IndexByte(src, '\r') < 0 {
		return src
	}
	return bytes.ReplaceAll(src, []byte("\r\n"), nil)
}

// DecodeText decodes unstructured text, e.g. a Subject field body.
//
// The text is unfolded, encoded-words separated by whitespace are decoded, and
// whitespace between adjacent encoded-words is dropped. Other whitespace is kept
// as is. Encoded-words with invalid syntax or content are kept literally, but an
// unknown charset or encoding letter results in a *FormatError.
func DecodeText(src []byte) (string, error) {
	// ../rfc/2047:357
	s := Unfold(src)
	var b strings.Builder
	var prevEncoded bool
	i := 0
	for i < len(s) {
		j := i
		for j < len(s) && charclass.Space.Has(s[j]) {
			j++
		}
		ws := s[i:j]
		i = j
		for j < len(s) && !charclass.Space.Has(s[j]) {
			j++
		}
		word := s[i:j]
		i = j
		if LooksEncoded(word) {
			d, err := DecodeWord(string(word))
			if err == nil {
				if !prevEncoded {
					b.Write(ws)
				}
				b.WriteString(d)
				prevEncoded = true
				continue
			}
			if errors.Is(err, ErrCharset) || errors.Is(err, ErrEncoding) {
				var fe *FormatError
				if errors.As(err, &fe) {
					fe.Offset += i - len(word)
				}
				return "", err
			}
		}
		b.Write(ws)
		b.Write(word)
		prevEncoded = false
	}
	return b.String(), nil
}

// Normalize returns a canonical form of a structured field body: encoded-words
// in values are decoded, other tokens are kept raw, and whitespace (including
// folding) between tokens is replaced by a single space, or removed between
// adjacent encoded-words. Tokenization errors are returned, which makes
// Normalize useful for validating structured bodies.
func Normalize(src []byte, class charclass.Class, dotJoin bool) (string, error) {
	var b strings.Builder
	var prevEncoded bool
	prevEnd := -1
	cursor := 0
	for {
		t, err := Next(src, class, dotJoin, &cursor)
		if err != nil {
			return "", err
		} else if !t.Valid() {
			break
		}
		var s string
		var encoded bool
		if t.Kind == Value {
			s, encoded, err = Decode(src, t)
			if err != nil {
				return "", err
			}
		} else {
			s = string(t.Bytes(src))
		}
		if prevEnd >= 0 && t.Offset > prevEnd && !(encoded && prevEncoded) {
			b.WriteByte(' ')
		}
		b.WriteString(s)
		prevEnd = t.End()
		prevEncoded = encoded
	}
	return b.String(), nil
}

// Unquote returns the content of quoted-string s without the surrounding
// double quotes and with escapes removed. A *FormatError is returned if s is
// not a single quoted-string.
func Unquote(s string) (string, error) {
	src := []byte(s)
	if len(src) == 0 || src[0] != '"' {
		return "", Errorf(src, 0, nil, "missing opening double quote")
	}
	end, err := skipEscaped(src, 0, '"')
	if err != nil {
		return "", err
	} else if end != len(src) {
		return "", Errorf(src, end, nil, "data after quoted-string")
	}
	return string(Unescape(src[1 : end-1])), nil
}
