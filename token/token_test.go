package token

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/mjl-/mimecodec/charclass"
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

func tfail(t *testing.T, err, expErr error) {
	t.Helper()
	if (err == nil) != (expErr == nil) || expErr != nil && !errors.Is(err, expErr) {
		t.Fatalf("got err %v, expected %v", err, expErr)
	}
}

func TestNext(t *testing.T) {
	check := func(src string, class charclass.Class, dotJoin bool, exp []string) {
		t.Helper()
		var l []string
		tokens, err := New([]byte(src), class, dotJoin).All()
		tcheck(t, err, "tokenize")
		for _, tok := range tokens {
			l = append(l, tok.Kind.String()+":"+string(tok.Bytes([]byte(src))))
		}
		tcompare(t, l, exp)
	}

	check("", charclass.Atom, false, nil)
	check(" \t\r\n ", charclass.Atom, false, nil)
	check("a.b.c", charclass.Atom, true, []string{"value:a.b.c"})
	check("a.b.c", charclass.Atom, false, []string{"value:a", "separator:.", "value:b", "separator:.", "value:c"})
	check("a..b", charclass.Atom, true, []string{"value:a", "separator:.", "separator:.", "value:b"})
	check("a. b", charclass.Atom, true, []string{"value:a", "separator:.", "value:b"})
	check(`"a\"b" c`, charclass.Atom, false, []string{`quoted:"a\"b"`, "value:c"})
	check("(a (b) c) x", charclass.Atom, false, []string{"comment:(a (b) c)", "value:x"})
	check(`(a \) b) x`, charclass.Atom, false, []string{`comment:(a \) b)`, "value:x"})
	check(`<"a>b"@example.org>`, charclass.Atom, false, []string{`angle:<"a>b"@example.org>`})
	check(`[1.2.3.4] [a\]b]`, charclass.Atom, false, []string{"square:[1.2.3.4]", `square:[a\]b]`})
	check("text/plain; charset=utf-8", charclass.Token, false, []string{"value:text", "separator:/", "value:plain", "separator:;", "value:charset", "separator:=", "value:utf-8"})
	check("Joe Q. Public <joe@example.org>", charclass.Atom, true, []string{"value:Joe", "value:Q", "separator:.", "value:Public", "angle:<joe@example.org>"})
	check("café", charclass.Atom, false, []string{"value:café"})
}

func TestNextErrors(t *testing.T) {
	check := func(src string) {
		t.Helper()
		buf := []byte(src)
		cursor := 0
		// Consume leading tokens until the error.
		for {
			before := cursor
			tok, err := Next(buf, charclass.Atom, false, &cursor)
			if err != nil {
				tfail(t, err, ErrFormat)
				var fe *FormatError
				if !errors.As(err, &fe) {
					t.Fatalf("got %T, expected *FormatError", err)
				}
				if cursor != before {
					t.Fatalf("cursor advanced from %d to %d on error", before, cursor)
				}
				return
			} else if !tok.Valid() {
				t.Fatalf("no error for %q", src)
			}
		}
	}

	check(`"abc`)
	check(`"abc\"`)
	check("a (b (c)")
	check("x <abc")
	check(`<"a>b>`)
	check("[abc")
	check(strings.Repeat("(", MaxNesting+1) + strings.Repeat(")", MaxNesting+1))

	// At the maximum depth, comments are fine.
	src := []byte(strings.Repeat("(", MaxNesting) + strings.Repeat(")", MaxNesting))
	cursor := 0
	tok, err := Next(src, charclass.Atom, false, &cursor)
	tcheck(t, err, "max nesting")
	tcompare(t, tok, Token{RoundBracketedValue, 0, len(src)})
}

func TestTokenizerReset(t *testing.T) {
	src := []byte(`"Joe" (comment) <joe@example.org>, =?utf-8?q?a?=`)
	tz := New(src, charclass.Atom, true)
	l1, err := tz.All()
	tcheck(t, err, "tokenize")
	tcompare(t, tz.Offset(), len(src))
	tz.Reset()
	tcompare(t, tz.Offset(), 0)
	l2, err := tz.All()
	tcheck(t, err, "tokenize again")
	tcompare(t, l2, l1)
	tcompare(t, len(l1), 5)
}

func TestInner(t *testing.T) {
	src := []byte(`"a\"b" <x@y> c`)
	tokens, err := New(src, charclass.Atom, false).All()
	tcheck(t, err, "tokenize")
	tcompare(t, string(tokens[0].Inner(src)), `a\"b`)
	tcompare(t, string(Unescape(tokens[0].Inner(src))), `a"b`)
	tcompare(t, string(tokens[1].Inner(src)), "x@y")
	tcompare(t, string(tokens[2].Inner(src)), "c")
}

func TestDecodeWord(t *testing.T) {
	check := func(word, exp string, expErr error) {
		t.Helper()
		s, err := DecodeWord(word)
		tfail(t, err, expErr)
		if err == nil {
			tcompare(t, s, exp)
		}
	}

	check("=?UTF-8?Q?Hello=2C_World!?=", "Hello, World!", nil)
	check("=?utf-8?b?aMOpbGxv?=", "héllo", nil)
	check("=?iso-8859-1?q?caf=E9?=", "café", nil)
	check("=?utf-8*en?q?hi_there?=", "hi there", nil)
	check("=?windows-1252?q?=80?=", "€", nil)
	check("=?x-unknown?q?abc?=", "", ErrCharset)
	check("=?utf-8?x?abc?=", "", ErrEncoding)
	check("=?utf-8?q?abc", "", ErrFormat)
	check("=?utf-8?q?=ZZ?=", "", ErrFormat)
	check("=?utf-8abc?=", "", ErrFormat)
}

func TestDecode(t *testing.T) {
	src := []byte(`=?UTF-8?Q?Hello=2C_World!?= "=?utf-8?q?x?=" "a\\b" [a\]] plain`)
	tokens, err := New(src, charclass.Atom, false).All()
	tcheck(t, err, "tokenize")

	exp := []struct {
		s       string
		encoded bool
	}{
		{"Hello, World!", true},
		{"x", true},
		{`a\b`, false},
		{"a]", false},
		{"plain", false},
	}
	tcompare(t, len(tokens), len(exp))
	for i, tok := range tokens {
		s, encoded, err := Decode(src, tok)
		tcheck(t, err, "decode")
		tcompare(t, s, exp[i].s)
		tcompare(t, encoded, exp[i].encoded)
	}

	// Error offsets are relative to the start of the value.
	src = []byte("a =?bogus?q?x?=")
	tokens, err = New(src, charclass.Atom, false).All()
	tcheck(t, err, "tokenize")
	_, _, err = Decode(src, tokens[1])
	tfail(t, err, ErrCharset)
	var fe *FormatError
	if !errors.As(err, &fe) || fe.Offset != 4 {
		t.Fatalf("got %#v, expected format error at offset 4", err)
	}
}

func TestDecodePhrase(t *testing.T) {
	check := func(src, exp string, expErr error) {
		t.Helper()
		s, err := DecodePhrase([]byte(src))
		tfail(t, err, expErr)
		tcompare(t, s, exp)
	}

	check("", "", nil)
	check("Joe   Public", "Joe Public", nil)
	check("Joe\r\n Public", "Joe Public", nil)
	check("John Q. Public", "John Q. Public", nil)
	check(`"Joe \"x\"" (comment) Doe`, `Joe "x" Doe`, nil)
	check("=?utf-8?q?a?= =?utf-8?q?b?=", "ab", nil)
	check("=?utf-8?q?a?=\r\n =?utf-8?q?b?=", "ab", nil)
	check("=?utf-8?q?a_?= x =?utf-8?q?b?=", "a  x b", nil)
	check(`x "=?utf-8?q?caf=C3=A9?=" y`, "x café y", nil)
	check(`"unterminated`, "", ErrFormat)
	check("=?unknown?q?x?=", "", ErrCharset)
}

func TestDecodeText(t *testing.T) {
	check := func(src, exp string, expErr error) {
		t.Helper()
		s, err := DecodeText([]byte(src))
		tfail(t, err, expErr)
		tcompare(t, s, exp)
	}

	check(" foo\r\n bar", " foo bar", nil)
	check("foo  \t bar", "foo  \t bar", nil)
	check("=?UTF-8?Q?Hello=2C?= =?UTF-8?Q?_World!?=", "Hello, World!", nil)
	check("=?UTF-8?Q?a?=\r\n\t=?UTF-8?Q?b?= c", "ab c", nil)
	check("x =?UTF-8?Q?a?=  y", "x a  y", nil)
	check("no =?utf-8?q?=ZZ?= decode", "no =?utf-8?q?=ZZ?= decode", nil)
	check("(=?utf-8?q?a?=)", "(=?utf-8?q?a?=)", nil)
	check("bad =?nope?q?a?=", "", ErrCharset)
	check("bad =?utf-8?z?a?=", "", ErrEncoding)
}

func TestNormalize(t *testing.T) {
	check := func(src string, class charclass.Class, dotJoin bool, exp string, expErr error) {
		t.Helper()
		s, err := Normalize([]byte(src), class, dotJoin)
		tfail(t, err, expErr)
		tcompare(t, s, exp)
	}

	check(`text/plain;  charset = "utf-8"`, charclass.Token, false, `text/plain; charset = "utf-8"`, nil)
	check("a@b.example (c)\r\n\t<x>", charclass.Atom, true, "a@b.example (c) <x>", nil)
	check("=?utf-8?q?a?= =?utf-8?q?b?= <x@y>", charclass.Atom, true, "ab <x@y>", nil)
	check("<unterminated", charclass.Atom, true, "", ErrFormat)
}

func TestQuote(t *testing.T) {
	tcompare(t, Quote(`a"b\c`), `"a\"b\\c"`)
	s, err := Unquote(Quote(`a"b\c`))
	tcheck(t, err, "unquote")
	tcompare(t, s, `a"b\c`)

	_, err = Unquote(`"abc`)
	tfail(t, err, ErrFormat)
	_, err = Unquote(`"a"b`)
	tfail(t, err, ErrFormat)
	_, err = Unquote(`abc`)
	tfail(t, err, ErrFormat)
}

func TestUnfold(t *testing.T) {
	tcompare(t, string(Unfold([]byte("foo\r\n bar"))), "foo bar")
	tcompare(t, string(Unfold([]byte("foo\r\n\r\n\tbar"))), "foo\tbar")
	tcompare(t, string(Unfold([]byte("foo"))), "foo")
}
