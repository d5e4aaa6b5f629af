package charclass

import (
	"testing"
)

func TestClasses(t *testing.T) {
	check := func(b byte, c Class, exp bool) {
		t.Helper()
		if got := c.Has(b); got != exp {
			t.Fatalf("byte %q in class %b: got %v, expected %v", b, c, got, exp)
		}
	}

	check(' ', Space, true)
	check('\t', Space, true)
	check('\r', Space, false)
	check('\r', FWS, true)
	check('a', Atom, true)
	check('.', Atom, false)
	check('.', Special, true)
	check('.', Token, true)
	check('/', Token, false)
	check('/', Atom, true)
	check('=', Tspecial, true)
	check('*', Token, true)
	check('*', AttrChar, false)
	check('%', AttrChar, false)
	check(0xc3, Atom, true)
	check(0xc3, Token, false)
	check(0xc3, Visible, false)
	check('"', QText, false)
	check('(', CText, false)
	check(']', DText, false)
	check(0x7f, Visible, false)
}

func TestIndex(t *testing.T) {
	buf := []byte("abc def")
	if i := Space.Index(buf); i != 3 {
		t.Fatalf("got %d, expected 3", i)
	}
	if i := Atom.IndexNot(buf); i != 3 {
		t.Fatalf("got %d, expected 3", i)
	}
	if i := Atom.IndexNot([]byte("abc")); i != -1 {
		t.Fatalf("got %d, expected -1", i)
	}
	if !Visible.All([]byte("a!~")) || Visible.All([]byte("a b")) {
		t.Fatalf("bad All")
	}
}
