// Package charclass classifies bytes for the grammars of RFC 5322, RFC 2045,
// RFC 2047 and RFC 2231.
//
// The table is computed once at init and never modified, it can be used
// from any number of goroutines.
package charclass

// Class is a bitmask of character classes a byte belongs to.
type Class uint16

const (
	Space    Class = 1 << iota // SP and HTAB, WSP. ../rfc/5234:756
	Break                      // CR and LF.
	Visible                    // VCHAR, 0x21-0x7e. ../rfc/5234:774
	Atom                       // atext, including UTF-8 bytes. ../rfc/5322:679 ../rfc/6532:240
	Token                      // RFC 2045 token. ../rfc/2045:663
	AttrChar                   // RFC 2231 attribute-char. ../rfc/2231:394
	QText                      // qtext, including UTF-8 bytes. ../rfc/5322:735 ../rfc/6532:242
	Special                    // specials. ../rfc/5322:691
	Tspecial                   // RFC 2045 tspecials. ../rfc/2045:667
	CText                      // ctext, including UTF-8 bytes. ../rfc/5322:602
	DText                      // dtext, including UTF-8 bytes. ../rfc/5322:967
)

// FWS is whitespace that may appear between tokens of structured field
// bodies, including the CRLF of folded lines.
const FWS = Space | Break

var table [256]Class

func init() {
	for i := 0; i < 256; i++ {
		c := byte(i)
		var cl Class
		switch c {
		case ' ', '\t':
			cl |= Space
		case '\r', '\n':
			cl |= Break
		}
		if c >= 0x21 && c <= 0x7e {
			cl |= Visible
		}
		special := isIn(c, `()<>[]:;@\,."`)
		tspecial := isIn(c, `()<>@,;:\"/[]?=`)
		if special {
			cl |= Special
		}
		if tspecial {
			cl |= Tspecial
		}
		if c >= 0x80 || c >= 0x21 && c <= 0x7e && !special {
			cl |= Atom
		}
		if c >= 0x21 && c <= 0x7e && !tspecial {
			cl |= Token
			// attribute-char is token without "*", "'" and "%".
			if c != '*' && c != '\'' && c != '%' {
				cl |= AttrChar
			}
		}
		if c >= 0x80 || c >= 0x21 && c <= 0x7e && c != '"' && c != '\\' {
			cl |= QText
		}
		if c >= 0x80 || c >= 0x21 && c <= 0x7e && c != '(' && c != ')' && c != '\\' {
			cl |= CText
		}
		if c >= 0x80 || c >= 0x21 && c <= 0x7e && c != '[' && c != ']' && c != '\\' {
			cl |= DText
		}
		table[i] = cl
	}
}

func isIn(c byte, s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return true
		}
	}
	return false
}

// Of returns the classes byte b belongs to.
func Of(b byte) Class {
	return table[b]
}

// Has returns whether byte b is in any of the classes of c.
func (c Class) Has(b byte) bool {
	return table[b]&c != 0
}

// All returns whether all bytes of buf are in one of the classes of c.
func (c Class) All(buf []byte) bool {
	for _, b := range buf {
		if table[b]&c == 0 {
			return false
		}
	}
	return true
}

// Index returns the index of the first byte in buf that is in c, or -1.
func (c Class) Index(buf []byte) int {
	for i, b := range buf {
		if table[b]&c != 0 {
			return i
		}
	}
	return -1
}

// IndexNot returns the index of the first byte in buf that is not in c, or -1.
func (c Class) IndexNot(buf []byte) int {
	for i, b := range buf {
		if table[b]&c == 0 {
			return i
		}
	}
	return -1
}
