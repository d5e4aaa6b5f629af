// Package token tokenizes and decodes the bodies of structured header fields
// (RFC 5322, RFC 2045), and decodes RFC 2047 encoded-words.
//
// Tokens are views into a caller-owned buffer, they never copy data. The
// buffer must not be modified while tokens referencing it are in use.
package token

import (
	"fmt"

	"github.com/mjl-/mimecodec/charclass"
)

// Kind is the type of a token.
type Kind uint8

const (
	None                 Kind = iota // Zero token, signals end of input.
	Separator                        // Single byte that is not part of a value, e.g. ";" or ",".
	Value                            // Run of bytes from the configured class, e.g. an atom.
	QuotedValue                      // Quoted-string, including the double quotes.
	RoundBracketedValue              // Comment, including the parentheses.
	AngleBracketedValue              // E.g. addr-spec or msg-id, including <>.
	SquareBracketedValue             // Domain literal, including [].
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Separator:
		return "separator"
	case Value:
		return "value"
	case QuotedValue:
		return "quoted"
	case RoundBracketedValue:
		return "comment"
	case AngleBracketedValue:
		return "angle"
	case SquareBracketedValue:
		return "square"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Token is a span in a source buffer.
type Token struct {
	Kind   Kind
	Offset int
	Length int
}

// Valid returns whether this is a token, as opposed to the zero token returned
// at end of input.
func (t Token) Valid() bool {
	return t.Kind != None
}

// End returns the offset just past the token.
func (t Token) End() int {
	return t.Offset + t.Length
}

// Bytes returns the raw bytes of the token, including any delimiters.
func (t Token) Bytes(src []byte) []byte {
	return src[t.Offset:t.End()]
}

// Inner returns the bytes of the token without the delimiters of quoted,
// bracketed and commented tokens. Escapes are not removed.
func (t Token) Inner(src []byte) []byte {
	switch t.Kind {
	case QuotedValue, RoundBracketedValue, AngleBracketedValue, SquareBracketedValue:
		return src[t.Offset+1 : t.End()-1]
	}
	return t.Bytes(src)
}

func (t Token) String() string {
	return fmt.Sprintf("%s@%d+%d", t.Kind, t.Offset, t.Length)
}

// MaxNesting is the maximum nesting depth of comments. Deeper nesting is a
// format error, to bound the work done on adversarial input.
const MaxNesting = 64

// Next returns the token at *cursor in src, and advances the cursor past it.
//
// Whitespace, including CR and LF of folded lines, before a token is skipped.
// At end of input, the zero Token is returned with a nil error. Bytes in
// class form Value tokens. If dotJoin is set, a single "." between two
// runs of class bytes is part of the value, as for dot-atom. Quoted-strings,
// comments, angle-bracketed and square-bracketed values are returned as single
// tokens. Any other byte is a Separator token.
//
// For an unterminated quoted-string, comment or bracketed value, a
// *FormatError is returned and the cursor is not advanced.
func Next(src []byte, class charclass.Class, dotJoin bool, cursor *int) (Token, error) {
	o := *cursor
	for o < len(src) && charclass.FWS.Has(src[o]) {
		o++
	}
	if o >= len(src) {
		*cursor = o
		return Token{}, nil
	}

	var kind Kind
	var end int
	var err error
	switch src[o] {
	case '"':
		kind = QuotedValue
		end, err = skipEscaped(src, o, '"')
	case '(':
		kind = RoundBracketedValue
		end, err = skipComment(src, o)
	case '<':
		kind = AngleBracketedValue
		end, err = skipAngle(src, o)
	case '[':
		kind = SquareBracketedValue
		end, err = skipEscaped(src, o, ']')
	default:
		if class.Has(src[o]) {
			kind = Value
			end = valueEnd(src, o, class, dotJoin)
		} else {
			kind = Separator
			end = o + 1
		}
	}
	if err != nil {
		return Token{}, err
	}
	*cursor = end
	return Token{kind, o, end - o}, nil
}

// skipEscaped returns the offset after the closing byte for the form starting
// at o. A backslash escapes the next byte, including the closing byte.
func skipEscaped(src []byte, o int, closing byte) (int, error) {
	// ../rfc/5322:735 ../rfc/5322:967
	for i := o + 1; i < len(src); i++ {
		switch src[i] {
		case '\\':
			i++
		case closing:
			return i + 1, nil
		}
	}
	return 0, Errorf(src, o, nil, "unterminated %q", src[o])
}

// skipComment returns the offset after the closing parenthesis of the comment
// starting at o. Comments can be nested. ../rfc/5322:602
func skipComment(src []byte, o int) (int, error) {
	depth := 0
	for i := o; i < len(src); i++ {
		switch src[i] {
		case '\\':
			i++
		case '(':
			depth++
			if depth > MaxNesting {
				return 0, Errorf(src, i, nil, "comments nested deeper than %d", MaxNesting)
			}
		case ')':
			depth--
			if depth == 0 {
				return i + 1, nil
			}
		}
	}
	return 0, Errorf(src, o, nil, "unterminated comment")
}

// skipAngle returns the offset after the ">" for the angle-bracketed value
// starting at o. A quoted-string inside is skipped as a whole, so a ">" inside
// quotes does not end the value, e.g. <"a>b"@example.org>.
func skipAngle(src []byte, o int) (int, error) {
	for i := o + 1; i < len(src); {
		switch src[i] {
		case '"':
			e, err := skipEscaped(src, i, '"')
			if err != nil {
				return 0, err
			}
			i = e
			continue
		case '>':
			return i + 1, nil
		}
		i++
	}
	return 0, Errorf(src, o, nil, "unterminated angle bracket")
}

func valueEnd(src []byte, o int, class charclass.Class, dotJoin bool) int {
	i := o
	for {
		for i < len(src) && class.Has(src[i]) {
			i++
		}
		// ../rfc/5322:686
		if dotJoin && i+1 < len(src) && src[i] == '.' && class.Has(src[i+1]) {
			i++
			continue
		}
		return i
	}
}

// Tokenizer holds a source and cursor for repeated calls to Next.
type Tokenizer struct {
	src     []byte
	class   charclass.Class
	dotJoin bool
	cursor  int
}

// New returns a tokenizer for src. See Next for class and dotJoin.
func New(src []byte, class charclass.Class, dotJoin bool) *Tokenizer {
	return &Tokenizer{src: src, class: class, dotJoin: dotJoin}
}

// Next returns the next token, or the zero Token at end of input.
func (t *Tokenizer) Next() (Token, error) {
	return Next(t.src, t.class, t.dotJoin, &t.cursor)
}

// Offset returns the current cursor.
func (t *Tokenizer) Offset() int {
	return t.cursor
}

// Reset moves the cursor back to the start of the source.
func (t *Tokenizer) Reset() {
	t.cursor = 0
}

// All returns the remaining tokens.
func (t *Tokenizer) All() ([]Token, error) {
	var l []Token
	for {
		tok, err := t.Next()
		if err != nil {
			return l, err
		} else if !tok.Valid() {
			return l, nil
		}
		l = append(l, tok)
	}
}
