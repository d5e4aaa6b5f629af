// Package segment encodes header parameter values, choosing between token,
// quoted-string and RFC 2231 percent-encoded segments to minimize the size of
// the framed output while keeping each segment within a line.
package segment

import (
	"unicode/utf8"

	"github.com/mjl-/mimecodec/charclass"
)

// Balance is the result of estimating or encoding: the number of bytes written
// and the number of source bytes they represent.
type Balance struct {
	Produced int
	Consumed int
}

// Encoder is a strategy for encoding a prefix of a value into a segment.
// Implementations are stateless and can be shared.
//
// The max passed to Estimate and Encode is the room for the encoded segment,
// including prolog and epilog. Encode consumes exactly what Estimate reports
// for the same source and max.
type Encoder interface {
	Name() string

	// Estimate returns how much of src is encoded within max bytes. A zero
	// Consumed means the first byte cannot be encoded, or does not fit.
	Estimate(src []byte, max int) Balance

	// Encode appends the encoded form of the estimated prefix of src to dst.
	Encode(dst, src []byte, max int) ([]byte, Balance)

	// FindValid returns the offset of the first byte in src this encoder could
	// start at, or -1.
	FindValid(src []byte) int

	PrologSize() int
	EpilogSize() int

	// Extended returns whether segments are written as RFC 2231
	// extended-other-values, with a "*" after the name.
	Extended() bool
}

type plain struct{}
type quoted struct{}
type percent struct{}

var (
	// Plain writes RFC 2045 tokens as is. ../rfc/2045:663
	Plain Encoder = plain{}

	// Quoted writes quoted-strings, for printable ASCII and tabs. ../rfc/2045:672
	Quoted Encoder = quoted{}

	// Percent writes RFC 2231 ext-octets, for any byte. Multibyte UTF-8
	// sequences are not split over segments, unless a single sequence does
	// not fit. ../rfc/2231:403
	Percent Encoder = percent{}
)

func (plain) Name() string    { return "plain" }
func (plain) PrologSize() int { return 0 }
func (plain) EpilogSize() int { return 0 }
func (plain) Extended() bool  { return false }

func (plain) Estimate(src []byte, max int) Balance {
	n := charclass.Token.IndexNot(src)
	if n < 0 {
		n = len(src)
	}
	n = min(n, max)
	if n < 0 {
		n = 0
	}
	return Balance{n, n}
}

func (e plain) Encode(dst, src []byte, max int) ([]byte, Balance) {
	b := e.Estimate(src, max)
	return append(dst, src[:b.Consumed]...), b
}

func (plain) FindValid(src []byte) int {
	return charclass.Token.Index(src)
}

func (quoted) Name() string    { return "quoted" }
func (quoted) PrologSize() int { return 1 }
func (quoted) EpilogSize() int { return 1 }
func (quoted) Extended() bool  { return false }

func quotable(c byte) bool {
	return c == '\t' || c >= 0x20 && c <= 0x7e
}

func (quoted) Estimate(src []byte, max int) Balance {
	var b Balance
	room := max - 2
	for _, c := range src {
		if !quotable(c) {
			break
		}
		n := 1
		if c == '"' || c == '\\' {
			n = 2
		}
		if b.Produced+n > room {
			break
		}
		b.Produced += n
		b.Consumed++
	}
	if b.Consumed == 0 {
		return Balance{}
	}
	b.Produced += 2
	return b
}

func (e quoted) Encode(dst, src []byte, max int) ([]byte, Balance) {
	b := e.Estimate(src, max)
	if b.Consumed == 0 {
		return dst, b
	}
	dst = append(dst, '"')
	for _, c := range src[:b.Consumed] {
		if c == '"' || c == '\\' {
			dst = append(dst, '\\')
		}
		dst = append(dst, c)
	}
	dst = append(dst, '"')
	return dst, b
}

func (quoted) FindValid(src []byte) int {
	for i, c := range src {
		if quotable(c) {
			return i
		}
	}
	return -1
}

func (percent) Name() string    { return "percent" }
func (percent) PrologSize() int { return 0 }
func (percent) EpilogSize() int { return 0 }
func (percent) Extended() bool  { return true }

// sequence returns the number of bytes of the UTF-8 sequence at the start of
// src. Invalid sequences are single bytes.
func sequence(src []byte) int {
	if src[0] < utf8.RuneSelf {
		return 1
	}
	_, size := utf8.DecodeRune(src)
	return size
}

func percentSize(c byte) int {
	if charclass.AttrChar.Has(c) {
		return 1
	}
	return 3
}

func (percent) Estimate(src []byte, max int) Balance {
	var b Balance
	for b.Consumed < len(src) {
		n := sequence(src[b.Consumed:])
		size := 0
		for _, c := range src[b.Consumed : b.Consumed+n] {
			size += percentSize(c)
		}
		if b.Produced+size > max {
			if b.Consumed > 0 || n == 1 {
				break
			}
			// A single sequence that does not fit, split it.
			for _, c := range src[:n] {
				if b.Produced+percentSize(c) > max {
					break
				}
				b.Produced += percentSize(c)
				b.Consumed++
			}
			break
		}
		b.Produced += size
		b.Consumed += n
	}
	return b
}

const hexDigits = "0123456789ABCDEF"

func (e percent) Encode(dst, src []byte, max int) ([]byte, Balance) {
	b := e.Estimate(src, max)
	for _, c := range src[:b.Consumed] {
		if charclass.AttrChar.Has(c) {
			dst = append(dst, c)
		} else {
			dst = append(dst, '%', hexDigits[c>>4], hexDigits[c&0xf])
		}
	}
	return dst, b
}

func (percent) FindValid(src []byte) int {
	if len(src) == 0 {
		return -1
	}
	return 0
}
