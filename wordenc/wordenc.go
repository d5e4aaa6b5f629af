// Package wordenc encodes header text as a sequence of chunks that can be
// folded into lines: raw words, quoted-strings, and RFC 2047 encoded-words,
// merging adjacent words into a single encoded-word where that saves space.
package wordenc

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"

	"github.com/mjl-/mimecodec/charclass"
	"github.com/mjl-/mimecodec/metrics"
	"github.com/mjl-/mimecodec/token"
)

// Semantics determines how text is split into words and how words that need
// protection are written.
type Semantics int

const (
	// Unstructured text, e.g. Subject. Words are separated by spaces and tabs.
	Unstructured Semantics = iota

	// Phrase, e.g. a display name. Words are separated by spaces only. Words
	// with characters that are not allowed in an atom are quoted.
	Phrase
)

func (s Semantics) String() string {
	switch s {
	case Unstructured:
		return "unstructured"
	case Phrase:
		return "phrase"
	}
	return fmt.Sprintf("Semantics(%d)", int(s))
}

const (
	MaxWordLength      = 75  // ../rfc/2047:219
	MaxLineLength      = 78  // ../rfc/5322:378
	RequiredLineLength = 998 // ../rfc/5322:365
)

var ErrOptions = errors.New("invalid options")

// Options for encoding text. Zero values are replaced with defaults.
type Options struct {
	Semantics     Semantics
	Charset       string // For encoded-words, default "UTF-8".
	MaxWordLength int    // Max length of an encoded-word, default MaxWordLength.
	MaxLineLength int    // Max length of a quoted-string, default MaxLineLength.
}

// Chunk is a piece of output, to be written after Sep, the whitespace
// separating it from the previous chunk. Sep is empty for the first chunk.
// Text is a raw word or run of words, a quoted-string, or an encoded-word.
type Chunk struct {
	Sep     string
	Text    string
	Encoded bool
}

type word struct {
	wsStart int // Start of the whitespace before the word.
	start   int
	end     int
	must    bool // Must be encoded.
	quote   bool // Has characters that must be quoted in a phrase.
}

// Encoder returns the chunks for a text, one at a time.
type Encoder struct {
	text    []byte
	opts    Options
	enc     encoding.Encoding // Nil for UTF-8.
	framing int               // Size of an encoded-word without encoded text.
	words   []word

	wi          int // Next word.
	mid         int // If > 0, offset in word wi to continue at.
	emitted     bool
	prevEncoded bool
}

// New returns an encoder for text, which must be UTF-8.
//
// Leading and trailing whitespace is not represented in the chunks.
func New(text []byte, opts Options) (*Encoder, error) {
	if opts.Charset == "" {
		opts.Charset = "UTF-8"
	}
	if opts.MaxWordLength <= 0 {
		opts.MaxWordLength = MaxWordLength
	}
	if opts.MaxLineLength <= 0 {
		opts.MaxLineLength = MaxLineLength
	}
	if !utf8.Valid(text) {
		return nil, fmt.Errorf("%w: text is not valid utf-8", ErrOptions)
	}
	enc, err := token.Charset(opts.Charset)
	if err != nil {
		return nil, err
	}
	e := &Encoder{
		text:    text,
		opts:    opts,
		enc:     enc,
		framing: len("=?") + len(opts.Charset) + len("?Q?") + len("?="),
	}
	// Room for at least one 4-byte UTF-8 sequence.
	if opts.MaxWordLength-e.framing < 8 {
		return nil, fmt.Errorf("%w: max word length %d too small for charset %q", ErrOptions, opts.MaxWordLength, opts.Charset)
	}
	if enc != nil {
		if _, err := enc.NewEncoder().Bytes(text); err != nil {
			return nil, fmt.Errorf("text not representable in charset %q: %w", opts.Charset, err)
		}
	}
	e.split()
	return e, nil
}

func (e *Encoder) isSpace(c byte) bool {
	return c == ' ' || c == '\t' && e.opts.Semantics == Unstructured
}

// split finds the words and marks those that must be encoded or quoted.
func (e *Encoder) split() {
	t := e.text
	i := 0
	for {
		ws := i
		for i < len(t) && e.isSpace(t[i]) {
			i++
		}
		if i >= len(t) {
			break
		}
		w := word{wsStart: ws, start: i}
		for i < len(t) && !e.isSpace(t[i]) {
			c := t[i]
			if !charclass.Visible.Has(c) && !charclass.Space.Has(c) {
				w.must = true
			}
			if !charclass.Atom.Has(c) {
				w.quote = true
			}
			i++
		}
		w.end = i
		buf := t[w.start:w.end]
		// ../rfc/2047:280
		if token.LooksEncoded(buf) || len(buf) >= RequiredLineLength {
			w.must = true
		}
		if e.opts.Semantics == Phrase && w.quote && !w.must && quotedSize(buf) > e.opts.MaxLineLength-1 {
			w.must = true
		}
		e.words = append(e.words, w)
	}
	if len(e.words) > 0 {
		e.words[0].wsStart = e.words[0].start
	}
}

// quotedSize is the size of buf as quoted-string, counting an escape for each
// character that is not an atom character, an upper bound.
func quotedSize(buf []byte) int {
	n := 2 + len(buf)
	for _, c := range buf {
		if c != ' ' && !charclass.Atom.Has(c) {
			n++
		}
	}
	return n
}

// transcode returns buf in the output charset.
func (e *Encoder) transcode(buf []byte) []byte {
	if e.enc == nil {
		return buf
	}
	// Cannot fail, all text was transcoded in New.
	r, err := e.enc.NewEncoder().Bytes(buf)
	if err != nil {
		panic(fmt.Sprintf("transcoding validated text: %v", err))
	}
	return r
}

// bound is the maximum size of an encoded-word for buf, the size of its base64
// encoding plus framing.
func (e *Encoder) bound(buf []byte) int {
	return e.framing + (len(e.transcode(buf))+2)/3*4
}

func (e *Encoder) fits(buf []byte) bool {
	return e.bound(buf) <= e.opts.MaxWordLength
}

// Next returns the next chunk, and false when all text has been returned.
func (e *Encoder) Next() (Chunk, bool) {
	if e.wi >= len(e.words) {
		return Chunk{}, false
	}
	w := e.words[e.wi]
	var sep string
	if e.emitted {
		sep = string(e.text[w.wsStart:w.start])
	}

	var c Chunk
	switch {
	case !w.must && (e.opts.Semantics == Unstructured || !w.quote):
		c = Chunk{sep, string(e.text[w.start:w.end]), false}
		e.wi++
	case !w.must:
		c = e.quoted(sep)
	default:
		c = e.encoded(sep)
	}
	e.emitted = true
	e.prevEncoded = c.Encoded
	return c, true
}

// quoted returns a quoted-string for the phrase words starting at e.wi, extended
// through following words that need not be encoded. A run is not extended to
// contents that look like an encoded-word, decoders would decode it. A single
// word never does, split marks those for encoding.
func (e *Encoder) quoted(sep string) Chunk {
	w := e.words[e.wi]
	end := w.end
	j := e.wi + 1
	for ; j < len(e.words) && !e.words[j].must; j++ {
		buf := e.text[w.start:e.words[j].end]
		if quotedSize(buf) > e.opts.MaxLineLength-1 || token.LooksEncoded(buf) {
			break
		}
		end = e.words[j].end
	}
	e.wi = j
	return Chunk{sep, token.Quote(string(e.text[w.start:end])), false}
}

// encoded returns an encoded-word for the word at e.wi, extended through
// following words as long as it fits. Plain words in between are only
// included if that results in smaller output.
func (e *Encoder) encoded(sep string) Chunk {
	w := e.words[e.wi]
	start := w.start
	if e.mid > 0 {
		// Continuing a word that was too long for a single encoded-word.
		start = e.mid
		sep = " "
	} else if e.prevEncoded {
		// Whitespace between encoded-words is ignored by decoders, so encode it.
		// ../rfc/2047:506
		start = w.wsStart
		sep = " "
	}

	if !e.fits(e.text[start:w.end]) {
		end := e.splitWord(start, w.end)
		e.mid = end
		return Chunk{sep, e.encodeWord(e.text[start:end]), true}
	}
	e.mid = 0

	end := w.end
	j := e.wi + 1
	for j < len(e.words) {
		if e.words[j].must {
			if !e.fits(e.text[start:e.words[j].end]) {
				break
			}
			end = e.words[j].end
			j++
			continue
		}

		// Plain words, followed by a word to encode.
		k := j
		for k < len(e.words) && !e.words[k].must {
			k++
		}
		if k >= len(e.words) {
			break
		}
		wk := e.words[k]
		merged := e.text[start:wk.end]
		separate := e.bound(e.text[start:end]) + (wk.start - end) + e.bound(e.text[wk.start:wk.end])
		if !e.fits(merged) || e.bound(merged) >= separate {
			break
		}
		end = wk.end
		j = k + 1
	}
	e.wi = j
	return Chunk{sep, e.encodeWord(e.text[start:end]), true}
}

// splitWord returns the largest end offset at a rune boundary for which
// text[start:end] fits in an encoded-word. At least one rune is included.
func (e *Encoder) splitWord(start, end int) int {
	_, size := utf8.DecodeRune(e.text[start:end])
	o := start + size
	for o < end {
		_, size := utf8.DecodeRune(e.text[o:end])
		if !e.fits(e.text[start : o+size]) {
			break
		}
		o += size
	}
	return o
}

// qsafe returns whether c can be written as is in a Q-encoded word, in any
// position, including phrases. ../rfc/2047:405
func qsafe(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || strings.IndexByte("!*+-/", c) >= 0
}

const hexDigits = "0123456789ABCDEF"

// encodeWord returns buf as a single encoded-word, with Q or B encoding,
// whichever is shorter.
func (e *Encoder) encodeWord(buf []byte) string {
	buf = e.transcode(buf)
	var q strings.Builder
	for _, c := range buf {
		switch {
		case c == ' ':
			q.WriteByte('_')
		case qsafe(c):
			q.WriteByte(c)
		default:
			q.WriteByte('=')
			q.WriteByte(hexDigits[c>>4])
			q.WriteByte(hexDigits[c&0xf])
		}
	}
	b := base64.StdEncoding.EncodeToString(buf)
	if q.Len() <= len(b) {
		metrics.EncodedWordInc("q")
		return "=?" + e.opts.Charset + "?Q?" + q.String() + "?="
	}
	metrics.EncodedWordInc("b")
	return "=?" + e.opts.Charset + "?B?" + b + "?="
}

// All returns the remaining chunks.
func (e *Encoder) All() []Chunk {
	var l []Chunk
	for {
		c, ok := e.Next()
		if !ok {
			return l
		}
		l = append(l, c)
	}
}
