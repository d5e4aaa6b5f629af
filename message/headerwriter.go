package message

import (
	"strings"

	"github.com/mjl-/mimecodec/wordenc"
)

// HeaderWriter helps create header fields, folding to the next line when it
// would become too long. Text is added in elements that are never split. A
// fold replaces the separator before an element with CRLF followed by that
// separator, so unfolding gives back the original text. ../rfc/5322:421
type HeaderWriter struct {
	b             strings.Builder
	nameLen       int
	lineLen       int
	nonfirst      bool
	maxLineLength int
}

// NewHeaderWriter starts a field with name. Lines are folded when longer than
// maxLineLength, or MaxLineLength if zero.
func NewHeaderWriter(name string, maxLineLength int) *HeaderWriter {
	if maxLineLength <= 0 {
		maxLineLength = MaxLineLength
	}
	w := &HeaderWriter{maxLineLength: maxLineLength}
	w.b.WriteString(name)
	w.b.WriteString(":")
	w.nameLen = len(name) + 1
	w.lineLen = w.nameLen
	return w
}

// Add adds texts, each preceded by separator, which must be whitespace for
// folding. Elements are not wrapped.
func (w *HeaderWriter) Add(separator string, texts ...string) {
	for _, text := range texts {
		if w.nonfirst && separator != "" && w.lineLen+len(separator)+len(text) > w.maxLineLength {
			w.b.WriteString("\r\n")
			w.lineLen = 0
		}
		w.b.WriteString(separator)
		w.b.WriteString(text)
		w.lineLen += len(separator) + len(text)
		w.nonfirst = true
	}
}

// AddChunks adds chunks from a word encoder, each with its own separator. The
// first chunk always gets a single space, to separate it from the colon.
func (w *HeaderWriter) AddChunks(chunks []wordenc.Chunk) {
	for _, c := range chunks {
		sep := c.Sep
		if !w.nonfirst || sep == "" {
			sep = " "
		}
		w.Add(sep, c.Text)
	}
}

// Body returns the folded field body, everything after the colon, without
// the final CRLF.
func (w *HeaderWriter) Body() []byte {
	return []byte(w.b.String()[w.nameLen:])
}

// String returns the field in string form, ending with \r\n.
func (w *HeaderWriter) String() string {
	return w.b.String() + "\r\n"
}
