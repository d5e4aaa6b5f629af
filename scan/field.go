package scan

// FieldScanner finds the end of a header field: a CRLF that is not followed by
// a space or tab, those start a continuation line. ../rfc/5322:421
//
// The window passed to Validate must start at the field.
type FieldScanner struct {
	// Length of the terminator, -1 while not found. For a field ending at the
	// end of input without CRLF, it is 0. When a run of CRLFs ends the header
	// section, all are included.
	TerminatorLength int

	// Whether the terminator ends the header section: it contains an empty
	// line, or the input ends.
	EndOfHeader bool

	// Continuation lines seen.
	Lines int
}

// NewFieldScanner returns a scanner ready for a new field.
func NewFieldScanner() *FieldScanner {
	return &FieldScanner{TerminatorLength: -1}
}

// Reset prepares the scanner for a new field.
func (s *FieldScanner) Reset() {
	*s = FieldScanner{TerminatorLength: -1}
}

// Terminator returns TerminatorLength.
func (s *FieldScanner) Terminator() int {
	return s.TerminatorLength
}

// Validate scans buf starting at from, the length returned by the previous
// call, and returns the length of field content. If a terminator is found, it
// starts right after the content. If eof is set, no more data will be added to
// buf. The content never ends just before a CR that could start a CRLF.
func (s *FieldScanner) Validate(buf []byte, from int, eof bool) int {
	i := from
	for i < len(buf) {
		if buf[i] != '\r' {
			i++
			continue
		}
		if i+1 >= len(buf) {
			if !eof {
				return i
			}
			i++
			continue
		}
		if buf[i+1] != '\n' {
			i++
			continue
		}

		// Run of CRLFs.
		j := i
		for j+1 < len(buf) && buf[j] == '\r' && buf[j+1] == '\n' {
			j += 2
		}
		if !eof && (j >= len(buf) || j == len(buf)-1 && buf[j] == '\r') {
			// Cannot tell yet if this is folding.
			return i
		}
		if i > 0 && j < len(buf) && (buf[j] == ' ' || buf[j] == '\t') {
			if j-i == 2 {
				s.Lines++
				i = j
				continue
			}
			// Empty line followed by whitespace. Only the field ends here, the
			// empty line is found at the start of the next field.
			s.TerminatorLength = 2
			return i
		}
		s.TerminatorLength = j - i
		// An empty line at the start, or a CRLF followed by an empty line.
		s.EndOfHeader = i == 0 || j-i >= 4 || j >= len(buf)
		return i
	}
	if eof {
		s.TerminatorLength = 0
		s.EndOfHeader = true
	}
	return len(buf)
}
