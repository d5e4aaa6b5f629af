package scan

import (
	"bytes"
)

// PartScanner finds the end of a multipart body part: a line starting with
// "--" and the boundary, optionally followed by "--" for the closing
// boundary, whitespace, and CRLF or the end of input. ../rfc/2046:1086
//
// Boundaries are only recognized at the start of a line, the start of the
// window counts as a line start. The CRLF before the boundary line is part of
// the terminator. ../rfc/2046:1114
type PartScanner struct {
	Boundary []byte // Without leading "--".

	// Length of the terminator including the CRLF before it, -1 while not found.
	TerminatorLength int

	// Whether the boundary is the closing boundary.
	Closing bool

	// Set when the start of the window is not the start of a line, e.g. after
	// part of the content was consumed. Cleared by Reset.
	Continued bool
}

// NewPartScanner returns a scanner for boundary, without the leading "--".
func NewPartScanner(boundary string) *PartScanner {
	return &PartScanner{Boundary: []byte(boundary), TerminatorLength: -1}
}

// Reset prepares the scanner for a new part.
func (s *PartScanner) Reset() {
	s.TerminatorLength = -1
	s.Closing = false
	s.Continued = false
}

// Terminator returns TerminatorLength.
func (s *PartScanner) Terminator() int {
	return s.TerminatorLength
}

type match int

const (
	noMatch match = iota
	needMore
	matched
)

// Validate scans buf starting at from, the length returned by the previous
// call, and returns the length of part content. If a boundary is found, its
// terminator starts right after the content. If eof is set, no more data will
// be added to buf. The content never ends just before a CR that could start a
// CRLF, or before a line that could still become a boundary.
func (s *PartScanner) Validate(buf []byte, from int, eof bool) int {
	if from == 0 && !s.Continued {
		switch m, n := s.matchLine(buf, 0, eof); m {
		case matched:
			s.TerminatorLength = n
			return 0
		case needMore:
			return 0
		}
	}
	i := from
	for {
		k := bytes.IndexByte(buf[i:], '\r')
		if k < 0 {
			return len(buf)
		}
		k += i
		if k+1 >= len(buf) {
			if eof {
				return len(buf)
			}
			return k
		}
		if buf[k+1] != '\n' {
			i = k + 1
			continue
		}
		switch m, n := s.matchLine(buf, k+2, eof); m {
		case matched:
			s.TerminatorLength = 2 + n
			return k
		case needMore:
			return k
		}
		// Restart at the next line.
		i = k + 2
	}
}

// matchLine checks for a boundary line at o, returning its length without
// preceding CRLF if matched.
func (s *PartScanner) matchLine(buf []byte, o int, eof bool) (match, int) {
	line := buf[o:]
	n := 2 + len(s.Boundary)
	if len(line) < n {
		if eof || !prefixOf(line, s.Boundary) {
			return noMatch, 0
		}
		return needMore, 0
	}
	if line[0] != '-' || line[1] != '-' || !bytes.Equal(line[2:n], s.Boundary) {
		return noMatch, 0
	}

	closing := false
	if n < len(line) && line[n] == '-' {
		if n+1 >= len(line) {
			if eof {
				return noMatch, 0
			}
			return needMore, 0
		}
		if line[n+1] != '-' {
			return noMatch, 0
		}
		closing = true
		n += 2
	}
	for n < len(line) && (line[n] == ' ' || line[n] == '\t') {
		n++
	}
	if n >= len(line) {
		if !eof {
			return needMore, 0
		}
		s.Closing = closing
		return matched, n
	}
	if line[n] != '\r' {
		return noMatch, 0
	}
	if n+1 >= len(line) {
		if !eof {
			return needMore, 0
		}
		s.Closing = closing
		return matched, n + 1
	}
	if line[n+1] != '\n' {
		return noMatch, 0
	}
	s.Closing = closing
	return matched, n + 2
}

// prefixOf returns whether line, shorter than "--"+boundary, could be the
// start of a dash-boundary.
func prefixOf(line, boundary []byte) bool {
	for i, c := range line {
		var exp byte
		if i < 2 {
			exp = '-'
		} else {
			exp = boundary[i-2]
		}
		if c != exp {
			return false
		}
	}
	return true
}
