package token

import (
	"errors"
	"fmt"
)

var (
	// ErrFormat is matched by all format errors, see FormatError.
	ErrFormat = errors.New("malformed structured value")

	ErrCharset  = errors.New("unknown charset")
	ErrEncoding = errors.New("unknown encoded-word encoding")
)

// FormatError describes a syntax error in a structured value, with the
// position and a snippet of the offending input.
type FormatError struct {
	Offset  int    // Offset in the value where the error was found.
	Snippet string // Up to 24 bytes of input starting at Offset.
	Msg     string
	Err     error // Underlying cause, e.g. ErrCharset. Can be nil.
}

func (e *FormatError) Error() string {
	s := fmt.Sprintf("%s: %s at offset %d", ErrFormat, e.Msg, e.Offset)
	if e.Snippet != "" {
		s += fmt.Sprintf(" (%q)", e.Snippet)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns ErrFormat and the underlying cause, if any.
func (e *FormatError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrFormat}
	}
	return []error{ErrFormat, e.Err}
}

const snippetSize = 24

// Errorf returns a FormatError for src at offset, with an optional underlying cause.
func Errorf(src []byte, offset int, cause error, format string, args ...any) *FormatError {
	var snippet string
	if offset < len(src) {
		snippet = string(src[offset:min(len(src), offset+snippetSize)])
	}
	return &FormatError{offset, snippet, fmt.Sprintf(format, args...), cause}
}
