package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Scanner is implemented by FieldScanner and PartScanner.
type Scanner interface {
	Validate(buf []byte, from int, eof bool) int
	Terminator() int
}

// Scan validates the window of src with s, reading more data as needed, until
// a terminator is found or src has no more data. It returns the content
// length. The terminator, if found, follows the content in the window, see
// s.Terminator. Nothing is consumed from src.
//
// If the content is larger than limit bytes, ErrLimit is returned.
func Scan(ctx context.Context, src Source, s Scanner, limit int) (int, error) {
	var n int
	var eof bool
	for {
		n = s.Validate(src.Window(), n, eof)
		if n > limit {
			return n, fmt.Errorf("%w: more than %d bytes", ErrLimit, limit)
		} else if s.Terminator() >= 0 || eof {
			return n, nil
		}
		if err := src.Fill(ctx); errors.Is(err, io.EOF) {
			eof = true
		} else if err != nil {
			return n, err
		}
	}
}
