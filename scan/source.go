// Package scan finds the ends of header fields and multipart body parts in a
// stream, incrementally, on a buffered window that grows as data arrives.
//
// Scanners hold no state besides their result: each Validate call
// re-examines the window from the offset returned by the previous call, so
// feeding data one byte at a time gives the same result as feeding it at once.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var (
	ErrWindowFull = errors.New("buffered window full")
	ErrLimit      = errors.New("scan limit exceeded")
)

// Source is a forward-only buffered source of bytes.
type Source interface {
	// Window returns the buffered, not yet consumed bytes. The returned slice
	// is only valid until the next call to Fill or Skip.
	Window() []byte

	// Fill reads more data into the window. It returns io.EOF if no more data
	// is available. Fill is the only place where the context is checked.
	Fill(ctx context.Context) error

	// Skip consumes n bytes from the start of the window.
	Skip(n int)

	// CopyTo writes the first n bytes of the window to w, and consumes them.
	CopyTo(w io.Writer, n int) error

	// Exhausted returns whether the window is empty and no more data can be read.
	Exhausted() bool
}

// Sink receives encoded output.
type Sink = io.Writer

// Reader is a Source reading from an io.Reader. Its buffer is reused: consumed
// bytes are dropped when more data is read, and the buffer only grows when a
// full window is not yet consumed, up to MaxWindow bytes.
type Reader struct {
	MaxWindow int

	r     io.Reader
	buf   []byte
	start int // Start of window in buf.
	end   int // End of window in buf.
	eof   bool
}

// DefaultMaxWindow is used for NewReader with a zero maxWindow.
const DefaultMaxWindow = 1024 * 1024

const initialWindow = 4 * 1024

// NewReader returns a Source for r, with the window bounded by maxWindow bytes.
func NewReader(r io.Reader, maxWindow int) *Reader {
	if maxWindow <= 0 {
		maxWindow = DefaultMaxWindow
	}
	return &Reader{MaxWindow: maxWindow, r: r}
}

func (r *Reader) Window() []byte {
	return r.buf[r.start:r.end]
}

func (r *Reader) Fill(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.eof {
		return io.EOF
	}
	if r.start > 0 {
		copy(r.buf, r.buf[r.start:r.end])
		r.end -= r.start
		r.start = 0
	}
	if r.end == len(r.buf) {
		if len(r.buf) >= r.MaxWindow {
			return fmt.Errorf("%w: %d bytes", ErrWindowFull, len(r.buf))
		}
		n := max(initialWindow, 2*len(r.buf))
		nbuf := make([]byte, min(n, r.MaxWindow))
		copy(nbuf, r.buf[:r.end])
		r.buf = nbuf
	}
	// Retry reads that return no data and no error, as io.ReadFull does, within bounds.
	for i := 0; i < 100; i++ {
		n, err := r.r.Read(r.buf[r.end:])
		r.end += n
		if err == io.EOF {
			r.eof = true
			if n == 0 {
				return io.EOF
			}
			return nil
		} else if err != nil {
			return err
		} else if n > 0 {
			return nil
		}
	}
	return io.ErrNoProgress
}

func (r *Reader) Skip(n int) {
	if n < 0 || r.start+n > r.end {
		panic(fmt.Sprintf("skip %d beyond window of %d bytes", n, r.end-r.start))
	}
	r.start += n
}

func (r *Reader) CopyTo(w io.Writer, n int) error {
	if n < 0 || r.start+n > r.end {
		return fmt.Errorf("copy %d bytes beyond window of %d bytes", n, r.end-r.start)
	}
	if _, err := w.Write(r.buf[r.start : r.start+n]); err != nil {
		return err
	}
	r.start += n
	return nil
}

func (r *Reader) Exhausted() bool {
	return r.eof && r.start == r.end
}
