package message

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

var ErrCompose = errors.New("compose")

// Composer helps compose a message. Operations that fail call panic, which should
// be caught with recover(), checking for ErrCompose and optionally ErrSizeLimit.
// Writes are buffered.
type Composer struct {
	Size int64 // Total bytes written.

	bw      *bufio.Writer
	maxSize int64 // If greater than zero, writes beyond maximum size raise ErrSizeLimit.
}

// NewComposer initializes a new composer with a buffered writer around w, and
// with a maximum message size if maxSize is greater than zero.
func NewComposer(w io.Writer, maxSize int64) *Composer {
	return &Composer{bw: bufio.NewWriter(w), maxSize: maxSize}
}

// Write implements io.Writer, but calls panic (that is handled higher up) on
// i/o errors.
func (c *Composer) Write(buf []byte) (int, error) {
	if c.maxSize > 0 && c.Size+int64(len(buf)) > c.maxSize {
		c.Checkf(ErrSizeLimit, "writing message")
	}
	n, err := c.bw.Write(buf)
	if n > 0 {
		c.Size += int64(n)
	}
	c.Checkf(err, "write")
	return n, nil
}

// Checkf checks err, panicing with sentinel error value.
func (c *Composer) Checkf(err error, format string, args ...any) {
	if err != nil {
		// We expose the original error too, needed at least for ErrSizeLimit.
		panic(fmt.Errorf("%w: %w: %v", ErrCompose, err, fmt.Sprintf(format, args...)))
	}
}

// Flush writes any buffered output.
func (c *Composer) Flush() {
	err := c.bw.Flush()
	c.Checkf(err, "flush")
}

// Fields writes the fields of h, without the empty line ending a header.
func (c *Composer) Fields(h Header) {
	for _, f := range h.Fields {
		fmt.Fprintf(c, "%s:%s\r\n", f.Name, f.Raw)
	}
}

// Header writes the fields of h and the empty line ending the header.
func (c *Composer) Header(h Header) {
	c.Fields(h)
	c.Line()
}

// Line writes an empty line.
func (c *Composer) Line() {
	_, _ = c.Write([]byte("\r\n"))
}

// Recover is deferred by callers of a Composer, it turns a panic with ErrCompose
// into an error.
func Recover(err *error) {
	x := recover()
	if x == nil {
		return
	}
	if xerr, ok := x.(error); ok && errors.Is(xerr, ErrCompose) {
		*err = xerr
		return
	}
	panic(x)
}
