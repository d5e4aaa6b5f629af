package message

import (
	"bytes"
	"io"
)

// Writer is a write-through helper that replaces bare LF line endings with
// CRLF, so files edited on systems with LF line endings can be loaded. It keeps
// track of whether the header section has ended.
type Writer struct {
	writer io.Writer

	HaveBody bool  // Whether the empty line ending the header section was written.
	Size     int64 // Bytes written to the underlying writer, after conversion.

	prev    byte // Last byte written, CR or LF handling crosses writes.
	lineLen int  // Bytes on current line, excluding line ending.
}

// NewWriter returns a Writer writing to w.
func NewWriter(w io.Writer) *Writer {
	// Start as if after a line ending, an empty first line means an empty header.
	return &Writer{writer: w, prev: '\n'}
}

func (w *Writer) write(buf []byte) error {
	n, err := w.writer.Write(buf)
	w.Size += int64(n)
	return err
}

// Write implements io.Writer. The returned count is of bytes from buf.
func (w *Writer) Write(buf []byte) (int, error) {
	o := 0
	for o < len(buf) {
		i := bytes.IndexByte(buf[o:], '\n')
		if i < 0 {
			w.track(buf[o:])
			if err := w.write(buf[o:]); err != nil {
				return o, err
			}
			return len(buf), nil
		}
		i += o
		line := buf[o:i]
		bare := len(line) == 0 && w.prev != '\r' || len(line) > 0 && line[len(line)-1] != '\r'
		w.track(line)
		if err := w.write(line); err != nil {
			return o, err
		}
		if bare {
			if err := w.write([]byte("\r\n")); err != nil {
				return o, err
			}
		} else if err := w.write([]byte("\n")); err != nil {
			return o, err
		}
		w.endLine()
		o = i + 1
	}
	return len(buf), nil
}

func (w *Writer) track(buf []byte) {
	if len(buf) == 0 {
		return
	}
	w.lineLen += len(buf)
	if buf[len(buf)-1] == '\r' {
		w.lineLen--
	}
	w.prev = buf[len(buf)-1]
}

func (w *Writer) endLine() {
	if w.lineLen == 0 {
		w.HaveBody = true
	}
	w.lineLen = 0
	w.prev = '\n'
}
