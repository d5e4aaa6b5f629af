package message

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mjl-/mimecodec/metrics"
	"github.com/mjl-/mimecodec/mlog"
	"github.com/mjl-/mimecodec/scan"
)

var ErrMultipart = errors.New("malformed multipart body")

// checkBoundary checks the syntax of a multipart boundary. ../rfc/2046:1075
func checkBoundary(b string) error {
	if len(b) == 0 || len(b) > 70 {
		return fmt.Errorf("%w: boundary must be 1 to 70 characters", ErrMultipart)
	}
	for i := 0; i < len(b); i++ {
		c := b[i]
		ok := c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == ' ' && i < len(b)-1
		switch c {
		case '\'', '(', ')', '+', '_', ',', '-', '.', '/', ':', '=', '?':
			ok = true
		}
		if !ok {
			return fmt.Errorf("%w: invalid character %q in boundary", ErrMultipart, c)
		}
	}
	return nil
}

// MultipartReader reads the parts of a multipart body from a source. Parts
// are read in order from the same source, the content of a part is skipped
// when the next part is requested.
type MultipartReader struct {
	Preamble []byte // Text before the first boundary, set by the first NextPart.
	Epilogue []byte // Text after the closing boundary, set when NextPart returns io.EOF.

	ctx     context.Context
	log     mlog.Log
	src     scan.Source
	ps      *scan.PartScanner
	eof     bool // Source returned io.EOF.
	started bool
	closed  bool // Closing boundary was seen.
	cur     *Part
	err     error
}

// NewMultipartReader returns a reader for the multipart body in src, with the
// boundary from the Content-Type field.
func NewMultipartReader(ctx context.Context, log mlog.Log, src scan.Source, boundary string) (*MultipartReader, error) {
	if err := checkBoundary(boundary); err != nil {
		return nil, err
	}
	return &MultipartReader{
		ctx: ctx,
		log: log,
		src: src,
		ps:  scan.NewPartScanner(boundary),
	}, nil
}

// Part is a body part, with its header. The content is read with Read.
type Part struct {
	Header Header

	body content
}

// Read reads the content of the part, up to the next boundary.
func (p *Part) Read(buf []byte) (int, error) {
	return p.body.Read(buf)
}

// Bytes reads the remaining content of the part.
func (p *Part) Bytes() ([]byte, error) {
	return io.ReadAll(p)
}

// content reads from the source up to the next boundary, and consumes the
// boundary line.
type content struct {
	r     *MultipartReader
	avail int  // Bytes in window that are content.
	found bool // Terminator follows the available bytes.
	done  bool
}

func (c *content) Read(buf []byte) (int, error) {
	r := c.r
	if c.done {
		return 0, io.EOF
	} else if r.err != nil {
		return 0, r.err
	}
	for {
		if c.avail > 0 {
			n := copy(buf, r.src.Window()[:c.avail])
			r.src.Skip(n)
			c.avail -= n
			// Further content does not start at a line.
			r.ps.Continued = true
			return n, nil
		}
		if c.found {
			r.src.Skip(r.ps.TerminatorLength)
			r.closed = r.ps.Closing
			r.ps.Reset()
			c.done = true
			return 0, io.EOF
		}

		n := r.ps.Validate(r.src.Window(), 0, r.eof)
		if r.ps.TerminatorLength >= 0 {
			c.avail = n
			c.found = true
			continue
		} else if n > 0 {
			c.avail = n
			continue
		} else if r.eof {
			r.err = fmt.Errorf("%w: missing closing boundary: %w", ErrMultipart, io.ErrUnexpectedEOF)
			return 0, r.err
		}
		if err := r.src.Fill(r.ctx); errors.Is(err, io.EOF) {
			r.eof = true
		} else if err != nil {
			r.err = err
			return 0, err
		}
	}
}

// NextPart returns the next part, after skipping any remaining content of the
// current part. After the last part, io.EOF is returned.
func (r *MultipartReader) NextPart() (*Part, error) {
	if r.err != nil {
		return nil, r.err
	}
	if !r.started {
		r.started = true
		buf, err := io.ReadAll(&content{r: r})
		if err != nil {
			return nil, fmt.Errorf("reading preamble: %w", err)
		}
		r.Preamble = buf
	} else if r.cur != nil {
		if _, err := io.Copy(io.Discard, r.cur); err != nil {
			return nil, err
		}
		r.cur = nil
	}
	if r.closed {
		if err := r.readEpilogue(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	h, err := LoadHeader(r.ctx, r.log, r.src)
	if err != nil {
		r.err = fmt.Errorf("part header: %w", err)
		return nil, r.err
	}
	metrics.PartsInc()
	r.log.Debug("multipart part", slog.Int("fields", len(h.Fields)))
	r.cur = &Part{Header: h, body: content{r: r}}
	return r.cur, nil
}

func (r *MultipartReader) readEpilogue() error {
	if r.Epilogue != nil {
		return nil
	}
	r.Epilogue = []byte{}
	for {
		w := r.src.Window()
		r.Epilogue = append(r.Epilogue, w...)
		r.src.Skip(len(w))
		if r.eof {
			return nil
		}
		if err := r.src.Fill(r.ctx); errors.Is(err, io.EOF) {
			r.eof = true
		} else if err != nil {
			r.err = err
			return err
		}
	}
}

// MultipartWriter writes a multipart body.
type MultipartWriter struct {
	w        io.Writer
	boundary string
	parts    int
}

// NewMultipartWriter returns a writer with a random boundary.
func NewMultipartWriter(w io.Writer) *MultipartWriter {
	var buf [24]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("reading random boundary: %v", err))
	}
	return &MultipartWriter{w: w, boundary: fmt.Sprintf("%x", buf[:])}
}

// Boundary returns the boundary, for the Content-Type field.
func (w *MultipartWriter) Boundary() string {
	return w.boundary
}

// SetBoundary sets the boundary, it must be set before the first part.
func (w *MultipartWriter) SetBoundary(b string) error {
	if w.parts > 0 {
		return fmt.Errorf("%w: boundary set after parts were written", ErrMultipart)
	}
	if err := checkBoundary(b); err != nil {
		return err
	}
	w.boundary = b
	return nil
}

// CreatePart writes a boundary and the header of a new part, and returns the
// writer for its content.
func (w *MultipartWriter) CreatePart(h Header) (io.Writer, error) {
	// The CRLF before a boundary belongs to the boundary. ../rfc/2046:1114
	sep := "\r\n--" + w.boundary + "\r\n"
	if w.parts == 0 {
		sep = sep[2:]
	}
	w.parts++
	if _, err := io.WriteString(w.w, sep); err != nil {
		return nil, err
	}
	if _, err := h.WriteTo(w.w); err != nil {
		return nil, err
	}
	return w.w, nil
}

// Close writes the closing boundary.
func (w *MultipartWriter) Close() error {
	_, err := io.WriteString(w.w, "\r\n--"+w.boundary+"--\r\n")
	return err
}
