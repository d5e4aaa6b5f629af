package scan

import (
	"bytes"
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
	"testing/iotest"
)

func tcheck(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %s", msg, err)
	}
}

func tcompare(t *testing.T, got, exp any) {
	t.Helper()
	if !reflect.DeepEqual(got, exp) {
		t.Fatalf("got %v, expected %v", got, exp)
	}
}

// validateChunked feeds buf to s one byte at a time, as if it arrives slowly.
func validateChunked(s Scanner, buf []byte) int {
	var n int
	for k := 0; k <= len(buf); k++ {
		n = s.Validate(buf[:k], n, k == len(buf))
		if s.Terminator() >= 0 {
			break
		}
	}
	return n
}

type fieldResult struct {
	Content     string
	Terminator  int
	EndOfHeader bool
	Lines       int
}

func TestFieldScanner(t *testing.T) {
	check := func(input string, exp fieldResult) {
		t.Helper()
		s := NewFieldScanner()
		n := s.Validate([]byte(input), 0, true)
		tcompare(t, fieldResult{input[:n], s.TerminatorLength, s.EndOfHeader, s.Lines}, exp)

		s.Reset()
		n = validateChunked(s, []byte(input))
		tcompare(t, fieldResult{input[:n], s.TerminatorLength, s.EndOfHeader, s.Lines}, exp)
	}

	check("Subject: foo\r\n bar\r\n", fieldResult{"Subject: foo\r\n bar", 2, true, 1})
	check("a: b\r\nc: d\r\n\r\nbody", fieldResult{"a: b", 2, false, 0})
	check("c: d\r\n\r\nbody", fieldResult{"c: d", 4, true, 0})
	check("a: b\r\n\r\n\r\nbody", fieldResult{"a: b", 6, true, 0})
	check("a: b\r\n\t\tc\r\n d\r\ne: f", fieldResult{"a: b\r\n\t\tc\r\n d", 2, false, 2})
	check("\r\nbody", fieldResult{"", 2, true, 0})
	check("a: b", fieldResult{"a: b", 0, true, 0})
	check("", fieldResult{"", 0, true, 0})
	check("a: b\r\n\r\n body", fieldResult{"a: b", 2, false, 0})
	check("\r\n body", fieldResult{"", 2, true, 0})
	check("a: b\rc\r\nd: e", fieldResult{"a: b\rc", 2, false, 0})
	check("a: b\nc\r\nd: e", fieldResult{"a: b\nc", 2, false, 0})
	check("a: b\r", fieldResult{"a: b\r", 0, true, 0})

	// Without more data, a CRLF at the end cannot be judged yet.
	s := NewFieldScanner()
	n := s.Validate([]byte("a: b\r\n"), 0, false)
	tcompare(t, n, 4)
	tcompare(t, s.TerminatorLength, -1)
	n = s.Validate([]byte("a: b\r\n c\r"), n, false)
	tcompare(t, n, 8)
	tcompare(t, s.TerminatorLength, -1)
	n = s.Validate([]byte("a: b\r\n c\r\nd"), n, false)
	tcompare(t, n, 8)
	tcompare(t, s.TerminatorLength, 2)
	tcompare(t, s.Lines, 1)
}

type partResult struct {
	Content    string
	Terminator int
	Closing    bool
}

func TestPartScanner(t *testing.T) {
	check := func(boundary, input string, exp partResult) {
		t.Helper()
		s := NewPartScanner(boundary)
		n := s.Validate([]byte(input), 0, true)
		tcompare(t, partResult{input[:n], s.TerminatorLength, s.Closing}, exp)

		s.Reset()
		n = validateChunked(s, []byte(input))
		tcompare(t, partResult{input[:n], s.TerminatorLength, s.Closing}, exp)
	}

	// The stream is split into its parts.
	stream := "part1\r\n--XYZ\r\npart2\r\n--XYZ--\r\n"
	check("XYZ", stream, partResult{"part1", 9, false})
	check("XYZ", stream[len("part1")+9:], partResult{"part2", 11, true})

	check("XYZ", "--XYZ\r\npart", partResult{"", 7, false})
	check("XYZ", "a\r\n--XYZ--", partResult{"a", 9, true})
	check("XYZ", "a\r\n--XYZ \t\r\nb", partResult{"a", 11, false})
	check("XYZ", "a\r\n--XYZ-- \r\n", partResult{"a", 12, true})
	check("XYZ", "a\r\n\r\n--XYZ\r\n", partResult{"a\r\n", 9, false})

	// Not boundaries.
	check("XYZ", "a --XYZ\r\nb", partResult{"a --XYZ\r\nb", -1, false})
	check("XYZ", "a\r\n--XYZW\r\nb", partResult{"a\r\n--XYZW\r\nb", -1, false})
	check("XYZ", "a\r\n--XYZ-\r\nb", partResult{"a\r\n--XYZ-\r\nb", -1, false})
	check("XYZ", "a\r\n--XYZ x\r\nb", partResult{"a\r\n--XYZ x\r\nb", -1, false})
	check("XYZ", "a\r\n--XY", partResult{"a\r\n--XY", -1, false})
	check("XYZ", "a\n--XYZ\nb", partResult{"a\n--XYZ\nb", -1, false})
	check("XYZ", "", partResult{"", -1, false})

	// A possible boundary line holds back the content before it.
	s := NewPartScanner("XYZ")
	n := s.Validate([]byte("abc\r\n--X"), 0, false)
	tcompare(t, n, 3)
	n = s.Validate([]byte("abc\r\n--XYZ"), n, false)
	tcompare(t, n, 3)
	tcompare(t, s.TerminatorLength, -1)
	n = s.Validate([]byte("abc\r\n--XYA"), n, false)
	tcompare(t, n, 10)

	// After consuming content, the window does not start at a line.
	s = NewPartScanner("XYZ")
	s.Continued = true
	n = s.Validate([]byte("--XYZ\r\n"), 0, true)
	tcompare(t, n, 8)
	tcompare(t, s.TerminatorLength, -1)
	s.Reset()
	tcompare(t, s.Continued, false)
}

func TestReader(t *testing.T) {
	ctx := context.Background()
	data := strings.Repeat("0123456789", 1000)
	r := NewReader(iotest.OneByteReader(strings.NewReader(data)), 0)
	var out bytes.Buffer
	for {
		err := r.Fill(ctx)
		if err == io.EOF {
			break
		}
		tcheck(t, err, "fill")
		w := r.Window()
		if len(w) >= 3 {
			tcheck(t, r.CopyTo(&out, 2), "copy")
			r.Skip(0)
		}
	}
	tcheck(t, r.CopyTo(&out, len(r.Window())), "copy rest")
	tcompare(t, r.Exhausted(), true)
	tcompare(t, out.String(), data)

	// Window is bounded.
	r = NewReader(strings.NewReader(data), 4096)
	var err error
	for err == nil {
		err = r.Fill(ctx)
	}
	if !errors.Is(err, ErrWindowFull) {
		t.Fatalf("got err %v, expected ErrWindowFull", err)
	}
	tcompare(t, len(r.Window()), 4096)

	// Context is checked on fill.
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	r = NewReader(strings.NewReader(data), 0)
	err = r.Fill(cctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got err %v, expected context.Canceled", err)
	}
}

func TestScan(t *testing.T) {
	ctx := context.Background()
	data := "Subject: foo\r\n bar\r\nTo: x@example.org\r\n\r\nbody\r\n"
	src := NewReader(iotest.HalfReader(strings.NewReader(data)), 0)
	fs := NewFieldScanner()
	n, err := Scan(ctx, src, fs, 1000)
	tcheck(t, err, "scan")
	tcompare(t, string(src.Window()[:n]), "Subject: foo\r\n bar")
	tcompare(t, fs.TerminatorLength, 2)
	src.Skip(n + fs.TerminatorLength)

	fs.Reset()
	n, err = Scan(ctx, src, fs, 1000)
	tcheck(t, err, "scan")
	tcompare(t, string(src.Window()[:n]), "To: x@example.org")
	tcompare(t, fs.EndOfHeader, true)

	fs.Reset()
	src = NewReader(strings.NewReader("X: "+strings.Repeat("x", 100)+"\r\n"), 0)
	_, err = Scan(ctx, src, fs, 50)
	if !errors.Is(err, ErrLimit) {
		t.Fatalf("got err %v, expected ErrLimit", err)
	}

	// Multipart, with preamble.
	data = "preamble\r\n--b\r\none\r\n--b\r\ntwo\r\n--b--\r\nepilogue"
	src = NewReader(iotest.OneByteReader(strings.NewReader(data)), 0)
	ps := NewPartScanner("b")
	var parts []string
	for {
		ps.Reset()
		n, err := Scan(ctx, src, ps, 1000)
		tcheck(t, err, "scan part")
		parts = append(parts, string(src.Window()[:n]))
		if ps.TerminatorLength < 0 {
			break
		}
		src.Skip(n + ps.TerminatorLength)
		if ps.Closing {
			n := len(src.Window())
			for !src.Exhausted() {
				if err := src.Fill(ctx); err == io.EOF {
					break
				}
				n = len(src.Window())
			}
			parts = append(parts, string(src.Window()[:n]))
			break
		}
	}
	tcompare(t, parts, []string{"preamble", "one", "two", "epilogue"})
}
