package segment

import (
	"errors"
	"net/url"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/mjl-/mimecodec/token"
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

func TestEncoders(t *testing.T) {
	check := func(enc Encoder, src string, max int, exp Balance, expOut string) {
		t.Helper()
		b := enc.Estimate([]byte(src), max)
		tcompare(t, b, exp)
		out, eb := enc.Encode(nil, []byte(src), max)
		tcompare(t, eb, b)
		tcompare(t, string(out), expOut)
		tcompare(t, len(out), b.Produced)
	}

	check(Plain, "abc def", 10, Balance{3, 3}, "abc")
	check(Plain, "abcdef", 4, Balance{4, 4}, "abcd")
	check(Plain, " abc", 10, Balance{}, "")
	check(Plain, "a/b", 10, Balance{1, 1}, "a")

	check(Quoted, `a"b`, 10, Balance{6, 3}, `"a\"b"`)
	check(Quoted, `a"b`, 4, Balance{3, 1}, `"a"`)
	check(Quoted, "a\tb c", 10, Balance{7, 5}, "\"a\tb c\"")
	check(Quoted, "\r\n", 10, Balance{}, "")
	check(Quoted, "é", 10, Balance{}, "")
	check(Quoted, "ab", 2, Balance{}, "")

	check(Percent, "a é*", 20, Balance{13, 5}, "a%20%C3%A9%2A")
	check(Percent, "aé", 5, Balance{1, 1}, "a")
	check(Percent, "é", 5, Balance{3, 1}, "%C3")
	check(Percent, "é", 2, Balance{}, "")
	check(Percent, "\xff\xfe", 3, Balance{3, 1}, "%FF")
	check(Percent, "50%", 10, Balance{5, 3}, "50%25")

	tcompare(t, Plain.FindValid([]byte("é a")), 3)
	tcompare(t, Plain.FindValid([]byte("  ")), -1)
	tcompare(t, Quoted.FindValid([]byte("\x00\x01a")), 2)
	tcompare(t, Quoted.FindValid([]byte("é")), -1)
	tcompare(t, Percent.FindValid([]byte("é")), 0)
	tcompare(t, Percent.FindValid(nil), -1)

	tcompare(t, Quoted.PrologSize()+Quoted.EpilogSize(), 2)
	tcompare(t, Percent.Extended(), true)
	tcompare(t, Plain.Extended(), false)
}

// checkCover verifies chunks are contiguous and cover all of src.
func checkCover(t *testing.T, src []byte, chunks []Chunk) {
	t.Helper()
	o := 0
	for _, c := range chunks {
		if c.Offset != o || c.Length <= 0 {
			t.Fatalf("chunk %v at offset %d, expected offset %d", c, c.Offset, o)
		}
		o += c.Length
	}
	if o != len(src) {
		t.Fatalf("chunks cover %d bytes, expected %d", o, len(src))
	}
}

func TestPartition(t *testing.T) {
	check := func(name, value string, opts Options) []Chunk {
		t.Helper()
		src := []byte(value)
		chunks, stats, err := PartitionStats(len(name), src, opts)
		tcheck(t, err, "partition")
		checkCover(t, src, chunks)
		if stats.Nodes <= 1 || stats.Solutions == 0 {
			t.Fatalf("bad stats %v", stats)
		}
		if opts.Extended && chunks[0].Encoder != Percent {
			t.Fatalf("first chunk of extended value not percent-encoded, got %s", chunks[0].Encoder.Name())
		}
		for _, c := range chunks {
			if c.Encoder == Percent && !utf8.Valid(src[c.Offset:c.Offset+c.Length]) {
				t.Fatalf("utf-8 sequence split in chunk %v", c)
			}
		}
		return chunks
	}

	chunks := check("name", strings.Repeat("a", 200), Options{})
	tcompare(t, len(chunks), 3)
	for _, c := range chunks {
		tcompare(t, c.Encoder, Plain)
	}

	check("filename", strings.Repeat("é", 100), Options{Extended: true})
	check("filename", "this is a long file name with ü and ö and many words, enough to need multiple segments.pdf", Options{Extended: true})
	check("title", strings.Repeat("a b ", 60), Options{})
	check(strings.Repeat("n", 80), "value", Options{})

	chunks, err := Partition(4, nil, Options{})
	tcheck(t, err, "partition empty")
	tcompare(t, len(chunks), 0)

	_, err = Partition(4, []byte("a\x00b"), Options{})
	if !errors.Is(err, ErrNoAcceptableEncoding) {
		t.Fatalf("got err %v, expected ErrNoAcceptableEncoding", err)
	}
}

// decodeParam reassembles the value from the output of Param.
func decodeParam(t *testing.T, l []string) string {
	t.Helper()
	var b strings.Builder
	for i, s := range l {
		k, v, ok := strings.Cut(s, "=")
		if !ok {
			t.Fatalf("missing = in %q", s)
		}
		if strings.HasSuffix(k, "*") {
			if i == 0 {
				p := strings.SplitN(v, "'", 3)
				if len(p) != 3 {
					t.Fatalf("missing charset in %q", s)
				}
				v = p[2]
			}
			x, err := url.PathUnescape(v)
			tcheck(t, err, "unescape")
			b.WriteString(x)
		} else if strings.HasPrefix(v, `"`) {
			x, err := token.Unquote(v)
			tcheck(t, err, "unquote")
			b.WriteString(x)
		} else {
			b.WriteString(v)
		}
	}
	return b.String()
}

func TestParam(t *testing.T) {
	check := func(name, value string, opts Options, exp []string) {
		t.Helper()
		l, err := Param(name, value, opts)
		tcheck(t, err, "param")
		if exp != nil {
			tcompare(t, l, exp)
		}
		for _, s := range l {
			// Tab before, semicolon after.
			if len(s)+2 > MaxLineLength && len(name) < 40 {
				t.Fatalf("segment %q too long", s)
			}
		}
		if opts.Charset == "" {
			tcompare(t, decodeParam(t, l), value)
		}
	}

	check("charset", "utf-8", Options{}, []string{"charset=utf-8"})
	check("name", "a b", Options{}, []string{`name="a b"`})
	check("name", `a"b`, Options{}, []string{`name="a\"b"`})
	check("name", "", Options{}, []string{`name=""`})
	check("filename", "é.txt", Options{}, []string{"filename*=utf-8''%C3%A9.txt"})
	check("filename", "a.txt", Options{Extended: true, Language: "en"}, []string{"filename*=utf-8'en'a.txt"})
	check("name", "café", Options{Charset: "iso-8859-1"}, []string{"name*=iso-8859-1''caf%E9"})
	check("name", strings.Repeat("a", 200), Options{}, nil)
	check("filename", strings.Repeat("€uro ", 40), Options{}, nil)
	check("filename", "Quarterly report (draft) for the board, with comments from everyone involved.pdf", Options{}, nil)

	l, err := Param("name", strings.Repeat("é", 50), Options{})
	tcheck(t, err, "param")
	if len(l) < 2 || !strings.HasPrefix(l[0], "name*0*=utf-8''%C3%A9") || !strings.HasPrefix(l[1], "name*1*=") {
		t.Fatalf("unexpected segments %q", l)
	}

	_, err = Param("name", "x", Options{Charset: "x-bogus", Extended: true})
	if !errors.Is(err, token.ErrCharset) {
		t.Fatalf("got err %v, expected ErrCharset", err)
	}
}
