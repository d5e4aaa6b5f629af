package segment

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mjl-/mimecodec/charclass"
	"github.com/mjl-/mimecodec/metrics"
	"github.com/mjl-/mimecodec/token"
)

// ErrNoAcceptableEncoding is returned when no encoder can encode some part of
// a value, e.g. a control character in a value that is not extended.
var ErrNoAcceptableEncoding = errors.New("no acceptable encoding")

const (
	MaxLineLength      = 78  // Recommended. ../rfc/5322:378
	RequiredLineLength = 998 // Required. ../rfc/5322:365

	// MaxNodes bounds the number of segment nodes considered in a search.
	MaxNodes = 1 << 16

	// Room needed in a line for a 4-byte UTF-8 sequence, percent-encoded. With
	// less, RequiredLineLength is used instead of MaxLineLength.
	minCapacity = 12
)

// Options for partitioning and formatting a parameter value.
type Options struct {
	MaxLineLength int    // Default MaxLineLength.
	Charset       string // Default "utf-8".
	Language      string // Optional RFC 2231 language tag.

	// Extended forces RFC 2231 encoding with charset, with the first segment
	// percent-encoded. Values with bytes other than printable ASCII are always
	// extended.
	Extended bool
}

func (o Options) withDefaults() Options {
	if o.MaxLineLength <= 0 {
		o.MaxLineLength = MaxLineLength
	}
	if o.Charset == "" {
		o.Charset = "utf-8"
	}
	return o
}

// Chunk is a span of a value encoded with a single encoder, in a single segment.
type Chunk struct {
	Encoder Encoder
	Offset  int
	Length  int
}

// Stats describes the work done by a search.
type Stats struct {
	Nodes     int // Nodes in the search tree, including the root.
	Solutions int // Complete partitions found.
}

// node in the search tree. The end of the value covered by the chain of
// parents is offset+length.
type node struct {
	enc    Encoder
	offset int
	length int
	total  int // Framed size of this segment and all its parents.
	segno  int
	parent int // Index in arena, -1 for root.
}

type search struct {
	src       []byte
	nameLen   int
	opts      Options
	arena     []node
	frontier  []int
	best      int
	bestTotal int
	full      bool

	// Lowest total seen for a (end offset, segment number). Nodes with the same
	// end and segment number have the same continuations, only the cheapest
	// needs expanding.
	seen  map[[2]int]int
	stats Stats
}

func digits(n int) int {
	return len(strconv.Itoa(n))
}

// overhead is the size of a segment excluding the encoded value, for a line
// like "\tname*12*=utf-8'en'...;".
func (s *search) overhead(enc Encoder, segno int) int {
	n := 1 + s.nameLen + 1 + digits(segno) + 1 + 1
	if enc.Extended() {
		n++
	}
	if segno == 0 && s.opts.Extended {
		n += len(s.opts.Charset) + 1 + len(s.opts.Language) + 1
	}
	return n
}

func (s *search) capacity(enc Encoder, segno int) int {
	o := s.overhead(enc, segno)
	if c := s.opts.MaxLineLength - o; c >= minCapacity {
		return c
	}
	return RequiredLineLength - o
}

var (
	extendedFirst = []Encoder{Percent}
	extendedNext  = []Encoder{Plain, Quoted, Percent}
	unextended    = []Encoder{Plain, Quoted}
)

func (s *search) candidates(segno int) []Encoder {
	if !s.opts.Extended {
		return unextended
	} else if segno == 0 {
		return extendedFirst
	}
	return extendedNext
}

func (s *search) push(n node) {
	if n.total >= s.bestTotal {
		return
	}
	end := n.offset + n.length
	key := [2]int{end, n.segno}
	if t, ok := s.seen[key]; ok && t <= n.total {
		return
	}
	if len(s.arena) >= MaxNodes {
		s.full = true
		return
	}
	s.seen[key] = n.total
	s.arena = append(s.arena, n)
	i := len(s.arena) - 1
	if end == len(s.src) {
		s.stats.Solutions++
		s.best = i
		s.bestTotal = n.total
		return
	}
	s.frontier = append(s.frontier, i)
}

// expand pushes nodes for the segments that can follow node i.
func (s *search) expand(i int) {
	n := s.arena[i]
	start := n.offset + n.length
	segno := n.segno + 1
	rest := s.src[start:]
	for _, enc := range s.candidates(segno) {
		b := enc.Estimate(rest, s.capacity(enc, segno))
		if b.Consumed > 0 {
			s.push(node{enc, start, b.Consumed, n.total + s.overhead(enc, segno) + b.Produced, segno, i})
			continue
		}

		// This encoder cannot start here. Let the others encode up to where it
		// could start, so it gets a chance at the remainder.
		p := enc.FindValid(rest)
		if p <= 0 {
			continue
		}
		for _, other := range s.candidates(segno) {
			if other == enc {
				continue
			}
			ob := other.Estimate(rest[:p], s.capacity(other, segno))
			if ob.Consumed == 0 {
				continue
			}
			s.push(node{other, start, ob.Consumed, n.total + s.overhead(other, segno) + ob.Produced, segno, i})
		}
	}
}

// Partition splits src, the value of a parameter with a name of nameLen bytes,
// into chunks that each fit in a line of opts.MaxLineLength as a separate RFC
// 2231 segment, minimizing the total framed size.
//
// The chunks are contiguous and cover all of src. An empty src results in no
// chunks.
func Partition(nameLen int, src []byte, opts Options) ([]Chunk, error) {
	l, _, err := PartitionStats(nameLen, src, opts)
	return l, err
}

// PartitionStats is like Partition, but also returns statistics about the search.
func PartitionStats(nameLen int, src []byte, opts Options) ([]Chunk, Stats, error) {
	if len(src) == 0 {
		return nil, Stats{}, nil
	}
	s := &search{
		src:       src,
		nameLen:   nameLen,
		opts:      opts.withDefaults(),
		best:      -1,
		bestTotal: math.MaxInt,
		seen:      map[[2]int]int{},
	}
	s.arena = append(s.arena, node{segno: -1, parent: -1})
	s.frontier = append(s.frontier, 0)
	for len(s.frontier) > 0 && !s.full {
		i := s.frontier[len(s.frontier)-1]
		s.frontier = s.frontier[:len(s.frontier)-1]
		n := s.arena[i]
		if n.total >= s.bestTotal {
			continue
		}
		if i > 0 && s.seen[[2]int{n.offset + n.length, n.segno}] < n.total {
			continue
		}
		s.expand(i)
	}
	s.stats.Nodes = len(s.arena)
	if s.best < 0 {
		if s.full {
			return nil, s.stats, fmt.Errorf("%w: search limit of %d nodes reached", ErrNoAcceptableEncoding, MaxNodes)
		}
		return nil, s.stats, ErrNoAcceptableEncoding
	}

	var l []Chunk
	for i := s.best; i > 0; i = s.arena[i].parent {
		n := s.arena[i]
		l = append(l, Chunk{n.enc, n.offset, n.length})
	}
	for i, j := 0, len(l)-1; i < j; i, j = i+1, j-1 {
		l[i], l[j] = l[j], l[i]
	}
	return l, s.stats, nil
}

func printable(src []byte) bool {
	for _, c := range src {
		if !quotable(c) {
			return false
		}
	}
	return true
}

// Param returns the parameter name and value as one or more "name=value"
// strings, without separating semicolons. A single "name=token" or
// `name="quoted"` is returned when the value is printable ASCII and fits in a
// line. Otherwise RFC 2231 segments are returned, e.g. "name*0*=utf-8''%C3%A9",
// "name*1=abc". ../rfc/2231:161
func Param(name, value string, opts Options) ([]string, error) {
	opts = opts.withDefaults()
	src := []byte(value)
	fits := func(n int) bool {
		return 1+len(name)+1+n+1 <= opts.MaxLineLength
	}
	ascii := printable(src)
	if ascii && !opts.Extended {
		if len(src) > 0 && charclass.Token.All(src) && fits(len(src)) {
			return []string{name + "=" + value}, nil
		}
		if q := token.Quote(value); len(src) == 0 || fits(len(q)) {
			return []string{name + "=" + q}, nil
		}
	}
	if !ascii {
		opts.Extended = true
	}
	if opts.Extended {
		enc, err := token.Charset(opts.Charset)
		if err != nil {
			return nil, err
		} else if enc != nil {
			src, err = enc.NewEncoder().Bytes(src)
			if err != nil {
				return nil, fmt.Errorf("encoding value to charset %q: %w", opts.Charset, err)
			}
		}
	}

	chunks, stats, err := PartitionStats(len(name), src, opts)
	metrics.SegmentSearchObserve(stats.Nodes)
	if err != nil {
		return nil, err
	}
	prefix := opts.Charset + "'" + opts.Language + "'"
	if len(chunks) == 1 && opts.Extended {
		buf, _ := Percent.Encode(nil, src, math.MaxInt32)
		return []string{name + "*=" + prefix + string(buf)}, nil
	}
	l := make([]string, len(chunks))
	for i, c := range chunks {
		var b strings.Builder
		b.WriteString(name)
		b.WriteString("*")
		b.WriteString(strconv.Itoa(i))
		if c.Encoder.Extended() {
			b.WriteString("*")
		}
		b.WriteString("=")
		if i == 0 && opts.Extended {
			b.WriteString(prefix)
		}
		buf, _ := c.Encoder.Encode(nil, src[c.Offset:c.Offset+c.Length], math.MaxInt32)
		b.Write(buf)
		l[i] = b.String()
	}
	return l, nil
}
