// Package corpus stores header sections from real messages along with their
// decoded fields, for checking that decoding does not change between versions.
package corpus

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/mjl-/bstore"

	"github.com/mjl-/mimecodec/mcvar"
	"github.com/mjl-/mimecodec/message"
	"github.com/mjl-/mimecodec/metrics"
	"github.com/mjl-/mimecodec/mlog"
	"github.com/mjl-/mimecodec/scan"
	"github.com/mjl-/mimecodec/workq"
)

var (
	ErrExists = errors.New("sample already in corpus")
	ErrPanic  = errors.New("panic while decoding")
)

// Field is a decoded header field.
type Field struct {
	Name  string
	Value string
}

// Sample is a header section in the corpus.
type Sample struct {
	ID      int64
	Created time.Time `bstore:"default now"`
	Name    string    `bstore:"index"` // E.g. file name it was added from.
	Hash    string    `bstore:"unique"` // SHA-256 of raw header section, hex.
	Size    int       // Of raw header section.
	Data    []byte    // Raw header section, zstd-compressed.
	Fields  []Field   // As decoded when added.
}

// DBTypes are the types stored in the database.
var DBTypes = []any{Sample{}}

// Corpus is an opened corpus database.
type Corpus struct {
	db  *bstore.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Open opens the corpus database at path, creating it if needed.
func Open(ctx context.Context, log mlog.Log, path string) (*Corpus, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0770); err != nil {
		return nil, fmt.Errorf("creating corpus directory: %w", err)
	}
	opts := bstore.Options{Timeout: 5 * time.Second, Perm: 0660, RegisterLogger: mcvar.RegisterLogger(path, log.Logger)}
	db, err := bstore.Open(ctx, path, &opts, DBTypes...)
	if err != nil {
		return nil, fmt.Errorf("open corpus database: %w", err)
	}
	// Zero-size writer/reader, only used with EncodeAll/DecodeAll.
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &Corpus{db, enc, dec}, nil
}

// Close closes the database.
func (c *Corpus) Close() error {
	c.dec.Close()
	return c.db.Close()
}

// load loads the header section from the start of buf, returning the fields and
// the size of the header section including the empty line.
//
// Samples are input found in the wild, a panic while decoding is turned into
// an error for that sample.
func load(ctx context.Context, log mlog.Log, buf []byte) (rfields []Field, rsize int, rerr error) {
	defer func() {
		x := recover()
		if x == nil {
			return
		}
		log.Error("unhandled panic while decoding header", slog.Any("err", x))
		debug.PrintStack()
		metrics.PanicInc("corpus")
		rerr = fmt.Errorf("%w: %v", ErrPanic, x)
	}()

	r := bytes.NewReader(buf)
	src := scan.NewReader(r, 0)
	h, err := message.LoadHeader(ctx, log, src)
	if err != nil {
		return nil, 0, err
	}
	size := len(buf) - len(src.Window()) - r.Len()
	fields := make([]Field, len(h.Fields))
	for i, f := range h.Fields {
		fields[i] = Field{f.Name, f.Value}
	}
	return fields, size, nil
}

// Add loads the header section of msg, and stores it with its decoded fields.
// If the header section is already present, ErrExists is returned.
func (c *Corpus) Add(ctx context.Context, log mlog.Log, name string, msg []byte) (Sample, error) {
	fields, size, err := load(ctx, log, msg)
	if err != nil {
		return Sample{}, fmt.Errorf("loading header: %w", err)
	}
	raw := msg[:size]
	sum := sha256.Sum256(raw)
	s := Sample{
		Name:   name,
		Hash:   hex.EncodeToString(sum[:]),
		Size:   size,
		Data:   c.enc.EncodeAll(raw, nil),
		Fields: fields,
	}
	err = c.db.Insert(ctx, &s)
	if err != nil && errors.Is(err, bstore.ErrUnique) {
		return Sample{}, fmt.Errorf("%w: %s", ErrExists, s.Hash)
	} else if err != nil {
		return Sample{}, fmt.Errorf("inserting sample: %w", err)
	}
	log.Debug("sample added", slog.Int64("id", s.ID), slog.String("name", name), slog.Int("size", size), slog.Int("compressed", len(s.Data)))
	return s, nil
}

// Raw returns the uncompressed header section of s.
func (c *Corpus) Raw(s Sample) ([]byte, error) {
	buf, err := c.dec.DecodeAll(s.Data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing sample %d: %w", s.ID, err)
	}
	return buf, nil
}

// Get returns the sample with id.
func (c *Corpus) Get(ctx context.Context, id int64) (Sample, error) {
	s := Sample{ID: id}
	err := c.db.Get(ctx, &s)
	return s, err
}

// List returns all samples, in order of addition.
func (c *Corpus) List(ctx context.Context) ([]Sample, error) {
	return bstore.QueryDB[Sample](ctx, c.db).SortAsc("ID").List()
}

// Mismatch is a sample for which decoding now gives different fields.
type Mismatch struct {
	Sample Sample
	Fields []Field // As decoded now.
	Err    error   // If decoding now fails.
}

// Check decodes all samples again, returning those for which the result
// differs from when they were added. Samples are decoded concurrently.
func (c *Corpus) Check(ctx context.Context, log mlog.Log) ([]Mismatch, error) {
	type result struct {
		fields []Field
		err    error
	}
	prepare := func(s Sample) (result, error) {
		raw, err := c.Raw(s)
		if err != nil {
			return result{}, err
		}
		fields, _, err := load(ctx, log, raw)
		return result{fields, err}, nil
	}
	var l []Mismatch
	process := func(s Sample, r result) error {
		if r.err != nil {
			l = append(l, Mismatch{s, nil, r.err})
		} else if !equal(r.fields, s.Fields) {
			l = append(l, Mismatch{s, r.fields, nil})
		}
		return nil
	}

	procs := runtime.GOMAXPROCS(0)
	q := workq.New(procs, 2*procs, prepare, process)
	defer q.Stop()
	err := bstore.QueryDB[Sample](ctx, c.db).SortAsc("ID").ForEach(func(s Sample) error {
		return q.Add(s)
	})
	if err == nil {
		err = q.Finish()
	}
	return l, err
}

func equal(a, b []Field) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
