package segment

import (
	"testing"
)

func FuzzPartition(f *testing.F) {
	f.Add([]byte("plain"), 4, false)
	f.Add([]byte("with space and \"quotes\""), 8, false)
	f.Add([]byte("naïve café ☕ 𝄞"), 8, true)
	f.Add([]byte("\x00\xff\xfe"), 1, true)
	f.Fuzz(func(t *testing.T, src []byte, nameLen int, extended bool) {
		if nameLen < 0 || nameLen > 200 || len(src) > 300 {
			return
		}
		if !printable(src) {
			extended = true
		}
		chunks, err := Partition(nameLen, src, Options{Extended: extended})
		if err != nil {
			t.Fatalf("partition: %v", err)
		}
		checkCover(t, src, chunks)
		for i, c := range chunks {
			s := &search{nameLen: nameLen, opts: Options{Extended: extended}.withDefaults()}
			buf, b := c.Encoder.Encode(nil, src[c.Offset:c.Offset+c.Length], s.capacity(c.Encoder, i))
			if b.Consumed != c.Length || len(buf) != b.Produced {
				t.Fatalf("chunk %v encodes as %v", c, b)
			}
		}
	})
}
