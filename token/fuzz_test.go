package token

import (
	"testing"

	"github.com/mjl-/mimecodec/charclass"
)

func FuzzNext(f *testing.F) {
	f.Add([]byte(`"Joe Q. Public" <joe@example.org>, (comment (nested)) a.b.c`), true)
	f.Add([]byte(`text/plain; charset="utf-8"; name*0*=utf-8''%C3%A9`), false)
	f.Add([]byte(`=?UTF-8?Q?Hello=2C_World!?= [1.2.3.4] <"a>b"@x>`), true)
	f.Add([]byte(`(((\)`), false)
	f.Fuzz(func(t *testing.T, src []byte, dotJoin bool) {
		for _, class := range []charclass.Class{charclass.Atom, charclass.Token} {
			var first []Token
			for round := 0; round < 2; round++ {
				cursor := 0
				var l []Token
				prevEnd := 0
				for {
					before := cursor
					tok, err := Next(src, class, dotJoin, &cursor)
					if err != nil {
						if cursor != before {
							t.Fatalf("cursor moved on error")
						}
						break
					} else if !tok.Valid() {
						if cursor != len(src) {
							t.Fatalf("end of input at cursor %d, len %d", cursor, len(src))
						}
						break
					}
					if tok.Offset < prevEnd || tok.Length <= 0 || tok.End() > len(src) || cursor != tok.End() {
						t.Fatalf("bad token %v, prevEnd %d, cursor %d, len %d", tok, prevEnd, cursor, len(src))
					}
					if !charclass.FWS.All(src[prevEnd:tok.Offset]) {
						t.Fatalf("skipped non-whitespace before %v", tok)
					}
					prevEnd = tok.End()
					l = append(l, tok)
				}
				if round == 0 {
					first = l
				} else if len(first) != len(l) {
					t.Fatalf("tokenization not idempotent")
				}
			}
			DecodePhrase(src)
			DecodeText(src)
			Normalize(src, class, dotJoin)
		}
	})
}
