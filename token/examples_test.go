package token_test

import (
	"fmt"
	"log"

	"github.com/mjl-/mimecodec/charclass"
	"github.com/mjl-/mimecodec/token"
)

func ExampleNext() {
	src := []byte(`"Joe Q. Public" (work) <joe@example.org>`)
	cursor := 0
	for {
		t, err := token.Next(src, charclass.Atom, true, &cursor)
		if err != nil {
			log.Fatalf("next token: %v", err)
		} else if !t.Valid() {
			break
		}
		fmt.Printf("%s %s\n", t.Kind, t.Bytes(src))
	}
	// Output:
	// quoted "Joe Q. Public"
	// comment (work)
	// angle <joe@example.org>
}

func ExampleDecodePhrase() {
	s, err := token.DecodePhrase([]byte(`=?utf-8?q?Andr=C3=A9?= =?utf-8?q?_Pirard?= (ULB)`))
	if err != nil {
		log.Fatalf("decode phrase: %v", err)
	}
	fmt.Println(s)
	// Output: André Pirard
}

func ExampleDecodeText() {
	s, err := token.DecodeText([]byte(" =?UTF-8?Q?Hello=2C_World!?=\r\n (again)"))
	if err != nil {
		log.Fatalf("decode text: %v", err)
	}
	fmt.Printf("%q\n", s)
	// Output: " Hello, World! (again)"
}
