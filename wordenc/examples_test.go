package wordenc_test

import (
	"fmt"
	"log"

	"github.com/mjl-/mimecodec/wordenc"
)

func ExampleEncoder() {
	e, err := wordenc.New([]byte("Grüße aus Köln, sent from my phone"), wordenc.Options{})
	if err != nil {
		log.Fatalf("new encoder: %v", err)
	}
	for {
		c, ok := e.Next()
		if !ok {
			break
		}
		fmt.Printf("%q %q %v\n", c.Sep, c.Text, c.Encoded)
	}
	// Output:
	// "" "=?UTF-8?B?R3LDvMOfZSBhdXMgS8O2bG4s?=" true
	// " " "sent" false
	// " " "from" false
	// " " "my" false
	// " " "phone" false
}
