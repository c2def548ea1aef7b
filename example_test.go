package growpipe

import (
	"context"
	"fmt"
	"io"
	"os"
)

func ExamplePipe_Open() {
	p, err := New(WithInitialCapacity(16))
	if err != nil {
		panic(err)
	}
	defer p.Close()

	r, w := p.Open(context.Background())
	defer r.Close()

	go func() {
		defer w.Close()
		for i := range 5 {
			fmt.Fprintf(w, "message %d\n", i)
		}
	}()

	_, _ = io.Copy(os.Stdout, r)
	// Output:
	// message 0
	// message 1
	// message 2
	// message 3
	// message 4
}

func ExamplePipe_ReadByte() {
	p, err := New()
	if err != nil {
		panic(err)
	}
	defer p.Close()

	for _, c := range []byte("hi") {
		if err := p.WriteByte(c); err != nil {
			panic(err)
		}
	}
	a, _ := p.ReadByte()
	b, _ := p.ReadByte()
	fmt.Printf("%c%c %d\n", a, b, p.Len())
	// Output: hi 0
}
