package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	oi "github.com/reiver/go-oi"
	telnet "github.com/reiver/go-telnet"
)

// consoleCaller attaches the local terminal to the bridge. Output from
// the retro machine streams to stdout while stdin is sent line by line.
type consoleCaller struct{}

func (caller consoleCaller) CallTELNET(ctx telnet.Context, w telnet.Writer, r telnet.Reader) {
	go func(writer io.Writer, reader io.Reader) {
		var buffer [1]byte // a larger buffer would sit on partial console output
		p := buffer[:]

		for {
			n, err := reader.Read(p)
			if n <= 0 && err == nil {
				continue
			} else if n <= 0 && err != nil {
				break
			}

			if _, err = oi.LongWrite(writer, p); err != nil {
				log.Printf("telnet longwrite failed: %v", err)
			}
		}
	}(os.Stdout, r)

	var buffer bytes.Buffer
	var p []byte

	// A bare carriage return travels as CR NUL on the wire; the bridge
	// drops the NUL before it reaches the console.
	var crnulBuffer = [2]byte{'\r', 0}
	crnul := crnulBuffer[:]

	scanner := bufio.NewScanner(os.Stdin)

	for scanner.Scan() {
		buffer.Write(scanner.Bytes())
		buffer.Write(crnul)

		p = buffer.Bytes()

		n, err := oi.LongWrite(w, p)
		if err != nil {
			break
		}
		if expected, actual := int64(len(p)), n; expected != actual {
			err := fmt.Errorf("transmission problem: tried sending %d bytes, but actually only sent %d bytes", expected, actual)
			fmt.Fprintln(os.Stderr, err.Error())

			return
		}
		buffer.Reset()
	}

	// Give late console output a moment to drain to stdout.
	time.Sleep(3 * time.Millisecond)
}

func client(addr string) error {
	return telnet.DialToAndCall(addr, consoleCaller{})
}
