package main

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net"
	"time"

	"github.com/urfave/cli"

	"github.com/arloliu/go-telbridge/telnet"
)

// perform a healthcheck without requiring a TELNET client (used for
// Docker's HEALTHCHECK)
func healthcheck(addr string, wait, quiet bool) error {
	if wait {
		for {
			if err := healthcheckOnce(addr); err != nil {
				if !quiet {
					log.Printf("error: %v", err)
				}
				time.Sleep(time.Second)

				continue
			}

			return nil
		}
	}

	if err := healthcheckOnce(addr); err != nil {
		if quiet {
			return cli.NewExitError("", 1)
		}

		return err
	}

	return nil
}

// healthcheckOnce connects and verifies that the bridge greets with the
// TELNET option preamble. The probe occupies the session slot only for
// the duration of the read.
func healthcheckOnce(addr string) error {
	conn, err := net.DialTimeout("tcp", addr, 3*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(3 * time.Second)); err != nil {
		return err
	}

	banner := make([]byte, telnet.PreambleSize)
	if _, err := io.ReadFull(conn, banner); err != nil {
		return err
	}

	if !bytes.Equal(banner, telnet.Preamble()) {
		return fmt.Errorf("unexpected banner % X, want the TELNET option preamble", banner)
	}

	return nil
}
