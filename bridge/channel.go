package bridge

import (
	"net"
	"sync/atomic"
	"time"
)

// clientChannel wraps the accepted TCP connection to the TELNET client
// and exposes the byte-level operations the relay loop needs.
//
// readByte is called from the client pump goroutine while the write
// methods are called from the relay loop; net.Conn permits that split.
// No single method is safe for concurrent use with itself.
type clientChannel struct {
	conn   net.Conn
	cfg    *Config
	closed atomic.Bool

	rbuf [1]byte
	wbuf [1]byte
}

func newClientChannel(conn net.Conn, cfg *Config) *clientChannel {
	return &clientChannel{conn: conn, cfg: cfg}
}

// remoteAddr returns the client's address as a string.
func (ch *clientChannel) remoteAddr() string {
	return ch.conn.RemoteAddr().String()
}

// readByte blocks until one byte arrives from the client, the client
// disconnects (io.EOF), or the connection fails.
func (ch *clientChannel) readByte() (byte, error) {
	for {
		n, err := ch.conn.Read(ch.rbuf[:])
		if n > 0 {
			// a byte with a pending error: deliver the byte first, the
			// error resurfaces on the next call
			return ch.rbuf[0], nil
		}
		if err != nil {
			return 0, err
		}
	}
}

// writeByteNoWait attempts to hand one byte to the kernel without
// waiting longer than the configured send retry interval.
//
// It returns nil when the byte was accepted, ErrWouldBlock when the
// client channel could not take it in time, and the underlying error on
// a transport fault. A would-block outcome never consumes the byte; the
// caller retries the same byte.
func (ch *clientChannel) writeByteNoWait(b byte) error {
	ch.wbuf[0] = b

	if err := ch.conn.SetWriteDeadline(time.Now().Add(ch.cfg.sendRetryInterval)); err != nil {
		return err
	}

	n, err := ch.conn.Write(ch.wbuf[:])
	if n == 1 {
		// the deadline may have expired after the byte was accepted;
		// delivery wins
		return nil
	}

	if err != nil && isTimeoutError(err) {
		return ErrWouldBlock
	}
	if err != nil {
		return err
	}

	return ErrWouldBlock
}

// writeAll writes all bytes in data to the client within the given
// timeout. It is used for the option preamble, the only multi-byte write
// the bridge performs.
func (ch *clientChannel) writeAll(data []byte, timeout time.Duration) error {
	if err := ch.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}

	for written := 0; written < len(data); {
		n, err := ch.conn.Write(data[written:])
		written += n

		if err != nil {
			return err
		}
	}

	return nil
}

// close closes the underlying connection. It is idempotent; only the
// first call reaches the socket.
func (ch *clientChannel) close() error {
	if !ch.closed.CompareAndSwap(false, true) {
		return nil
	}

	return ch.conn.Close()
}
