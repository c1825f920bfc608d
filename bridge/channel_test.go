package bridge

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-telbridge/telnet"
)

func newTestChannel(t *testing.T) (*clientChannel, net.Conn) {
	t.Helper()

	cfg := newTestConfig(t, newFakeSerial())

	local, remote := net.Pipe()
	t.Cleanup(func() {
		_ = local.Close()
		_ = remote.Close()
	})

	return newClientChannel(local, cfg), remote
}

func TestClientChannel_ReadByte(t *testing.T) {
	ch, remote := newTestChannel(t)

	go mustWrite(t, remote, []byte{0x41})

	b, err := ch.readByte()
	require.NoError(t, err)
	assert.Equal(t, byte(0x41), b)
}

func TestClientChannel_ReadByteEOF(t *testing.T) {
	ch, remote := newTestChannel(t)

	require.NoError(t, remote.Close())

	_, err := ch.readByte()
	require.Error(t, err)
}

func TestClientChannel_WriteByteNoWaitDelivered(t *testing.T) {
	ch, remote := newTestChannel(t)

	got := make(chan byte, 1)
	go func() {
		buf := make([]byte, 1)
		if _, err := remote.Read(buf); err == nil {
			got <- buf[0]
		}
	}()

	// The reader may not be blocked in Read yet; retry as the relay
	// loop would.
	var err error
	for i := 0; i < 100; i++ {
		err = ch.writeByteNoWait(0x42)
		if err != ErrWouldBlock {
			break
		}
	}
	require.NoError(t, err)

	select {
	case b := <-got:
		assert.Equal(t, byte(0x42), b)
	case <-time.After(2 * time.Second):
		t.Fatal("byte never arrived at the client side")
	}
}

func TestClientChannel_WriteByteNoWaitWouldBlock(t *testing.T) {
	ch, _ := newTestChannel(t)

	// Nobody reads the remote side; the attempt must give up within the
	// send retry interval without consuming the byte.
	err := ch.writeByteNoWait(0x42)
	require.ErrorIs(t, err, ErrWouldBlock)
}

func TestClientChannel_WriteByteNoWaitAfterClose(t *testing.T) {
	ch, _ := newTestChannel(t)

	require.NoError(t, ch.close())

	err := ch.writeByteNoWait(0x42)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrWouldBlock)
}

func TestClientChannel_WriteAll(t *testing.T) {
	ch, remote := newTestChannel(t)

	preamble := telnet.Preamble()

	done := make(chan error, 1)
	go func() {
		done <- ch.writeAll(preamble, time.Second)
	}()

	got := readExactly(t, remote, len(preamble))
	assert.Equal(t, preamble, got)
	require.NoError(t, <-done)
}

func TestClientChannel_WriteAllTimeout(t *testing.T) {
	ch, _ := newTestChannel(t)

	err := ch.writeAll(telnet.Preamble(), 20*time.Millisecond)
	require.Error(t, err)
	assert.True(t, isTimeoutError(err))
}

func TestClientChannel_CloseIdempotent(t *testing.T) {
	ch, _ := newTestChannel(t)

	require.NoError(t, ch.close())
	require.NoError(t, ch.close())
}
