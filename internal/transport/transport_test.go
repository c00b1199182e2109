package transport

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipePort adapts a net.Conn (from net.Pipe) to the Port interface; used to
// simulate a modem without a real serial device.
type pipePort struct {
	net.Conn
}

func newTransport(t *testing.T) (*Transport, *bufio.Reader, net.Conn) {
	t.Helper()
	client, modem := net.Pipe()
	tr := &Transport{
		cmdPort:    pipePort{client},
		notifyPort: pipePort{client},
		cmdReader:  bufio.NewReader(client),
		closed:     make(chan struct{}),
		Timeout:    2 * time.Second,
	}
	return tr, bufio.NewReader(modem), modem
}

func TestSendOK(t *testing.T) {
	t.Parallel()

	tr, modemReader, modem := newTransport(t)
	defer tr.Close()

	go func() {
		line, _ := modemReader.ReadString('\n')
		require.Equal(t, "AT+CMGF=0\r\n", line)
		modem.Write([]byte("\r\nOK\r\n"))
	}()

	reply, err := tr.Send("AT+CMGF=0")
	require.NoError(t, err)
	assert.Empty(t, reply)
}

func TestSendCmsError(t *testing.T) {
	t.Parallel()

	tr, modemReader, modem := newTransport(t)
	defer tr.Close()

	go func() {
		modemReader.ReadString('\n')
		modem.Write([]byte("\r\n+CMS ERROR: 500\r\n"))
	}()

	_, err := tr.Send("AT+CMGS=10")
	require.Error(t, err)
	var modemErr *ModemError
	require.ErrorAs(t, err, &modemErr)
	assert.Equal(t, "+CMS ERROR: 500", modemErr.Line)
}

func TestSendPDU(t *testing.T) {
	t.Parallel()

	tr, modemReader, modem := newTransport(t)
	defer tr.Close()

	go func() {
		line, _ := modemReader.ReadString('\n')
		require.Equal(t, "AT+CMGS=17\r\n", line)
		modem.Write([]byte("\r\n> "))

		pdu, _ := modemReader.ReadString('\x1A')
		require.Equal(t, "0011...\x1A", pdu)
		modem.Write([]byte("\r\nOK\r\n"))
	}()

	_, err := tr.SendPDU("AT+CMGS=17", "0011...")
	require.NoError(t, err)
}

func TestWatchDispatchesUnsolicitedLines(t *testing.T) {
	t.Parallel()

	tr, _, modem := newTransport(t)
	defer tr.Close()

	lines := make(chan string, 2)
	go tr.Watch(func(line string) { lines <- line })

	modem.Write([]byte("+CMT: ,23\r\n0011...\r\n"))

	select {
	case line := <-lines:
		assert.Equal(t, "+CMT: ,23", line)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for watch callback")
	}
}
