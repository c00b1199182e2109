// Package transport drives the serial AT-command connection to the modem:
// a command port used for synchronous request/response transactions, and a
// notification port the modem uses to push unsolicited result codes (URCs)
// such as +CMT: for incoming messages. The two are serialized only where
// they must be: writes to the command port are guarded by a mutex, while
// reads off the notification port run freely on their own goroutine.
package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/tarm/goserial"
)

// Sep is the line terminator the modem expects after each AT command.
const Sep = "\r\n"

// Sub is Ctrl-Z, the terminator for a PDU submitted after a CMGS prompt.
const Sub = "\x1A"

// Esc aborts an interactive command (used if the prompt handshake fails).
const Esc = "\x1B"

// DefaultTimeout bounds how long a single AT transaction may run before
// the connection is presumed wedged.
const DefaultTimeout = 30 * time.Second

// Sentinel errors surfaced by this package.
var (
	ErrClosed  = errors.New("transport: closed")
	ErrTimeout = errors.New("transport: command timed out")
)

// ModemError wraps a final result line reported by the modem itself
// (+CMS ERROR or +CME ERROR), as opposed to a connection-level failure.
type ModemError struct {
	Line string
}

func (e *ModemError) Error() string { return "transport: modem reported: " + e.Line }

// Port is the minimal surface this package needs from a serial connection;
// satisfied by *goserial.Port and by fakes in tests.
type Port interface {
	io.ReadWriteCloser
}

// Transport owns the two serial connections to one modem.
type Transport struct {
	Timeout time.Duration

	cmdPort    Port
	notifyPort Port
	cmdReader  *bufio.Reader

	mu     sync.Mutex
	closed chan struct{}
	once   sync.Once
}

// Open opens the command and notification serial ports at the given baud
// rate. The two may be the same device name for modems that multiplex both
// roles over a single port.
func Open(commandDevice, notifyDevice string, baud int) (*Transport, error) {
	cmdPort, err := goserial.OpenPort(&goserial.Config{Name: commandDevice, Baud: baud})
	if err != nil {
		return nil, fmt.Errorf("transport: open command port: %w", err)
	}

	var notifyPort Port = cmdPort
	if notifyDevice != commandDevice {
		notifyPort, err = goserial.OpenPort(&goserial.Config{Name: notifyDevice, Baud: baud})
		if err != nil {
			cmdPort.Close()
			return nil, fmt.Errorf("transport: open notify port: %w", err)
		}
	}

	return New(cmdPort, notifyPort), nil
}

// New wraps already-open command and notification ports in a Transport.
// Open is the usual entry point for a real modem; New is exported so
// callers that already hold a Port (or a test fake satisfying it) can build
// a Transport without going through a real serial device.
func New(cmdPort, notifyPort Port) *Transport {
	return &Transport{
		cmdPort:    cmdPort,
		notifyPort: notifyPort,
		cmdReader:  bufio.NewReader(cmdPort),
		closed:     make(chan struct{}),
	}
}

// Close shuts down both serial connections. Safe to call more than once.
func (t *Transport) Close() error {
	var err error
	t.once.Do(func() {
		close(t.closed)
		if cerr := t.cmdPort.Close(); cerr != nil {
			err = cerr
		}
		if t.notifyPort != t.cmdPort {
			if cerr := t.notifyPort.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	})
	return err
}

// Send writes req to the command port and waits for a final result line,
// returning any intermediate response lines joined with "\n". The command
// mutex is held for the whole transaction, so Send from two goroutines
// serializes automatically.
func (t *Transport) Send(req string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transact(func() error {
		_, err := io.WriteString(t.cmdPort, req+Sep)
		return err
	})
}

// SendPDU performs the two-phase AT+CMGS handshake: it writes cmd, waits for
// the '>' prompt, then writes pduHex terminated with Ctrl-Z and waits for
// the final result. A +CMS ERROR or +CME ERROR line received in place of the
// prompt ends the call with a *ModemError. Used exclusively for submitting
// SMS PDUs.
func (t *Transport) SendPDU(cmd, pduHex string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cancel := t.deadline()
	defer cancel()

	if _, err := io.WriteString(t.cmdPort, cmd+Sep); err != nil {
		return "", err
	}
	for line := ""; ; {
		c, err := t.cmdReader.ReadByte()
		if err != nil {
			io.WriteString(t.cmdPort, Esc)
			return "", classifyReadErr(err)
		}
		if c == '>' {
			break
		}
		if line += string(c); c == '\n' {
			if text := strings.TrimSpace(line); strings.HasPrefix(text, "+CMS ERROR") || strings.HasPrefix(text, "+CME ERROR") {
				return "", &ModemError{Line: text}
			}
			line = ""
		}
	}

	return t.transact(func() error {
		_, err := io.WriteString(t.cmdPort, pduHex+Sub)
		return err
	})
}

// deadlineSetter is implemented by connections that support write/read
// deadlines (real serial ports do); fakes in tests may skip it.
type deadlineSetter interface {
	SetDeadline(time.Time) error
}

func (t *Transport) deadline() func() {
	timeout := t.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if setter, ok := t.cmdPort.(deadlineSetter); ok {
		setter.SetDeadline(time.Now().Add(timeout))
		return func() { setter.SetDeadline(time.Time{}) }
	}
	return func() {}
}

// transact reads response lines until a final result code and classifies
// it. write is invoked first, inside the deadline window.
func (t *Transport) transact(write func() error) (reply string, err error) {
	cancel := t.deadline()
	defer cancel()

	if err = write(); err != nil {
		return "", err
	}

	for {
		line, rerr := t.cmdReader.ReadString('\n')
		text := strings.TrimSpace(line)
		if rerr != nil {
			if text == "" {
				return reply, classifyReadErr(rerr)
			}
			// fall through: use the partial line before returning the error
		}
		if text == "" {
			if rerr != nil {
				return reply, classifyReadErr(rerr)
			}
			continue
		}

		switch {
		case text == "OK":
			return reply, nil
		case text == "ERROR", text == "NO CARRIER":
			return reply, errors.New("transport: " + text)
		case strings.HasPrefix(text, "+CMS ERROR") || strings.HasPrefix(text, "+CME ERROR"):
			return reply, &ModemError{Line: text}
		default:
			if reply != "" {
				reply += "\n"
			}
			reply += text
		}

		if rerr != nil {
			return reply, classifyReadErr(rerr)
		}
	}
}

func classifyReadErr(err error) error {
	if err == nil {
		return nil
	}
	if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
		return ErrTimeout
	}
	return err
}

// Watch reads lines from the notification port until Close is called,
// invoking onLine for each non-empty one. It never touches the command
// mutex, so it can run concurrently with in-flight Send/SendPDU calls.
func (t *Transport) Watch(onLine func(line string)) error {
	reader := bufio.NewReader(t.notifyPort)
	for {
		select {
		case <-t.closed:
			return nil
		default:
		}

		line, err := reader.ReadString('\n')
		text := strings.TrimSpace(line)
		if text != "" {
			onLine(text)
		}
		if err != nil {
			select {
			case <-t.closed:
				return nil
			default:
				return err
			}
		}
	}
}
