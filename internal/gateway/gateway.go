// Package gateway wires the outbound dispatcher and the inbound
// reassembler onto one shared Transport, matching spec.md §5's two-thread
// model: a reader goroutine owns the URC stream and reassembly state, a
// dispatcher goroutine owns outbound command sequences, and the two are
// serialized only where the modem itself requires it (the command mutex
// internal/transport.Transport already holds during AT transactions).
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/smsgw/gateway/internal/dispatch"
	"github.com/smsgw/gateway/internal/queue"
	"github.com/smsgw/gateway/internal/reassemble"
	"github.com/smsgw/gateway/internal/sink"
	"github.com/smsgw/gateway/internal/transport"
	"github.com/smsgw/gateway/tpdu"
	"github.com/smsgw/gateway/util"
)

var hexLine = regexp.MustCompile(`^[0-9A-Fa-f]+$`)

// ErrDeviceUnavailable is the one error class spec.md §7 says propagates
// to the service boundary: the modem open/handshake failed.
var ErrDeviceUnavailable = errors.New("gateway: device unavailable")

// Config bundles everything Run needs to bring the service up.
type Config struct {
	Device       string
	NotifyDevice string
	Baud         int
	QueueFile    string

	Dispatch   dispatch.Config
	Reassemble reassemble.Config
	TickPeriod time.Duration
	InitSettle time.Duration
}

// DefaultConfig returns a Config using every package's own defaults plus
// a 1s reassembler tick (spec.md §4.4: "a 1Hz periodic tick") and a 1s
// modem init settle delay (spec.md §4.2: "each followed by a settle delay
// of ~1s").
func DefaultConfig() Config {
	return Config{
		Dispatch:   dispatch.DefaultConfig(),
		Reassemble: reassemble.DefaultConfig(),
		TickPeriod: time.Second,
		InitSettle: time.Second,
	}
}

// Run opens the transport, performs the modem init handshake, then runs
// the dispatcher and reassembler concurrently until ctx is canceled. Only a
// failure to open the ports or complete the init handshake returns early,
// wrapped with ErrDeviceUnavailable. Every assembled inbound message is
// forwarded to snk exactly once.
func Run(ctx context.Context, cfg Config, snk sink.Sink) error {
	t, err := transport.Open(cfg.Device, cfg.NotifyDevice, cfg.Baud)
	if err != nil {
		return errors.Join(ErrDeviceUnavailable, err)
	}
	defer t.Close()

	if err := initModem(t, cfg.InitSettle); err != nil {
		return errors.Join(ErrDeviceUnavailable, err)
	}

	q := queue.Open(cfg.QueueFile)
	reassembler := reassemble.New(cfg.Reassemble)
	disp := dispatch.New(q, t, cfg.Dispatch)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for msg := range reassembler.Messages {
			snk.Emit(ctx, msg)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := disp.Run(ctx); err != nil {
			slog.Error("gateway: dispatcher exited", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runReassembler(ctx, t, reassembler, cfg.TickPeriod)
		close(reassembler.Messages)
	}()

	<-ctx.Done()
	wg.Wait()
	return nil
}

// initModem issues the PDU-mode and URC-delivery handshake from spec.md
// §4.2: "AT+CMGF=0 (PDU mode) and AT+CNMI=2,2,0,0,0 (URC delivery of
// incoming SMS), each followed by a settle delay of ~1s".
func initModem(t *transport.Transport, settle time.Duration) error {
	if _, err := t.Send("AT+CMGF=0"); err != nil {
		return err
	}
	time.Sleep(settle)
	if _, err := t.Send("AT+CNMI=2,2,0,0,0"); err != nil {
		return err
	}
	time.Sleep(settle)
	return nil
}

// runReassembler is Thread A of spec.md §5: the exclusive reader of the
// inbound URC stream. It reads lines off the transport's notification port
// via a background goroutine (transport.Watch never touches the command
// mutex, so it runs freely alongside dispatcher transactions) and drives
// the reassembler's Feed/Tick state machine inline, so no locking is
// needed around the ConcatGroup/TimeWindowBuffer tables.
func runReassembler(ctx context.Context, t *transport.Transport, r *reassemble.Reassembler, tickPeriod time.Duration) {
	lines := make(chan string)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = t.Watch(func(line string) {
			select {
			case lines <- line:
			case <-ctx.Done():
			}
		})
	}()

	ticker := time.NewTicker(tickPeriod)
	defer ticker.Stop()

	var pendingCMT bool
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case line := <-lines:
			if pendingCMT {
				pendingCMT = false
				handleCandidatePDU(r, line, time.Now())
				continue
			}
			if strings.HasPrefix(line, "+CMT:") {
				pendingCMT = true
			}
		case now := <-ticker.C:
			r.Tick(now)
		}
	}
}

// handleCandidatePDU validates and decodes one candidate DELIVER PDU line
// following a +CMT: URC, per spec.md §4.4's "Validate it matches
// ^[0-9A-Fa-f]+$; otherwise discard" and "Decode DELIVER. On
// MalformedPdu, discard and continue."
func handleCandidatePDU(r *reassemble.Reassembler, line string, now time.Time) {
	if !hexLine.MatchString(line) {
		slog.Warn("gateway: +CMT: not followed by a hex PDU line, discarding", "line", line)
		return
	}

	octets, err := util.Bytes(line)
	if err != nil {
		slog.Warn("gateway: malformed hex PDU, discarding", "error", err)
		return
	}

	frag, err := tpdu.DecodeDeliver(octets)
	if err != nil {
		if errors.Is(err, tpdu.ErrUnsupportedEncoding) {
			slog.Warn("gateway: unsupported DCS, discarding fragment", "error", err)
		} else {
			slog.Warn("gateway: malformed PDU, discarding fragment", "error", err)
		}
		return
	}

	r.Feed(frag, now)
}
