// Package dispatch implements the outbound dispatcher state machine of
// spec.md §4.3: drain the file queue head-first, segment and encode each
// entry, and drive the modem's AT+CMGF/AT+CMGS/Ctrl-Z handshake one segment
// at a time, retrying the same head entry with a fixed backoff on failure.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/smsgw/gateway/internal/queue"
	"github.com/smsgw/gateway/internal/transport"
	"github.com/smsgw/gateway/tpdu"
)

// ErrSendFailed is returned internally when a segment does not complete;
// the dispatcher always retries rather than propagating it (spec.md §7:
// "Retried indefinitely with 10s backoff; queue entry preserved").
var ErrSendFailed = errors.New("dispatch: send failed")

// ErrBadRequest marks a queue entry whose segment plan the codec rejected
// (spec.md §4.3: "A malformed segment plan is a BadRequest and discards the
// entry with a log record").
var ErrBadRequest = errors.New("dispatch: bad request")

// Config carries the fixed sleeps spec.md §4.3 specifies, surfaced as
// tunables per spec.md §9's design note.
type Config struct {
	CmdSettleDelay    time.Duration // wait after AT+CMGF=0: 0.5s (the PDU follows the '>' prompt with no wait)
	SingleSendSettle  time.Duration // wait after a single PDU's Ctrl-Z: 2s
	ConcatSendSettle  time.Duration // wait after a concat segment's Ctrl-Z: 3s
	DispatchBackoff   time.Duration // retry delay on send failure: 10s
	QueuePollInterval time.Duration // sleep when the queue is empty: 1s
	FsErrorBackoff    time.Duration // sleep after a queue FsError: 5s
}

// DefaultConfig returns the fixed timings spec.md §4.3 specifies.
func DefaultConfig() Config {
	return Config{
		CmdSettleDelay:    500 * time.Millisecond,
		SingleSendSettle:  2 * time.Second,
		ConcatSendSettle:  3 * time.Second,
		DispatchBackoff:   10 * time.Second,
		QueuePollInterval: 1 * time.Second,
		FsErrorBackoff:    5 * time.Second,
	}
}

// Dispatcher drains q, sending each head entry over t, with the timings in
// cfg. It is a single-writer state machine: Run must only ever be called
// once at a time for a given Dispatcher/Transport pair (spec.md §5: "Thread
// B ... exclusive owner of outbound command sequences").
type Dispatcher struct {
	queue     *queue.Queue
	transport *transport.Transport
	cfg       Config
}

// New returns a Dispatcher draining q over t.
func New(q *queue.Queue, t *transport.Transport, cfg Config) *Dispatcher {
	return &Dispatcher{queue: q, transport: t, cfg: cfg}
}

// Run drives the dispatch loop described in spec.md §4.3 until ctx is
// canceled. Each sleep is a cooperative yield that also observes ctx
// cancellation (spec.md §5: "A shared stop flag, checked at each loop
// head, terminates both threads").
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		entry, err := d.queue.Head()
		if err != nil {
			slog.Error("dispatch: queue read failed", "error", err)
			if !sleep(ctx, d.cfg.FsErrorBackoff) {
				return nil
			}
			continue
		}
		if entry == nil {
			if !sleep(ctx, d.cfg.QueuePollInterval) {
				return nil
			}
			continue
		}

		submission, err := tpdu.EncodeSubmit(entry.Destination, entry.Payload)
		if err != nil {
			slog.Error("dispatch: bad request, discarding entry",
				"destination", entry.Destination, "error", fmt.Errorf("%w: %v", ErrBadRequest, err))
			if cerr := d.queue.Commit(entry); cerr != nil {
				slog.Error("dispatch: failed to discard bad request", "error", cerr)
			}
			continue
		}

		if err := d.sendSubmission(submission); err != nil {
			slog.Warn("dispatch: send failed, will retry",
				"destination", entry.Destination, "error", err)
			if !sleep(ctx, d.cfg.DispatchBackoff) {
				return nil
			}
			continue
		}

		if err := d.queue.Commit(entry); err != nil {
			slog.Error("dispatch: failed to commit successful send", "error", err)
		}
	}
}

// sendSubmission drives the modem through every segment of submission in
// order (spec.md §5: "Concat segments for one submission sent in sequence
// order 1..N; no interleaving with segments of another submission"),
// re-arming URC delivery after full success.
func (d *Dispatcher) sendSubmission(submission *tpdu.OutboundSubmission) error {
	concat := len(submission.Segments) > 1
	for _, segment := range submission.Segments {
		if err := d.sendSegment(segment, concat); err != nil {
			return err
		}
	}
	if _, err := d.transport.Send("AT+CNMI=2,2,0,0,0"); err != nil {
		slog.Warn("dispatch: failed to re-arm URC delivery after send", "error", err)
	}
	return nil
}

// sendSegment performs one AT+CMGF=0 / AT+CMGS / Ctrl-Z transaction for a
// single PDU segment, per spec.md §4.3 step 2. The original_source
// re-issues AT+CMGF=0 before every segment rather than once at startup
// (SPEC_FULL.md SUPPLEMENTED FEATURES), tolerating a modem that silently
// drops PDU mode mid-session.
func (d *Dispatcher) sendSegment(segment tpdu.Segment, concat bool) error {
	if _, err := d.transport.Send("AT+CMGF=0"); err != nil {
		return fmt.Errorf("%w: set PDU mode: %v", ErrSendFailed, err)
	}
	time.Sleep(d.cfg.CmdSettleDelay)

	cmd := fmt.Sprintf("AT+CMGS=%d", segment.TPDULen())
	reply, err := d.transport.SendPDU(cmd, segment.HexPDU())
	if err != nil {
		var modemErr *transport.ModemError
		if errors.As(err, &modemErr) {
			slog.Error("dispatch: modem rejected segment",
				"sequence", segment.Sequence, "total", segment.Total, "reason", "modem_error", "detail", modemErr.Line)
		} else if errors.Is(err, transport.ErrTimeout) {
			slog.Error("dispatch: segment send timed out",
				"sequence", segment.Sequence, "total", segment.Total, "reason", "timeout")
		}
		return fmt.Errorf("%w: segment %d/%d: %v", ErrSendFailed, segment.Sequence, segment.Total, err)
	}
	_ = reply

	settle := d.cfg.SingleSendSettle
	if concat {
		settle = d.cfg.ConcatSendSettle
	}
	time.Sleep(settle)
	return nil
}

// sleep waits for d or until ctx is canceled, whichever comes first. It
// returns false if ctx was canceled, true if the full duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
