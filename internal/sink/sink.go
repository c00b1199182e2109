// Package sink implements the emission sink contract of spec.md §6: each
// assembled inbound message is surfaced exactly once as
// (sender_e164, timestamp_with_tz, text). The concrete sink is
// implementation-defined; this package provides a plain stdout sink and an
// optional Telegram push sink.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"

	"github.com/smsgw/gateway/internal/reassemble"
)

// Sink receives each assembled inbound message exactly once.
type Sink interface {
	Emit(ctx context.Context, msg reassemble.Message)
}

// Stdout prints each message in a human-readable form. It is the default
// sink for cmd/smsgwd's "service" verb.
type Stdout struct{}

// Emit writes msg to stdout.
func (Stdout) Emit(_ context.Context, msg reassemble.Message) {
	fmt.Printf("[%s] %s: %s\n", msg.Timestamp.Format(time.RFC3339), msg.Sender, msg.Text)
}

// Multi fans out one message to every sink in the list, in order. Used to
// run Stdout and Telegram together.
type Multi []Sink

// Emit forwards msg to every sink.
func (m Multi) Emit(ctx context.Context, msg reassemble.Message) {
	for _, s := range m {
		s.Emit(ctx, msg)
	}
}

// Telegram forwards each assembled message to a fixed set of chat IDs via
// github.com/go-telegram/bot, grounded on
// kogeler-tooling/sms-to-telegram/main.go's sendToTelegramWithRetry: bounded
// retries with exponential backoff, one send per chat, errors logged rather
// than propagated (spec.md §7 gives the reassembler no error-propagation
// path upward, so a sink failure can only be logged, never block
// reassembly).
type Telegram struct {
	Bot     *bot.Bot
	ChatIDs []int64

	// SendTimeout bounds a single Telegram API call.
	SendTimeout time.Duration
	// MaxRetries and BaseDelay/MaxDelay configure the exponential backoff
	// applied per chat on send failure.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// NewTelegram returns a Telegram sink with kogeler-tooling's defaults
// (20s per-call timeout, at most 10 attempts per chat, 5s base / 5m cap
// backoff).
func NewTelegram(b *bot.Bot, chatIDs []int64) *Telegram {
	return &Telegram{
		Bot:         b,
		ChatIDs:     chatIDs,
		SendTimeout: 20 * time.Second,
		MaxRetries:  10,
		BaseDelay:   5 * time.Second,
		MaxDelay:    5 * time.Minute,
	}
}

// Emit sends msg to every configured chat ID, retrying each independently.
// Failures are logged; Emit never returns an error because the reassembler
// that calls it has nowhere to propagate one (spec.md §7).
func (t *Telegram) Emit(ctx context.Context, msg reassemble.Message) {
	text := fmt.Sprintf("SMS from %s (%s):\n%s", msg.Sender, msg.Timestamp.Format(time.RFC3339), msg.Text)

	for _, chatID := range t.ChatIDs {
		if err := t.sendWithRetry(ctx, chatID, text); err != nil {
			slog.Error("failed to forward SMS to telegram", "chat_id", chatID, "sender", msg.Sender, "error", err)
		}
	}
}

func (t *Telegram) sendWithRetry(ctx context.Context, chatID int64, text string) error {
	delay := t.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= t.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		sendCtx, cancel := context.WithTimeout(ctx, t.SendTimeout)
		_, err := t.Bot.SendMessage(sendCtx, &bot.SendMessageParams{ChatID: chatID, Text: text})
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		slog.Warn("telegram send failed, retrying", "chat_id", chatID, "attempt", attempt, "error", err, "next_retry_in", delay)
		if attempt == t.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > t.MaxDelay {
			delay = t.MaxDelay
		}
	}
	return lastErr
}
