package reassemble

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smsgw/gateway/tpdu"
)

func frag(sender, text string, ts time.Time, concat *tpdu.ConcatInfo) *tpdu.InboundFragment {
	return &tpdu.InboundFragment{Sender: sender, Timestamp: ts, Text: text, Concat: concat}
}

func recv(t *testing.T, r *Reassembler) Message {
	t.Helper()
	select {
	case msg := <-r.Messages:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for assembled message")
		return Message{}
	}
}

// TestConcatOutOfOrder grounds spec.md §8 scenario 3: three fragments for
// one (sender, ref) arriving out of order assemble into one message with
// the minimum timestamp.
func TestConcatOutOfOrder(t *testing.T) {
	t.Parallel()

	r := New(DefaultConfig())
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	go func() {
		r.Feed(frag("+84357259001", "CD", base.Add(2*time.Second), &tpdu.ConcatInfo{Ref: 42, Total: 3, Sequence: 2}), time.Now())
		r.Feed(frag("+84357259001", "AB", base, &tpdu.ConcatInfo{Ref: 42, Total: 3, Sequence: 1}), time.Now())
		r.Feed(frag("+84357259001", "EF", base.Add(4*time.Second), &tpdu.ConcatInfo{Ref: 42, Total: 3, Sequence: 3}), time.Now())
	}()

	msg := recv(t, r)
	assert.Equal(t, "+84357259001", msg.Sender)
	assert.Equal(t, "ABCDEF", msg.Text)
	assert.True(t, msg.Timestamp.Equal(base))
}

// TestConcatDuplicateSequencePrefersFirstWrite grounds spec.md §8 scenario
// 4: a duplicate sequence number with differing text doesn't overwrite the
// first-seen value, and the group still completes exactly once.
func TestConcatDuplicateSequencePrefersFirstWrite(t *testing.T) {
	t.Parallel()

	r := New(DefaultConfig())
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	go func() {
		r.Feed(frag("S", "AB", base, &tpdu.ConcatInfo{Ref: 1, Total: 3, Sequence: 1}), time.Now())
		r.Feed(frag("S", "CD", base, &tpdu.ConcatInfo{Ref: 1, Total: 3, Sequence: 2}), time.Now())
		r.Feed(frag("S", "C!", base, &tpdu.ConcatInfo{Ref: 1, Total: 3, Sequence: 2}), time.Now())
		r.Feed(frag("S", "EF", base, &tpdu.ConcatInfo{Ref: 1, Total: 3, Sequence: 3}), time.Now())
	}()

	msg := recv(t, r)
	assert.Equal(t, "ABCDEF", msg.Text)

	select {
	case extra := <-r.Messages:
		t.Fatalf("expected exactly one emission, got a second: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConcatTotalMismatchDropsGroup(t *testing.T) {
	t.Parallel()

	r := New(DefaultConfig())
	now := time.Now()

	r.Feed(frag("S", "AB", now, &tpdu.ConcatInfo{Ref: 9, Total: 2, Sequence: 1}), now)
	r.Feed(frag("S", "CD", now, &tpdu.ConcatInfo{Ref: 9, Total: 3, Sequence: 2}), now)

	assert.Empty(t, r.groups)
}

func TestConcatSingleFragmentEmitsImmediately(t *testing.T) {
	t.Parallel()

	r := New(DefaultConfig())
	now := time.Now()

	go func() {
		r.Feed(frag("S", "Hi", now, &tpdu.ConcatInfo{Ref: 1, Total: 1, Sequence: 1}), now)
	}()

	msg := recv(t, r)
	assert.Equal(t, "Hi", msg.Text)
}

// TestTimeWindowMerge grounds spec.md §8 scenario 5: two non-UDH fragments
// 400ms apart merge into one message as soon as the merge condition is
// observed (on arrival of the second fragment, or on the next tick if it
// arrived first) within the merge window.
func TestTimeWindowMerge(t *testing.T) {
	t.Parallel()

	r := New(DefaultConfig())
	start := time.Now()
	scts1 := time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC)
	scts2 := time.Date(2026, 1, 1, 0, 0, 2, 0, time.UTC)

	go func() {
		r.Feed(frag("S", "Hel", scts2, nil), start)
		r.Feed(frag("S", "lo", scts1, nil), start.Add(400*time.Millisecond))
		r.Tick(start.Add(1500 * time.Millisecond))
	}()

	msg := recv(t, r)
	// Sorted by SCTS ascending: scts1 ("lo") before scts2 ("Hel").
	assert.Equal(t, "loHel", msg.Text)
	assert.True(t, msg.Timestamp.Equal(scts1))
}

// TestTimeWindowSingleton grounds spec.md §8 scenario 6: a lone fragment
// with no sibling is emitted as a singleton once it has waited past the
// singleton threshold, observed on a later tick.
func TestTimeWindowSingleton(t *testing.T) {
	t.Parallel()

	r := New(DefaultConfig())
	start := time.Now()
	scts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	go func() {
		r.Feed(frag("S", "alone", scts, nil), start)
		r.Tick(start.Add(2500 * time.Millisecond))
	}()

	msg := recv(t, r)
	assert.Equal(t, "alone", msg.Text)
}

func TestTimeWindowPurgesStaleEntries(t *testing.T) {
	t.Parallel()

	r := New(DefaultConfig())
	start := time.Now()

	r.Feed(frag("S", "old", start, nil), start)
	r.Tick(start.Add(11 * time.Second))

	_, ok := r.windows["S"]
	assert.False(t, ok)
}

func TestSweepStaleConcatGroup(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.ConcatGroupTTL = time.Minute
	r := New(cfg)
	now := time.Now()

	r.Feed(frag("S", "AB", now, &tpdu.ConcatInfo{Ref: 1, Total: 2, Sequence: 1}), now)
	require.Len(t, r.groups, 1)

	r.Tick(now.Add(2 * time.Minute))
	assert.Empty(t, r.groups)
}
