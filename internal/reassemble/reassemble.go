// Package reassemble implements the inbound reassembly state machine of
// spec.md §4.4: a ConcatGroup table keyed by (sender, ref) for fragments
// carrying an explicit concatenation UDH, and a per-sender TimeWindowBuffer
// fallback for fragments that don't.
//
// Per spec.md §5 ("Shared-resource policy"), both tables are owned
// exclusively by the single goroutine that calls Reassembler.Feed and
// Reassembler.Tick; external consumers only ever read from the Messages
// channel. This mirrors xlab-at/sms's package split: a decode layer (here,
// tpdu) feeding a stateful collector that has no locking of its own because
// it's single-owner by construction.
package reassemble

import (
	"log/slog"
	"time"

	"github.com/smsgw/gateway/tpdu"
)

// Message is one logical inbound SMS emitted to the sink, assembled from
// one or more InboundFragments (spec.md §6 "Emission sink").
type Message struct {
	Sender    string
	Timestamp time.Time
	Text      string
}

// concatKey identifies a ConcatGroup (spec.md §3).
type concatKey struct {
	sender string
	ref    int
}

// concatGroup holds the in-progress state for one (sender, ref) pair.
// Fields are explicit, per spec.md §9's design note, rather than nested
// maps.
type concatGroup struct {
	total     int
	fragments map[int]string
	earliest  time.Time
	createdAt time.Time
}

// windowEntry is one fragment buffered by the time-window heuristic
// (spec.md §3 "TimeWindowBuffer").
type windowEntry struct {
	arrivedAt time.Time
	scts      time.Time
	text      string
}

// Config carries the tunables spec.md §9 says should be surfaced but
// defaulted to match observed legacy behavior.
type Config struct {
	MergeWindow     time.Duration // spec.md §4.4: 3s
	SingletonWait   time.Duration // spec.md §4.4: 2s
	RetentionWindow time.Duration // spec.md §3: 10s
	ConcatGroupTTL  time.Duration // spec.md §9 open question, resolved: 24h
}

// DefaultConfig returns the hard-coded defaults named in spec.md §4.4 and
// §9, which implementations must preserve even when making them
// configurable.
func DefaultConfig() Config {
	return Config{
		MergeWindow:     3 * time.Second,
		SingletonWait:   2 * time.Second,
		RetentionWindow: 10 * time.Second,
		ConcatGroupTTL:  24 * time.Hour,
	}
}

// Reassembler is the single-owner state machine described above. Feed and
// Tick must only ever be called from one goroutine; Messages may be
// consumed from any goroutine.
type Reassembler struct {
	cfg Config

	groups  map[concatKey]*concatGroup
	windows map[string][]windowEntry

	Messages chan Message
}

// New returns a Reassembler with an unbuffered Messages channel. Callers
// should drain Messages concurrently with calling Feed/Tick, since Feed
// blocks while emitting.
func New(cfg Config) *Reassembler {
	return &Reassembler{
		cfg:      cfg,
		groups:   make(map[concatKey]*concatGroup),
		windows:  make(map[string][]windowEntry),
		Messages: make(chan Message),
	}
}

// Feed processes one decoded inbound fragment, routing it to the UDH path
// or the time-window path per spec.md §4.4, and emits zero or more
// completed Messages as a side effect.
func (r *Reassembler) Feed(frag *tpdu.InboundFragment, now time.Time) {
	if frag.Concat != nil {
		r.feedConcat(frag, now)
		return
	}
	r.feedWindow(frag, now)
}

// Tick runs the periodic 1Hz housekeeping spec.md §4.4 and §9 require: it
// re-evaluates every sender's TimeWindowBuffer against the merge/singleton
// conditions (in case no further fragment arrives to trigger them) and
// sweeps ConcatGroups past their TTL.
func (r *Reassembler) Tick(now time.Time) {
	for sender := range r.windows {
		r.evaluateWindow(sender, now)
	}
	r.sweepStaleGroups(now)
}

func (r *Reassembler) feedConcat(frag *tpdu.InboundFragment, now time.Time) {
	key := concatKey{sender: frag.Sender, ref: frag.Concat.Ref}
	group, ok := r.groups[key]
	if !ok {
		group = &concatGroup{
			total:     frag.Concat.Total,
			fragments: make(map[int]string),
			earliest:  frag.Timestamp,
			createdAt: now,
		}
		r.groups[key] = group
	} else if group.total != frag.Concat.Total {
		slog.Error("concat group total_parts mismatch, dropping group",
			"sender", frag.Sender, "ref", frag.Concat.Ref,
			"expected", group.total, "got", frag.Concat.Total)
		delete(r.groups, key)
		return
	}

	if frag.Timestamp.Before(group.earliest) {
		group.earliest = frag.Timestamp
	}

	// Prefer the first write for a given sequence number (spec.md §4.4:
	// "if sequence already present with differing text, prefer the
	// first write").
	if _, seen := group.fragments[frag.Concat.Sequence]; !seen {
		group.fragments[frag.Concat.Sequence] = frag.Text
	}

	if len(group.fragments) < group.total {
		return
	}

	text := ""
	for seq := 1; seq <= group.total; seq++ {
		text += group.fragments[seq]
	}
	delete(r.groups, key)
	r.Messages <- Message{Sender: frag.Sender, Timestamp: group.earliest, Text: text}
}

func (r *Reassembler) feedWindow(frag *tpdu.InboundFragment, now time.Time) {
	r.windows[frag.Sender] = append(r.windows[frag.Sender], windowEntry{
		arrivedAt: now,
		scts:      frag.Timestamp,
		text:      frag.Text,
	})
	r.evaluateWindow(frag.Sender, now)
}

// evaluateWindow implements spec.md §4.4's time-window path exactly in the
// order specified: the merge condition must be checked before the
// singleton condition, and retention purging always happens last.
func (r *Reassembler) evaluateWindow(sender string, now time.Time) {
	entries := r.windows[sender]
	if len(entries) == 0 {
		delete(r.windows, sender)
		return
	}

	var recent []windowEntry
	for _, e := range entries {
		if now.Sub(e.arrivedAt) <= r.cfg.MergeWindow {
			recent = append(recent, e)
		}
	}

	switch {
	case len(recent) >= 2:
		sortByScts(recent)
		text := ""
		for _, e := range recent {
			text += e.text
		}
		r.windows[sender] = nil
		r.Messages <- Message{Sender: sender, Timestamp: recent[0].scts, Text: text}
		return

	case len(recent) == 1 && now.Sub(recent[0].arrivedAt) > r.cfg.SingletonWait:
		e := recent[0]
		r.windows[sender] = nil
		r.Messages <- Message{Sender: sender, Timestamp: e.scts, Text: e.text}
		return
	}

	var kept []windowEntry
	for _, e := range entries {
		if now.Sub(e.arrivedAt) <= r.cfg.RetentionWindow {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(r.windows, sender)
	} else {
		r.windows[sender] = kept
	}
}

func (r *Reassembler) sweepStaleGroups(now time.Time) {
	for key, group := range r.groups {
		if now.Sub(group.createdAt) > r.cfg.ConcatGroupTTL {
			slog.Warn("concat group exceeded TTL without completing, dropping",
				"sender", key.sender, "ref", key.ref,
				"have", len(group.fragments), "total", group.total)
			delete(r.groups, key)
		}
	}
}

// sortByScts sorts entries by Service Center Timestamp ascending, per
// spec.md §4.4 ("sort by service_center_timestamp ascending"). Insertion
// sort is sufficient: a merge batch is at most a handful of fragments.
func sortByScts(entries []windowEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].scts.Before(entries[j-1].scts); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}
