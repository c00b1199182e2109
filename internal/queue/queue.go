// Package queue implements the file-backed FIFO queue described in
// spec.md §4.5 and §6: a line-oriented UTF-8 file, appended to by
// producers and drained head-first by a single dispatcher.
//
// Per spec.md's "Queue durability" design note, head removal uses a
// temp-file-plus-rename rewrite so a reader never observes a half-written
// file, and an advisory exclusive lock is held across the read-modify-write
// so a concurrent Append can't be silently lost mid-rewrite.
package queue

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// Entry is one parsed QueueEntry (spec.md §3): a destination/payload pair
// plus the raw line it came from, kept so Commit can check that the head
// line is still this entry before removing it.
type Entry struct {
	Destination string
	Payload     string
	Raw         string
}

// Queue adapts a single file at path to the FIFO semantics spec.md §4.5
// requires. The zero value is not usable; use Open.
type Queue struct {
	path string
}

// Open returns a Queue rooted at path. It does not create the file; Append
// does, creating any missing parent directories first (the directory
// auto-creation behavior SPEC_FULL.md carries over from
// original_source/sms_client.py's FileSMSClient.__init__).
func Open(path string) *Queue {
	return &Queue{path: path}
}

// Append adds one entry to the tail of the queue, creating the file and its
// parent directory if necessary. Safe to call from multiple processes
// concurrently with each other and with Head/Commit, by way of an advisory
// flock held for the duration of the write.
func (q *Queue) Append(destination, payload string) error {
	if err := os.MkdirAll(filepath.Dir(q.path), 0o755); err != nil {
		return fmt.Errorf("queue: create queue directory: %w", err)
	}

	f, err := os.OpenFile(q.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("queue: open for append: %w", err)
	}

	unlock, err := lockExclusive(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("queue: lock: %w", err)
	}
	// A Head/Commit rewrite may have renamed a new file over q.path while
	// this call waited for the lock; start over on the file now in place.
	if cur, serr := os.Stat(q.path); serr == nil {
		if fi, ferr := f.Stat(); ferr == nil && !os.SameFile(cur, fi) {
			unlock()
			f.Close()
			return q.Append(destination, payload)
		}
	}
	defer f.Close()
	defer unlock()

	line := destination + "|" + payload + "\n"
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("queue: append: %w", err)
	}
	return nil
}

// Head returns the first line still enqueued, parsed into an Entry.
// Malformed lines (no "|", or empty) are skipped and discarded from the
// file as it reads them, matching spec.md §4.3's tie-break that such lines
// are "discarded (not retried)". Head returns (nil, nil) when the queue is
// empty or the file doesn't exist yet.
func (q *Queue) Head() (*Entry, error) {
	f, err := os.Open(q.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: open: %w", err)
	}
	defer f.Close()

	unlock, err := lockExclusive(f)
	if err != nil {
		return nil, fmt.Errorf("queue: lock: %w", err)
	}
	defer unlock()

	lines, err := readLines(f)
	if err != nil {
		return nil, fmt.Errorf("queue: read: %w", err)
	}

	var dropped int
	var head *Entry
	for i, raw := range lines {
		entry, ok := parseLine(raw)
		if !ok {
			dropped++
			continue
		}
		head = entry
		lines = lines[i:]
		break
	}
	if head == nil {
		// Every remaining line was malformed (or the file was empty);
		// rewrite with nothing left so they aren't seen again.
		if dropped > 0 {
			if err := writeLinesLocked(q.path, f, nil); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}
	if dropped > 0 {
		if err := writeLinesLocked(q.path, f, lines); err != nil {
			return nil, err
		}
	}
	return head, nil
}

// Commit removes entry (identified by its Raw line) from the head of the
// queue, rewriting the file with everything after it. Per spec.md §4.3's
// atomic-head-removal requirement, the rewrite is a temp-file-plus-rename
// so a crash never leaves a half-written queue file, but a crash between
// the modem accepting the PDU and this call completing can still cause
// at-least-once redelivery — spec.md explicitly forbids weakening that to
// at-most-once, so no attempt is made to make this step itself atomic with
// the send.
func (q *Queue) Commit(entry *Entry) error {
	f, err := os.Open(q.path)
	if err != nil {
		return fmt.Errorf("queue: open: %w", err)
	}
	defer f.Close()

	unlock, err := lockExclusive(f)
	if err != nil {
		return fmt.Errorf("queue: lock: %w", err)
	}
	defer unlock()

	lines, err := readLines(f)
	if err != nil {
		return fmt.Errorf("queue: read: %w", err)
	}

	if len(lines) == 0 || lines[0] != entry.Raw {
		// The head moved (a concurrent producer appended, or the line
		// was already consumed by another process); nothing to commit.
		return nil
	}
	return writeLinesLocked(q.path, f, lines[1:])
}

// Count returns the number of lines currently in the queue file, for the
// CLI's "status" verb (spec.md §6). A missing file counts as zero.
func (q *Queue) Count() (int, error) {
	f, err := os.Open(q.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("queue: open: %w", err)
	}
	defer f.Close()

	lines, err := readLines(f)
	if err != nil {
		return 0, fmt.Errorf("queue: read: %w", err)
	}
	return len(lines), nil
}

func parseLine(raw string) (*Entry, bool) {
	if raw == "" {
		return nil, false
	}
	idx := strings.IndexByte(raw, '|')
	if idx < 0 {
		return nil, false
	}
	return &Entry{
		Destination: raw[:idx],
		Payload:     raw[idx+1:],
		Raw:         raw,
	}, true
}

func readLines(f *os.File) ([]string, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// writeLinesLocked rewrites path's contents to lines via a temp file and
// rename, so readers never observe a partially written file. f (the
// already-open, already-locked handle on path) is only used to keep the
// lock alive across the rename; the new content is written through a
// separate temp file handle.
func writeLinesLocked(path string, f *os.File, lines []string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("queue: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	w := bufio.NewWriter(tmp)
	for _, line := range lines {
		if _, err := w.WriteString(line); err != nil {
			tmp.Close()
			return fmt.Errorf("queue: write temp file: %w", err)
		}
		if _, err := w.WriteString("\n"); err != nil {
			tmp.Close()
			return fmt.Errorf("queue: write temp file: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("queue: flush temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("queue: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("queue: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("queue: rename temp file into place: %w", err)
	}
	return nil
}

func lockExclusive(f *os.File) (unlock func(), err error) {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return nil, err
	}
	return func() { unix.Flock(int(f.Fd()), unix.LOCK_UN) }, nil
}
