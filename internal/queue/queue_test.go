package queue

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndHead(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "queue.txt")
	q := Open(path)

	require.NoError(t, q.Append("+84977426274", "Hi"))
	require.NoError(t, q.Append("+84357259001", "Second|with pipe"))

	entry, err := q.Head()
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "+84977426274", entry.Destination)
	assert.Equal(t, "Hi", entry.Payload)
}

func TestHeadOnMissingFile(t *testing.T) {
	t.Parallel()

	q := Open(filepath.Join(t.TempDir(), "missing.txt"))
	entry, err := q.Head()
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestCommitRemovesOnlyHead(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "queue.txt")
	q := Open(path)
	require.NoError(t, q.Append("A", "one"))
	require.NoError(t, q.Append("B", "two"))
	require.NoError(t, q.Append("C", "three"))

	entry, err := q.Head()
	require.NoError(t, err)
	require.NoError(t, q.Commit(entry))

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "B|two\nC|three\n", string(contents))

	count, err := q.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestHeadDropsMalformedLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "queue.txt")
	require.NoError(t, os.WriteFile(path, []byte("no separator here\n\nA|valid\n"), 0o644))

	q := Open(path)
	entry, err := q.Head()
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "A", entry.Destination)
	assert.Equal(t, "valid", entry.Payload)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "A|valid\n", string(contents))
}

func TestHeadAllMalformedLeavesEmptyFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "queue.txt")
	require.NoError(t, os.WriteFile(path, []byte("bad1\nbad2\n"), 0o644))

	q := Open(path)
	entry, err := q.Head()
	require.NoError(t, err)
	assert.Nil(t, entry)

	count, err := q.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestCommitIgnoresStaleHead(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "queue.txt")
	q := Open(path)
	require.NoError(t, q.Append("A", "one"))

	entry, err := q.Head()
	require.NoError(t, err)

	// Simulate the head already having moved on (another process
	// consumed it) by rewriting the file before Commit runs.
	require.NoError(t, os.WriteFile(path, []byte("B|two\n"), 0o644))

	require.NoError(t, q.Commit(entry))

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "B|two\n", string(contents))
}
