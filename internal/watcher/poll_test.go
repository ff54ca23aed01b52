package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollDiff(t *testing.T) {
	now := time.Now()
	s := &pollSource{root: "/docs", isDir: true}

	previous := map[string]fileState{
		"/docs/a.md": {size: 10, modTime: now, mode: 0o644},
		"/docs/b.md": {size: 10, modTime: now, mode: 0o644},
		"/docs/c.md": {size: 10, modTime: now, mode: 0o644},
		"/docs/d.md": {size: 10, modTime: now, mode: 0o644},
	}
	current := map[string]fileState{
		"/docs/a.md": {size: 10, modTime: now, mode: 0o644},
		"/docs/b.md": {size: 12, modTime: now, mode: 0o644},
		"/docs/c.md": {size: 10, modTime: now, mode: 0o600},
		"/docs/e.md": {size: 1, modTime: now, mode: 0o644},
	}

	events := s.diff(previous, current)

	assert.Equal(t, []RawEvent{
		{Op: DataModify, Paths: []string{"/docs/b.md"}},
		{Op: MetadataModify, Paths: []string{"/docs/c.md"}},
		{Op: Remove, Paths: []string{"/docs/d.md"}},
		{Op: Create, Paths: []string{"/docs/e.md"}},
	}, events)
}

func TestPollDiffModTimeOnly(t *testing.T) {
	now := time.Now()
	s := &pollSource{root: "/doc.md"}

	events := s.diff(
		map[string]fileState{"/doc.md": {size: 5, modTime: now}},
		map[string]fileState{"/doc.md": {size: 5, modTime: now.Add(time.Second)}},
	)

	require.Len(t, events, 1)
	assert.Equal(t, DataModify, events[0].Op)
}

func TestPollDiffTargetReappears(t *testing.T) {
	s := &pollSource{root: "/doc.md"}

	events := s.diff(map[string]fileState{}, map[string]fileState{"/doc.md": {size: 5}})

	require.Len(t, events, 1)
	assert.True(t, events[0].Op.Has(Create))
	assert.True(t, events[0].Op.Has(DataModify))
}

func TestPollScanDirectory(t *testing.T) {
	root, err := filepath.Abs(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	writeFile(t, filepath.Join(root, "a.md"), "a")
	writeFile(t, filepath.Join(root, "sub", "b.md"), "bb")

	s := &pollSource{root: root, isDir: true}
	states, err := s.scan()
	require.NoError(t, err)

	assert.Len(t, states, 2)
	assert.Equal(t, int64(2), states[filepath.Join(root, "sub", "b.md")].size)
}

func TestPollScanMissingRoot(t *testing.T) {
	s := &pollSource{root: filepath.Join(t.TempDir(), "gone.md")}

	states, err := s.scan()
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestPollReportsRemoveAndCreate(t *testing.T) {
	root, err := filepath.Abs(t.TempDir())
	require.NoError(t, err)

	existing := filepath.Join(root, "old.md")
	writeFile(t, existing, "old")

	src, err := openPoll(root, Options{PollInterval: 20 * time.Millisecond}.withDefaults())
	require.NoError(t, err)
	defer src.Close()

	require.NoError(t, os.Remove(existing))
	waitForEvent(t, src, 3*time.Second, func(ev RawEvent) bool {
		return ev.Op == Remove && ev.Path() == existing
	})

	added := filepath.Join(root, "new.md")
	writeFile(t, added, "new")
	waitForEvent(t, src, 3*time.Second, func(ev RawEvent) bool {
		return ev.Op == Create && ev.Path() == added
	})
}
