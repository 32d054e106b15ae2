package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/BrennanVollmar/vplm/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type importLog struct {
	mu    sync.Mutex
	paths []string
	fail  map[string]bool
}

func (l *importLog) fn(ctx context.Context, path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paths = append(l.paths, filepath.Base(path))
	if l.fail[filepath.Base(path)] {
		return errors.New("rejected")
	}
	return nil
}

func (l *importLog) got() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.paths...)
}

func start(t *testing.T, dir string, log *importLog) {
	t.Helper()
	w := New(dir, 30*time.Millisecond, log.fn, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestWatcher_ImportsExistingAndNewFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "early.json"), []byte(`{}`), 0o600))

	log := &importLog{}
	start(t, dir, log)

	require.Eventually(t, func() bool { return exists(filepath.Join(dir, importedDir, "early.json")) },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "late.json"), []byte(`{}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(`x`), 0o600))

	require.Eventually(t, func() bool { return exists(filepath.Join(dir, importedDir, "late.json")) },
		2*time.Second, 10*time.Millisecond)

	assert.ElementsMatch(t, []string{"early.json", "late.json"}, log.got())
	assert.True(t, exists(filepath.Join(dir, "notes.txt")))
}

func TestWatcher_RejectedFileMovesToFailed(t *testing.T) {
	dir := t.TempDir()
	log := &importLog{fail: map[string]bool{"bad.json": true}}
	start(t, dir, log)

	// give the watcher a moment to register the directory
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`nope`), 0o600))

	require.Eventually(t, func() bool { return exists(filepath.Join(dir, failedDir, "bad.json")) },
		2*time.Second, 10*time.Millisecond)
	assert.False(t, exists(filepath.Join(dir, "bad.json")))
}

func TestMoveInto_RenamesOnClash(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, importedDir)
	require.NoError(t, os.MkdirAll(dest, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "a.json"), []byte(`old`), 0o600))

	src := filepath.Join(dir, "a.json")
	require.NoError(t, os.WriteFile(src, []byte(`new`), 0o600))
	require.NoError(t, moveInto(dest, src))

	b, err := os.ReadFile(filepath.Join(dest, "a-1.json"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(b))
	assert.False(t, exists(src))
}
