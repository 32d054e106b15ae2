// Package watch imports export documents dropped into a folder. Each *.json
// file is imported once it has stopped changing for a short settle delay,
// then moved to imported/ (or failed/ when the import is rejected).
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BrennanVollmar/vplm/internal/filex"
	"github.com/BrennanVollmar/vplm/internal/logging"
	"github.com/BrennanVollmar/vplm/internal/scheduler"
	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long a file must be quiet before it is imported.
const DefaultSettle = 500 * time.Millisecond

const (
	importedDir = "imported"
	failedDir   = "failed"
)

// ImportFunc imports the document at path.
type ImportFunc func(ctx context.Context, path string) error

// Watcher watches one directory.
type Watcher struct {
	dir      string
	settle   time.Duration
	clock    scheduler.Clock
	doImport ImportFunc
	logger   logging.Logger

	mu      sync.Mutex
	pending map[string]*scheduler.Debouncer
	closed  bool
	wg      sync.WaitGroup
}

// New returns a watcher over dir. A zero settle uses DefaultSettle.
func New(dir string, settle time.Duration, fn ImportFunc, l logging.Logger) *Watcher {
	if settle <= 0 {
		settle = DefaultSettle
	}
	return &Watcher{
		dir:      dir,
		settle:   settle,
		clock:    scheduler.RealClock(),
		doImport: fn,
		logger:   l.With("module", "watch"),
		pending:  map[string]*scheduler.Debouncer{},
	}
}

// Run watches until ctx is cancelled. Files already in the directory are
// queued on start.
func (w *Watcher) Run(ctx context.Context) error {
	dir, err := filex.EnsureDir(w.dir)
	if err != nil {
		return err
	}
	w.dir = dir

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	existing, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return err
	}
	for _, p := range existing {
		w.queue(ctx, p)
	}

	w.logger.Info(ctx, "watching import folder", "dir", dir)
	defer w.stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.queue(ctx, event.Name)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn(ctx, "watch error", "error", err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !strings.HasSuffix(event.Name, ".json") || strings.HasPrefix(filepath.Base(event.Name), ".") {
		return false
	}
	if filepath.Dir(event.Name) != w.dir {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write)
}

// queue (re)starts the settle timer for path.
func (w *Watcher) queue(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	d, ok := w.pending[path]
	if !ok {
		d = scheduler.NewDebouncer(w.clock, w.settle, func(p string) {
			w.mu.Lock()
			if w.closed {
				w.mu.Unlock()
				return
			}
			delete(w.pending, p)
			w.wg.Add(1)
			w.mu.Unlock()

			defer w.wg.Done()
			w.process(ctx, p)
		})
		w.pending[path] = d
	}
	d.Schedule(path)
}

func (w *Watcher) process(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}

	dest := importedDir
	if err := w.doImport(ctx, path); err != nil {
		w.logger.Error(ctx, "import failed", "file", path, "error", err)
		dest = failedDir
	} else {
		w.logger.Info(ctx, "imported", "file", path)
	}

	if err := moveInto(filepath.Join(w.dir, dest), path); err != nil {
		w.logger.Error(ctx, "failed to move imported file", "file", path, "error", err)
	}
}

func (w *Watcher) stop() {
	w.mu.Lock()
	w.closed = true
	for _, d := range w.pending {
		d.Cancel()
	}
	w.pending = map[string]*scheduler.Debouncer{}
	w.mu.Unlock()
	w.wg.Wait()
}

// moveInto moves path into dir, adding a numeric suffix on a name clash.
func moveInto(dir, path string) error {
	if _, err := filex.EnsureDir(dir); err != nil {
		return err
	}
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	for i := 0; i < 1000; i++ {
		name := base
		if i > 0 {
			name = fmt.Sprintf("%s-%d%s", stem, i, ext)
		}
		target := filepath.Join(dir, name)
		if _, err := os.Stat(target); err == nil {
			continue
		}
		return os.Rename(path, target)
	}
	return fmt.Errorf("no free name for %s in %s", base, dir)
}
