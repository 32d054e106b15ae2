package services

import (
	"context"
	"sync"
	"time"

	"github.com/BrennanVollmar/vplm/internal/logging"
)

// DefaultOnlineCheckInterval is how often the watcher probes the remote.
const DefaultOnlineCheckInterval = 3 * time.Second

// OnlineWatcher probes the remote and runs a sync cycle whenever it comes
// back after being unreachable, including the first successful probe.
type OnlineWatcher struct {
	sync     *SyncService
	interval time.Duration
	log      logging.Logger

	mu     sync.Mutex
	online bool
	onSync func(SyncResult, error)
}

func NewOnlineWatcher(s *SyncService, interval time.Duration, log logging.Logger) *OnlineWatcher {
	if interval <= 0 {
		interval = DefaultOnlineCheckInterval
	}
	if log == nil {
		log = logging.Discard()
	}
	return &OnlineWatcher{sync: s, interval: interval, log: log.With("module", "online")}
}

// OnSync registers a callback for cycles the watcher triggers.
func (w *OnlineWatcher) OnSync(fn func(SyncResult, error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onSync = fn
}

// Online reports the last probe result.
func (w *OnlineWatcher) Online() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.online
}

// Check probes once and syncs on an offline to online transition. It
// reports whether the remote answered.
func (w *OnlineWatcher) Check(ctx context.Context) bool {
	if !w.sync.Configured() {
		return false
	}

	var err error
	_ = w.sync.call(ctx, func(ctx context.Context) error {
		err = w.sync.client.Ping(ctx)
		return err
	})
	online := err == nil

	w.mu.Lock()
	was := w.online
	w.online = online
	cb := w.onSync
	w.mu.Unlock()

	switch {
	case online && !was:
		w.log.Info(ctx, "remote reachable, syncing")
		res, serr := w.sync.Sync(ctx)
		if serr != nil {
			w.log.Error(ctx, "sync after reconnect failed", "error", serr)
		}
		if cb != nil {
			cb(res, serr)
		}
	case !online && was:
		w.log.Warn(ctx, "remote unreachable, working offline", "error", err)
	}
	return online
}

// Run probes every interval until ctx is done.
func (w *OnlineWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}
