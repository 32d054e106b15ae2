package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/BrennanVollmar/vplm/internal/common"
	"github.com/BrennanVollmar/vplm/internal/cryptox"
	"github.com/BrennanVollmar/vplm/internal/filex"
	"github.com/BrennanVollmar/vplm/internal/logging"
	"github.com/BrennanVollmar/vplm/internal/repositories/backups"
	"github.com/BrennanVollmar/vplm/internal/scheduler"
	"github.com/BrennanVollmar/vplm/internal/store"
	"github.com/google/uuid"
)

// Backup defaults.
const (
	DefaultBackupDelay      = 1500 * time.Millisecond
	DefaultBackupHistoryCap = 10
)

// BackupEntry is one snapshot of the whole store.
type BackupEntry struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Reason    string    `json:"reason"`
	Checksum  string    `json:"checksum"`
	Data      *Document `json:"data"`
}

// BackupConfig tunes a BackupService.
type BackupConfig struct {
	// Delay is the quiet period after the last change before a snapshot.
	Delay time.Duration
	// HistoryCap is how many snapshots are kept.
	HistoryCap int
	Clock      scheduler.Clock
}

// BackupService takes debounced snapshots of the store into a capped
// history. Reads never fail: damaged history degrades to what can be read.
type BackupService struct {
	store    *store.Store
	exchange *Exchange
	cfg      BackupConfig
	log      logging.Logger
	deb      *scheduler.Debouncer

	onSnapshot func(*BackupEntry, error)
}

func NewBackupService(st *store.Store, x *Exchange, cfg BackupConfig, log logging.Logger) *BackupService {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultBackupDelay
	}
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = DefaultBackupHistoryCap
	}
	if cfg.Clock == nil {
		cfg.Clock = scheduler.RealClock()
	}
	if log == nil {
		log = logging.Discard()
	}
	b := &BackupService{store: st, exchange: x, cfg: cfg, log: log.With("module", "backup")}
	b.deb = scheduler.NewDebouncer(cfg.Clock, cfg.Delay, b.snapshotNow)
	return b
}

// OnSnapshot registers a callback run after every debounced snapshot.
func (b *BackupService) OnSnapshot(fn func(*BackupEntry, error)) {
	b.onSnapshot = fn
}

// Queue asks for a snapshot once changes settle.
func (b *BackupService) Queue(reason string) {
	b.deb.Schedule(reason)
}

// Pending reports whether a snapshot is waiting for the quiet period.
func (b *BackupService) Pending() bool {
	return b.deb.Pending()
}

// Flush takes the pending snapshot immediately, e.g. before exit.
func (b *BackupService) Flush() bool {
	return b.deb.Flush()
}

// Stop drops a pending snapshot.
func (b *BackupService) Stop() {
	b.deb.Cancel()
}

func (b *BackupService) snapshotNow(reason string) {
	ctx := context.Background()
	entry, err := b.CreateSnapshot(ctx, reason)
	if err != nil {
		b.log.Error(ctx, "backup snapshot failed", "reason", reason, "error", err)
	}
	if b.onSnapshot != nil {
		b.onSnapshot(entry, err)
	}
}

// CreateSnapshot exports the store with media, appends it to the history,
// evicts the oldest entries beyond the cap and moves the latest pointer, all
// in one transaction.
func (b *BackupService) CreateSnapshot(ctx context.Context, reason string) (*BackupEntry, error) {
	var entry *BackupEntry
	err := b.store.WithTx(ctx, func(ctx context.Context, r *store.Repos) error {
		doc, err := b.exchange.export(ctx, r, true)
		if err != nil {
			return err
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		sum := sha256.Sum256(data)

		entry = &BackupEntry{
			ID:        uuid.NewString(),
			CreatedAt: b.cfg.Clock.Now().UTC(),
			Reason:    reason,
			Checksum:  hex.EncodeToString(sum[:]),
			Data:      doc,
		}
		rec := &backups.Record{ID: entry.ID, CreatedAt: entry.CreatedAt, Reason: reason, Checksum: entry.Checksum, Data: data}
		if err := r.Backups.Insert(ctx, rec); err != nil {
			return err
		}
		evicted, err := r.Backups.Trim(ctx, b.cfg.HistoryCap)
		if err != nil {
			return err
		}
		if len(evicted) > 0 {
			b.log.Debug(ctx, "backup history trimmed", "evicted", len(evicted))
		}
		return r.Metadata.Set(ctx, common.MetaBackupLatest, []byte(entry.ID))
	})
	if err != nil {
		return nil, err
	}
	b.log.Info(ctx, "backup snapshot saved", "id", entry.ID, "reason", reason)
	return entry, nil
}

// History returns readable snapshots, newest first.
func (b *BackupService) History(ctx context.Context) []*BackupEntry {
	recs, err := b.store.Repos().Backups.List(ctx)
	if err != nil {
		b.log.Error(ctx, "backup history unreadable", "error", fmt.Errorf("%w: %w", common.ErrStorageCorruption, err))
		return []*BackupEntry{}
	}
	out := make([]*BackupEntry, 0, len(recs))
	for _, rec := range recs {
		entry, err := decodeBackup(rec)
		if err != nil {
			b.log.Warn(ctx, "skipping damaged backup", "id", rec.ID, "error", err)
			continue
		}
		out = append(out, entry)
	}
	return out
}

// Get returns one snapshot, nil when it is missing or damaged.
func (b *BackupService) Get(ctx context.Context, id string) *BackupEntry {
	rec, err := b.store.Repos().Backups.Get(ctx, id)
	if err != nil {
		b.log.Error(ctx, "backup unreadable", "id", id, "error", fmt.Errorf("%w: %w", common.ErrStorageCorruption, err))
		return nil
	}
	if rec == nil {
		return nil
	}
	entry, err := decodeBackup(rec)
	if err != nil {
		b.log.Warn(ctx, "damaged backup", "id", id, "error", err)
		return nil
	}
	return entry
}

// Latest follows the latest pointer and falls back to the newest readable
// snapshot when the pointer is missing or dangling. Nil when there is none.
func (b *BackupService) Latest(ctx context.Context) *BackupEntry {
	id, err := b.store.Repos().Metadata.Get(ctx, common.MetaBackupLatest)
	if err != nil {
		b.log.Warn(ctx, "latest backup pointer unreadable", "error", err)
	}
	if len(id) > 0 {
		if entry := b.Get(ctx, string(id)); entry != nil {
			return entry
		}
	}
	if h := b.History(ctx); len(h) > 0 {
		return h[0]
	}
	return nil
}

// Clear drops the history and the latest pointer. Failures are logged.
func (b *BackupService) Clear(ctx context.Context) {
	err := b.store.WithTx(ctx, func(ctx context.Context, r *store.Repos) error {
		if err := r.Backups.Clear(ctx); err != nil {
			return err
		}
		return r.Metadata.Delete(ctx, common.MetaBackupLatest)
	})
	if err != nil {
		b.log.Error(ctx, "clearing backups failed", "error", err)
	}
}

func decodeBackup(rec *backups.Record) (*BackupEntry, error) {
	sum := sha256.Sum256(rec.Data)
	if rec.Checksum != "" && hex.EncodeToString(sum[:]) != rec.Checksum {
		return nil, fmt.Errorf("checksum mismatch: %w", common.ErrStorageCorruption)
	}
	var doc Document
	if err := json.Unmarshal(rec.Data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrStorageCorruption, err)
	}
	return &BackupEntry{ID: rec.ID, CreatedAt: rec.CreatedAt, Reason: rec.Reason, Checksum: rec.Checksum, Data: &doc}, nil
}

// WriteBackupFile saves entry as vplm-backup-<timestamp>.json in dir without
// replacing an existing file, and returns the path written.
func WriteBackupFile(dir string, entry *BackupEntry) (string, error) {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode backup: %w", err)
	}
	return filex.WriteNew(dir, backupFileBase(entry), ".json", data)
}

// WriteSealedBackupFile is WriteBackupFile with the content sealed under
// passphrase. The file gets a .json.sealed extension.
func WriteSealedBackupFile(dir string, entry *BackupEntry, passphrase []byte) (string, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("encode backup: %w", err)
	}
	sealed, err := cryptox.Seal(data, passphrase)
	if err != nil {
		return "", fmt.Errorf("seal backup: %w", err)
	}
	return filex.WriteNew(dir, backupFileBase(entry), ".json.sealed", sealed)
}

func backupFileBase(entry *BackupEntry) string {
	return "vplm-backup-" + entry.CreatedAt.UTC().Format("20060102T150405Z")
}

// ReadBackupFile loads a file written by WriteBackupFile or
// WriteSealedBackupFile. passphrase is only called for sealed files.
func ReadBackupFile(path string, passphrase func() ([]byte, error)) (*BackupEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read backup: %w", err)
	}
	if cryptox.IsSealed(data) {
		pass, err := passphrase()
		if err != nil {
			return nil, err
		}
		if data, err = cryptox.Open(data, pass); err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
	}

	var entry BackupEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode backup %s: %w", path, err)
	}
	if entry.Data == nil {
		return nil, fmt.Errorf("backup %s has no data", path)
	}
	return &entry, nil
}
