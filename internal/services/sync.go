package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/BrennanVollmar/vplm/internal/blob"
	"github.com/BrennanVollmar/vplm/internal/common"
	"github.com/BrennanVollmar/vplm/internal/logging"
	"github.com/BrennanVollmar/vplm/internal/models"
	"github.com/BrennanVollmar/vplm/internal/remote"
	"github.com/BrennanVollmar/vplm/internal/store"
)

// Sync defaults.
const (
	DefaultRequestTimeout = 12 * time.Second
	DefaultPullPageSize   = 500
)

// PushFailure reports one outbox item the remote did not accept. The item
// stays queued.
type PushFailure struct {
	ItemID   string
	EntityID string
	Kind     models.Kind
	Op       models.Op
	Err      error
}

func (e *PushFailure) Error() string {
	return fmt.Sprintf("push %s %s %s: %v", e.Op, e.Kind, e.EntityID, e.Err)
}

func (e *PushFailure) Unwrap() error { return e.Err }

// PullFailure reports a collection that could not be pulled.
type PullFailure struct {
	Collection string
	Err        error
}

func (e *PullFailure) Error() string {
	return fmt.Sprintf("pull %s: %v", e.Collection, e.Err)
}

func (e *PullFailure) Unwrap() error { return e.Err }

// SyncResult summarises one cycle.
type SyncResult struct {
	Pushed   int     `json:"pushed"`
	Pulled   int     `json:"pulled"`
	Failures []error `json:"-"`
}

// Err folds the failures of the cycle into one error matching
// common.ErrSyncIncomplete, or nil for a clean cycle.
func (r SyncResult) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", common.ErrSyncIncomplete, errors.Join(r.Failures...))
}

// FailureMessages renders the failures for display.
func (r SyncResult) FailureMessages() []string {
	out := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		out = append(out, f.Error())
	}
	return out
}

// SyncConfig tunes a SyncService.
type SyncConfig struct {
	// RequestTimeout bounds every single remote call.
	RequestTimeout time.Duration
	// PullPageSize caps the rows fetched per collection.
	PullPageSize int
	// BatchSize caps the outbox items pushed per cycle, 0 means all.
	BatchSize int
}

// pulled collections, in order
var pullOrder = []models.Kind{models.KindJob, models.KindNote, models.KindMeasurement, models.KindPhoto}

// SyncService replicates the outbox to the remote and pulls remote rows
// back. Cycles never overlap.
type SyncService struct {
	store  *store.Store
	client remote.Client
	blobs  remote.BlobStore
	cfg    SyncConfig
	log    logging.Logger
	now    func() time.Time

	mu sync.Mutex
}

// NewSyncService builds a sync engine. client may be nil when no remote is
// configured; blobs may be nil, in which case photo binaries stay local.
func NewSyncService(st *store.Store, client remote.Client, blobs remote.BlobStore, cfg SyncConfig, log logging.Logger) *SyncService {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.PullPageSize <= 0 {
		cfg.PullPageSize = DefaultPullPageSize
	}
	if log == nil {
		log = logging.Discard()
	}
	return &SyncService{store: st, client: client, blobs: blobs, cfg: cfg, log: log.With("module", "sync"), now: time.Now}
}

// Configured reports whether a remote is set.
func (s *SyncService) Configured() bool {
	return s.client != nil
}

// Sync runs one push-then-pull cycle. Remote failures are collected in the
// result; the error is reserved for local store failures. Cancelling ctx
// does not interrupt a running cycle, each remote call has its own timeout.
func (s *SyncService) Sync(ctx context.Context) (SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return SyncResult{}, nil
	}
	ctx = context.WithoutCancel(ctx)

	var res SyncResult
	if err := s.push(ctx, &res); err != nil {
		return res, err
	}
	if err := s.pull(ctx, &res); err != nil {
		return res, err
	}

	stamp := []byte(strconv.FormatInt(s.now().UTC().UnixNano(), 10))
	if err := s.store.Repos().Metadata.Set(ctx, common.MetaLastSyncAt, stamp); err != nil {
		return res, err
	}

	s.log.Info(ctx, "sync finished", "pushed", res.Pushed, "pulled", res.Pulled, "failures", len(res.Failures))
	return res, nil
}

// LastSyncAt returns the time of the last finished cycle, zero when none.
func (s *SyncService) LastSyncAt(ctx context.Context) (time.Time, error) {
	b, err := s.store.Repos().Metadata.Get(ctx, common.MetaLastSyncAt)
	if err != nil || len(b) == 0 {
		return time.Time{}, err
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", common.MetaLastSyncAt, common.ErrStorageCorruption)
	}
	return time.Unix(0, n).UTC(), nil
}

func (s *SyncService) push(ctx context.Context, res *SyncResult) error {
	repos := s.store.Repos()
	items, err := repos.Outbox.Pending(ctx, s.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, item := range items {
		if err := s.pushItem(ctx, item); err != nil {
			f := &PushFailure{ItemID: item.ID, EntityID: item.EntityID, Kind: item.Kind, Op: item.Op, Err: err}
			s.log.Warn(ctx, "push failed, item kept", "item", item.ID, "kind", item.Kind, "op", item.Op, "error", err)
			res.Failures = append(res.Failures, f)
			continue
		}
		if _, err := repos.Outbox.Remove(ctx, item.ID); err != nil {
			return err
		}
		res.Pushed++
	}
	return nil
}

func (s *SyncService) pushItem(ctx context.Context, item *models.OutboxItem) error {
	collection := item.Kind.Collection()
	if collection == "" {
		return fmt.Errorf("unknown payload kind %q", item.Kind)
	}

	if item.Op == models.OpDelete {
		return s.call(ctx, func(ctx context.Context) error {
			return s.client.Delete(ctx, collection, item.EntityID)
		})
	}

	row := json.RawMessage(item.Payload)
	if item.Kind == models.KindPhoto {
		var err error
		if row, err = s.preparePhoto(ctx, item); err != nil {
			return err
		}
	}
	return s.call(ctx, func(ctx context.Context) error {
		return s.client.Upsert(ctx, collection, row)
	})
}

// preparePhoto uploads the photo binary when it has not been uploaded yet
// and returns the row to upsert with serverUri filled in.
func (s *SyncService) preparePhoto(ctx context.Context, item *models.OutboxItem) (json.RawMessage, error) {
	p, err := item.Envelope().Unwrap()
	if err != nil {
		return nil, err
	}
	photo := p.(models.Photo)

	repos := s.store.Repos()
	local, err := repos.Photos.Get(ctx, item.EntityID)
	if err != nil {
		return nil, err
	}
	if local != nil && photo.ServerURI == "" {
		photo.ServerURI = local.ServerURI
	}

	if photo.ServerURI == "" && local != nil && !local.Blob.Empty() && s.blobs == nil {
		s.log.Warn(ctx, "no blob store configured, photo pushed without its binary", "photo", photo.ID, "job", photo.JobID)
	}
	if photo.ServerURI == "" && local != nil && !local.Blob.Empty() && s.blobs != nil {
		data, err := local.Blob.Bytes()
		if err != nil {
			return nil, err
		}
		mimeType := local.Blob.MimeType()
		path := photo.JobID + "/" + photo.ID + blob.Ext(mimeType)

		err = s.call(ctx, func(ctx context.Context) error {
			return s.blobs.Upload(ctx, path, data, mimeType)
		})
		if err != nil && !errors.Is(err, common.ErrAlreadyExists) {
			return nil, fmt.Errorf("upload %s: %w", path, err)
		}

		photo.ServerURI = s.blobs.PublicURL(path)
		upd := *local
		upd.ServerURI = photo.ServerURI
		upd.Blob = nil
		if err := repos.Photos.Put(ctx, &upd); err != nil {
			return nil, err
		}
	}

	return json.Marshal(photo)
}

func (s *SyncService) pull(ctx context.Context, res *SyncResult) error {
	queued, err := s.store.Repos().Outbox.List(ctx)
	if err != nil {
		return err
	}
	// rows with unpushed local changes are left alone until those land
	pending := make(map[string]bool, len(queued))
	for _, it := range queued {
		pending[string(it.Kind)+":"+it.EntityID] = true
	}

	for _, kind := range pullOrder {
		collection := kind.Collection()

		var rows []json.RawMessage
		err := s.call(ctx, func(ctx context.Context) error {
			var err error
			rows, err = s.client.Fetch(ctx, collection, s.cfg.PullPageSize)
			return err
		})
		if err != nil {
			s.log.Warn(ctx, "pull failed", "collection", collection, "error", err)
			res.Failures = append(res.Failures, &PullFailure{Collection: collection, Err: err})
			continue
		}

		n, err := s.apply(ctx, kind, rows, pending)
		res.Pulled += n
		if err != nil {
			var pf *PullFailure
			if errors.As(err, &pf) {
				s.log.Warn(ctx, "pull rows rejected", "collection", collection, "error", pf.Err)
				res.Failures = append(res.Failures, pf)
				continue
			}
			return err
		}
	}
	return nil
}

// apply upserts pulled rows in one transaction. Photos are decoded over the
// existing local record so fields the remote does not carry, the binary
// above all, survive.
func (s *SyncService) apply(ctx context.Context, kind models.Kind, rows []json.RawMessage, pending map[string]bool) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	collection := kind.Collection()
	n := 0
	err := s.store.WithTx(ctx, func(ctx context.Context, r *store.Repos) error {
		for _, row := range rows {
			id, err := remote.RowID(row)
			if err != nil {
				return &decodeError{err}
			}
			if pending[string(kind)+":"+id] {
				continue
			}
			if err := applyRow(ctx, r, kind, id, row); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		var de *decodeError
		if errors.As(err, &de) {
			return 0, &PullFailure{Collection: collection, Err: de.err}
		}
		return 0, err
	}
	return n, nil
}

type decodeError struct{ err error }

func (e *decodeError) Error() string { return e.err.Error() }

func applyRow(ctx context.Context, r *store.Repos, kind models.Kind, id string, row json.RawMessage) error {
	switch kind {
	case models.KindJob:
		return applyDecoded(ctx, row, r.Jobs.Put, func() *models.Job { return &models.Job{} })
	case models.KindNote:
		return applyDecoded(ctx, row, r.Notes.Put, func() *models.Note { return &models.Note{} })
	case models.KindMeasurement:
		return applyDecoded(ctx, row, r.Measurements.Put, func() *models.Measurement { return &models.Measurement{} })
	case models.KindPhoto:
		existing, err := r.Photos.Get(ctx, id)
		if err != nil {
			return err
		}
		return applyDecoded(ctx, row, r.Photos.Put, func() *models.Photo {
			if existing != nil {
				existing.Blob = nil
				return existing
			}
			return &models.Photo{}
		})
	default:
		return &decodeError{fmt.Errorf("unknown kind %q", kind)}
	}
}

func applyDecoded[P models.Entity](ctx context.Context, row json.RawMessage, put func(context.Context, P) error, base func() P) error {
	e := base()
	if err := json.Unmarshal(row, e); err != nil {
		return &decodeError{fmt.Errorf("decode row: %w", err)}
	}
	if e.GetID() == "" {
		return &decodeError{errors.New("row without id")}
	}
	return put(ctx, e)
}

// call runs fn with the per-request timeout.
func (s *SyncService) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()
	return fn(ctx)
}
