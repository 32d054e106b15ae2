// Package services holds the application logic on top of the local store:
// the record write path, push/pull sync, backup snapshots and JSON
// export/import.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/BrennanVollmar/vplm/internal/common"
	"github.com/BrennanVollmar/vplm/internal/logging"
	"github.com/BrennanVollmar/vplm/internal/models"
	"github.com/BrennanVollmar/vplm/internal/repositories/collections"
	"github.com/BrennanVollmar/vplm/internal/store"
	"github.com/google/uuid"
)

// BackupQueue receives a note that local data changed.
type BackupQueue interface {
	Queue(reason string)
}

// Records is the write path for field data. Writes to syncable collections
// enqueue an outbox item in the same transaction as the row itself, and
// every committed write queues a backup snapshot.
type Records struct {
	store  *store.Store
	backup BackupQueue
	log    logging.Logger
	now    func() time.Time
}

func NewRecords(st *store.Store, backup BackupQueue, log logging.Logger) *Records {
	if log == nil {
		log = logging.Discard()
	}
	return &Records{store: st, backup: backup, log: log.With("module", "records"), now: time.Now}
}

// SetBackup replaces the backup queue. Nil disables snapshots.
func (s *Records) SetBackup(b BackupQueue) {
	s.backup = b
}

type syncable[T any] interface {
	*T
	models.Payload
}

func (s *Records) queueBackup(reason string) {
	if s.backup != nil {
		s.backup.Queue(reason)
	}
}

// saveSynced upserts e and enqueues create or update depending on whether
// the id was already present.
func saveSynced[T any, P syncable[T]](ctx context.Context, s *Records, pick func(*store.Repos) *collections.SQLiteRepository[T, P], e P) error {
	var op models.Op
	err := s.store.WithTx(ctx, func(ctx context.Context, r *store.Repos) error {
		repo := pick(r)
		prev, err := repo.Get(ctx, e.GetID())
		if err != nil {
			return err
		}
		op = models.OpCreate
		if prev != nil {
			op = models.OpUpdate
		}
		if err := repo.Put(ctx, e); err != nil {
			return err
		}
		item, err := models.NewOutboxItem(op, e, s.now())
		if err != nil {
			return err
		}
		return r.Outbox.Enqueue(ctx, item)
	})
	if err != nil {
		return err
	}
	s.queueBackup(fmt.Sprintf("%s:%s", e.PayloadKind(), op))
	return nil
}

func saveLocal[T any, P collections.Ptr[T]](ctx context.Context, s *Records, pick func(*store.Repos) *collections.SQLiteRepository[T, P], e P, reason string) error {
	if err := pick(s.store.Repos()).Put(ctx, e); err != nil {
		return err
	}
	s.queueBackup(reason)
	return nil
}

// deleteSynced removes one record and enqueues a delete carrying its last
// known state. Deleting a missing id is a no-op.
func deleteSynced[T any, P syncable[T]](ctx context.Context, s *Records, pick func(*store.Repos) *collections.SQLiteRepository[T, P], id string) (bool, error) {
	var found bool
	var kind models.Kind
	err := s.store.WithTx(ctx, func(ctx context.Context, r *store.Repos) error {
		repo := pick(r)
		prev, err := repo.Get(ctx, id)
		if err != nil || prev == nil {
			return err
		}
		if _, err := repo.Delete(ctx, id); err != nil {
			return err
		}
		found = true
		kind = prev.PayloadKind()
		item, err := models.NewOutboxItem(models.OpDelete, prev, s.now())
		if err != nil {
			return err
		}
		return r.Outbox.Enqueue(ctx, item)
	})
	if err != nil || !found {
		return found, err
	}
	s.queueBackup(fmt.Sprintf("%s:%s", kind, models.OpDelete))
	return true, nil
}

func (s *Records) stamp(id *string, createdAt *time.Time) {
	if *id == "" {
		*id = uuid.NewString()
	}
	if createdAt.IsZero() {
		*createdAt = s.now().UTC()
	}
}

func pickJobs(r *store.Repos) *store.JobRepo                 { return r.Jobs }
func pickNotes(r *store.Repos) *store.NoteRepo               { return r.Notes }
func pickPhotos(r *store.Repos) *store.PhotoRepo             { return r.Photos }
func pickMeasurements(r *store.Repos) *store.MeasurementRepo { return r.Measurements }

// SaveJob creates or replaces a job.
func (s *Records) SaveJob(ctx context.Context, j *models.Job) error {
	s.stamp(&j.ID, &j.CreatedAt)
	j.UpdatedAt = s.now().UTC()
	return saveSynced(ctx, s, pickJobs, j)
}

// JobPatch lists the job fields an update may change. Nil leaves a field
// untouched.
type JobPatch struct {
	ClientName *string  `json:"clientName,omitempty"`
	SiteName   *string  `json:"siteName,omitempty"`
	Address    *string  `json:"address,omitempty"`
	Lat        *float64 `json:"lat,omitempty"`
	Lon        *float64 `json:"lon,omitempty"`
}

// UpdateJob applies patch to an existing job and bumps UpdatedAt.
func (s *Records) UpdateJob(ctx context.Context, id string, patch JobPatch) (*models.Job, error) {
	var updated *models.Job
	err := s.store.WithTx(ctx, func(ctx context.Context, r *store.Repos) error {
		j, err := r.Jobs.Get(ctx, id)
		if err != nil {
			return err
		}
		if j == nil {
			return fmt.Errorf("job %s: %w", id, common.ErrNotFound)
		}
		if patch.ClientName != nil {
			j.ClientName = *patch.ClientName
		}
		if patch.SiteName != nil {
			j.SiteName = *patch.SiteName
		}
		if patch.Address != nil {
			j.Address = *patch.Address
		}
		if patch.Lat != nil {
			j.Lat = patch.Lat
		}
		if patch.Lon != nil {
			j.Lon = patch.Lon
		}
		j.UpdatedAt = s.now().UTC()
		if err := r.Jobs.Put(ctx, j); err != nil {
			return err
		}
		item, err := models.NewOutboxItem(models.OpUpdate, j, s.now())
		if err != nil {
			return err
		}
		updated = j
		return r.Outbox.Enqueue(ctx, item)
	})
	if err != nil {
		return nil, err
	}
	s.queueBackup("job:update")
	return updated, nil
}

func (s *Records) SaveNote(ctx context.Context, n *models.Note) error {
	s.stamp(&n.ID, &n.CreatedAt)
	return saveSynced(ctx, s, pickNotes, n)
}

// SavePhoto stores a photo and its binary. An unreadable capture handle
// fails with *blob.EncodeError and nothing is written.
func (s *Records) SavePhoto(ctx context.Context, p *models.Photo) error {
	s.stamp(&p.ID, &p.CreatedAt)
	return saveSynced(ctx, s, pickPhotos, p)
}

func (s *Records) SaveMeasurement(ctx context.Context, m *models.Measurement) error {
	s.stamp(&m.ID, &m.CreatedAt)
	return saveSynced(ctx, s, pickMeasurements, m)
}

func (s *Records) DeleteNote(ctx context.Context, id string) (bool, error) {
	return deleteSynced(ctx, s, pickNotes, id)
}

func (s *Records) DeletePhoto(ctx context.Context, id string) (bool, error) {
	return deleteSynced(ctx, s, pickPhotos, id)
}

func (s *Records) DeleteMeasurement(ctx context.Context, id string) (bool, error) {
	return deleteSynced(ctx, s, pickMeasurements, id)
}

func (s *Records) SaveAudioNote(ctx context.Context, a *models.AudioNote) error {
	s.stamp(&a.ID, &a.CreatedAt)
	return saveLocal(ctx, s, func(r *store.Repos) *store.AudioNoteRepo { return r.AudioNotes }, a, "audio:save")
}

func (s *Records) SaveTimeEntry(ctx context.Context, e *models.TimeEntry) error {
	s.stamp(&e.ID, &e.CreatedAt)
	if e.Date == "" {
		e.Date = e.CreatedAt.Format(time.DateOnly)
	}
	return saveLocal(ctx, s, func(r *store.Repos) *store.TimeEntryRepo { return r.TimeEntries }, e, "time:save")
}

func (s *Records) SaveTask(ctx context.Context, t *models.Task) error {
	s.stamp(&t.ID, &t.CreatedAt)
	return saveLocal(ctx, s, func(r *store.Repos) *store.TaskRepo { return r.Tasks }, t, "task:save")
}

// ToggleTask flips the done flag of a task.
func (s *Records) ToggleTask(ctx context.Context, id string) (*models.Task, error) {
	var task *models.Task
	err := s.store.WithTx(ctx, func(ctx context.Context, r *store.Repos) error {
		t, err := r.Tasks.Get(ctx, id)
		if err != nil {
			return err
		}
		if t == nil {
			return fmt.Errorf("task %s: %w", id, common.ErrNotFound)
		}
		t.Done = !t.Done
		task = t
		return r.Tasks.Put(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	s.queueBackup("task:toggle")
	return task, nil
}

func (s *Records) SaveWaterQuality(ctx context.Context, w *models.WaterQuality) error {
	s.stamp(&w.ID, &w.CreatedAt)
	return saveLocal(ctx, s, func(r *store.Repos) *store.WaterQualityRepo { return r.WaterQuality }, w, "water:save")
}

func (s *Records) SaveTrack(ctx context.Context, t *models.Track) error {
	s.stamp(&t.ID, &t.CreatedAt)
	return saveLocal(ctx, s, func(r *store.Repos) *store.TrackRepo { return r.Tracks }, t, "track:save")
}

func (s *Records) SaveChecklist(ctx context.Context, c *models.Checklist) error {
	s.stamp(&c.ID, &c.CreatedAt)
	return saveLocal(ctx, s, func(r *store.Repos) *store.ChecklistRepo { return r.Checklists }, c, "checklist:save")
}

// LogJob appends a line to the job's action log.
func (s *Records) LogJob(ctx context.Context, jobID, kind, message, actor string) (*models.JobLog, error) {
	l := &models.JobLog{JobID: jobID, Kind: kind, Message: message, Actor: actor}
	s.stamp(&l.ID, &l.CreatedAt)
	if err := saveLocal(ctx, s, func(r *store.Repos) *store.JobLogRepo { return r.JobLogs }, l, "log:add"); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *Records) AddDepthPoint(ctx context.Context, d *models.DepthPoint) error {
	s.stamp(&d.ID, &d.CreatedAt)
	return saveLocal(ctx, s, func(r *store.Repos) *store.DepthPointRepo { return r.DepthPoints }, d, "depth:add")
}

func (s *Records) SavePond(ctx context.Context, p *models.Pond) error {
	s.stamp(&p.ID, &p.CreatedAt)
	return saveLocal(ctx, s, func(r *store.Repos) *store.PondRepo { return r.Ponds }, p, "pond:save")
}

func (s *Records) AddMiscPoint(ctx context.Context, m *models.MiscPoint) error {
	s.stamp(&m.ID, &m.CreatedAt)
	return saveLocal(ctx, s, func(r *store.Repos) *store.MiscPointRepo { return r.MiscPoints }, m, "point:add")
}

// SaveCalcResult keeps a calculator run; JobID may be empty.
func (s *Records) SaveCalcResult(ctx context.Context, c *models.CalcResult) error {
	s.stamp(&c.ID, &c.CreatedAt)
	return saveLocal(ctx, s, func(r *store.Repos) *store.CalcResultRepo { return r.CalcResults }, c, "calc:save")
}

func (s *Records) SaveChemProduct(ctx context.Context, p *models.ChemProduct) error {
	s.stamp(&p.ID, &p.CreatedAt)
	return saveLocal(ctx, s, func(r *store.Repos) *store.ChemProductRepo { return r.ChemProducts }, p, "chem:save")
}

// SaveChemLabel stores a product label and its file.
func (s *Records) SaveChemLabel(ctx context.Context, l *models.ChemLabel) error {
	s.stamp(&l.ID, &l.CreatedAt)
	return saveLocal(ctx, s, func(r *store.Repos) *store.ChemLabelRepo { return r.ChemLabels }, l, "label:save")
}

// CascadeResult counts the rows a job delete removed per table.
type CascadeResult struct {
	Removed  map[string]int `json:"removed"`
	Enqueued int            `json:"enqueued"`
}

// DeleteJobCascade removes a job and every record that hangs off it in one
// transaction. A delete item is enqueued for the job and for each removed
// syncable record.
func (s *Records) DeleteJobCascade(ctx context.Context, jobID string) (*CascadeResult, error) {
	res := &CascadeResult{Removed: map[string]int{}}
	err := s.store.WithTx(ctx, func(ctx context.Context, r *store.Repos) error {
		job, err := r.Jobs.Get(ctx, jobID)
		if err != nil {
			return err
		}

		var doomed []models.Payload
		ns, err := r.Notes.ListByJob(ctx, jobID)
		if err != nil {
			return err
		}
		for _, n := range ns {
			doomed = append(doomed, n)
		}
		ps, err := r.Photos.ListByJob(ctx, jobID)
		if err != nil {
			return err
		}
		for _, p := range ps {
			doomed = append(doomed, p)
		}
		ms, err := r.Measurements.ListByJob(ctx, jobID)
		if err != nil {
			return err
		}
		for _, m := range ms {
			doomed = append(doomed, m)
		}

		for _, child := range r.JobChildren() {
			ids, err := child.DeleteByJob(ctx, jobID)
			if err != nil {
				return err
			}
			if len(ids) > 0 {
				res.Removed[child.Table()] = len(ids)
			}
		}
		if job != nil {
			if _, err := r.Jobs.Delete(ctx, jobID); err != nil {
				return err
			}
			res.Removed[store.TableJobs] = 1
			doomed = append(doomed, job)
		}

		for _, p := range doomed {
			item, err := models.NewOutboxItem(models.OpDelete, p, s.now())
			if err != nil {
				return err
			}
			if err := r.Outbox.Enqueue(ctx, item); err != nil {
				return err
			}
			res.Enqueued++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(res.Removed) > 0 {
		s.queueBackup("job:delete")
	}
	return res, nil
}

// Reads.

func (s *Records) GetJob(ctx context.Context, id string) (*models.Job, error) {
	j, err := s.store.Repos().Jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if j == nil {
		return nil, fmt.Errorf("job %s: %w", id, common.ErrNotFound)
	}
	return j, nil
}

func (s *Records) ListJobs(ctx context.Context) ([]*models.Job, error) {
	return s.store.Repos().Jobs.List(ctx)
}

func (s *Records) ListNotes(ctx context.Context, jobID string) ([]*models.Note, error) {
	return s.store.Repos().Notes.ListByJob(ctx, jobID)
}

func (s *Records) ListPhotos(ctx context.Context, jobID string) ([]*models.Photo, error) {
	return s.store.Repos().Photos.ListByJob(ctx, jobID)
}

func (s *Records) ListMeasurements(ctx context.Context, jobID string) ([]*models.Measurement, error) {
	return s.store.Repos().Measurements.ListByJob(ctx, jobID)
}

func (s *Records) ListJobLogs(ctx context.Context, jobID string) ([]*models.JobLog, error) {
	return s.store.Repos().JobLogs.ListByJob(ctx, jobID)
}

func (s *Records) ListTasks(ctx context.Context, jobID string) ([]*models.Task, error) {
	return s.store.Repos().Tasks.ListByJob(ctx, jobID)
}
