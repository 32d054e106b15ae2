package store

import (
	"context"

	"github.com/BrennanVollmar/vplm/internal/dbx"
	"github.com/BrennanVollmar/vplm/internal/models"
	"github.com/BrennanVollmar/vplm/internal/repositories/backups"
	"github.com/BrennanVollmar/vplm/internal/repositories/collections"
	"github.com/BrennanVollmar/vplm/internal/repositories/metadata"
	"github.com/BrennanVollmar/vplm/internal/repositories/outbox"
)

// Table names of the entity collections.
const (
	TableJobs         = "jobs"
	TableNotes        = "notes"
	TablePhotos       = "photos"
	TableMeasurements = "measurements"
	TableAudioNotes   = "audio_notes"
	TableTimeEntries  = "time_entries"
	TableTasks        = "tasks"
	TableWaterQuality = "water_quality"
	TableTracks       = "tracks"
	TableChecklists   = "checklists"
	TableJobLogs      = "job_logs"
	TableDepthPoints  = "depth_points"
	TablePonds        = "ponds"
	TableMiscPoints   = "misc_points"
	TableCalcResults  = "calc_results"
	TableChemProducts = "chem_products"
	TableChemLabels   = "chem_labels"
)

type (
	JobRepo          = collections.SQLiteRepository[models.Job, *models.Job]
	NoteRepo         = collections.SQLiteRepository[models.Note, *models.Note]
	PhotoRepo        = collections.SQLiteRepository[models.Photo, *models.Photo]
	MeasurementRepo  = collections.SQLiteRepository[models.Measurement, *models.Measurement]
	AudioNoteRepo    = collections.SQLiteRepository[models.AudioNote, *models.AudioNote]
	TimeEntryRepo    = collections.SQLiteRepository[models.TimeEntry, *models.TimeEntry]
	TaskRepo         = collections.SQLiteRepository[models.Task, *models.Task]
	WaterQualityRepo = collections.SQLiteRepository[models.WaterQuality, *models.WaterQuality]
	TrackRepo        = collections.SQLiteRepository[models.Track, *models.Track]
	ChecklistRepo    = collections.SQLiteRepository[models.Checklist, *models.Checklist]
	JobLogRepo       = collections.SQLiteRepository[models.JobLog, *models.JobLog]
	DepthPointRepo   = collections.SQLiteRepository[models.DepthPoint, *models.DepthPoint]
	PondRepo         = collections.SQLiteRepository[models.Pond, *models.Pond]
	MiscPointRepo    = collections.SQLiteRepository[models.MiscPoint, *models.MiscPoint]
	CalcResultRepo   = collections.SQLiteRepository[models.CalcResult, *models.CalcResult]
	ChemProductRepo  = collections.SQLiteRepository[models.ChemProduct, *models.ChemProduct]
	ChemLabelRepo    = collections.SQLiteRepository[models.ChemLabel, *models.ChemLabel]
)

// JobChild is a collection whose rows hang off a job.
type JobChild interface {
	Table() string
	DeleteByJob(ctx context.Context, jobID string) ([]string, error)
	Count(ctx context.Context) (int, error)
}

// Repos bundles every repository over one handle. Build it over a *sql.Tx to
// make a group of writes atomic.
type Repos struct {
	Jobs         *JobRepo
	Notes        *NoteRepo
	Photos       *PhotoRepo
	Measurements *MeasurementRepo
	AudioNotes   *AudioNoteRepo
	TimeEntries  *TimeEntryRepo
	Tasks        *TaskRepo
	WaterQuality *WaterQualityRepo
	Tracks       *TrackRepo
	Checklists   *ChecklistRepo
	JobLogs      *JobLogRepo
	DepthPoints  *DepthPointRepo
	Ponds        *PondRepo
	MiscPoints   *MiscPointRepo
	CalcResults  *CalcResultRepo
	ChemProducts *ChemProductRepo
	ChemLabels   *ChemLabelRepo

	Outbox   outbox.Repository
	Metadata metadata.Repository
	Backups  backups.Repository
}

func NewRepos(db dbx.DBTX) *Repos {
	return &Repos{
		Jobs:         collections.NewSQLiteRepository[models.Job](db, TableJobs),
		Notes:        collections.NewSQLiteRepository[models.Note](db, TableNotes),
		Photos:       collections.NewSQLiteRepository[models.Photo](db, TablePhotos),
		Measurements: collections.NewSQLiteRepository[models.Measurement](db, TableMeasurements),
		AudioNotes:   collections.NewSQLiteRepository[models.AudioNote](db, TableAudioNotes),
		TimeEntries:  collections.NewSQLiteRepository[models.TimeEntry](db, TableTimeEntries),
		Tasks:        collections.NewSQLiteRepository[models.Task](db, TableTasks),
		WaterQuality: collections.NewSQLiteRepository[models.WaterQuality](db, TableWaterQuality),
		Tracks:       collections.NewSQLiteRepository[models.Track](db, TableTracks),
		Checklists:   collections.NewSQLiteRepository[models.Checklist](db, TableChecklists),
		JobLogs:      collections.NewSQLiteRepository[models.JobLog](db, TableJobLogs),
		DepthPoints:  collections.NewSQLiteRepository[models.DepthPoint](db, TableDepthPoints),
		Ponds:        collections.NewSQLiteRepository[models.Pond](db, TablePonds),
		MiscPoints:   collections.NewSQLiteRepository[models.MiscPoint](db, TableMiscPoints),
		CalcResults:  collections.NewSQLiteRepository[models.CalcResult](db, TableCalcResults),
		ChemProducts: collections.NewSQLiteRepository[models.ChemProduct](db, TableChemProducts),
		ChemLabels:   collections.NewSQLiteRepository[models.ChemLabel](db, TableChemLabels),

		Outbox:   outbox.NewSQLiteRepository(db),
		Metadata: metadata.NewSQLiteRepository(db),
		Backups:  backups.NewSQLiteRepository(db),
	}
}

// JobChildren lists every collection keyed by job id, syncable ones first.
// The chem catalog and its labels are not job data and stay out.
func (r *Repos) JobChildren() []JobChild {
	return []JobChild{
		r.Notes, r.Photos, r.Measurements,
		r.AudioNotes, r.TimeEntries, r.Tasks, r.WaterQuality,
		r.Tracks, r.Checklists, r.JobLogs, r.DepthPoints,
		r.Ponds, r.MiscPoints, r.CalcResults,
	}
}
