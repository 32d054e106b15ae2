package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/BrennanVollmar/vplm/internal/blob"
	"github.com/BrennanVollmar/vplm/internal/logging"
	"github.com/BrennanVollmar/vplm/internal/models"
	"github.com/BrennanVollmar/vplm/internal/store"
)

// ExportDisclaimer is attached to every export document.
const ExportDisclaimer = "Field export for offline backup. Contains estimates only; verify against product labels and regulations."

// ExportPhoto is a photo with its binary inlined as a data URI.
type ExportPhoto struct {
	models.Photo
	DataURL string `json:"dataUrl,omitempty"`
}

// ExportAudioNote is an audio note with its binary inlined as a data URI.
type ExportAudioNote struct {
	models.AudioNote
	DataURL string `json:"dataUrl,omitempty"`
}

// ExportChemLabel is a product label with its file inlined as a data URI.
type ExportChemLabel struct {
	models.ChemLabel
	DataURL string `json:"dataUrl,omitempty"`
}

// Document is the portable JSON form of the whole local store. Collections
// missing from an imported document are treated as empty.
type Document struct {
	ExportedAt   time.Time              `json:"exportedAt"`
	Jobs         []*models.Job          `json:"jobs"`
	Notes        []*models.Note         `json:"notes"`
	Photos       []*ExportPhoto         `json:"photos"`
	Measurements []*models.Measurement  `json:"measurements"`
	AudioNotes   []*ExportAudioNote     `json:"audioNotes,omitempty"`
	TimeEntries  []*models.TimeEntry    `json:"timeEntries,omitempty"`
	Tasks        []*models.Task         `json:"tasks,omitempty"`
	WaterQuality []*models.WaterQuality `json:"waterQuality,omitempty"`
	Tracks       []*models.Track        `json:"tracks,omitempty"`
	Checklists   []*models.Checklist    `json:"checklists,omitempty"`
	JobLogs      []*models.JobLog       `json:"jobLogs,omitempty"`
	DepthPoints  []*models.DepthPoint   `json:"depthPoints,omitempty"`
	Ponds        []*models.Pond         `json:"ponds,omitempty"`
	MiscPoints   []*models.MiscPoint    `json:"miscPoints,omitempty"`
	CalcResults  []*models.CalcResult   `json:"calcResults,omitempty"`
	ChemProducts []*models.ChemProduct  `json:"chemProducts,omitempty"`
	ChemLabels   []*ExportChemLabel     `json:"chemLabels,omitempty"`
	Outbox       []*models.OutboxItem   `json:"outbox"`
	Disclaimer   string                 `json:"disclaimer,omitempty"`
}

// ImportCounts is the number of records imported per collection.
type ImportCounts map[string]int

// Exchange converts the store to and from a Document.
type Exchange struct {
	store *store.Store
	log   logging.Logger
	now   func() time.Time
}

func NewExchange(st *store.Store, log logging.Logger) *Exchange {
	if log == nil {
		log = logging.Discard()
	}
	return &Exchange{store: st, log: log.With("module", "exchange"), now: time.Now}
}

// Export reads every collection. With includeMedia, binaries are inlined as
// data URIs.
func (x *Exchange) Export(ctx context.Context, includeMedia bool) (*Document, error) {
	var doc *Document
	// one read transaction gives a consistent view
	err := x.store.WithTx(ctx, func(ctx context.Context, r *store.Repos) error {
		var err error
		doc, err = x.export(ctx, r, includeMedia)
		return err
	})
	return doc, err
}

func (x *Exchange) export(ctx context.Context, r *store.Repos, includeMedia bool) (*Document, error) {
	doc := &Document{ExportedAt: x.now().UTC(), Disclaimer: ExportDisclaimer}
	var err error

	if doc.Jobs, err = r.Jobs.List(ctx); err != nil {
		return nil, err
	}
	if doc.Notes, err = r.Notes.List(ctx); err != nil {
		return nil, err
	}
	if doc.Measurements, err = r.Measurements.List(ctx); err != nil {
		return nil, err
	}

	photos, err := r.Photos.List(ctx)
	if err != nil {
		return nil, err
	}
	doc.Photos = make([]*ExportPhoto, 0, len(photos))
	for _, p := range photos {
		out := &ExportPhoto{Photo: *p}
		if includeMedia {
			out.DataURL = x.dataURL(ctx, p.Blob, "photo", p.ID)
		}
		out.Photo.Blob = nil
		doc.Photos = append(doc.Photos, out)
	}

	audio, err := r.AudioNotes.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range audio {
		out := &ExportAudioNote{AudioNote: *a}
		if includeMedia {
			out.DataURL = x.dataURL(ctx, a.Blob, "audio", a.ID)
		}
		out.AudioNote.Blob = nil
		doc.AudioNotes = append(doc.AudioNotes, out)
	}

	if doc.TimeEntries, err = r.TimeEntries.List(ctx); err != nil {
		return nil, err
	}
	if doc.Tasks, err = r.Tasks.List(ctx); err != nil {
		return nil, err
	}
	if doc.WaterQuality, err = r.WaterQuality.List(ctx); err != nil {
		return nil, err
	}
	if doc.Tracks, err = r.Tracks.List(ctx); err != nil {
		return nil, err
	}
	if doc.Checklists, err = r.Checklists.List(ctx); err != nil {
		return nil, err
	}
	if doc.JobLogs, err = r.JobLogs.List(ctx); err != nil {
		return nil, err
	}
	if doc.DepthPoints, err = r.DepthPoints.List(ctx); err != nil {
		return nil, err
	}
	if doc.Ponds, err = r.Ponds.List(ctx); err != nil {
		return nil, err
	}
	if doc.MiscPoints, err = r.MiscPoints.List(ctx); err != nil {
		return nil, err
	}
	if doc.CalcResults, err = r.CalcResults.List(ctx); err != nil {
		return nil, err
	}
	if doc.ChemProducts, err = r.ChemProducts.List(ctx); err != nil {
		return nil, err
	}

	labels, err := r.ChemLabels.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, l := range labels {
		out := &ExportChemLabel{ChemLabel: *l}
		if includeMedia {
			out.DataURL = x.dataURL(ctx, l.Blob, "label", l.ID)
		}
		out.ChemLabel.Blob = nil
		doc.ChemLabels = append(doc.ChemLabels, out)
	}

	if doc.Outbox, err = r.Outbox.List(ctx); err != nil {
		return nil, err
	}
	return doc, nil
}

// dataURL inlines a binary; an unreadable one is logged and left out.
func (x *Exchange) dataURL(ctx context.Context, ref *blob.Ref, kind, id string) string {
	if ref.Empty() {
		return ""
	}
	b, err := ref.Bytes()
	if err != nil {
		x.log.Warn(ctx, "media left out of export", "kind", kind, "id", id, "error", err)
		return ""
	}
	return blob.DataURI(b, ref.MimeType())
}

// Import upserts every record of doc in one transaction and restores its
// outbox items that are not already queued.
func (x *Exchange) Import(ctx context.Context, doc *Document) (ImportCounts, error) {
	counts := ImportCounts{}
	err := x.store.WithTx(ctx, func(ctx context.Context, r *store.Repos) error {
		if err := putAll(ctx, r.Jobs.Put, doc.Jobs); err != nil {
			return err
		}
		counts[store.TableJobs] = len(doc.Jobs)
		if err := putAll(ctx, r.Notes.Put, doc.Notes); err != nil {
			return err
		}
		counts[store.TableNotes] = len(doc.Notes)
		if err := putAll(ctx, r.Measurements.Put, doc.Measurements); err != nil {
			return err
		}
		counts[store.TableMeasurements] = len(doc.Measurements)

		for _, p := range doc.Photos {
			if p == nil {
				continue
			}
			photo := p.Photo
			photo.Blob = x.fromDataURL(ctx, p.DataURL, "photo", photo.ID)
			if err := r.Photos.Put(ctx, &photo); err != nil {
				return err
			}
			counts[store.TablePhotos]++
		}
		for _, a := range doc.AudioNotes {
			if a == nil {
				continue
			}
			note := a.AudioNote
			note.Blob = nil
			if ref := x.fromDataURL(ctx, a.DataURL, "audio", note.ID); ref != nil {
				note.SetBlob(ref)
			}
			if err := r.AudioNotes.Put(ctx, &note); err != nil {
				return err
			}
			counts[store.TableAudioNotes]++
		}

		if err := putAll(ctx, r.TimeEntries.Put, doc.TimeEntries); err != nil {
			return err
		}
		counts[store.TableTimeEntries] = len(doc.TimeEntries)
		if err := putAll(ctx, r.Tasks.Put, doc.Tasks); err != nil {
			return err
		}
		counts[store.TableTasks] = len(doc.Tasks)
		if err := putAll(ctx, r.WaterQuality.Put, doc.WaterQuality); err != nil {
			return err
		}
		counts[store.TableWaterQuality] = len(doc.WaterQuality)
		if err := putAll(ctx, r.Tracks.Put, doc.Tracks); err != nil {
			return err
		}
		counts[store.TableTracks] = len(doc.Tracks)
		if err := putAll(ctx, r.Checklists.Put, doc.Checklists); err != nil {
			return err
		}
		counts[store.TableChecklists] = len(doc.Checklists)
		if err := putAll(ctx, r.JobLogs.Put, doc.JobLogs); err != nil {
			return err
		}
		counts[store.TableJobLogs] = len(doc.JobLogs)
		if err := putAll(ctx, r.DepthPoints.Put, doc.DepthPoints); err != nil {
			return err
		}
		counts[store.TableDepthPoints] = len(doc.DepthPoints)
		if err := putAll(ctx, r.Ponds.Put, doc.Ponds); err != nil {
			return err
		}
		counts[store.TablePonds] = len(doc.Ponds)
		if err := putAll(ctx, r.MiscPoints.Put, doc.MiscPoints); err != nil {
			return err
		}
		counts[store.TableMiscPoints] = len(doc.MiscPoints)
		if err := putAll(ctx, r.CalcResults.Put, doc.CalcResults); err != nil {
			return err
		}
		counts[store.TableCalcResults] = len(doc.CalcResults)
		if err := putAll(ctx, r.ChemProducts.Put, doc.ChemProducts); err != nil {
			return err
		}
		counts[store.TableChemProducts] = len(doc.ChemProducts)
		for _, l := range doc.ChemLabels {
			if l == nil {
				continue
			}
			label := l.ChemLabel
			label.Blob = nil
			if ref := x.fromDataURL(ctx, l.DataURL, "label", label.ID); ref != nil {
				label.SetBlob(ref)
			}
			if err := r.ChemLabels.Put(ctx, &label); err != nil {
				return err
			}
			counts[store.TableChemLabels]++
		}

		n, err := r.Outbox.Restore(ctx, x.pushable(ctx, doc.Outbox))
		if err != nil {
			return err
		}
		counts["outbox"] = n
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}
	return counts, nil
}

// pushable drops outbox items the sync engine could never push and stamps
// a creation time on items that have none.
func (x *Exchange) pushable(ctx context.Context, items []*models.OutboxItem) []*models.OutboxItem {
	out := make([]*models.OutboxItem, 0, len(items))
	now := x.now().UTC()
	for _, it := range items {
		if it == nil {
			continue
		}
		if err := it.Validate(); err != nil {
			x.log.Warn(ctx, "skipping outbox item in import", "item", it.ID, "kind", it.Kind, "op", it.Op, "error", err)
			continue
		}
		if it.CreatedAt.IsZero() {
			it.CreatedAt = now
		}
		out = append(out, it)
	}
	return out
}

// ImportFile reads an export document from path and imports it.
func (x *Exchange) ImportFile(ctx context.Context, path string) (ImportCounts, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}
	defer f.Close()

	doc, err := ReadDocument(f)
	if err != nil {
		return nil, err
	}
	return x.Import(ctx, doc)
}

// fromDataURL decodes an inlined binary; a malformed one is logged and
// skipped so the record itself still imports.
func (x *Exchange) fromDataURL(ctx context.Context, s, kind, id string) *blob.Ref {
	if s == "" {
		return nil
	}
	b, mimeType, err := blob.ParseDataURI(s)
	if err != nil {
		x.log.Warn(ctx, "skipping malformed media in import", "kind", kind, "id", id, "error", err)
		return nil
	}
	return blob.FromBytes(b, mimeType)
}

func putAll[P any](ctx context.Context, put func(context.Context, P) error, items []P) error {
	for _, it := range items {
		if err := put(ctx, it); err != nil {
			return err
		}
	}
	return nil
}

// ReadDocument parses an export document.
func ReadDocument(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("read export document: %w", err)
	}
	return &doc, nil
}

// WriteDocument encodes doc as JSON.
func WriteDocument(w io.Writer, doc *Document) error {
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		return fmt.Errorf("write export document: %w", err)
	}
	return nil
}
