// Package models defines the field-data entities kept in the local store and
// the tagged payload carried by outbox items.
package models

import (
	"encoding/json"
	"time"

	"github.com/BrennanVollmar/vplm/internal/blob"
)

// Entity is any record owned by the local store.
type Entity interface {
	GetID() string
	// GetJobID returns the parent job id, empty for top-level records.
	GetJobID() string
	GetCreatedAt() time.Time
}

// BlobCarrier is implemented by entities with a binary payload. The payload
// never travels in the entity's JSON row.
type BlobCarrier interface {
	GetBlob() *blob.Ref
	SetBlob(*blob.Ref)
	DefaultMime() string
}

// Job is a site visit; every other record hangs off one.
type Job struct {
	ID         string    `json:"id"`
	ClientName string    `json:"clientName"`
	SiteName   string    `json:"siteName,omitempty"`
	Address    string    `json:"address,omitempty"`
	Lat        *float64  `json:"lat,omitempty"`
	Lon        *float64  `json:"lon,omitempty"`
	CreatedBy  string    `json:"createdBy,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (j Job) GetID() string           { return j.ID }
func (j Job) GetJobID() string        { return "" }
func (j Job) GetCreatedAt() time.Time { return j.CreatedAt }

// Note is a free-text field note.
type Note struct {
	ID        string    `json:"id"`
	JobID     string    `json:"jobId"`
	Text      string    `json:"text"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (n Note) GetID() string           { return n.ID }
func (n Note) GetJobID() string        { return n.JobID }
func (n Note) GetCreatedAt() time.Time { return n.CreatedAt }

// Photo is an image taken on site. ServerURI is set once the image has been
// uploaded to the object store.
type Photo struct {
	ID        string         `json:"id"`
	JobID     string         `json:"jobId"`
	Caption   string         `json:"caption"`
	LocalURI  string         `json:"localUri,omitempty"`
	ServerURI string         `json:"serverUri,omitempty"`
	Exif      map[string]any `json:"exif,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`

	Blob *blob.Ref `json:"-"`
}

func (p Photo) GetID() string           { return p.ID }
func (p Photo) GetJobID() string        { return p.JobID }
func (p Photo) GetCreatedAt() time.Time { return p.CreatedAt }
func (p *Photo) GetBlob() *blob.Ref     { return p.Blob }
func (p *Photo) SetBlob(r *blob.Ref)    { p.Blob = r }
func (p *Photo) DefaultMime() string    { return blob.DefaultImageMIME }

// Measurement is a single dimension taken on site.
type Measurement struct {
	ID        string    `json:"id"`
	JobID     string    `json:"jobId"`
	Kind      string    `json:"kind"`
	Unit      string    `json:"unit"`
	Value     float64   `json:"value"`
	CreatedAt time.Time `json:"createdAt"`
}

func (m Measurement) GetID() string           { return m.ID }
func (m Measurement) GetJobID() string        { return m.JobID }
func (m Measurement) GetCreatedAt() time.Time { return m.CreatedAt }

// AudioNote is a voice memo with an optional transcript.
type AudioNote struct {
	ID          string    `json:"id"`
	JobID       string    `json:"jobId"`
	DurationSec float64   `json:"durationSec,omitempty"`
	Transcript  string    `json:"transcript,omitempty"`
	MimeType    string    `json:"mimeType,omitempty"`
	Lang        string    `json:"lang,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`

	Blob *blob.Ref `json:"-"`
}

func (a AudioNote) GetID() string           { return a.ID }
func (a AudioNote) GetJobID() string        { return a.JobID }
func (a AudioNote) GetCreatedAt() time.Time { return a.CreatedAt }
func (a *AudioNote) GetBlob() *blob.Ref     { return a.Blob }
func (a *AudioNote) SetBlob(r *blob.Ref) {
	a.Blob = r.WithDefaultMime(a.DefaultMime())
	if r != nil {
		a.MimeType = r.MimeType()
	}
}
func (a *AudioNote) DefaultMime() string {
	if a.MimeType != "" {
		return a.MimeType
	}
	return blob.DefaultAudioMIME
}

// TimeEntry records arrival and departure for one day on a job.
type TimeEntry struct {
	ID          string     `json:"id"`
	JobID       string     `json:"jobId"`
	Date        string     `json:"date"`
	ArrivalAt   *time.Time `json:"arrivalAt,omitempty"`
	DepartureAt *time.Time `json:"departureAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func (e TimeEntry) GetID() string           { return e.ID }
func (e TimeEntry) GetJobID() string        { return e.JobID }
func (e TimeEntry) GetCreatedAt() time.Time { return e.CreatedAt }

type Task struct {
	ID        string    `json:"id"`
	JobID     string    `json:"jobId"`
	Label     string    `json:"label"`
	Done      bool      `json:"done"`
	CreatedAt time.Time `json:"createdAt"`
}

func (t Task) GetID() string           { return t.ID }
func (t Task) GetJobID() string        { return t.JobID }
func (t Task) GetCreatedAt() time.Time { return t.CreatedAt }

// WaterQuality is one reading: secchi, ph, do, temp, alkalinity or hardness.
type WaterQuality struct {
	ID        string    `json:"id"`
	JobID     string    `json:"jobId"`
	Kind      string    `json:"kind"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	DepthFt   *float64  `json:"depthFt,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (w WaterQuality) GetID() string           { return w.ID }
func (w WaterQuality) GetJobID() string        { return w.JobID }
func (w WaterQuality) GetCreatedAt() time.Time { return w.CreatedAt }

type TrackPoint struct {
	Lat float64   `json:"lat"`
	Lon float64   `json:"lon"`
	TS  time.Time `json:"ts"`
}

// Track is a GPS trail walked on site.
type Track struct {
	ID        string       `json:"id"`
	JobID     string       `json:"jobId"`
	Points    []TrackPoint `json:"points"`
	CreatedAt time.Time    `json:"createdAt"`
}

func (t Track) GetID() string           { return t.ID }
func (t Track) GetJobID() string        { return t.JobID }
func (t Track) GetCreatedAt() time.Time { return t.CreatedAt }

type ChecklistItem struct {
	Label   string `json:"label"`
	Checked bool   `json:"checked"`
}

type Checklist struct {
	ID        string          `json:"id"`
	JobID     string          `json:"jobId"`
	Kind      string          `json:"kind"`
	Items     []ChecklistItem `json:"items"`
	Notes     string          `json:"notes,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

func (c Checklist) GetID() string           { return c.ID }
func (c Checklist) GetJobID() string        { return c.JobID }
func (c Checklist) GetCreatedAt() time.Time { return c.CreatedAt }

// JobLog is an action-log line shown on the job page.
type JobLog struct {
	ID        string    `json:"id"`
	JobID     string    `json:"jobId"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Actor     string    `json:"actor,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (l JobLog) GetID() string           { return l.ID }
func (l JobLog) GetJobID() string        { return l.JobID }
func (l JobLog) GetCreatedAt() time.Time { return l.CreatedAt }

// DepthPoint is a sounding used for aerator planning.
type DepthPoint struct {
	ID        string    `json:"id"`
	JobID     string    `json:"jobId"`
	PondID    string    `json:"pondId,omitempty"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	DepthFt   float64   `json:"depthFt"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (d DepthPoint) GetID() string           { return d.ID }
func (d DepthPoint) GetJobID() string        { return d.JobID }
func (d DepthPoint) GetCreatedAt() time.Time { return d.CreatedAt }

// Pond is an outline drawn on the map for a job, as [lon, lat] pairs.
type Pond struct {
	ID        string       `json:"id"`
	JobID     string       `json:"jobId"`
	Name      string       `json:"name,omitempty"`
	Polygon   [][2]float64 `json:"polygon"`
	Color     string       `json:"color,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}

func (p Pond) GetID() string           { return p.ID }
func (p Pond) GetJobID() string        { return p.JobID }
func (p Pond) GetCreatedAt() time.Time { return p.CreatedAt }

// MiscPoint marks an installed object or anything else worth finding again.
type MiscPoint struct {
	ID        string    `json:"id"`
	JobID     string    `json:"jobId"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Name      string    `json:"name"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (m MiscPoint) GetID() string           { return m.ID }
func (m MiscPoint) GetJobID() string        { return m.JobID }
func (m MiscPoint) GetCreatedAt() time.Time { return m.CreatedAt }

// CalcResult keeps the inputs and outputs of a dosing or area calculation.
// JobID is empty for calculations not tied to a visit.
type CalcResult struct {
	ID        string          `json:"id"`
	JobID     string          `json:"jobId,omitempty"`
	Type      string          `json:"type"`
	Inputs    json.RawMessage `json:"inputs,omitempty"`
	Outputs   json.RawMessage `json:"outputs,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

func (c CalcResult) GetID() string           { return c.ID }
func (c CalcResult) GetJobID() string        { return c.JobID }
func (c CalcResult) GetCreatedAt() time.Time { return c.CreatedAt }

type DoseRule struct {
	Target  string  `json:"target"`
	Basis   string  `json:"basis"`
	MinRate float64 `json:"minRate"`
	MaxRate float64 `json:"maxRate"`
	Unit    string  `json:"unit"`
	Notes   string  `json:"notes,omitempty"`
}

// ChemProduct is a catalog entry for a treatment product.
type ChemProduct struct {
	ID         string     `json:"id"`
	Brand      string     `json:"brand"`
	Active     string     `json:"active"`
	Form       string     `json:"form"`
	Strength   string     `json:"strength,omitempty"`
	LabelNotes string     `json:"labelNotes,omitempty"`
	DoseRules  []DoseRule `json:"doseRules"`
	CreatedAt  time.Time  `json:"createdAt"`
}

func (p ChemProduct) GetID() string           { return p.ID }
func (p ChemProduct) GetJobID() string        { return "" }
func (p ChemProduct) GetCreatedAt() time.Time { return p.CreatedAt }

// ChemLabel is a stored product label, usually a PDF.
type ChemLabel struct {
	ID        string    `json:"id"`
	ProductID string    `json:"productId"`
	Filename  string    `json:"filename"`
	MimeType  string    `json:"mimeType,omitempty"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`

	Blob *blob.Ref `json:"-"`
}

func (l ChemLabel) GetID() string           { return l.ID }
func (l ChemLabel) GetJobID() string        { return "" }
func (l ChemLabel) GetCreatedAt() time.Time { return l.CreatedAt }
func (l *ChemLabel) GetBlob() *blob.Ref     { return l.Blob }
func (l *ChemLabel) SetBlob(r *blob.Ref) {
	l.Blob = r.WithDefaultMime(l.DefaultMime())
	if r != nil {
		l.MimeType = r.MimeType()
	}
}
func (l *ChemLabel) DefaultMime() string {
	if l.MimeType != "" {
		return l.MimeType
	}
	return blob.DefaultLabelMIME
}
