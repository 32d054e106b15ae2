package services

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BrennanVollmar/vplm/internal/blob"
	"github.com/BrennanVollmar/vplm/internal/models"
	"github.com/BrennanVollmar/vplm/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAll(t *testing.T, rec *Records) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, rec.SaveJob(ctx, &models.Job{ID: "j1", ClientName: "Cypress Lake"}))
	require.NoError(t, rec.SaveNote(ctx, &models.Note{ID: "n1", JobID: "j1", Text: "turbid"}))
	require.NoError(t, rec.SavePhoto(ctx, &models.Photo{ID: "p1", JobID: "j1", Caption: "dock", Blob: blob.FromBytes([]byte("webp!"), "image/webp")}))
	require.NoError(t, rec.SaveMeasurement(ctx, &models.Measurement{ID: "m1", JobID: "j1", Kind: "area", Unit: "acre", Value: 2.5}))
	require.NoError(t, rec.SaveAudioNote(ctx, &models.AudioNote{ID: "a1", JobID: "j1", Transcript: "hello", Blob: blob.FromBytes([]byte("opus"), "audio/ogg")}))
	require.NoError(t, rec.SaveTask(ctx, &models.Task{ID: "t1", JobID: "j1", Label: "dye"}))
	require.NoError(t, rec.SaveWaterQuality(ctx, &models.WaterQuality{ID: "w1", JobID: "j1", Kind: "secchi", Value: 18, Unit: "in"}))
	require.NoError(t, rec.SaveTrack(ctx, &models.Track{ID: "tr1", JobID: "j1", Points: []models.TrackPoint{{Lat: 1, Lon: 2, TS: t0}}}))
	require.NoError(t, rec.SaveChecklist(ctx, &models.Checklist{ID: "c1", JobID: "j1", Kind: "ppe", Items: []models.ChecklistItem{{Label: "gloves", Checked: true}}}))
	require.NoError(t, rec.SaveTimeEntry(ctx, &models.TimeEntry{ID: "te1", JobID: "j1", Date: "2025-09-14"}))
	_, err := rec.LogJob(ctx, "j1", "arrive", "on site", "")
	require.NoError(t, err)
	require.NoError(t, rec.AddDepthPoint(ctx, &models.DepthPoint{ID: "d1", JobID: "j1", DepthFt: 7.5}))
	require.NoError(t, rec.SavePond(ctx, &models.Pond{ID: "po1", JobID: "j1", Name: "north", Polygon: [][2]float64{{-95.1, 29.7}, {-95.2, 29.8}, {-95.1, 29.8}}}))
	require.NoError(t, rec.AddMiscPoint(ctx, &models.MiscPoint{ID: "mp1", JobID: "j1", Name: "fountain", Lat: 29.7, Lon: -95.1}))
	require.NoError(t, rec.SaveCalcResult(ctx, &models.CalcResult{ID: "cr1", JobID: "j1", Type: "dose", Inputs: json.RawMessage(`{"acres":2.5}`), Outputs: json.RawMessage(`{"gal":1.2}`)}))
	require.NoError(t, rec.SaveChemProduct(ctx, &models.ChemProduct{ID: "cp1", Brand: "Cutrine Plus", Active: "copper", Form: "liquid", DoseRules: []models.DoseRule{{Target: "algae", Basis: "acre-foot", MinRate: 0.6, MaxRate: 1.2, Unit: "gal"}}}))
	require.NoError(t, rec.SaveChemLabel(ctx, &models.ChemLabel{ID: "cl1", ProductID: "cp1", Filename: "cutrine.pdf", MimeType: "application/pdf", Size: 4, Blob: blob.FromBytes([]byte("%PDF"), "application/pdf")}))
}

func TestExportImport_RoundTripIntoEmptyStore(t *testing.T) {
	src := newStore(t)
	rec := NewRecords(src, nil, nil)
	seedAll(t, rec)
	ctx := context.Background()

	doc, err := NewExchange(src, nil).Export(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, ExportDisclaimer, doc.Disclaimer)
	require.Len(t, doc.Photos, 1)
	assert.True(t, strings.HasPrefix(doc.Photos[0].DataURL, "data:image/webp;base64,"))
	assert.Len(t, doc.Outbox, 4)

	var buf bytes.Buffer
	require.NoError(t, WriteDocument(&buf, doc))
	assert.NotContains(t, buf.String(), `"Blob"`)
	parsed, err := ReadDocument(&buf)
	require.NoError(t, err)

	dst := newStore(t)
	counts, err := NewExchange(dst, nil).Import(ctx, parsed)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[store.TableJobs])
	assert.Equal(t, 1, counts[store.TablePhotos])
	assert.Equal(t, 1, counts[store.TableDepthPoints])
	assert.Equal(t, 1, counts[store.TableChemProducts])
	assert.Equal(t, 1, counts[store.TableChemLabels])
	assert.Equal(t, 4, counts["outbox"])

	r := dst.Repos()
	p, err := r.Photos.Get(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, p)
	b, err := p.Blob.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("webp!"), b)
	assert.Equal(t, "image/webp", p.Blob.MimeType())

	a, err := r.AudioNotes.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "audio/ogg", a.Blob.MimeType())
	assert.Equal(t, "hello", a.Transcript)

	l, err := r.ChemLabels.Get(ctx, "cl1")
	require.NoError(t, err)
	require.NotNil(t, l)
	b, err = l.Blob.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF"), b)

	for _, child := range r.JobChildren() {
		n, err := child.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n, child.Table())
	}

	again, err := NewExchange(dst, nil).Export(ctx, true)
	require.NoError(t, err)
	again.ExportedAt = doc.ExportedAt
	assert.Equal(t, doc, again)
}

func TestImport_IsIdempotentAndKeepsOutboxOrder(t *testing.T) {
	src := newStore(t)
	rec := NewRecords(src, nil, nil)
	seedAll(t, rec)
	ctx := context.Background()
	doc, err := NewExchange(src, nil).Export(ctx, false)
	require.NoError(t, err)

	dst := newStore(t)
	x := NewExchange(dst, nil)
	_, err = x.Import(ctx, doc)
	require.NoError(t, err)
	counts, err := x.Import(ctx, doc)
	require.NoError(t, err)
	assert.Zero(t, counts["outbox"], "queued items are not duplicated")

	items, err := dst.Repos().Outbox.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 4)
	for i, it := range items {
		assert.Equal(t, doc.Outbox[i].ID, it.ID)
	}
}

func TestImport_PartialDocument(t *testing.T) {
	dst := newStore(t)
	ctx := context.Background()

	doc, err := ReadDocument(strings.NewReader(`{
		"notes": [{"id":"n1","jobId":"j1","text":"only notes"}],
		"photos": [{"id":"p1","jobId":"j1","dataUrl":"data:image/png;base64,@@@"}]
	}`))
	require.NoError(t, err)

	counts, err := NewExchange(dst, nil).Import(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[store.TableNotes])
	assert.Zero(t, counts[store.TableJobs])

	p, err := dst.Repos().Photos.Get(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, p, "a malformed data URI drops the binary, not the record")
	assert.True(t, p.Blob.Empty())
}

func TestImport_KeepsLocalBinaryWhenDocumentHasNone(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	require.NoError(t, st.Repos().Photos.Put(ctx, &models.Photo{ID: "p1", JobID: "j1", Blob: blob.FromBytes([]byte("kept"), "image/jpeg")}))

	_, err := NewExchange(st, nil).Import(ctx, &Document{Photos: []*ExportPhoto{{Photo: models.Photo{ID: "p1", JobID: "j1", Caption: "renamed"}}}})
	require.NoError(t, err)

	p, err := st.Repos().Photos.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", p.Caption)
	b, err := p.Blob.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("kept"), b)
}

func TestReadDocument_Malformed(t *testing.T) {
	_, err := ReadDocument(strings.NewReader(`{"jobs": 5}`))
	require.ErrorContains(t, err, "read export document")
}

func TestImportFile(t *testing.T) {
	dst := newStore(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "drop.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"jobs":[{"id":"j9","clientName":"Mill Pond"}]}`), 0o600))

	counts, err := NewExchange(dst, nil).ImportFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[store.TableJobs])

	_, err = NewExchange(dst, nil).ImportFile(ctx, filepath.Join(t.TempDir(), "missing.json"))
	require.ErrorContains(t, err, "import")
}

func TestImport_OlderOutboxShapeIsPushable(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	doc, err := ReadDocument(strings.NewReader(`{
		"jobs": [{"id":"j1","clientName":"Acme","createdAt":"2025-09-14T10:00:00Z"}],
		"outbox": [
			{"id":"j1","type":"job","op":"create","payload":{"id":"j1","clientName":"Acme"},"createdAt":"2025-09-14T10:00:00Z"},
			{"id":"tr1","type":"job","op":"update","payload":{"track":true,"jobId":"j1"},"createdAt":"2025-09-14T10:05:00Z"},
			{"id":"x1","op":"create","payload":{"id":"x1"}},
			{"id":"n1","type":"note","op":"create","payload":{"id":"n1","jobId":"j1","text":"no timestamp"}}
		]
	}`))
	require.NoError(t, err)

	x := NewExchange(f.st, nil)
	x.now = func() time.Time { return t0.Add(time.Hour) }
	counts, err := x.Import(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, 2, counts["outbox"], "items that can never push are dropped")

	items, err := f.st.Repos().Outbox.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, models.KindJob, items[0].Kind)
	assert.Equal(t, "j1", items[0].EntityID)
	assert.Equal(t, models.KindNote, items[1].Kind)
	assert.Equal(t, "n1", items[1].EntityID)
	assert.Equal(t, t0.Add(time.Hour), items[1].CreatedAt)

	res, err := f.sync.Sync(ctx)
	require.NoError(t, err)
	require.NoError(t, res.Err())
	assert.Equal(t, 2, res.Pushed)
	assert.Zero(t, f.outboxCount(t))
	assert.Len(t, f.remote.Rows("notes"), 1)
}
