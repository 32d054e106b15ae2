package services

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BrennanVollmar/vplm/internal/blob"
	"github.com/BrennanVollmar/vplm/internal/common"
	"github.com/BrennanVollmar/vplm/internal/cryptox"
	"github.com/BrennanVollmar/vplm/internal/models"
	"github.com/BrennanVollmar/vplm/internal/scheduler"
	"github.com/BrennanVollmar/vplm/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackup(t *testing.T, cap int) (*BackupService, *Records, *store.Store, *scheduler.FakeClock) {
	t.Helper()
	st := newStore(t)
	clk := scheduler.NewFakeClock(t0)
	b := NewBackupService(st, NewExchange(st, nil), BackupConfig{Delay: 1500 * time.Millisecond, HistoryCap: cap, Clock: clk}, nil)
	rec := NewRecords(st, b, nil)
	return b, rec, st, clk
}

func TestBackup_BurstOfWritesYieldsOneSnapshot(t *testing.T) {
	b, rec, _, clk := newBackup(t, 10)
	ctx := context.Background()

	var taken []*BackupEntry
	b.OnSnapshot(func(e *BackupEntry, err error) {
		require.NoError(t, err)
		taken = append(taken, e)
	})

	require.NoError(t, rec.SaveJob(ctx, &models.Job{ID: "j1"}))
	for i := 0; i < 4; i++ {
		clk.Advance(500 * time.Millisecond)
		require.NoError(t, rec.SaveNote(ctx, &models.Note{JobID: "j1", Text: "n"}))
	}
	assert.True(t, b.Pending())
	assert.Empty(t, b.History(ctx))

	clk.Advance(1500 * time.Millisecond)
	require.Len(t, taken, 1)
	assert.Equal(t, "note:create", taken[0].Reason)
	assert.False(t, b.Pending())

	h := b.History(ctx)
	require.Len(t, h, 1)
	assert.Len(t, h[0].Data.Notes, 4)
	assert.Len(t, h[0].Data.Jobs, 1)
}

func TestBackup_HistoryIsCapped(t *testing.T) {
	b, rec, _, clk := newBackup(t, 3)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		require.NoError(t, rec.SaveJob(ctx, &models.Job{ID: "j1", ClientName: string(rune('A' + i))}))
		clk.Advance(2 * time.Second)
		e := b.Latest(ctx)
		require.NotNil(t, e)
		ids = append(ids, e.ID)
	}

	h := b.History(ctx)
	require.Len(t, h, 3)
	assert.Equal(t, []string{ids[4], ids[3], ids[2]}, []string{h[0].ID, h[1].ID, h[2].ID})
	assert.Equal(t, "E", b.Latest(ctx).Data.Jobs[0].ClientName)
}

func TestBackup_SnapshotCarriesMediaAsDataURIs(t *testing.T) {
	b, rec, _, _ := newBackup(t, 10)
	ctx := context.Background()

	require.NoError(t, rec.SavePhoto(ctx, &models.Photo{ID: "p1", JobID: "j1", Blob: blob.FromBytes([]byte("jpeg"), "image/jpeg")}))
	e, err := b.CreateSnapshot(ctx, "manual")
	require.NoError(t, err)

	require.Len(t, e.Data.Photos, 1)
	assert.Equal(t, blob.DataURI([]byte("jpeg"), "image/jpeg"), e.Data.Photos[0].DataURL)
	assert.Len(t, e.Checksum, 64)

	got := b.Get(ctx, e.ID)
	require.NotNil(t, got)
	assert.Equal(t, e.Checksum, got.Checksum)
	assert.Nil(t, b.Get(ctx, "missing"))
}

func TestBackup_DamagedRowsAreSkipped(t *testing.T) {
	b, _, st, _ := newBackup(t, 10)
	ctx := context.Background()

	good, err := b.CreateSnapshot(ctx, "good")
	require.NoError(t, err)

	_, err = st.DB().Exec(`INSERT INTO backup_history (id, created_at, reason, checksum, data)
		VALUES ('bad', ?, 'r', '', X'7B7B7B')`, t0.Add(time.Hour).UnixNano())
	require.NoError(t, err)
	_, err = st.DB().Exec(`INSERT INTO backup_history (id, created_at, reason, checksum, data)
		VALUES ('tampered', ?, 'r', 'deadbeef', '{}')`, t0.Add(2*time.Hour).UnixNano())
	require.NoError(t, err)
	require.NoError(t, st.Repos().Metadata.Set(ctx, common.MetaBackupLatest, []byte("bad")))

	h := b.History(ctx)
	require.Len(t, h, 1)
	assert.Equal(t, good.ID, h[0].ID)

	latest := b.Latest(ctx)
	require.NotNil(t, latest)
	assert.Equal(t, good.ID, latest.ID, "dangling pointer falls back to newest readable")
	assert.Nil(t, b.Get(ctx, "tampered"))
}

func TestBackup_UnreadableTableDegradesToEmpty(t *testing.T) {
	b, _, st, _ := newBackup(t, 10)
	ctx := context.Background()

	_, err := b.CreateSnapshot(ctx, "x")
	require.NoError(t, err)
	_, err = st.DB().Exec(`DROP TABLE backup_history`)
	require.NoError(t, err)

	assert.Empty(t, b.History(ctx))
	assert.Nil(t, b.Latest(ctx))
	b.Clear(ctx)
}

func TestBackup_LatestWithoutPointer(t *testing.T) {
	b, _, st, _ := newBackup(t, 10)
	ctx := context.Background()

	assert.Nil(t, b.Latest(ctx))

	e, err := b.CreateSnapshot(ctx, "x")
	require.NoError(t, err)
	require.NoError(t, st.Repos().Metadata.Delete(ctx, common.MetaBackupLatest))

	latest := b.Latest(ctx)
	require.NotNil(t, latest)
	assert.Equal(t, e.ID, latest.ID)
}

func TestBackup_Clear(t *testing.T) {
	b, _, st, _ := newBackup(t, 10)
	ctx := context.Background()

	_, err := b.CreateSnapshot(ctx, "x")
	require.NoError(t, err)
	b.Clear(ctx)

	assert.Empty(t, b.History(ctx))
	assert.Nil(t, b.Latest(ctx))
	pointer, err := st.Repos().Metadata.Get(ctx, common.MetaBackupLatest)
	require.NoError(t, err)
	assert.Nil(t, pointer)
}

func TestBackup_FlushAndStop(t *testing.T) {
	b, rec, _, clk := newBackup(t, 10)
	ctx := context.Background()

	require.NoError(t, rec.SaveJob(ctx, &models.Job{ID: "j1"}))
	b.Stop()
	clk.Advance(time.Minute)
	assert.Empty(t, b.History(ctx))

	require.NoError(t, rec.SaveJob(ctx, &models.Job{ID: "j2"}))
	assert.True(t, b.Flush())
	assert.Len(t, b.History(ctx), 1)
}

func TestWriteBackupFile_NeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	e := &BackupEntry{ID: "b1", CreatedAt: t0, Reason: "manual", Data: &Document{ExportedAt: t0}}

	first, err := WriteBackupFile(dir, e)
	require.NoError(t, err)
	second, err := WriteBackupFile(dir, e)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "vplm-backup-20250914T100000Z.json"), first)
	assert.Equal(t, filepath.Join(dir, "vplm-backup-20250914T100000Z-1.json"), second)

	raw, err := os.ReadFile(first)
	require.NoError(t, err)
	var back BackupEntry
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, "b1", back.ID)
}

func TestBackupFile_PlainAndSealed(t *testing.T) {
	dir := t.TempDir()
	e := &BackupEntry{ID: "b1", CreatedAt: t0, Reason: "manual", Data: &Document{ExportedAt: t0, Jobs: []*models.Job{{ID: "J1", ClientName: "Acme"}}}}

	plain, err := WriteBackupFile(dir, e)
	require.NoError(t, err)
	got, err := ReadBackupFile(plain, func() ([]byte, error) {
		t.Fatal("passphrase asked for a plain file")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "J1", got.Data.Jobs[0].ID)

	sealed, err := WriteSealedBackupFile(dir, e, []byte("pass"))
	require.NoError(t, err)
	assert.Equal(t, ".sealed", filepath.Ext(sealed))
	raw, err := os.ReadFile(sealed)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "Acme")

	got, err = ReadBackupFile(sealed, func() ([]byte, error) { return []byte("pass"), nil })
	require.NoError(t, err)
	assert.Equal(t, "b1", got.ID)
	assert.Equal(t, "Acme", got.Data.Jobs[0].ClientName)

	_, err = ReadBackupFile(sealed, func() ([]byte, error) { return []byte("nope"), nil })
	require.ErrorIs(t, err, cryptox.ErrBadPassphrase)
}

func TestReadBackupFile_NoData(t *testing.T) {
	p := filepath.Join(t.TempDir(), "b.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"id":"b1"}`), 0o600))
	_, err := ReadBackupFile(p, nil)
	require.ErrorContains(t, err, "no data")
}
