package app

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/BrennanVollmar/vplm/internal/common"
	"github.com/BrennanVollmar/vplm/internal/config"
	"github.com/BrennanVollmar/vplm/internal/logging"
	"github.com/BrennanVollmar/vplm/internal/models"
	"github.com/BrennanVollmar/vplm/internal/remote"
	"github.com/BrennanVollmar/vplm/internal/remote/memremote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, args ...string) *config.Config {
	t.Helper()
	cfg, err := config.Load(append([]string{"-d", t.TempDir()}, args...))
	require.NoError(t, err)
	return cfg
}

type fakeTokenRemote struct {
	*memremote.Client
	token string
}

func (f *fakeTokenRemote) SetAccessToken(token string) { f.token = token }

func TestNew_MemoryRemote(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t, "--remote", "memory", "--blob", "memory"), logging.Discard())
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Remote)
	require.NotNil(t, a.Blobs)
	assert.True(t, a.Sync.Configured())

	require.NoError(t, a.Records.SaveJob(ctx, &models.Job{ClientName: "Acme"}))
	res, err := a.Sync.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pushed)

	n, err := a.Store.Repos().Outbox.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNew_NoRemote(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Remote)
	assert.Nil(t, a.Blobs)
	assert.False(t, a.Sync.Configured())
}

func TestNew_SecondProcessLocked(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	_, err = New(context.Background(), cfg, nil)
	require.ErrorIs(t, err, common.ErrLocked)
}

func TestNew_UnreachablePostgresWorksOffline(t *testing.T) {
	old := openPostgres
	defer func() { openPostgres = old }()
	openPostgres = func(ctx context.Context, dsn string) (remote.Client, error) {
		assert.Equal(t, "postgres://x", dsn)
		return nil, errors.Join(common.ErrUnavailable, errors.New("dial tcp: refused"))
	}

	a, err := New(context.Background(), testConfig(t, "--remote", "postgres", "--remote-dsn", "postgres://x"), nil)
	require.NoError(t, err)
	defer a.Close()
	require.IsType(t, &remote.Reconnecting{}, a.Remote)
	assert.True(t, a.Sync.Configured())
}

func TestNew_OfflineStartDrainsWhenRemoteReturns(t *testing.T) {
	old := openPostgres
	defer func() { openPostgres = old }()

	backend := memremote.NewClient()
	up := false
	openPostgres = func(ctx context.Context, dsn string) (remote.Client, error) {
		if !up {
			return nil, fmt.Errorf("%w: dial tcp: refused", common.ErrUnavailable)
		}
		return backend, nil
	}

	ctx := context.Background()
	a, err := New(ctx, testConfig(t, "--remote", "postgres", "--remote-dsn", "postgres://x"), nil)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Records.SaveJob(ctx, &models.Job{ClientName: "Acme"}))

	assert.False(t, a.Online.Check(ctx))
	res, err := a.Sync.Sync(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Pushed)
	require.ErrorIs(t, res.Err(), common.ErrUnavailable)

	up = true
	assert.True(t, a.Online.Check(ctx))

	n, err := a.Store.Repos().Outbox.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, backend.Rows(models.KindJob.Collection()), 1)
}

func TestNew_PostgresAuthFailureIsFatal(t *testing.T) {
	old := openPostgres
	defer func() { openPostgres = old }()
	openPostgres = func(ctx context.Context, dsn string) (remote.Client, error) {
		return nil, common.ErrUnauthorized
	}

	_, err := New(context.Background(), testConfig(t, "--remote", "postgres", "--remote-dsn", "postgres://x"), nil)
	require.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestSaveToken(t *testing.T) {
	old := dialGRPC
	defer func() { dialGRPC = old }()

	var dialed []string
	fake := &fakeTokenRemote{Client: memremote.NewClient()}
	dialGRPC = func(addr, token string) (remote.Client, error) {
		dialed = append(dialed, token)
		return fake, nil
	}

	ctx := context.Background()
	cfg := testConfig(t, "--remote", "grpc")

	a, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, a.SaveToken(ctx, "tok-1"))
	assert.Equal(t, "tok-1", fake.token)
	require.NoError(t, a.Close())

	// the saved token is used on the next start
	a, err = New(ctx, cfg, nil)
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, []string{"", "tok-1"}, dialed)
}

func TestAccessToken_ConfigWins(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	a, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.SaveToken(ctx, "saved"))
	cfg.AccessToken = "configured"
	got, err := a.accessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "configured", got)
}
