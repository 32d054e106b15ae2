package cli

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BrennanVollmar/vplm/internal/common"
	"github.com/BrennanVollmar/vplm/internal/config"
	"github.com/BrennanVollmar/vplm/internal/relay"
	"github.com/BrennanVollmar/vplm/internal/remote"
	"github.com/BrennanVollmar/vplm/internal/remote/memremote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	t       *testing.T
	dataDir string
	extra   []string
}

func newEnv(t *testing.T, extra ...string) *env {
	return &env{t: t, dataDir: t.TempDir(), extra: extra}
}

// run executes one command line against the env's data directory.
func (e *env) run(stdin string, args ...string) (string, error) {
	e.t.Helper()
	full := append([]string{"-d", e.dataDir, "--log-level", "error"}, e.extra...)
	full = append(full, args...)
	var out bytes.Buffer
	err := Execute(context.Background(), full, strings.NewReader(stdin), &out)
	return out.String(), err
}

func (e *env) mustRun(args ...string) string {
	e.t.Helper()
	out, err := e.run("", args...)
	require.NoError(e.t, err, out)
	return out
}

func firstLine(s string) string {
	return strings.TrimSpace(strings.SplitN(s, "\n", 2)[0])
}

func TestJobAndNoteCommands(t *testing.T) {
	e := newEnv(t)

	jobID := firstLine(e.mustRun("job", "add", "--client", "Acme", "--site", "North well", "--lat", "45.5"))
	require.NotEmpty(t, jobID)

	out := e.mustRun("job", "list")
	assert.Contains(t, out, jobID)
	assert.Contains(t, out, "Acme")

	noteID := firstLine(e.mustRun("note", "add", jobID, "pump replaced", "--tag", "pump"))
	require.NotEmpty(t, noteID)

	out, err := e.run("line one\nline two\n\n", "note", "add", jobID)
	require.NoError(t, err)
	assert.Contains(t, out, "Note text:")

	assert.Equal(t, "3", firstLine(e.mustRun("outbox", "count")))
	out = e.mustRun("outbox", "list")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], jobID)
	assert.Contains(t, lines[1], noteID)
}

func TestNoteAdd_UnknownJob(t *testing.T) {
	e := newEnv(t)
	_, err := e.run("", "note", "add", "missing", "text")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestNoteAdd_Empty(t *testing.T) {
	e := newEnv(t)
	_, err := e.run("\n", "note", "add", "any")
	require.Error(t, err)
}

func TestJobDeleteCascade(t *testing.T) {
	e := newEnv(t)
	jobID := firstLine(e.mustRun("job", "add", "--client", "Acme"))
	e.mustRun("note", "add", jobID, "a")
	e.mustRun("note", "add", jobID, "b")

	out := e.mustRun("job", "delete", jobID)
	assert.Contains(t, out, "queued 3 deletes")
	assert.NotContains(t, e.mustRun("job", "list"), jobID)
}

func TestPhotoAdd(t *testing.T) {
	e := newEnv(t)
	jobID := firstLine(e.mustRun("job", "add", "--client", "Acme"))

	img := filepath.Join(t.TempDir(), "site.png")
	require.NoError(t, os.WriteFile(img, []byte("\x89PNG\r\n\x1a\nrest"), 0o600))

	photoID := firstLine(e.mustRun("photo", "add", jobID, img, "--caption", "well head"))
	require.NotEmpty(t, photoID)
	assert.Equal(t, "2", firstLine(e.mustRun("outbox", "count")))
}

func TestDetectMIME(t *testing.T) {
	assert.Equal(t, "image/png", detectMIME("a.png", nil))
	assert.Equal(t, "image/jpeg", detectMIME("noext", []byte("\xff\xd8\xff\xe0")))
}

func TestSync(t *testing.T) {
	e := newEnv(t, "--remote", "memory", "--blob", "memory")
	e.mustRun("job", "add", "--client", "Acme")

	out := e.mustRun("sync")
	assert.Contains(t, out, "pushed 1")
	assert.Equal(t, "0", firstLine(e.mustRun("outbox", "count")))
}

func TestSync_NoRemote(t *testing.T) {
	e := newEnv(t)
	e.mustRun("job", "add", "--client", "Acme")

	out := e.mustRun("sync")
	assert.Contains(t, out, "no remote configured")
	assert.Contains(t, out, "pushed 0, pulled 0")
	assert.Equal(t, "1", firstLine(e.mustRun("outbox", "count")))
}

func TestBackupCommands(t *testing.T) {
	e := newEnv(t)
	e.mustRun("job", "add", "--client", "Acme")

	created := e.mustRun("backup", "create", "--reason", "before-trip")
	id := strings.Fields(created)[0]
	assert.Contains(t, created, "before-trip")

	assert.Contains(t, e.mustRun("backup", "list"), id)
	assert.Contains(t, e.mustRun("backup", "latest"), id)

	path := firstLine(e.mustRun("backup", "download", id))
	assert.Equal(t, filepath.Join(e.dataDir, "backups"), filepath.Dir(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Acme")

	e.mustRun("backup", "clear")
	_, err = e.run("", "backup", "latest")
	require.ErrorIs(t, err, common.ErrNotFound)

	_, err = e.run("", "backup", "download", "missing")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestExportImport(t *testing.T) {
	src := newEnv(t)
	jobID := firstLine(src.mustRun("job", "add", "--client", "Acme"))
	src.mustRun("note", "add", jobID, "hello")

	file := filepath.Join(t.TempDir(), "export.json")
	src.mustRun("export", "-o", file)

	stdout := src.mustRun("export", "--media=false")
	assert.Contains(t, stdout, jobID)

	dst := newEnv(t)
	out := dst.mustRun("import", file)
	assert.Contains(t, out, "jobs\t1")
	assert.Contains(t, out, "notes\t1")
	assert.Contains(t, dst.mustRun("job", "list"), jobID)

	_, err := dst.run("", "import", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestToken(t *testing.T) {
	oldTerm := isTerminal
	defer func() { isTerminal = oldTerm }()
	isTerminal = func(int) bool { return false }

	e := newEnv(t)
	e.mustRun("token", "tok-1")

	out, err := e.run("tok-2\n", "token")
	require.NoError(t, err)
	assert.Contains(t, out, "Access token:")

	_, err = e.run("\n", "token")
	require.Error(t, err)
}

func TestToken_Terminal(t *testing.T) {
	oldTerm, oldRead := isTerminal, readPassword
	defer func() { isTerminal, readPassword = oldTerm, oldRead }()
	isTerminal = func(int) bool { return true }
	readPassword = func(int) ([]byte, error) { return nil, errors.New("boom") }

	_, err := newEnv(t).run("", "token")
	require.EqualError(t, err, "boom")
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "vplm.json")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestRelayToken(t *testing.T) {
	cfg := writeConfig(t, `{"relay_secret": "s3cret", "token_ttl": "1h"}`)
	e := newEnv(t, "-c", cfg)

	tok := firstLine(e.mustRun("relay", "token", "truck-7"))
	device, err := relay.DeviceFromToken(tok, []byte("s3cret"))
	require.NoError(t, err)
	assert.Equal(t, "truck-7", device)

	_, err = newEnv(t).run("", "relay", "token", "truck-7")
	require.ErrorIs(t, err, errNoRelaySecret)
}

func TestRelay_StopsOnCancel(t *testing.T) {
	old := openRelayBackend
	defer func() { openRelayBackend = old }()
	backend := memremote.NewClient()
	openRelayBackend = func(ctx context.Context, cfg *config.Config) (remote.Client, error) {
		return backend, nil
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		var out bytes.Buffer
		done <- Execute(ctx, []string{"--log-level", "error", "--relay-addr", addr, "relay"}, strings.NewReader(""), &out)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestInvalidConfig(t *testing.T) {
	_, err := newEnv(t).run("", "--remote", "carrier-pigeon", "job", "list")
	require.ErrorContains(t, err, "unknown remote kind")
}

func TestSecondProcessLocked(t *testing.T) {
	e := newEnv(t)
	e.mustRun("job", "add", "--client", "Acme")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		var out bytes.Buffer
		args := []string{"-d", e.dataDir, "--log-level", "error", "--import-dir", t.TempDir(), "watch"}
		close(started)
		done <- Execute(ctx, args, strings.NewReader(""), &out)
	}()
	<-started

	require.Eventually(t, func() bool {
		_, err := e.run("", "job", "list")
		return errors.Is(err, common.ErrLocked)
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestBackupSealAndRestore(t *testing.T) {
	old := isTerminal
	defer func() { isTerminal = old }()
	isTerminal = func(int) bool { return false }

	src := newEnv(t)
	jobID := firstLine(src.mustRun("job", "add", "--client", "Acme"))
	src.mustRun("backup", "create")

	out, err := src.run("hunter2\n", "backup", "download", "--seal")
	require.NoError(t, err)
	path := strings.TrimPrefix(strings.TrimSpace(out), "Passphrase: ")
	assert.True(t, strings.HasSuffix(path, ".json.sealed"), path)

	dst := newEnv(t)
	_, err = dst.run("wrong\n", "backup", "restore", path)
	require.Error(t, err)

	out, err = dst.run("hunter2\n", "backup", "restore", path)
	require.NoError(t, err)
	assert.Contains(t, out, "jobs\t1")
	assert.Contains(t, dst.mustRun("job", "list"), jobID)
}
