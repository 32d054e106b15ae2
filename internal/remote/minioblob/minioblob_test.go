package minioblob

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/BrennanVollmar/vplm/internal/common"
	"github.com/BrennanVollmar/vplm/internal/logging"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpload(t *testing.T) {
	var gotPath string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusOK)
			return
		}
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	s, err := New(Config{Endpoint: u.Host, AccessKey: "k", SecretKey: "s", Bucket: "job-photos", Region: "us-east-1"}, logging.Discard())
	require.NoError(t, err)

	require.NoError(t, s.Upload(context.Background(), "j1/p1.png", []byte("png-bytes"), "image/png"))
	assert.Equal(t, "/job-photos/j1/p1.png", gotPath)
	assert.Contains(t, string(gotBody), "png-bytes")
}

func TestPublicURL(t *testing.T) {
	s := &Store{cfg: Config{Endpoint: "minio.local:9000", Bucket: "job-photos"}}
	assert.Equal(t, "http://minio.local:9000/job-photos/a/b.jpg", s.PublicURL("a/b.jpg"))

	s.cfg.UseSSL = true
	assert.Equal(t, "https://minio.local:9000/job-photos/a/b.jpg", s.PublicURL("a/b.jpg"))

	s.cfg.PublicBaseURL = "https://cdn.example.com/"
	assert.Equal(t, "https://cdn.example.com/a/b.jpg", s.PublicURL("a/b.jpg"))
}

func TestMapError(t *testing.T) {
	assert.ErrorIs(t, mapError(minio.ErrorResponse{Code: "AccessDenied", StatusCode: 403}), common.ErrUnauthorized)
	assert.ErrorIs(t, mapError(minio.ErrorResponse{Code: "PreconditionFailed", StatusCode: 412}), common.ErrAlreadyExists)
	assert.ErrorIs(t, mapError(minio.ErrorResponse{Code: "InternalError", StatusCode: 503}), common.ErrUnavailable)
	assert.ErrorIs(t, mapError(context.DeadlineExceeded), common.ErrUnavailable)

	other := errors.New("boom")
	assert.Equal(t, other, mapError(other))
}
