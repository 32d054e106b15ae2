// Package minioblob stores photo binaries in a MinIO bucket with the native
// MinIO client.
package minioblob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/BrennanVollmar/vplm/internal/common"
	"github.com/BrennanVollmar/vplm/internal/logging"
	"github.com/BrennanVollmar/vplm/internal/remote"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds the MinIO connection parameters. Endpoint is host:port
// without a scheme.
type Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	Bucket        string
	Region        string
	PublicBaseURL string
	Transport     http.RoundTripper
}

// Store implements remote.BlobStore.
type Store struct {
	client *minio.Client
	cfg    Config
	logger logging.Logger
}

var _ remote.BlobStore = (*Store)(nil)

func New(cfg Config, l logging.Logger) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init minio client: %w", err)
	}
	return &Store{client: client, cfg: cfg, logger: l.With("module", "minio")}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.cfg.Bucket, mapError(err))
	}
	if exists {
		return nil
	}
	s.logger.Info(ctx, "creating bucket", "bucket", s.cfg.Bucket)
	if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.cfg.Bucket, mapError(err))
	}
	return nil
}

func (s *Store) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	info, err := s.client.PutObject(ctx, s.cfg.Bucket, path, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", path, mapError(err))
	}
	s.logger.Debug(ctx, "uploaded", "path", path, "size", info.Size, "etag", info.ETag)
	return nil
}

func (s *Store) PublicURL(path string) string {
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + path
	}
	scheme := "http"
	if s.cfg.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.cfg.Endpoint, s.cfg.Bucket, path)
}

func mapError(err error) error {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
		return fmt.Errorf("%w: %w", common.ErrUnauthorized, err)
	case "PreconditionFailed":
		return fmt.Errorf("%w: %w", common.ErrAlreadyExists, err)
	}
	var netErr net.Error
	if resp.StatusCode >= 500 || errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", common.ErrUnavailable, err)
	}
	return err
}
