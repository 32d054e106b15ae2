// Package s3blob uploads photo binaries to an S3-compatible bucket through
// presigned PUT urls.
package s3blob

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BrennanVollmar/vplm/internal/netx"
	"github.com/BrennanVollmar/vplm/internal/remote"
	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PresignExpiry bounds how long a generated upload url stays valid.
const PresignExpiry = 15 * time.Minute

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
)

// Config locates the bucket.
type Config struct {
	Endpoint  string // empty means AWS
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// PublicBaseURL overrides the url PublicURL builds on.
	PublicBaseURL string
	HTTPClient    *http.Client
}

// Store implements remote.BlobStore.
type Store struct {
	cfg     Config
	presign *s3.PresignClient
	http    *http.Client
}

var _ remote.BlobStore = (*Store)(nil)

// New builds the presign client. No network traffic happens here.
func New(ctx context.Context, cfg Config) (*Store, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: time.Minute}
	}
	return &Store{cfg: cfg, presign: newS3PresignClient(client), http: hc}, nil
}

// Upload presigns a PUT for path and sends data to it.
func (s *Store) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	req, err := presignPutObject(s.presign, ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(path),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(PresignExpiry))
	if err != nil {
		return fmt.Errorf("failed to presign %s: %w", path, err)
	}

	if err := netx.PutPresigned(ctx, s.http, req.URL, data, contentType); err != nil {
		return fmt.Errorf("failed to upload %s: %w", path, err)
	}
	return nil
}

// PublicURL is PublicBaseURL/path when configured, otherwise the path-style
// object url on the endpoint.
func (s *Store) PublicURL(path string) string {
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + path
	}
	base := s.cfg.Endpoint
	if base == "" {
		base = fmt.Sprintf("https://s3.%s.amazonaws.com", s.cfg.Region)
	}
	return strings.TrimRight(base, "/") + "/" + s.cfg.Bucket + "/" + path
}
