package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/BrennanVollmar/vplm/internal/flagx"
	"github.com/BrennanVollmar/vplm/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Pointer and
// zero-checked fields let a partial file override only what it names.
type JsonConfig struct {
	DataDir   string `json:"data_dir"`
	DBFile    string `json:"db_file"`
	BackupDir string `json:"backup_dir"`
	ImportDir string `json:"import_dir"`

	RemoteKind  string `json:"remote_kind"`
	RemoteAddr  string `json:"remote_addr"`
	RemoteDSN   string `json:"remote_dsn"`
	AccessToken string `json:"access_token"`

	BlobKind      string         `json:"blob_kind"`
	S3Endpoint    string         `json:"s3_endpoint"`
	S3Bucket      string         `json:"s3_bucket"`
	S3Region      string         `json:"s3_region"`
	S3AccessKey   string         `json:"s3_access_key"`
	S3SecretKey   string         `json:"s3_secret_key"`
	S3PublicURL   string         `json:"s3_public_url"`
	S3UseSSL      *bool          `json:"s3_use_ssl"`
	UploadTimeout timex.Duration `json:"upload_timeout"`

	RequestTimeout      timex.Duration `json:"request_timeout"`
	PullPageSize        int            `json:"pull_page_size"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`

	BackupDelay      timex.Duration `json:"backup_delay"`
	BackupHistoryCap int            `json:"backup_history_cap"`

	ListenAddr string `json:"listen_addr"`
	LogLevel   string `json:"log_level"`
	LogFile    string `json:"log_file"`

	RelayAddr    string         `json:"relay_addr"`
	RelayBackend string         `json:"relay_backend"`
	RelaySecret  string         `json:"relay_secret"`
	TokenTTL     timex.Duration `json:"token_ttl"`
}

// parseJson overlays cfg with values from the JSON file named by -c/--config
// in args. No flag means no file and no changes.
func parseJson(cfg *Config, args []string) error {
	path := flagx.ConfigPathFrom(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	jc.apply(cfg)
	return nil
}

func (jc *JsonConfig) apply(cfg *Config) {
	setString(&cfg.DataDir, jc.DataDir)
	setString(&cfg.DBFile, jc.DBFile)
	setString(&cfg.BackupDir, jc.BackupDir)
	setString(&cfg.ImportDir, jc.ImportDir)

	setString(&cfg.RemoteKind, jc.RemoteKind)
	setString(&cfg.RemoteAddr, jc.RemoteAddr)
	setString(&cfg.RemoteDSN, jc.RemoteDSN)
	setString(&cfg.AccessToken, jc.AccessToken)

	setString(&cfg.BlobKind, jc.BlobKind)
	setString(&cfg.S3Endpoint, jc.S3Endpoint)
	setString(&cfg.S3Bucket, jc.S3Bucket)
	setString(&cfg.S3Region, jc.S3Region)
	setString(&cfg.S3AccessKey, jc.S3AccessKey)
	setString(&cfg.S3SecretKey, jc.S3SecretKey)
	setString(&cfg.S3PublicURL, jc.S3PublicURL)
	if jc.S3UseSSL != nil {
		cfg.S3UseSSL = *jc.S3UseSSL
	}
	setDuration(&cfg.UploadTimeout, jc.UploadTimeout)

	setDuration(&cfg.RequestTimeout, jc.RequestTimeout)
	if jc.PullPageSize != 0 {
		cfg.PullPageSize = jc.PullPageSize
	}
	setDuration(&cfg.OnlineCheckInterval, jc.OnlineCheckInterval)

	setDuration(&cfg.BackupDelay, jc.BackupDelay)
	if jc.BackupHistoryCap != 0 {
		cfg.BackupHistoryCap = jc.BackupHistoryCap
	}

	setString(&cfg.ListenAddr, jc.ListenAddr)
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.LogFile, jc.LogFile)

	setString(&cfg.RelayAddr, jc.RelayAddr)
	setString(&cfg.RelayBackend, jc.RelayBackend)
	setString(&cfg.RelaySecret, jc.RelaySecret)
	setDuration(&cfg.TokenTTL, jc.TokenTTL)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
