// Package config loads runtime settings for vplm.
//
// Settings are layered, later sources winning:
//
//  1. LoadDefaults: built-in values (local-only store under ./.vplm, no
//     remote, 12s request timeout, 1.5s backup debounce, 10 backups kept).
//  2. JSON file named by -c or --config. Keys are snake_case; durations
//     accept "3s" style strings or integer nanoseconds. Keys that are
//     absent or empty leave the previous layer untouched.
//  3. Command-line flags (see parseFlags). Only the flags in FlagNames are
//     read; everything else on the command line belongs to the command tree.
//
// Secrets (access_token, s3_access_key, s3_secret_key, relay_secret) are
// JSON-only so they never show up in a process listing.
//
// Example JSON:
//
//	{
//	  "data_dir": "/var/lib/vplm",
//	  "remote_kind": "grpc",
//	  "remote_addr": "sync.example.com:443",
//	  "blob_kind": "s3",
//	  "s3_bucket": "job-photos",
//	  "request_timeout": "12s",
//	  "backup_delay": "1500ms"
//	}
package config
