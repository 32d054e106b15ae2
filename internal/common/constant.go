package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the access
// token on outbound requests.
const AccessTokenHeaderName = "access_token"

// Metadata keys kept in the local key/value table.
const (
	MetaBackupLatest = "backup.latest"
	MetaAccessToken  = "remote.access_token"
	MetaLastSyncAt   = "sync.last_at"
)
