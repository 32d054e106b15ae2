// Package migrations embeds the local schema history. Files are applied in
// version order by goose; every version only adds tables or indexes.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS

// Latest is the highest schema version shipped.
const Latest = 10
