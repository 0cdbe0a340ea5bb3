// Package migrations embeds the SQL schema so the API, the CLI and the
// integration tests all apply the same files.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
