// Package migrations embeds the outbox schema migrations so the
// migrator binary is self-contained.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
