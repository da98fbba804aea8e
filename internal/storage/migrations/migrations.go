// Package migrations embeds the schema for the snapshot database.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
