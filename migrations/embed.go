// Package migrations embeds the SQL schema files into the binary.
//
// Files follow VERSION_description.up.sql / .down.sql and are applied with
// database.DB.Migrate(ctx, migrations.FS).
package migrations

import "embed"

// FS holds every migration file at its root.
//
//go:embed *.sql
var FS embed.FS
