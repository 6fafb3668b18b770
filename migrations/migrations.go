// Package migrations embeds the SQL schema migrations for the discount
// service. They are applied at startup by database.RunMigrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
