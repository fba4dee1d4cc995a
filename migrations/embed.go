// Package migrations embeds the SQL schema for the server databases.
package migrations

import "embed"

//go:embed mysql/*.sql postgres/*.sql
var FS embed.FS
