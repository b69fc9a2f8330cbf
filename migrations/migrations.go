// Package migrations embeds the SQL schema applied by the migrate command.
package migrations

import "embed"

// Files holds the *.sql migrations in lexical apply order.
//
//go:embed *.sql
var Files embed.FS
