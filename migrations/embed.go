// Package migrations ships the postgres schema as versioned golang-migrate
// files. The files are embedded so the server and the integration suite can
// migrate without a checkout on disk.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
