//go:build !sqlite_vec

package store

// Default build: pure-Go SQLite via modernc.org/sqlite, no CGO required.
// This is the driver used unless the caller opts into the sqlite_vec build
// tag (see build_cgo.go).

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use.
	DriverName = "sqlite"

	// BuildMode describes the current build configuration.
	BuildMode = "purego"
)
