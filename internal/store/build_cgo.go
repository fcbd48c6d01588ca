//go:build sqlite_vec
// +build sqlite_vec

package store

// This file is compiled with CGO and the sqlite_vec tag. It swaps in
// github.com/mattn/go-sqlite3 as the driver for deployments that already
// link CGO, matching gocontext-mcp's cgo/purego split.
//
// Build command:
//   CGO_ENABLED=1 go build -tags "sqlite_vec,fts5" ./...
//
// Vector search itself still runs the pure-Go cosine scan in vector.go: no
// sqlite-vec extension binary is vendored anywhere in the example pack, so
// claiming native vector-extension support here would be fabricating a
// dependency. This file's only effect is the driver swap; see DESIGN.md.

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use.
	DriverName = "sqlite3"

	// BuildMode describes the current build configuration.
	BuildMode = "cgo"
)
