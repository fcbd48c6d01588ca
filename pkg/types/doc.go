// Package types provides shared type definitions for the semantic code
// search server.
//
// This package defines the domain types shared across the chunker,
// indexer, store, and search orchestrator: the canonical Chunk record,
// its persisted VectorRecord form, search results, and the error kinds
// surfaced to MCP callers.
//
// # Core Types
//
// Chunk represents a semantically bounded code span produced by the
// chunker:
//
//	chunk := &types.Chunk{
//	    ID:        types.DeriveChunkID("/repo/a.go", 12, 0, false),
//	    FilePath:  "/repo/a.go",
//	    Content:   functionBody,
//	    NodeType:  "function_declaration",
//	    Language:  "go",
//	}
//
// VectorRecord is the persisted form: a Chunk plus its embedding and a
// file-level content hash used for change detection:
//
//	rec := types.VectorRecord{Chunk: *chunk, Vector: embedding, ContentHash: hash}
//
// # Validation
//
// Domain types implement validation methods to enforce the §3 invariants
// (vector length, line ordering, id charset).
package types
