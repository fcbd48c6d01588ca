package types

import (
	"fmt"
	"regexp"
	"strings"
)

// idUnsafe matches every byte disallowed in a chunk id; collapsed to '_'.
var idUnsafe = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// IDPattern is the charset every chunk id must satisfy (testable property 1).
var IDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// NormalizePathForID collapses path separators, dots, and any other unsafe
// character to '_'. It is shared verbatim between chunk-id derivation and
// the filter builder's path-prefix predicate so that a directory filter
// always admits the ids of chunks drawn from files under that directory.
func NormalizePathForID(path string) string {
	return idUnsafe.ReplaceAllString(path, "_")
}

// DeriveChunkID implements the id rule of §4.2: normalize(file_path) +
// "_L" + start_line, with an optional "_p<partIdx>" suffix for a split
// part, or "_fallback<partIdx>" for a fallback-chunking window.
func DeriveChunkID(filePath string, startLine, partIdx int, fallback bool) string {
	base := fmt.Sprintf("%s_L%d", NormalizePathForID(filePath), startLine)
	switch {
	case fallback:
		return fmt.Sprintf("%s_fallback%d", base, partIdx)
	case partIdx > 0:
		return fmt.Sprintf("%s_p%d", base, partIdx)
	default:
		return base
	}
}

// FallbackNodeType is the node_type recorded for line-window fallback chunks.
const FallbackNodeType = "fallback_chunk"

// Chunk is the atomic indexed unit: a bounded code span plus the metadata
// extracted alongside it.
type Chunk struct {
	ID         string
	FilePath   string
	Content    string
	StartLine  int
	EndLine    int
	Name       string // optional
	NodeType   string
	Signature  string // optional
	Docstring  string // optional
	Language   string
}

// Validate enforces the Chunk-level invariants from §3.
func (c *Chunk) Validate() error {
	if !IDPattern.MatchString(c.ID) {
		return fmt.Errorf("%w: id %q", ErrInvalidID, c.ID)
	}
	if c.FilePath == "" {
		return fmt.Errorf("%w: file_path required", ErrInvalidChunk)
	}
	if c.StartLine <= 0 || c.EndLine <= 0 || c.StartLine > c.EndLine {
		return fmt.Errorf("%w: bad line range %d..%d", ErrInvalidChunk, c.StartLine, c.EndLine)
	}
	if c.NodeType == "" {
		return fmt.Errorf("%w: node_type required", ErrInvalidChunk)
	}
	return nil
}

// IsSubstantial reports whether a non-fallback chunk clears the minimum
// size discipline of §4.3 step 6 (≥50 chars, ≥2 non-blank lines).
func IsSubstantial(content string) bool {
	if len(content) < 50 {
		return false
	}
	nonBlank := 0
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) != "" {
			nonBlank++
			if nonBlank >= 2 {
				return true
			}
		}
	}
	return false
}

// MaxChunkChars is the soft cap past which a chunk is split (§4.3 step 6).
const MaxChunkChars = 2000

// SplitTargetChars is the target size of each split part.
const SplitTargetChars = 1500

// SplitOverlapRatio is the fractional overlap between adjacent split parts.
const SplitOverlapRatio = 0.15
