// Package chunker converts (file_path, content) into the chunk sequence
// described in §4.3: AST-aware spans where a grammar is available, line
// windows otherwise. Go source is walked with go/parser (internal/parser);
// the other minimum-table languages are walked with a regex-based
// top-level-declaration scanner grounded on the example pack's own
// regex-chunking approach, since no tree-sitter binding exists anywhere in
// it (see DESIGN.md). Every non-Go language therefore degrades gracefully
// to the same line-window fallback Go does on a parse failure.
package chunker

import (
	"bytes"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/ervantix/semcode-mcp/internal/parser"
	"github.com/ervantix/semcode-mcp/pkg/types"
)

// MaxTraversalDepth bounds AST/brace-nesting traversal (§4.3 step 5).
const MaxTraversalDepth = 100

// FallbackWindowLines and FallbackOverlapLines configure line-based
// fallback chunking (§4.3 "Fallback chunking").
const (
	FallbackWindowLines  = 50
	FallbackOverlapLines = 5
)

// Chunker produces chunks from source files.
type Chunker struct {
	goParser *parser.Parser
	logger   *log.Logger
}

// New creates a Chunker. A nil logger discards warnings.
func New(logger *log.Logger) *Chunker {
	if logger == nil {
		logger = log.New(noopWriter{}, "", 0)
	}
	return &Chunker{goParser: parser.New(), logger: logger}
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

// Chunk converts a file's content into an ordered chunk sequence.
func (c *Chunker) Chunk(filePath string, content []byte) ([]types.Chunk, error) {
	content = stripBOM(content)
	ext := strings.ToLower(filepath.Ext(filePath))
	lang := LanguageForExtension(ext)

	if lang == "" {
		return c.fallbackChunk(filePath, content), nil
	}

	var chunks []types.Chunk
	if lang == "go" {
		chunks = c.chunkGo(filePath, content)
	} else {
		chunks = c.chunkRegexLanguage(filePath, content, Languages[lang])
	}

	if len(chunks) == 0 {
		c.logger.Printf("[chunker] no semantic matches in %s, falling back to line windows", filePath)
		return c.fallbackChunk(filePath, content), nil
	}

	return c.splitOversized(chunks), nil
}

func stripBOM(content []byte) []byte {
	return bytes.TrimPrefix(content, []byte{0xEF, 0xBB, 0xBF})
}

func splitLines(content []byte) []string {
	return strings.Split(string(content), "\n")
}

// lineRange returns lines[start-1:end] joined by "\n" (1-indexed, inclusive).
func lineRange(lines []string, start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}

// extractSignature implements §4.3 step 6's signature rule: first line;
// if it lacks '{' or ':', append up to 4 following lines until one does;
// truncate at the opening delimiter.
func extractSignature(lines []string, startLine int) string {
	end := startLine
	limit := startLine + 4
	if limit > len(lines) {
		limit = len(lines)
	}
	for end <= limit {
		line := ""
		if end-1 < len(lines) {
			line = lines[end-1]
		}
		if idx := strings.IndexAny(line, "{:"); idx >= 0 {
			joined := lineRange(lines, startLine, end)
			if cut := strings.Index(joined, "{"); cut >= 0 {
				return strings.TrimSpace(joined[:cut])
			}
			return strings.TrimSpace(joined)
		}
		if end == len(lines) {
			break
		}
		end++
	}
	return strings.TrimSpace(lineRange(lines, startLine, end))
}

func buildChunk(filePath, language, nodeType, name, signature, docstring string, lines []string, startLine, endLine int) types.Chunk {
	content := lineRange(lines, startLine, endLine)
	return types.Chunk{
		ID:        types.DeriveChunkID(filePath, startLine, 0, false),
		FilePath:  filePath,
		Content:   content,
		StartLine: startLine,
		EndLine:   endLine,
		Name:      name,
		NodeType:  nodeType,
		Signature: signature,
		Docstring: docstring,
		Language:  language,
	}
}

func keepChunk(c types.Chunk) bool {
	return types.IsSubstantial(c.Content)
}

// chunkGo walks a Go file's AST (via internal/parser) and emits one chunk
// per extracted symbol (function, method, or type declaration — §6's "go"
// row).
func (c *Chunker) chunkGo(filePath string, content []byte) []types.Chunk {
	result, err := c.goParser.ParseSource(filePath, content)
	if err != nil {
		c.logger.Printf("[chunker] go parse error in %s: %v", filePath, err)
		return nil
	}
	if result.HasErrors() {
		c.logger.Printf("[chunker] go parse warnings in %s: %d", filePath, len(result.Errors))
	}

	lines := splitLines(content)
	var chunks []types.Chunk
	for _, sym := range result.Symbols {
		nodeType := "type_declaration"
		switch sym.Kind {
		case types.KindFunction:
			nodeType = "function_declaration"
		case types.KindMethod:
			nodeType = "method_declaration"
		}
		chunk := buildChunk(filePath, "go", nodeType, sym.Name, sym.Signature, sym.DocComment, lines, sym.Start.Line, sym.End.Line)
		if keepChunk(chunk) {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

// chunkRegexLanguage scans for top-level declaration lines matching the
// language's patterns, then determines each declaration's end line by
// brace matching (BlockBody languages) or indentation dedent (Python),
// extracting name/signature/docstring alongside.
func (c *Chunker) chunkRegexLanguage(filePath string, content []byte, spec *LanguageSpec) []types.Chunk {
	lines := splitLines(content)
	var chunks []types.Chunk

	pendingDecorators := 0
	for i := 0; i < len(lines); i++ {
		trimmed := strings.TrimLeft(lines[i], " \t")
		indent := len(lines[i]) - len(trimmed)
		if indent != 0 {
			continue // only top-level declarations are chunk nodes
		}

		nodeType, name, ok := matchDecl(spec, trimmed)
		if !ok {
			continue
		}
		if nodeType == "decorated_definition" {
			pendingDecorators++
			continue
		}

		startLine := i + 1
		if pendingDecorators > 0 {
			startLine -= pendingDecorators
			pendingDecorators = 0
		}

		var endLine int
		if spec.BlockBody {
			endLine = findBraceEnd(lines, i)
		} else {
			endLine = findIndentEnd(lines, i)
		}

		doc := extractLeadingDoc(lines, startLine, spec.LineComment)
		sig := extractSignature(lines, startLine)
		chunk := buildChunk(filePath, spec.Name, nodeType, name, sig, doc, lines, startLine, endLine)
		if keepChunk(chunk) {
			chunks = append(chunks, chunk)
		}
		i = endLine - 1
	}
	return chunks
}

func matchDecl(spec *LanguageSpec, line string) (nodeType, name string, ok bool) {
	for _, p := range spec.Patterns {
		if m := p.Regexp.FindStringSubmatch(line); m != nil {
			return p.NodeType, m[1], true
		}
	}
	return "", "", false
}

// findBraceEnd returns the 1-indexed line on which the brace opened at or
// after startIdx (0-indexed) closes, bounded by MaxTraversalDepth nesting.
func findBraceEnd(lines []string, startIdx int) int {
	depth := 0
	seenOpen := false
	for i := startIdx; i < len(lines); i++ {
		for _, r := range lines[i] {
			switch r {
			case '{':
				depth++
				seenOpen = true
				if depth > MaxTraversalDepth {
					return i + 1
				}
			case '}':
				depth--
				if seenOpen && depth <= 0 {
					return i + 1
				}
			}
		}
	}
	return len(lines)
}

// findIndentEnd returns the last 1-indexed line of an indentation-scoped
// block (Python) starting at startIdx (0-indexed): the block ends just
// before the next non-blank line at column 0.
func findIndentEnd(lines []string, startIdx int) int {
	for i := startIdx + 1; i < len(lines); i++ {
		trimmed := strings.TrimRight(lines[i], " \t")
		if trimmed == "" {
			continue
		}
		if len(lines[i])-len(strings.TrimLeft(lines[i], " \t")) == 0 {
			return i // 1-indexed line before this one
		}
	}
	return len(lines)
}

// extractLeadingDoc collects contiguous comment lines immediately
// preceding startLine (no blank-line gap), per §4.3 step 6's docstring
// rule. For Python it additionally inspects the first statement of the
// body for a string literal (a "docstring" in the language's own sense).
func extractLeadingDoc(lines []string, startLine int, lineComment string) string {
	var leading []string
	if lineComment != "" {
		for i := startLine - 2; i >= 0; i-- {
			t := strings.TrimSpace(lines[i])
			if t == "" {
				break
			}
			if !strings.HasPrefix(t, lineComment) {
				break
			}
			leading = append([]string{strings.TrimSpace(strings.TrimPrefix(t, lineComment))}, leading...)
		}
	}
	if len(leading) > 0 {
		return strings.Join(leading, "\n")
	}

	// Python body docstring: first non-blank line inside the block is a
	// triple-quoted (or plain-quoted) string literal.
	if lineComment == "#" {
		for i := startLine; i < len(lines); i++ {
			t := strings.TrimSpace(lines[i])
			if t == "" {
				continue
			}
			if strings.HasPrefix(t, `"""`) || strings.HasPrefix(t, `'''`) || strings.HasPrefix(t, `"`) || strings.HasPrefix(t, `'`) {
				return strings.Trim(t, `"' `)
			}
			break
		}
	}
	return ""
}

// fallbackChunk implements §4.3's fallback: 50-line windows with a 5-line
// overlap, node_type "fallback_chunk", skipping empty windows.
func (c *Chunker) fallbackChunk(filePath string, content []byte) []types.Chunk {
	lines := splitLines(content)
	language := strings.TrimPrefix(strings.ToLower(filepath.Ext(filePath)), ".")
	if language == "" {
		language = "unknown"
	}

	var chunks []types.Chunk
	idx := 0
	step := FallbackWindowLines - FallbackOverlapLines
	if step <= 0 {
		step = FallbackWindowLines
	}
	for start := 1; start <= len(lines); start += step {
		end := start + FallbackWindowLines - 1
		if end > len(lines) {
			end = len(lines)
		}
		text := lineRange(lines, start, end)
		if strings.TrimSpace(text) == "" {
			if end == len(lines) {
				break
			}
			continue
		}
		chunks = append(chunks, types.Chunk{
			ID:        types.DeriveChunkID(filePath, start, idx, true),
			FilePath:  filePath,
			Content:   text,
			StartLine: start,
			EndLine:   end,
			NodeType:  types.FallbackNodeType,
			Language:  language,
		})
		idx++
		if end == len(lines) {
			break
		}
	}
	return chunks
}

// splitOversized applies §4.3 step 6's oversized-chunk rule: content over
// MaxChunkChars is split into ~SplitTargetChars parts with
// SplitOverlapRatio line overlap. Only the first part keeps signature and
// docstring; every part's name gains a " (part i+1)" suffix.
func (c *Chunker) splitOversized(chunks []types.Chunk) []types.Chunk {
	var out []types.Chunk
	for _, chunk := range chunks {
		if len(chunk.Content) <= types.MaxChunkChars {
			out = append(out, chunk)
			continue
		}
		out = append(out, splitOneChunk(chunk)...)
	}
	return out
}

func splitOneChunk(chunk types.Chunk) []types.Chunk {
	lines := strings.Split(chunk.Content, "\n")
	totalLines := len(lines)
	if totalLines == 0 {
		return []types.Chunk{chunk}
	}

	// Estimate lines per part from the target char size and the chunk's
	// average chars-per-line, then derive the overlap in lines from the
	// configured ratio.
	avgCharsPerLine := float64(len(chunk.Content)) / float64(totalLines)
	if avgCharsPerLine == 0 {
		avgCharsPerLine = 1
	}
	linesPerPart := int(float64(types.SplitTargetChars) / avgCharsPerLine)
	if linesPerPart < 1 {
		linesPerPart = 1
	}
	overlapLines := int(float64(linesPerPart) * types.SplitOverlapRatio)

	var parts []types.Chunk
	partIdx := 0
	startIdx := 0
	for startIdx < totalLines {
		endIdx := startIdx + linesPerPart
		if endIdx > totalLines {
			endIdx = totalLines
		}
		partLines := lines[startIdx:endIdx]
		partContent := strings.Join(partLines, "\n")

		startLine := chunk.StartLine + startIdx
		endLine := chunk.StartLine + endIdx - 1

		name := chunk.Name
		if name == "" {
			name = chunk.NodeType
		}
		name = fmt.Sprintf("%s (part %d)", name, partIdx+1)

		part := types.Chunk{
			ID:        types.DeriveChunkID(chunk.FilePath, startLine, partIdx, false),
			FilePath:  chunk.FilePath,
			Content:   partContent,
			StartLine: startLine,
			EndLine:   endLine,
			Name:      name,
			NodeType:  chunk.NodeType,
			Language:  chunk.Language,
		}
		if partIdx == 0 {
			part.Signature = chunk.Signature
			part.Docstring = chunk.Docstring
		}
		parts = append(parts, part)

		if endIdx >= totalLines {
			break
		}
		partIdx++
		nextStart := endIdx - overlapLines
		if nextStart <= startIdx {
			nextStart = startIdx + 1 // always make forward progress
		}
		startIdx = nextStart
	}
	return parts
}
