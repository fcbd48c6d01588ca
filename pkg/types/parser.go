package types

// ParseResult is the output of walking a Go source file's AST looking for
// chunk-node candidates (§6 language table, "go" row).
type ParseResult struct {
	Symbols     []Symbol
	PackageName string
	Errors      []ParseError
}

// ParseError represents an error encountered while parsing a single file.
// Per §4.3's failure semantics, a ParseError is never fatal to an indexing
// run: it triggers fallback chunking for that file.
type ParseError struct {
	File    string
	Line    int
	Column  int
	Message string
}

func (pe *ParseError) Error() string { return pe.Message }

// HasErrors reports whether any parse errors were recorded.
func (pr *ParseResult) HasErrors() bool { return len(pr.Errors) > 0 }

// AddError records a parse error without aborting the walk.
func (pr *ParseResult) AddError(file string, line, col int, msg string) {
	pr.Errors = append(pr.Errors, ParseError{File: file, Line: line, Column: col, Message: msg})
}
