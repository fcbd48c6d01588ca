package chunker

import "regexp"

// LanguageSpec describes one language's file extensions and the regex
// patterns used to recognize its chunk-level declarations, in lieu of a
// tree-sitter grammar (see DESIGN.md for why no such binding is wired).
// Each pattern's first capture group is the declared name; NodeType
// labels the match using the node names from §6's chunk-node table so the
// rest of the pipeline (splitting, id derivation, scoring) is agnostic to
// how the match was produced.
type LanguageSpec struct {
	Name        string
	Extensions  []string
	Patterns    []DeclPattern
	LineComment string // "" if the language has no line-comment syntax relevant here
	BlockBody   bool   // true: body delimited by matching braces; false: indentation (python)
}

// DeclPattern recognizes one declaration form at column 0 (or the
// language's notion of top level).
type DeclPattern struct {
	NodeType string
	Regexp   *regexp.Regexp
}

// Languages is the minimum language table of §6, keyed by normalized tag.
var Languages = map[string]*LanguageSpec{
	"typescript": {
		Name:       "typescript",
		Extensions: []string{".ts", ".tsx"},
		BlockBody:  true,
		Patterns: []DeclPattern{
			{"function_declaration", regexp.MustCompile(`^(?:export\s+)?(?:async\s+)?function\s+(\w+)\s*[(<]`)},
			{"class_declaration", regexp.MustCompile(`^(?:export\s+)?(?:default\s+)?(?:abstract\s+)?class\s+(\w+)`)},
			{"interface_declaration", regexp.MustCompile(`^(?:export\s+)?interface\s+(\w+)`)},
			{"type_alias_declaration", regexp.MustCompile(`^(?:export\s+)?type\s+(\w+)\s*=`)},
			{"enum_declaration", regexp.MustCompile(`^(?:export\s+)?(?:const\s+)?enum\s+(\w+)`)},
			{"lexical_declaration", regexp.MustCompile(`^(?:export\s+)?(?:const|let)\s+(\w+)\s*=`)},
			{"variable_declaration", regexp.MustCompile(`^(?:export\s+)?var\s+(\w+)\s*=`)},
		},
		LineComment: "//",
	},
	"javascript": {
		Name:       "javascript",
		Extensions: []string{".js", ".jsx", ".mjs", ".cjs"},
		BlockBody:  true,
		Patterns: []DeclPattern{
			{"function_declaration", regexp.MustCompile(`^(?:export\s+)?(?:async\s+)?function\s+(\w+)\s*\(`)},
			{"class_declaration", regexp.MustCompile(`^(?:export\s+)?(?:default\s+)?class\s+(\w+)`)},
			{"lexical_declaration", regexp.MustCompile(`^(?:export\s+)?(?:const|let)\s+(\w+)\s*=`)},
			{"variable_declaration", regexp.MustCompile(`^(?:export\s+)?var\s+(\w+)\s*=`)},
		},
		LineComment: "//",
	},
	"python": {
		Name:       "python",
		Extensions: []string{".py", ".pyw"},
		BlockBody:  false,
		Patterns: []DeclPattern{
			{"function_definition", regexp.MustCompile(`^def\s+(\w+)\s*\(`)},
			{"class_definition", regexp.MustCompile(`^class\s+(\w+)`)},
			{"decorated_definition", regexp.MustCompile(`^@(\w+)`)},
		},
		LineComment: "#",
	},
	"go": {
		Name:       "go",
		Extensions: []string{".go"},
		BlockBody:  true,
	},
	"rust": {
		Name:       "rust",
		Extensions: []string{".rs"},
		BlockBody:  true,
		Patterns: []DeclPattern{
			{"function_item", regexp.MustCompile(`^(?:pub\s+)?(?:async\s+)?fn\s+(\w+)`)},
			{"impl_item", regexp.MustCompile(`^impl(?:<[^>]*>)?\s+(?:\w+\s+for\s+)?(\w+)`)},
			{"struct_item", regexp.MustCompile(`^(?:pub\s+)?struct\s+(\w+)`)},
			{"enum_item", regexp.MustCompile(`^(?:pub\s+)?enum\s+(\w+)`)},
			{"trait_item", regexp.MustCompile(`^(?:pub\s+)?trait\s+(\w+)`)},
			{"mod_item", regexp.MustCompile(`^(?:pub\s+)?mod\s+(\w+)`)},
		},
		LineComment: "//",
	},
}

// extensionIndex maps a file extension (with leading dot) to its
// normalized language tag.
var extensionIndex = func() map[string]string {
	m := make(map[string]string)
	for tag, spec := range Languages {
		for _, ext := range spec.Extensions {
			m[ext] = tag
		}
	}
	return m
}()

// LanguageForExtension resolves a file extension to a normalized language
// tag, or "" if unsupported (triggering fallback chunking per §4.3 step 2).
func LanguageForExtension(ext string) string {
	return extensionIndex[ext]
}

// SupportedExtensions lists every extension the chunker recognizes,
// i.e. the discovery filter the indexer walks with (§4.5 step 1).
func SupportedExtensions() []string {
	exts := make([]string, 0, len(extensionIndex))
	for ext := range extensionIndex {
		exts = append(exts, ext)
	}
	return exts
}

// IsSupportedExtension reports whether ext (with leading dot) is one the
// chunker recognizes.
func IsSupportedExtension(ext string) bool {
	_, ok := extensionIndex[ext]
	return ok
}
