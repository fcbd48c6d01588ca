package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/ervantix/semcode-mcp/pkg/types"
)

// Validation errors for codebase root paths, grounded on gocontext-mcp's
// validatePath helper in internal/mcp/tools.go.
var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)

// validatePath enforces §6's path-validation contract for a codebase root:
// required, absolute, existing, readable, and a directory.
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}
	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()
	return nil
}

// resolveWithinRoot implements §6's PathTraversal check: rel must resolve
// to a path under root once joined and cleaned, rejecting "../" escapes.
func resolveWithinRoot(root, rel string) (string, error) {
	if rel == "" {
		return root, nil
	}
	joined := filepath.Join(root, rel)
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", types.NewCodeError(types.KindPathTraversal, "resolve root", err)
	}
	absJoined, err := filepath.Abs(joined)
	if err != nil {
		return "", types.NewCodeError(types.KindPathTraversal, "resolve path", err)
	}
	if absJoined != absRoot && !strings.HasPrefix(absJoined, absRoot+string(filepath.Separator)) {
		return "", types.NewCodeError(types.KindPathTraversal, fmt.Sprintf("%q escapes root %q", rel, root), types.ErrPathTraversal)
	}
	return absJoined, nil
}

// validateSemanticSearchArgs checks raw tool arguments against
// requestSchema before they are mapped onto types.SearchRequest, so a
// malformed call is rejected with a precise error rather than a zero-value
// field silently falling back to a default.
func validateSemanticSearchArgs(args map[string]interface{}) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}

	schemaLoader := gojsonschema.NewStringLoader(requestSchema)
	docLoader := gojsonschema.NewBytesLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("validate arguments: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return types.NewCodeError(types.KindInvalidFilter, strings.Join(msgs, "; "), errors.New("schema validation failed"))
	}
	return nil
}
