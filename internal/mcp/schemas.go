package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// semanticSearchTool returns the sole tool definition of §6: query, path,
// limit, file_pattern, use_reranking, candidate_multiplier. Grounded on
// gocontext-mcp's schemas.go shape (one function per tool returning
// mcp.Tool), narrowed to a single consolidated tool.
func semanticSearchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "semantic_search",
		Description: "Search an indexed codebase with a natural-language or keyword query, combining vector similarity and keyword matching",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Optional path prefix to restrict results to (relative to the indexed root)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-50)",
					"default":     10,
					"minimum":     1,
					"maximum":     50,
				},
				"file_pattern": map[string]interface{}{
					"type":        "string",
					"description": "Glob pattern to restrict results to, e.g. '*.go' or '*_test.go'",
				},
				"use_reranking": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, rerank the vector-search candidate pool with the cross-encoder reranker",
					"default":     true,
				},
				"candidate_multiplier": map[string]interface{}{
					"type":        "integer",
					"description": "When use_reranking is true, the candidate pool size is limit * candidate_multiplier",
					"default":     5,
					"minimum":     1,
					"maximum":     20,
				},
			},
			Required: []string{"query"},
		},
	}
}

// requestSchema is the JSON schema semantic_search arguments are
// validated against before being mapped onto types.SearchRequest,
// supplementing mcp-go's own struct-level schema with explicit validation
// errors (§6 DOMAIN STACK: github.com/xeipuuv/gojsonschema). query's
// emptiness is deliberately left to handleSemanticSearch's explicit check
// so a blank query surfaces as ErrorCodeEmptyQuery rather than a generic
// schema-validation failure.
const requestSchema = `{
	"type": "object",
	"properties": {
		"query": {"type": "string"},
		"path": {"type": "string"},
		"limit": {"type": "integer", "minimum": 1, "maximum": 50},
		"file_pattern": {"type": "string"},
		"use_reranking": {"type": "boolean"},
		"candidate_multiplier": {"type": "integer", "minimum": 1, "maximum": 20}
	},
	"required": ["query"]
}`
