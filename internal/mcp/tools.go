package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ervantix/semcode-mcp/pkg/types"
)

// MCP error codes, grounded on gocontext-mcp's internal/mcp/tools.go
// constants, narrowed to the codes this single-tool surface can raise.
const (
	ErrorCodeInvalidParams = -32602
	ErrorCodeInternalError = -32603
	ErrorCodeEmptyQuery    = -32004
)

// MCPError carries a JSON-RPC-style code alongside a human-readable
// message, exactly as gocontext-mcp's tools.go does.
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string { return e.Message }

func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{Code: code, Message: message, Data: data}
}

// handleSemanticSearch implements the consolidated semantic_search tool:
// validate arguments, build a types.SearchRequest, delegate to the hybrid
// search Orchestrator, and format the response per §6.
func (s *Server) handleSemanticSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := req.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	if err := validateSemanticSearchArgs(args); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, err.Error(), nil)
	}

	searchReq, err := buildSearchRequest(s.root, args)
	if err != nil {
		return nil, err
	}

	resp, err := s.orch.Search(ctx, searchReq)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, fmt.Sprintf("search failed: %v", err), nil)
	}

	return mcp.NewToolResultText(formatSearchResponse(resp)), nil
}

// buildSearchRequest turns raw tool arguments into a types.SearchRequest,
// resolving path against root and rejecting traversal attempts (§6's
// PathTraversal check) before it ever reaches the search filter. Split out
// of handleSemanticSearch so argument-to-request mapping, including its
// defaults, is directly testable without a live Server.
func buildSearchRequest(root string, args map[string]interface{}) (types.SearchRequest, error) {
	query := getStringDefault(args, "query", "")
	if query == "" {
		return types.SearchRequest{}, newMCPError(ErrorCodeEmptyQuery, "query must not be empty", nil)
	}

	path := getStringDefault(args, "path", "")
	if path != "" {
		resolved, err := resolveWithinRoot(root, path)
		if err != nil {
			return types.SearchRequest{}, newMCPError(ErrorCodeInvalidParams, err.Error(), nil)
		}
		path = resolved
	}

	return types.SearchRequest{
		Query:               query,
		Path:                path,
		Limit:               getIntDefault(args, "limit", 10),
		FilePattern:         getStringDefault(args, "file_pattern", ""),
		UseReranking:        getBoolDefault(args, "use_reranking", true),
		CandidateMultiplier: getIntDefault(args, "candidate_multiplier", 5),
	}, nil
}

// searchResultView is the §6 response shape for one hit: file, line
// range, optional name/signature, node type, score, and content.
type searchResultView struct {
	File      string   `json:"file"`
	StartLine int      `json:"startLine"`
	EndLine   int       `json:"endLine"`
	Name      *string  `json:"name"`
	NodeType  string   `json:"nodeType"`
	Score     float64  `json:"score"`
	Content   string   `json:"content"`
	Signature *string  `json:"signature"`
}

type searchResponseView struct {
	Results      []searchResultView `json:"results"`
	TotalResults int                `json:"totalResults"`
	Query        string             `json:"query"`
	Partial      bool               `json:"partial,omitempty"`
}

func formatSearchResponse(resp types.SearchResponse) string {
	view := searchResponseView{
		Results:      make([]searchResultView, len(resp.Results)),
		TotalResults: resp.TotalResults,
		Query:        resp.Query,
		Partial:      resp.Partial,
	}
	for i, r := range resp.Results {
		view.Results[i] = searchResultView{
			File:      r.FilePath,
			StartLine: r.StartLine,
			EndLine:   r.EndLine,
			Name:      optionalString(r.Name),
			NodeType:  r.NodeType,
			Score:     r.CombinedScore,
			Content:   r.Content,
			Signature: optionalString(r.Signature),
		}
	}

	bytes, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", view)
	}
	return string(bytes)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// getBoolDefault extracts a boolean parameter with a default value.
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value.
// MCP arguments arrive decoded from JSON, so numbers are float64.
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value.
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
