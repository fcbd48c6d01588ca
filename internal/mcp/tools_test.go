package mcp

import (
	"context"
	"testing"

	mcpsdk "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callArgs(args map[string]interface{}) mcpsdk.CallToolRequest {
	var req mcpsdk.CallToolRequest
	req.Params.Arguments = args
	return req
}

func TestHandleSemanticSearchRejectsEmptyQuery(t *testing.T) {
	srv := newTestServer(t)
	_, err := srv.handleSemanticSearch(context.Background(), callArgs(map[string]interface{}{
		"query": "",
	}))
	require.Error(t, err)
	mcpErr, ok := err.(*MCPError)
	require.True(t, ok)
	assert.Equal(t, ErrorCodeEmptyQuery, mcpErr.Code)
}

func TestHandleSemanticSearchRejectsMissingQuery(t *testing.T) {
	srv := newTestServer(t)
	_, err := srv.handleSemanticSearch(context.Background(), callArgs(map[string]interface{}{}))
	require.Error(t, err)
	mcpErr, ok := err.(*MCPError)
	require.True(t, ok)
	assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
}

func TestHandleSemanticSearchRejectsLimitOutOfRange(t *testing.T) {
	srv := newTestServer(t)
	_, err := srv.handleSemanticSearch(context.Background(), callArgs(map[string]interface{}{
		"query": "Hello",
		"limit": float64(1000),
	}))
	require.Error(t, err)
	mcpErr, ok := err.(*MCPError)
	require.True(t, ok)
	assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
}

func TestHandleSemanticSearchReturnsResults(t *testing.T) {
	srv := newTestServer(t)
	result, err := srv.handleSemanticSearch(context.Background(), callArgs(map[string]interface{}{
		"query": "Hello",
	}))
	require.NoError(t, err)
	require.NotNil(t, result)
}

// TestHandleSemanticSearchRejectsPathTraversal covers §6's PathTraversal
// check: a path argument that escapes the indexed root must be rejected
// before it ever reaches the search filter, not silently narrowed to a
// LIKE-pattern that matches nothing (or, worse, something outside root).
func TestHandleSemanticSearchRejectsPathTraversal(t *testing.T) {
	srv := newTestServer(t)
	_, err := srv.handleSemanticSearch(context.Background(), callArgs(map[string]interface{}{
		"query": "Hello",
		"path":  "../../etc",
	}))
	require.Error(t, err)
	mcpErr, ok := err.(*MCPError)
	require.True(t, ok)
	assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
}

// TestBuildSearchRequestDefaultsUseRerankingTrue covers §6: an omitted
// use_reranking argument must default to true, not false.
func TestBuildSearchRequestDefaultsUseRerankingTrue(t *testing.T) {
	req, err := buildSearchRequest("/root", map[string]interface{}{"query": "Hello"})
	require.NoError(t, err)
	assert.True(t, req.UseReranking)
}

func TestGetIntDefaultAcceptsJSONFloat64(t *testing.T) {
	assert.Equal(t, 42, getIntDefault(map[string]interface{}{"limit": float64(42)}, "limit", 10))
	assert.Equal(t, 10, getIntDefault(map[string]interface{}{}, "limit", 10))
}
