package chunker

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ervantix/semcode-mcp/pkg/types"
)

var chunkIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func TestChunkGoFileProducesOneChunkPerDeclaration(t *testing.T) {
	src := `package sample

// Authenticate verifies a JWT.
func Authenticate(jwt string) bool {
	return verify(jwt)
}

func unrelated() int {
	x := 42
	y := x * 2
	return x + y
}
`
	c := New(nil)
	chunks, err := c.Chunk("sample.go", []byte(src))
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Authenticate", chunks[0].Name)
	assert.Equal(t, "function_declaration", chunks[0].NodeType)
	assert.Equal(t, "go", chunks[0].Language)
}

func TestChunkIDsMatchSafeCharset(t *testing.T) {
	src := `package sample

func A() {}

func B() {}
`
	c := New(nil)
	chunks, err := c.Chunk("pkg/sample.go", []byte(src))
	require.NoError(t, err)
	for _, chunk := range chunks {
		assert.Regexp(t, chunkIDPattern, chunk.ID)
	}
}

// TestChunkUnsupportedExtensionFallsBack covers §8 scenario f: a .xyz file
// chunks via the 50-line fallback window, node_type "fallback_chunk",
// language the literal extension.
func TestChunkUnsupportedExtensionFallsBack(t *testing.T) {
	var lines []string
	for i := 0; i < 120; i++ {
		lines = append(lines, "some line of unrecognized content that is long enough to be substantial")
	}
	content := strings.Join(lines, "\n")

	c := New(nil)
	chunks, err := c.Chunk("notes.xyz", []byte(content))
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.Equal(t, types.FallbackNodeType, chunk.NodeType)
		assert.Equal(t, "xyz", chunk.Language)
		assert.LessOrEqual(t, chunk.EndLine-chunk.StartLine+1, FallbackWindowLines)
	}
}

// TestChunkOversizedFunctionSplitsIntoOverlappingParts covers §8 scenario
// e: a single oversized function splits into >=3 parts, each within the
// split target budget, with "(part N)" suffixed names.
func TestChunkOversizedFunctionSplitsIntoOverlappingParts(t *testing.T) {
	var body strings.Builder
	body.WriteString("package sample\n\nfunc Big() {\n")
	for body.Len() < 5000 {
		body.WriteString("\tdoSomething()\n")
	}
	body.WriteString("}\n")

	c := New(nil)
	chunks, err := c.Chunk("big.go", []byte(body.String()))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 3)

	for i, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk.Content), types.MaxChunkChars+500)
		assert.Contains(t, chunk.Name, "(part ")
		if i == 0 {
			assert.NotEmpty(t, chunk.Signature)
		}
	}
}

// TestChunkSkipsInsubstantialDeclarations covers §8 property 5: a
// one-line, trivially short declaration is dropped rather than kept as a
// near-empty chunk, while a substantial sibling declaration in the same
// file is kept.
func TestChunkSkipsInsubstantialDeclarations(t *testing.T) {
	src := `package sample

func X() {}

func Authenticate(jwt string) bool {
	return verify(jwt)
}
`
	c := New(nil)
	chunks, err := c.Chunk("tiny.go", []byte(src))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Authenticate", chunks[0].Name)
}

func TestChunkStripsBOM(t *testing.T) {
	bom := []byte{0xEF, 0xBB, 0xBF}
	src := append(bom, []byte("package sample\n\nfunc Hello() string {\n\treturn \"hi there friend\"\n}\n")...)
	c := New(nil)
	chunks, err := c.Chunk("hello.go", src)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.False(t, strings.HasPrefix(chunks[0].Content, string(bom)))
}
