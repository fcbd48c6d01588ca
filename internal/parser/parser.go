// Package parser walks a Go source file's AST looking for the chunk-node
// candidates named in the "go" row of the language table: function and
// method declarations and type declarations. It is the AST-aware half of
// the Go chunker; non-Go languages use the heuristic line-scanning walker
// in internal/chunker instead, since no tree-sitter binding is available.
package parser

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"

	"github.com/ervantix/semcode-mcp/pkg/types"
)

// Parser holds the FileSet needed to translate token.Pos into line/column
// positions across a single parse.
type Parser struct {
	fset *token.FileSet
}

// New creates a new Parser instance.
func New() *Parser {
	return &Parser{fset: token.NewFileSet()}
}

// ParseSource parses Go source already read into memory (the chunker owns
// file I/O so it can BOM-strip and hash bytes once) and extracts symbols
// in declaration order. A syntax error is recorded but non-fatal: the
// partial AST go/parser still returns is walked for whatever symbols are
// recoverable, and the caller falls back to line-based chunking only if
// the result has no symbols at all.
func (p *Parser) ParseSource(filePath string, content []byte) (*types.ParseResult, error) {
	result := &types.ParseResult{}

	file, err := parser.ParseFile(p.fset, filePath, content, parser.ParseComments)
	if err != nil {
		result.AddError(filePath, 0, 0, fmt.Sprintf("syntax error: %v", err))
	}
	if file == nil {
		return result, nil
	}

	if file.Name != nil {
		result.PackageName = file.Name.Name
	}

	extractor := &symbolExtractor{fset: p.fset}
	ast.Inspect(file, extractor.visit)
	result.Symbols = extractor.symbols
	return result, nil
}

// symbolExtractor is a visitor for AST traversal that extracts symbols.
type symbolExtractor struct {
	fset    *token.FileSet
	symbols []types.Symbol
}

func (e *symbolExtractor) visit(node ast.Node) bool {
	if node == nil {
		return false
	}
	switch n := node.(type) {
	case *ast.FuncDecl:
		e.extractFunction(n)
		return false // don't descend into function bodies looking for more chunk nodes
	case *ast.GenDecl:
		if n.Tok == token.TYPE {
			e.extractGenDecl(n)
		}
	}
	return true
}

func (e *symbolExtractor) extractFunction(funcDecl *ast.FuncDecl) {
	sym := types.Symbol{
		Name:       funcDecl.Name.Name,
		DocComment: e.extractDocComment(funcDecl.Doc),
		Start:      e.positionFromToken(funcDecl.Pos()),
		End:        e.positionFromToken(funcDecl.End()),
		Signature:  e.extractFunctionSignature(funcDecl),
	}
	if funcDecl.Recv != nil && len(funcDecl.Recv.List) > 0 {
		sym.Kind = types.KindMethod
		sym.Receiver = e.extractReceiverType(funcDecl.Recv.List[0].Type)
	} else {
		sym.Kind = types.KindFunction
	}
	e.symbols = append(e.symbols, sym)
}

func (e *symbolExtractor) extractGenDecl(genDecl *ast.GenDecl) {
	for _, spec := range genDecl.Specs {
		typeSpec, ok := spec.(*ast.TypeSpec)
		if !ok {
			continue
		}
		doc := genDecl.Doc
		if typeSpec.Doc != nil {
			doc = typeSpec.Doc
		}
		sym := types.Symbol{
			Name:       typeSpec.Name.Name,
			Kind:       types.KindType,
			DocComment: e.extractDocComment(doc),
			Start:      e.positionFromToken(genDecl.Pos()),
			End:        e.positionFromToken(typeSpec.End()),
		}
		switch t := typeSpec.Type.(type) {
		case *ast.StructType:
			sym.Signature = e.extractStructSignature(typeSpec.Name.Name, t)
		case *ast.InterfaceType:
			sym.Signature = e.extractInterfaceSignature(typeSpec.Name.Name, t)
		default:
			sym.Signature = fmt.Sprintf("type %s %s", typeSpec.Name.Name, e.exprToString(typeSpec.Type))
		}
		e.symbols = append(e.symbols, sym)
	}
}

func (e *symbolExtractor) extractReceiverType(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		if ident, ok := t.X.(*ast.Ident); ok {
			return ident.Name
		}
	case *ast.Ident:
		return t.Name
	}
	return ""
}

func (e *symbolExtractor) extractFunctionSignature(funcDecl *ast.FuncDecl) string {
	var sig strings.Builder
	sig.WriteString("func ")
	if funcDecl.Recv != nil && len(funcDecl.Recv.List) > 0 {
		sig.WriteString("(")
		sig.WriteString(e.exprToString(funcDecl.Recv.List[0].Type))
		sig.WriteString(") ")
	}
	sig.WriteString(funcDecl.Name.Name)
	sig.WriteString("(")
	if funcDecl.Type.Params != nil {
		sig.WriteString(e.fieldListToString(funcDecl.Type.Params))
	}
	sig.WriteString(")")
	if funcDecl.Type.Results != nil {
		results := e.fieldListToString(funcDecl.Type.Results)
		if results != "" {
			if funcDecl.Type.Results.NumFields() > 1 {
				sig.WriteString(" (")
				sig.WriteString(results)
				sig.WriteString(")")
			} else {
				sig.WriteString(" ")
				sig.WriteString(results)
			}
		}
	}
	return sig.String()
}

func (e *symbolExtractor) extractStructSignature(name string, structType *ast.StructType) string {
	fieldCount := 0
	if structType.Fields != nil {
		fieldCount = structType.Fields.NumFields()
	}
	return fmt.Sprintf("type %s struct { ... } // %d fields", name, fieldCount)
}

func (e *symbolExtractor) extractInterfaceSignature(name string, interfaceType *ast.InterfaceType) string {
	methodCount := 0
	if interfaceType.Methods != nil {
		methodCount = interfaceType.Methods.NumFields()
	}
	return fmt.Sprintf("type %s interface { ... } // %d methods", name, methodCount)
}

func (e *symbolExtractor) fieldListToString(fieldList *ast.FieldList) string {
	if fieldList == nil || len(fieldList.List) == 0 {
		return ""
	}
	var parts []string
	for _, field := range fieldList.List {
		typeStr := e.exprToString(field.Type)
		if len(field.Names) > 0 {
			for _, name := range field.Names {
				parts = append(parts, fmt.Sprintf("%s %s", name.Name, typeStr))
			}
		} else {
			parts = append(parts, typeStr)
		}
	}
	return strings.Join(parts, ", ")
}

func (e *symbolExtractor) exprToString(expr ast.Expr) string {
	if expr == nil {
		return ""
	}
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return "*" + e.exprToString(t.X)
	case *ast.ArrayType:
		return "[]" + e.exprToString(t.Elt)
	case *ast.MapType:
		return fmt.Sprintf("map[%s]%s", e.exprToString(t.Key), e.exprToString(t.Value))
	case *ast.ChanType:
		return "chan " + e.exprToString(t.Value)
	case *ast.FuncType:
		return "func(...)"
	case *ast.InterfaceType:
		return "interface{}"
	case *ast.SelectorExpr:
		return e.exprToString(t.X) + "." + t.Sel.Name
	case *ast.Ellipsis:
		return "..." + e.exprToString(t.Elt)
	default:
		return "..."
	}
}

func (e *symbolExtractor) extractDocComment(doc *ast.CommentGroup) string {
	if doc == nil {
		return ""
	}
	return strings.TrimSpace(doc.Text())
}

func (e *symbolExtractor) positionFromToken(pos token.Pos) types.Position {
	position := e.fset.Position(pos)
	return types.Position{Line: position.Line, Column: position.Column}
}
