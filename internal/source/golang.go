package source

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"
	"strings"
)

// GoParser extracts functions and imports from Go files using go/parser.
type GoParser struct{}

// NewGoParser creates a GoParser.
func NewGoParser() *GoParser {
	return &GoParser{}
}

// Language implements Parser.
func (p *GoParser) Language() string { return "go" }

// Extensions implements Parser.
func (p *GoParser) Extensions() []string { return []string{".go"} }

// Parse returns every function and method declaration with a body.
// Unexported names are marked private.
func (p *GoParser) Parse(path string, src []byte) ([]Function, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, src, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	lines := strings.Split(string(src), "\n")
	var funcs []Function
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Body == nil {
			continue
		}
		start := fset.Position(fn.Pos()).Line
		end := fset.Position(fn.End()).Line
		funcs = append(funcs, Function{
			Name:       fn.Name.Name,
			StartLine:  start,
			EndLine:    end,
			Body:       sliceLines(lines, start, end),
			Decorators: directives(fn.Doc),
			Private:    !ast.IsExported(fn.Name.Name),
		})
	}
	return funcs, nil
}

// directives returns the //go: and //nolint style directives attached to a declaration.
func directives(doc *ast.CommentGroup) []string {
	if doc == nil {
		return nil
	}
	var out []string
	for _, c := range doc.List {
		text := strings.TrimPrefix(c.Text, "//")
		if strings.HasPrefix(text, "go:") || strings.HasPrefix(text, "nolint") {
			out = append(out, text)
		}
	}
	return out
}

// Imports returns the import paths of a Go file.
func (p *GoParser) Imports(path string, src []byte) ([]Import, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, src, parser.ImportsOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to parse imports of %s: %w", path, err)
	}

	imports := make([]Import, 0, len(file.Imports))
	for _, spec := range file.Imports {
		module, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			continue
		}
		imports = append(imports, Import{
			Module: module,
			Line:   fset.Position(spec.Pos()).Line,
		})
	}
	return imports, nil
}
