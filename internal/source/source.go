package source

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Function is one function or method found in a source file.
type Function struct {
	Name       string
	StartLine  int
	EndLine    int
	Body       string   // source text from StartLine to EndLine
	Decorators []string // decorators/annotations without the leading marker
	Private    bool     // explicit privacy marker from the language (e.g. unexported Go identifier)
}

// Import is one import statement of a source file.
type Import struct {
	Module  string   // module path, dotted name or relative specifier as written
	Symbols []string // names imported from the module, if the language lists them
	Line    int
}

// Parser extracts the function inventory and imports of one language.
type Parser interface {
	// Language returns a short identifier such as "go" or "python".
	Language() string

	// Extensions returns the file extensions handled by this parser, including the dot.
	Extensions() []string

	// Parse returns the functions defined in src.
	Parse(path string, src []byte) ([]Function, error)

	// Imports returns the import statements of src.
	Imports(path string, src []byte) ([]Import, error)
}

// Registry maps file extensions to parsers.
type Registry struct {
	byExt map[string]Parser
}

// NewRegistry creates a registry from the given parsers. Later parsers do not
// override extensions claimed by earlier ones.
func NewRegistry(parsers ...Parser) *Registry {
	r := &Registry{byExt: make(map[string]Parser)}
	for _, p := range parsers {
		r.Register(p)
	}
	return r
}

// DefaultRegistry returns a registry with every built-in parser.
func DefaultRegistry() *Registry {
	return NewRegistry(NewGoParser(), NewPythonParser(), NewScriptParser())
}

// Register adds a parser for its extensions.
func (r *Registry) Register(p Parser) {
	for _, ext := range p.Extensions() {
		if _, taken := r.byExt[ext]; !taken {
			r.byExt[ext] = p
		}
	}
}

// ForPath returns the parser responsible for path.
func (r *Registry) ForPath(path string) (Parser, bool) {
	p, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return p, ok
}

// Supports reports whether any parser handles path.
func (r *Registry) Supports(path string) bool {
	_, ok := r.ForPath(path)
	return ok
}

// ParseFile parses src with the parser registered for path.
func (r *Registry) ParseFile(path string, src []byte) ([]Function, error) {
	p, ok := r.ForPath(path)
	if !ok {
		return nil, fmt.Errorf("no parser for %s", path)
	}
	return p.Parse(path, src)
}

// sliceLines returns lines [start, end] (1-based, inclusive) of src joined by newlines.
func sliceLines(lines []string, start, end int) string {
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

