package source

import (
	"regexp"
	"strings"
)

var (
	jsFunctionRe  = regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*([A-Za-z_$][\w$]*)\s*\(`)
	jsArrowRe     = regexp.MustCompile(`^\s*(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*(?::[^=]+)?=\s*(?:async\s+)?(?:\([^)]*\)|[A-Za-z_$][\w$]*)\s*(?::[^=]+)?=>`)
	jsMethodRe    = regexp.MustCompile(`^\s*((?:(?:public|private|protected|static|async|readonly)\s+)*)(#?[A-Za-z_$][\w$]*)\s*\([^)]*\)\s*(?::\s*[^{]+)?\{\s*$`)
	jsDecoratorRe = regexp.MustCompile(`^\s*@([\w.]+)`)
	jsImportRe    = regexp.MustCompile(`^\s*import\s+(?:[\s\S]*?\s+from\s+)?['"]([^'"]+)['"]`)
	jsImportStart = regexp.MustCompile(`^\s*import(?:\s|\{|$)`)
	jsRequireRe   = regexp.MustCompile(`require\(\s*['"]([^'"]+)['"]\s*\)`)
)

var jsKeywords = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "catch": true,
	"return": true, "function": true,
}

// ScriptParser extracts functions and imports from JavaScript and TypeScript
// files with line patterns and brace matching.
type ScriptParser struct{}

// NewScriptParser creates a ScriptParser.
func NewScriptParser() *ScriptParser {
	return &ScriptParser{}
}

// Language implements Parser.
func (p *ScriptParser) Language() string { return "javascript" }

// Extensions implements Parser.
func (p *ScriptParser) Extensions() []string {
	return []string{".js", ".jsx", ".mjs", ".cjs", ".ts", ".tsx"}
}

// Parse returns function declarations, arrow functions bound to a name and
// class methods. TypeScript "private" modifiers and "#name" methods are marked private.
func (p *ScriptParser) Parse(path string, src []byte) ([]Function, error) {
	lines := strings.Split(string(src), "\n")
	var funcs []Function

	for i, line := range lines {
		name, private := "", false
		if m := jsFunctionRe.FindStringSubmatch(line); m != nil {
			name = m[1]
		} else if m := jsArrowRe.FindStringSubmatch(line); m != nil {
			name = m[1]
		} else if m := jsMethodRe.FindStringSubmatch(line); m != nil && !jsKeywords[m[2]] {
			name = m[2]
			private = strings.Contains(m[1], "private") || strings.HasPrefix(name, "#")
		}
		if name == "" {
			continue
		}

		start := i + 1
		end := braceBlockEnd(lines, i)
		funcs = append(funcs, Function{
			Name:       strings.TrimPrefix(name, "#"),
			StartLine:  start,
			EndLine:    end,
			Body:       sliceLines(lines, start, end),
			Decorators: jsDecorators(lines, i),
			Private:    private,
		})
	}
	return funcs, nil
}

// braceBlockEnd returns the 1-based line closing the first brace opened at or after idx.
// Expression-bodied arrow functions without braces end on their own line.
func braceBlockEnd(lines []string, idx int) int {
	depth := 0
	opened := false
	for j := idx; j < len(lines); j++ {
		for _, r := range stripStrings(lines[j]) {
			switch r {
			case '{':
				depth++
				opened = true
			case '}':
				depth--
			}
		}
		if opened && depth <= 0 {
			return j + 1
		}
		if !opened && j == idx && strings.Contains(lines[j], "=>") {
			return j + 1
		}
	}
	return len(lines)
}

// stripStrings blanks out quoted literals and line comments so braces inside them are ignored.
func stripStrings(line string) string {
	var b strings.Builder
	var quote rune
	escaped := false
	prev := rune(0)
	for _, r := range line {
		switch {
		case quote != 0:
			if escaped {
				escaped = false
			} else if r == '\\' {
				escaped = true
			} else if r == quote {
				quote = 0
			}
			b.WriteRune(' ')
		case r == '"' || r == '\'' || r == '`':
			quote = r
			b.WriteRune(' ')
		case r == '/' && prev == '/':
			return b.String()
		default:
			b.WriteRune(r)
		}
		prev = r
	}
	return b.String()
}

func jsDecorators(lines []string, idx int) []string {
	var decorators []string
	for j := idx - 1; j >= 0; j-- {
		m := jsDecoratorRe.FindStringSubmatch(lines[j])
		if m == nil {
			break
		}
		decorators = append([]string{m[1]}, decorators...)
	}
	return decorators
}

// maxImportLines bounds how far an import statement is followed across lines.
const maxImportLines = 200

// Imports returns ES module imports and CommonJS requires. An import whose
// binding list spans several lines is reported at its first line.
func (p *ScriptParser) Imports(path string, src []byte) ([]Import, error) {
	lines := strings.Split(string(src), "\n")
	var imports []Import
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if m := jsImportRe.FindStringSubmatch(line); m != nil {
			imports = append(imports, Import{Module: m[1], Line: i + 1})
			continue
		}
		if jsImportStart.MatchString(line) && !strings.Contains(line, ";") {
			if module, end, ok := multiLineImport(lines, i); ok {
				imports = append(imports, Import{Module: module, Line: i + 1})
				i = end
				continue
			}
		}
		for _, m := range jsRequireRe.FindAllStringSubmatch(line, -1) {
			imports = append(imports, Import{Module: m[1], Line: i + 1})
		}
	}
	return imports, nil
}

// multiLineImport joins lines from start until they form a complete import
// statement. It returns the module and the index of the last line used.
func multiLineImport(lines []string, start int) (string, int, bool) {
	joined := lines[start]
	for j := start + 1; j < len(lines) && j-start <= maxImportLines; j++ {
		joined += " " + lines[j]
		if m := jsImportRe.FindStringSubmatch(joined); m != nil {
			return m[1], j, true
		}
		if strings.Contains(lines[j], ";") {
			break
		}
	}
	return "", start, false
}
