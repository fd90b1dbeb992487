package source

import (
	"regexp"
	"strings"
)

var (
	pyDefRe       = regexp.MustCompile(`^(\s*)(?:async\s+)?def\s+([A-Za-z_]\w*)\s*\(`)
	pyDecoratorRe = regexp.MustCompile(`^\s*@([\w.]+)`)
	pyFromRe      = regexp.MustCompile(`^\s*from\s+(\.*[\w.]*)\s+import\s+(.+)$`)
	pyImportRe    = regexp.MustCompile(`^\s*import\s+(.+)$`)
)

// PythonParser extracts functions and imports from Python files by
// scanning indentation. It does not build a syntax tree.
type PythonParser struct{}

// NewPythonParser creates a PythonParser.
func NewPythonParser() *PythonParser {
	return &PythonParser{}
}

// Language implements Parser.
func (p *PythonParser) Language() string { return "python" }

// Extensions implements Parser.
func (p *PythonParser) Extensions() []string { return []string{".py"} }

// Parse returns every def (top level, nested and methods) with its decorators.
func (p *PythonParser) Parse(path string, src []byte) ([]Function, error) {
	lines := strings.Split(string(src), "\n")
	var funcs []Function

	for i, line := range lines {
		m := pyDefRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		indent := indentWidth(m[1])
		start := i + 1
		end := pyBlockEnd(lines, i, indent)

		funcs = append(funcs, Function{
			Name:       m[2],
			StartLine:  start,
			EndLine:    end,
			Body:       sliceLines(lines, start, end),
			Decorators: pyDecorators(lines, i),
		})
	}
	return funcs, nil
}

// pyBlockEnd returns the 1-based last line of the def starting at index defIdx.
func pyBlockEnd(lines []string, defIdx, indent int) int {
	// The signature may span lines; find the line where the parentheses close.
	sigEnd := defIdx
	depth := 0
	for j := defIdx; j < len(lines); j++ {
		code := stripPyComment(lines[j])
		depth += strings.Count(code, "(") + strings.Count(code, "[") - strings.Count(code, ")") - strings.Count(code, "]")
		sigEnd = j
		if depth <= 0 && strings.HasSuffix(strings.TrimSpace(code), ":") {
			break
		}
		if depth <= 0 && strings.Contains(code, ":") && j == defIdx {
			// one-line def such as "def f(): return 1"
			break
		}
	}

	end := sigEnd
	for j := sigEnd + 1; j < len(lines); j++ {
		trimmed := strings.TrimSpace(lines[j])
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if indentWidth(leadingSpace(lines[j])) <= indent {
			break
		}
		end = j
	}
	return end + 1
}

func pyDecorators(lines []string, defIdx int) []string {
	var decorators []string
	for j := defIdx - 1; j >= 0; j-- {
		m := pyDecoratorRe.FindStringSubmatch(lines[j])
		if m == nil {
			break
		}
		decorators = append([]string{m[1]}, decorators...)
	}
	return decorators
}

// Imports returns "import a.b" and "from a.b import c, d" statements,
// including parenthesized multi-line name lists.
func (p *PythonParser) Imports(path string, src []byte) ([]Import, error) {
	lines := strings.Split(string(src), "\n")
	var imports []Import

	for i := 0; i < len(lines); i++ {
		line := stripPyComment(lines[i])
		if m := pyFromRe.FindStringSubmatch(line); m != nil {
			names := m[2]
			if strings.Contains(names, "(") && !strings.Contains(names, ")") {
				for i+1 < len(lines) {
					i++
					next := stripPyComment(lines[i])
					names += " " + next
					if strings.Contains(next, ")") {
						break
					}
				}
			}
			imports = append(imports, Import{
				Module:  m[1],
				Symbols: splitNames(strings.Trim(strings.TrimSpace(names), "()")),
				Line:    i + 1,
			})
			continue
		}
		if m := pyImportRe.FindStringSubmatch(line); m != nil {
			for _, mod := range splitNames(m[1]) {
				imports = append(imports, Import{Module: mod, Line: i + 1})
			}
		}
	}
	return imports, nil
}

// splitNames splits "a, b as c, d" into [a b d].
func splitNames(list string) []string {
	var names []string
	for _, part := range strings.Split(list, ",") {
		fields := strings.Fields(strings.Trim(strings.TrimSpace(part), "()"))
		if len(fields) == 0 || fields[0] == "*" {
			continue
		}
		names = append(names, fields[0])
	}
	return names
}

func stripPyComment(line string) string {
	if idx := strings.Index(line, "#"); idx >= 0 {
		return line[:idx]
	}
	return line
}

func leadingSpace(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}

// indentWidth counts a tab as four spaces.
func indentWidth(ws string) int {
	n := 0
	for _, r := range ws {
		if r == '\t' {
			n += 4
		} else {
			n++
		}
	}
	return n
}
