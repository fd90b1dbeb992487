package gap

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/mod/modfile"

	"github.com/zjy-dev/gapwatch/internal/coverage"
	"github.com/zjy-dev/gapwatch/internal/logger"
	"github.com/zjy-dev/gapwatch/internal/source"
)

var scriptExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs"}

// moduleGraph answers whether an import of a test file still resolves inside
// the project. Known files come from the source walk and the coverage report.
type moduleGraph struct {
	root       string
	files      map[string]bool
	goDirs     map[string]bool
	goModule   string
	pyDefCache map[string]map[string]bool
}

func (a *Analyzer) newModuleGraph(walked []string, report *coverage.Report) *moduleGraph {
	g := &moduleGraph{
		root:       a.root,
		files:      make(map[string]bool),
		goDirs:     make(map[string]bool),
		pyDefCache: make(map[string]map[string]bool),
	}
	add := func(rel string) {
		g.files[rel] = true
		if strings.HasSuffix(rel, ".go") {
			g.goDirs[path.Dir(rel)] = true
		}
	}
	for _, f := range walked {
		add(f)
	}
	for _, p := range report.Paths() {
		add(a.relPath(p))
	}

	if content, err := os.ReadFile(filepath.Join(a.root, "go.mod")); err == nil {
		g.goModule = modfile.ModulePath(content)
	}
	return g
}

// findStaleTests walks the project's test files and records imports that no
// longer resolve.
func (a *Analyzer) findStaleTests(report *coverage.Report) ([]StaleTest, error) {
	files, err := source.Walk(a.root, a.parsers, a.ignorePatterns()...)
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", a.root, err)
	}
	graph := a.newModuleGraph(files, report)

	var stale []StaleTest
	for _, rel := range files {
		if !source.IsTestFile(rel) {
			continue
		}
		parser, _ := a.parsers.ForPath(rel)
		src, err := os.ReadFile(filepath.Join(a.root, filepath.FromSlash(rel)))
		if err != nil {
			logger.Warn("Skipping test file %s: %v", rel, err)
			continue
		}
		imports, err := parser.Imports(rel, src)
		if err != nil {
			logger.Warn("Skipping test file %s: %v", rel, err)
			continue
		}

		var missing []string
		for _, imp := range imports {
			missing = append(missing, graph.unresolved(parser.Language(), rel, imp)...)
		}
		if len(missing) > 0 {
			stale = append(stale, StaleTest{
				TestFilePath:   rel,
				MissingImports: missing,
				Reason:         fmt.Sprintf("test imports %d module(s) or symbol(s) that no longer exist", len(missing)),
			})
		}
	}
	return stale, nil
}

// unresolved returns the names of imp that are project-local but missing.
// Imports of third-party or standard library code are never reported.
func (g *moduleGraph) unresolved(language, testFile string, imp source.Import) []string {
	switch language {
	case "go":
		return g.unresolvedGo(imp)
	case "python":
		return g.unresolvedPython(testFile, imp)
	case "javascript":
		return g.unresolvedScript(testFile, imp)
	}
	return nil
}

func (g *moduleGraph) unresolvedGo(imp source.Import) []string {
	if g.goModule == "" {
		return nil
	}
	var dir string
	switch {
	case imp.Module == g.goModule:
		dir = "."
	case strings.HasPrefix(imp.Module, g.goModule+"/"):
		dir = strings.TrimPrefix(imp.Module, g.goModule+"/")
	default:
		return nil
	}
	if g.goDirs[dir] || g.dirExists(dir) && g.hasGoFiles(dir) {
		return nil
	}
	return []string{imp.Module}
}

func (g *moduleGraph) hasGoFiles(dir string) bool {
	matches, _ := filepath.Glob(filepath.Join(g.root, filepath.FromSlash(dir), "*.go"))
	return len(matches) > 0
}

func (g *moduleGraph) unresolvedPython(testFile string, imp source.Import) []string {
	base, ok := g.pythonBase(testFile, imp.Module)
	if !ok {
		return nil
	}

	file, isModule := g.pythonModule(base)
	if !isModule {
		return []string{imp.Module}
	}

	var missing []string
	for _, sym := range imp.Symbols {
		if g.pythonSubmoduleExists(base, sym) || (file != "" && g.pythonDefines(file, sym)) {
			continue
		}
		missing = append(missing, strings.TrimSuffix(imp.Module, ".")+"."+sym)
	}
	return missing
}

// pythonBase maps a module name to a slash path relative to root. Absolute
// modules are project-local only when their top-level package exists under
// root or root/src.
func (g *moduleGraph) pythonBase(testFile, module string) (string, bool) {
	if strings.HasPrefix(module, ".") {
		dots := len(module) - len(strings.TrimLeft(module, "."))
		dir := path.Dir(testFile)
		for i := 1; i < dots; i++ {
			dir = path.Dir(dir)
		}
		rest := strings.ReplaceAll(strings.TrimLeft(module, "."), ".", "/")
		return path.Clean(path.Join(dir, rest)), true
	}

	top := strings.SplitN(module, ".", 2)[0]
	for _, prefix := range []string{"", "src/"} {
		if g.dirExists(prefix+top) || g.fileExists(prefix+top+".py") {
			return prefix + strings.ReplaceAll(module, ".", "/"), true
		}
	}
	return "", false
}

// pythonModule returns the file defining the module at base: base.py or
// base/__init__.py. A namespace package directory resolves with no file.
func (g *moduleGraph) pythonModule(base string) (string, bool) {
	if g.fileExists(base + ".py") {
		return base + ".py", true
	}
	if g.fileExists(base + "/__init__.py") {
		return base + "/__init__.py", true
	}
	if g.dirExists(base) {
		return "", true
	}
	return "", false
}

func (g *moduleGraph) pythonSubmoduleExists(base, name string) bool {
	sub := path.Join(base, name)
	return g.fileExists(sub+".py") || g.dirExists(sub)
}

var (
	pyTopDefRe    = regexp.MustCompile(`^(?:async\s+)?(?:def|class)\s+([A-Za-z_]\w*)`)
	pyTopAssignRe = regexp.MustCompile(`^([A-Za-z_][\w\s,]*?)\s*(?::[^=]*)?=[^=]`)
)

// pythonDefines reports whether the module file defines or re-exports name at top level.
func (g *moduleGraph) pythonDefines(file, name string) bool {
	defs, ok := g.pyDefCache[file]
	if !ok {
		defs = g.pythonTopLevelNames(file)
		g.pyDefCache[file] = defs
	}
	return defs[name] || defs["__getattr__"]
}

func (g *moduleGraph) pythonTopLevelNames(file string) map[string]bool {
	names := make(map[string]bool)
	src, err := os.ReadFile(filepath.Join(g.root, filepath.FromSlash(file)))
	if err != nil {
		return names
	}

	for _, line := range strings.Split(string(src), "\n") {
		if m := pyTopDefRe.FindStringSubmatch(line); m != nil {
			names[m[1]] = true
			continue
		}
		if m := pyTopAssignRe.FindStringSubmatch(line); m != nil {
			for _, n := range strings.Split(m[1], ",") {
				names[strings.TrimSpace(n)] = true
			}
		}
	}

	imports, _ := source.NewPythonParser().Imports(file, src)
	for _, imp := range imports {
		for _, sym := range imp.Symbols {
			names[sym] = true
		}
		if len(imp.Symbols) == 0 {
			names[strings.SplitN(imp.Module, ".", 2)[0]] = true
		}
	}
	return names
}

func (g *moduleGraph) unresolvedScript(testFile string, imp source.Import) []string {
	spec := imp.Module
	if !strings.HasPrefix(spec, "./") && !strings.HasPrefix(spec, "../") {
		return nil
	}
	target := path.Clean(path.Join(path.Dir(testFile), spec))

	candidates := []string{target}
	stem := target
	if ext := path.Ext(target); ext == ".js" || ext == ".jsx" || ext == ".mjs" || ext == ".cjs" {
		stem = strings.TrimSuffix(target, ext)
	}
	for _, ext := range scriptExtensions {
		candidates = append(candidates, stem+ext, target+"/index"+ext)
	}
	for _, c := range candidates {
		if g.fileExists(c) {
			return nil
		}
	}
	return []string{spec}
}

func (g *moduleGraph) fileExists(rel string) bool {
	if g.files[rel] {
		return true
	}
	info, err := os.Stat(filepath.Join(g.root, filepath.FromSlash(rel)))
	return err == nil && !info.IsDir()
}

func (g *moduleGraph) dirExists(rel string) bool {
	info, err := os.Stat(filepath.Join(g.root, filepath.FromSlash(rel)))
	return err == nil && info.IsDir()
}
