package source

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/zjy-dev/gapwatch/internal/logger"
)

// defaultIgnoreDirs are skipped at any depth.
var defaultIgnoreDirs = map[string]bool{
	".git":          true,
	"node_modules":  true,
	"vendor":        true,
	".venv":         true,
	"venv":          true,
	"__pycache__":   true,
	".pytest_cache": true,
	"site-packages": true,
	"dist":          true,
	"build":         true,
	"target":        true,
	".next":         true,
	".gapwatch":     true,
}

// Walk returns the slash-separated, root-relative paths of all files under
// root that some parser in reg handles. It honors the root .gitignore, the
// built-in ignored directories and extra patterns (gitignore syntax).
// Unreadable entries below root are skipped with a warning.
func Walk(root string, reg *Registry, extra ...string) ([]string, error) {
	patterns := append([]string{}, extra...)

	if content, err := os.ReadFile(filepath.Join(root, ".gitignore")); err == nil {
		patterns = append(patterns, strings.Split(string(content), "\n")...)
	}
	matcher := ignore.CompileIgnoreLines(patterns...)

	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			logger.Warn("Skipping %s: %v", path, err)
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			if defaultIgnoreDirs[info.Name()] || matcher.MatchesPath(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if matcher.MatchesPath(rel) {
			return nil
		}
		if reg == nil || reg.Supports(rel) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// IsTestFile reports whether path follows a common test file naming convention.
func IsTestFile(path string) bool {
	slashed := filepath.ToSlash(path)
	base := filepath.Base(slashed)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	switch {
	case strings.HasPrefix(base, "test_"),
		strings.HasSuffix(stem, "_test"),
		strings.Contains(base, ".test."),
		strings.Contains(base, ".spec."):
		return true
	}
	for _, dir := range strings.Split(filepath.Dir(slashed), "/") {
		if dir == "tests" || dir == "__tests__" {
			return true
		}
	}
	return false
}

// TestStem returns the base name a test file is named after:
// test_foo.py, foo_test.go, foo.test.ts and foo.spec.js all yield "foo".
func TestStem(path string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = strings.TrimPrefix(stem, "test_")
	for _, suffix := range []string{"_test", ".test", ".spec"} {
		stem = strings.TrimSuffix(stem, suffix)
	}
	return stem
}
