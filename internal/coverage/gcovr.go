package coverage

import (
	"path/filepath"

	"github.com/zjy-dev/gcovr-json-util/v2/pkg/gcovr"
)

// FromGcovrUncovered converts gcovr-json-util's UncoveredReport into a Report
// holding one function record per reported function.
//
// The uncovered report lists functions with their uncovered line numbers and
// line counts but not the positions of covered lines, so only function records
// are produced. A function is counted as entered when any of its lines ran, and
// its line number is the first uncovered line (0 when none is known).
//
// Parameters:
//   - report: the gcovr UncoveredReport to convert
//   - base: prefix for relative file paths (empty keeps them as reported)
func FromGcovrUncovered(report *gcovr.UncoveredReport, base string) *Report {
	out := NewReport()
	if report == nil {
		return out
	}

	for _, gf := range report.Files {
		path := gf.FilePath
		if base != "" && !filepath.IsAbs(path) {
			path = filepath.Join(base, path)
		}

		fc := &FileCoverage{
			FilePath:  path,
			Functions: make([]FunctionCoverage, 0, len(gf.UncoveredFunctions)),
		}
		for _, fn := range gf.UncoveredFunctions {
			name := fn.DemangledName
			if name == "" {
				name = fn.FunctionName
			}
			line := 0
			for _, ln := range fn.UncoveredLineNumbers {
				if line == 0 || ln < line {
					line = ln
				}
			}
			hits := 0
			if fn.CoveredLines > 0 {
				hits = 1
			}
			fc.Functions = append(fc.Functions, FunctionCoverage{
				Name:           name,
				LineNumber:     line,
				ExecutionCount: hits,
			})
		}
		out.Add(fc)
	}

	return out
}

// MergeFunctions adds function records from src to files already in r when r
// has no function records for them. Line and branch data in r are kept.
func (r *Report) MergeFunctions(src *Report) {
	if src == nil {
		return
	}
	for _, p := range src.Paths() {
		dst, ok := r.Files[p]
		if !ok || len(dst.Functions) > 0 {
			continue
		}
		merged := *dst
		merged.Functions = append([]FunctionCoverage(nil), src.Files[p].Functions...)
		r.Files[p] = &merged
	}
}
