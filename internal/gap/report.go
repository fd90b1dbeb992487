package gap

import "sort"

// FunctionGap is a function whose coverage is below the undertested threshold.
type FunctionGap struct {
	FilePath     string   `json:"file_path" yaml:"file_path"`
	FunctionName string   `json:"function_name" yaml:"function_name"`
	LineNumber   int      `json:"line_number" yaml:"line_number"`
	EndLine      int      `json:"end_line" yaml:"end_line"`
	Complexity   int      `json:"complexity" yaml:"complexity"`
	CoveragePct  float64  `json:"coverage_pct" yaml:"coverage_pct"`
	IsPublic     bool     `json:"is_public" yaml:"is_public"`
	Priority     Priority `json:"priority" yaml:"priority"`
}

// StaleTest is a test file whose imports no longer resolve.
type StaleTest struct {
	TestFilePath   string   `json:"test_file_path" yaml:"test_file_path"`
	MissingImports []string `json:"missing_imports" yaml:"missing_imports"`
	Reason         string   `json:"reason" yaml:"reason"`
}

// Report is the result of one gap analysis run.
type Report struct {
	UntestedFiles   []string      `json:"untested_files" yaml:"untested_files"`
	FunctionGaps    []FunctionGap `json:"function_gaps" yaml:"function_gaps"`
	StaleTests      []StaleTest   `json:"stale_tests" yaml:"stale_tests"`
	OverallCoverage float64       `json:"overall_coverage" yaml:"overall_coverage"`
	TargetCoverage  float64       `json:"target_coverage" yaml:"target_coverage"`
}

// PrioritizedGaps returns the function gaps ordered by tier, then ascending
// coverage, then descending complexity. Equal gaps keep their discovery order.
func (r *Report) PrioritizedGaps() []FunctionGap {
	gaps := append([]FunctionGap(nil), r.FunctionGaps...)
	sort.SliceStable(gaps, func(i, j int) bool {
		a, b := gaps[i], gaps[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() < b.Priority.Rank()
		}
		if a.CoveragePct != b.CoveragePct {
			return a.CoveragePct < b.CoveragePct
		}
		return a.Complexity > b.Complexity
	})
	return gaps
}

// CountByPriority returns the number of gaps in each tier.
func (r *Report) CountByPriority() map[Priority]int {
	counts := make(map[Priority]int)
	for _, g := range r.FunctionGaps {
		counts[g.Priority]++
	}
	return counts
}
