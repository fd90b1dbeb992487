package coverage

import (
	"sort"
)

// LineCoverage holds the execution count of a single source line.
type LineCoverage struct {
	LineNumber     int `json:"line_number"`
	ExecutionCount int `json:"execution_count"`
}

// IsCovered reports whether the line was executed at least once.
func (l LineCoverage) IsCovered() bool {
	return l.ExecutionCount > 0
}

// BranchCoverage holds the outcome counts of one branch point.
type BranchCoverage struct {
	LineNumber int `json:"line_number"`
	BranchID   int `json:"branch_id"`
	TakenCount int `json:"taken_count"`
	TotalCount int `json:"total_count"`
}

// IsMissing reports whether the branch exists but was never taken.
func (b BranchCoverage) IsMissing() bool {
	return b.TakenCount == 0 && b.TotalCount > 0
}

// FunctionCoverage holds the entry count of a function.
// Identity is (file path, Name, LineNumber): names repeat across files.
type FunctionCoverage struct {
	Name           string `json:"name"`
	LineNumber     int    `json:"line_number"`
	ExecutionCount int    `json:"execution_count"`
}

// IsCovered reports whether the function was entered at least once.
func (f FunctionCoverage) IsCovered() bool {
	return f.ExecutionCount > 0
}

// FileCoverage is the normalized coverage of one source file.
type FileCoverage struct {
	FilePath  string             `json:"file_path"`
	Lines     []LineCoverage     `json:"lines"`
	Functions []FunctionCoverage `json:"functions,omitempty"`
	Branches  []BranchCoverage   `json:"branches,omitempty"`
}

// LineCoveragePercentage returns covered/total lines in percent.
// A file without lines is vacuously fully covered.
func (f *FileCoverage) LineCoveragePercentage() float64 {
	return Summarize([]FileCoverage{*f}).LinePercentage()
}

// FunctionCoveragePercentage returns covered/total functions in percent.
func (f *FileCoverage) FunctionCoveragePercentage() float64 {
	return Summarize([]FileCoverage{*f}).FunctionPercentage()
}

// BranchCoveragePercentage returns taken/total branch outcomes in percent.
func (f *FileCoverage) BranchCoveragePercentage() float64 {
	return Summarize([]FileCoverage{*f}).BranchPercentage()
}

// MissingBranches returns the branches that were never taken.
func (f *FileCoverage) MissingBranches() []BranchCoverage {
	var missing []BranchCoverage
	for _, b := range f.Branches {
		if b.IsMissing() {
			missing = append(missing, b)
		}
	}
	return missing
}

// LinesInRange returns the line records with start <= line <= end.
func (f *FileCoverage) LinesInRange(start, end int) []LineCoverage {
	var out []LineCoverage
	for _, l := range f.Lines {
		if l.LineNumber >= start && l.LineNumber <= end {
			out = append(out, l)
		}
	}
	return out
}

// Combine folds other's records into f, as when one source appears in several
// records or reports. Line counts add up by line number. Function counts add
// up by name and line; a function record without a line (0) matches any
// same-named one. Branches keep the larger taken and total counts per line
// and id.
func (f *FileCoverage) Combine(other *FileCoverage) {
	if other == nil {
		return
	}

	lineIdx := make(map[int]int, len(f.Lines))
	for i, l := range f.Lines {
		lineIdx[l.LineNumber] = i
	}
	for _, l := range other.Lines {
		if i, ok := lineIdx[l.LineNumber]; ok {
			f.Lines[i].ExecutionCount += l.ExecutionCount
			continue
		}
		lineIdx[l.LineNumber] = len(f.Lines)
		f.Lines = append(f.Lines, l)
	}
	sort.SliceStable(f.Lines, func(i, j int) bool { return f.Lines[i].LineNumber < f.Lines[j].LineNumber })

	for _, fn := range other.Functions {
		if i := f.functionIndex(fn); i >= 0 {
			f.Functions[i].ExecutionCount += fn.ExecutionCount
			if f.Functions[i].LineNumber == 0 {
				f.Functions[i].LineNumber = fn.LineNumber
			}
			continue
		}
		f.Functions = append(f.Functions, fn)
	}

	type branchKey struct{ line, id int }
	branchIdx := make(map[branchKey]int, len(f.Branches))
	for i, b := range f.Branches {
		branchIdx[branchKey{b.LineNumber, b.BranchID}] = i
	}
	for _, b := range other.Branches {
		key := branchKey{b.LineNumber, b.BranchID}
		i, ok := branchIdx[key]
		if !ok {
			branchIdx[key] = len(f.Branches)
			f.Branches = append(f.Branches, b)
			continue
		}
		f.Branches[i].TakenCount = max(f.Branches[i].TakenCount, b.TakenCount)
		f.Branches[i].TotalCount = max(f.Branches[i].TotalCount, b.TotalCount)
	}
}

func (f *FileCoverage) functionIndex(fn FunctionCoverage) int {
	for i, existing := range f.Functions {
		if existing.Name != fn.Name {
			continue
		}
		if existing.LineNumber == fn.LineNumber || existing.LineNumber == 0 || fn.LineNumber == 0 {
			return i
		}
	}
	return -1
}

// Report is the tool-agnostic coverage of a whole project, keyed by file path.
// Collectors produce it; nothing mutates it afterwards.
type Report struct {
	Files map[string]*FileCoverage `json:"files"`
}

// NewReport creates an empty report.
func NewReport() *Report {
	return &Report{Files: make(map[string]*FileCoverage)}
}

// Add inserts or replaces the coverage of one file.
func (r *Report) Add(fc *FileCoverage) {
	if r.Files == nil {
		r.Files = make(map[string]*FileCoverage)
	}
	r.Files[fc.FilePath] = fc
}

// Merge folds every file of other into r. Files present in both are
// combined with FileCoverage.Combine; other is not modified.
func (r *Report) Merge(other *Report) {
	if other == nil {
		return
	}
	for _, path := range other.Paths() {
		src := other.Files[path]
		if existing, ok := r.Files[path]; ok {
			existing.Combine(src)
			continue
		}
		clone := *src
		clone.Lines = append([]LineCoverage(nil), src.Lines...)
		clone.Functions = append([]FunctionCoverage(nil), src.Functions...)
		clone.Branches = append([]BranchCoverage(nil), src.Branches...)
		r.Add(&clone)
	}
}

// Paths returns the file paths in lexical order.
func (r *Report) Paths() []string {
	paths := make([]string, 0, len(r.Files))
	for p := range r.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// FileList returns the file coverages ordered by path.
func (r *Report) FileList() []FileCoverage {
	files := make([]FileCoverage, 0, len(r.Files))
	for _, p := range r.Paths() {
		files = append(files, *r.Files[p])
	}
	return files
}

// Totals folds all files into raw counts.
func (r *Report) Totals() Totals {
	return Summarize(r.FileList())
}

// OverallLineCoverage is the ratio of all covered lines to all lines,
// so small files do not weigh more than large ones.
func (r *Report) OverallLineCoverage() float64 {
	return r.Totals().LinePercentage()
}

// OverallFunctionCoverage is the ratio of all covered functions to all functions.
func (r *Report) OverallFunctionCoverage() float64 {
	return r.Totals().FunctionPercentage()
}

// OverallBranchCoverage is the ratio of all taken branch outcomes to all outcomes.
func (r *Report) OverallBranchCoverage() float64 {
	return r.Totals().BranchPercentage()
}

// UncoveredFiles returns the paths of files at exactly 0% line coverage.
func (r *Report) UncoveredFiles() []string {
	var out []string
	for _, p := range r.Paths() {
		if r.Files[p].LineCoveragePercentage() == 0 {
			out = append(out, p)
		}
	}
	return out
}

// FileCoveragePct pairs a file path with its line coverage.
type FileCoveragePct struct {
	Path       string  `json:"path"`
	Percentage float64 `json:"percentage"`
}

// PartiallyCoveredFiles returns files with some coverage strictly below threshold,
// lowest coverage first.
func (r *Report) PartiallyCoveredFiles(threshold float64) []FileCoveragePct {
	var out []FileCoveragePct
	for _, p := range r.Paths() {
		pct := r.Files[p].LineCoveragePercentage()
		if pct > 0 && pct < threshold {
			out = append(out, FileCoveragePct{Path: p, Percentage: pct})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Percentage < out[j].Percentage
	})
	return out
}
