package coverage

// Totals are the raw counts behind every derived percentage.
type Totals struct {
	TotalLines       int `json:"total_lines"`
	CoveredLines     int `json:"covered_lines"`
	TotalFunctions   int `json:"total_functions"`
	CoveredFunctions int `json:"covered_functions"`
	BranchesTaken    int `json:"branches_taken"`
	BranchesTotal    int `json:"branches_total"`
}

// Summarize folds a list of file coverages into totals.
// It returns a fresh value on every call and never mutates its input.
func Summarize(files []FileCoverage) Totals {
	var t Totals
	for _, f := range files {
		t = t.Add(summarizeFile(f))
	}
	return t
}

func summarizeFile(f FileCoverage) Totals {
	t := Totals{
		TotalLines:     len(f.Lines),
		TotalFunctions: len(f.Functions),
	}
	for _, l := range f.Lines {
		if l.IsCovered() {
			t.CoveredLines++
		}
	}
	for _, fn := range f.Functions {
		if fn.IsCovered() {
			t.CoveredFunctions++
		}
	}
	for _, b := range f.Branches {
		t.BranchesTaken += b.TakenCount
		t.BranchesTotal += b.TotalCount
	}
	return t
}

// Add returns the element-wise sum of t and o.
func (t Totals) Add(o Totals) Totals {
	return Totals{
		TotalLines:       t.TotalLines + o.TotalLines,
		CoveredLines:     t.CoveredLines + o.CoveredLines,
		TotalFunctions:   t.TotalFunctions + o.TotalFunctions,
		CoveredFunctions: t.CoveredFunctions + o.CoveredFunctions,
		BranchesTaken:    t.BranchesTaken + o.BranchesTaken,
		BranchesTotal:    t.BranchesTotal + o.BranchesTotal,
	}
}

// LinePercentage is 100 when there are no lines.
func (t Totals) LinePercentage() float64 {
	return percent(t.CoveredLines, t.TotalLines)
}

// FunctionPercentage is 100 when there are no functions.
func (t Totals) FunctionPercentage() float64 {
	return percent(t.CoveredFunctions, t.TotalFunctions)
}

// BranchPercentage is 100 when no branch outcomes were recorded.
func (t Totals) BranchPercentage() float64 {
	return percent(t.BranchesTaken, t.BranchesTotal)
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 100.0
	}
	return float64(part) / float64(whole) * 100.0
}
