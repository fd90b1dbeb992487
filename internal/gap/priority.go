package gap

// Priority is the urgency tier of a gap.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Rank orders priorities: critical is 0, low is 3.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	default:
		return 3
	}
}

// Classify applies the priority table. Rows are checked top-down and the
// first match wins, so complexity and visibility promote to the same tier.
func Classify(complexity int, coveragePct float64, public bool, cfg Config) Priority {
	switch {
	case coveragePct == 0 && (complexity >= cfg.HighComplexity || public):
		return PriorityCritical
	case coveragePct < cfg.UndertestedThreshold/2 && (complexity >= cfg.ModerateComplexity || public):
		return PriorityHigh
	case coveragePct > 0 && coveragePct < cfg.UndertestedThreshold:
		return PriorityMedium
	default:
		return PriorityLow
	}
}
