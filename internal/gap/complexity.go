package gap

import (
	"regexp"
	"strings"

	"github.com/zjy-dev/gapwatch/internal/source"
)

var (
	decisionKeywordRe = regexp.MustCompile(`\b(if|elif|case|for|while|except|catch|and|or)\b`)
	shortCircuitRe    = regexp.MustCompile(`&&|\|\|`)
	ternaryRe         = regexp.MustCompile(`\s\?\s`)
)

// EstimateComplexity returns a cyclomatic complexity estimate for fn: one plus
// the number of branch, loop, handler and short-circuit tokens in its body.
// Nesting is ignored. "else if" counts once through its "if".
func EstimateComplexity(fn source.Function) int {
	body := strings.ToLower(fn.Body)
	if body == "" {
		return 1
	}
	complexity := 1
	complexity += len(decisionKeywordRe.FindAllStringIndex(body, -1))
	complexity += len(shortCircuitRe.FindAllStringIndex(body, -1))
	complexity += len(ternaryRe.FindAllStringIndex(body, -1))
	return complexity
}
