package gap

import (
	"strings"

	"github.com/zjy-dev/gapwatch/internal/source"
)

// IsPublic reports whether fn belongs to the public API surface.
//
// Dunder names such as __init__ are public. Other names with a leading
// underscore are private. An explicit private marker from the parser or a
// decorator mentioning "private" overrides everything else.
func IsPublic(fn source.Function) bool {
	if fn.Private {
		return false
	}
	for _, dec := range fn.Decorators {
		if strings.Contains(strings.ToLower(dec), "private") {
			return false
		}
	}
	if isDunder(fn.Name) {
		return true
	}
	return !strings.HasPrefix(fn.Name, "_")
}

func isDunder(name string) bool {
	return len(name) > 4 && strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__")
}
