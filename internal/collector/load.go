package collector

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/zjy-dev/gapwatch/internal/coverage"
)

// LoadReport parses an existing coverage file without running any tool.
// The format follows the content: lcov tracefiles (".info" or an "SF:"
// record), Go cover profiles ("mode:" header), coverage.py JSON ("files"
// object) and gcovr JSON ("files" array).
func LoadReport(path, root string) (*coverage.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read coverage file %s: %w", path, err)
	}
	trimmed := bytes.TrimSpace(data)

	switch {
	case bytes.HasPrefix(trimmed, []byte("mode:")):
		return ParseGoProfile(path, root)
	case strings.EqualFold(filepath.Ext(path), ".info") ||
		bytes.HasPrefix(trimmed, []byte("TN:")) || bytes.HasPrefix(trimmed, []byte("SF:")):
		return ParseLCOV(bytes.NewReader(data), root)
	case gjson.ValidBytes(data):
		files := gjson.GetBytes(data, "files")
		switch {
		case files.IsObject():
			return ParseCoveragePyJSON(data)
		case files.IsArray():
			return ParseGcovrJSON(data, root)
		}
	}
	return nil, fmt.Errorf("unrecognized coverage format in %s", path)
}
