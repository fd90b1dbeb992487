//go:build integration

package exec

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCommandExecutor_Integration_GoCoverProfile runs a real go test with a cover profile.
func TestCommandExecutor_Integration_GoCoverProfile(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"go.mod":          "module example.com/doubler\n\ngo 1.22\n",
		"doubler.go":      "package doubler\n\nfunc Double(x int) int { return 2 * x }\n",
		"doubler_test.go": "package doubler\n\nimport \"testing\"\n\nfunc TestDouble(t *testing.T) {\n\tif Double(2) != 4 {\n\t\tt.Fatal(\"bad\")\n\t}\n}\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}

	profile := filepath.Join(dir, "cover.out")
	result, err := NewCommandExecutor().Run(context.Background(), dir, "go", "test", "-coverprofile="+profile, "./...")
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode, result.Stderr)

	content, err := os.ReadFile(profile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "mode:")
}

// TestCommandExecutor_Integration_Stderr tests stderr capture.
func TestCommandExecutor_Integration_Stderr(t *testing.T) {
	result, err := NewCommandExecutor().Run(context.Background(), "", "ls", "/nonexistent/path/that/does/not/exist")
	require.NoError(t, err)
	assert.NotEqual(t, 0, result.ExitCode)
	assert.NotEmpty(t, result.Stderr)
}
