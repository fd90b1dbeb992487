package exec

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandExecutor_Run(t *testing.T) {
	executor := NewCommandExecutor()
	ctx := context.Background()

	t.Run("should execute a simple command successfully", func(t *testing.T) {
		result, err := executor.Run(ctx, "", "echo", "hello world")
		require.NoError(t, err)
		assert.Equal(t, "hello world\n", result.Stdout)
		assert.Empty(t, result.Stderr)
		assert.Equal(t, 0, result.ExitCode)
	})

	t.Run("should capture stderr", func(t *testing.T) {
		result, err := executor.Run(ctx, "", "sh", "-c", "echo 'hello stderr' 1>&2")
		require.NoError(t, err)
		assert.Empty(t, result.Stdout)
		assert.Equal(t, "hello stderr\n", result.Stderr)
	})

	t.Run("should handle non-zero exit codes", func(t *testing.T) {
		result, err := executor.Run(ctx, "", "sh", "-c", "exit 42")
		require.NoError(t, err)
		assert.Equal(t, 42, result.ExitCode)
	})

	t.Run("should return error for non-existent command", func(t *testing.T) {
		_, err := executor.Run(ctx, "", "this_command_does_not_exist_12345")
		assert.Error(t, err)
	})

	t.Run("should run in the given directory", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "marker.txt"), []byte("x"), 0644))

		result, err := executor.Run(ctx, dir, "ls")
		require.NoError(t, err)
		assert.Contains(t, result.Stdout, "marker.txt")
	})

	t.Run("should pass extra environment", func(t *testing.T) {
		e := &CommandExecutor{Env: []string{"GAPWATCH_MARKER=on"}}
		result, err := e.Run(ctx, "", "sh", "-c", "echo $GAPWATCH_MARKER")
		require.NoError(t, err)
		assert.Equal(t, "on\n", result.Stdout)
	})
}

func TestCommandExecutor_Cancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewCommandExecutor().Run(ctx, "", "sleep", "5")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 4*time.Second)
}
