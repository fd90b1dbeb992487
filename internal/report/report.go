// Package report renders gap reports, task lists and coverage trends for
// terminals, markdown documents and machines.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zjy-dev/gapwatch/internal/gap"
	"github.com/zjy-dev/gapwatch/internal/history"
	"github.com/zjy-dev/gapwatch/internal/task"
	"github.com/zjy-dev/gapwatch/internal/watch"
)

// Format selects a renderer.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
)

// ErrUnsupportedValue is returned for values no renderer knows.
var ErrUnsupportedValue = errors.New("unsupported report value")

// ParseFormat accepts a format name, case-insensitively. "md" and "yml" are
// accepted as aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, markdown, json or yaml)", s)
	}
}

// Analysis bundles a gap report with the tasks built from it.
type Analysis struct {
	Gaps  *gap.Report `json:"gaps" yaml:"gaps"`
	Tasks []task.Task `json:"tasks" yaml:"tasks"`
}

// Reporter renders one value in one format.
type Reporter interface {
	Render(w io.Writer, v any) error
}

// Options tunes the human-readable renderers.
type Options struct {
	// Color enables ANSI colors in text output.
	Color bool
}

// New returns the reporter for format.
func New(format Format, opts Options) (Reporter, error) {
	switch format {
	case FormatText:
		return NewTerminal(opts.Color), nil
	case FormatMarkdown:
		return Markdown{}, nil
	case FormatJSON:
		return jsonReporter{}, nil
	case FormatYAML:
		return yamlReporter{}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// Render writes v to w in format. v is one of *Analysis, *gap.Report,
// []task.Task, *watch.TrendReport or []history.Snapshot.
func Render(w io.Writer, format Format, v any, opts Options) error {
	r, err := New(format, opts)
	if err != nil {
		return err
	}
	return r.Render(w, v)
}

type jsonReporter struct{}

func (jsonReporter) Render(w io.Writer, v any) error {
	if err := checkSupported(v); err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

type yamlReporter struct{}

func (yamlReporter) Render(w io.Writer, v any) error {
	if err := checkSupported(v); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return enc.Close()
}

func checkSupported(v any) error {
	switch v.(type) {
	case *Analysis, *gap.Report, []task.Task, *watch.TrendReport, []history.Snapshot:
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}
