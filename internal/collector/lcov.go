package collector

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zjy-dev/gapwatch/internal/coverage"
	"github.com/zjy-dev/gapwatch/internal/exec"
)

// DefaultLCOVReport is where the lcov collector expects the tool to write.
const DefaultLCOVReport = "coverage/lcov.info"

// LCOV collects JavaScript and TypeScript coverage through c8 (or any tool
// that writes an lcov tracefile) and parses the tracefile.
type LCOV struct {
	exec       exec.Executor
	command    []string
	reportPath string
}

// NewLCOV creates an lcov collector. A nil command means
// "npx c8 --reporter=lcovonly --report-dir=coverage npm test".
func NewLCOV(ex exec.Executor, command []string) *LCOV {
	if len(command) == 0 {
		command = []string{"npx", "c8", "--reporter=lcovonly", "--report-dir=coverage", "npm", "test"}
	}
	return &LCOV{exec: ex, command: command, reportPath: DefaultLCOVReport}
}

func (l *LCOV) Name() string { return "lcov" }

func (l *LCOV) Detect(root string) bool {
	return anyFileExists(root, "package.json", l.reportPath)
}

// RunCoverage runs the tool and reads the tracefile. Test files are passed
// after "--" so npm forwards them to the test runner.
func (l *LCOV) RunCoverage(ctx context.Context, root string, testFiles []string) (*coverage.Report, error) {
	argv := append([]string{}, l.command...)
	if len(testFiles) > 0 {
		argv = append(append(argv, "--"), testFiles...)
	}
	if err := runTool(ctx, l.exec, root, argv); err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(root, l.reportPath))
	if err != nil {
		return nil, fmt.Errorf("lcov: %w", ErrNoReport)
	}
	defer f.Close()
	return ParseLCOV(f, root)
}

// ParseLCOV parses an lcov tracefile (SF, DA, FN, FNDA, BRDA and
// end_of_record). Source paths are made relative to root.
func ParseLCOV(r io.Reader, root string) (*coverage.Report, error) {
	report := coverage.NewReport()
	var current *coverage.FileCoverage
	var fnLines map[string]int
	var fnHits map[string]int
	var fnOrder []string

	flush := func() {
		if current == nil {
			return
		}
		for _, name := range fnOrder {
			current.Functions = append(current.Functions, coverage.FunctionCoverage{
				Name:           name,
				LineNumber:     fnLines[name],
				ExecutionCount: fnHits[name],
			})
		}
		if existing, ok := report.Files[current.FilePath]; ok {
			// The same source may appear in several records of a merged tracefile.
			existing.Combine(current)
		} else {
			report.Add(current)
		}
		current = nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "end_of_record" {
			flush()
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}

		if key == "SF" {
			flush()
			current = &coverage.FileCoverage{FilePath: relativeTo(root, value)}
			fnLines = make(map[string]int)
			fnHits = make(map[string]int)
			fnOrder = nil
			continue
		}
		if current == nil {
			continue
		}

		switch key {
		case "DA":
			// DA:line,count[,checksum]
			parts := strings.Split(value, ",")
			if len(parts) < 2 {
				continue
			}
			n, err1 := strconv.Atoi(parts[0])
			count, err2 := strconv.Atoi(parts[1])
			if err1 == nil && err2 == nil {
				current.Lines = append(current.Lines, coverage.LineCoverage{LineNumber: n, ExecutionCount: count})
			}
		case "FN":
			// FN:line,name or FN:start,end,name
			parts := strings.Split(value, ",")
			if len(parts) < 2 {
				continue
			}
			n, err := strconv.Atoi(parts[0])
			if err != nil {
				continue
			}
			name := parts[len(parts)-1]
			if _, seen := fnLines[name]; !seen {
				fnOrder = append(fnOrder, name)
			}
			fnLines[name] = n
		case "FNDA":
			// FNDA:hits,name
			hits, name, ok := strings.Cut(value, ",")
			if !ok {
				continue
			}
			count, err := strconv.Atoi(hits)
			if err != nil {
				continue
			}
			if _, seen := fnLines[name]; !seen {
				fnOrder = append(fnOrder, name)
				fnLines[name] = 0
			}
			fnHits[name] = count
		case "BRDA":
			// BRDA:line,block,branch,taken ("-" when the block never ran)
			parts := strings.Split(value, ",")
			if len(parts) < 4 {
				continue
			}
			n, err1 := strconv.Atoi(parts[0])
			block, err2 := strconv.Atoi(parts[1])
			branch, err3 := strconv.Atoi(parts[2])
			if err1 != nil || err2 != nil || err3 != nil {
				continue
			}
			taken := 0
			if parts[3] != "-" {
				if t, err := strconv.Atoi(parts[3]); err == nil && t > 0 {
					taken = 1
				}
			}
			current.Branches = append(current.Branches, coverage.BranchCoverage{
				LineNumber: n,
				BranchID:   block*1000 + branch,
				TakenCount: taken,
				TotalCount: 1,
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read lcov data: %w", err)
	}
	flush()
	return report, nil
}
