package patch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"fmlsetup/internal/logging"
)

// Mode selects how tool failures are reported.
type Mode string

const (
	// ModeBestEffort logs failed patches and carries on.
	ModeBestEffort Mode = "best-effort"
	// ModeStrict attempts every patch, then fails if any did not apply.
	ModeStrict Mode = "strict"
)

// TempFileName is the rewritten patch handed to the tool.
const TempFileName = "temp.patch"

// ErrPatchFailed is returned in strict mode when a patch did not apply.
var ErrPatchFailed = errors.New("patch failed to apply")

// Descriptor identifies one patch application.
type Descriptor struct {
	Patch  string // patch file as found on disk
	Target string // target path named by the patch header
}

// Result is the outcome of one patch application.
type Result struct {
	Descriptor
	ExitCode int
	Output   string
}

// Report collects the results of ApplyAll.
type Report struct {
	Applied []Result
	Failed  []Result
}

// Total returns the number of patches attempted.
func (r *Report) Total() int { return len(r.Applied) + len(r.Failed) }

func (r *Report) add(res Result) {
	if res.ExitCode == 0 {
		r.Applied = append(r.Applied, res)
	} else {
		r.Failed = append(r.Failed, res)
	}
}

// Engine rewrites and applies patches.
type Engine struct {
	Tool    Tool
	Mode    Mode
	TempDir string

	// Find and Replace are forwarded to Rewrite.
	Find    string
	Replace string
}

func (e *Engine) tempPath() string {
	dir := e.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, TempFileName)
}

// ApplyAll applies every *.patch below patchDir, in lexical order, with
// targetDir as the tool's working directory. A patch that cannot be rewritten
// or whose tool cannot be started is reported as failed with exit code -1;
// only cancellation stops the batch early.
func (e *Engine) ApplyAll(ctx context.Context, patchDir, targetDir string) (*Report, error) {
	logging.Info("applying patches", "dir", patchDir, "target", targetDir)

	if info, err := os.Stat(patchDir); err != nil || !info.IsDir() {
		logging.Warn("patch directory not found, nothing to apply", "dir", patchDir)
		return &Report{}, nil
	}

	matches, err := doublestar.Glob(os.DirFS(patchDir), "**/*.patch", doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("discover patches in %s: %w", patchDir, err)
	}
	sort.Strings(matches)

	report := &Report{}
	for _, rel := range matches {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, err := e.apply(ctx, filepath.Join(patchDir, filepath.FromSlash(rel)), targetDir)
		if err != nil {
			return report, err
		}
		report.add(res)
	}

	return report, e.check(report)
}

// ApplyFile applies a single patch file.
func (e *Engine) ApplyFile(ctx context.Context, patchFile, targetDir string) (*Report, error) {
	res, err := e.apply(ctx, patchFile, targetDir)
	if err != nil {
		return nil, err
	}
	report := &Report{}
	report.add(res)
	return report, e.check(report)
}

func (e *Engine) apply(ctx context.Context, patchFile, targetDir string) (Result, error) {
	temp := e.tempPath()
	defer os.Remove(temp)

	target, err := RewriteFile(patchFile, temp, RewriteOptions{Find: e.Find, Replace: e.Replace})
	if err != nil {
		logging.Error("failed to rewrite patch", "patch", patchFile, "error", err)
		return Result{Descriptor: Descriptor{Patch: patchFile, Target: NotFound}, ExitCode: -1, Output: err.Error()}, nil
	}

	desc := Descriptor{Patch: patchFile, Target: target}
	code, output, err := e.Tool.Apply(ctx, temp, targetDir)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		// the tool could not run at all; recorded like any other failure
		logging.Error("failed to run patch tool", "patch", patchFile, "target", target, "error", err)
		return Result{Descriptor: desc, ExitCode: -1, Output: err.Error()}, nil
	}

	res := Result{Descriptor: desc, ExitCode: code, Output: output}
	if code != 0 {
		logging.Warn("patch did not apply cleanly", "patch", patchFile, "target", target, "exit", code)
		if output != "" {
			logging.Debug("patch output", "patch", patchFile, "output", output)
		}
	} else {
		logging.Debug("patch applied", "patch", patchFile, "target", target)
	}
	return res, nil
}

func (e *Engine) check(report *Report) error {
	if len(report.Failed) == 0 || e.Mode != ModeStrict {
		return nil
	}
	names := make([]string, 0, len(report.Failed))
	for _, f := range report.Failed {
		names = append(names, f.Patch)
	}
	return fmt.Errorf("%w: %d of %d: %s", ErrPatchFailed, len(report.Failed), report.Total(), strings.Join(names, ", "))
}
