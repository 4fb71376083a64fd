package patch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// Template placeholders understood by CommandTool.
const (
	PatchPlaceholder = "{patch}"
	StripPlaceholder = "{strip}"
)

// NoStrip drops the strip argument so the tool uses its own default.
const NoStrip = -1

// Tool applies one patch file inside dir.
type Tool interface {
	Apply(ctx context.Context, patchFile, dir string) (exitCode int, output string, err error)
}

// CommandTool runs an external program rendered from an argument template.
type CommandTool struct {
	Name  string
	Args  []string
	Strip int
}

// DefaultCommand returns the platform default patch command template.
func DefaultCommand(mcpDir string) []string {
	if runtime.GOOS == "windows" {
		applydiff := filepath.Join(mcpDir, "runtime", "bin", "applydiff.exe")
		return []string{applydiff, "-uf", StripPlaceholder, "-i", PatchPlaceholder}
	}
	return []string{"patch", StripPlaceholder, "-i", PatchPlaceholder}
}

// NewCommandTool builds a tool from a template whose first element is the
// program. An empty template selects DefaultCommand.
func NewCommandTool(template []string, mcpDir string, strip int) *CommandTool {
	if len(template) == 0 {
		template = DefaultCommand(mcpDir)
	}
	return &CommandTool{
		Name:  template[0],
		Args:  append([]string(nil), template[1:]...),
		Strip: strip,
	}
}

// WithStrip returns a copy of the tool using a different strip level.
func (t *CommandTool) WithStrip(strip int) *CommandTool {
	c := *t
	c.Args = append([]string(nil), t.Args...)
	c.Strip = strip
	return &c
}

// Render substitutes the placeholders for patchFile.
func (t *CommandTool) Render(patchFile string) []string {
	args := make([]string, 0, len(t.Args))
	for _, a := range t.Args {
		if a == StripPlaceholder {
			if t.Strip >= 0 {
				args = append(args, fmt.Sprintf("-p%d", t.Strip))
			}
			continue
		}
		a = strings.ReplaceAll(a, PatchPlaceholder, patchFile)
		args = append(args, a)
	}
	return args
}

// Apply runs the tool with dir as working directory. A non-zero exit is
// reported through exitCode with a nil error; err is set only when the tool
// could not be run at all.
func (t *CommandTool) Apply(ctx context.Context, patchFile, dir string) (int, string, error) {
	cmd := exec.CommandContext(ctx, t.Name, t.Render(patchFile)...)
	cmd.Dir = dir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0, out.String(), nil
	case errors.As(err, &exitErr):
		return exitErr.ExitCode(), out.String(), nil
	default:
		return -1, out.String(), fmt.Errorf("run %s: %w", t.Name, err)
	}
}
