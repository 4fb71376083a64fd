// Package toolchain drives the external decompilation workspace scripts and
// the Java build tools through explicit subprocess invocations.
package toolchain

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"fmlsetup/internal/logging"
)

// ErrToolFailed is returned when a subprocess exits non-zero.
var ErrToolFailed = errors.New("tool invocation failed")

// Result captures a finished subprocess.
type Result struct {
	Command  string
	ExitCode int
	Output   string
	Elapsed  time.Duration
}

// Runner executes blocking subprocesses with combined output capture.
type Runner struct {
	// Echo logs every output line at info level; otherwise output is only
	// logged when the command fails.
	Echo bool
	// Stdin is connected to the child when set, for interactive prompts.
	// Output is then also streamed to Live as it is produced.
	Stdin io.Reader
	// Live receives streamed output of interactive runs; nil means os.Stdout.
	Live io.Writer
	// Env is appended to the inherited environment.
	Env []string
}

// Run executes name with args in dir and waits for it to exit.
func (r *Runner) Run(ctx context.Context, dir, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdin = r.Stdin
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}

	var out bytes.Buffer
	var sink io.Writer = &out
	interactive := r.Stdin != nil
	if interactive {
		live := r.Live
		if live == nil {
			live = os.Stdout
		}
		sink = io.MultiWriter(&out, live)
	}
	cmd.Stdout = sink
	cmd.Stderr = sink

	res := Result{Command: commandLine(name, args)}
	logging.Debug("running tool", "command", res.Command, "dir", dir)

	start := time.Now()
	err := cmd.Run()
	res.Elapsed = time.Since(start)
	res.Output = out.String()

	if err == nil {
		if r.Echo && !interactive {
			logLines(res.Output)
		}
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
	} else {
		res.ExitCode = -1
	}

	if !interactive {
		logLines(res.Output)
	}
	if ctx.Err() != nil {
		return res, fmt.Errorf("%s: %w", res.Command, ctx.Err())
	}
	return res, fmt.Errorf("%w: %s (exit %d): %v", ErrToolFailed, res.Command, res.ExitCode, err)
}

func logLines(output string) {
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		if line := strings.TrimRight(sc.Text(), "\r"); line != "" {
			logging.Info(line)
		}
	}
}

func commandLine(name string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, name)
	for _, a := range args {
		if strings.ContainsAny(a, " \t") {
			a = fmt.Sprintf("%q", a)
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}
