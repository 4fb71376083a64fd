package main

import (
	"fmt"
	"os"
	"strings"

	"fmlsetup/internal/checksum"
	"fmlsetup/internal/pipeline"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorSuccess = lipgloss.Color("#059669")
	colorWarning = lipgloss.Color("#D97706")
	colorError   = lipgloss.Color("#DC2626")
	colorMuted   = lipgloss.Color("#9CA3AF")
	colorPrimary = lipgloss.Color("#A78BFA")

	titleStyle   = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(colorMuted).Width(22)
	successStyle = lipgloss.NewStyle().Foreground(colorSuccess)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(colorMuted)
)

func printDone(msg string) {
	fmt.Println(successStyle.Render("✓ " + msg))
}

func printError(err error) {
	fmt.Fprintln(os.Stderr, errorStyle.Render("✗ "+err.Error()))
}

func row(label, value string) string {
	return labelStyle.Render(label) + value
}

// renderSummary formats whatever parts of summary are set.
func renderSummary(summary *pipeline.Summary) string {
	if summary == nil {
		return ""
	}

	var lines []string
	lines = append(lines, titleStyle.Render("fmlsetup"), row("run", dimStyle.Render(summary.RunID)))

	if d := summary.Decompile; d != nil {
		if d.MetaInfStripped > 0 {
			lines = append(lines, row("META-INF stripped", fmt.Sprint(d.MetaInfStripped)))
		}
		if d.CleanupFixes > 0 {
			lines = append(lines, row("source fixes", fmt.Sprint(d.CleanupFixes)))
		}
		if m := d.Merge; m != nil {
			lines = append(lines,
				row("shared files", successStyle.Render(fmt.Sprint(m.Shared))),
				row("allow-listed", fmt.Sprint(m.AllowListed)),
				row("divergent", fmt.Sprint(m.Divergent)),
			)
		}
	}

	if r := summary.Patches; r != nil {
		lines = append(lines, row("patches applied", successStyle.Render(fmt.Sprint(len(r.Applied)))))
		failed := fmt.Sprint(len(r.Failed))
		if len(r.Failed) > 0 {
			failed = warningStyle.Render(failed)
		}
		lines = append(lines, row("patches failed", failed))
		for _, res := range r.Failed {
			lines = append(lines, "  "+warningStyle.Render(res.Patch)+dimStyle.Render(fmt.Sprintf(" (exit %d)", res.ExitCode)))
		}
	}

	return strings.Join(lines, "\n")
}

func printSummary(summary *pipeline.Summary) {
	if out := renderSummary(summary); out != "" {
		fmt.Println(out)
	}
}

func renderStatuses(statuses []pipeline.ArtifactStatus) string {
	var lines []string
	for _, s := range statuses {
		status := s.Status.String()
		switch s.Status {
		case checksum.Valid:
			status = successStyle.Render(status)
		case checksum.Corrupt:
			status = errorStyle.Render(status)
		default:
			status = dimStyle.Render(status)
		}
		lines = append(lines, labelStyle.Width(10).Render(status)+s.Path)
	}
	return strings.Join(lines, "\n")
}

func printStatuses(statuses []pipeline.ArtifactStatus) {
	if len(statuses) > 0 {
		fmt.Println(renderStatuses(statuses))
	}
}

// corrupt counts the files present on disk with a wrong digest.
func corrupt(statuses []pipeline.ArtifactStatus) int {
	n := 0
	for _, s := range statuses {
		if s.Status == checksum.Corrupt {
			n++
		}
	}
	return n
}
