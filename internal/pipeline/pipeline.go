// Package pipeline sequences the workspace setup: preparing the
// decompilation workspace, decompiling and merging both sides, applying the
// loader's patches and regenerating names and digests.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"fmlsetup/internal/config"
	"fmlsetup/internal/fetch"
	"fmlsetup/internal/lock"
	"fmlsetup/internal/logging"
	"fmlsetup/internal/patch"
	"fmlsetup/internal/sourcetree"
	"fmlsetup/internal/toolchain"
)

var (
	// ErrMissingPrerequisite indicates a required input file or directory is absent.
	ErrMissingPrerequisite = errors.New("missing prerequisite")

	// ErrStructural indicates a phase did not produce the layout the next phase needs.
	ErrStructural = errors.New("unexpected workspace layout")

	// ErrSourceExists indicates decompiled sources survived the workspace cleanup.
	ErrSourceExists = errors.New("decompiled sources already exist")
)

// PatchToolFactory builds the patch tool for a strip level.
type PatchToolFactory func(strip int) patch.Tool

// Pipeline runs the setup phases against one loader checkout and one
// decompilation workspace.
type Pipeline struct {
	cfg      *config.Config
	versions *config.Versions

	fetcher   *fetch.Fetcher
	tools     toolchain.Toolchain
	patchTool PatchToolFactory
	merger    *sourcetree.Merger

	runID string
	log   *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithToolchain replaces the workspace toolchain.
func WithToolchain(tc toolchain.Toolchain) Option {
	return func(p *Pipeline) {
		p.tools = tc
	}
}

// WithFetcher replaces the downloader.
func WithFetcher(f *fetch.Fetcher) Option {
	return func(p *Pipeline) {
		p.fetcher = f
	}
}

// WithPatchTool replaces the external patch program.
func WithPatchTool(factory PatchToolFactory) Option {
	return func(p *Pipeline) {
		p.patchTool = factory
	}
}

// New creates a pipeline for a resolved configuration. The versions file is
// optional at this point; phases that need it report ErrMissingPrerequisite.
func New(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	versions, err := config.LoadVersions(cfg.VersionsPath())
	if err != nil && !errors.Is(err, config.ErrMissingVersions) {
		return nil, err
	}

	runID := uuid.NewString()
	p := &Pipeline{
		cfg:      cfg,
		versions: versions,
		fetcher: fetch.New(
			fetch.WithUserAgent(cfg.Download.UserAgent),
			fetch.WithTimeout(cfg.Download.Timeout),
			fetch.WithRetry(retryConfig(cfg.Download.Retries)),
		),
		merger: &sourcetree.Merger{AllowList: cfg.Merge.AllowList},
		runID:  runID,
		log:    logging.With("run", runID),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.tools == nil {
		p.tools = p.defaultToolchain()
	}
	if p.patchTool == nil {
		p.patchTool = func(strip int) patch.Tool {
			return patch.NewCommandTool(cfg.Patch.Command, cfg.Paths.MCPDir, strip)
		}
	}
	return p, nil
}

func retryConfig(retries int) fetch.RetryConfig {
	rc := fetch.DefaultRetryConfig()
	rc.MaxRetries = retries
	return rc
}

func (p *Pipeline) defaultToolchain() *toolchain.MCP {
	layout := fetch.NewGameLayout(p.cfg.Paths.MCPDir)
	jars := map[toolchain.Side]toolchain.Jar{
		toolchain.Client: {Path: layout.ClientPath()},
		toolchain.Server: {Path: layout.ServerPath()},
	}
	if p.versions != nil {
		if release, err := p.versions.Release(p.cfg.Minecraft.Version); err == nil {
			jars[toolchain.Client] = toolchain.Jar{Path: layout.ClientPath(), MD5: release.ClientMD5}
			jars[toolchain.Server] = toolchain.Jar{Path: layout.ServerPath(), MD5: release.ServerMD5}
		}
	}

	return &toolchain.MCP{
		MCPDir:       p.cfg.Paths.MCPDir,
		FMLDir:       p.cfg.Paths.FMLDir,
		Python:       p.cfg.Toolchain.Python,
		Java:         p.cfg.Toolchain.Java,
		Javac:        p.cfg.Toolchain.Javac,
		Jars:         jars,
		ForceCleanup: p.cfg.Toolchain.ForceCleanup,
		Runner:       &toolchain.Runner{Echo: true},
	}
}

// RunID identifies this pipeline's log records.
func (p *Pipeline) RunID() string { return p.runID }

// patchEngine returns an engine for the loader's patch trees.
func (p *Pipeline) patchEngine() *patch.Engine {
	return &patch.Engine{
		Tool:    p.patchTool(p.cfg.Patch.Strip),
		Mode:    patch.Mode(p.cfg.Patch.Mode),
		TempDir: p.cfg.Paths.FMLDir,
		Find:    p.cfg.Patch.Find,
		Replace: p.cfg.Patch.Replace,
	}
}

func (p *Pipeline) fmlPath(elem ...string) string {
	return filepath.Join(append([]string{p.cfg.Paths.FMLDir}, elem...)...)
}

func (p *Pipeline) mcpPath(elem ...string) string {
	return filepath.Join(append([]string{p.cfg.Paths.MCPDir}, elem...)...)
}

func (p *Pipeline) srcDir() string { return p.mcpPath("src") }

// Summary reports what a full run did.
type Summary struct {
	RunID     string
	Decompile *DecompileResult
	Patches   *patch.Report
}

// Run executes every phase in order while holding the workspace lock.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	ws, err := lock.Acquire(p.cfg.Paths.MCPDir)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := ws.Release(); err != nil {
			p.log.Warn("failed to release workspace lock", "error", err)
		}
	}()

	p.log.Info("starting setup", "fml_dir", p.cfg.Paths.FMLDir, "mcp_dir", p.cfg.Paths.MCPDir)
	summary := &Summary{RunID: p.runID}

	if err := p.SetupMCP(ctx, false); err != nil {
		return summary, fmt.Errorf("setup workspace: %w", err)
	}

	result, err := p.Decompile(ctx)
	summary.Decompile = result
	if err != nil {
		return summary, fmt.Errorf("decompile: %w", err)
	}

	report, err := p.ApplyPatches(ctx, true)
	summary.Patches = report
	if err != nil {
		return summary, fmt.Errorf("apply patches: %w", err)
	}

	if err := p.Finish(ctx); err != nil {
		return summary, fmt.Errorf("finish: %w", err)
	}

	p.log.Info("setup complete")
	return summary, nil
}
