package pipeline

import (
	"context"
	"fmt"

	"fmlsetup/internal/checksum"
	"fmlsetup/internal/fetch"
	"fmlsetup/internal/sourcetree"
)

// Fetch downloads the build libraries into <mcp>/lib and the game files of
// the configured release into the workspace jars.
func (p *Pipeline) Fetch(ctx context.Context) error {
	if err := p.fetcher.FetchLibraries(ctx, p.cfg.Libraries.BaseURL, p.mcpPath("lib"), p.cfg.Libraries.Names); err != nil {
		return err
	}
	if p.versions == nil {
		return fmt.Errorf("%w: versions file %s", ErrMissingPrerequisite, p.cfg.VersionsPath())
	}
	return p.fetcher.FetchGame(ctx, p.versions, p.cfg.Minecraft.Version, p.cfg.Paths.MCPDir)
}

// ArtifactStatus is the verification state of one game jar.
type ArtifactStatus struct {
	Path   string
	Status checksum.Status
}

// VerifyGame checks the live game jars and their backups against the
// release digests without modifying anything.
func (p *Pipeline) VerifyGame() ([]ArtifactStatus, error) {
	if p.versions == nil {
		return nil, fmt.Errorf("%w: versions file %s", ErrMissingPrerequisite, p.cfg.VersionsPath())
	}
	release, err := p.versions.Release(p.cfg.Minecraft.Version)
	if err != nil {
		return nil, err
	}

	layout := fetch.NewGameLayout(p.cfg.Paths.MCPDir)
	var statuses []ArtifactStatus
	for _, jar := range []struct {
		path string
		md5  string
	}{
		{layout.ClientPath(), release.ClientMD5},
		{layout.ServerPath(), release.ServerMD5},
	} {
		for _, path := range []string{jar.path, checksum.BackupPath(jar.path)} {
			status, err := checksum.Verify(path, jar.md5)
			if err != nil {
				return statuses, err
			}
			statuses = append(statuses, ArtifactStatus{Path: path, Status: status})
		}
	}
	return statuses, nil
}

// MergeSources merges src/minecraft and src/minecraft_server into src/common.
func (p *Pipeline) MergeSources() (*sourcetree.MergeStats, error) {
	return p.merger.Merge(
		p.mcpPath("src", "minecraft"),
		p.mcpPath("src", "minecraft_server"),
		p.mcpPath("src", "common"),
	)
}
