package pipeline

import (
	"context"
	"fmt"

	"fmlsetup/internal/archive"
	"fmlsetup/internal/checksum"
	"fmlsetup/internal/fetch"
	"fmlsetup/internal/fileutil"
	"fmlsetup/internal/sourcetree"
	"fmlsetup/internal/toolchain"
)

// DecompileResult reports the work done by Decompile.
type DecompileResult struct {
	MetaInfStripped int
	CleanupFixes    int
	Merge           *sourcetree.MergeStats
}

// Decompile fetches the game, transforms and decompiles both jars, tidies the
// output and merges the two source trees into src/common. Both sides are
// then recompiled and their class digests regenerated.
func (p *Pipeline) Decompile(ctx context.Context) (*DecompileResult, error) {
	src := p.srcDir()

	if fileutil.IsDir(src) {
		p.log.Info("decompiled sources found, running workspace cleanup")
		if err := p.tools.Cleanup(ctx); err != nil {
			p.log.Warn("workspace cleanup failed", "error", err)
		}
	}
	if fileutil.IsDir(src) {
		p.log.Error("back up your modified files and confirm the cleanup prompt")
		return nil, fmt.Errorf("%w: %s", ErrSourceExists, src)
	}

	if err := p.Fetch(ctx); err != nil {
		return nil, err
	}

	for _, side := range toolchain.Sides {
		if err := p.tools.CheckArtifacts(ctx, side); err != nil {
			return nil, fmt.Errorf("check %s jar: %w", side, err)
		}
		if err := p.tools.ApplyTransform(ctx, side); err != nil {
			return nil, fmt.Errorf("transform %s jar: %w", side, err)
		}
	}

	if err := p.tools.Decompile(ctx, toolchain.SetupDecompileOptions); err != nil {
		return nil, err
	}

	result := &DecompileResult{}
	stripped, err := p.stripClientMetaInf()
	if err != nil {
		return result, err
	}
	result.MetaInfStripped = stripped

	if !fileutil.IsDir(src) {
		return result, fmt.Errorf("%w: decompile produced no source folder at %s", ErrStructural, src)
	}

	fixes, err := sourcetree.CleanupSource(src)
	if err != nil {
		return result, err
	}
	result.CleanupFixes = fixes

	stats, err := p.MergeSources()
	if err != nil {
		return result, err
	}
	result.Merge = stats

	for _, side := range toolchain.Sides {
		if err := p.tools.Recompile(ctx, side); err != nil {
			return result, err
		}
		if err := p.tools.GatherMD5s(ctx, side); err != nil {
			return result, err
		}
	}
	return result, nil
}

// stripClientMetaInf rebuilds the live client jar from its pristine backup
// without signature entries.
func (p *Pipeline) stripClientMetaInf() (int, error) {
	client := fetch.NewGameLayout(p.cfg.Paths.MCPDir).ClientPath()
	if !fileutil.IsFile(client) {
		return 0, nil
	}
	backup := checksum.BackupPath(client)
	if !fileutil.IsFile(backup) {
		return 0, fmt.Errorf("%w: %s", ErrMissingPrerequisite, backup)
	}

	p.log.Info("stripping META-INF from client jar")
	n, err := archive.StripMetaInf(backup, client)
	if err != nil {
		return 0, err
	}
	p.log.Debug("skipped signature entries", "count", n)
	return n, nil
}
