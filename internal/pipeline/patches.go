package pipeline

import (
	"context"

	"fmlsetup/internal/fileutil"
	"fmlsetup/internal/patch"
)

// ApplyPatches applies the loader's patch trees to the decompiled sources
// and, when copyFiles is set, overlays the loader's own sources.
func (p *Pipeline) ApplyPatches(ctx context.Context, copyFiles bool) (*patch.Report, error) {
	src := p.srcDir()
	engine := p.patchEngine()
	total := &patch.Report{}

	// side annotation classes used only during decompilation
	cpw := p.mcpPath("src", "common", "cpw")
	p.log.Info("deleting common/cpw", "path", cpw)
	if err := fileutil.RemoveIfExists(cpw); err != nil {
		return total, err
	}

	p.log.Info("applying loader patches")
	if err := p.applyTree(ctx, engine, p.fmlPath("patches", "minecraft"), src, total); err != nil {
		return total, err
	}
	if copyFiles {
		if err := p.overlay(ctx, p.fmlPath("client"), p.mcpPath("src", "minecraft")); err != nil {
			return total, err
		}
	}

	if err := fileutil.RemoveIfExists(p.mcpPath("src", "minecraft", "argo")); err != nil {
		return total, err
	}

	if err := p.applyTree(ctx, engine, p.fmlPath("patches", "common"), src, total); err != nil {
		return total, err
	}
	if copyFiles {
		if err := p.overlay(ctx, p.fmlPath("common"), p.mcpPath("src", "common")); err != nil {
			return total, err
		}
	}

	p.log.Info("patching complete", "applied", len(total.Applied), "failed", len(total.Failed))
	return total, nil
}

func (p *Pipeline) applyTree(ctx context.Context, engine *patch.Engine, dir, target string, total *patch.Report) error {
	if !fileutil.IsDir(dir) {
		return nil
	}
	report, err := engine.ApplyAll(ctx, dir, target)
	if report != nil {
		total.Applied = append(total.Applied, report.Applied...)
		total.Failed = append(total.Failed, report.Failed...)
	}
	return err
}

func (p *Pipeline) overlay(ctx context.Context, from, to string) error {
	if !fileutil.IsDir(from) {
		return nil
	}
	p.log.Info("copying sources", "from", from, "to", to)
	return fileutil.CopyTree(ctx, from, to)
}

// Finish regenerates readable names and class digests in the workspace.
func (p *Pipeline) Finish(ctx context.Context) error {
	if err := p.tools.UpdateNames(ctx); err != nil {
		return err
	}
	return p.tools.UpdateMD5(ctx)
}
