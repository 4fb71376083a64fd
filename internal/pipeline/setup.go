package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"fmlsetup/internal/fileutil"
	"fmlsetup/internal/names"
	"fmlsetup/internal/patch"
	"fmlsetup/internal/srg"
)

// confCopies are taken verbatim from the workspace conf.
var confCopies = []string{"astyle.cfg", "version.cfg", "newids.csv"}

// SetupMCP prepares the decompilation workspace: it patches the workspace's
// command module from a pristine backup, optionally regenerates the loader's
// conf from the workspace conf, installs the loader conf and the IDE
// workspace.
func (p *Pipeline) SetupMCP(ctx context.Context, genConf bool) error {
	p.log.Info("setting up workspace")

	runtimeDir := p.mcpPath("runtime")
	commands := filepath.Join(runtimeDir, "commands.py")
	backup := filepath.Join(runtimeDir, "commands.py.bck")

	if fileutil.IsFile(backup) {
		p.log.Info("restoring commands.py backup")
		if err := fileutil.CopyFile(backup, commands); err != nil {
			return err
		}
	} else {
		if !fileutil.IsFile(commands) {
			return fmt.Errorf("%w: %s", ErrMissingPrerequisite, commands)
		}
		p.log.Info("backing up commands.py")
		if err := fileutil.CopyFile(commands, backup); err != nil {
			return err
		}
	}

	patchFile := p.fmlPath("commands.patch")
	if !fileutil.IsFile(patchFile) {
		return fmt.Errorf("%w: commands patch %s", ErrMissingPrerequisite, patchFile)
	}
	engine := &patch.Engine{
		Tool:    p.patchTool(patch.NoStrip),
		Mode:    patch.ModeStrict,
		TempDir: p.cfg.Paths.FMLDir,
	}
	if _, err := engine.ApplyFile(ctx, patchFile, runtimeDir); err != nil {
		return err
	}

	mcpConf := p.mcpPath("conf")
	mcpConfBak := p.mcpPath("conf.bak")
	fmlConf := p.fmlPath("conf")

	if genConf {
		if fileutil.IsDir(mcpConfBak) {
			p.log.Info("reverting old conf backup")
			if err := fileutil.RemoveIfExists(mcpConf); err != nil {
				return err
			}
			if err := os.Rename(mcpConfBak, mcpConf); err != nil {
				return err
			}
		}
		if err := p.GenerateConf(ctx); err != nil {
			return err
		}
		p.log.Info("backing up workspace conf")
		if err := os.Rename(mcpConf, mcpConfBak); err != nil {
			return err
		}
	} else if err := fileutil.RemoveIfExists(mcpConf); err != nil {
		return err
	}

	p.log.Info("copying loader conf")
	if !fileutil.IsDir(fmlConf) {
		return fmt.Errorf("%w: %s", ErrMissingPrerequisite, fmlConf)
	}
	if err := fileutil.CopyTree(ctx, fmlConf, mcpConf); err != nil {
		return err
	}

	if fileutil.IsDir(p.fmlPath("eclipse", "Clean-Client")) {
		return nil
	}
	p.log.Info("fixing workspace IDE project")
	mcpEclipse := p.mcpPath("eclipse")
	if err := fileutil.RemoveIfExists(mcpEclipse); err != nil {
		return err
	}
	if !fileutil.IsDir(p.fmlPath("eclipse")) {
		return fmt.Errorf("%w: %s", ErrMissingPrerequisite, p.fmlPath("eclipse"))
	}
	return fileutil.CopyTree(ctx, p.fmlPath("eclipse"), mcpEclipse)
}

// GenerateConf rebuilds the loader's conf directory from the workspace conf:
// verbatim copies, the joined symbol table and the shared name tables.
func (p *Pipeline) GenerateConf(ctx context.Context) error {
	mcpConf := p.mcpPath("conf")
	fmlConf := p.fmlPath("conf")

	for _, name := range confCopies {
		src := filepath.Join(mcpConf, name)
		dst := filepath.Join(fmlConf, name)
		if !fileutil.IsFile(src) {
			return fmt.Errorf("%w: %s", ErrMissingPrerequisite, src)
		}
		p.log.Info("grabbing conf file", "path", src)
		if err := fileutil.CopyFile(src, dst); err != nil {
			return err
		}
		if err := fileutil.NormalizeLineEndings(dst); err != nil {
			return err
		}
	}

	result, err := srg.GenerateJoined(
		filepath.Join(mcpConf, "client.srg"),
		filepath.Join(mcpConf, "server.srg"),
		filepath.Join(fmlConf, "joined.srg"),
	)
	if err != nil {
		return prerequisite(err, srg.ErrMissingInput)
	}

	exc, err := srg.ReadExceptions(filepath.Join(mcpConf, "joined.exc"))
	if err != nil {
		return prerequisite(err, srg.ErrMissingInput)
	}
	shared := srg.SharedNames(result.Shared, exc)
	p.log.Info("common generated names gathered", "count", shared.Len())

	for _, table := range []struct {
		file string
		key  string
	}{
		{"fields.csv", names.DefaultKey},
		{"methods.csv", names.DefaultKey},
		{"params.csv", names.ParamKey},
	} {
		if err := ctx.Err(); err != nil {
			return err
		}
		src := filepath.Join(mcpConf, table.file)
		if !fileutil.IsFile(src) {
			return fmt.Errorf("%w: %s", ErrMissingPrerequisite, src)
		}
		if _, err := names.MergeCSVFile(shared, src, filepath.Join(fmlConf, table.file), table.key); err != nil {
			return err
		}
	}
	return nil
}

// prerequisite tags err with ErrMissingPrerequisite when it matches missing.
func prerequisite(err, missing error) error {
	if errors.Is(err, missing) {
		return fmt.Errorf("%w: %w", ErrMissingPrerequisite, err)
	}
	return err
}
