package main

import (
	"context"
	"fmt"

	"fmlsetup/internal/checksum"
	"fmlsetup/internal/config"
	"fmlsetup/internal/lock"
	"fmlsetup/internal/logging"
	"fmlsetup/internal/pipeline"

	"github.com/spf13/cobra"
)

// locked runs fn while holding the workspace lock of cfg's MCP directory.
func locked(cfg *config.Config, fn func() error) error {
	ws, err := lock.Acquire(cfg.Paths.MCPDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := ws.Release(); err != nil {
			logging.Warn("failed to release workspace lock", "path", ws.Path(), "error", err)
		}
	}()
	return fn()
}

// phase builds a command that runs one pipeline phase under the workspace lock.
func phase(use, short string, run func(ctx context.Context, p *pipeline.Pipeline) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, cfg, err := newPipeline()
			if err != nil {
				return err
			}
			return locked(cfg, func() error {
				return run(cmd.Context(), p)
			})
		},
	}
}

func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Run every setup phase in order",
		Args:  cobra.NoArgs,
		RunE:  runSetup,
	}
}

func newSetupMCPCmd() *cobra.Command {
	var genConf bool

	cmd := &cobra.Command{
		Use:   "setup-mcp",
		Short: "Patch the workspace commands and install the loader conf",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, cfg, err := newPipeline()
			if err != nil {
				return err
			}
			err = locked(cfg, func() error {
				return p.SetupMCP(cmd.Context(), genConf)
			})
			if err != nil {
				return err
			}
			printDone("workspace prepared")
			return nil
		},
	}

	cmd.Flags().BoolVar(&genConf, "gen-conf", false, "regenerate the loader conf from the workspace conf first")
	return cmd
}

func newGenConfCmd() *cobra.Command {
	return phase("gen-conf", "Regenerate joined.srg and the shared name tables", func(ctx context.Context, p *pipeline.Pipeline) error {
		if err := p.GenerateConf(ctx); err != nil {
			return err
		}
		printDone("loader conf regenerated")
		return nil
	})
}

func newFetchCmd() *cobra.Command {
	return phase("fetch", "Download build libraries and game files", func(ctx context.Context, p *pipeline.Pipeline) error {
		if err := p.Fetch(ctx); err != nil {
			return err
		}
		printDone("downloads complete")
		return nil
	})
}

func newDecompileCmd() *cobra.Command {
	return phase("decompile", "Decompile both sides and merge the shared sources", func(ctx context.Context, p *pipeline.Pipeline) error {
		result, err := p.Decompile(ctx)
		printSummary(&pipeline.Summary{RunID: p.RunID(), Decompile: result})
		return err
	})
}

func newMergeSourcesCmd() *cobra.Command {
	return phase("merge-sources", "Move files shared by client and server into src/common", func(ctx context.Context, p *pipeline.Pipeline) error {
		stats, err := p.MergeSources()
		if err != nil {
			return err
		}
		printSummary(&pipeline.Summary{RunID: p.RunID(), Decompile: &pipeline.DecompileResult{Merge: stats}})
		return nil
	})
}

func newPatchCmd() *cobra.Command {
	var (
		strict bool
		noCopy bool
	)

	cmd := &cobra.Command{
		Use:   "patch",
		Short: "Apply the loader patches and copy its sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, cfg, err := newPipeline(func(cfg *config.Config) {
				if strict {
					cfg.Patch.Mode = config.PatchModeStrict
				}
			})
			if err != nil {
				return err
			}

			return locked(cfg, func() error {
				report, err := p.ApplyPatches(cmd.Context(), !noCopy)
				printSummary(&pipeline.Summary{RunID: p.RunID(), Patches: report})
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "fail when any patch does not apply")
	cmd.Flags().BoolVar(&noCopy, "no-copy", false, "skip copying the loader's client and common sources")
	return cmd
}

func newFinishCmd() *cobra.Command {
	return phase("finish", "Regenerate readable names and class digests", func(ctx context.Context, p *pipeline.Pipeline) error {
		if err := p.Finish(ctx); err != nil {
			return err
		}
		printDone("names and digests updated")
		return nil
	})
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the game jars and their backups against the release digests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, _, err := newPipeline()
			if err != nil {
				return err
			}

			statuses, err := p.VerifyGame()
			printStatuses(statuses)
			if err != nil {
				return err
			}
			if n := corrupt(statuses); n > 0 {
				return fmt.Errorf("%w: %d game file(s)", checksum.ErrChecksumMismatch, n)
			}
			return nil
		},
	}
}
