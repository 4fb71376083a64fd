package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"fmlsetup/internal/config"
	"fmlsetup/internal/logging"
	"fmlsetup/internal/pipeline"

	"github.com/spf13/cobra"
)

var (
	version   = "0.1.0"
	cfgFile   string
	fmlDir    string
	mcpDir    string
	mcVersion string
	logLevel  string
	logFile   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fmlsetup",
		Short: "Prepare a mod loader development workspace",
		Long: `fmlsetup fetches the game jars and build libraries, decompiles and merges
the client and server sources, applies the loader's patches and regenerates
names and class digests inside an MCP workspace.

Running without a subcommand performs the full setup.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runSetup,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is <fml-dir>/fmlsetup.yaml)")
	rootCmd.PersistentFlags().StringVar(&fmlDir, "fml-dir", "", "mod loader checkout (default is the current directory)")
	rootCmd.PersistentFlags().StringVar(&mcpDir, "mcp-dir", "", "decompilation workspace (default is <fml-dir>/..)")
	rootCmd.PersistentFlags().StringVar(&mcVersion, "mc-version", "", "game version to fetch (default is the versions file's current_ver)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logFile, "log-file", false, "also write JSON logs to <fml-dir>/fmlsetup.log")

	rootCmd.AddCommand(newSetupCmd())
	rootCmd.AddCommand(newSetupMCPCmd())
	rootCmd.AddCommand(newGenConfCmd())
	rootCmd.AddCommand(newFetchCmd())
	rootCmd.AddCommand(newDecompileCmd())
	rootCmd.AddCommand(newMergeSourcesCmd())
	rootCmd.AddCommand(newPatchCmd())
	rootCmd.AddCommand(newFinishCmd())
	rootCmd.AddCommand(newVerifyCmd())

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("fmlsetup version %s\n", version)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logging.Close()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, applies flag overrides and configures
// logging.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" && fmlDir != "" {
		candidate := filepath.Join(fmlDir, config.DefaultConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Override from flags
	if fmlDir != "" {
		cfg.Paths.FMLDir = fmlDir
	}
	if mcpDir != "" {
		cfg.Paths.MCPDir = mcpDir
	}
	if mcVersion != "" {
		cfg.Minecraft.Version = mcVersion
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFile {
		cfg.Logging.File = true
	}
	cfg.Version = version

	if err := cfg.Resolve(); err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level := logging.ParseLevel(cfg.Logging.Level)
	logging.Configure(level, logging.ParseFormat(cfg.Logging.Format), os.Stderr)
	if cfg.Logging.File {
		if err := logging.EnableFileLogging(cfg.Paths.FMLDir, level); err != nil {
			logging.Warn("file logging disabled", "error", err)
		}
	}
	return cfg, nil
}

// newPipeline loads the configuration, applies command overrides and builds
// a pipeline from it.
func newPipeline(overrides ...func(*config.Config)) (*pipeline.Pipeline, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	for _, override := range overrides {
		override(cfg)
	}
	p, err := pipeline.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	return p, cfg, nil
}

func runSetup(cmd *cobra.Command, args []string) error {
	p, _, err := newPipeline()
	if err != nil {
		return err
	}

	summary, err := p.Run(cmd.Context())
	printSummary(summary)
	return err
}
