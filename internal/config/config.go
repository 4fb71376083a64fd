package config

import (
	"path/filepath"
	"time"
)

// Config represents the main application configuration.
type Config struct {
	Paths     PathsConfig     `yaml:"paths"`
	Minecraft MinecraftConfig `yaml:"minecraft"`
	Libraries LibrariesConfig `yaml:"libraries"`
	Download  DownloadConfig  `yaml:"download"`
	Patch     PatchConfig     `yaml:"patch"`
	Merge     MergeConfig     `yaml:"merge"`
	Toolchain ToolchainConfig `yaml:"toolchain"`
	Logging   LoggingConfig   `yaml:"logging"`

	// Runtime version information
	Version string `yaml:"-"`
}

// PathsConfig locates the two workspaces the pipeline operates on.
type PathsConfig struct {
	FMLDir string `yaml:"fml_dir"` // mod loader checkout (patches, conf, sources)
	MCPDir string `yaml:"mcp_dir"` // decompilation workspace
}

// MinecraftConfig selects the game version to fetch.
type MinecraftConfig struct {
	Version      string `yaml:"version"`       // empty means [default] current_ver
	VersionsFile string `yaml:"versions_file"` // relative to fml_dir unless absolute
}

// LibrariesConfig lists the build-time libraries placed in <mcp>/lib.
type LibrariesConfig struct {
	BaseURL string   `yaml:"base_url"`
	Names   []string `yaml:"names"`
}

// DownloadConfig holds HTTP settings for the fetcher.
type DownloadConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
	Retries   int           `yaml:"retries"` // extra attempts after a transient failure
}

// PatchConfig controls the patch engine.
type PatchConfig struct {
	// Mode is "best-effort" (log failures, continue) or "strict" (fail the batch).
	Mode string `yaml:"mode"`
	// Strip is the number of leading path components removed by the patch tool.
	Strip int `yaml:"strip"`
	// Command overrides the patch tool; "{patch}" and "{strip}" are substituted.
	Command []string `yaml:"command,omitempty"`
	// Find and Replace rewrite a path prefix in patch headers.
	Find    string `yaml:"find,omitempty"`
	Replace string `yaml:"replace,omitempty"`
}

// MergeConfig controls the client/server source merge.
type MergeConfig struct {
	// AllowList holds doublestar patterns for files treated as identical
	// even when their bytes differ.
	AllowList []string `yaml:"allow_list"`
}

// ToolchainConfig names the external executables.
type ToolchainConfig struct {
	Python string `yaml:"python"`
	Java   string `yaml:"java"`
	Javac  string `yaml:"javac"`

	// ForceCleanup answers the workspace cleanup prompt with yes.
	ForceCleanup bool `yaml:"force_cleanup"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
	File   bool   `yaml:"file"`   // also write <fml_dir>/fmlsetup.log
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			FMLDir: ".",
			MCPDir: "..",
		},
		Minecraft: MinecraftConfig{
			VersionsFile: DefaultVersionsFile,
		},
		Libraries: LibrariesConfig{
			BaseURL: DefaultLibraryBaseURL,
			Names:   append([]string(nil), DefaultLibraries...),
		},
		Download: DownloadConfig{
			Timeout:   DefaultDownloadTimeout,
			UserAgent: DefaultUserAgent,
			Retries:   DefaultDownloadRetries,
		},
		Patch: PatchConfig{
			Mode:  PatchModeBestEffort,
			Strip: DefaultPatchStrip,
		},
		Merge: MergeConfig{
			AllowList: append([]string(nil), DefaultMergeAllowList...),
		},
		Toolchain: ToolchainConfig{
			Python: DefaultPython,
			Java:   "java",
			Javac:  "javac",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// VersionsPath returns the absolute path of the versions file.
func (c *Config) VersionsPath() string {
	if filepath.IsAbs(c.Minecraft.VersionsFile) {
		return c.Minecraft.VersionsFile
	}
	return filepath.Join(c.Paths.FMLDir, c.Minecraft.VersionsFile)
}

// Resolve turns the workspace paths into absolute, cleaned paths.
func (c *Config) Resolve() error {
	fml, err := filepath.Abs(c.Paths.FMLDir)
	if err != nil {
		return err
	}
	mcp := c.Paths.MCPDir
	if !filepath.IsAbs(mcp) {
		mcp = filepath.Join(fml, mcp)
	}
	c.Paths.FMLDir = filepath.Clean(fml)
	c.Paths.MCPDir = filepath.Clean(mcp)
	return nil
}
