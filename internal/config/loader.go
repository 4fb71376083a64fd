package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from file and environment variables.
// An empty path looks for fmlsetup.yaml in the FML directory; a missing
// default file is not an error, a missing explicit file is.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
	}

	if err := loadFromFile(cfg, path); err != nil {
		if explicit || !os.IsNotExist(err) {
			return nil, err
		}
	}

	loadFromEnv(cfg)

	return cfg, nil
}

// defaultConfigPath returns the config path inside the FML directory.
func defaultConfigPath() string {
	dir := os.Getenv("FMLSETUP_FML_DIR")
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, DefaultConfigFile)
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// Expand environment variables in the config file
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables.
func loadFromEnv(cfg *Config) {
	if dir := os.Getenv("FMLSETUP_FML_DIR"); dir != "" {
		cfg.Paths.FMLDir = dir
	}
	if dir := os.Getenv("FMLSETUP_MCP_DIR"); dir != "" {
		cfg.Paths.MCPDir = dir
	}
	if level := os.Getenv("FMLSETUP_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if mode := os.Getenv("FMLSETUP_PATCH_MODE"); mode != "" {
		cfg.Patch.Mode = strings.ToLower(mode)
	}
	if version := os.Getenv("FMLSETUP_MC_VERSION"); version != "" {
		cfg.Minecraft.Version = version
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Paths.FMLDir == "" {
		return ErrMissingFMLDir
	}
	if c.Paths.MCPDir == "" {
		return ErrMissingMCPDir
	}
	switch c.Patch.Mode {
	case PatchModeBestEffort, PatchModeStrict:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPatchMode, c.Patch.Mode)
	}
	if c.Patch.Strip < 0 {
		return ErrInvalidStrip
	}
	if c.Download.Retries < 0 || c.Download.Retries > MaxDownloadRetries {
		return ErrInvalidRetries
	}
	if c.Libraries.BaseURL == "" && len(c.Libraries.Names) > 0 {
		return ErrMissingLibraryURL
	}
	return nil
}

// Error types for configuration validation.
type ConfigError string

func (e ConfigError) Error() string {
	return string(e)
}

const (
	ErrMissingFMLDir     ConfigError = "missing paths.fml_dir"
	ErrMissingMCPDir     ConfigError = "missing paths.mcp_dir"
	ErrInvalidPatchMode  ConfigError = "patch.mode must be best-effort or strict"
	ErrInvalidStrip      ConfigError = "patch.strip must not be negative"
	ErrInvalidRetries    ConfigError = "download.retries must be between 0 and 10"
	ErrMissingLibraryURL ConfigError = "libraries.base_url is required when libraries are listed"
)

// Save writes the configuration as YAML to path.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		// If rename fails, try direct write (Windows filesystem)
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return nil
}
