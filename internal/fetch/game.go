package fetch

import (
	"context"
	"fmt"
	"path/filepath"

	"fmlsetup/internal/checksum"
	"fmlsetup/internal/config"
	"fmlsetup/internal/logging"
)

// Workspace-relative locations of the game jars.
const (
	ClientJar = "minecraft.jar"
	ServerJar = "minecraft_server.jar"
)

// GameLayout resolves where FetchGame places its files inside an MCP workspace.
type GameLayout struct {
	BinDir     string // jars/bin: client jar and runtime libraries
	NativesDir string // jars/bin/natives
	ServerDir  string // jars: server jar
}

// NewGameLayout returns the layout for mcpDir.
func NewGameLayout(mcpDir string) GameLayout {
	bin := filepath.Join(mcpDir, "jars", "bin")
	return GameLayout{
		BinDir:     bin,
		NativesDir: filepath.Join(bin, "natives"),
		ServerDir:  filepath.Join(mcpDir, "jars"),
	}
}

// ClientPath returns the live client jar path.
func (l GameLayout) ClientPath() string { return filepath.Join(l.BinDir, ClientJar) }

// ServerPath returns the live server jar path.
func (l GameLayout) ServerPath() string { return filepath.Join(l.ServerDir, ServerJar) }

// FetchGame downloads the runtime libraries, natives and both game jars of a
// release. Invalid local jars are dropped and pristine backups are restored
// before downloading; fresh jars are snapshotted afterwards. Every item is
// attempted before ErrBatchFailed is returned.
func (f *Fetcher) FetchGame(ctx context.Context, versions *config.Versions, version, mcpDir string) error {
	release, err := versions.Release(version)
	if err != nil {
		return err
	}

	layout := NewGameLayout(mcpDir)
	log := logging.With("version", release.Version)
	failed := false

	for _, lib := range versions.Libraries {
		if !f.Fetch(ctx, versions.BaseURL+lib, filepath.Join(layout.BinDir, lib), "") {
			failed = true
		}
	}
	for _, native := range versions.Natives {
		if !f.FetchNative(ctx, versions.BaseURL, layout.NativesDir, native) {
			failed = true
		}
	}

	if err := swapGameJars(layout, release); err != nil {
		return err
	}

	if !f.Fetch(ctx, release.ClientURL, layout.ClientPath(), release.ClientMD5) {
		failed = true
	}
	if !f.Fetch(ctx, release.ServerURL, layout.ServerPath(), release.ServerMD5) {
		failed = true
	}

	if err := swapGameJars(layout, release); err != nil {
		return err
	}

	if failed {
		log.Error("something failed verifying game files, see log for details")
		return fmt.Errorf("%w: game files for %s", ErrBatchFailed, release.Version)
	}
	return nil
}

func swapGameJars(layout GameLayout, release config.Release) error {
	if err := checksum.BackupSwap(layout.BinDir, ClientJar, release.ClientMD5); err != nil {
		return err
	}
	return checksum.BackupSwap(layout.ServerDir, ServerJar, release.ServerMD5)
}
