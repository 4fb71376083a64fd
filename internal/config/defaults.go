package config

import (
	"runtime"
	"time"
)

// Default configuration values.
const (
	DefaultVersionsFile   = "mc_versions.cfg"
	DefaultConfigFile     = "fmlsetup.yaml"
	DefaultLibraryBaseURL = "http://files.minecraftforge.net/fmllibs/"

	DefaultDownloadTimeout = 10 * time.Minute
	DefaultUserAgent       = "fmlsetup/1.0"
	DefaultDownloadRetries = 2
	MaxDownloadRetries     = 10

	DefaultPatchStrip   = 2
	PatchModeBestEffort = "best-effort"
	PatchModeStrict     = "strict"
)

// DefaultLibraries are the jars the access transformer and merger compile against.
var DefaultLibraries = []string{
	"argo-2.25.jar",
	"guava-12.0.1.jar",
	"guava-12.0.1-sources.jar",
	"asm-all-4.0.jar",
	"asm-all-4.0-source.jar",
}

// DefaultMergeAllowList names sources that decompile differently per side but
// are known to be equivalent.
var DefaultMergeAllowList = []string{
	"GuiStatsComponent.java",
	"HttpUtilRunnable.java",
	"PlayerUsageSnooper.java",
	"RConThreadClient.java",
	"World.java",
}

// DefaultPython is the interpreter used to drive the decompilation workspace.
var DefaultPython = func() string {
	if runtime.GOOS == "windows" {
		return "python"
	}
	return "python2"
}()
