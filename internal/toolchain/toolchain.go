package toolchain

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fmlsetup/internal/checksum"
	"fmlsetup/internal/logging"
)

// Side selects one of the two game distributions.
type Side int

const (
	Client Side = iota
	Server
)

// Sides lists both sides in processing order.
var Sides = []Side{Client, Server}

func (s Side) String() string {
	switch s {
	case Client:
		return "client"
	case Server:
		return "server"
	default:
		return fmt.Sprintf("side(%d)", int(s))
	}
}

// flag is the workspace script flag restricting work to the side.
func (s Side) flag() string { return "--" + s.String() }

// DecompileOptions mirrors the decompiler's command line.
type DecompileOptions struct {
	ConfigFile   string
	ForceJad     bool
	ForceCSV     bool
	NoRecompile  bool
	NoComments   bool
	NoReformat   bool
	NoRenamer    bool
	NoPatch      bool
	OnlyPatch    bool
	KeepLVT      bool
	KeepGenerics bool
	OnlyClient   bool
	OnlyServer   bool
}

// SetupDecompileOptions is the fixed flag set used during setup: no
// recompile, no comments, no renamer.
var SetupDecompileOptions = DecompileOptions{
	NoRecompile: true,
	NoComments:  true,
	NoRenamer:   true,
}

// Args renders the options as decompiler flags.
func (o DecompileOptions) Args() []string {
	var args []string
	if o.ConfigFile != "" {
		args = append(args, "--config", o.ConfigFile)
	}
	for _, f := range []struct {
		set  bool
		flag string
	}{
		{o.ForceJad, "-j"},
		{o.ForceCSV, "--csv"},
		{o.NoRecompile, "-r"},
		{o.NoComments, "-d"},
		{o.NoReformat, "-a"},
		{o.NoRenamer, "-n"},
		{o.NoPatch, "-p"},
		{o.OnlyPatch, "-o"},
		{o.KeepLVT, "-l"},
		{o.KeepGenerics, "-g"},
		{o.OnlyClient, "--client"},
		{o.OnlyServer, "--server"},
	} {
		if f.set {
			args = append(args, f.flag)
		}
	}
	return args
}

// Toolchain is the set of external build steps the pipeline depends on.
type Toolchain interface {
	// Cleanup resets the workspace, removing previously decompiled sources.
	Cleanup(ctx context.Context) error
	Decompile(ctx context.Context, opts DecompileOptions) error
	Recompile(ctx context.Context, side Side) error
	GatherMD5s(ctx context.Context, side Side) error
	UpdateNames(ctx context.Context) error
	UpdateMD5(ctx context.Context) error
	// ApplyTransform rewrites the side's jar with the access transformer
	// before decompilation; the client step also merges the two jars.
	ApplyTransform(ctx context.Context, side Side) error
	// CheckArtifacts verifies the side's pristine jar.
	CheckArtifacts(ctx context.Context, side Side) error
}

// Jar describes a side's game jar and its expected digest.
type Jar struct {
	Path string
	MD5  string
}

// MCP runs the decompilation workspace scripts and the Java transformers.
type MCP struct {
	MCPDir string
	FMLDir string

	Python string
	Java   string
	Javac  string

	Jars         map[Side]Jar
	ForceCleanup bool

	Runner *Runner
}

var _ Toolchain = (*MCP)(nil)

func (m *MCP) runner() *Runner {
	if m.Runner == nil {
		return &Runner{Echo: true}
	}
	return m.Runner
}

// script runs runtime/<name>.py inside the workspace.
func (m *MCP) script(ctx context.Context, name string, args ...string) error {
	argv := append([]string{filepath.Join("runtime", name+".py")}, args...)
	_, err := m.runner().Run(ctx, m.MCPDir, m.Python, argv...)
	return err
}

func (m *MCP) Cleanup(ctx context.Context) error {
	logging.Info("cleaning up decompilation workspace", "dir", m.MCPDir)
	r := *m.runner()
	var args []string
	if m.ForceCleanup {
		args = append(args, "--force")
	} else if r.Stdin == nil {
		r.Stdin = os.Stdin
	}
	argv := append([]string{filepath.Join("runtime", "cleanup.py")}, args...)
	_, err := r.Run(ctx, m.MCPDir, m.Python, argv...)
	return err
}

func (m *MCP) Decompile(ctx context.Context, opts DecompileOptions) error {
	logging.Info("decompiling", "flags", strings.Join(opts.Args(), " "))
	return m.script(ctx, "decompile", opts.Args()...)
}

func (m *MCP) Recompile(ctx context.Context, side Side) error {
	logging.Info("recompiling", "side", side)
	return m.script(ctx, "recompile", side.flag())
}

func (m *MCP) GatherMD5s(ctx context.Context, side Side) error {
	logging.Info("generating md5s", "side", side)
	return m.script(ctx, "updatemd5", "--force", side.flag())
}

func (m *MCP) UpdateNames(ctx context.Context) error {
	logging.Info("updating names")
	return m.script(ctx, "updatenames", "--force")
}

func (m *MCP) UpdateMD5(ctx context.Context) error {
	logging.Info("updating md5s")
	return m.script(ctx, "updatemd5", "--force")
}

func (m *MCP) CheckArtifacts(_ context.Context, side Side) error {
	jar, ok := m.Jars[side]
	if !ok {
		return fmt.Errorf("no jar configured for %s", side)
	}
	backup := checksum.BackupPath(jar.Path)
	logging.Info("checking pristine jar", "side", side, "path", backup)
	return checksum.Check(backup, jar.MD5)
}
