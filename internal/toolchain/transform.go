package toolchain

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"fmlsetup/internal/fileutil"
	"fmlsetup/internal/logging"
)

const transformerPackage = "cpw.mods.fml.common.asm.transformers"

var javacFlags = []string{"-Xlint:-options", "-deprecation", "-g", "-source", "1.6", "-target", "1.6"}

func (m *MCP) binDir() string { return filepath.Join(m.FMLDir, "bin") }

func (m *MCP) libClasspath() string { return filepath.Join(m.MCPDir, "lib", "*") }

func (m *MCP) runClasspath() string {
	return strings.Join([]string{m.libClasspath(), m.binDir()}, string(os.PathListSeparator))
}

// compile builds one transformer class into <fml>/bin.
func (m *MCP) compile(ctx context.Context, class string) error {
	logging.Info("compiling " + class)
	source := filepath.Join(append([]string{m.FMLDir, "common"},
		append(strings.Split(transformerPackage, "."), class+".java")...)...)

	args := append(append([]string(nil), javacFlags...),
		"-classpath", strings.Join([]string{".", m.libClasspath()}, string(os.PathListSeparator)),
		"-sourcepath", filepath.Join(m.FMLDir, "common"),
		"-d", m.binDir(),
		source,
	)
	r := *m.runner()
	r.Echo = false
	_, err := r.Run(ctx, m.MCPDir, m.Javac, args...)
	return err
}

// AccessTransformerConfigs returns the transformer configs applied to every
// jar: the loader's own config, an optional forge config and every file
// below <mcp>/forge/accesstransformers, in lexical order.
func (m *MCP) AccessTransformerConfigs() ([]string, error) {
	configs := []string{filepath.Join(m.FMLDir, "common", "fml_at.cfg")}

	forge := filepath.Join(m.MCPDir, "forge", "common", "forge_at.cfg")
	if fileutil.IsFile(forge) {
		logging.Info("forge access transformer config detected", "path", forge)
		configs = append(configs, forge)
	}

	extraDir := filepath.Join(m.MCPDir, "forge", "accesstransformers")
	if !fileutil.IsDir(extraDir) {
		return configs, nil
	}
	var extra []string
	err := filepath.WalkDir(extraDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			logging.Info("access transformer detected", "name", d.Name())
			extra = append(extra, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(extra)
	return append(configs, extra...), nil
}

func (m *MCP) ApplyTransform(ctx context.Context, side Side) error {
	jar, ok := m.Jars[side]
	if !ok {
		return fmt.Errorf("no jar configured for %s", side)
	}
	if err := os.MkdirAll(m.binDir(), 0755); err != nil {
		return err
	}

	if side == Client {
		for _, class := range []string{"AccessTransformer", "MCPMerger"} {
			if err := m.compile(ctx, class); err != nil {
				return err
			}
		}

		server, ok := m.Jars[Server]
		if !ok {
			return fmt.Errorf("no jar configured for %s", Server)
		}
		logging.Info("running jar merger")
		if _, err := m.runner().Run(ctx, m.MCPDir, m.Java,
			"-classpath", m.runClasspath(),
			transformerPackage+".MCPMerger",
			filepath.Join(m.FMLDir, "mcp_merge.cfg"),
			jar.Path,
			server.Path,
		); err != nil {
			return err
		}
	}

	configs, err := m.AccessTransformerConfigs()
	if err != nil {
		return err
	}
	logging.Info("running access transformer", "side", side)
	args := append([]string{
		"-classpath", m.runClasspath(),
		transformerPackage + ".AccessTransformer",
		jar.Path,
	}, configs...)
	_, err = m.runner().Run(ctx, m.MCPDir, m.Java, args...)
	return err
}
