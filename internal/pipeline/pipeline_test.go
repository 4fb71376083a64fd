package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fmlsetup/internal/checksum"
	"fmlsetup/internal/config"
	"fmlsetup/internal/fetch"
	"fmlsetup/internal/lock"
	"fmlsetup/internal/patch"
	"fmlsetup/internal/toolchain"
)

type fakeToolchain struct {
	mcp   string
	calls []string

	// cleanupRemovesSrc makes Cleanup delete <mcp>/src.
	cleanupRemovesSrc bool
	// sources are written below <mcp>/src by Decompile.
	sources map[string]string
}

var _ toolchain.Toolchain = (*fakeToolchain)(nil)

func (f *fakeToolchain) record(call string) { f.calls = append(f.calls, call) }

func (f *fakeToolchain) Cleanup(context.Context) error {
	f.record("cleanup")
	if f.cleanupRemovesSrc {
		return os.RemoveAll(filepath.Join(f.mcp, "src"))
	}
	return nil
}

func (f *fakeToolchain) Decompile(_ context.Context, opts toolchain.DecompileOptions) error {
	f.record("decompile " + strings.Join(opts.Args(), " "))
	for rel, content := range f.sources {
		path := filepath.Join(f.mcp, "src", filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeToolchain) Recompile(_ context.Context, side toolchain.Side) error {
	f.record("recompile " + side.String())
	return nil
}

func (f *fakeToolchain) GatherMD5s(_ context.Context, side toolchain.Side) error {
	f.record("md5s " + side.String())
	return nil
}

func (f *fakeToolchain) UpdateNames(context.Context) error {
	f.record("updatenames")
	return nil
}

func (f *fakeToolchain) UpdateMD5(context.Context) error {
	f.record("updatemd5")
	return nil
}

func (f *fakeToolchain) ApplyTransform(_ context.Context, side toolchain.Side) error {
	f.record("transform " + side.String())
	return nil
}

func (f *fakeToolchain) CheckArtifacts(_ context.Context, side toolchain.Side) error {
	f.record("check " + side.String())
	return nil
}

type patchCall struct {
	strip int
	dir   string
	body  string
}

// fakePatcher records every application; strip is fixed per tool instance.
type fakePatcher struct {
	calls *[]patchCall
	strip int
}

func (f fakePatcher) Apply(_ context.Context, patchFile, dir string) (int, string, error) {
	data, err := os.ReadFile(patchFile)
	if err != nil {
		return -1, "", err
	}
	*f.calls = append(*f.calls, patchCall{strip: f.strip, dir: dir, body: string(data)})
	return 0, "", nil
}

type fixture struct {
	fml, mcp string
	cfg      *config.Config
	tools    *fakeToolchain
	patches  []patchCall
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{fml: t.TempDir(), mcp: t.TempDir()}
	fx.cfg = config.DefaultConfig()
	fx.cfg.Paths.FMLDir = fx.fml
	fx.cfg.Paths.MCPDir = fx.mcp
	fx.tools = &fakeToolchain{mcp: fx.mcp}
	return fx
}

func (fx *fixture) pipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := New(fx.cfg,
		WithToolchain(fx.tools),
		WithPatchTool(func(strip int) patch.Tool {
			return fakePatcher{calls: &fx.patches, strip: strip}
		}),
	)
	require.NoError(t, err)
	return p
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestGenerateConf(t *testing.T) {
	fx := newFixture(t)
	writeFiles(t, fx.mcp, map[string]string{
		"conf/astyle.cfg":  "style=java\r\nindent=spaces\r\n",
		"conf/version.cfg": "[VERSION]\nClientVersion = 1.4.7\n",
		"conf/newids.csv":  "client,server,newid\n",
		"conf/client.srg": "CL: a net/minecraft/src/World\n" +
			"CL: b net/minecraft/client/Gui\n" +
			"FD: a/a net/minecraft/src/World/field_1_a\n" +
			"MD: a/b (I)V net/minecraft/src/World/func_2_b (I)V\n",
		"conf/server.srg": "CL: a net/minecraft/src/World\n" +
			"FD: a/a net/minecraft/src/World/field_1_a\n" +
			"MD: a/b (I)V net/minecraft/src/World/func_2_b (I)V\n",
		"conf/joined.exc":  "net/minecraft/src/World.func_2_b(I)V=|p_2_1_\n",
		"conf/fields.csv":  "searge,name,side,desc\nfield_1_a,world,0,\nfield_9_z,gui,0,\n",
		"conf/methods.csv": "searge,name,side,desc\nfunc_2_b,tick,1,\n",
		"conf/params.csv":  "param,name,side\np_2_1_,par1,0\np_7_1_,par7,1\n",
	})

	require.NoError(t, fx.pipeline(t).GenerateConf(context.Background()))

	conf := filepath.Join(fx.fml, "conf")
	assert.Equal(t, "style=java\nindent=spaces\n", readFile(t, filepath.Join(conf, "astyle.cfg")))
	assert.FileExists(t, filepath.Join(conf, "version.cfg"))
	assert.FileExists(t, filepath.Join(conf, "newids.csv"))
	assert.Equal(t, "CL: a net/minecraft/src/World\n"+
		"FD: a/a net/minecraft/src/World/field_1_a\n"+
		"MD: a/b (I)V net/minecraft/src/World/func_2_b (I)V\n", readFile(t, filepath.Join(conf, "joined.srg")))
	assert.Equal(t, "searge,name,side,desc\nfield_1_a,world,2,\n", readFile(t, filepath.Join(conf, "fields.csv")))
	assert.Equal(t, "searge,name,side,desc\nfunc_2_b,tick,2,\n", readFile(t, filepath.Join(conf, "methods.csv")))
	assert.Equal(t, "param,name,side\np_2_1_,par1,2\n", readFile(t, filepath.Join(conf, "params.csv")))
}

func TestGenerateConf_MissingInputs(t *testing.T) {
	tests := map[string]map[string]string{
		"no conf copies": {},
		"no side tables": {
			"conf/astyle.cfg":  "",
			"conf/version.cfg": "",
			"conf/newids.csv":  "",
		},
		"no exceptions": {
			"conf/astyle.cfg":  "",
			"conf/version.cfg": "",
			"conf/newids.csv":  "",
			"conf/client.srg":  "",
			"conf/server.srg":  "",
		},
	}

	for name, files := range tests {
		t.Run(name, func(t *testing.T) {
			fx := newFixture(t)
			writeFiles(t, fx.mcp, files)

			err := fx.pipeline(t).GenerateConf(context.Background())
			assert.ErrorIs(t, err, ErrMissingPrerequisite)
		})
	}
}

func TestSetupMCP(t *testing.T) {
	fx := newFixture(t)
	writeFiles(t, fx.mcp, map[string]string{
		"runtime/commands.py": "original\n",
		"conf/stale.cfg":      "old",
		"eclipse/old.launch":  "old",
	})
	writeFiles(t, fx.fml, map[string]string{
		"commands.patch":          "--- commands.py\n+++ commands.py\n",
		"conf/joined.srg":         "CL: a b\n",
		"eclipse/Client.launch":   "launch",
		"eclipse/.metadata/x.xml": "meta",
	})

	require.NoError(t, fx.pipeline(t).SetupMCP(context.Background(), false))

	assert.Equal(t, "original\n", readFile(t, filepath.Join(fx.mcp, "runtime", "commands.py.bck")))
	require.Len(t, fx.patches, 1)
	assert.Equal(t, patch.NoStrip, fx.patches[0].strip)
	assert.Equal(t, filepath.Join(fx.mcp, "runtime"), fx.patches[0].dir)
	assert.NoFileExists(t, filepath.Join(fx.fml, patch.TempFileName))

	assert.NoFileExists(t, filepath.Join(fx.mcp, "conf", "stale.cfg"))
	assert.Equal(t, "CL: a b\n", readFile(t, filepath.Join(fx.mcp, "conf", "joined.srg")))
	assert.NoFileExists(t, filepath.Join(fx.mcp, "eclipse", "old.launch"))
	assert.FileExists(t, filepath.Join(fx.mcp, "eclipse", ".metadata", "x.xml"))
}

func TestSetupMCP_RestoresBackup(t *testing.T) {
	fx := newFixture(t)
	writeFiles(t, fx.mcp, map[string]string{
		"runtime/commands.py":     "patched by an earlier run\n",
		"runtime/commands.py.bck": "pristine\n",
	})
	writeFiles(t, fx.fml, map[string]string{
		"commands.patch":             "--- commands.py\n",
		"conf/joined.srg":            "",
		"eclipse/Clean-Client/.keep": "",
	})

	require.NoError(t, fx.pipeline(t).SetupMCP(context.Background(), false))

	assert.Equal(t, "pristine\n", readFile(t, filepath.Join(fx.mcp, "runtime", "commands.py")))
	assert.NoDirExists(t, filepath.Join(fx.mcp, "eclipse"), "a clean IDE workspace is left alone")
}

func TestSetupMCP_MissingPrerequisites(t *testing.T) {
	tests := map[string]struct {
		mcp map[string]string
		fml map[string]string
	}{
		"no commands module": {
			fml: map[string]string{"commands.patch": ""},
		},
		"no commands patch": {
			mcp: map[string]string{"runtime/commands.py": ""},
		},
		"no loader conf": {
			mcp: map[string]string{"runtime/commands.py": ""},
			fml: map[string]string{"commands.patch": ""},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			fx := newFixture(t)
			writeFiles(t, fx.mcp, test.mcp)
			writeFiles(t, fx.fml, test.fml)

			err := fx.pipeline(t).SetupMCP(context.Background(), false)
			assert.ErrorIs(t, err, ErrMissingPrerequisite)
		})
	}
}

func TestSetupMCP_GenerateConf(t *testing.T) {
	fx := newFixture(t)
	writeFiles(t, fx.mcp, map[string]string{
		"runtime/commands.py": "",
		"conf/astyle.cfg":     "",
		"conf/version.cfg":    "",
		"conf/newids.csv":     "",
		"conf/client.srg":     "CL: a A\n",
		"conf/server.srg":     "CL: a A\n",
		"conf/joined.exc":     "",
		"conf/fields.csv":     "searge,name,side,desc\n",
		"conf/methods.csv":    "searge,name,side,desc\n",
		"conf/params.csv":     "param,name,side\n",
	})
	writeFiles(t, fx.fml, map[string]string{
		"commands.patch":             "",
		"eclipse/Clean-Client/.keep": "",
	})

	require.NoError(t, fx.pipeline(t).SetupMCP(context.Background(), true))

	assert.FileExists(t, filepath.Join(fx.mcp, "conf.bak", "client.srg"), "workspace conf is kept as backup")
	assert.Equal(t, "CL: a A\n", readFile(t, filepath.Join(fx.mcp, "conf", "joined.srg")), "generated conf is installed")
}

func TestApplyPatches(t *testing.T) {
	fx := newFixture(t)
	writeFiles(t, fx.mcp, map[string]string{
		"src/common/cpw/mods/SideOnly.java": "decompile only",
		"src/minecraft/argo/Json.java":      "bundled",
		"src/minecraft/net/Main.java":       "main",
	})
	writeFiles(t, fx.fml, map[string]string{
		"patches/minecraft/net/Main.java.patch":  "--- ../src_base/minecraft/net/Main.java\n",
		"patches/common/net/World.java.patch":    "--- ../src_base/common/net/World.java\n",
		"client/cpw/mods/fml/client/Loader.java": "client overlay",
		"common/cpw/mods/fml/common/Loader.java": "common overlay",
		"common/fml_at.cfg":                      "public a",
	})

	report, err := fx.pipeline(t).ApplyPatches(context.Background(), true)
	require.NoError(t, err)

	assert.Len(t, report.Applied, 2)
	require.Len(t, fx.patches, 2)
	for _, call := range fx.patches {
		assert.Equal(t, config.DefaultPatchStrip, call.strip)
		assert.Equal(t, filepath.Join(fx.mcp, "src"), call.dir)
	}
	assert.Contains(t, fx.patches[0].body, "minecraft")
	assert.Contains(t, fx.patches[1].body, "common")

	assert.NoFileExists(t, filepath.Join(fx.mcp, "src", "common", "cpw", "mods", "SideOnly.java"))
	assert.NoDirExists(t, filepath.Join(fx.mcp, "src", "minecraft", "argo"))
	assert.Equal(t, "client overlay", readFile(t, filepath.Join(fx.mcp, "src", "minecraft", "cpw", "mods", "fml", "client", "Loader.java")))
	assert.Equal(t, "common overlay", readFile(t, filepath.Join(fx.mcp, "src", "common", "cpw", "mods", "fml", "common", "Loader.java")))
	assert.FileExists(t, filepath.Join(fx.mcp, "src", "minecraft", "net", "Main.java"))
}

func TestApplyPatches_WithoutCopy(t *testing.T) {
	fx := newFixture(t)
	writeFiles(t, fx.fml, map[string]string{
		"client/Loader.java": "client overlay",
	})

	report, err := fx.pipeline(t).ApplyPatches(context.Background(), false)
	require.NoError(t, err)

	assert.Zero(t, report.Total())
	assert.NoFileExists(t, filepath.Join(fx.mcp, "src", "minecraft", "Loader.java"))
}

func TestFinish(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.pipeline(t).Finish(context.Background()))
	assert.Equal(t, []string{"updatenames", "updatemd5"}, fx.tools.calls)
}

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func jarBytes(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		out, err := w.Create(name)
		require.NoError(t, err)
		_, err = out.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// serveGame starts a server for the libraries and game jars and points the
// fixture's configuration and versions file at it.
func (fx *fixture) serveGame(t *testing.T) {
	t.Helper()
	client := jarBytes(t, map[string]string{
		"META-INF/MANIFEST.MF":  "manifest",
		"META-INF/MOJANG_C.SF":  "signature",
		"net/minecraft/a.class": "class",
	})
	server := jarBytes(t, map[string]string{"net/minecraft/b.class": "class"})
	files := map[string][]byte{
		"/fmllibs/argo.jar":          []byte("argo"),
		"/game/minecraft.jar":        client,
		"/game/minecraft_server.jar": server,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)

	fx.cfg.Libraries.BaseURL = srv.URL + "/fmllibs/"
	fx.cfg.Libraries.Names = []string{"argo.jar"}
	versions := fmt.Sprintf(`[default]
current_ver = 1.4.7
base_url = %[1]s/fmllibs/
libraries =
natives =

[1.4.7]
client_url = %[1]s/game/minecraft.jar
client_md5 = %[2]s
server_url = %[1]s/game/minecraft_server.jar
server_md5 = %[3]s
`, srv.URL, md5Hex(client), md5Hex(server))
	writeFiles(t, fx.fml, map[string]string{config.DefaultVersionsFile: versions})
}

func TestDecompile(t *testing.T) {
	fx := newFixture(t)
	fx.serveGame(t)
	fx.tools.sources = map[string]string{
		"minecraft/net/minecraft/src/A.java":            "class A {}",
		"minecraft/net/minecraft/src/World.java":        "class World { client }",
		"minecraft/net/minecraft/client/Gui.java":       "class Gui {\n    void m(int x) {\n        switch (x) {\n            case 1:\n\n                break;\n        }\n    }\n}\n",
		"minecraft_server/net/minecraft/src/A.java":     "class A {}",
		"minecraft_server/net/minecraft/src/World.java": "class World { server }",
	}

	result, err := fx.pipeline(t).Decompile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"check client", "transform client",
		"check server", "transform server",
		"decompile -r -d -n",
		"recompile client", "md5s client",
		"recompile server", "md5s server",
	}, fx.tools.calls)

	assert.FileExists(t, filepath.Join(fx.mcp, "lib", "argo.jar"))
	assert.Equal(t, 2, result.MetaInfStripped)
	assert.Equal(t, 1, result.CleanupFixes)
	require.NotNil(t, result.Merge)
	assert.Equal(t, 1, result.Merge.Shared)
	assert.Equal(t, 1, result.Merge.AllowListed)

	src := filepath.Join(fx.mcp, "src")
	assert.Equal(t, "class World { client }", readFile(t, filepath.Join(src, "common", "net", "minecraft", "src", "World.java")))
	assert.FileExists(t, filepath.Join(src, "common", "net", "minecraft", "src", "A.java"))
	assert.NoDirExists(t, filepath.Join(src, "minecraft_server"), "emptied server tree is removed")
	assert.NotContains(t, readFile(t, filepath.Join(src, "minecraft", "net", "minecraft", "client", "Gui.java")), "case 1:\n\n")

	jar, err := zip.OpenReader(fetch.NewGameLayout(fx.mcp).ClientPath())
	require.NoError(t, err)
	defer jar.Close()
	for _, f := range jar.File {
		assert.False(t, strings.HasPrefix(f.Name, "META-INF"), f.Name)
	}
}

func TestDecompile_NoSourceProduced(t *testing.T) {
	fx := newFixture(t)
	fx.serveGame(t)

	_, err := fx.pipeline(t).Decompile(context.Background())

	require.ErrorIs(t, err, ErrStructural)
	assert.NotContains(t, fx.tools.calls, "recompile client")
}

func TestDecompile_SourceSurvivesCleanup(t *testing.T) {
	fx := newFixture(t)
	writeFiles(t, fx.mcp, map[string]string{"src/minecraft/Modified.java": "user work"})

	_, err := fx.pipeline(t).Decompile(context.Background())

	require.ErrorIs(t, err, ErrSourceExists)
	assert.Equal(t, []string{"cleanup"}, fx.tools.calls)
	assert.FileExists(t, filepath.Join(fx.mcp, "src", "minecraft", "Modified.java"))
}

func TestDecompile_MissingVersions(t *testing.T) {
	fx := newFixture(t)
	fx.serveGame(t)
	require.NoError(t, os.Remove(filepath.Join(fx.fml, config.DefaultVersionsFile)))
	writeFiles(t, fx.mcp, map[string]string{"src/minecraft/Stale.java": "old run"})
	fx.tools.cleanupRemovesSrc = true

	_, err := fx.pipeline(t).Decompile(context.Background())

	assert.ErrorIs(t, err, ErrMissingPrerequisite)
	assert.Equal(t, []string{"cleanup"}, fx.tools.calls)
	assert.FileExists(t, filepath.Join(fx.mcp, "lib", "argo.jar"), "libraries are fetched before the game")
}

func TestRun_Locked(t *testing.T) {
	fx := newFixture(t)
	held, err := lock.Acquire(fx.mcp)
	require.NoError(t, err)
	defer held.Release()

	_, err = fx.pipeline(t).Run(context.Background())

	assert.ErrorIs(t, err, lock.ErrLocked)
	assert.Empty(t, fx.tools.calls)
}

func TestNew_RunID(t *testing.T) {
	fx := newFixture(t)
	a := fx.pipeline(t)
	b := fx.pipeline(t)

	assert.Len(t, a.RunID(), 36)
	assert.NotEqual(t, a.RunID(), b.RunID())
}

func TestVerifyGame(t *testing.T) {
	fx := newFixture(t)
	fx.serveGame(t)
	p := fx.pipeline(t)
	require.NoError(t, p.Fetch(context.Background()))

	client := fetch.NewGameLayout(fx.mcp).ClientPath()
	require.NoError(t, os.WriteFile(client, []byte("tampered"), 0644))

	statuses, err := p.VerifyGame()
	require.NoError(t, err)

	got := make(map[string]checksum.Status, len(statuses))
	for _, s := range statuses {
		got[s.Path] = s.Status
	}
	server := fetch.NewGameLayout(fx.mcp).ServerPath()
	assert.Equal(t, map[string]checksum.Status{
		client:                      checksum.Corrupt,
		checksum.BackupPath(client): checksum.Valid,
		server:                      checksum.Valid,
		checksum.BackupPath(server): checksum.Valid,
	}, got)
}

func TestVerifyGame_MissingVersions(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.pipeline(t).VerifyGame()

	assert.ErrorIs(t, err, ErrMissingPrerequisite)
}
