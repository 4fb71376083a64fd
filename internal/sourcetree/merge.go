// Package sourcetree merges the decompiled client and server source trees
// into a shared tree and tidies decompiler output.
package sourcetree

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/minio/highwayhash"
	"github.com/sergi/go-diff/diffmatchpatch"

	"fmlsetup/internal/fileutil"
	"fmlsetup/internal/logging"
)

var hashKey = []byte("0123456789ABCDEF0123456789ABCDEF")

// MergeStats summarizes a Merge.
type MergeStats struct {
	Shared      int // identical files moved to the shared tree
	AllowListed int // differing files moved because of the allow list
	Divergent   int // files present on both sides that stayed in place
}

// Merger moves files common to both side trees into a shared tree.
type Merger struct {
	// AllowList holds doublestar patterns for files that are taken from the
	// client side even when the two copies differ. A pattern matches either
	// the base name or the slash-separated path relative to the side root.
	AllowList []string
}

// Merge walks clientDir, following symlinked directories, and moves every regular file that also exists under
// serverDir at the same relative path into sharedDir when the two copies are
// byte-identical or allow-listed; the server copy is deleted. Empty
// directories left in either side are removed. sharedDir is always created;
// nothing else happens when either side is missing.
func (m *Merger) Merge(clientDir, serverDir, sharedDir string) (*MergeStats, error) {
	stats := &MergeStats{}

	if err := os.MkdirAll(sharedDir, 0755); err != nil {
		return nil, err
	}
	if !fileutil.IsDir(clientDir) || !fileutil.IsDir(serverDir) {
		logging.Warn("source tree missing, nothing to merge", "client", clientDir, "server", serverDir)
		return stats, nil
	}

	logging.Info("merging client and server sources", "client", clientDir, "server", serverDir, "shared", sharedDir)

	err := walkFiles(clientDir, func(path, rel string) error {
		serverPath := filepath.Join(serverDir, rel)
		if !fileutil.IsFile(serverPath) {
			return nil
		}

		same, err := sameContent(path, serverPath)
		if err != nil {
			return err
		}
		if !same {
			if !m.allowed(rel) {
				stats.Divergent++
				return nil
			}
			logDivergence(rel, path, serverPath)
			stats.AllowListed++
		} else {
			stats.Shared++
		}

		if err := fileutil.MoveFile(path, filepath.Join(sharedDir, rel)); err != nil {
			return err
		}
		return os.Remove(serverPath)
	})
	if err != nil {
		return stats, err
	}

	if err := RemoveEmptyDirs(serverDir); err != nil {
		return stats, err
	}
	if err := RemoveEmptyDirs(clientDir); err != nil {
		return stats, err
	}

	logging.Info("source merge complete",
		"shared", stats.Shared, "allow_listed", stats.AllowListed, "divergent", stats.Divergent)
	return stats, nil
}

// walkFiles calls fn for every regular file below root with its path
// relative to root, descending into symlinked directories. A directory
// already reached through another path is skipped, which breaks link cycles.
func walkFiles(root string, fn func(path, rel string) error) error {
	visited := make(map[string]bool)

	var walk func(dir, rel string) error
	walk = func(dir, rel string) error {
		real, err := filepath.EvalSymlinks(dir)
		if err != nil {
			return err
		}
		if visited[real] {
			return nil
		}
		visited[real] = true

		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())
			entryRel := filepath.Join(rel, entry.Name())

			info, err := os.Stat(path)
			if err != nil {
				if entry.Type()&fs.ModeSymlink != 0 {
					logging.Debug("skipping dangling link", "path", path)
					continue
				}
				return err
			}
			switch {
			case info.IsDir():
				if err := walk(path, entryRel); err != nil {
					return err
				}
			case info.Mode().IsRegular():
				if err := fn(path, entryRel); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return walk(root, "")
}

func (m *Merger) allowed(rel string) bool {
	slashRel := filepath.ToSlash(rel)
	base := filepath.Base(rel)
	for _, pattern := range m.AllowList {
		if ok, _ := doublestar.Match(pattern, base); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, slashRel); ok {
			return true
		}
	}
	return false
}

// Digest returns the HighwayHash-256 of the file at path.
func Digest(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h, err := highwayhash.New(hashKey)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

func sameContent(a, b string) (bool, error) {
	da, err := Digest(a)
	if err != nil {
		return false, err
	}
	db, err := Digest(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(da, db), nil
}

// logDivergence reports how far apart two allow-listed copies are.
func logDivergence(rel, clientPath, serverPath string) {
	client, err := os.ReadFile(clientPath)
	if err != nil {
		return
	}
	server, err := os.ReadFile(serverPath)
	if err != nil {
		return
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(string(server), string(client), false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	regions := 0
	for _, d := range diffs {
		if d.Type != diffmatchpatch.DiffEqual {
			regions++
		}
	}
	logging.Debug("allow-listed file differs between sides, keeping client copy",
		"path", filepath.ToSlash(rel), "regions", regions)
}

// RemoveEmptyDirs removes every directory below root that contains no
// files, then root itself if it ended up empty.
func RemoveEmptyDirs(root string) error {
	if !fileutil.IsDir(root) {
		return nil
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := RemoveEmptyDirs(filepath.Join(root, e.Name())); err != nil {
				return err
			}
		}
	}

	entries, err = os.ReadDir(root)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return os.Remove(root)
	}
	return nil
}
