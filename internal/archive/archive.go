// Package archive handles the jar/zip bundles the workspace downloads.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"fmlsetup/internal/fileutil"
	"fmlsetup/internal/logging"
)

// MetaInfPrefix marks signature/manifest entries that must not be extracted or kept.
const MetaInfPrefix = "META-INF"

// ErrUnsafeEntry indicates an archive entry that would escape its destination.
var ErrUnsafeEntry = errors.New("archive entry escapes destination")

// IsMetaInf reports whether an entry name lives under META-INF.
func IsMetaInf(name string) bool {
	return strings.HasPrefix(name, MetaInfPrefix)
}

// ExtractResult lists what ExtractNew did.
type ExtractResult struct {
	Extracted []string
	Skipped   []string
}

// ExtractNew extracts every non-directory, non-META-INF entry of archivePath
// into dir. Entries whose destination already exists are skipped, never
// overwritten.
func ExtractNew(archivePath, dir string) (*ExtractResult, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	result := &ExtractResult{}
	for _, f := range r.File {
		if IsMetaInf(f.Name) || strings.HasSuffix(f.Name, "/") {
			continue
		}
		if !filepath.IsLocal(filepath.FromSlash(f.Name)) {
			return result, fmt.Errorf("%w: %s", ErrUnsafeEntry, f.Name)
		}

		outPath := filepath.Join(dir, filepath.FromSlash(f.Name))
		if _, err := os.Stat(outPath); err == nil {
			result.Skipped = append(result.Skipped, f.Name)
			continue
		}

		logging.Info("extracting", "entry", f.Name)
		if err := extractEntry(f, outPath); err != nil {
			return result, fmt.Errorf("extract %s: %w", f.Name, err)
		}
		result.Extracted = append(result.Extracted, f.Name)
	}

	return result, nil
}

func extractEntry(f *zip.File, outPath string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		os.Remove(outPath)
		return err
	}
	return out.Close()
}

// StripMetaInf rewrites dst as a copy of src without its META-INF entries.
// src and dst must differ; dst is replaced atomically.
func StripMetaInf(src, dst string) (int, error) {
	r, err := zip.OpenReader(src)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".fmlsetup-jar-*")
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	w := zip.NewWriter(tmp)
	skipped := 0
	for _, f := range r.File {
		if IsMetaInf(f.Name) {
			logging.Debug("skipping jar entry", "entry", f.Name)
			skipped++
			continue
		}
		if err := copyEntry(w, f); err != nil {
			return skipped, fmt.Errorf("copy %s: %w", f.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return skipped, err
	}
	if err := tmp.Close(); err != nil {
		return skipped, err
	}
	if err := fileutil.MoveFile(tmpPath, dst); err != nil {
		return skipped, err
	}

	success = true
	return skipped, nil
}

func copyEntry(w *zip.Writer, f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	header := &zip.FileHeader{
		Name:     f.Name,
		Method:   zip.Deflate,
		Modified: f.Modified,
	}
	out, err := w.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, rc)
	return err
}
