// Package fetch downloads workspace artifacts with checksum-gated, idempotent
// semantics: a file that already verifies is never downloaded again.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"fmlsetup/internal/archive"
	"fmlsetup/internal/checksum"
	"fmlsetup/internal/logging"
)

var (
	// ErrDownloadFailed indicates the HTTP transfer failed.
	ErrDownloadFailed = errors.New("download failed")

	// ErrBatchFailed indicates at least one item of a batch could not be fetched.
	ErrBatchFailed = errors.New("one or more downloads failed")
)

// Fetcher downloads files over HTTP.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	retry      RetryConfig
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.httpClient = c
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.httpClient.Timeout = d
	}
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(cfg RetryConfig) Option {
	return func(f *Fetcher) {
		f.retry = cfg
	}
}

// New creates a new fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		httpClient: &http.Client{},
		userAgent:  "fmlsetup/1.0",
		retry:      DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch makes target hold the content at url. When target already exists and
// matches expected (or expected is empty) nothing is downloaded. A mismatching
// file is removed and downloaded once more. Failures are logged and reported
// through the return value so callers can aggregate a batch.
func (f *Fetcher) Fetch(ctx context.Context, url, target, expected string) bool {
	name := filepath.Base(target)
	log := logging.With("url", url, "path", target)

	status, err := checksum.Verify(target, expected)
	if err != nil {
		log.Error("failed to verify existing file", "error", err)
		return false
	}

	switch status {
	case checksum.Valid:
		log.Info("file exists", "file", name)
		return true
	case checksum.Corrupt:
		log.Warn("modified file detected, removing", "file", name)
		if err := os.Remove(target); err != nil {
			log.Error("failed to remove modified file", "error", err)
			return false
		}
	}

	if err := f.download(ctx, url, target); err != nil {
		log.Error("download failed, fetch it manually", "file", name, "error", err)
		return false
	}

	if expected != "" {
		if err := checksum.Check(target, expected); err != nil {
			log.Error("download failed checksum, deleting", "file", name, "error", err)
			os.Remove(target)
			return false
		}
	}

	log.Info("downloaded", "file", name)
	return true
}

// FetchNative fetches baseURL+name into folder and extracts the bundle's
// entries next to it, skipping META-INF and anything already present.
func (f *Fetcher) FetchNative(ctx context.Context, baseURL, folder, name string) bool {
	if err := os.MkdirAll(folder, 0755); err != nil {
		logging.Error("failed to create natives folder", "path", folder, "error", err)
		return false
	}

	target := filepath.Join(folder, name)
	if !f.Fetch(ctx, baseURL+name, target, "") {
		return false
	}

	result, err := archive.ExtractNew(target, folder)
	if err != nil {
		logging.Error("failed to extract natives", "path", target, "error", err)
		return false
	}
	logging.Debug("natives extracted", "path", target,
		"extracted", len(result.Extracted), "skipped", len(result.Skipped))
	return true
}

// FetchLibraries fetches every missing library from baseURL into libDir.
// All libraries are attempted before a failure is reported.
func (f *Fetcher) FetchLibraries(ctx context.Context, baseURL, libDir string, names []string) error {
	if err := os.MkdirAll(libDir, 0755); err != nil {
		return err
	}

	var failed []string
	for _, lib := range names {
		target := filepath.Join(libDir, lib)
		if !f.Fetch(ctx, baseURL+lib, target, "") {
			logging.Error("library missing, download it manually and place it in the lib folder",
				"library", lib, "url", baseURL+lib, "path", libDir)
			failed = append(failed, lib)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("%w: %v", ErrBatchFailed, failed)
	}
	return nil
}

// download fetches url into target, retrying transient failures with
// exponential backoff.
func (f *Fetcher) download(ctx context.Context, url, target string) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = f.downloadOnce(ctx, url, target)
		if err == nil || attempt >= f.retry.MaxRetries || !retryable(err) {
			return err
		}

		delay := CalculateBackoff(f.retry.RetryDelay, attempt, f.retry.MaxDelay)
		logging.Warn("download failed, retrying", "url", url, "attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// downloadOnce streams url into a temporary file next to target and renames
// it into place once complete.
func (f *Fetcher) downloadOnce(ctx context.Context, url, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/octet-stream")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &statusError{code: resp.StatusCode}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(target), ".fmlsetup-download-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	if _, err := io.Copy(tmpFile, resp.Body); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
