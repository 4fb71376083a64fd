// Package checksum verifies workspace artifacts against their expected MD5
// digests and keeps a pristine ".backup" copy next to each verified file.
package checksum

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrChecksumMismatch indicates a file does not match its expected digest.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// Status is the outcome of verifying a file.
type Status int

const (
	Missing Status = iota
	Valid
	Corrupt
)

// String returns the string representation of Status.
func (s Status) String() string {
	switch s {
	case Missing:
		return "missing"
	case Valid:
		return "valid"
	case Corrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// Sum computes the lowercase hex MD5 digest of a file.
func Sum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify reports whether path is missing, valid or corrupt with respect to
// expected. An empty expected digest accepts any existing file.
func Verify(path, expected string) (Status, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Missing, nil
		}
		return Missing, err
	}
	if !info.Mode().IsRegular() {
		return Missing, nil
	}
	if expected == "" {
		return Valid, nil
	}

	actual, err := Sum(path)
	if err != nil {
		return Missing, err
	}
	if !strings.EqualFold(actual, expected) {
		return Corrupt, nil
	}
	return Valid, nil
}

// Check is Verify returning ErrChecksumMismatch for anything but Valid.
func Check(path, expected string) error {
	status, err := Verify(path, expected)
	if err != nil {
		return err
	}
	if status != Valid {
		return fmt.Errorf("%w: %s is %s", ErrChecksumMismatch, path, status)
	}
	return nil
}
