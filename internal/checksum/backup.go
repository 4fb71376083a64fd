package checksum

import (
	"fmt"
	"os"
	"path/filepath"

	"fmlsetup/internal/fileutil"
	"fmlsetup/internal/logging"
)

// BackupSuffix is appended to a file name to form its backup slot.
const BackupSuffix = ".backup"

// BackupPath returns the backup slot for path.
func BackupPath(path string) string {
	return path + BackupSuffix
}

// BackupSwap reconciles dir/name with its backup slot against expected.
//
// A valid backup replaces the live file; an invalid one is deleted. A live
// file that fails the digest is deleted, since the canonical copy can always
// be fetched again; a valid live file is snapshotted into the backup slot.
// Afterwards no invalid copy remains, and when any valid copy existed the live
// file is valid and the backup is an identical snapshot of it.
func BackupSwap(dir, name, expected string) error {
	live := filepath.Join(dir, name)
	backup := BackupPath(live)

	if !fileutil.IsFile(live) && !fileutil.IsFile(backup) {
		return nil
	}

	if fileutil.IsFile(backup) {
		status, err := Verify(backup, expected)
		if err != nil {
			return fmt.Errorf("verify backup %s: %w", backup, err)
		}
		if status == Valid {
			if err := fileutil.RemoveIfExists(live); err != nil {
				return err
			}
			if err := fileutil.MoveFile(backup, live); err != nil {
				return fmt.Errorf("restore backup %s: %w", backup, err)
			}
			logging.Debug("restored backup", "path", live)
		} else {
			logging.Warn("removing invalid backup", "path", backup)
			if err := os.Remove(backup); err != nil {
				return err
			}
		}
	}

	if !fileutil.IsFile(live) {
		return nil
	}

	status, err := Verify(live, expected)
	if err != nil {
		return fmt.Errorf("verify %s: %w", live, err)
	}
	if status != Valid {
		logging.Warn("modified file detected, removing", "path", live)
		return os.Remove(live)
	}

	if err := fileutil.CopyFile(live, backup); err != nil {
		return fmt.Errorf("snapshot %s: %w", live, err)
	}
	return nil
}
