package checksum

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goodContent = "pristine jar"

func expectedSum(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "probe")
	require.NoError(t, os.WriteFile(path, []byte(goodContent), 0644))
	sum, err := Sum(path)
	require.NoError(t, err)
	return sum
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestSum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	write(t, path, "")

	sum, err := Sum(path)
	require.NoError(t, err)
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", sum)
}

func TestVerify(t *testing.T) {
	dir := t.TempDir()
	sum := expectedSum(t)

	good := filepath.Join(dir, "good")
	bad := filepath.Join(dir, "bad")
	write(t, good, goodContent)
	write(t, bad, "tampered")

	tests := map[string]struct {
		path     string
		expected string
		want     Status
	}{
		"valid":              {path: good, expected: sum, want: Valid},
		"valid upper case":   {path: good, expected: strings.ToUpper(sum), want: Valid},
		"corrupt":            {path: bad, expected: sum, want: Corrupt},
		"missing":            {path: filepath.Join(dir, "none"), expected: sum, want: Missing},
		"directory":          {path: dir, expected: sum, want: Missing},
		"no expected digest": {path: bad, expected: "", want: Valid},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := Verify(tc.path, tc.expected)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	write(t, path, "tampered")

	err := Check(path, expectedSum(t))
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestBackupSwap(t *testing.T) {
	sum := expectedSum(t)

	tests := map[string]struct {
		live, backup   *string
		wantLive       bool
		wantBackup     bool
		wantLiveIsGood bool
	}{
		"nothing exists": {},
		"valid live only": {
			live:     strPtr(goodContent),
			wantLive: true, wantBackup: true, wantLiveIsGood: true,
		},
		"corrupt live only": {
			live: strPtr("user modified"),
		},
		"valid backup restores corrupt live": {
			live: strPtr("user modified"), backup: strPtr(goodContent),
			wantLive: true, wantBackup: true, wantLiveIsGood: true,
		},
		"valid backup restores missing live": {
			backup:   strPtr(goodContent),
			wantLive: true, wantBackup: true, wantLiveIsGood: true,
		},
		"invalid backup dropped, valid live kept": {
			live: strPtr(goodContent), backup: strPtr("garbage"),
			wantLive: true, wantBackup: true, wantLiveIsGood: true,
		},
		"both invalid": {
			live: strPtr("user modified"), backup: strPtr("garbage"),
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			live := filepath.Join(dir, "minecraft.jar")
			backup := BackupPath(live)
			if tc.live != nil {
				write(t, live, *tc.live)
			}
			if tc.backup != nil {
				write(t, backup, *tc.backup)
			}

			require.NoError(t, BackupSwap(dir, "minecraft.jar", sum))

			assert.Equal(t, tc.wantLive, exists(live), "live")
			assert.Equal(t, tc.wantBackup, exists(backup), "backup")
			if tc.wantLiveIsGood {
				assert.Equal(t, goodContent, read(t, live))
				assert.Equal(t, read(t, live), read(t, backup))
			}
			for _, p := range []string{live, backup} {
				if exists(p) {
					status, err := Verify(p, sum)
					require.NoError(t, err)
					assert.Equal(t, Valid, status, "no invalid copy may survive: %s", p)
				}
			}
		})
	}
}

func TestBackupSwap_Idempotent(t *testing.T) {
	sum := expectedSum(t)
	dir := t.TempDir()
	live := filepath.Join(dir, "server.jar")
	write(t, live, goodContent)

	require.NoError(t, BackupSwap(dir, "server.jar", sum))
	require.NoError(t, BackupSwap(dir, "server.jar", sum))

	assert.Equal(t, goodContent, read(t, live))
	assert.Equal(t, goodContent, read(t, BackupPath(live)))
}

func strPtr(s string) *string { return &s }

