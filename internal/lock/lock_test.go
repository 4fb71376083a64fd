package lock

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire(t *testing.T) {
	dir := t.TempDir()

	first, err := Acquire(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName), first.Path())

	_, err = Acquire(dir)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, first.Release())
	require.NoError(t, first.Release())

	second, err := Acquire(dir)
	require.NoError(t, err)
	assert.NoError(t, second.Release())
}

func TestAcquire_MissingDir(t *testing.T) {
	_, err := Acquire(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrLocked)
}
