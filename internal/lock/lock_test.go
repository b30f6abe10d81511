package lock

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/meshpack/internal/foundation/errors"
)

func TestAcquireExclusive(t *testing.T) {
	dir := t.TempDir()

	first, err := Acquire(dir)
	require.NoError(t, err)

	_, err = Acquire(dir)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, ErrLocked))
	assert.True(t, errors.HasCategory(err, errors.CategoryRuntime))

	require.NoError(t, first.Release())
	require.NoError(t, first.Release())

	second, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, second.Release())
}

func TestAcquireCreatesStateDir(t *testing.T) {
	dir := t.TempDir() + "/nested/state"
	l, err := Acquire(dir)
	require.NoError(t, err)
	defer l.Release()
	assert.FileExists(t, dir+"/"+FileName)
}
