package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanctx/internal/errors"
)

func TestWriteLock_SecondWriterIsRejected(t *testing.T) {
	dir := t.TempDir()

	first := NewWriteLock(dir)
	require.NoError(t, first.TryLock())
	defer func() { _ = first.Unlock() }()

	second := NewWriteLock(dir)
	err := second.TryLock()
	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeLockHeld, amerrors.GetCode(err))
	assert.True(t, amerrors.IsRetryable(err))

	require.NoError(t, first.Unlock())
	require.NoError(t, second.TryLock())
	require.NoError(t, second.Unlock())
}

func TestWriteLock_UnlockWithoutLock(t *testing.T) {
	l := NewWriteLock(t.TempDir())
	assert.NoError(t, l.Unlock())
}
