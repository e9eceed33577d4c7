package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActiveThreads_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state", "chat.sqlite")
	a, err := Open(path)
	require.NoError(t, err)

	ctx := context.Background()
	got, err := a.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, a.Set(ctx, "p1", "t1"))
	require.NoError(t, a.Set(ctx, "p1", "t2"))
	require.NoError(t, a.Set(ctx, "p2", "t2"))
	require.NoError(t, a.Close())

	// Survives reopening.
	a, err = Open(path)
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	got, err = a.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "t2", got)

	require.NoError(t, a.ForgetThread(ctx, "t2"))
	got, err = a.Get(ctx, "p2")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, a.Set(ctx, "p3", "t9"))
	require.NoError(t, a.Set(ctx, "p3", ""))
	got, err = a.Get(ctx, "p3")
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.Error(t, a.Set(ctx, "", "t1"))
}
