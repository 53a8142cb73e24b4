package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileRoundTripAndPermissions(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "tokens.json")
	f := NewFile(path, DefaultKeys())

	pair, err := f.Get(ctx)
	require.NoError(t, err)
	assert.True(t, pair.Empty())

	require.NoError(t, f.Set(ctx, Pair{Access: "T1", Refresh: "R1"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	pair, err = f.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, Pair{Access: "T1", Refresh: "R1"}, pair)

	require.NoError(t, f.Clear(ctx))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, f.Clear(ctx))
}

func TestFileCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFile(path, DefaultKeys()).Get(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
}
