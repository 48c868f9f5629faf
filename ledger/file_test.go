package ledger

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFileStore_MissingFile verifies an absent file loads as empty
func TestFileStore_MissingFile(t *testing.T) {
	s := NewFileStore(afero.NewMemMapFs(), "/nowhere/ledger.json")

	ids, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

// TestFileStore_AppendMerges verifies appends merge without duplicates
func TestFileStore_AppendMerges(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	s := NewFileStore(fs, "/data/ledger.json")

	require.NoError(t, s.Append(ctx, []string{"1", "2"}))
	require.NoError(t, s.Append(ctx, []string{"2", "3"}))

	ids, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, ids)

	data, err := afero.ReadFile(fs, "/data/ledger.json")
	require.NoError(t, err)
	assert.JSONEq(t, `["1","2","3"]`, string(data))
}

// TestFileStore_NoTempFilesLeft verifies the atomic write cleans up
func TestFileStore_NoTempFilesLeft(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	s := NewFileStore(fs, "/data/ledger.json")

	require.NoError(t, s.Append(ctx, []string{"1"}))
	require.NoError(t, s.Append(ctx, []string{"2"}))

	entries, err := afero.ReadDir(fs, "/data")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ledger.json", entries[0].Name())
}

// TestFileStore_ReadOnly verifies write failures are reported
func TestFileStore_ReadOnly(t *testing.T) {
	s := NewFileStore(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/data/ledger.json")

	err := s.Append(context.Background(), []string{"1"})
	assert.Error(t, err)
}
