package creds

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCredsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name        string
		fileContent string // empty means no file
		overrides   Overrides
		want        Credentials
		wantErr     error
	}{
		{
			name:        "stored values only",
			fileContent: `{"api_key": "stored-key", "album_id": "stored-album"}`,
			want:        Credentials{APIKey: "stored-key", AlbumID: "stored-album"},
		},
		{
			name:        "override api key only",
			fileContent: `{"api_key": "stored-key", "album_id": "stored-album"}`,
			overrides:   Overrides{APIKey: "override-key"},
			want:        Credentials{APIKey: "override-key", AlbumID: "stored-album"},
		},
		{
			name:        "override album only",
			fileContent: `{"api_key": "stored-key", "album_id": "stored-album"}`,
			overrides:   Overrides{AlbumID: "override-album"},
			want:        Credentials{APIKey: "stored-key", AlbumID: "override-album"},
		},
		{
			name:        "missing album id is not an error",
			fileContent: `{"api_key": "stored-key"}`,
			want:        Credentials{APIKey: "stored-key"},
		},
		{
			name:        "missing api key",
			fileContent: `{"album_id": "stored-album"}`,
			wantErr:     ErrMissingAPIKey,
		},
		{
			name:      "no file but override key",
			overrides: Overrides{APIKey: "override-key"},
			want:      Credentials{APIKey: "override-key"},
		},
		{
			name:    "no file and no overrides",
			wantErr: ErrMissingAPIKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var path string
			if tt.fileContent != "" {
				path = writeCredsFile(t, tt.fileContent)
			} else {
				path = filepath.Join(t.TempDir(), DefaultFileName)
			}

			got, err := NewStore(path).Resolve(tt.overrides)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_InvalidJSON(t *testing.T) {
	path := writeCredsFile(t, `{not json`)
	_, err := NewStore(path).Resolve(Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading credentials")
}

func TestSave_PreservesStoredValues(t *testing.T) {
	path := writeCredsFile(t, `{"api_key": "stored-key", "album_id": "stored-album"}`)
	store := NewStore(path)

	// Saving a new album id alone must not wipe the stored key.
	require.NoError(t, store.Save(Credentials{AlbumID: "new-album"}))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Credentials{APIKey: "stored-key", AlbumID: "new-album"}, got)
}

func TestSave_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", DefaultFileName)
	store := NewStore(path)

	require.NoError(t, store.Save(Credentials{APIKey: "new-key"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "new-key", got.APIKey)
}
