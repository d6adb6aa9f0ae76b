package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCatalogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "books.json")
	data := `[
		{"name": "Alpha", "author": "Ann", "description": "first", "price": 12.5, "image": "a.png"},
		{"name": "Beta", "author": "Bob", "price": 3}
	]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	books, err := LoadCatalogFile(path)
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "Alpha", books[0].Name)
	assert.Equal(t, 12.5, books[0].Price)
	assert.Empty(t, books[1].Description)
}

func TestLoadCatalogFile_Errors(t *testing.T) {
	_, err := LoadCatalogFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"not": "an array"}`), 0o600))
	_, err = LoadCatalogFile(path)
	assert.Error(t, err)
}
