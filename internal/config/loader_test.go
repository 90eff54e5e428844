package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_MissingFileReturnsDefaults(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "docwise.json"))

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server.Port, cfg.Server.Port)
	assert.NotEmpty(t, cfg.Retrieval.DBPath)
	assert.NotEmpty(t, cfg.Logging.File)
}

func TestLoader_LoadsFile(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "docwise.json")

	content := `{
		"server": {"port": 9000},
		"documents": {"max_documents": 5},
		"data_dir": "` + tempDir + `"
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Documents.MaxDocuments)
	// Untouched fields keep defaults
	assert.Equal(t, 4, cfg.Retrieval.TopK)
	assert.Equal(t, filepath.Join(tempDir, "index.db"), cfg.Retrieval.DBPath)
}

func TestLoader_BadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docwise.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewLoader(path).Load()
	assert.Error(t, err)
}

func TestLoader_SaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docwise.json")
	loader := NewLoader(path)

	cfg := DefaultConfig()
	cfg.Server.Port = 9100
	cfg.DataDir = filepath.Dir(path)
	require.NoError(t, loader.Save(cfg))

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 9100, loaded.Server.Port)
}
