package application

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeZip creates a zip archive holding the given name → content entries.
func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()

	file, err := os.Create(path)
	require.NoError(t, err)
	writer := zip.NewWriter(file)
	for name, content := range entries {
		w, err := writer.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	require.NoError(t, file.Close())
}

func TestArchivedSubjectsReadsEntryPaths(t *testing.T) {
	t.Parallel()

	archive := filepath.Join(t.TempDir(), "images.zip")
	writeZip(t, archive, map[string]string{
		"PPMI/3001/MPRAGE/2011-01-01/I1/a.dcm": "x",
		"PPMI/3001/MPRAGE/2011-01-01/I1/b.dcm": "x",
		"PPMI/3011/T1/2012-01-01/I2/a.dcm":     "x",
		"PPMI/notes/readme.txt":                "x",
		"images_metadata.csv":                  "x",
	})

	subjects, err := archivedSubjects(archive)
	require.NoError(t, err)
	assert.Equal(t, map[int]struct{}{3001: {}, 3011: {}}, subjects)
}

func TestExtractZip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archive := filepath.Join(dir, "bundle.zip")
	writeZip(t, archive, map[string]string{
		"Demographics.csv":        "PATNO\n3001\n",
		"nested/Age_at_visit.csv": "PATNO,AGE\n",
	})

	dest := filepath.Join(dir, "out")
	paths, err := extractZip(archive, dest)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dest, "Demographics.csv"),
		filepath.Join(dest, "nested", "Age_at_visit.csv"),
	}, paths)

	data, err := os.ReadFile(filepath.Join(dest, "Demographics.csv"))
	require.NoError(t, err)
	assert.Equal(t, "PATNO\n3001\n", string(data))
}

func TestExtractZipRejectsTraversal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.zip")
	writeZip(t, archive, map[string]string{"../escape.csv": "x"})

	_, err := extractZip(archive, filepath.Join(dir, "out"))
	require.ErrorIs(t, err, errUnsafeEntry)
	assert.NoFileExists(t, filepath.Join(dir, "escape.csv"))
}

func TestChunk(t *testing.T) {
	t.Parallel()

	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, chunk([]int{1, 2, 3, 4, 5}, 2))
	assert.Equal(t, [][]int{{1, 2, 3}}, chunk([]int{1, 2, 3}, 0))
	assert.Equal(t, [][]int{{1, 2, 3}}, chunk([]int{1, 2, 3}, 10))
}
