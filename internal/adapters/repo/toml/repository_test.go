package toml

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/livingpark/ppmi-downloader/internal/domain"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T, catalogPath string) *Repository {
	t.Helper()
	config := viper.New()
	config.Set("catalog.path", catalogPath)

	repo, err := NewRepository(config)
	require.NoError(t, err)
	return repo
}

func TestRepositoryRoundTrip(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t, filepath.Join(t.TempDir(), "catalog.toml"))
	entries := []domain.CatalogEntry{
		{Name: "Demographics.csv", CheckboxID: "2544"},
		{Name: "Primary_Clinical_Diagnosis.csv", CheckboxID: "101", RealName: "Primary_Clinical_Diagnosis_16Feb2023.csv"},
	}

	require.NoError(t, repo.Save(context.Background(), entries))

	got, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}

func TestRepositorySaveReplacesCatalog(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t, filepath.Join(t.TempDir(), "catalog.toml"))
	require.NoError(t, repo.Save(context.Background(), []domain.CatalogEntry{{Name: "Old.csv", CheckboxID: "1"}}))
	require.NoError(t, repo.Save(context.Background(), []domain.CatalogEntry{{Name: "New.csv", CheckboxID: "2"}}))

	got, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.CatalogEntry{{Name: "New.csv", CheckboxID: "2"}}, got)
}

func TestRepositoryCriteriaAndTablesShareTheFile(t *testing.T) {
	t.Parallel()

	catalogPath := filepath.Join(t.TempDir(), "catalog.toml")
	repo := newTestRepository(t, catalogPath)
	tables := []domain.CatalogEntry{{Name: "Demographics.csv", CheckboxID: "2544"}}
	criteria := []domain.SearchCriterion{
		{Name: "Research Group", CheckboxID: "RESEARCH_GROUP_CHECKBOX"},
		{Name: "Weighting", CheckboxID: "imgProtocol_checkBox1.Weighting"},
	}

	require.NoError(t, repo.Save(context.Background(), tables))
	require.NoError(t, repo.SaveCriteria(context.Background(), criteria))
	require.NoError(t, repo.Save(context.Background(), tables))

	gotCriteria, err := repo.LoadCriteria(context.Background())
	require.NoError(t, err)
	assert.Equal(t, criteria, gotCriteria)

	gotTables, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tables, gotTables)

	data, err := os.ReadFile(catalogPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[[search_criteria]]")
}

func TestRepositoryLoadCriteriaBeforeCrawl(t *testing.T) {
	t.Parallel()

	_, err := newTestRepository(t, filepath.Join(t.TempDir(), "catalog.toml")).LoadCriteria(context.Background())
	require.ErrorIs(t, err, domain.ErrCatalogMissing)
}

func TestRepositoryMissingFileReportsCatalogMissing(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t, filepath.Join(t.TempDir(), "missing", "catalog.toml"))

	_, err := repo.Load(context.Background())
	require.ErrorIs(t, err, domain.ErrCatalogMissing)
}

func TestRepositorySaveCreatesDefaultPathAndEnforcesPermissions(t *testing.T) {
	homeDir := t.TempDir()
	t.Setenv("HOME", homeDir)

	repo, err := NewRepository(viper.New())
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), []domain.CatalogEntry{{Name: "Demographics.csv", CheckboxID: "2544"}}))

	catalogPath := filepath.Join(homeDir, ".ppmi", "catalog.toml")
	assert.Equal(t, catalogPath, repo.Path())
	info, err := os.Stat(catalogPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	leftovers, err := filepath.Glob(filepath.Join(homeDir, ".ppmi", ".catalog-*.toml.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestRepositorySerializedTOML(t *testing.T) {
	t.Parallel()

	catalogPath := filepath.Join(t.TempDir(), "catalog.toml")
	repo := newTestRepository(t, catalogPath)
	repo.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }

	require.NoError(t, repo.Save(context.Background(), []domain.CatalogEntry{{Name: "Demographics.csv", CheckboxID: "2544"}}))

	data, err := os.ReadFile(catalogPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "version = 1")
	assert.Contains(t, string(data), "updated_at")
	assert.Contains(t, string(data), "2026-03-01T09:00:00Z")
	assert.Contains(t, string(data), "[[tables]]")
	assert.NotContains(t, string(data), "real_name")
}

func TestRepositoryReadsHandWrittenCatalog(t *testing.T) {
	t.Parallel()

	catalogPath := filepath.Join(t.TempDir(), "catalog.toml")
	require.NoError(t, os.WriteFile(catalogPath, []byte(strings.Join([]string{
		"[[tables]]",
		`name = "Demographics.csv"`,
		`checkbox_id = "2544"`,
		"",
	}, "\n")), 0o600))

	got, err := newTestRepository(t, catalogPath).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.CatalogEntry{{Name: "Demographics.csv", CheckboxID: "2544"}}, got)
}

func TestRepositoryMalformedTOMLReturnsError(t *testing.T) {
	t.Parallel()

	catalogPath := filepath.Join(t.TempDir(), "catalog.toml")
	require.NoError(t, os.WriteFile(catalogPath, []byte("tables = ["), 0o600))

	_, err := newTestRepository(t, catalogPath).Load(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "decode catalog file")
}

func TestRepositoryFutureSchemaVersionReturnsError(t *testing.T) {
	t.Parallel()

	catalogPath := filepath.Join(t.TempDir(), "catalog.toml")
	require.NoError(t, os.WriteFile(catalogPath, []byte("version = 999\ntables = []\n"), 0o600))

	_, err := newTestRepository(t, catalogPath).Load(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "unsupported catalog schema version")
}

func TestRepositorySaveCanceledContextReturnsContextError(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t, filepath.Join(t.TempDir(), "catalog.toml"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := repo.Save(ctx, []domain.CatalogEntry{{Name: "Demographics.csv", CheckboxID: "2544"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
