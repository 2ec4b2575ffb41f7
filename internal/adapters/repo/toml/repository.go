package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/livingpark/ppmi-downloader/internal/domain"
	"github.com/livingpark/ppmi-downloader/internal/ports"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	catalogPathKey    = "catalog.path"
	catalogFileMode   = 0o600
	catalogDirMode    = 0o700
	catalogConfigDir  = ".ppmi"
	catalogConfigFile = "catalog.toml"
	tempFilePattern   = ".catalog-*.toml.tmp"
)

// Repository persists the crawled study-data catalog and the Advanced Image
// Search criteria in one TOML file.
type Repository struct {
	catalogPath string
	mu          *sync.RWMutex
	now         func() time.Time
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var (
	_ ports.CatalogRepository        = (*Repository)(nil)
	_ ports.SearchCriteriaRepository = (*Repository)(nil)
)

func NewRepository(cfg *viper.Viper) (*Repository, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	if !cfg.IsSet(catalogPathKey) {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		cfg.SetDefault(catalogPathKey, filepath.Join(homeDir, catalogConfigDir, catalogConfigFile))
	}

	catalogPath := cfg.GetString(catalogPathKey)
	if catalogPath == "" {
		return nil, errors.New("catalog path is empty")
	}
	catalogPath, err := normalizeCatalogPath(catalogPath)
	if err != nil {
		return nil, err
	}

	return &Repository{catalogPath: catalogPath, mu: lockForPath(catalogPath), now: time.Now}, nil
}

func (r *Repository) Path() string {
	return r.catalogPath
}

// Load returns the stored entries, or domain.ErrCatalogMissing before the
// first crawl.
func (r *Repository) Load(ctx context.Context) ([]domain.CatalogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return nil, err
	}

	entries := make([]domain.CatalogEntry, 0, len(file.Tables))
	for _, table := range file.Tables {
		entries = append(entries, fromSchema(table))
	}

	return entries, nil
}

// Save replaces the stored tables with entries. Stored search criteria are
// kept.
func (r *Repository) Save(ctx context.Context, entries []domain.CatalogEntry) error {
	return r.update(ctx, func(file *fileSchema) {
		file.Tables = make([]tableSchema, 0, len(entries))
		for _, entry := range entries {
			file.Tables = append(file.Tables, toSchema(entry))
		}
	})
}

// LoadCriteria returns the stored search criteria, or domain.ErrCatalogMissing
// before the first crawl of either page.
func (r *Repository) LoadCriteria(ctx context.Context) ([]domain.SearchCriterion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return nil, err
	}

	criteria := make([]domain.SearchCriterion, 0, len(file.SearchCriteria))
	for _, criterion := range file.SearchCriteria {
		criteria = append(criteria, domain.SearchCriterion{Name: criterion.Name, CheckboxID: criterion.CheckboxID})
	}
	return criteria, nil
}

// SaveCriteria replaces the stored search criteria. Stored tables are kept.
func (r *Repository) SaveCriteria(ctx context.Context, criteria []domain.SearchCriterion) error {
	return r.update(ctx, func(file *fileSchema) {
		file.SearchCriteria = make([]criterionSchema, 0, len(criteria))
		for _, criterion := range criteria {
			file.SearchCriteria = append(file.SearchCriteria, criterionSchema{Name: criterion.Name, CheckboxID: criterion.CheckboxID})
		}
	})
}

// update rewrites the file with change applied to its current content. An
// unreadable file is replaced as if it were empty.
func (r *Repository) update(ctx context.Context, change func(*fileSchema)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		file = fileSchema{}
	}
	change(&file)
	file.UpdatedAt = r.now().UTC().Format(time.RFC3339)

	if err := ctx.Err(); err != nil {
		return err
	}

	return r.writeSchema(file)
}

func (r *Repository) readSchema() (fileSchema, error) {
	data, err := os.ReadFile(r.catalogPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileSchema{}, domain.ErrCatalogMissing
		}
		return fileSchema{}, fmt.Errorf("read catalog file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode catalog file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return fileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}

func normalizeCatalogPath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve catalog path: %w", err)
	}

	return filepath.Clean(absPath), nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}

func (r *Repository) writeSchema(file fileSchema) error {
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(r.catalogPath), catalogDirMode); err != nil {
		return fmt.Errorf("create catalog directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode catalog file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(r.catalogPath), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp catalog file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp catalog file: %w", err)
	}

	if err := tempFile.Chmod(catalogFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp catalog file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp catalog file: %w", err)
	}

	if err := os.Rename(tempName, r.catalogPath); err != nil {
		return fmt.Errorf("replace catalog file: %w", err)
	}

	cleanup = false
	return nil
}

func toSchema(entry domain.CatalogEntry) tableSchema {
	return tableSchema{Name: entry.Name, CheckboxID: entry.CheckboxID, RealName: entry.RealName}
}

func fromSchema(table tableSchema) domain.CatalogEntry {
	return domain.CatalogEntry{Name: table.Name, CheckboxID: table.CheckboxID, RealName: table.RealName}
}
