package ports

import (
	"context"

	"github.com/livingpark/ppmi-downloader/internal/domain"
)

type CatalogRepository interface {
	Load(ctx context.Context) ([]domain.CatalogEntry, error)
	Save(ctx context.Context, entries []domain.CatalogEntry) error
}

type SearchCriteriaRepository interface {
	LoadCriteria(ctx context.Context) ([]domain.SearchCriterion, error)
	SaveCriteria(ctx context.Context, criteria []domain.SearchCriterion) error
}
