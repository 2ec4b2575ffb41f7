package ports

import "github.com/livingpark/ppmi-downloader/internal/domain"

// StudyDataParser extracts the table catalog from the Study Data page HTML.
type StudyDataParser interface {
	Parse(html string) ([]domain.CatalogEntry, error)
}

// SearchCriteriaParser extracts the checkbox of every criterion offered on
// the Advanced Image Search page.
type SearchCriteriaParser interface {
	Parse(html string) ([]domain.SearchCriterion, error)
}
