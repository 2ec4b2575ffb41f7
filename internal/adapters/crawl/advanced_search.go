package crawl

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/livingpark/ppmi-downloader/internal/domain"
	"github.com/livingpark/ppmi-downloader/internal/ports"
)

type AdvancedSearchParser struct{}

var _ ports.SearchCriteriaParser = AdvancedSearchParser{}

// Parse maps the label of every checkbox on the Advanced Image Search page
// to its id. Labels are kept as displayed; unlabelled boxes are skipped.
func (AdvancedSearchParser) Parse(html string) ([]domain.SearchCriterion, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse advanced search html: %w", err)
	}

	index := make(map[string]int)
	var criteria []domain.SearchCriterion
	doc.Find(`input[type="checkbox"]`).Each(func(_ int, box *goquery.Selection) {
		id, ok := box.Attr("id")
		if !ok || strings.TrimSpace(id) == "" {
			return
		}
		name := strings.Join(strings.Fields(labelFor(doc, box, id)), " ")
		if name == "" {
			return
		}

		criterion := domain.SearchCriterion{Name: name, CheckboxID: id}
		if i, seen := index[name]; seen {
			criteria[i] = criterion
			return
		}
		index[name] = len(criteria)
		criteria = append(criteria, criterion)
	})
	return criteria, nil
}
