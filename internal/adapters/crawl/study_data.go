// Package crawl reads checkbox catalogs off the portal's Study Data and
// Advanced Image Search pages.
package crawl

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/livingpark/ppmi-downloader/internal/domain"
	"github.com/livingpark/ppmi-downloader/internal/ports"
)

const asciiPunctuation = "!\"#$%&'()*+,./:;<=>?@[\\]^_`{|}~"

type StudyDataParser struct{}

var _ ports.StudyDataParser = StudyDataParser{}

// Parse maps every numbered table checkbox to its label. Archived tables
// are skipped.
func (StudyDataParser) Parse(html string) ([]domain.CatalogEntry, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse study data html: %w", err)
	}

	index := make(map[string]int)
	var entries []domain.CatalogEntry
	doc.Find(`input[type="checkbox"]`).Each(func(_ int, box *goquery.Selection) {
		id, ok := box.Attr("id")
		if !ok || !isDigits(id) {
			return
		}
		label := labelFor(doc, box, id)
		if label == "" || strings.Contains(label, "Archived") {
			return
		}

		entry := domain.CatalogEntry{Name: CleanName(label), CheckboxID: id}
		if i, seen := index[entry.Name]; seen {
			entries[i] = entry
			return
		}
		index[entry.Name] = len(entries)
		entries = append(entries, entry)
	})
	return entries, nil
}

func labelFor(doc *goquery.Document, box *goquery.Selection, id string) string {
	if label := strings.TrimSpace(doc.Find(fmt.Sprintf(`label[for=%q]`, id)).First().Text()); label != "" {
		return label
	}
	return strings.TrimSpace(box.Next().Text())
}

// CleanName turns a table label into the CSV file name the portal uses:
// whitespace and ASCII punctuation other than '-' become '_'.
func CleanName(label string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '-' {
			return r
		}
		if unicode.IsSpace(r) || strings.ContainsRune(asciiPunctuation, r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(label))
	return cleaned + ".csv"
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
