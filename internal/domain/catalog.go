package domain

import (
	"sort"
	"strings"
)

// CatalogEntry maps a study-data table to its checkbox on the portal's
// Study Data page. RealName is the file name the portal actually ships when
// it differs from the crawled name.
type CatalogEntry struct {
	Name       string
	CheckboxID string
	RealName   string
}

// SearchCriterion is one checkbox of the Advanced Image Search form.
type SearchCriterion struct {
	Name       string
	CheckboxID string
}

// FileName is the name the downloaded CSV is expected to carry.
func (e CatalogEntry) FileName() string {
	if e.RealName != "" {
		return e.RealName
	}
	return e.Name
}

type Catalog struct {
	entries map[string]CatalogEntry
}

func NewCatalog(entries ...CatalogEntry) *Catalog {
	c := &Catalog{entries: make(map[string]CatalogEntry, len(entries))}
	c.Merge(entries...)
	return c
}

// DefaultCatalog holds the tables known without a crawl.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		CatalogEntry{Name: "Demographics.csv", CheckboxID: "2544"},
		CatalogEntry{Name: "Age_at_visit.csv", CheckboxID: "2834"},
		CatalogEntry{Name: "REM_Sleep_Behavior_Disorder_Questionnaire.csv", CheckboxID: "2472"},
		CatalogEntry{Name: "Magnetic_Resonance_Imaging__MRI_.csv", CheckboxID: "2655"},
	)
}

// Merge adds entries, replacing any with the same name.
func (c *Catalog) Merge(entries ...CatalogEntry) {
	for _, entry := range entries {
		name := strings.TrimSpace(entry.Name)
		if name == "" || strings.TrimSpace(entry.CheckboxID) == "" {
			continue
		}
		entry.Name = name
		c.entries[name] = entry
	}
}

// Lookup finds an entry by crawled name or by real file name.
func (c *Catalog) Lookup(name string) (CatalogEntry, bool) {
	name = strings.TrimSpace(name)
	if entry, ok := c.entries[name]; ok {
		return entry, true
	}
	for _, entry := range c.entries {
		if entry.RealName != "" && entry.RealName == name {
			return entry, true
		}
	}
	return CatalogEntry{}, false
}

func (c *Catalog) Entries() []CatalogEntry {
	entries := make([]CatalogEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

func (c *Catalog) Len() int {
	return len(c.entries)
}
