package application

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/livingpark/ppmi-downloader/internal/domain"
	"github.com/livingpark/ppmi-downloader/internal/portal"
)

const collectionPrefix = "images-"

// RequestCatalog turns validated requests into portal action plans.
type RequestCatalog struct {
	site    portal.Site
	tables  *domain.Catalog
	newName func() string
}

type CatalogOption func(*RequestCatalog)

// WithCollectionNames overrides the generator of image-collection name tokens.
func WithCollectionNames(next func() string) CatalogOption {
	return func(c *RequestCatalog) {
		c.newName = next
	}
}

func NewRequestCatalog(site portal.Site, tables *domain.Catalog, opts ...CatalogOption) *RequestCatalog {
	if tables == nil {
		tables = domain.DefaultCatalog()
	}
	c := &RequestCatalog{
		site:    site,
		tables:  tables,
		newName: func() string { return uuid.NewString()[:8] },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RequestCatalog) Tables() []domain.CatalogEntry {
	return c.tables.Entries()
}

// Resolve maps a request to its action plan. It performs no I/O.
func (c *RequestCatalog) Resolve(req domain.Request) (domain.ActionPlan, error) {
	switch r := req.(type) {
	case domain.MetadataRequest:
		return c.metadataPlan(r)
	case domain.T1InfoRequest:
		return c.t1InfoPlan(), nil
	case domain.ImagingRequest:
		return c.imagingPlan(r)
	default:
		return domain.ActionPlan{}, fmt.Errorf("%w: request kind %T", domain.ErrUnknownRequest, req)
	}
}

func (c *RequestCatalog) metadataPlan(req domain.MetadataRequest) (domain.ActionPlan, error) {
	names := req.Tables()
	entries := make([]domain.CatalogEntry, 0, len(names))
	unknown := make([]string, 0)
	for _, name := range names {
		entry, ok := c.tables.Lookup(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		entries = append(entries, entry)
	}
	if len(unknown) > 0 {
		return domain.ActionPlan{}, fmt.Errorf("%w: metadata tables not in catalog: %s", domain.ErrUnknownRequest, strings.Join(unknown, ", "))
	}

	steps := c.studyDataSteps()
	for _, entry := range entries {
		steps = append(steps, domain.Action{
			Op:          domain.OpCheck,
			Target:      domain.ID(entry.CheckboxID),
			Description: entry.Name,
		})
	}
	steps = append(steps, domain.Action{Op: domain.OpTrigger, Target: c.site.StudyData.Download, Description: "download study data"})

	artifact := domain.ArtifactSpec{Extensions: []string{".csv"}}
	if len(entries) > 1 {
		artifact.Extensions = []string{".csv", ".zip"}
	}

	return domain.ActionPlan{
		Kind:     domain.RequestKindMetadata,
		Label:    strings.Join(names, ","),
		Steps:    steps,
		Artifact: artifact,
		Tables:   entries,
	}, nil
}

// studyDataSteps opens the Study Data page with every table listed.
func (c *RequestCatalog) studyDataSteps() []domain.Action {
	site := c.site
	return []domain.Action{
		{Op: domain.OpNavigate, URL: site.HomeURL},
		{Op: domain.OpClick, Target: site.Menu.Download, Until: domain.ElementPresent(site.Menu.DownloadActive), Description: "Download menu"},
		{Op: domain.OpClick, Target: site.Menu.StudyData, Until: domain.URLHasPrefix(site.StudyDataURL), Description: "Study Data"},
		{Op: domain.OpClick, Target: site.StudyData.AllTables, Until: domain.ElementPresent(site.StudyData.Download), Description: "ALL"},
	}
}

func (c *RequestCatalog) advancedSearchSteps() []domain.Action {
	site := c.site
	return []domain.Action{
		{Op: domain.OpNavigate, URL: site.HomeURL},
		{Op: domain.OpClick, Target: site.Menu.Search, Until: domain.ElementPresent(site.Menu.SearchActive), Description: "Search menu"},
		{Op: domain.OpClick, Target: site.Menu.AdvancedSearch, Until: domain.URLHasQuery(portal.AdvancedSearchQuery()), Description: "Advanced Image Search"},
	}
}

func (c *RequestCatalog) t1InfoPlan() domain.ActionPlan {
	search := c.site.ImageSearch
	steps := c.advancedSearchSteps()
	steps = append(steps, domain.Action{Op: domain.OpCheck, Target: search.ThreeDProtocol, Description: "3D acquisition"})
	for _, column := range c.site.T1InfoColumns {
		steps = append(steps, domain.Action{Op: domain.OpCheck, Target: column})
	}
	steps = append(steps,
		domain.Action{Op: domain.OpClick, Target: search.Search, Until: domain.ElementPresent(search.CSVDownload), Description: "search"},
		domain.Action{Op: domain.OpTrigger, Target: search.CSVDownload, Description: "CSV download"},
	)

	return domain.ActionPlan{
		Kind:     domain.RequestKindT1Info,
		Label:    "3D T1 imaging info",
		Steps:    steps,
		Artifact: domain.ArtifactSpec{Extensions: []string{".csv"}},
	}
}

func (c *RequestCatalog) imagingPlan(req domain.ImagingRequest) (domain.ActionPlan, error) {
	search := c.site.ImageSearch
	export := c.site.ImageExport

	formatButton := export.DICOMButton
	switch req.Format() {
	case domain.FormatDICOM:
	case domain.FormatNIfTI:
		formatButton = export.NIfTIButton
	default:
		return domain.ActionPlan{}, fmt.Errorf("%w: image format %q", domain.ErrUnknownRequest, req.Format())
	}

	subjects := req.SubjectIDs()
	ids := make([]string, 0, len(subjects))
	for _, id := range subjects {
		ids = append(ids, strconv.Itoa(id))
	}
	collection := collectionPrefix + c.newName()

	steps := c.advancedSearchSteps()
	steps = append(steps,
		domain.Action{Op: domain.OpFill, Target: search.SubjectIDs, Value: strings.Join(ids, ","), Description: "subject ids"},
		domain.Action{Op: domain.OpClick, Target: search.Search, Until: domain.ElementPresent(search.SelectAll), Description: "search"},
		domain.Action{Op: domain.OpCheck, Target: search.SelectAll, Description: "select all results"},
		domain.Action{Op: domain.OpClick, Target: search.AddToCollection, Until: domain.ElementPresent(search.CollectionName), Description: "add to collection"},
		domain.Action{Op: domain.OpFill, Target: search.CollectionName, Value: collection, Description: "collection name"},
		domain.Action{Op: domain.OpClick, Target: search.ConfirmAdd, Until: domain.ElementPresent(export.Export), Description: "confirm collection"},
		domain.Action{Op: domain.OpClick, Target: export.Export, Until: domain.ElementPresent(export.SelectAll), Description: "export collection"},
		domain.Action{Op: domain.OpCheck, Target: export.SelectAll, Description: "select all images"},
		domain.Action{Op: domain.OpClick, Target: formatButton, Description: string(req.Format()) + " format"},
		domain.Action{Op: domain.OpTrigger, Target: export.Download, Description: "download collection"},
	)

	return domain.ActionPlan{
		Kind:     domain.RequestKindImaging,
		Label:    collection,
		Steps:    steps,
		Artifact: domain.ArtifactSpec{Extensions: []string{".zip"}, MultiPart: true},
		Subjects: subjects,
	}, nil
}
