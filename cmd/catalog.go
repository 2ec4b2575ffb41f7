package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/livingpark/ppmi-downloader/internal/adapters/render/report"
	"github.com/livingpark/ppmi-downloader/internal/domain"
	"github.com/spf13/cobra"
)

const (
	catalogTitle  = "Study data catalog"
	criteriaTitle = "Advanced search criteria"
)

func newCatalogCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and refresh the study-data table catalog",
	}

	cmd.AddCommand(newCatalogListCmd(app), newCatalogCrawlCmd(app))

	return cmd
}

func newCatalogListCmd(app *app) *cobra.Command {
	var asJSON bool
	var search bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the tables metadata requests can name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if search {
				criteria, err := app.criteriaRepo.LoadCriteria(cmd.Context())
				if errors.Is(err, domain.ErrCatalogMissing) || (err == nil && len(criteria) == 0) {
					return errors.New("no search criteria saved; run `ppmi catalog crawl --search` first")
				}
				if err != nil {
					return fmt.Errorf("load search criteria: %w", err)
				}
				return writeReport(cmd, app, report.Report{Title: criteriaTitle, Criteria: criteria}, "", asJSON)
			}

			tables, err := app.loadTables(cmd.Context())
			if err != nil {
				return err
			}

			return writeReport(cmd, app, report.Report{Title: catalogTitle, Tables: tables.Entries()}, "", asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	cmd.Flags().BoolVar(&search, "search", false, "List the saved Advanced Image Search criteria instead")

	return cmd
}

func newCatalogCrawlCmd(app *app) *cobra.Command {
	var asJSON bool
	var search bool

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Read every table offered on the portal and save the catalog",
		Long:  "Read every table offered on the Study Data page and save the catalog. With --search, read the criteria checkboxes of the Advanced Image Search page instead.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := app.newService(cmd.Context(), "")
			if err != nil {
				return err
			}

			if search {
				criteria, err := runWithSpinner(cmd.Context(), cmd.ErrOrStderr(), "Crawling advanced search...", asJSON, svc.CrawlSearchCriteria)
				if err != nil {
					return err
				}
				return writeReport(cmd, app, report.Report{Title: criteriaTitle, Criteria: criteria}, "", asJSON)
			}

			crawled, err := runWithSpinner(cmd.Context(), cmd.ErrOrStderr(), "Crawling study data...", asJSON, func(ctx context.Context) ([]domain.CatalogEntry, error) {
				return svc.CrawlCatalog(ctx)
			})
			if err != nil {
				return err
			}

			return writeReport(cmd, app, report.Report{Title: catalogTitle, Tables: crawled}, "", asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	cmd.Flags().BoolVar(&search, "search", false, "Crawl the Advanced Image Search criteria instead of the tables")

	return cmd
}
