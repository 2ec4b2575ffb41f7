package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/livingpark/ppmi-downloader/internal/adapters/render/report"
	"github.com/livingpark/ppmi-downloader/internal/application"
	"github.com/livingpark/ppmi-downloader/internal/domain"
	"github.com/spf13/cobra"
)

type partJSON struct {
	Index int    `json:"index"`
	URL   string `json:"url"`
	Error string `json:"error"`
}

type imagingJSON struct {
	Archives []string   `json:"archives"`
	Covered  []int      `json:"covered"`
	Missing  []int      `json:"missing"`
	Failed   []partJSON `json:"failed"`
	Complete bool       `json:"complete"`
}

type tableJSON struct {
	Name       string `json:"name"`
	CheckboxID string `json:"checkbox_id"`
	RealName   string `json:"real_name,omitempty"`
}

type criterionJSON struct {
	Name       string `json:"name"`
	CheckboxID string `json:"checkbox_id"`
}

type endpointJSON struct {
	Address string `json:"address"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

type reportJSON struct {
	Files    []string        `json:"files,omitempty"`
	Imaging  *imagingJSON    `json:"imaging,omitempty"`
	Tables   []tableJSON     `json:"tables,omitempty"`
	Criteria []criterionJSON `json:"search_criteria,omitempty"`
	Grid     []endpointJSON  `json:"grid,omitempty"`
}

func writeReport(cmd *cobra.Command, app *app, r report.Report, dir string, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(toJSON(r))
	}

	rendered, err := app.renderer(r, report.RenderOptions{Dir: dir, MaxIDs: 20})
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}

func toJSON(r report.Report) reportJSON {
	out := reportJSON{Files: r.Files}
	if r.Imaging != nil {
		out.Imaging = imagingToJSON(r.Imaging)
	}
	for _, entry := range r.Tables {
		out.Tables = append(out.Tables, tableJSON{Name: entry.Name, CheckboxID: entry.CheckboxID, RealName: entry.RealName})
	}
	for _, criterion := range r.Criteria {
		out.Criteria = append(out.Criteria, criterionJSON{Name: criterion.Name, CheckboxID: criterion.CheckboxID})
	}
	for _, health := range r.Grid {
		out.Grid = append(out.Grid, endpointToJSON(health))
	}
	return out
}

func imagingToJSON(result *domain.ImagingResult) *imagingJSON {
	out := &imagingJSON{
		Archives: result.Archives,
		Covered:  result.Covered,
		Missing:  result.Missing,
		Failed:   make([]partJSON, 0, len(result.Failed)),
		Complete: result.Complete(),
	}
	for _, part := range result.Failed {
		failed := partJSON{Index: part.Index, URL: part.URL}
		if part.Err != nil {
			failed.Error = part.Err.Error()
		}
		out.Failed = append(out.Failed, failed)
	}
	return out
}

func endpointToJSON(health application.EndpointHealth) endpointJSON {
	out := endpointJSON{Address: health.Address, Healthy: health.Err == nil}
	if health.Err != nil {
		out.Error = health.Err.Error()
	}
	return out
}
