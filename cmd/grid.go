package cmd

import (
	"errors"
	"fmt"

	"github.com/livingpark/ppmi-downloader/internal/adapters/render/report"
	"github.com/spf13/cobra"
)

var errUnhealthyGrid = errors.New("no healthy browser endpoint")

func newGridCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grid",
		Short: "Inspect the remote browser endpoints",
	}

	cmd.AddCommand(newGridCheckCmd(app))

	return cmd
}

func newGridCheckCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Health-check every configured browser endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := app.newService(cmd.Context(), "")
			if err != nil {
				return err
			}

			health := svc.CheckGrid(cmd.Context())
			if err := writeReport(cmd, app, report.Report{Title: "Browser grid", Grid: health}, "", asJSON); err != nil {
				return err
			}

			for _, endpoint := range health {
				if endpoint.Err == nil {
					return nil
				}
			}
			return fmt.Errorf("%w (%d checked)", errUnhealthyGrid, len(health))
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")

	return cmd
}
