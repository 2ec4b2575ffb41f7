package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/livingpark/ppmi-downloader/internal/adapters/render/report"
	"github.com/livingpark/ppmi-downloader/internal/application"
	"github.com/livingpark/ppmi-downloader/internal/domain"
	"github.com/spf13/cobra"
)

// downloadFlags are shared by every command that retrieves files.
type downloadFlags struct {
	dir    string
	asJSON bool
}

func (f *downloadFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.dir, "dir", "", "Destination directory (default: download.dir from config)")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "Output JSON")
}

func (f *downloadFlags) destination(app *app) string {
	if f.dir != "" {
		return f.dir
	}
	return app.cfg.DownloadDir
}

func newMetadataCmd(app *app) *cobra.Command {
	var flags downloadFlags

	cmd := &cobra.Command{
		Use:   "metadata NAME...",
		Short: "Download study-data tables as CSV files",
		Long:  "Download the named study-data tables (for example Demographics.csv) and store each one under its requested name.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.newService(cmd.Context(), flags.dir)
			if err != nil {
				return err
			}

			paths, err := runWithSpinner(cmd.Context(), cmd.ErrOrStderr(), "Downloading study data...", flags.asJSON, func(ctx context.Context) ([]string, error) {
				return svc.DownloadMetadata(ctx, args)
			})
			if err != nil {
				return err
			}

			return writeReport(cmd, app, report.Report{Title: "Study data", Files: paths}, flags.destination(app), flags.asJSON)
		},
	}
	flags.register(cmd)

	return cmd
}

func newT1InfoCmd(app *app) *cobra.Command {
	var flags downloadFlags

	cmd := &cobra.Command{
		Use:   "t1-info",
		Short: "Download the 3D T1 acquisition table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := app.newService(cmd.Context(), flags.dir)
			if err != nil {
				return err
			}

			path, err := runWithSpinner(cmd.Context(), cmd.ErrOrStderr(), "Searching 3D T1 scans...", flags.asJSON, svc.Download3DT1Info)
			if err != nil {
				return err
			}

			return writeReport(cmd, app, report.Report{Title: "3D T1 scans", Files: []string{path}}, flags.destination(app), flags.asJSON)
		},
	}
	flags.register(cmd)

	return cmd
}

func newImagingCmd(app *app) *cobra.Command {
	var flags downloadFlags
	var format string
	var batchSize int

	cmd := &cobra.Command{
		Use:   "imaging SUBJECT_ID...",
		Short: "Download imaging archives for the given subjects",
		Long:  "Download the images of the given subject IDs. Subjects the portal has no images for are listed as missing; the command fails only when nothing could be downloaded.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseSubjectIDs(args)
			if err != nil {
				return err
			}
			imageFormat, err := domain.ParseImageFormat(format)
			if err != nil {
				return err
			}
			if batchSize < 0 {
				return fmt.Errorf("batch size must be >= 0, got %d", batchSize)
			}

			svc, err := app.newService(cmd.Context(), flags.dir)
			if err != nil {
				return err
			}

			result, err := runWithSpinner(cmd.Context(), cmd.ErrOrStderr(), "Downloading images...", flags.asJSON, func(ctx context.Context) (*domain.ImagingResult, error) {
				if batchSize > 0 {
					return svc.DownloadImagingBatches(ctx, ids, imageFormat, batchSize)
				}
				return svc.DownloadImagingData(ctx, ids, imageFormat)
			})
			if err != nil {
				return err
			}

			return writeReport(cmd, app, report.Report{Title: "Imaging data", Imaging: result}, flags.destination(app), flags.asJSON)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&format, "format", string(domain.FormatDICOM), "Image format (dicom|nifti)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Subjects per export job, spread over the grid (0 = one job)")

	cmd.AddCommand(newImagingFindCmd(app))

	return cmd
}

func newImagingFindCmd(app *app) *cobra.Command {
	var dir string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "find SUBJECT_ID EVENT_ID DESCRIPTION",
		Short: "Locate a downloaded NIfTI file by subject, visit and protocol",
		Long:  "Locate the .nii file of an extracted NIfTI collection for a subject, a study-data event ID (SC, BL, V04...) or visit name, and a protocol description such as \"MPRAGE GRAPPA\".",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			subjectID, err := strconv.Atoi(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("invalid subject id %q: %w", args[0], err)
			}
			if dir == "" {
				dir = filepath.Join(app.cfg.DownloadDir, "PPMI")
			}

			path, err := application.NewNiftiFinder(dir).Find(subjectID, args[1], args[2])
			if err != nil {
				return err
			}

			return writeReport(cmd, app, report.Report{Title: "NIfTI file", Files: []string{path}}, "", asJSON)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Extracted collection directory holding the PPMI_*.xml files (default: <download.dir>/PPMI)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")

	return cmd
}

// parseSubjectIDs accepts IDs as separate arguments or comma separated.
func parseSubjectIDs(args []string) ([]int, error) {
	var ids []int
	for _, arg := range args {
		for _, field := range strings.Split(arg, ",") {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			id, err := strconv.Atoi(field)
			if err != nil {
				return nil, fmt.Errorf("invalid subject id %q: %w", field, err)
			}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, errors.New("no subject ids given")
	}
	return ids, nil
}
