package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "ppmi",
		Short:         "PPMI downloader (ppmi): fetch study data and images from LONI IDA",
		Long:          "ppmi logs into the LONI IDA portal through a remote headless browser, requests PPMI study-data tables, 3D T1 scan information and imaging archives, waits for the exports and downloads them.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		rootCmd.AddCommand(newVersionCmd())
		return rootCmd
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newAuthCmd(app),
		newMetadataCmd(app),
		newT1InfoCmd(app),
		newImagingCmd(app),
		newCatalogCmd(app),
		newGridCmd(app),
	)

	return rootCmd
}
