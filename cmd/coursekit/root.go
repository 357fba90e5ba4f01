package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var jsonFlag bool

	ctx := newCommandContext(&configFlag, &jsonFlag)

	rootCmd := &cobra.Command{
		Use:           "coursekit",
		Short:         "Manage course projects, their media and archives",
		Long: `coursekit stores course projects on disk, keeps their media payloads
consistent with the course content, and moves whole projects in and out of
portable .zip archives.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Write machine-readable JSON output")

	rootCmd.AddCommand(
		newProjectCommand(ctx),
		newMediaCommand(ctx),
		newArchiveCommand(ctx),
		newStagingCommand(ctx),
		newConfigCommand(ctx),
		newDoctorCommand(ctx),
		newLogsCommand(ctx),
	)

	return rootCmd
}
