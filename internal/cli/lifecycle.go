package cli

import (
	"github.com/spf13/cobra"
)

// NewStartCommand creates the "start" command, equivalent to a
// detached up with default options.
func NewStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the project's containers",

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := loadProject()
			if err != nil {
				return err
			}
			orch, closer, err := newOrchestrator()
			if err != nil {
				return err
			}
			defer closer()
			return orch.Start(cmd.Context(), project)
		},
	}
}

// NewStopCommand creates the "stop" command, a best-effort teardown of
// the project's containers.
func NewStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the project's containers",

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := loadProject()
			if err != nil {
				return err
			}
			orch, closer, err := newOrchestrator()
			if err != nil {
				return err
			}
			defer closer()
			return orch.Stop(cmd.Context(), project)
		},
	}
}

// NewRestartCommand creates the "restart" command: down followed by up.
func NewRestartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the project's containers",

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := loadProject()
			if err != nil {
				return err
			}
			orch, closer, err := newOrchestrator()
			if err != nil {
				return err
			}
			defer closer()
			return orch.Restart(cmd.Context(), project)
		},
	}
}
