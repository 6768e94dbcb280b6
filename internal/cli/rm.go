package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/stevedore/internal/orchestrator"
)

// NewRemoveCommand creates the "rm" command.
func NewRemoveCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "rm [services...]",
		Short: "Remove stopped containers",
		Long: `Delete the project's stopped containers. Running containers are
skipped with a warning unless --force is given.`,

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

			removed, err := orch.Remove(cmd.Context(), project, orchestrator.RemoveOptions{
				Services: args,
				Force:    force,
			})
			for _, id := range removed {
				fmt.Printf("Removed %s\n", id)
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Remove running containers too")
	return cmd
}
