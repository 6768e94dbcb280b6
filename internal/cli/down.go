package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/stevedore/internal/orchestrator"
)

// NewDownCommand creates the "down" command.
func NewDownCommand() *cobra.Command {
	var (
		removeVolumes bool
		removeOrphans bool
	)

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Stop and remove the project's containers and networks",
		Long: `Stop and delete every container belonging to the project, then remove
its networks. With --volumes, managed volumes (including anonymous
ones) are removed as well; external resources are never touched.

Examples:
  stevedore down
  stevedore down --volumes --remove-orphans`,

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

			result, err := orch.Down(cmd.Context(), project, orchestrator.DownOptions{
				RemoveVolumes: removeVolumes,
				RemoveOrphans: removeOrphans,
			})
			if err != nil {
				return err
			}
			printDownResult(result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&removeVolumes, "volumes", false, "Also remove managed volumes")
	cmd.Flags().BoolVar(&removeOrphans, "remove-orphans", false, "Also remove unlabeled containers named with the project prefix")

	return cmd
}

func printDownResult(result *orchestrator.DownResult) {
	if jsonOutput {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}
	for _, id := range result.Containers {
		fmt.Printf("Removed container %s\n", id)
	}
	for _, name := range result.Volumes {
		fmt.Printf("Removed volume %s\n", name)
	}
}
