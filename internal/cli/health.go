package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

// NewHealthCommand creates the "health" command.
func NewHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health [services...]",
		Short: "Run each service's healthcheck once and report the result",

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

			results, err := orch.CheckHealth(cmd.Context(), project, args)
			if err != nil {
				return err
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(results, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			names := make([]string, 0, len(results))
			for name := range results {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				state := "unhealthy"
				if results[name] {
					state = "healthy"
				}
				fmt.Printf("%s: %s\n", name, state)
			}
			return nil
		},
	}
}
