package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewPsCommand creates the "ps" command.
func NewPsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ps",
		Short: "List the project's containers",

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

			rows, err := orch.Ps(cmd.Context(), project)
			if err != nil {
				return err
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(rows, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SERVICE\tID\tIMAGE\tSTATUS\tPORTS")
			for _, row := range rows {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", row.Service, row.ID, row.Image, row.Status, row.Ports)
			}
			return w.Flush()
		},
	}
	return cmd
}
