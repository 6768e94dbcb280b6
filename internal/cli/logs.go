package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/stevedore/internal/model"
	"github.com/mmr-tortoise/stevedore/internal/orchestrator"
)

// NewLogsCommand creates the "logs" command.
func NewLogsCommand() *cobra.Command {
	var (
		follow      bool
		tail        int
		timestamps  bool
		includeBoot bool
	)

	cmd := &cobra.Command{
		Use:   "logs [services...]",
		Short: "Show container output for the project's services",
		Long: `Read each target container's log streams. Without --follow, every
stream is read to its end and the command exits; with --follow,
streaming continues until interrupted.

Examples:
  stevedore logs
  stevedore logs --follow web
  stevedore logs --tail 100 --timestamps`,

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
			return streamLogs(cmd.Context(), orch, project, orchestrator.LogsOptions{
				Services:    args,
				Follow:      follow,
				Tail:        tail,
				Timestamps:  timestamps,
				IncludeBoot: includeBoot,
			})
		},
	}

	cmd.Flags().BoolVar(&follow, "follow", false, "Keep streaming new output")
	cmd.Flags().IntVar(&tail, "tail", 0, "Number of trailing lines per container (0 = all)")
	cmd.Flags().BoolVarP(&timestamps, "timestamps", "t", false, "Prefix lines with their timestamps")
	cmd.Flags().BoolVar(&includeBoot, "boot", false, "Include boot output on the stderr stream")

	return cmd
}

// streamLogs drains the orchestrator's log channel, rendering each
// entry prefixed by its service name (or as JSON lines with --json).
func streamLogs(ctx context.Context, orch *orchestrator.Orchestrator, project *model.Project, opts orchestrator.LogsOptions) error {
	entries, err := orch.Logs(ctx, project, opts)
	if err != nil {
		return err
	}
	for entry := range entries {
		if jsonOutput {
			line, err := json.Marshal(map[string]any{
				"service":   entry.Service,
				"container": entry.Container,
				"stream":    entry.Stream,
				"message":   entry.Message,
				"timestamp": formatTimestamp(entry.Timestamp),
			})
			if err != nil {
				continue
			}
			fmt.Println(string(line))
			continue
		}
		out := os.Stdout
		if entry.Stream == "stderr" {
			out = os.Stderr
		}
		if !entry.Timestamp.IsZero() {
			fmt.Fprintf(out, "%s | %s %s\n", entry.Service, entry.Timestamp.Format(time.RFC3339), entry.Message)
		} else {
			fmt.Fprintf(out, "%s | %s\n", entry.Service, entry.Message)
		}
	}
	return nil
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Format(time.RFC3339Nano)
}
