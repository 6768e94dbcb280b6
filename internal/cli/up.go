package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/stevedore/internal/model"
	"github.com/mmr-tortoise/stevedore/internal/orchestrator"
)

// NewUpCommand creates the "up" command.
func NewUpCommand() *cobra.Command {
	var (
		detach             bool
		forceRecreate      bool
		noRecreate         bool
		noDeps             bool
		removeOrphans      bool
		removeOnExit       bool
		pullPolicy         string
		wait               bool
		waitTimeoutSeconds int
		noHealthcheck      bool
	)

	cmd := &cobra.Command{
		Use:   "up [services...]",
		Short: "Create and start the project's containers",
		Long: `Create and start containers for the project's services in dependency
order, building images and creating networks and volumes as needed.

In the foreground (without --detach), log output streams until the
first SIGINT or SIGTERM, which triggers a graceful down; a second
signal forces immediate exit.

Examples:
  stevedore up
  stevedore up --detach web db
  stevedore up --wait --wait-timeout 120`,

		RunE: func(cmd *cobra.Command, args []string) error {
			pull, ok := orchestrator.ParsePullPolicy(pullPolicy)
			if !ok {
				return model.ErrInvalidArgument("invalid --pull value %q (valid: always, missing, never)", pullPolicy)
			}
			opts := orchestrator.UpOptions{
				Selected:           args,
				Detach:             detach,
				ForceRecreate:      forceRecreate,
				NoRecreate:         noRecreate,
				NoDeps:             noDeps,
				RemoveOrphans:      removeOrphans,
				RemoveOnExit:       removeOnExit,
				Pull:               pull,
				Wait:               wait,
				WaitTimeout:        time.Duration(waitTimeoutSeconds) * time.Second,
				DisableHealthcheck: noHealthcheck,
			}
			return runUp(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVarP(&detach, "detach", "d", false, "Run containers in the background")
	cmd.Flags().BoolVar(&forceRecreate, "force-recreate", false, "Recreate containers even if their configuration is unchanged")
	cmd.Flags().BoolVar(&noRecreate, "no-recreate", false, "Reuse existing containers regardless of configuration drift")
	cmd.Flags().BoolVar(&noDeps, "no-deps", false, "Start only the named services, without dependencies")
	cmd.Flags().BoolVar(&removeOrphans, "remove-orphans", false, "Remove containers for services no longer defined")
	cmd.Flags().BoolVar(&removeOnExit, "remove-on-exit", false, "Tear the project down when the foreground run ends")
	cmd.Flags().StringVar(&pullPolicy, "pull", "missing", "Image pull policy: always, missing, never")
	cmd.Flags().BoolVar(&wait, "wait", false, "Block until services are healthy or running")
	cmd.Flags().IntVar(&waitTimeoutSeconds, "wait-timeout", 0, "Seconds to wait with --wait (default 300)")
	cmd.Flags().BoolVar(&noHealthcheck, "no-healthcheck", false, "Skip healthcheck gates")

	return cmd
}

func runUp(ctx context.Context, opts orchestrator.UpOptions) error {
	project, err := loadProject()
	if err != nil {
		return err
	}
	orch, closer, err := newOrchestrator()
	if err != nil {
		return err
	}
	defer closer()

	if opts.Detach {
		return orch.Up(ctx, project, opts)
	}
	return runUpForeground(ctx, orch, project, opts)
}

// runUpForeground runs up attached to the terminal: logs stream after
// startup, the first interrupt tears the project down gracefully, and
// a second interrupt exits 130 immediately.
func runUpForeground(ctx context.Context, orch *orchestrator.Orchestrator, project *model.Project, opts orchestrator.UpOptions) error {
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	upCtx, cancelUp := context.WithCancel(ctx)
	defer cancelUp()

	go func() {
		<-signals
		// First signal: stop streaming and fall through to the
		// graceful down below.
		cancelUp()
		<-signals
		// Second signal: give up immediately.
		os.Exit(ExitInterrupt)
	}()

	err := orch.Up(upCtx, project, opts)
	interrupted := upCtx.Err() != nil
	if err != nil && !interrupted {
		return err
	}

	if !interrupted {
		if err := streamLogs(upCtx, orch, project, orchestrator.LogsOptions{
			Services: opts.Selected,
			Follow:   true,
		}); err != nil && upCtx.Err() == nil {
			return err
		}
		interrupted = upCtx.Err() != nil
	}

	if interrupted || opts.RemoveOnExit {
		fmt.Fprintln(os.Stderr, "Stopping project...")
		// Both the up context and its parent are cancelled by the first
		// signal; the teardown needs a live context of its own.
		if _, err := orch.Down(context.WithoutCancel(ctx), project, orchestrator.DownOptions{}); err != nil {
			return err
		}
		if interrupted {
			return &exitCodeError{code: ExitInterrupt}
		}
	}
	return nil
}
