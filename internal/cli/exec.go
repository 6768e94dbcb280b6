package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/stevedore/internal/orchestrator"
	rt "github.com/mmr-tortoise/stevedore/internal/runtime"
)

// NewExecCommand creates the "exec" command.
func NewExecCommand() *cobra.Command {
	var (
		detach      bool
		interactive bool
		tty         bool
		user        string
		workdir     string
		env         []string
	)

	cmd := &cobra.Command{
		Use:   "exec <service> <command> [args...]",
		Short: "Run a command in a service's running container",
		Long: `Run a command inside the named service's container, attaching the
terminal unless --detach is given. The command's exit code becomes
this process's exit code. The first SIGINT or SIGTERM is forwarded to
the command once; further signals act on stevedore itself.

Examples:
  stevedore exec web sh
  stevedore exec -it db psql -U postgres`,

		Args: cobra.MinimumNArgs(2),

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

			code, err := orch.Exec(cmd.Context(), project, orchestrator.ExecOptions{
				Service:     args[0],
				Command:     args[1:],
				Detach:      detach,
				Interactive: interactive,
				TTY:         tty,
				User:        user,
				WorkDir:     workdir,
				Env:         env,
				Stdio: rt.Stdio{
					Stdin:  os.Stdin,
					Stdout: os.Stdout,
					Stderr: os.Stderr,
				},
			})
			if err != nil {
				return err
			}
			if code != 0 {
				return &exitCodeError{code: code}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&detach, "detach", "d", false, "Run the command in the background")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Attach stdin")
	cmd.Flags().BoolVarP(&tty, "tty", "t", false, "Allocate a pseudo-terminal")
	cmd.Flags().StringVarP(&user, "user", "u", "", "Run as this user")
	cmd.Flags().StringVarP(&workdir, "workdir", "w", "", "Working directory inside the container")
	cmd.Flags().StringArrayVarP(&env, "env", "e", nil, "Extra environment KEY=VAL (repeatable)")

	return cmd
}
