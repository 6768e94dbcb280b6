// Package cli implements the cobra commands that drive the
// orchestrator. Each subcommand lives in its own file and is
// constructed by a NewXCommand function registered on the root.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/stevedore/internal/model"
)

// Global flag variables bound to persistent flags on the root command.
var (
	composeFiles []string
	projectName  string
	profiles     []string
	envOverrides []string
	allowAnchors bool
	verbose      bool
	jsonOutput   bool
)

// Version metadata injected at build time via ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Exit codes returned by Execute.
const (
	ExitOK        = 0
	ExitError     = 1
	ExitInterrupt = 130
)

// exitCodeError carries a specific process exit code through cobra,
// used by exec to surface the in-container process's own code.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

// NewRootCommand creates and configures the root command.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "stevedore",
		Short: "Multi-container orchestrator for compose projects",
		Long: `stevedore reads one or more compose YAML files, normalizes them into a
project, and drives the container runtime to materialize the described
services with correct ordering, lifecycle, and cleanup semantics.`,

		SilenceUsage:  true,
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureLogging()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringArrayVarP(&composeFiles, "file", "f", nil, "Compose file path (repeatable)")
	flags.StringVarP(&projectName, "project", "p", "", "Project name (default: directory name)")
	flags.StringArrayVar(&profiles, "profile", nil, "Activate a profile (repeatable)")
	flags.StringArrayVar(&envOverrides, "env", nil, "Set an interpolation variable KEY=VAL (repeatable)")
	flags.BoolVar(&allowAnchors, "allow-anchors", false, "Permit YAML anchors and merge keys")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	flags.BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	rootCmd.AddCommand(NewUpCommand())
	rootCmd.AddCommand(NewDownCommand())
	rootCmd.AddCommand(NewPsCommand())
	rootCmd.AddCommand(NewLogsCommand())
	rootCmd.AddCommand(NewStartCommand())
	rootCmd.AddCommand(NewStopCommand())
	rootCmd.AddCommand(NewRestartCommand())
	rootCmd.AddCommand(NewExecCommand())
	rootCmd.AddCommand(NewHealthCommand())
	rootCmd.AddCommand(NewValidateCommand())
	rootCmd.AddCommand(NewRemoveCommand())

	return rootCmd
}

// configureLogging installs a text slog handler on stderr whose level
// follows the --verbose flag.
func configureLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// Execute runs the root command and translates errors into process
// exit codes: typed errors and generic failures exit 1, interrupts
// exit 130, and exec's process code passes through.
func Execute(rootCmd *cobra.Command) int {
	err := rootCmd.Execute()
	if err == nil {
		return ExitOK
	}

	var exitErr *exitCodeError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}

	var typed *model.Error
	if errors.As(err, &typed) {
		fmt.Fprintf(os.Stderr, "Error: %s\n", typed.Error())
		return ExitError
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return ExitError
}
