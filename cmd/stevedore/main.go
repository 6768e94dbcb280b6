package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mmr-tortoise/stevedore/internal/cli"
)

// Build metadata injected via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	// Commands that manage interrupts themselves (up in the foreground,
	// exec) install their own handlers; for everything else the context
	// cancellation gives runtime calls a chance to unwind.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := cli.NewRootCommand()
	rootCmd.SetContext(ctx)
	code := cli.Execute(rootCmd)
	stop()
	os.Exit(code)
}
