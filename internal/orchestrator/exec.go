package orchestrator

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/mmr-tortoise/stevedore/internal/model"
	rt "github.com/mmr-tortoise/stevedore/internal/runtime"
)

// ExecOptions control command execution inside a service container.
type ExecOptions struct {
	Service     string
	Command     []string
	Detach      bool
	Interactive bool
	TTY         bool
	User        string
	WorkDir     string
	Env         []string
	// Stdio attaches the caller's streams; ignored when detached.
	Stdio rt.Stdio
}

// Exec runs a command in the service's running container and returns
// its exit code. The first SIGINT or SIGTERM observed is forwarded to
// the in-container process exactly once; later signals keep their
// default disposition.
func (o *Orchestrator) Exec(ctx context.Context, project *model.Project, opts ExecOptions) (int, error) {
	svc, ok := project.Services[opts.Service]
	if !ok {
		return -1, model.ErrNotFound("service %q", opts.Service)
	}
	if len(opts.Command) == 0 {
		return -1, model.ErrInvalidArgument("no command given")
	}
	containerID := project.ContainerID(svc)

	summary, err := o.runtime.Containers.Get(ctx, containerID)
	if err != nil {
		return -1, err
	}
	if summary.Status != rt.StatusRunning {
		return -1, model.ErrInvalidArgument("container %q is not running (status %s)", containerID, summary.Status)
	}

	stdio := opts.Stdio
	if opts.Detach {
		stdio = rt.Stdio{}
	} else if !opts.Interactive {
		stdio.Stdin = nil
	}

	process, err := o.runtime.Containers.CreateProcess(ctx, containerID, rt.ProcessConfig{
		Exec:        opts.Command,
		WorkingDir:  opts.WorkDir,
		User:        opts.User,
		Env:         opts.Env,
		TTY:         opts.TTY,
		Interactive: opts.Interactive,
	}, stdio)
	if err != nil {
		return -1, err
	}
	if err := process.Start(ctx); err != nil {
		return -1, err
	}
	if opts.Detach {
		return 0, nil
	}

	// The handler stays installed (and the channel referenced) for the
	// whole wait so the first signal is never lost; the latch ensures
	// it is forwarded at most once, after which signals revert to the
	// default disposition.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	var forwarded atomic.Bool
	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-signals:
				if forwarded.CompareAndSwap(false, true) {
					name := "SIGTERM"
					if sig == syscall.SIGINT {
						name = "SIGINT"
					}
					if err := process.Kill(ctx, name); err != nil {
						o.log.Warn("signal forwarding failed", "signal", name, "error", err)
					}
					signal.Stop(signals)
				}
			case <-done:
				return
			}
		}
	}()
	defer func() {
		signal.Stop(signals)
		close(done)
	}()

	return process.Wait(ctx)
}
