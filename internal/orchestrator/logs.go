package orchestrator

import (
	"bufio"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mmr-tortoise/stevedore/internal/model"
	rt "github.com/mmr-tortoise/stevedore/internal/runtime"
)

// LogEntry is one line of container output attributed to its service.
type LogEntry struct {
	Service   string
	Container string
	Message   string
	// Stream is "stdout" or "stderr". Boot output, when requested,
	// arrives on "stderr".
	Stream    string
	Timestamp time.Time
}

// LogsOptions control log streaming.
type LogsOptions struct {
	// Services restricts the sources; empty means every service.
	Services    []string
	Follow      bool
	Tail        int
	Timestamps  bool
	IncludeBoot bool
}

// Logs opens the targeted containers' log sources and streams entries
// over the returned channel. Without follow, every source is read to
// EOF and the channel closes; with follow, streaming continues until
// the context is cancelled or every source closes. Per-source ordering
// is preserved; there is no ordering across services.
func (o *Orchestrator) Logs(ctx context.Context, project *model.Project, opts LogsOptions) (<-chan LogEntry, error) {
	names := opts.Services
	if len(names) == 0 {
		names = project.ServiceNames()
	}

	type openSource struct {
		service   string
		container string
		source    rt.LogSource
	}
	var sources []openSource
	for _, name := range names {
		svc, ok := project.Services[name]
		if !ok {
			return nil, model.ErrNotFound("service %q", name)
		}
		containerID := project.ContainerID(svc)
		opened, err := o.runtime.Containers.Logs(ctx, containerID, rt.LogsOptions{
			Follow:      opts.Follow,
			Tail:        opts.Tail,
			Timestamps:  opts.Timestamps,
			IncludeBoot: opts.IncludeBoot,
		})
		if err != nil {
			for _, prior := range sources {
				prior.source.Reader.Close()
			}
			return nil, err
		}
		for _, source := range opened {
			sources = append(sources, openSource{service: name, container: containerID, source: source})
		}
	}

	entries := make(chan LogEntry)
	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer src.source.Reader.Close()
			scanner := bufio.NewScanner(src.source.Reader)
			scanner.Buffer(make([]byte, 64*1024), 1024*1024)
			for scanner.Scan() {
				entry := LogEntry{
					Service:   src.service,
					Container: src.container,
					Stream:    src.source.Stream,
					Message:   scanner.Text(),
				}
				if opts.Timestamps {
					entry.Timestamp, entry.Message = splitTimestamp(entry.Message)
				}
				select {
				case entries <- entry:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(entries)
	}()
	return entries, nil
}

// splitTimestamp peels the runtime's RFC3339Nano prefix off a log line.
// Lines without a parseable prefix pass through untouched.
func splitTimestamp(line string) (time.Time, string) {
	prefix, rest, found := strings.Cut(line, " ")
	if !found {
		return time.Time{}, line
	}
	ts, err := time.Parse(time.RFC3339Nano, prefix)
	if err != nil {
		return time.Time{}, line
	}
	return ts, rest
}
