package docker

import (
	"context"
	"io"
	"strconv"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"

	"github.com/mmr-tortoise/stevedore/internal/model"
	rt "github.com/mmr-tortoise/stevedore/internal/runtime"
)

// containerClient implements rt.ContainerClient on the Docker SDK.
// Containers are addressed by their compose-assigned names, which the
// daemon accepts anywhere an ID is expected.
type containerClient struct {
	inner *client.Client
}

func (c *containerClient) List(ctx context.Context) ([]rt.ContainerSummary, error) {
	containers, err := c.inner.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, wrapSDKError(err, "list containers")
	}
	out := make([]rt.ContainerSummary, 0, len(containers))
	for _, item := range containers {
		out = append(out, summaryFromList(item))
	}
	return out, nil
}

func (c *containerClient) Get(ctx context.Context, id string) (rt.ContainerSummary, error) {
	info, err := c.inner.ContainerInspect(ctx, id)
	if err != nil {
		return rt.ContainerSummary{}, wrapSDKError(err, "inspect container %q", id)
	}
	summary := rt.ContainerSummary{ID: id}
	if info.State != nil {
		summary.Status = info.State.Status
	}
	if info.Config != nil {
		summary.Labels = info.Config.Labels
		summary.Image = info.Config.Image
	}
	return summary, nil
}

func (c *containerClient) Create(ctx context.Context, config rt.ContainerConfiguration) error {
	exposed, bindings, err := portBindings(config.Ports)
	if err != nil {
		return err
	}

	// The orchestrator has already folded the image entrypoint and cmd
	// into one exec line, so the image defaults must not contribute
	// again: the full line goes into Entrypoint and Cmd is pinned to an
	// explicit empty list.
	containerConfig := &container.Config{
		Image:        config.Image,
		Entrypoint:   config.Exec,
		Cmd:          []string{},
		WorkingDir:   config.WorkingDir,
		Env:          config.Env,
		Labels:       config.Labels,
		Tty:          config.TTY,
		OpenStdin:    config.OpenStdin,
		ExposedPorts: exposed,
	}

	hostConfig := &container.HostConfig{
		PortBindings: bindings,
		Mounts:       sdkMounts(config.Mounts),
		RestartPolicy: container.RestartPolicy{
			Name: restartPolicyMode(config.RestartPolicy),
		},
	}
	if config.CPUs > 0 {
		hostConfig.NanoCPUs = int64(config.CPUs) * 1e9
	}
	if config.MemoryBytes > 0 {
		hostConfig.Memory = config.MemoryBytes
	}

	networking := &network.NetworkingConfig{
		EndpointsConfig: make(map[string]*network.EndpointSettings, len(config.Networks)),
	}
	for _, attachment := range config.Networks {
		endpoint := &network.EndpointSettings{}
		if attachment.Hostname != "" {
			endpoint.Aliases = []string{attachment.Hostname}
		}
		networking.EndpointsConfig[attachment.NetworkID] = endpoint
	}

	_, err = c.inner.ContainerCreate(ctx, containerConfig, hostConfig, networking, nil, config.ID)
	return wrapSDKError(err, "create container %q", config.ID)
}

// Bootstrap is a no-op: the engine prepares its own sandbox during
// create/start.
func (c *containerClient) Bootstrap(ctx context.Context, id string) error {
	return nil
}

func (c *containerClient) Start(ctx context.Context, id string) error {
	err := c.inner.ContainerStart(ctx, id, container.StartOptions{})
	return wrapSDKError(err, "start container %q", id)
}

func (c *containerClient) Stop(ctx context.Context, id string, timeout time.Duration) error {
	seconds := int(timeout / time.Second)
	err := c.inner.ContainerStop(ctx, id, container.StopOptions{Timeout: &seconds})
	return wrapSDKError(err, "stop container %q", id)
}

func (c *containerClient) Kill(ctx context.Context, id string, signal string) error {
	err := c.inner.ContainerKill(ctx, id, signal)
	return wrapSDKError(err, "kill container %q", id)
}

func (c *containerClient) Delete(ctx context.Context, id string, force bool) error {
	err := c.inner.ContainerRemove(ctx, id, container.RemoveOptions{Force: force})
	return wrapSDKError(err, "remove container %q", id)
}

func (c *containerClient) CreateProcess(ctx context.Context, id string, config rt.ProcessConfig, stdio rt.Stdio) (rt.Process, error) {
	options := container.ExecOptions{
		Cmd:          config.Exec,
		WorkingDir:   config.WorkingDir,
		User:         config.User,
		Env:          config.Env,
		Tty:          config.TTY,
		AttachStdin:  stdio.Stdin != nil,
		AttachStdout: stdio.Stdout != nil,
		AttachStderr: stdio.Stderr != nil,
	}
	resp, err := c.inner.ContainerExecCreate(ctx, id, options)
	if err != nil {
		return nil, wrapSDKError(err, "create process in container %q", id)
	}
	return &execProcess{
		inner:  c.inner,
		execID: resp.ID,
		tty:    config.TTY,
		stdio:  stdio,
	}, nil
}

func (c *containerClient) Logs(ctx context.Context, id string, opts rt.LogsOptions) ([]rt.LogSource, error) {
	options := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     opts.Follow,
		Timestamps: opts.Timestamps,
	}
	if opts.Tail > 0 {
		options.Tail = strconv.Itoa(opts.Tail)
	}
	stream, err := c.inner.ContainerLogs(ctx, id, options)
	if err != nil {
		return nil, wrapSDKError(err, "open logs for container %q", id)
	}

	info, err := c.inner.ContainerInspect(ctx, id)
	if err != nil {
		stream.Close()
		return nil, wrapSDKError(err, "inspect container %q", id)
	}
	if info.Config != nil && info.Config.Tty {
		// TTY containers interleave everything on one stream.
		return []rt.LogSource{{Stream: "stdout", Reader: stream}}, nil
	}

	// Demultiplex the engine's framed stream into stdout and stderr
	// sources, preserving per-stream ordering.
	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(stdoutW, stderrW, stream)
		stream.Close()
		stdoutW.CloseWithError(err)
		stderrW.CloseWithError(err)
	}()
	return []rt.LogSource{
		{Stream: "stdout", Reader: stdoutR},
		{Stream: "stderr", Reader: stderrR},
	}, nil
}

func summaryFromList(item types.Container) rt.ContainerSummary {
	summary := rt.ContainerSummary{
		ID:     item.ID,
		Status: item.State,
		Image:  item.Image,
		Labels: item.Labels,
	}
	if len(item.Names) > 0 {
		// The API reports names with a leading slash.
		name := item.Names[0]
		if len(name) > 0 && name[0] == '/' {
			name = name[1:]
		}
		summary.ID = name
	}
	for _, port := range item.Ports {
		if port.PublicPort == 0 {
			continue
		}
		proto, err := model.ParseProtocol(port.Type)
		if err != nil {
			continue
		}
		summary.Ports = append(summary.Ports, model.PortMapping{
			HostIP:        port.IP,
			HostPort:      int(port.PublicPort),
			ContainerPort: int(port.PrivatePort),
			Protocol:      proto,
		})
	}
	return summary
}

func portBindings(ports []model.PortMapping) (nat.PortSet, nat.PortMap, error) {
	if len(ports) == 0 {
		return nil, nil, nil
	}
	exposed := make(nat.PortSet, len(ports))
	bindings := make(nat.PortMap, len(ports))
	for _, mapping := range ports {
		port, err := nat.NewPort(string(mapping.Protocol), strconv.Itoa(mapping.ContainerPort))
		if err != nil {
			return nil, nil, model.WrapError(model.KindInvalidArgument, err, "port %d/%s", mapping.ContainerPort, mapping.Protocol)
		}
		exposed[port] = struct{}{}
		bindings[port] = append(bindings[port], nat.PortBinding{
			HostIP:   mapping.HostIP,
			HostPort: strconv.Itoa(mapping.HostPort),
		})
	}
	return exposed, bindings, nil
}

func sdkMounts(mounts []rt.Mount) []mount.Mount {
	out := make([]mount.Mount, 0, len(mounts))
	for _, m := range mounts {
		entry := mount.Mount{
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		}
		switch m.Kind {
		case rt.MountBind:
			entry.Type = mount.TypeBind
			entry.Source = m.Source
		case rt.MountVolume:
			entry.Type = mount.TypeVolume
			entry.Source = m.Source
		case rt.MountTmpfs:
			entry.Type = mount.TypeTmpfs
		}
		out = append(out, entry)
	}
	return out
}

func restartPolicyMode(policy model.RestartPolicy) container.RestartPolicyMode {
	switch policy {
	case model.RestartAlways:
		return container.RestartPolicyAlways
	case model.RestartOnFailure:
		return container.RestartPolicyOnFailure
	case model.RestartUnlessStopped:
		return container.RestartPolicyUnlessStopped
	default:
		return container.RestartPolicyDisabled
	}
}

// execProcess adapts a Docker exec instance to the rt.Process handle.
type execProcess struct {
	inner  *client.Client
	execID string
	tty    bool
	stdio  rt.Stdio

	hijack *types.HijackedResponse
	copied chan error
}

func (p *execProcess) Start(ctx context.Context) error {
	resp, err := p.inner.ContainerExecAttach(ctx, p.execID, container.ExecStartOptions{Tty: p.tty})
	if err != nil {
		return wrapSDKError(err, "attach process %q", p.execID)
	}
	p.hijack = &resp
	p.copied = make(chan error, 2)

	if p.stdio.Stdin != nil {
		go func() {
			_, _ = io.Copy(resp.Conn, p.stdio.Stdin)
			_ = resp.CloseWrite()
		}()
	}
	go func() {
		var err error
		stdout := p.stdio.Stdout
		stderr := p.stdio.Stderr
		if stdout == nil {
			stdout = io.Discard
		}
		if stderr == nil {
			stderr = io.Discard
		}
		if p.tty {
			_, err = io.Copy(stdout, resp.Reader)
		} else {
			_, err = stdcopy.StdCopy(stdout, stderr, resp.Reader)
		}
		p.copied <- err
	}()
	return nil
}

func (p *execProcess) Wait(ctx context.Context) (int, error) {
	if p.hijack == nil {
		return -1, model.ErrInternal("process %q was not started", p.execID)
	}
	select {
	case <-ctx.Done():
		return -1, model.WrapError(model.KindTimeout, ctx.Err(), "wait for process %q", p.execID)
	case err := <-p.copied:
		p.hijack.Close()
		if err != nil && err != io.EOF {
			return -1, model.WrapError(model.KindInternal, err, "stream process %q", p.execID)
		}
	}
	info, err := p.inner.ContainerExecInspect(ctx, p.execID)
	if err != nil {
		return -1, wrapSDKError(err, "inspect process %q", p.execID)
	}
	return info.ExitCode, nil
}

// Kill delivers a signal to the process's container. The engine's exec
// API has no per-process signal verb, so the signal goes to the
// container's init process group, which matches how foreground exec
// sessions propagate interrupts.
func (p *execProcess) Kill(ctx context.Context, signal string) error {
	info, err := p.inner.ContainerExecInspect(ctx, p.execID)
	if err != nil {
		return wrapSDKError(err, "inspect process %q", p.execID)
	}
	err = p.inner.ContainerKill(ctx, info.ContainerID, signal)
	return wrapSDKError(err, "signal process %q", p.execID)
}

var _ rt.ContainerClient = (*containerClient)(nil)
