package docker

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/mindriot101/dockerdeploy/internal/runtime"
)

const bindAllInterfaces = "0.0.0.0"

// IsRunning reports whether the named container exists and is running.
// A missing container is not an error.
func (c *Client) IsRunning(ctx context.Context, name string) (bool, error) {
	inspect, err := c.inner.ContainerInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("inspect container %s: %w", name, err)
	}
	if inspect.ContainerJSONBase == nil || inspect.State == nil {
		return false, nil
	}
	return inspect.State.Running, nil
}

// RemoveContainer force-removes the named container. Removing a container
// that does not exist succeeds.
func (c *Client) RemoveContainer(ctx context.Context, name string) error {
	err := c.inner.ContainerRemove(ctx, name, container.RemoveOptions{Force: true})
	if err == nil {
		c.logger.Info("container removed", "container", name)
		return nil
	}
	if client.IsErrNotFound(err) {
		c.logger.Debug("container already absent", "container", name)
		return nil
	}
	return fmt.Errorf("remove container %s: %w", name, err)
}

// RunContainer creates and starts a container. It is restarted by the engine
// whenever it exits.
func (c *Client) RunContainer(ctx context.Context, req runtime.RunRequest) ([]string, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("container name cannot be empty")
	}
	if strings.TrimSpace(req.Image) == "" {
		return nil, fmt.Errorf("container image cannot be empty")
	}

	exposed, bindings, err := portConfig(req.Ports)
	if err != nil {
		return nil, err
	}

	cfg := &container.Config{
		Image:        req.Image,
		Cmd:          req.Command,
		ExposedPorts: exposed,
	}
	hostCfg := &container.HostConfig{
		PortBindings:  bindings,
		Mounts:        bindMounts(req.Mounts),
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyAlways},
	}

	resp, err := c.inner.ContainerCreate(ctx, cfg, hostCfg, nil, nil, req.Name)
	if err != nil {
		return nil, fmt.Errorf("create container %s: %w", req.Name, err)
	}
	for _, w := range resp.Warnings {
		c.logger.Warn("container create warning", "container", req.Name, "warning", w)
	}

	if err := c.inner.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return resp.Warnings, fmt.Errorf("start container %s: %w", req.Name, err)
	}
	c.logger.Info("container started", "container", req.Name, "id", resp.ID, "image", req.Image)
	return resp.Warnings, nil
}

func portConfig(ports []runtime.PortBinding) (nat.PortSet, nat.PortMap, error) {
	if len(ports) == 0 {
		return nil, nil, nil
	}
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for _, p := range ports {
		port, err := nat.NewPort("tcp", strconv.Itoa(p.Target))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid target port %d: %w", p.Target, err)
		}
		exposed[port] = struct{}{}
		bindings[port] = append(bindings[port], nat.PortBinding{
			HostIP:   bindAllInterfaces,
			HostPort: strconv.Itoa(p.Host),
		})
	}
	return exposed, bindings, nil
}

func bindMounts(mounts []runtime.Mount) []mount.Mount {
	if len(mounts) == 0 {
		return nil
	}
	out := make([]mount.Mount, 0, len(mounts))
	for _, m := range mounts {
		out = append(out, mount.Mount{
			Type:   mount.TypeBind,
			Source: m.Source,
			Target: m.Target,
		})
	}
	return out
}

var _ runtime.Client = (*Client)(nil)
