package runtime

import "context"

// PortBinding publishes a container port on the host.
type PortBinding struct {
	Host   int
	Target int
}

// Mount bind-mounts a host path into the container.
type Mount struct {
	Source string
	Target string
}

// RunRequest describes the container to create and start.
type RunRequest struct {
	Name    string
	Image   string
	Command []string
	Ports   []PortBinding
	Mounts  []Mount
}

// Client is the container runtime capability the controller drives.
// "Not found" conditions are normalized by implementations: IsRunning reports
// false and RemoveContainer succeeds.
type Client interface {
	PullImage(ctx context.Context, name, tag string) error
	IsRunning(ctx context.Context, name string) (bool, error)
	RemoveContainer(ctx context.Context, name string) error
	RunContainer(ctx context.Context, req RunRequest) (warnings []string, err error)
}
