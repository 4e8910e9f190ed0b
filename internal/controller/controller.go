// Package controller owns the current deploy file and serializes every
// redeploy through a single message loop.
package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mindriot101/dockerdeploy/internal/heartbeat"
	"github.com/mindriot101/dockerdeploy/internal/manifest"
	"github.com/mindriot101/dockerdeploy/internal/runtime"
	"github.com/mindriot101/dockerdeploy/internal/webhook"
)

const (
	outcomeSuccess      = "success"
	outcomePullFailed   = "pull_failed"
	outcomeRemoveFailed = "remove_failed"
	outcomeRunFailed    = "run_failed"
)

// HeartbeatSender delivers a heartbeat after a healthy poll.
type HeartbeatSender interface {
	Send(ctx context.Context, endpoint string, beat heartbeat.Beat) error
}

// Options configures a Controller.
type Options struct {
	// Manifest is the deploy file parsed at startup.
	Manifest *manifest.Manifest
	// ManifestPath is re-read on every Reload of kind ChangeModified.
	ManifestPath string
	Runtime      runtime.Client
	Queue        *Queue
	// Policies, when set, receives the webhook policy at startup and after
	// every successful reload.
	Policies   *webhook.Store
	Heartbeat  HeartbeatSender
	Logger     *slog.Logger
	Registerer prometheus.Registerer
	// WorkDir replaces $PWD in mount host paths. Defaults to the process
	// working directory.
	WorkDir string
	// Load parses the deploy file. Defaults to manifest.Parse.
	Load func(path string) (*manifest.Manifest, error)
}

// Controller is the sole consumer of the queue. Its manifest is only touched
// from the Run goroutine.
type Controller struct {
	manifest  *manifest.Manifest
	path      string
	runtime   runtime.Client
	queue     *Queue
	policies  *webhook.Store
	heartbeat HeartbeatSender
	logger    *slog.Logger
	workDir   string
	load      func(path string) (*manifest.Manifest, error)
	metrics   *metrics
	now       func() time.Time
}

// New validates opts and returns a Controller ready to Run.
func New(opts Options) (*Controller, error) {
	if opts.Manifest == nil {
		return nil, errors.New("controller: manifest required")
	}
	if opts.Runtime == nil {
		return nil, errors.New("controller: runtime required")
	}
	if opts.Queue == nil {
		return nil, errors.New("controller: queue required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	workDir := opts.WorkDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("controller: resolve working directory: %w", err)
		}
		workDir = wd
	}
	load := opts.Load
	if load == nil {
		load = manifest.Parse
	}
	return &Controller{
		manifest:  opts.Manifest,
		path:      opts.ManifestPath,
		runtime:   opts.Runtime,
		queue:     opts.Queue,
		policies:  opts.Policies,
		heartbeat: opts.Heartbeat,
		logger:    logger.With("component", "controller"),
		workDir:   workDir,
		load:      load,
		metrics:   newMetrics(opts.Registerer, opts.Queue),
		now:       time.Now,
	}, nil
}

// Run processes messages one at a time until ctx is done or the queue is
// closed and drained.
func (c *Controller) Run(ctx context.Context) error {
	c.publish()
	c.logger.Info("controller started", "container", c.manifest.Container.Name, "image", c.manifest.Image.Ref())
	for {
		msg, err := c.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("controller stopped")
				return nil
			}
			return err
		}
		c.handle(ctx, msg)
	}
}

func (c *Controller) handle(ctx context.Context, msg Message) {
	c.metrics.recordMessage(msg)
	switch m := msg.(type) {
	case Trigger:
		c.deploy(ctx, m.Source)
	case Poll:
		c.poll(ctx)
	case Reload:
		c.reload(m)
	default:
		c.logger.Warn("unknown message", "kind", msg.Kind())
	}
}

// deploy runs the pipeline once. A shutdown does not interrupt a pipeline
// that has started. Failures are logged and dropped.
func (c *Controller) deploy(ctx context.Context, source Source) {
	m := c.manifest
	logger := c.logger.With(
		"attempt_id", uuid.NewString(),
		"source", string(source),
		"image", m.Image.Ref(),
		"container", m.Container.Name,
	)
	logger.Info("deploy started")
	start := c.now()
	outcome, err := c.runPipeline(context.WithoutCancel(ctx), m, logger)
	duration := c.now().Sub(start)
	c.metrics.recordDeploy(outcome, duration)
	if err != nil {
		logger.Warn("deploy failed", "outcome", outcome, "error", err)
		return
	}
	logger.Info("deploy finished", "duration_ms", duration.Milliseconds())
}

func (c *Controller) runPipeline(ctx context.Context, m *manifest.Manifest, logger *slog.Logger) (string, error) {
	if err := c.runtime.PullImage(ctx, m.Image.Name, m.Image.Tag); err != nil {
		return outcomePullFailed, fmt.Errorf("pull image: %w", err)
	}
	logger.Debug("image pulled")

	if err := c.runtime.RemoveContainer(ctx, m.Container.Name); err != nil {
		return outcomeRemoveFailed, fmt.Errorf("remove container: %w", err)
	}
	logger.Debug("previous container removed")

	warnings, err := c.runtime.RunContainer(ctx, c.runRequest(m))
	for _, w := range warnings {
		logger.Warn("container warning", "warning", w)
	}
	if err != nil {
		return outcomeRunFailed, fmt.Errorf("run container: %w", err)
	}
	return outcomeSuccess, nil
}

func (c *Controller) runRequest(m *manifest.Manifest) runtime.RunRequest {
	req := runtime.RunRequest{
		Name:    m.Container.Name,
		Image:   m.Image.Ref(),
		Command: m.Container.Command,
	}
	for _, p := range m.Container.Ports {
		req.Ports = append(req.Ports, runtime.PortBinding{Host: p.Host, Target: p.Target})
	}
	for _, mnt := range m.Container.Mounts {
		req.Mounts = append(req.Mounts, runtime.Mount{Source: mnt.HostPath(c.workDir), Target: mnt.Target})
	}
	return req
}

// poll never deploys directly. A missing container queues a Trigger so that
// redeploys stay ordered with everything else on the queue.
func (c *Controller) poll(ctx context.Context) {
	m := c.manifest
	running, err := c.runtime.IsRunning(ctx, m.Container.Name)
	if err != nil {
		c.logger.Warn("health check failed", "container", m.Container.Name, "error", err)
		return
	}
	if !running {
		c.logger.Info("container not running, queueing redeploy", "container", m.Container.Name)
		// The queue is only closed during shutdown while Run drains what is
		// left, so a closed queue here means the redeploy is dropped on exit.
		if err := c.queue.Send(Trigger{Source: SourcePoll}); err != nil {
			if errors.Is(err, ErrQueueClosed) {
				c.logger.Info("shutting down, redeploy not queued", "container", m.Container.Name)
				return
			}
			c.logger.Warn("queue redeploy", "error", err)
		}
		return
	}
	c.logger.Debug("container running", "container", m.Container.Name)
	c.sendHeartbeat(ctx, m)
}

func (c *Controller) sendHeartbeat(ctx context.Context, m *manifest.Manifest) {
	if c.heartbeat == nil || m.Heartbeat.Endpoint == "" {
		return
	}
	beat := heartbeat.Beat{
		Container: m.Container.Name,
		Image:     m.Image.Ref(),
		Running:   true,
		SentAt:    c.now(),
	}
	if err := c.heartbeat.Send(ctx, m.Heartbeat.Endpoint, beat); err != nil {
		c.logger.Warn("heartbeat failed", "endpoint", m.Heartbeat.Endpoint, "error", err)
	}
}

func (c *Controller) reload(msg Reload) {
	if msg.Change != ChangeModified {
		c.logger.Debug("ignoring deploy file change", "change", msg.Change.String(), "path", msg.Path)
		return
	}
	next, err := c.load(c.path)
	if err != nil {
		c.logger.Error("reload failed, keeping previous deploy file", "path", c.path, "error", err)
		return
	}
	if next.Heartbeat.SleepTime != c.manifest.Heartbeat.SleepTime {
		c.logger.Warn("heartbeat.sleep_time changed, new interval applies after restart",
			"current", c.manifest.Heartbeat.SleepTime, "configured", next.Heartbeat.SleepTime)
	}
	c.manifest = next
	c.publish()
	c.logger.Info("deploy file reloaded", "path", c.path, "image", next.Image.Ref(), "container", next.Container.Name)
}

func (c *Controller) publish() {
	if c.policies == nil {
		return
	}
	c.policies.Set(webhook.PolicyFromManifest(c.manifest))
}
