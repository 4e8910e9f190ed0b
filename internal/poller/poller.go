// Package poller periodically asks the controller to check the managed
// container's health.
package poller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/mindriot101/dockerdeploy/internal/controller"
)

const defaultInterval = 10 * time.Second

// Sender accepts messages for the controller.
type Sender interface {
	Send(msg controller.Message) error
}

// Poller sends a Poll message on a fixed interval.
type Poller struct {
	interval time.Duration
	sender   Sender
	logger   *slog.Logger
}

// New constructs a poller. A non-positive interval falls back to the default.
func New(interval time.Duration, sender Sender, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = defaultInterval
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Poller{
		interval: interval,
		sender:   sender,
		logger:   logger.With("component", "poller"),
	}
}

// Run ticks until ctx is done. A closed queue is fatal and is returned to the
// caller.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("poller started", "interval", p.interval)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped")
			return nil
		case <-ticker.C:
			if err := p.sender.Send(controller.Poll{}); err != nil {
				if errors.Is(err, controller.ErrQueueClosed) {
					return err
				}
				p.logger.Warn("failed to queue poll", "error", err)
			}
		}
	}
}
