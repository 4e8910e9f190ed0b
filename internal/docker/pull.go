package docker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/image"
)

// PullImage pulls name:tag and blocks until the daemon reports completion.
// Progress messages are logged at debug level; an error message in the
// stream fails the pull.
func (c *Client) PullImage(ctx context.Context, name, tag string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("image name cannot be empty")
	}
	if strings.TrimSpace(tag) == "" {
		tag = "latest"
	}
	ref := name + ":" + tag
	rc, err := c.inner.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("docker image pull %s: %w", ref, err)
	}
	defer rc.Close()

	decoder := json.NewDecoder(rc)
	for {
		var msg pullMessage
		if err := decoder.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("decode pull output: %w", err)
		}
		if errMsg := msg.errorMessage(); errMsg != "" {
			return fmt.Errorf("docker image pull %s: %s", ref, errMsg)
		}
		if line := msg.render(); line != "" {
			c.logger.Debug("pull progress", "image", ref, "line", line)
		}
	}
	return nil
}

type pullMessage struct {
	Status         string          `json:"status"`
	ID             string          `json:"id"`
	Progress       string          `json:"progress"`
	ProgressDetail progressDetail  `json:"progressDetail"`
	Error          string          `json:"error"`
	ErrorDetail    pullErrorDetail `json:"errorDetail"`
}

type progressDetail struct {
	Current int64 `json:"current"`
	Total   int64 `json:"total"`
}

type pullErrorDetail struct {
	Message string `json:"message"`
}

func (m pullMessage) errorMessage() string {
	if strings.TrimSpace(m.Error) != "" {
		return strings.TrimSpace(m.Error)
	}
	return strings.TrimSpace(m.ErrorDetail.Message)
}

func (m pullMessage) render() string {
	if m.Status == "" {
		return ""
	}
	parts := make([]string, 0, 3)
	if id := strings.TrimSpace(m.ID); id != "" {
		parts = append(parts, id)
	}
	parts = append(parts, strings.TrimSpace(m.Status))
	progress := strings.TrimSpace(m.Progress)
	if progress == "" && m.ProgressDetail.Total > 0 {
		progress = fmt.Sprintf("%d/%d", m.ProgressDetail.Current, m.ProgressDetail.Total)
	}
	if progress != "" {
		parts = append(parts, progress)
	}
	return strings.Join(parts, " ")
}
