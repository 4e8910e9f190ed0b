// Package heartbeat notifies an external endpoint that the managed container
// is up.
package heartbeat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout   = 5 * time.Second
	maxErrorBodySize = 4096
)

// ErrRejected indicates the endpoint answered with a non-2xx status.
var ErrRejected = errors.New("heartbeat rejected")

// Beat is the payload sent after a successful health poll.
type Beat struct {
	Container string
	Image     string
	Running   bool
	SentAt    time.Time
}

// Notifier posts heartbeats over HTTP.
type Notifier struct {
	client *http.Client
	now    func() time.Time
}

// NewNotifier creates a notifier. A nil client or one without a timeout gets
// the default timeout.
func NewNotifier(client *http.Client) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	} else if client.Timeout == 0 {
		client.Timeout = defaultTimeout
	}
	return &Notifier{client: client, now: time.Now}
}

// Send posts beat to endpoint as JSON.
func (n *Notifier) Send(ctx context.Context, endpoint string, beat Beat) error {
	if n == nil {
		return errors.New("heartbeat notifier not initialised")
	}
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return errors.New("heartbeat endpoint required")
	}
	body, err := json.Marshal(buildPayload(beat, n.now))
	if err != nil {
		return fmt.Errorf("marshal heartbeat: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build heartbeat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send heartbeat: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		summary := strings.TrimSpace(string(buf))
		if summary == "" {
			summary = resp.Status
		}
		return fmt.Errorf("%w: %s", ErrRejected, summary)
	}
	return nil
}

func buildPayload(beat Beat, nowFn func() time.Time) map[string]any {
	sent := beat.SentAt
	if sent.IsZero() {
		sent = nowFn()
	}
	return map[string]any{
		"container": beat.Container,
		"image":     beat.Image,
		"running":   beat.Running,
		"sent_at":   sent.UTC().Format(time.RFC3339),
	}
}
