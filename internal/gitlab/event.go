// Package gitlab decodes GitLab webhook payloads and decides whether a
// pipeline report warrants a redeploy.
package gitlab

import (
	"encoding/json"
	"fmt"
	"io"
)

// Kind is the webhook object_kind discriminator.
type Kind string

const (
	KindPipeline     Kind = "pipeline"
	KindPush         Kind = "push"
	KindTagPush      Kind = "tag_push"
	KindBuild        Kind = "build"
	KindIssue        Kind = "issue"
	KindNote         Kind = "note"
	KindMergeRequest Kind = "merge_request"
	KindWikiPage     Kind = "wiki_page"
)

// Status is the outcome of a single build within a pipeline.
type Status string

const (
	StatusSkipped Status = "skipped"
	StatusSuccess Status = "success"
	StatusCreated Status = "created"
	StatusFailed  Status = "failed"
)

// Event is one decoded webhook body. Pipeline is set only for KindPipeline;
// every other kind, including ones this package does not know, is accepted
// with a nil Pipeline.
type Event struct {
	Kind     Kind
	Pipeline *Pipeline
}

// Pipeline is the payload of a pipeline event.
type Pipeline struct {
	ObjectAttributes ObjectAttributes `json:"object_attributes"`
	Builds           []Build          `json:"builds"`
}

type ObjectAttributes struct {
	ID     int64  `json:"id"`
	Ref    string `json:"ref"`
	SHA    string `json:"sha"`
	Status string `json:"status"`
}

type Build struct {
	ID     int64  `json:"id"`
	Stage  string `json:"stage"`
	Name   string `json:"name"`
	Status Status `json:"status"`
}

// IsPipeline reports whether the event carries a pipeline report.
func (e Event) IsPipeline() bool {
	return e.Kind == KindPipeline && e.Pipeline != nil
}

// UnmarshalJSON dispatches on object_kind.
func (e *Event) UnmarshalJSON(data []byte) error {
	var head struct {
		ObjectKind Kind `json:"object_kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	e.Kind = head.ObjectKind
	e.Pipeline = nil
	if head.ObjectKind != KindPipeline {
		return nil
	}
	var p Pipeline
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode pipeline event: %w", err)
	}
	e.Pipeline = &p
	return nil
}

// Decode reads a single webhook body from r.
func Decode(r io.Reader) (Event, error) {
	var e Event
	if err := json.NewDecoder(r).Decode(&e); err != nil {
		return Event{}, fmt.Errorf("decode webhook event: %w", err)
	}
	return e, nil
}
