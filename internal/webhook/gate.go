// Package webhook gates inbound CI webhooks on a shared secret and decides
// whether an authorized event is forwarded to the controller.
package webhook

import (
	"crypto/subtle"
	"sync/atomic"

	"github.com/mindriot101/dockerdeploy/internal/gitlab"
	"github.com/mindriot101/dockerdeploy/internal/manifest"
)

// TokenHeader carries the shared secret on GitLab webhook calls.
const TokenHeader = "X-Gitlab-Token"

// Decision is the outcome of gating one webhook call.
type Decision int

const (
	// Reject means the caller is not authorized.
	Reject Decision = iota
	// Accept means the caller is authorized but no redeploy is warranted.
	Accept
	// Forward means the caller is authorized and a redeploy should be queued.
	Forward
)

func (d Decision) String() string {
	switch d {
	case Reject:
		return "reject"
	case Accept:
		return "accept"
	case Forward:
		return "forward"
	default:
		return "unknown"
	}
}

// Authorize reports whether supplied satisfies secret. A nil secret disables
// the check. A configured secret requires a supplied value that matches
// exactly; a missing header and a wrong one are indistinguishable to callers.
func Authorize(secret, supplied *string) bool {
	if secret == nil {
		return true
	}
	if supplied == nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(*secret), []byte(*supplied)) == 1
}

// Policy is an immutable view of the deploy file fields the webhook path
// needs. The controller publishes a fresh one after every reload.
type Policy struct {
	Secret  *string
	Trigger gitlab.Policy
}

// PolicyFromManifest copies the webhook-relevant fields out of m.
func PolicyFromManifest(m *manifest.Manifest) Policy {
	p := Policy{
		Trigger: gitlab.Policy{
			Branch:         m.Branch.Name,
			BuildOnFailure: m.Branch.BuildOnFailure,
		},
	}
	if m.ValidationKey != nil {
		secret := *m.ValidationKey
		p.Secret = &secret
	}
	return p
}

// Authorize checks supplied against the policy's secret.
func (p Policy) Authorize(supplied *string) bool {
	return Authorize(p.Secret, supplied)
}

// Decide gates one call end to end.
func (p Policy) Decide(supplied *string, event gitlab.Event) Decision {
	if !p.Authorize(supplied) {
		return Reject
	}
	if gitlab.ShouldRedeploy(event, p.Trigger) {
		return Forward
	}
	return Accept
}

// Store publishes the current Policy to concurrent readers.
type Store struct {
	current atomic.Pointer[Policy]
}

// NewStore returns a Store holding p.
func NewStore(p Policy) *Store {
	s := &Store{}
	s.Set(p)
	return s
}

// Load returns the current policy.
func (s *Store) Load() Policy {
	return *s.current.Load()
}

// Set replaces the current policy.
func (s *Store) Set(p Policy) {
	s.current.Store(&p)
}
