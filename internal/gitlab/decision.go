package gitlab

// Policy is the part of the deploy file the decision depends on.
type Policy struct {
	Branch         string
	BuildOnFailure bool
}

// ShouldRedeploy reports whether e justifies a redeploy. Only pipeline events
// on the configured branch with at least one build, all of which passed or were
// skipped, qualify. With BuildOnFailure set, failed builds no longer veto, but
// builds that have not finished still do.
func ShouldRedeploy(e Event, p Policy) bool {
	if !e.IsPipeline() {
		return false
	}
	return e.Pipeline.ShouldRedeploy(p)
}

// ShouldRedeploy applies the checks in order, short-circuiting.
func (pl Pipeline) ShouldRedeploy(p Policy) bool {
	return pl.onBranch(p.Branch) && pl.hasBuilds() && pl.buildsFinished(p.BuildOnFailure)
}

func (pl Pipeline) onBranch(branch string) bool {
	return pl.ObjectAttributes.Ref == branch
}

func (pl Pipeline) hasBuilds() bool {
	return len(pl.Builds) > 0
}

func (pl Pipeline) buildsFinished(allowFailed bool) bool {
	for _, b := range pl.Builds {
		switch b.Status {
		case StatusSuccess, StatusSkipped:
		case StatusFailed:
			if !allowFailed {
				return false
			}
		default:
			return false
		}
	}
	return true
}
