package controller

// Message is one unit of work for the controller. The set is closed: only
// Trigger, Poll and Reload implement it.
type Message interface {
	// Kind names the message for logs and metrics.
	Kind() string
	message()
}

// Source records who asked for a redeploy. It is informational only.
type Source string

const (
	SourceManual  Source = "manual"
	SourceWebhook Source = "webhook"
	SourcePoll    Source = "poll"
)

// Trigger requests one run of the deploy pipeline.
type Trigger struct {
	Source Source
}

// Poll requests a health check of the managed container.
type Poll struct{}

// ChangeKind classifies a file system notification for the deploy file.
type ChangeKind int

const (
	ChangeOther ChangeKind = iota
	ChangeModified
	ChangeCreated
	ChangeRemoved
	ChangeRenamed
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeModified:
		return "modified"
	case ChangeCreated:
		return "created"
	case ChangeRemoved:
		return "removed"
	case ChangeRenamed:
		return "renamed"
	default:
		return "other"
	}
}

// Reload reports a change to the deploy file. Only ChangeModified causes the
// file to be read again.
type Reload struct {
	Change ChangeKind
	Path   string
}

func (Trigger) Kind() string { return "trigger" }
func (Poll) Kind() string    { return "poll" }
func (Reload) Kind() string  { return "reload" }

func (Trigger) message() {}
func (Poll) message()    {}
func (Reload) message()  {}
