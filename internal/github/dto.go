package github

import "time"

// IssueDTO is one crawled issue together with its timeline.
type IssueDTO struct {
	Owner     string        `json:"owner"`
	Repo      string        `json:"repo"`
	Number    int           `json:"number"`
	URL       string        `json:"html_url"`
	Title     string        `json:"title"`
	Body      string        `json:"body"`
	State     string        `json:"state"`
	Private   bool          `json:"private"`
	CreatedAt string        `json:"created_at"`
	User      *UserDTO      `json:"user"`
	Labels    []LabelDTO    `json:"labels"`
	Assignees []UserDTO     `json:"assignees"`
	Milestone *MilestoneDTO `json:"milestone"`
	Timeline  []EventDTO    `json:"timeline"`
}

// UserDTO is a GitHub account reference.
type UserDTO struct {
	Login string `json:"login"`
}

// LabelDTO is a label as returned by the issues API.
type LabelDTO struct {
	Name string `json:"name"`
}

// MilestoneDTO is a repository milestone.
type MilestoneDTO struct {
	Title string `json:"title"`
}

// RenameDTO is the payload of a "renamed" timeline event.
type RenameDTO struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// EventDTO is one entry of an issue timeline. Only the payload matching
// Event is populated.
type EventDTO struct {
	Event     string        `json:"event"`
	Actor     *UserDTO      `json:"actor"`
	CreatedAt string        `json:"created_at"`
	Label     *LabelDTO     `json:"label,omitempty"`
	Assignee  *UserDTO      `json:"assignee,omitempty"`
	Milestone *MilestoneDTO `json:"milestone,omitempty"`
	Rename    *RenameDTO    `json:"rename,omitempty"`
}

// Timeline event names the mapper understands.
const (
	EventLabeled      = "labeled"
	EventUnlabeled    = "unlabeled"
	EventAssigned     = "assigned"
	EventUnassigned   = "unassigned"
	EventMilestoned   = "milestoned"
	EventDemilestoned = "demilestoned"
	EventRenamed      = "renamed"
	EventClosed       = "closed"
	EventReopened     = "reopened"
)

// ParseTime parses the ISO 8601 timestamps used by the REST API.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func (u *UserDTO) login() string {
	if u == nil {
		return ""
	}
	return u.Login
}
