package workitem

import "fmt"

// State is the lifecycle stage of a work item.
type State int

const (
	Proposed State = iota
	Committed
	InProgress
	Cut
	Completed
)

var stateNames = map[State]string{
	Proposed:   "Proposed",
	Committed:  "Committed",
	InProgress: "InProgress",
	Cut:        "Cut",
	Completed:  "Completed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Rank orders states for timeline comparisons. Cut and Completed share the
// terminal rank.
func (s State) Rank() int {
	if s == Completed {
		return int(Cut)
	}
	return int(s)
}

// IsOpen reports whether the item is still being tracked.
func (s State) IsOpen() bool {
	return s != Cut && s != Completed
}

// ParseState accepts the canonical names and the common spellings used by the trackers.
func ParseState(s string) (State, bool) {
	switch normalize(s) {
	case "proposed":
		return Proposed, true
	case "committed":
		return Committed, true
	case "inprogress":
		return InProgress, true
	case "cut":
		return Cut, true
	case "completed", "done":
		return Completed, true
	}
	return Proposed, false
}

// Kind is the granularity tier of a work item.
type Kind int

const (
	Theme Kind = iota
	Epic
	UserStory
	Task
)

var kindNames = map[Kind]string{
	Theme:     "Theme",
	Epic:      "Epic",
	UserStory: "UserStory",
	Task:      "Task",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func ParseKind(s string) (Kind, bool) {
	switch normalize(s) {
	case "theme":
		return Theme, true
	case "epic":
		return Epic, true
	case "userstory":
		return UserStory, true
	case "task":
		return Task, true
	}
	return Task, false
}

// Cost is a t-shirt size estimate. CostNone marks an absent estimate.
type Cost int

const (
	CostNone Cost = iota
	Small
	Medium
	Large
	ExtraLarge
)

var costNames = map[Cost]string{
	CostNone:   "",
	Small:      "Small",
	Medium:     "Medium",
	Large:      "Large",
	ExtraLarge: "ExtraLarge",
}

func (c Cost) String() string {
	if n, ok := costNames[c]; ok {
		return n
	}
	return fmt.Sprintf("Cost(%d)", int(c))
}

// ParseCost understands both the long names and the S/M/L/XL shorthand.
func ParseCost(s string) (Cost, bool) {
	switch normalize(s) {
	case "s", "small":
		return Small, true
	case "m", "medium":
		return Medium, true
	case "l", "large":
		return Large, true
	case "xl", "extralarge":
		return ExtraLarge, true
	}
	return CostNone, false
}

// ChangeKind identifies which semantic property a Change describes.
type ChangeKind int

const (
	KindChanged ChangeKind = iota
	StateChanged
	PriorityChanged
	CostChanged
	MilestoneChanged
	TitleChanged
	AssigneeAdded
	AssigneeRemoved
	IsBottomUpChanged
)

var changeKindNames = map[ChangeKind]string{
	KindChanged:       "KindChanged",
	StateChanged:      "StateChanged",
	PriorityChanged:   "PriorityChanged",
	CostChanged:       "CostChanged",
	MilestoneChanged:  "MilestoneChanged",
	TitleChanged:      "TitleChanged",
	AssigneeAdded:     "AssigneeAdded",
	AssigneeRemoved:   "AssigneeRemoved",
	IsBottomUpChanged: "IsBottomUpChanged",
}

func (k ChangeKind) String() string {
	if n, ok := changeKindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("ChangeKind(%d)", int(k))
}

// IsMembership reports whether the kind records a set delta rather than a
// value transition.
func (k ChangeKind) IsMembership() bool {
	return k == AssigneeAdded || k == AssigneeRemoved
}

func normalize(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z':
			out = append(out, c+('a'-'A'))
		case c == ' ' || c == '-' || c == '_':
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

func (s State) MarshalText() ([]byte, error)      { return []byte(s.String()), nil }
func (k Kind) MarshalText() ([]byte, error)       { return []byte(k.String()), nil }
func (c Cost) MarshalText() ([]byte, error)       { return []byte(c.String()), nil }
func (k ChangeKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }
