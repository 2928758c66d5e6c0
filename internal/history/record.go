// Package history reconstructs the semantic change history of a work item by
// replaying its raw tracker change log backwards from the item's current
// field values.
package history

import (
	"errors"
	"time"

	"workgraph/internal/identity"
)

var (
	// ErrUnknownField means the adapter passed a raw change the reconstructor
	// does not understand. Adapters filter their logs, so this is a bug upstream.
	ErrUnknownField = errors.New("unknown raw change field")
	// ErrUnknownSource is returned for a record with an unsupported source.
	ErrUnknownSource = errors.New("unknown record source")
)

// Source is the tracker a record was crawled from.
type Source string

const (
	SourceGitHub Source = "github"
	SourceAzure  Source = "azdo"
)

// System returns the identity system handles from this source belong to.
func (s Source) System() identity.System {
	if s == SourceAzure {
		return identity.AzureDevOps
	}
	return identity.GitHub
}

// RawChange is one low-level field diff as recorded by the tracker.
//
// For set-valued GitHub fields (label, assignee) New carries an added member
// and Old a removed one.
type RawChange struct {
	Field string    `json:"field"`
	Actor string    `json:"actor"`
	When  time.Time `json:"when"`
	Old   string    `json:"old,omitempty"`
	New   string    `json:"new,omitempty"`
}

// GitHub raw change fields.
const (
	FieldLabel     = "label"
	FieldMilestone = "milestone"
	FieldAssignee  = "assignee"
	FieldTitle     = "title"
	FieldState     = "state"
)

// Azure DevOps raw change fields.
const (
	AzureState        = "System.State"
	AzureWorkItemType = "System.WorkItemType"
	AzureTitle        = "System.Title"
	AzureAssignedTo   = "System.AssignedTo"
	AzureTags         = "System.Tags"
	AzurePriority     = "Microsoft.VSTS.Common.Priority"
	AzureCost         = "Microsoft.DevDiv.TshirtCosting"
	AzureMilestone    = "Microsoft.DevDiv.Milestone"
)

// Record is everything the reconstructor needs for one item: its current
// low-level field values and its ascending raw change log.
type Record struct {
	Source    Source
	Open      bool
	Title     string
	Milestone string
	Labels    []string
	Fields    map[string]string
	Assignees []string
	// Products are the candidate product names used to resolve milestone text.
	Products []string
	Log      []RawChange
}

// IsKnownField reports whether the reconstructor can replay changes to field
// for the given source. Adapters use it to filter their logs.
func IsKnownField(source Source, field string) bool {
	switch source {
	case SourceGitHub:
		switch field {
		case FieldLabel, FieldMilestone, FieldAssignee, FieldTitle, FieldState:
			return true
		}
	case SourceAzure:
		switch field {
		case AzureState, AzureWorkItemType, AzureTitle, AzureAssignedTo,
			AzureTags, AzurePriority, AzureCost, AzureMilestone:
			return true
		}
	}
	return false
}
