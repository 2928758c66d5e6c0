package azdo

import (
	"strconv"
	"time"
)

// WorkItemDTO is one crawled work item with its relations and update history.
type WorkItemDTO struct {
	Org       string         `json:"org"`
	Project   string         `json:"project"`
	ID        int            `json:"id"`
	URL       string         `json:"url,omitempty"`
	Fields    map[string]any `json:"fields"`
	Relations []RelationDTO  `json:"relations,omitempty"`
	Updates   []UpdateDTO    `json:"updates,omitempty"`
}

// RelationDTO is a link from the work item to another artifact.
type RelationDTO struct {
	Rel string `json:"rel"`
	URL string `json:"url"`
}

// IdentityDTO is an identity reference as returned in identity-typed fields.
type IdentityDTO struct {
	DisplayName string `json:"displayName"`
	UniqueName  string `json:"uniqueName"`
}

// UpdateDTO is one revision delta from the updates API.
type UpdateDTO struct {
	Rev         int                       `json:"rev"`
	RevisedBy   IdentityDTO               `json:"revisedBy"`
	RevisedDate string                    `json:"revisedDate"`
	Fields      map[string]FieldChangeDTO `json:"fields,omitempty"`
}

// FieldChangeDTO is the old and new value of one field in an update.
type FieldChangeDTO struct {
	OldValue any `json:"oldValue,omitempty"`
	NewValue any `json:"newValue,omitempty"`
}

// Relation types the mapper turns into edges.
const (
	RelChild     = "System.LinkTypes.Hierarchy-Forward"
	RelParent    = "System.LinkTypes.Hierarchy-Reverse"
	RelHyperlink = "Hyperlink"
)

// Fields read outside the replayable set.
const (
	FieldAreaPath    = "System.AreaPath"
	FieldCreatedDate = "System.CreatedDate"
	FieldCreatedBy   = "System.CreatedBy"
	FieldChangedDate = "System.ChangedDate"
)

// ParseTime parses the ISO 8601 timestamps used by the REST API.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// handle renders an identity the way the identity resolver expects it.
func (i IdentityDTO) handle() string {
	switch {
	case i.UniqueName == "":
		return i.DisplayName
	case i.DisplayName == "":
		return i.UniqueName
	}
	return i.DisplayName + " <" + i.UniqueName + ">"
}

// fieldString flattens a JSON field value to text. Identity objects become
// "Display Name <unique@name>".
func fieldString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case map[string]any:
		var id IdentityDTO
		id.DisplayName, _ = x["displayName"].(string)
		id.UniqueName, _ = x["uniqueName"].(string)
		return id.handle()
	}
	return ""
}
