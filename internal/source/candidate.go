// Package source holds the shapes source adapters hand to the workspace
// builder.
package source

import (
	"errors"
	"time"

	"workgraph/internal/graph"
	"workgraph/internal/history"
)

// ErrMissingID is returned by adapters for a raw item that cannot be given a
// canonical id.
var ErrMissingID = errors.New("raw item has no id")

// Candidate is one work item as produced by an adapter: the fields that come
// straight from the tracker plus the record the reconstructor derives the
// rest from.
type Candidate struct {
	ID        string
	URL       string
	Origin    string
	IsPrivate bool
	CreatedAt time.Time
	CreatedBy string
	Areas     []string
	Record    history.Record
	Edges     []graph.Edge
}
